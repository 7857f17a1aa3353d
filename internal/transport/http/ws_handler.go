package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"quiz-session-engine/internal/app"
	"quiz-session-engine/internal/domain"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

// Subscriber delivers leaderboard snapshots published on a topic.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan domain.Leaderboard, func(), error)
}

type WSHandler struct {
	service    *app.QuizService
	subscriber Subscriber
	logger     *slog.Logger
	upgrader   websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, subscriber Subscriber, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		service:    service,
		subscriber: subscriber,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origins are enforced by the CORS layer for REST; sockets accept any.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID int    `json:"questionId"`
	Answer     string `json:"answer"`
}

type joinedPayload struct {
	Participant domain.Participant `json:"participant"`
	Leaderboard domain.Leaderboard `json:"leaderboard"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades /ws/{code}?username= to a websocket, joins the session and
// streams the scores topic until the client goes away.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	username := r.URL.Query().Get("username")
	if code == "" || username == "" {
		http.Error(w, "missing code or username", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "code", code, "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	participant, err := h.service.Join(ctx, code, username)
	if err != nil {
		h.writeNow(conn, h.errorMessage(err))
		return
	}
	board, err := h.service.GetLeaderboard(ctx, code)
	if err != nil {
		h.writeNow(conn, h.errorMessage(err))
		return
	}

	updates, cancel, err := h.subscriber.Subscribe(ctx, app.ScoresTopic(code))
	if err != nil {
		h.logger.Error("ws subscribe failed", "code", code, "error", err)
		h.writeNow(conn, outboundMessage{Type: "error", Payload: errorPayload{Message: "leaderboard stream unavailable"}})
		return
	}
	defer cancel()

	send := make(chan outboundMessage, sendBuffer)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Single writer: gorilla connections do not support concurrent writes.
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case msg, ok := <-send:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(msg); err != nil {
					h.logger.Warn("ws write error", "code", code, "error", err)
					// unblock the reader
					_ = conn.Close()
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	enqueue := func(msg outboundMessage) bool {
		select {
		case send <- msg:
			return true
		case <-writerDone:
			return false
		}
	}

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage{Type: "leaderboard", Payload: update}:
				case <-closeSignals:
					return
				case <-writerDone:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	enqueue(outboundMessage{Type: "joined", Payload: joinedPayload{
		Participant: participant,
		Leaderboard: board,
	}})

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if !enqueue(h.handleInbound(ctx, code, username, inbound)) {
			break
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) handleInbound(ctx context.Context, code, username string, inbound inboundMessage) outboundMessage {
	switch inbound.Type {
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return outboundMessage{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
		}
		result, err := h.service.SubmitAnswer(ctx, code, username, payload.QuestionID, payload.Answer)
		if err != nil {
			return h.errorMessage(err)
		}
		return outboundMessage{Type: "answerResult", Payload: result}
	case "leaderboard":
		board, err := h.service.GetLeaderboard(ctx, code)
		if err != nil {
			return h.errorMessage(err)
		}
		return outboundMessage{Type: "leaderboard", Payload: board}
	default:
		return outboundMessage{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
	}
}

// errorMessage builds an error frame with the same client-safe text the REST
// handlers use.
func (h *WSHandler) errorMessage(err error) outboundMessage {
	_, message := classifyError(h.logger, err)
	return outboundMessage{Type: "error", Payload: errorPayload{Message: message}}
}

func (h *WSHandler) writeNow(conn *websocket.Conn, msg outboundMessage) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(msg)
}
