package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quiz-session-engine/internal/app"
	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/infra/memory"

	"github.com/gorilla/websocket"
)

func TestWebSocketAnswerFlow(t *testing.T) {
	server, _, _ := newTestServer(t)

	conn := dial(t, server, "/ws/ABC123?username=alice")
	defer conn.Close()

	_, payload := readNext(conn, t, "joined")
	participant, _ := payload["participant"].(map[string]any)
	if participant["username"] != "alice" {
		t.Fatalf("expected alice in joined payload, got %v", payload)
	}

	answer := map[string]any{
		"type": "answer",
		"payload": map[string]any{
			"questionId": 1,
			"answer":     "blue",
		},
	}
	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}

	_, result := readNext(conn, t, "answerResult")
	if result["correct"] != true {
		t.Fatalf("expected correct answer, got %v", result)
	}
	if result["totalScore"] != float64(1) {
		t.Fatalf("expected total score 1, got %v", result["totalScore"])
	}
}

func TestWebSocketReceivesBroadcast(t *testing.T) {
	server, service, broker := newTestServer(t)

	conn := dial(t, server, "/ws/ABC123?username=alice")
	defer conn.Close()
	readNext(conn, t, "joined")

	if _, err := service.UpdateScore(context.Background(), "alice", "ABC123", true); err != nil {
		t.Fatalf("update score: %v", err)
	}
	broadcaster := app.NewBroadcaster(service, broker, time.Second, 2, quietLogger())
	if res := broadcaster.Tick(context.Background()); res.Failed != 0 {
		t.Fatalf("expected clean tick, got %+v", res)
	}

	_, payload := readNext(conn, t, "leaderboard")
	players, _ := payload["players"].([]any)
	if len(players) != 1 {
		t.Fatalf("expected one player, got %v", payload)
	}
	top, _ := players[0].(map[string]any)
	if top["username"] != "alice" || top["score"] != float64(1) {
		t.Fatalf("unexpected leaderboard row %v", top)
	}
}

func TestWebSocketLeaderboardRequest(t *testing.T) {
	server, _, _ := newTestServer(t)

	conn := dial(t, server, "/ws/ABC123?username=bob")
	defer conn.Close()
	readNext(conn, t, "joined")

	if err := conn.WriteJSON(map[string]any{"type": "leaderboard"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, payload := readNext(conn, t, "leaderboard")
	if payload["quizCode"] != "ABC123" {
		t.Fatalf("unexpected payload %v", payload)
	}

	if err := conn.WriteJSON(map[string]any{"type": "dance"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readNext(conn, t, "error")
}

func TestWebSocketUnknownQuiz(t *testing.T) {
	server, _, _ := newTestServer(t)

	conn := dial(t, server, "/ws/NOPE00?username=alice")
	defer conn.Close()

	_, payload := readNext(conn, t, "error")
	if payload["message"] != "Quiz not found" {
		t.Fatalf("expected quiz not found, got %v", payload)
	}
}

type brokenCatalog struct {
	*memory.Catalog
}

func (brokenCatalog) GetQuizByCode(context.Context, string) (domain.Quiz, error) {
	return domain.Quiz{}, errors.New("dial tcp 10.0.0.7:5432: connection refused")
}

func TestWebSocketHidesInternalErrors(t *testing.T) {
	service := app.NewQuizService(memory.NewSessionStore(), brokenCatalog{memory.NewCatalog()}, nil)
	server := httptest.NewServer(NewRouter(service, memory.NewBroker(), nil, quietLogger()))
	t.Cleanup(server.Close)

	conn := dial(t, server, "/ws/ABC123?username=alice")
	defer conn.Close()

	_, payload := readNext(conn, t, "error")
	if payload["message"] != "internal error" {
		t.Fatalf("expected generic message, got %v", payload)
	}
}

func TestWebSocketAnswerErrorsUseClientMessages(t *testing.T) {
	server, _, _ := newTestServer(t)

	conn := dial(t, server, "/ws/ABC123?username=alice")
	defer conn.Close()
	readNext(conn, t, "joined")

	answer := map[string]any{
		"type":    "answer",
		"payload": map[string]any{"questionId": 42, "answer": "blue"},
	}
	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	_, payload := readNext(conn, t, "error")
	if payload["message"] != "Question not found" {
		t.Fatalf("expected question not found, got %v", payload)
	}
}

func TestWebSocketRequiresUsername(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/ws/ABC123")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *app.QuizService, *memory.Broker) {
	t.Helper()
	catalog := memory.NewCatalog(sampleQuiz())
	service := app.NewQuizService(memory.NewSessionStore(), memory.NewCachedCatalog(catalog, time.Minute), nil)
	broker := memory.NewBroker()

	server := httptest.NewServer(NewRouter(service, broker, nil, quietLogger()))
	t.Cleanup(server.Close)
	return server, service, broker
}

func dial(t *testing.T, server *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(server.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s (%v)", expect, msg.Type, msg.Payload)
	}
	return msg.Type, msg.Payload
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Code:  "ABC123",
		Title: "Colours",
		Questions: []domain.Question{
			{
				ID:               1,
				Text:             "What colour is the sky?",
				Options:          []string{"Blue", "Green", "Red"},
				CorrectAnswer:    "Blue",
				TimeLimitSeconds: 10,
			},
		},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
