package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"quiz-session-engine/internal/app"
	"quiz-session-engine/internal/domain"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// API exposes the session engine over JSON/HTTP.
type API struct {
	service *app.QuizService
	logger  *slog.Logger
}

// NewRouter wires REST and websocket routes behind CORS. An empty
// allowedOrigins list allows every origin.
func NewRouter(service *app.QuizService, subscriber Subscriber, allowedOrigins []string, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	api := &API{service: service, logger: logger}
	ws := NewWSHandler(service, subscriber, logger)

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/quiz", api.createQuiz).Methods(http.MethodPost)
	r.HandleFunc("/api/quiz/submit", api.submitAnswer).Methods(http.MethodPost)
	r.HandleFunc("/api/quiz/{code}", api.getQuiz).Methods(http.MethodGet)
	r.HandleFunc("/api/quiz/{code}", api.updateQuiz).Methods(http.MethodPut)
	r.HandleFunc("/api/quiz/{code}", api.deleteQuiz).Methods(http.MethodDelete)
	r.HandleFunc("/api/quizzes", api.listQuizzes).Methods(http.MethodGet)
	r.HandleFunc("/api/quiz/{code}/validate", api.validateQuiz).Methods(http.MethodGet)
	r.HandleFunc("/api/user/join", api.join).Methods(http.MethodPost)
	r.HandleFunc("/api/user/update-score", api.updateScore).Methods(http.MethodPost)
	r.HandleFunc("/api/leaderboard/{code}", api.leaderboard).Methods(http.MethodGet)
	r.HandleFunc("/ws/{code}", ws.ServeWS)

	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(r)
}

type createQuizRequest struct {
	Title     string            `json:"title"`
	CreatedBy string            `json:"createdBy"`
	Questions []domain.Question `json:"questions"`
}

type createQuizResponse struct {
	Message string `json:"message"`
	QuizID  string `json:"quizId"`
	Code    string `json:"code"`
}

func (a *API) createQuiz(w http.ResponseWriter, r *http.Request) {
	var req createQuizRequest
	if !a.decode(w, r, &req) {
		return
	}
	quiz, err := a.service.CreateQuiz(r.Context(), domain.Quiz{
		Title:     req.Title,
		CreatedBy: req.CreatedBy,
		Questions: req.Questions,
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createQuizResponse{
		Message: "Quiz created successfully",
		QuizID:  quiz.ID,
		Code:    quiz.Code,
	})
}

func (a *API) getQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := a.service.GetQuiz(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz.Public())
}

type updateQuizRequest struct {
	Title     string            `json:"title"`
	Questions []domain.Question `json:"questions"`
}

type updateQuizResponse struct {
	Message string      `json:"message"`
	Quiz    domain.Quiz `json:"quiz"`
}

func (a *API) updateQuiz(w http.ResponseWriter, r *http.Request) {
	var req updateQuizRequest
	if !a.decode(w, r, &req) {
		return
	}
	quiz, err := a.service.UpdateQuiz(r.Context(), mux.Vars(r)["code"], domain.Quiz{
		Title:     req.Title,
		Questions: req.Questions,
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updateQuizResponse{Message: "Quiz updated successfully", Quiz: quiz})
}

func (a *API) deleteQuiz(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteQuiz(r.Context(), mux.Vars(r)["code"]); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Quiz deleted successfully"})
}

// listQuizzes is the authoring view and includes correct answers.
func (a *API) listQuizzes(w http.ResponseWriter, r *http.Request) {
	quizzes, err := a.service.ListQuizzes(r.Context(), r.URL.Query().Get("createdBy"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quizzes)
}

func (a *API) validateQuiz(w http.ResponseWriter, r *http.Request) {
	exists, err := a.service.ValidateCode(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exists)
}

type joinRequest struct {
	Code     string `json:"code"`
	Username string `json:"username"`
}

type joinResponse struct {
	Success     bool               `json:"success"`
	Message     string             `json:"message"`
	Participant domain.Participant `json:"participant"`
}

func (a *API) join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.Code == "" || req.Username == "" {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "code and username are required"})
		return
	}
	participant, err := a.service.Join(r.Context(), req.Code, req.Username)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, joinResponse{Success: true, Message: "Joined quiz successfully", Participant: participant})
}

type submitRequest struct {
	Code       string `json:"code"`
	Username   string `json:"username"`
	QuestionID int    `json:"questionId"`
	Answer     string `json:"answer"`
}

func (a *API) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.Code == "" || req.Username == "" {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "code and username are required"})
		return
	}
	result, err := a.service.SubmitAnswer(r.Context(), req.Code, req.Username, req.QuestionID, req.Answer)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type updateScoreRequest struct {
	Username string `json:"username"`
	QuizCode string `json:"quizCode"`
	Score    int    `json:"score"`
}

// updateScore treats any positive score as one correct answer.
func (a *API) updateScore(w http.ResponseWriter, r *http.Request) {
	var req updateScoreRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.QuizCode == "" || req.Username == "" {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "quizCode and username are required"})
		return
	}
	if _, err := a.service.UpdateScore(r.Context(), req.Username, req.QuizCode, req.Score > 0); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Score updated successfully"})
}

type leaderboardResponse struct {
	Players     []domain.LeaderboardEntry `json:"players"`
	ActiveUsers int                       `json:"activeUsers"`
	TimeLeft    int                       `json:"timeLeft"`
}

func (a *API) leaderboard(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	board, err := a.service.GetLeaderboard(r.Context(), code)
	if err != nil {
		a.writeError(w, err)
		return
	}
	active, err := a.service.GetParticipantCount(r.Context(), code)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{
		Players:     board.Players,
		ActiveUsers: active,
	})
}

type messageResponse struct {
	Message string `json:"message"`
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "invalid JSON body"})
		return false
	}
	return true
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	status, message := classifyError(a.logger, err)
	writeJSON(w, status, messageResponse{Message: message})
}

// classifyError maps service errors to a status and a client-safe message.
// Unexpected errors are logged and reported generically.
func classifyError(logger *slog.Logger, err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound):
		return http.StatusNotFound, "Quiz not found"
	case errors.Is(err, domain.ErrQuestionNotFound):
		return http.StatusBadRequest, "Question not found"
	case errors.Is(err, domain.ErrEmptyUsername):
		return http.StatusBadRequest, domain.ErrEmptyUsername.Error()
	case errors.Is(err, domain.ErrInvalidQuiz):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrCodeSpaceExhausted):
		logger.Error("join code generation failed", "error", err)
		return http.StatusServiceUnavailable, "no join code available, retry later"
	default:
		logger.Error("request failed", "error", err)
		return http.StatusInternalServerError, "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
