package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"quiz-session-engine/internal/domain"

	"github.com/google/uuid"
)

const defaultTimeLimitSeconds = 30

// Ledger is the score ledger of one session. Join and ApplyScore must be
// atomic per username so concurrent updates are never lost.
type Ledger interface {
	Join(ctx context.Context, username string) (domain.Participant, error)
	ApplyScore(ctx context.Context, username string, correct bool) (domain.Participant, bool, error)
	ParticipantCount(ctx context.Context) (int, error)
	Participant(ctx context.Context, username string) (domain.Participant, bool, error)
	Leaderboard(ctx context.Context) (domain.Leaderboard, error)
}

// SessionRepository owns the code -> ledger mapping. GetOrCreate must be
// atomic so concurrent first joins of one code share a single ledger.
type SessionRepository interface {
	GetOrCreate(ctx context.Context, code string) (Ledger, error)
	Get(ctx context.Context, code string) (Ledger, bool, error)
}

// Catalog is the quiz definition store (cache or backing database).
type Catalog interface {
	CodeChecker
	GetQuizByCode(ctx context.Context, code string) (domain.Quiz, error)
	ListCodes(ctx context.Context) ([]string, error)
	// ListQuizzes returns quizzes by author; an empty createdBy lists all.
	ListQuizzes(ctx context.Context, createdBy string) ([]domain.Quiz, error)
	SaveQuiz(ctx context.Context, quiz domain.Quiz) error
	// DeleteQuiz returns domain.ErrQuizNotFound for unknown codes.
	DeleteQuiz(ctx context.Context, code string) error
}

// QuizService contains the live session use cases.
type QuizService struct {
	sessions SessionRepository
	catalog  Catalog
	codes    *CodeGenerator
	now      func() time.Time
}

func NewQuizService(store SessionRepository, catalog Catalog, codes *CodeGenerator) *QuizService {
	if codes == nil {
		codes = NewCodeGenerator(catalog, DefaultCodeAttempts)
	}
	return &QuizService{
		sessions: store,
		catalog:  catalog,
		codes:    codes,
		now:      time.Now,
	}
}

// Join registers username in the session for code, creating the session on
// first use. Joining twice returns the existing participant unchanged.
func (s *QuizService) Join(ctx context.Context, code, username string) (domain.Participant, error) {
	if username == "" {
		return domain.Participant{}, domain.ErrEmptyUsername
	}
	if _, err := s.catalog.GetQuizByCode(ctx, code); err != nil {
		return domain.Participant{}, err
	}
	ledger, err := s.sessions.GetOrCreate(ctx, code)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("open session %s: %w", code, err)
	}
	return ledger.Join(ctx, username)
}

// CheckAnswer resolves the quiz and compares answer with the question's
// correct answer, case-insensitively. Scores are not touched.
func (s *QuizService) CheckAnswer(ctx context.Context, code string, questionID int, answer string) (bool, error) {
	quiz, err := s.catalog.GetQuizByCode(ctx, code)
	if err != nil {
		return false, err
	}
	return CheckAnswer(quiz, questionID, answer)
}

// UpdateScore adds one point to username when correct is true. A user that
// never joined is registered by its first correct answer. Repeated correct
// answers to the same question are each credited.
func (s *QuizService) UpdateScore(ctx context.Context, username, code string, correct bool) (domain.Participant, error) {
	if username == "" {
		return domain.Participant{}, domain.ErrEmptyUsername
	}
	ledger, ok, err := s.sessions.Get(ctx, code)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("load session %s: %w", code, err)
	}
	if !ok {
		if !correct {
			return domain.Participant{}, nil
		}
		if _, err := s.catalog.GetQuizByCode(ctx, code); err != nil {
			return domain.Participant{}, err
		}
		if ledger, err = s.sessions.GetOrCreate(ctx, code); err != nil {
			return domain.Participant{}, fmt.Errorf("open session %s: %w", code, err)
		}
	}
	participant, _, err := ledger.ApplyScore(ctx, username, correct)
	return participant, err
}

// SubmitAnswer checks the answer and then credits the score.
func (s *QuizService) SubmitAnswer(ctx context.Context, code, username string, questionID int, answer string) (domain.AnswerResult, error) {
	correct, err := s.CheckAnswer(ctx, code, questionID, answer)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	participant, err := s.UpdateScore(ctx, username, code, correct)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	return domain.AnswerResult{
		QuestionID: questionID,
		Correct:    correct,
		TotalScore: participant.Score,
	}, nil
}

// GetLeaderboard returns the ranked ledger of code. Unknown sessions yield an
// empty leaderboard, not an error.
func (s *QuizService) GetLeaderboard(ctx context.Context, code string) (domain.Leaderboard, error) {
	ledger, ok, err := s.sessions.Get(ctx, code)
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("load session %s: %w", code, err)
	}
	if !ok {
		return domain.Leaderboard{
			QuizCode:  code,
			Players:   []domain.LeaderboardEntry{},
			UpdatedAt: s.now(),
		}, nil
	}
	return ledger.Leaderboard(ctx)
}

// GetParticipantCount returns the number of distinct participants, 0 for
// unknown sessions.
func (s *QuizService) GetParticipantCount(ctx context.Context, code string) (int, error) {
	ledger, ok, err := s.sessions.Get(ctx, code)
	if err != nil || !ok {
		return 0, err
	}
	return ledger.ParticipantCount(ctx)
}

// GetParticipant looks up a single ledger entry.
func (s *QuizService) GetParticipant(ctx context.Context, code, username string) (domain.Participant, bool, error) {
	ledger, ok, err := s.sessions.Get(ctx, code)
	if err != nil || !ok {
		return domain.Participant{}, false, err
	}
	return ledger.Participant(ctx, username)
}

// CreateQuiz validates a new quiz, assigns it an id and a fresh join code and
// stores it in the catalog.
func (s *QuizService) CreateQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	if err := normalizeQuiz(&quiz); err != nil {
		return domain.Quiz{}, err
	}
	code, err := s.codes.GenerateUniqueCode(ctx)
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz.ID = uuid.NewString()
	quiz.Code = code
	if err := s.catalog.SaveQuiz(ctx, quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("save quiz: %w", err)
	}
	return quiz, nil
}

// GetQuiz returns the catalog definition for code.
func (s *QuizService) GetQuiz(ctx context.Context, code string) (domain.Quiz, error) {
	return s.catalog.GetQuizByCode(ctx, code)
}

// ValidateCode reports whether code names a quiz.
func (s *QuizService) ValidateCode(ctx context.Context, code string) (bool, error) {
	return s.catalog.ExistsByCode(ctx, code)
}

// UpdateQuiz replaces the title and questions of the quiz stored under code.
// ID, code and author are kept. Cached copies are evicted by the catalog.
func (s *QuizService) UpdateQuiz(ctx context.Context, code string, quiz domain.Quiz) (domain.Quiz, error) {
	existing, err := s.catalog.GetQuizByCode(ctx, code)
	if err != nil {
		return domain.Quiz{}, err
	}
	if err := normalizeQuiz(&quiz); err != nil {
		return domain.Quiz{}, err
	}
	existing.Title = quiz.Title
	existing.Questions = quiz.Questions
	if err := s.catalog.SaveQuiz(ctx, existing); err != nil {
		return domain.Quiz{}, fmt.Errorf("save quiz: %w", err)
	}
	return existing, nil
}

// DeleteQuiz removes the quiz from the catalog. Its code stops being
// broadcast and new joins fail; an open ledger stays readable.
func (s *QuizService) DeleteQuiz(ctx context.Context, code string) error {
	return s.catalog.DeleteQuiz(ctx, code)
}

// ListQuizzes returns the quizzes authored by createdBy, or all quizzes when
// createdBy is empty.
func (s *QuizService) ListQuizzes(ctx context.Context, createdBy string) ([]domain.Quiz, error) {
	return s.catalog.ListQuizzes(ctx, createdBy)
}

// QuizCodes lists every join code known to the catalog.
func (s *QuizService) QuizCodes(ctx context.Context) ([]string, error) {
	return s.catalog.ListCodes(ctx)
}

// normalizeQuiz rejects unplayable quizzes and fills question ids and time
// limits the author left out. Missing ids are numbered after the highest
// explicit one.
func normalizeQuiz(quiz *domain.Quiz) error {
	quiz.Title = strings.TrimSpace(quiz.Title)
	if quiz.Title == "" {
		return fmt.Errorf("%w: title is required", domain.ErrInvalidQuiz)
	}
	if len(quiz.Questions) == 0 {
		return fmt.Errorf("%w: at least one question is required", domain.ErrInvalidQuiz)
	}

	seen := make(map[int]struct{}, len(quiz.Questions))
	next := 1
	for _, q := range quiz.Questions {
		if q.ID == 0 {
			continue
		}
		if q.ID < 0 {
			return fmt.Errorf("%w: negative question id %d", domain.ErrInvalidQuiz, q.ID)
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("%w: duplicate question id %d", domain.ErrInvalidQuiz, q.ID)
		}
		seen[q.ID] = struct{}{}
		if q.ID >= next {
			next = q.ID + 1
		}
	}

	for i := range quiz.Questions {
		q := &quiz.Questions[i]
		if q.ID == 0 {
			q.ID = next
			next++
		}
		if strings.TrimSpace(q.Text) == "" {
			return fmt.Errorf("%w: question %d has no text", domain.ErrInvalidQuiz, q.ID)
		}
		if q.CorrectAnswer == "" {
			return fmt.Errorf("%w: question %d has no correct answer", domain.ErrInvalidQuiz, q.ID)
		}
		if q.TimeLimitSeconds < 0 {
			return fmt.Errorf("%w: question %d has a negative time limit", domain.ErrInvalidQuiz, q.ID)
		}
		if q.TimeLimitSeconds == 0 {
			q.TimeLimitSeconds = defaultTimeLimitSeconds
		}
	}
	return nil
}
