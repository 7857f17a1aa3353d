package domain

import "time"

// Question is a single multiple-choice question. CorrectAnswer is compared
// case-insensitively against submissions.
type Question struct {
	ID               int      `json:"id"`
	Text             string   `json:"text"`
	Options          []string `json:"options"`
	CorrectAnswer    string   `json:"correctAnswer"`
	TimeLimitSeconds int      `json:"timeLimit"`
}

// Quiz is the catalog definition of a quiz, keyed by its join code.
type Quiz struct {
	ID        string     `json:"id"`
	Code      string     `json:"code"`
	Title     string     `json:"title"`
	CreatedBy string     `json:"createdBy,omitempty"`
	Questions []Question `json:"questions"`
}

// QuestionByID returns the question with the given id.
func (q Quiz) QuestionByID(id int) (Question, error) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, nil
		}
	}
	return Question{}, ErrQuestionNotFound
}

// PublicQuestion is a question without its answer, safe to hand to participants.
type PublicQuestion struct {
	ID               int      `json:"id"`
	Text             string   `json:"text"`
	Options          []string `json:"options"`
	TimeLimitSeconds int      `json:"timeLimit"`
}

// PublicQuiz is the participant-facing view of a quiz.
type PublicQuiz struct {
	ID        string           `json:"id"`
	Code      string           `json:"code"`
	Title     string           `json:"title"`
	CreatedBy string           `json:"createdBy,omitempty"`
	Questions []PublicQuestion `json:"questions"`
}

// Public strips correct answers.
func (q Quiz) Public() PublicQuiz {
	questions := make([]PublicQuestion, 0, len(q.Questions))
	for _, question := range q.Questions {
		questions = append(questions, PublicQuestion{
			ID:               question.ID,
			Text:             question.Text,
			Options:          question.Options,
			TimeLimitSeconds: question.TimeLimitSeconds,
		})
	}
	return PublicQuiz{
		ID:        q.ID,
		Code:      q.Code,
		Title:     q.Title,
		CreatedBy: q.CreatedBy,
		Questions: questions,
	}
}

// Participant is a user registered in one quiz session. Usernames are unique
// per quiz code, not globally.
type Participant struct {
	Username string    `json:"username"`
	QuizCode string    `json:"quizCode"`
	Score    int       `json:"score"`
	JoinedAt time.Time `json:"joinedAt"`
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// Leaderboard is a ranked snapshot of a session's score ledger. It is the
// payload pushed on the scores topic.
type Leaderboard struct {
	QuizCode  string             `json:"quizCode"`
	Players   []LeaderboardEntry `json:"players"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// AnswerResult summarizes one submit-answer call.
type AnswerResult struct {
	QuestionID int  `json:"questionId"`
	Correct    bool `json:"correct"`
	TotalScore int  `json:"totalScore"`
}
