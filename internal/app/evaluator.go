package app

import (
	"strings"

	"quiz-session-engine/internal/domain"
)

// CheckAnswer reports whether answer matches the correct answer of the given
// question, ignoring case. It has no side effects.
func CheckAnswer(quiz domain.Quiz, questionID int, answer string) (bool, error) {
	question, err := quiz.QuestionByID(questionID)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(question.CorrectAnswer, answer), nil
}
