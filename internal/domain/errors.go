package domain

import "errors"

var (
	// ErrQuizNotFound is returned when no quiz is registered under a join code.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID is not part of the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrCodeSpaceExhausted is returned when no free join code was found within the retry budget.
	ErrCodeSpaceExhausted = errors.New("join code space exhausted")
	// ErrInvalidQuiz rejects quiz definitions that cannot be played.
	ErrInvalidQuiz = errors.New("invalid quiz definition")
	// ErrEmptyUsername rejects joins and score updates without a username.
	ErrEmptyUsername = errors.New("username is required")
)
