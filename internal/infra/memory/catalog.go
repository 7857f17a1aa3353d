package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-session-engine/internal/domain"
)

// Catalog is a map-backed quiz catalog keyed by join code (useful for tests/demos).
type Catalog struct {
	mu      sync.RWMutex
	quizzes map[string]domain.Quiz
}

func NewCatalog(quizzes ...domain.Quiz) *Catalog {
	c := &Catalog{quizzes: make(map[string]domain.Quiz, len(quizzes))}
	for _, quiz := range quizzes {
		c.quizzes[quiz.Code] = quiz
	}
	return c
}

func (c *Catalog) GetQuizByCode(_ context.Context, code string) (domain.Quiz, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if quiz, ok := c.quizzes[code]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

func (c *Catalog) ExistsByCode(_ context.Context, code string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.quizzes[code]
	return ok, nil
}

// ListCodes returns codes in lexical order.
func (c *Catalog) ListCodes(_ context.Context) ([]string, error) {
	c.mu.RLock()
	codes := make([]string, 0, len(c.quizzes))
	for code := range c.quizzes {
		codes = append(codes, code)
	}
	c.mu.RUnlock()
	sort.Strings(codes)
	return codes, nil
}

// ListQuizzes returns quizzes by author in code order; an empty createdBy
// lists all of them.
func (c *Catalog) ListQuizzes(_ context.Context, createdBy string) ([]domain.Quiz, error) {
	c.mu.RLock()
	quizzes := make([]domain.Quiz, 0, len(c.quizzes))
	for _, quiz := range c.quizzes {
		if createdBy == "" || quiz.CreatedBy == createdBy {
			quizzes = append(quizzes, quiz)
		}
	}
	c.mu.RUnlock()
	sort.Slice(quizzes, func(i, j int) bool { return quizzes[i].Code < quizzes[j].Code })
	return quizzes, nil
}

// SaveQuiz inserts or replaces the quiz stored under quiz.Code.
func (c *Catalog) SaveQuiz(_ context.Context, quiz domain.Quiz) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quizzes[quiz.Code] = quiz
	return nil
}

func (c *Catalog) DeleteQuiz(_ context.Context, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.quizzes[code]; !ok {
		return domain.ErrQuizNotFound
	}
	delete(c.quizzes, code)
	return nil
}
