package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"quiz-session-engine/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// Catalog stores quiz definitions in the quizzes table; questions live in a
// JSONB column.
type Catalog struct {
	pool *pgxpool.Pool
}

func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

func (c *Catalog) GetQuizByCode(ctx context.Context, code string) (domain.Quiz, error) {
	var (
		quiz domain.Quiz
		raw  []byte
	)
	err := c.pool.QueryRow(ctx,
		`SELECT id, code, title, created_by, questions FROM quizzes WHERE code=$1`, code,
	).Scan(&quiz.ID, &quiz.Code, &quiz.Title, &quiz.CreatedBy, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz %s: %w", code, err)
	}
	if err := json.Unmarshal(raw, &quiz.Questions); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal questions of %s: %w", code, err)
	}
	return quiz, nil
}

func (c *Catalog) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := c.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM quizzes WHERE code=$1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check code %s: %w", code, err)
	}
	return exists, nil
}

func (c *Catalog) ListCodes(ctx context.Context) ([]string, error) {
	rows, err := c.pool.Query(ctx, `SELECT code FROM quizzes ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list codes: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// SaveQuiz inserts the quiz or replaces the definition stored under its code.
func (c *Catalog) SaveQuiz(ctx context.Context, quiz domain.Quiz) error {
	questions, err := json.Marshal(quiz.Questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}
	_, err = c.pool.Exec(ctx, `
		INSERT INTO quizzes (id, code, title, created_by, questions)
		VALUES ($1, $2, $3, $4, $5::jsonb)
		ON CONFLICT (code) DO UPDATE
		SET title = EXCLUDED.title,
		    created_by = EXCLUDED.created_by,
		    questions = EXCLUDED.questions,
		    updated_at = now()`,
		quiz.ID, quiz.Code, quiz.Title, quiz.CreatedBy, string(questions))
	if err != nil {
		return fmt.Errorf("save quiz %s: %w", quiz.Code, err)
	}
	return nil
}

// ListQuizzes returns quizzes by author in code order; an empty createdBy
// lists all of them.
func (c *Catalog) ListQuizzes(ctx context.Context, createdBy string) ([]domain.Quiz, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id, code, title, created_by, questions FROM quizzes
		WHERE $1 = '' OR created_by = $1
		ORDER BY code`, createdBy)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer rows.Close()

	quizzes := []domain.Quiz{}
	for rows.Next() {
		var (
			quiz domain.Quiz
			raw  []byte
		)
		if err := rows.Scan(&quiz.ID, &quiz.Code, &quiz.Title, &quiz.CreatedBy, &raw); err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		if err := json.Unmarshal(raw, &quiz.Questions); err != nil {
			return nil, fmt.Errorf("unmarshal questions of %s: %w", quiz.Code, err)
		}
		quizzes = append(quizzes, quiz)
	}
	return quizzes, rows.Err()
}

func (c *Catalog) DeleteQuiz(ctx context.Context, code string) error {
	tag, err := c.pool.Exec(ctx, `DELETE FROM quizzes WHERE code=$1`, code)
	if err != nil {
		return fmt.Errorf("delete quiz %s: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}
