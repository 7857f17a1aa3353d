package app

import (
	"context"
	"fmt"
	"math/rand"

	"quiz-session-engine/internal/domain"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6

	// DefaultCodeAttempts bounds the collision retry loop.
	DefaultCodeAttempts = 20
)

// CodeChecker reports whether a join code is already assigned.
type CodeChecker interface {
	ExistsByCode(ctx context.Context, code string) (bool, error)
}

// CodeGenerator produces join codes that are not yet used by the catalog.
type CodeGenerator struct {
	checker     CodeChecker
	maxAttempts int
	intn        func(n int) int
}

func NewCodeGenerator(checker CodeChecker, maxAttempts int) *CodeGenerator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultCodeAttempts
	}
	return &CodeGenerator{
		checker:     checker,
		maxAttempts: maxAttempts,
		intn:        rand.Intn,
	}
}

// GenerateUniqueCode draws random 6-character codes over [A-Z0-9] until the
// catalog reports one as free. The caller persists the quiz under it.
func (g *CodeGenerator) GenerateUniqueCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		code := g.randomCode()
		exists, err := g.checker.ExistsByCode(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check code %s: %w", code, err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", domain.ErrCodeSpaceExhausted, g.maxAttempts)
}

func (g *CodeGenerator) randomCode() string {
	code := make([]byte, codeLength)
	for i := range code {
		code[i] = codeAlphabet[g.intn(len(codeAlphabet))]
	}
	return string(code)
}
