package app_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"quiz-session-engine/internal/app"
	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/infra/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndToEndScoring(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	alice, err := service.Join(ctx, "ABC123", "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, alice.Score)
	assert.Equal(t, "ABC123", alice.QuizCode)

	correct, err := service.CheckAnswer(ctx, "ABC123", 1, "blue")
	require.NoError(t, err)
	require.True(t, correct)

	alice, err = service.UpdateScore(ctx, "alice", "ABC123", correct)
	require.NoError(t, err)
	assert.Equal(t, 1, alice.Score)

	lb := leaderboardOf(t, service, "ABC123")
	assert.Equal(t, []domain.LeaderboardEntry{{Username: "alice", Score: 1}}, lb.Players)
	assert.Equal(t, 1, countOf(t, service, "ABC123"))
}

func TestJoinIsIdempotent(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	first, err := service.Join(ctx, "ABC123", "alice")
	require.NoError(t, err)
	_, err = service.UpdateScore(ctx, "alice", "ABC123", true)
	require.NoError(t, err)

	again, err := service.Join(ctx, "ABC123", "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, again.Score, "rejoin must not reset the score")
	assert.Equal(t, first.JoinedAt, again.JoinedAt)
	assert.Equal(t, 1, countOf(t, service, "ABC123"))
}

func TestJoinUnknownQuiz(t *testing.T) {
	service, _ := newTestService()

	_, err := service.Join(context.Background(), "ZZZZZZ", "bob")
	require.ErrorIs(t, err, domain.ErrQuizNotFound)
	assert.Equal(t, 0, countOf(t, service, "ZZZZZZ"))
}

func TestLeaderboardOfUnknownSessionIsEmpty(t *testing.T) {
	service, _ := newTestService()

	lb := leaderboardOf(t, service, "ZZZZZZ")
	assert.NotNil(t, lb.Players)
	assert.Empty(t, lb.Players)
	assert.Equal(t, "ZZZZZZ", lb.QuizCode)
}

func TestUpdateScoreIncorrectLeavesScore(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()
	_, err := service.Join(ctx, "ABC123", "alice")
	require.NoError(t, err)

	alice, err := service.UpdateScore(ctx, "alice", "ABC123", false)
	require.NoError(t, err)
	assert.Equal(t, 0, alice.Score)
}

func TestUpdateScoreRegistersUnknownUserOnCorrectAnswer(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	carol, err := service.UpdateScore(ctx, "carol", "ABC123", true)
	require.NoError(t, err)
	assert.Equal(t, 1, carol.Score)
	assert.Equal(t, 1, countOf(t, service, "ABC123"))

	_, err = service.UpdateScore(ctx, "dave", "ABC123", false)
	require.NoError(t, err)
	_, ok := participantOf(t, service, "ABC123", "dave")
	assert.False(t, ok, "incorrect answers must not register users")
}

func TestUpdateScoreUnknownQuiz(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	_, err := service.UpdateScore(ctx, "carol", "ZZZZZZ", true)
	require.ErrorIs(t, err, domain.ErrQuizNotFound)

	_, err = service.UpdateScore(ctx, "carol", "ZZZZZZ", false)
	require.NoError(t, err)
	assert.Empty(t, leaderboardOf(t, service, "ZZZZZZ").Players)
}

// Repeat-correct submissions for one question are credited every time; there
// is no per-question deduplication.
func TestRepeatedCorrectSubmissionIsCreditedTwice(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()
	_, err := service.Join(ctx, "ABC123", "alice")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := service.SubmitAnswer(ctx, "ABC123", "alice", 1, "Blue")
		require.NoError(t, err)
	}

	alice, ok := participantOf(t, service, "ABC123", "alice")
	require.True(t, ok)
	assert.Equal(t, 2, alice.Score)
}

func TestSubmitAnswer(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()
	_, err := service.Join(ctx, "ABC123", "alice")
	require.NoError(t, err)

	result, err := service.SubmitAnswer(ctx, "ABC123", "alice", 1, "Green")
	require.NoError(t, err)
	assert.Equal(t, domain.AnswerResult{QuestionID: 1, Correct: false, TotalScore: 0}, result)

	result, err = service.SubmitAnswer(ctx, "ABC123", "alice", 1, "BLUE")
	require.NoError(t, err)
	assert.Equal(t, domain.AnswerResult{QuestionID: 1, Correct: true, TotalScore: 1}, result)

	_, err = service.SubmitAnswer(ctx, "ABC123", "alice", 99, "Blue")
	require.ErrorIs(t, err, domain.ErrQuestionNotFound)
	_, err = service.SubmitAnswer(ctx, "ZZZZZZ", "alice", 1, "Blue")
	require.ErrorIs(t, err, domain.ErrQuizNotFound)
}

func TestCheckAnswerIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	service, catalog := newTestService()
	require.NoError(t, catalog.SaveQuiz(ctx, domain.Quiz{
		Code:      "PARIS1",
		Title:     "Capitals",
		Questions: []domain.Question{{ID: 7, Text: "Capital of France?", CorrectAnswer: "Paris"}},
	}))

	upper, err := service.CheckAnswer(ctx, "PARIS1", 7, "Paris")
	require.NoError(t, err)
	lower, err := service.CheckAnswer(ctx, "PARIS1", 7, "paris")
	require.NoError(t, err)
	assert.True(t, upper)
	assert.Equal(t, upper, lower)

	_, err = service.CheckAnswer(ctx, "PARIS1", 8, "paris")
	require.ErrorIs(t, err, domain.ErrQuestionNotFound)
}

func TestConcurrentUpdatesAreNotLost(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()
	_, err := service.Join(ctx, "ABC123", "alice")
	require.NoError(t, err)

	const n = 500
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = service.UpdateScore(ctx, "alice", "ABC123", true)
		}()
	}
	wg.Wait()

	alice, ok := participantOf(t, service, "ABC123", "alice")
	require.True(t, ok)
	assert.Equal(t, n, alice.Score)
}

func TestConcurrentJoinsCreateOneParticipant(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = service.Join(ctx, "ABC123", "alice")
			_, _ = service.Join(ctx, "ABC123", fmt.Sprintf("user-%d", i%8))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 9, countOf(t, service, "ABC123"))
}

func TestConcurrentReadsDuringUpdates(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	const writers, perWriter = 8, 100
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			name := fmt.Sprintf("user-%d", w)
			for i := 0; i < perWriter; i++ {
				_, _ = service.UpdateScore(ctx, name, "ABC123", true)
			}
		}(w)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			lb, err := service.GetLeaderboard(ctx, "ABC123")
			if err != nil {
				t.Errorf("leaderboard: %v", err)
				return
			}
			for j := 1; j < len(lb.Players); j++ {
				if lb.Players[j-1].Score < lb.Players[j].Score {
					t.Errorf("leaderboard not sorted: %+v", lb.Players)
					return
				}
			}
		}
	}()
	wg.Wait()
	<-done

	for _, entry := range leaderboardOf(t, service, "ABC123").Players {
		assert.Equal(t, perWriter, entry.Score, entry.Username)
	}
}

func TestCreateQuizAssignsCodeAndID(t *testing.T) {
	ctx := context.Background()
	service, catalog := newTestService()

	created, err := service.CreateQuiz(ctx, domain.Quiz{
		Title: "  Planets ",
		Questions: []domain.Question{
			{Text: "Largest planet?", Options: []string{"Jupiter", "Mars"}, CorrectAnswer: "Jupiter"},
			{Text: "Red planet?", Options: []string{"Jupiter", "Mars"}, CorrectAnswer: "Mars", TimeLimitSeconds: 15},
		},
	})
	require.NoError(t, err)
	assert.Regexp(t, `^[A-Z0-9]{6}$`, created.Code)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Planets", created.Title)
	assert.Equal(t, 1, created.Questions[0].ID)
	assert.Equal(t, 2, created.Questions[1].ID)
	assert.Equal(t, 30, created.Questions[0].TimeLimitSeconds)
	assert.Equal(t, 15, created.Questions[1].TimeLimitSeconds)

	stored, err := catalog.GetQuizByCode(ctx, created.Code)
	require.NoError(t, err)
	assert.Equal(t, created, stored)

	valid, err := service.ValidateCode(ctx, created.Code)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestCreateQuizRejectsInvalidDefinitions(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	cases := map[string]domain.Quiz{
		"no title":     {Questions: []domain.Question{{Text: "q", CorrectAnswer: "a"}}},
		"no questions": {Title: "Empty"},
		"no answer":    {Title: "T", Questions: []domain.Question{{Text: "q"}}},
		"duplicate id": {Title: "T", Questions: []domain.Question{{ID: 1, Text: "q", CorrectAnswer: "a"}, {ID: 1, Text: "r", CorrectAnswer: "b"}}},
	}
	for name, quiz := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := service.CreateQuiz(ctx, quiz)
			require.ErrorIs(t, err, domain.ErrInvalidQuiz)
		})
	}
}

func TestJoinRequiresUsername(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	_, err := service.Join(ctx, "ABC123", "")
	require.ErrorIs(t, err, domain.ErrEmptyUsername)
	_, err = service.UpdateScore(ctx, "", "ABC123", true)
	require.ErrorIs(t, err, domain.ErrEmptyUsername)
	assert.Equal(t, 0, countOf(t, service, "ABC123"))
}

func TestCreateQuizNumbersMissingIDsAfterExplicitOnes(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	created, err := service.CreateQuiz(ctx, domain.Quiz{
		Title: "Mixed ids",
		Questions: []domain.Question{
			{Text: "first", CorrectAnswer: "a"},
			{ID: 1, Text: "second", CorrectAnswer: "b"},
			{Text: "third", CorrectAnswer: "c"},
			{ID: 5, Text: "fourth", CorrectAnswer: "d"},
		},
	})
	require.NoError(t, err)
	ids := make([]int, 0, len(created.Questions))
	for _, q := range created.Questions {
		ids = append(ids, q.ID)
	}
	assert.Equal(t, []int{6, 1, 7, 5}, ids)
}

func TestUpdateQuizIsVisibleThroughCache(t *testing.T) {
	ctx := context.Background()
	backing := memory.NewCatalog(domain.Quiz{
		ID:        "quiz-1",
		Code:      "ABC123",
		Title:     "Colours",
		CreatedBy: "host",
		Questions: []domain.Question{{ID: 1, Text: "Sky?", CorrectAnswer: "Blue"}},
	})
	service := app.NewQuizService(memory.NewSessionStore(), memory.NewCachedCatalog(backing, time.Hour), nil)

	correct, err := service.CheckAnswer(ctx, "ABC123", 1, "blue")
	require.NoError(t, err)
	require.True(t, correct)

	updated, err := service.UpdateQuiz(ctx, "ABC123", domain.Quiz{
		Title:     "Sunset colours",
		Questions: []domain.Question{{ID: 1, Text: "Sky at sunset?", CorrectAnswer: "Orange"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "quiz-1", updated.ID)
	assert.Equal(t, "ABC123", updated.Code)
	assert.Equal(t, "host", updated.CreatedBy)
	assert.Equal(t, "Sunset colours", updated.Title)

	correct, err = service.CheckAnswer(ctx, "ABC123", 1, "blue")
	require.NoError(t, err)
	assert.False(t, correct, "old answer must not survive the edit")
	correct, err = service.CheckAnswer(ctx, "ABC123", 1, "orange")
	require.NoError(t, err)
	assert.True(t, correct)
}

func TestUpdateQuizErrors(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	_, err := service.UpdateQuiz(ctx, "ZZZZZZ", domain.Quiz{Title: "T", Questions: []domain.Question{{Text: "q", CorrectAnswer: "a"}}})
	require.ErrorIs(t, err, domain.ErrQuizNotFound)
	_, err = service.UpdateQuiz(ctx, "ABC123", domain.Quiz{Title: "T"})
	require.ErrorIs(t, err, domain.ErrInvalidQuiz)

	stored, err := service.GetQuiz(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, "Colours", stored.Title, "rejected edits leave the quiz untouched")
}

func TestDeleteQuiz(t *testing.T) {
	ctx := context.Background()
	backing := memory.NewCatalog(domain.Quiz{
		Code: "ABC123", Title: "Colours",
		Questions: []domain.Question{{ID: 1, Text: "Sky?", CorrectAnswer: "Blue"}},
	})
	service := app.NewQuizService(memory.NewSessionStore(), memory.NewCachedCatalog(backing, time.Hour), nil)
	_, err := service.Join(ctx, "ABC123", "alice")
	require.NoError(t, err)

	require.NoError(t, service.DeleteQuiz(ctx, "ABC123"))
	require.ErrorIs(t, service.DeleteQuiz(ctx, "ABC123"), domain.ErrQuizNotFound)

	_, err = service.Join(ctx, "ABC123", "bob")
	require.ErrorIs(t, err, domain.ErrQuizNotFound)
	valid, err := service.ValidateCode(ctx, "ABC123")
	require.NoError(t, err)
	assert.False(t, valid)
	codes, err := service.QuizCodes(ctx)
	require.NoError(t, err)
	assert.Empty(t, codes)
	assert.Equal(t, 1, countOf(t, service, "ABC123"), "open ledgers stay readable")
}

func TestListQuizzesByAuthor(t *testing.T) {
	ctx := context.Background()
	service, catalog := newTestService()
	require.NoError(t, catalog.SaveQuiz(ctx, domain.Quiz{Code: "MINE01", Title: "Mine", CreatedBy: "ana@example.com"}))
	require.NoError(t, catalog.SaveQuiz(ctx, domain.Quiz{Code: "MINE02", Title: "Mine too", CreatedBy: "ana@example.com"}))
	require.NoError(t, catalog.SaveQuiz(ctx, domain.Quiz{Code: "OTHER1", Title: "Theirs", CreatedBy: "ben@example.com"}))

	mine, err := service.ListQuizzes(ctx, "ana@example.com")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "MINE01", mine[0].Code)
	assert.Equal(t, "MINE02", mine[1].Code)

	all, err := service.ListQuizzes(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	none, err := service.ListQuizzes(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func newTestService() (*app.QuizService, *memory.Catalog) {
	catalog := memory.NewCatalog(domain.Quiz{
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
	})
	return app.NewQuizService(memory.NewSessionStore(), catalog, nil), catalog
}

func leaderboardOf(t *testing.T, service *app.QuizService, code string) domain.Leaderboard {
	t.Helper()
	lb, err := service.GetLeaderboard(context.Background(), code)
	require.NoError(t, err)
	return lb
}

func countOf(t *testing.T, service *app.QuizService, code string) int {
	t.Helper()
	n, err := service.GetParticipantCount(context.Background(), code)
	require.NoError(t, err)
	return n
}

func participantOf(t *testing.T, service *app.QuizService, code, username string) (domain.Participant, bool) {
	t.Helper()
	p, ok, err := service.GetParticipant(context.Background(), code, username)
	require.NoError(t, err)
	return p, ok
}
