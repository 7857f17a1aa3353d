package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"quiz-session-engine/internal/domain"
)

// Session is the in-process Ledger of one quiz: its participants and their
// scores. All ledger reads and writes hold mu.
type Session struct {
	code      string
	createdAt time.Time
	now       func() time.Time

	mu           sync.RWMutex
	participants map[string]*domain.Participant
	// order records ledger insertion order; it is the leaderboard tie-break.
	order []string
}

// NewSession is exported for infrastructure layers that own the session map.
func NewSession(code string) *Session {
	return NewSessionWithClock(code, time.Now)
}

// NewSessionWithClock allows deterministic timestamps in tests.
func NewSessionWithClock(code string, now func() time.Time) *Session {
	return &Session{
		code:         code,
		createdAt:    now(),
		now:          now,
		participants: make(map[string]*domain.Participant),
	}
}

// Code returns the join code the session belongs to.
func (s *Session) Code() string {
	return s.code
}

// CreatedAt reports when the session was first opened.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Join returns the existing participant or inserts a new one with score 0.
func (s *Session) Join(_ context.Context, username string) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if participant, ok := s.participants[username]; ok {
		return *participant, nil
	}
	return *s.insertLocked(username, 0), nil
}

// ApplyScore credits one point for a correct answer. Unknown users are
// registered on their first correct answer; incorrect answers never create
// an entry. The bool result reports whether the user is in the ledger.
func (s *Session) ApplyScore(_ context.Context, username string, correct bool) (domain.Participant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	participant, ok := s.participants[username]
	if !ok {
		if !correct {
			return domain.Participant{}, false, nil
		}
		return *s.insertLocked(username, 1), true, nil
	}
	if correct {
		participant.Score++
	}
	return *participant, true, nil
}

func (s *Session) insertLocked(username string, score int) *domain.Participant {
	participant := &domain.Participant{
		Username: username,
		QuizCode: s.code,
		Score:    score,
		JoinedAt: s.now(),
	}
	s.participants[username] = participant
	s.order = append(s.order, username)
	return participant
}

func (s *Session) ParticipantCount(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.participants), nil
}

func (s *Session) Participant(_ context.Context, username string) (domain.Participant, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	participant, ok := s.participants[username]
	if !ok {
		return domain.Participant{}, false, nil
	}
	return *participant, true, nil
}

// Leaderboard ranks the ledger. Entries are copied under the read lock and
// sorted outside it.
func (s *Session) Leaderboard(context.Context) (domain.Leaderboard, error) {
	s.mu.RLock()
	entries := make([]domain.LeaderboardEntry, 0, len(s.order))
	for _, username := range s.order {
		entries = append(entries, domain.LeaderboardEntry{
			Username: username,
			Score:    s.participants[username].Score,
		})
	}
	s.mu.RUnlock()

	RankEntries(entries)
	return domain.Leaderboard{
		QuizCode:  s.code,
		Players:   entries,
		UpdatedAt: s.now(),
	}, nil
}

// RankEntries sorts entries given in ledger insertion order by descending
// score. Equal scores keep insertion order, so repeated reads without updates
// are identical.
func RankEntries(entries []domain.LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
}
