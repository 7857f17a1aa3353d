package memory

import (
	"context"
	"sync"

	"quiz-session-engine/internal/app"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// Sessions live for the lifetime of the process.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) GetOrCreate(_ context.Context, code string) (app.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[code]; ok {
		return session, nil
	}
	session := app.NewSession(code)
	s.sessions[code] = session
	return session, nil
}

func (s *SessionStore) Get(_ context.Context, code string) (app.Ledger, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[code]
	if !ok {
		return nil, false, nil
	}
	return session, true, nil
}

// Len reports the number of open sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
