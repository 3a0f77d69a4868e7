// Package memory provides store implementations for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/TungDuong1712/lawyer-crawling-system/internal/crawler"
)

// SessionStore keeps sessions in a map guarded by a single mutex.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]crawler.Session
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]crawler.Session)}
}

// CreateSession stores a new session.
func (s *SessionStore) CreateSession(_ context.Context, session crawler.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	s.sessions[session.ID] = session
	return nil
}

// GetSession fetches a session by ID.
func (s *SessionStore) GetSession(_ context.Context, id string) (crawler.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return crawler.Session{}, crawler.ErrNotFound
	}
	return session, nil
}

// MarkSessionRunning transitions PENDING to RUNNING and records the target total.
func (s *SessionStore) MarkSessionRunning(_ context.Context, id string, total int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return crawler.ErrNotFound
	}
	if session.Status != crawler.SessionStatusPending {
		return fmt.Errorf("session %s is %s, expected %s", id, session.Status, crawler.SessionStatusPending)
	}
	session.Status = crawler.SessionStatusRunning
	session.Counters.TotalURLs = total
	session.Started = pointerTime(at)
	s.sessions[id] = session
	return nil
}

// UpdateSessionProgress overwrites the counters and progress percentage.
func (s *SessionStore) UpdateSessionProgress(_ context.Context, id string, c crawler.SessionCounters, progress float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return crawler.ErrNotFound
	}
	session.Counters = c
	session.Progress = progress
	s.sessions[id] = session
	return nil
}

// FinishSession records the terminal status and completion time.
func (s *SessionStore) FinishSession(_ context.Context, id string, status crawler.SessionStatus, errText string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return crawler.ErrNotFound
	}
	session.Status = status
	session.ErrorText = errText
	session.Completed = pointerTime(at)
	s.sessions[id] = session
	return nil
}

// CancelSession flags the session so dispatch stops at the next check.
// Terminal sessions are left untouched.
func (s *SessionStore) CancelSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return crawler.ErrNotFound
	}
	switch session.Status {
	case crawler.SessionStatusDone, crawler.SessionStatusFailed, crawler.SessionStatusCancelled:
		return nil
	}
	session.Status = crawler.SessionStatusCancelled
	s.sessions[id] = session
	return nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
