package memory

import (
	"context"
	"sync"
	"time"

	"github.com/TungDuong1712/lawyer-crawling-system/internal/crawler"
)

// TargetStore keeps discovery targets in memory. Claim semantics match
// the SQL store: only one worker wins a claim for a given target.
type TargetStore struct {
	mu      sync.RWMutex
	targets map[string]crawler.DiscoveryTarget
}

// NewTargetStore constructs a TargetStore.
func NewTargetStore() *TargetStore {
	return &TargetStore{targets: make(map[string]crawler.DiscoveryTarget)}
}

// CreateTargets stores a batch of targets.
func (s *TargetStore) CreateTargets(_ context.Context, targets []crawler.DiscoveryTarget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range targets {
		s.targets[t.ID] = t
	}
	return nil
}

// GetTarget fetches a target by ID.
func (s *TargetStore) GetTarget(_ context.Context, id string) (crawler.DiscoveryTarget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.targets[id]
	if !ok {
		return crawler.DiscoveryTarget{}, crawler.ErrNotFound
	}
	return t, nil
}

// ClaimTarget atomically transitions PENDING or RETRYING to RUNNING and
// increments the attempt counter.
func (s *TargetStore) ClaimTarget(_ context.Context, id string, at time.Time) (crawler.DiscoveryTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	if !ok {
		return crawler.DiscoveryTarget{}, crawler.ErrNotFound
	}
	if t.Status != crawler.TargetStatusPending && t.Status != crawler.TargetStatusRetrying {
		return crawler.DiscoveryTarget{}, crawler.ErrAlreadyClaimed
	}
	t.Status = crawler.TargetStatusRunning
	t.Attempts++
	if t.Started == nil {
		t.Started = pointerTime(at)
	}
	s.targets[id] = t
	return t, nil
}

// CompleteTarget records a successful crawl.
func (s *TargetStore) CompleteTarget(_ context.Context, id string, recordsFound int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	if !ok {
		return crawler.ErrNotFound
	}
	t.Status = crawler.TargetStatusCompleted
	t.RecordsFound = recordsFound
	t.ErrorText = ""
	t.Completed = pointerTime(at)
	s.targets[id] = t
	return nil
}

// FailTarget records a terminal failure.
func (s *TargetStore) FailTarget(_ context.Context, id string, errText string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	if !ok {
		return crawler.ErrNotFound
	}
	t.Status = crawler.TargetStatusFailed
	t.ErrorText = errText
	t.Completed = pointerTime(at)
	s.targets[id] = t
	return nil
}

// MarkTargetRetrying parks a RUNNING target for a later reattempt.
func (s *TargetStore) MarkTargetRetrying(_ context.Context, id string, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	if !ok {
		return crawler.ErrNotFound
	}
	t.Status = crawler.TargetStatusRetrying
	t.ErrorText = errText
	s.targets[id] = t
	return nil
}

// SetTaskHandle records the queue handle of the dispatched task.
func (s *TargetStore) SetTaskHandle(_ context.Context, id string, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	if !ok {
		return crawler.ErrNotFound
	}
	t.TaskHandle = handle
	s.targets[id] = t
	return nil
}

// ListTargets returns every target belonging to a session.
func (s *TargetStore) ListTargets(_ context.Context, sessionID string) ([]crawler.DiscoveryTarget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []crawler.DiscoveryTarget
	for _, t := range s.targets {
		if t.SessionID == sessionID {
			out = append(out, t)
		}
	}
	return out, nil
}

// CountTargets aggregates target outcomes for a session.
func (s *TargetStore) CountTargets(_ context.Context, sessionID string) (crawler.TargetCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var c crawler.TargetCounts
	for _, t := range s.targets {
		if t.SessionID != sessionID {
			continue
		}
		c.Total++
		switch t.Status {
		case crawler.TargetStatusCompleted:
			c.Completed++
		case crawler.TargetStatusFailed:
			c.Failed++
		}
	}
	return c, nil
}
