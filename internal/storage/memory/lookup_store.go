package memory

import (
	"context"
	"sync"
	"time"

	"github.com/TungDuong1712/lawyer-crawling-system/internal/crawler"
)

// LookupStore keeps enrichment attempts in memory. History is append-only.
type LookupStore struct {
	mu       sync.RWMutex
	attempts map[string]crawler.LookupAttempt
	byRecord map[string][]string
}

// NewLookupStore constructs a LookupStore.
func NewLookupStore() *LookupStore {
	return &LookupStore{
		attempts: make(map[string]crawler.LookupAttempt),
		byRecord: make(map[string][]string),
	}
}

// CreateAttempt inserts a PENDING attempt. A record with an attempt still
// pending rejects a second one.
func (s *LookupStore) CreateAttempt(_ context.Context, a crawler.LookupAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.byRecord[a.RecordID] {
		if s.attempts[id].Status == crawler.LookupStatusPending {
			return crawler.ErrLookupInFlight
		}
	}
	s.attempts[a.ID] = a
	s.byRecord[a.RecordID] = append(s.byRecord[a.RecordID], a.ID)
	return nil
}

// CompleteAttempt records the outcome of a pending attempt.
func (s *LookupStore) CompleteAttempt(_ context.Context, id string, a crawler.LookupAttempt, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.attempts[id]
	if !ok {
		return crawler.ErrNotFound
	}
	existing.Status = a.Status
	existing.Email = a.Email
	existing.Phone = a.Phone
	existing.Confidence = a.Confidence
	existing.CreditCost = a.CreditCost
	existing.RawResponse = a.RawResponse
	existing.ErrorText = a.ErrorText
	existing.Completed = pointerTime(at)
	s.attempts[id] = existing
	return nil
}

// ListAttempts returns all attempts for a record, oldest first.
func (s *LookupStore) ListAttempts(_ context.Context, recordID string) ([]crawler.LookupAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byRecord[recordID]
	out := make([]crawler.LookupAttempt, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.attempts[id])
	}
	return out, nil
}
