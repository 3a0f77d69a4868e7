package memory

import (
	"context"
	"sync"
	"time"

	"github.com/TungDuong1712/lawyer-crawling-system/internal/crawler"
)

// RecordStore keeps scraped records in memory, deduplicated by identity key.
type RecordStore struct {
	mu       sync.RWMutex
	records  map[string]crawler.Record
	identity map[string]string // identity key -> record ID
}

// NewRecordStore constructs a RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		records:  make(map[string]crawler.Record),
		identity: make(map[string]string),
	}
}

// UpsertRecord inserts the record or refreshes the summary fields of the
// existing row with the same identity key. Detail fields and the enriched
// flag of an existing row are never touched here.
func (s *RecordStore) UpsertRecord(_ context.Context, r crawler.Record) (crawler.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, ok := s.identity[r.IdentityKey]; ok {
		existing := s.records[existingID]
		refreshSummary(&existing, r)
		existing.Updated = r.Updated
		s.records[existingID] = existing
		return existing, false, nil
	}

	s.records[r.ID] = r
	s.identity[r.IdentityKey] = r.ID
	return r, true, nil
}

// GetRecord fetches a record by ID.
func (s *RecordStore) GetRecord(_ context.Context, id string) (crawler.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return crawler.Record{}, crawler.ErrNotFound
	}
	return r, nil
}

// UpdateRecordDetail merges detail fields field-by-field, flips the
// enriched flag and stores recomputed scores.
func (s *RecordStore) UpdateRecordDetail(_ context.Context, id string, d crawler.DetailFields, completeness, quality float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return crawler.ErrNotFound
	}
	mergeDetail(&r.Detail, d)
	r.DetailEnriched = true
	r.DetailError = ""
	r.CompletenessScore = completeness
	r.QualityScore = quality
	r.Updated = at
	s.records[id] = r
	return nil
}

// SetRecordDetailError notes a terminal detail-crawl failure on the record.
func (s *RecordStore) SetRecordDetailError(_ context.Context, id string, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return crawler.ErrNotFound
	}
	r.DetailError = note
	s.records[id] = r
	return nil
}

// ListRecords returns every record belonging to a session.
func (s *RecordStore) ListRecords(_ context.Context, sessionID string) ([]crawler.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []crawler.Record
	for _, r := range s.records {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

// refreshSummary overwrites the existing row's summary fields with any
// non-empty values from the fresh crawl.
func refreshSummary(existing *crawler.Record, fresh crawler.Record) {
	setIfNotEmpty(&existing.Name, fresh.Name)
	setIfNotEmpty(&existing.Phone, fresh.Phone)
	setIfNotEmpty(&existing.Address, fresh.Address)
	setIfNotEmpty(&existing.Website, fresh.Website)
	setIfNotEmpty(&existing.Email, fresh.Email)
	setIfNotEmpty(&existing.Categories, fresh.Categories)
	setIfNotEmpty(&existing.Description, fresh.Description)
	setIfNotEmpty(&existing.DetailURL, fresh.DetailURL)
	existing.CompletenessScore = crawler.CompletenessScoreOf(*existing)
}

func mergeDetail(existing *crawler.DetailFields, fresh crawler.DetailFields) {
	setIfNotEmpty(&existing.Biography, fresh.Biography)
	setIfNotEmpty(&existing.Attorneys, fresh.Attorneys)
	setIfNotEmpty(&existing.OfficeLocations, fresh.OfficeLocations)
	setIfNotEmpty(&existing.Services, fresh.Services)
	setIfNotEmpty(&existing.Experience, fresh.Experience)
}

func setIfNotEmpty(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
