package enrich

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/TungDuong1712/lawyer-crawling-system/internal/crawler"
)

// Service dispatches and executes enrichment lookups. Dispatch validates
// and records a pending attempt; Execute performs the API call from the
// queue and persists the outcome.
type Service struct {
	records crawler.RecordStore
	lookups crawler.LookupStore
	queue   crawler.Queue
	client  *Client
	clock   crawler.Clock
	ids     crawler.IDGenerator
	logger  *zap.Logger
}

// NewService constructs a Service.
func NewService(
	records crawler.RecordStore,
	lookups crawler.LookupStore,
	queue crawler.Queue,
	client *Client,
	clock crawler.Clock,
	ids crawler.IDGenerator,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		records: records,
		lookups: lookups,
		queue:   queue,
		client:  client,
		clock:   clock,
		ids:     ids,
		logger:  logger,
	}
}

// Dispatch validates the record, records a PENDING attempt and enqueues
// the lookup task. Validation failures happen before any attempt row is
// written; a lookup already in flight is reported to the caller.
func (s *Service) Dispatch(ctx context.Context, recordID string) (crawler.LookupAttempt, error) {
	record, err := s.records.GetRecord(ctx, recordID)
	if err != nil {
		return crawler.LookupAttempt{}, fmt.Errorf("load record %s: %w", recordID, err)
	}

	query, err := buildQuery(record)
	if err != nil {
		return crawler.LookupAttempt{}, err
	}

	id, err := s.ids.NewID()
	if err != nil {
		return crawler.LookupAttempt{}, fmt.Errorf("new attempt id: %w", err)
	}
	attempt := crawler.LookupAttempt{
		ID:           id,
		RecordID:     record.ID,
		QueryName:    query.Name,
		QueryCompany: query.Company,
		QueryDomain:  query.Domain,
		Status:       crawler.LookupStatusPending,
		Created:      s.clock.Now(),
	}
	if err := s.lookups.CreateAttempt(ctx, attempt); err != nil {
		return crawler.LookupAttempt{}, err
	}

	task := crawler.Task{Kind: crawler.TaskLookup, RecordID: record.ID}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		return crawler.LookupAttempt{}, fmt.Errorf("enqueue lookup task: %w", err)
	}
	return attempt, nil
}

// Execute runs the pending lookup attempt for a record. Without a pending
// attempt the task is dropped, which makes redeliveries harmless.
func (s *Service) Execute(ctx context.Context, recordID string) error {
	attempt, ok, err := s.pendingAttempt(ctx, recordID)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Debug("no pending lookup attempt, dropping task",
			zap.String("record_id", recordID))
		return nil
	}

	result, err := s.client.LookupPerson(ctx, Query{
		Name:    attempt.QueryName,
		Company: attempt.QueryCompany,
		Domain:  attempt.QueryDomain,
	})
	if err != nil {
		if crawler.Retryable(err) {
			return err
		}
		outcome := crawler.LookupAttempt{
			Status:    crawler.LookupStatusError,
			ErrorText: err.Error(),
		}
		if completeErr := s.lookups.CompleteAttempt(ctx, attempt.ID, outcome, s.clock.Now()); completeErr != nil {
			return fmt.Errorf("record lookup failure: %w", completeErr)
		}
		var le *crawler.LookupError
		if errors.As(err, &le) && le.Kind == crawler.LookupAuthError {
			s.logger.Error("enrichment credentials rejected", zap.Error(err))
		}
		return nil
	}

	outcome := crawler.LookupAttempt{
		Status:      crawler.LookupStatusNotFound,
		Confidence:  result.Confidence,
		CreditCost:  result.CreditCost,
		RawResponse: result.Raw,
	}
	if result.Found {
		outcome.Status = crawler.LookupStatusFound
		outcome.Email = result.Email
		outcome.Phone = result.Phone
	}
	if err := s.lookups.CompleteAttempt(ctx, attempt.ID, outcome, s.clock.Now()); err != nil {
		return fmt.Errorf("record lookup outcome: %w", err)
	}

	if result.Found {
		s.applyContact(ctx, recordID, result)
	}
	return nil
}

// applyContact folds verified contact details back into the record.
func (s *Service) applyContact(ctx context.Context, recordID string, result Result) {
	record, err := s.records.GetRecord(ctx, recordID)
	if err != nil {
		s.logger.Warn("reload record after lookup failed", zap.String("record_id", recordID), zap.Error(err))
		return
	}
	if result.Email != "" {
		record.Email = result.Email
	}
	if result.Phone != "" {
		record.Phone = result.Phone
	}
	record.CompletenessScore = crawler.CompletenessScoreOf(record)
	record.QualityScore = crawler.QualityScoreOf(record)
	record.Updated = s.clock.Now()
	if _, _, err := s.records.UpsertRecord(ctx, record); err != nil {
		s.logger.Warn("apply verified contact failed", zap.String("record_id", recordID), zap.Error(err))
	}
}

// Account reports the lookup API account state.
func (s *Service) Account(ctx context.Context) (AccountInfo, error) {
	return s.client.Account(ctx)
}

// Abandon closes the pending attempt as ERROR after retries ran out.
func (s *Service) Abandon(ctx context.Context, recordID string, cause error) error {
	attempt, ok, err := s.pendingAttempt(ctx, recordID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	outcome := crawler.LookupAttempt{
		Status:    crawler.LookupStatusError,
		ErrorText: cause.Error(),
	}
	return s.lookups.CompleteAttempt(ctx, attempt.ID, outcome, s.clock.Now())
}

func (s *Service) pendingAttempt(ctx context.Context, recordID string) (crawler.LookupAttempt, bool, error) {
	attempts, err := s.lookups.ListAttempts(ctx, recordID)
	if err != nil {
		return crawler.LookupAttempt{}, false, fmt.Errorf("list attempts for %s: %w", recordID, err)
	}
	for i := len(attempts) - 1; i >= 0; i-- {
		if attempts[i].Status == crawler.LookupStatusPending {
			return attempts[i], true, nil
		}
	}
	return crawler.LookupAttempt{}, false, nil
}

// buildQuery derives the lookup query from the record. A record without
// a name cannot be looked up at all.
func buildQuery(record crawler.Record) (Query, error) {
	name := strings.TrimSpace(record.Name)
	if name == "" {
		return Query{}, fmt.Errorf("record %s has no name to look up", record.ID)
	}
	q := Query{Name: name, Company: name}
	if record.Website != "" {
		if u, err := url.Parse(record.Website); err == nil && u.Host != "" {
			q.Domain = strings.TrimPrefix(u.Host, "www.")
		}
	}
	return q, nil
}
