package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/TungDuong1712/lawyer-crawling-system/internal/crawler"
)

// LookupStore implements crawler.LookupStore on Postgres.
type LookupStore struct {
	pool dbPool
}

// NewLookupStore wraps an existing pool.
func NewLookupStore(pool dbPool) *LookupStore {
	return &LookupStore{pool: pool}
}

// CreateAttempt inserts a PENDING attempt unless the record already has
// one pending. The conditional insert keeps the in-flight guard atomic.
func (s *LookupStore) CreateAttempt(ctx context.Context, a crawler.LookupAttempt) error {
	query := `
		INSERT INTO lookup_attempts (
			id, record_id, query_name, query_company, query_domain,
			status, email, phone, confidence, credit_cost,
			raw_response, error_text, created_at
		)
		SELECT $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
		WHERE NOT EXISTS (
			SELECT 1 FROM lookup_attempts
			WHERE record_id = $2 AND status = $14
		);`
	res, err := s.pool.Exec(ctx, query,
		a.ID, a.RecordID, a.QueryName, a.QueryCompany, a.QueryDomain,
		a.Status, a.Email, a.Phone, a.Confidence, a.CreditCost,
		a.RawResponse, a.ErrorText, a.Created,
		crawler.LookupStatusPending,
	)
	if err != nil {
		return fmt.Errorf("insert lookup attempt: %w", err)
	}
	if res.RowsAffected() == 0 {
		return crawler.ErrLookupInFlight
	}
	return nil
}

// CompleteAttempt records the outcome of a pending attempt.
func (s *LookupStore) CompleteAttempt(ctx context.Context, id string, a crawler.LookupAttempt, at time.Time) error {
	query := `
		UPDATE lookup_attempts SET
			status = $1, email = $2, phone = $3, confidence = $4,
			credit_cost = $5, raw_response = $6, error_text = $7, completed_at = $8
		WHERE id = $9;`
	res, err := s.pool.Exec(ctx, query,
		a.Status, a.Email, a.Phone, a.Confidence,
		a.CreditCost, a.RawResponse, a.ErrorText, at, id)
	if err != nil {
		return fmt.Errorf("complete lookup attempt: %w", err)
	}
	if res.RowsAffected() == 0 {
		return crawler.ErrNotFound
	}
	return nil
}

// ListAttempts returns all attempts for a record, oldest first.
func (s *LookupStore) ListAttempts(ctx context.Context, recordID string) ([]crawler.LookupAttempt, error) {
	query := `
		SELECT id, record_id, query_name, query_company, query_domain,
			status, email, phone, confidence, credit_cost,
			raw_response, error_text, created_at, completed_at
		FROM lookup_attempts
		WHERE record_id = $1
		ORDER BY created_at;`
	rows, err := s.pool.Query(ctx, query, recordID)
	if err != nil {
		return nil, fmt.Errorf("list lookup attempts: %w", err)
	}
	defer rows.Close()

	var out []crawler.LookupAttempt
	for rows.Next() {
		var a crawler.LookupAttempt
		err := rows.Scan(
			&a.ID, &a.RecordID, &a.QueryName, &a.QueryCompany, &a.QueryDomain,
			&a.Status, &a.Email, &a.Phone, &a.Confidence, &a.CreditCost,
			&a.RawResponse, &a.ErrorText, &a.Created, &a.Completed,
		)
		if err != nil {
			return nil, fmt.Errorf("scan lookup attempt row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
