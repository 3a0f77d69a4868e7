package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/TungDuong1712/lawyer-crawling-system/internal/crawler"
)

// TargetStore implements crawler.TargetStore on Postgres. Claims are a
// single conditional UPDATE so exactly one worker can win a target.
type TargetStore struct {
	pool dbPool
}

// NewTargetStore wraps an existing pool.
func NewTargetStore(pool dbPool) *TargetStore {
	return &TargetStore{pool: pool}
}

const targetColumns = `
	id, session_id, url, site, category, region, locality,
	status, attempts, records_found, error_text, task_handle,
	created_at, started_at, completed_at`

// CreateTargets inserts a batch of target rows.
func (s *TargetStore) CreateTargets(ctx context.Context, targets []crawler.DiscoveryTarget) error {
	query := `
		INSERT INTO discovery_targets (` + targetColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15);`
	for _, t := range targets {
		_, err := s.pool.Exec(ctx, query,
			t.ID, t.SessionID, t.URL,
			t.Facets.Site, t.Facets.Category, t.Facets.Region, t.Facets.Locality,
			t.Status, t.Attempts, t.RecordsFound, t.ErrorText, t.TaskHandle,
			t.Created, t.Started, t.Completed,
		)
		if err != nil {
			return fmt.Errorf("insert target %s: %w", t.ID, err)
		}
	}
	return nil
}

// GetTarget retrieves a target by ID.
func (s *TargetStore) GetTarget(ctx context.Context, id string) (crawler.DiscoveryTarget, error) {
	query := `SELECT ` + targetColumns + ` FROM discovery_targets WHERE id = $1;`
	t, err := scanTarget(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.DiscoveryTarget{}, crawler.ErrNotFound
		}
		return crawler.DiscoveryTarget{}, fmt.Errorf("get target: %w", err)
	}
	return t, nil
}

// ClaimTarget atomically transitions PENDING or RETRYING to RUNNING and
// increments the attempt counter.
func (s *TargetStore) ClaimTarget(ctx context.Context, id string, at time.Time) (crawler.DiscoveryTarget, error) {
	query := `
		UPDATE discovery_targets
		SET status = $1, attempts = attempts + 1, started_at = COALESCE(started_at, $2)
		WHERE id = $3 AND status IN ($4, $5)
		RETURNING ` + targetColumns + `;`
	t, err := scanTarget(s.pool.QueryRow(ctx, query,
		crawler.TargetStatusRunning, at, id,
		crawler.TargetStatusPending, crawler.TargetStatusRetrying))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return crawler.DiscoveryTarget{}, fmt.Errorf("claim target: %w", err)
	}

	// No claimable row: distinguish a missing target from a lost race.
	var exists bool
	checkErr := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM discovery_targets WHERE id = $1);`, id).Scan(&exists)
	if checkErr != nil {
		return crawler.DiscoveryTarget{}, fmt.Errorf("claim target: %w", checkErr)
	}
	if !exists {
		return crawler.DiscoveryTarget{}, crawler.ErrNotFound
	}
	return crawler.DiscoveryTarget{}, crawler.ErrAlreadyClaimed
}

// CompleteTarget records a successful crawl.
func (s *TargetStore) CompleteTarget(ctx context.Context, id string, recordsFound int, at time.Time) error {
	query := `
		UPDATE discovery_targets
		SET status = $1, records_found = $2, error_text = '', completed_at = $3
		WHERE id = $4;`
	return s.exec(ctx, "complete target", query, crawler.TargetStatusCompleted, recordsFound, at, id)
}

// FailTarget records a terminal failure.
func (s *TargetStore) FailTarget(ctx context.Context, id string, errText string, at time.Time) error {
	query := `
		UPDATE discovery_targets
		SET status = $1, error_text = $2, completed_at = $3
		WHERE id = $4;`
	return s.exec(ctx, "fail target", query, crawler.TargetStatusFailed, errText, at, id)
}

// MarkTargetRetrying parks a RUNNING target for a later reattempt.
func (s *TargetStore) MarkTargetRetrying(ctx context.Context, id string, errText string) error {
	query := `
		UPDATE discovery_targets
		SET status = $1, error_text = $2
		WHERE id = $3;`
	return s.exec(ctx, "mark target retrying", query, crawler.TargetStatusRetrying, errText, id)
}

// SetTaskHandle records the queue handle of the dispatched task.
func (s *TargetStore) SetTaskHandle(ctx context.Context, id string, handle string) error {
	query := `UPDATE discovery_targets SET task_handle = $1 WHERE id = $2;`
	return s.exec(ctx, "set task handle", query, handle, id)
}

// ListTargets returns every target belonging to a session, oldest first.
func (s *TargetStore) ListTargets(ctx context.Context, sessionID string) ([]crawler.DiscoveryTarget, error) {
	query := `SELECT ` + targetColumns + ` FROM discovery_targets WHERE session_id = $1 ORDER BY created_at;`
	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var out []crawler.DiscoveryTarget
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan target row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CountTargets aggregates target outcomes for a session.
func (s *TargetStore) CountTargets(ctx context.Context, sessionID string) (crawler.TargetCounts, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = $1),
			COUNT(*) FILTER (WHERE status = $2)
		FROM discovery_targets
		WHERE session_id = $3;`
	var c crawler.TargetCounts
	err := s.pool.QueryRow(ctx, query,
		crawler.TargetStatusCompleted, crawler.TargetStatusFailed, sessionID).
		Scan(&c.Total, &c.Completed, &c.Failed)
	if err != nil {
		return crawler.TargetCounts{}, fmt.Errorf("count targets: %w", err)
	}
	return c, nil
}

func (s *TargetStore) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.RowsAffected() == 0 {
		return crawler.ErrNotFound
	}
	return nil
}

func scanTarget(row pgx.Row) (crawler.DiscoveryTarget, error) {
	var t crawler.DiscoveryTarget
	err := row.Scan(
		&t.ID, &t.SessionID, &t.URL,
		&t.Facets.Site, &t.Facets.Category, &t.Facets.Region, &t.Facets.Locality,
		&t.Status, &t.Attempts, &t.RecordsFound, &t.ErrorText, &t.TaskHandle,
		&t.Created, &t.Started, &t.Completed,
	)
	return t, err
}
