package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/TungDuong1712/lawyer-crawling-system/internal/crawler"
)

// SessionStore implements crawler.SessionStore on Postgres.
type SessionStore struct {
	pool dbPool
}

// NewSessionStore wraps an existing pool.
func NewSessionStore(pool dbPool) *SessionStore {
	return &SessionStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *SessionStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// CreateSession inserts a new session row.
func (s *SessionStore) CreateSession(ctx context.Context, session crawler.Session) error {
	query := `
		INSERT INTO crawl_sessions (
			id, name, seed_urls, status,
			total_urls, crawled_urls, success_count, error_count,
			progress, error_text, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11);`
	_, err := s.pool.Exec(ctx, query,
		session.ID,
		session.Name,
		session.SeedURLs,
		session.Status,
		session.Counters.TotalURLs,
		session.Counters.CrawledURLs,
		session.Counters.SuccessCount,
		session.Counters.ErrorCount,
		session.Progress,
		session.ErrorText,
		session.Created,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *SessionStore) GetSession(ctx context.Context, id string) (crawler.Session, error) {
	query := `
		SELECT id, name, seed_urls, status,
			total_urls, crawled_urls, success_count, error_count,
			progress, error_text, created_at, started_at, completed_at
		FROM crawl_sessions
		WHERE id = $1;`
	var session crawler.Session
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&session.ID,
		&session.Name,
		&session.SeedURLs,
		&session.Status,
		&session.Counters.TotalURLs,
		&session.Counters.CrawledURLs,
		&session.Counters.SuccessCount,
		&session.Counters.ErrorCount,
		&session.Progress,
		&session.ErrorText,
		&session.Created,
		&session.Started,
		&session.Completed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.Session{}, crawler.ErrNotFound
		}
		return crawler.Session{}, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// MarkSessionRunning transitions PENDING to RUNNING and records the target total.
func (s *SessionStore) MarkSessionRunning(ctx context.Context, id string, total int, at time.Time) error {
	query := `
		UPDATE crawl_sessions
		SET status = $1, total_urls = $2, started_at = $3
		WHERE id = $4 AND status = $5;`
	res, err := s.pool.Exec(ctx, query, crawler.SessionStatusRunning, total, at, id, crawler.SessionStatusPending)
	if err != nil {
		return fmt.Errorf("mark session running: %w", err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("session %s is not pending", id)
	}
	return nil
}

// UpdateSessionProgress overwrites counters and the progress percentage.
func (s *SessionStore) UpdateSessionProgress(ctx context.Context, id string, c crawler.SessionCounters, progress float64) error {
	query := `
		UPDATE crawl_sessions
		SET total_urls = $1, crawled_urls = $2, success_count = $3, error_count = $4, progress = $5
		WHERE id = $6;`
	res, err := s.pool.Exec(ctx, query, c.TotalURLs, c.CrawledURLs, c.SuccessCount, c.ErrorCount, progress, id)
	if err != nil {
		return fmt.Errorf("update session progress: %w", err)
	}
	if res.RowsAffected() == 0 {
		return crawler.ErrNotFound
	}
	return nil
}

// FinishSession records the terminal status and completion time.
func (s *SessionStore) FinishSession(ctx context.Context, id string, status crawler.SessionStatus, errText string, at time.Time) error {
	query := `
		UPDATE crawl_sessions
		SET status = $1, error_text = $2, completed_at = $3
		WHERE id = $4;`
	res, err := s.pool.Exec(ctx, query, status, errText, at, id)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	if res.RowsAffected() == 0 {
		return crawler.ErrNotFound
	}
	return nil
}

// CancelSession flags a non-terminal session as CANCELLED.
func (s *SessionStore) CancelSession(ctx context.Context, id string) error {
	query := `
		UPDATE crawl_sessions
		SET status = $1
		WHERE id = $2 AND status IN ($3, $4);`
	_, err := s.pool.Exec(ctx, query,
		crawler.SessionStatusCancelled, id,
		crawler.SessionStatusPending, crawler.SessionStatusRunning)
	if err != nil {
		return fmt.Errorf("cancel session: %w", err)
	}
	return nil
}
