package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/TungDuong1712/lawyer-crawling-system/internal/crawler"
)

// RecordStore implements crawler.RecordStore on Postgres. Deduplication
// rides on a unique index over identity_key; refreshes only overwrite a
// column when the fresh value is non-empty.
type RecordStore struct {
	pool dbPool
}

// NewRecordStore wraps an existing pool.
func NewRecordStore(pool dbPool) *RecordStore {
	return &RecordStore{pool: pool}
}

const recordColumns = `
	id, session_id, identity_key,
	name, phone, address, website, email, categories, description,
	detail_url, biography, attorneys, office_locations, services, experience,
	detail_enriched, detail_error,
	source_site, source_url, site, category, region, locality,
	completeness_score, quality_score, created_at, updated_at`

// UpsertRecord inserts the record or refreshes the summary fields of the
// row already holding its identity key. The xmax trick reports whether
// the row was freshly inserted.
func (s *RecordStore) UpsertRecord(ctx context.Context, r crawler.Record) (crawler.Record, bool, error) {
	query := `
		INSERT INTO records (` + recordColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28)
		ON CONFLICT (identity_key) DO UPDATE SET
			name = COALESCE(NULLIF(EXCLUDED.name, ''), records.name),
			phone = COALESCE(NULLIF(EXCLUDED.phone, ''), records.phone),
			address = COALESCE(NULLIF(EXCLUDED.address, ''), records.address),
			website = COALESCE(NULLIF(EXCLUDED.website, ''), records.website),
			email = COALESCE(NULLIF(EXCLUDED.email, ''), records.email),
			categories = COALESCE(NULLIF(EXCLUDED.categories, ''), records.categories),
			description = COALESCE(NULLIF(EXCLUDED.description, ''), records.description),
			detail_url = COALESCE(NULLIF(EXCLUDED.detail_url, ''), records.detail_url),
			completeness_score = EXCLUDED.completeness_score,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + recordColumns + `, (xmax = 0) AS inserted;`

	var (
		out      crawler.Record
		inserted bool
	)
	err := scanRecord(s.pool.QueryRow(ctx, query,
		r.ID, r.SessionID, r.IdentityKey,
		r.Name, r.Phone, r.Address, r.Website, r.Email, r.Categories, r.Description,
		r.DetailURL, r.Detail.Biography, r.Detail.Attorneys, r.Detail.OfficeLocations, r.Detail.Services, r.Detail.Experience,
		r.DetailEnriched, r.DetailError,
		r.SourceSite, r.SourceURL, r.Facets.Site, r.Facets.Category, r.Facets.Region, r.Facets.Locality,
		r.CompletenessScore, r.QualityScore, r.Created, r.Updated,
	), &out, &inserted)
	if err != nil {
		return crawler.Record{}, false, fmt.Errorf("upsert record: %w", err)
	}
	return out, inserted, nil
}

// GetRecord retrieves a record by ID.
func (s *RecordStore) GetRecord(ctx context.Context, id string) (crawler.Record, error) {
	query := `SELECT ` + recordColumns + `, false FROM records WHERE id = $1;`
	var (
		r        crawler.Record
		inserted bool
	)
	err := scanRecord(s.pool.QueryRow(ctx, query, id), &r, &inserted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.Record{}, crawler.ErrNotFound
		}
		return crawler.Record{}, fmt.Errorf("get record: %w", err)
	}
	return r, nil
}

// UpdateRecordDetail merges detail fields, flips the enriched flag and
// stores recomputed scores.
func (s *RecordStore) UpdateRecordDetail(ctx context.Context, id string, d crawler.DetailFields, completeness, quality float64, at time.Time) error {
	query := `
		UPDATE records SET
			biography = COALESCE(NULLIF($1, ''), biography),
			attorneys = COALESCE(NULLIF($2, ''), attorneys),
			office_locations = COALESCE(NULLIF($3, ''), office_locations),
			services = COALESCE(NULLIF($4, ''), services),
			experience = COALESCE(NULLIF($5, ''), experience),
			detail_enriched = true,
			detail_error = '',
			completeness_score = $6,
			quality_score = $7,
			updated_at = $8
		WHERE id = $9;`
	res, err := s.pool.Exec(ctx, query,
		d.Biography, d.Attorneys, d.OfficeLocations, d.Services, d.Experience,
		completeness, quality, at, id)
	if err != nil {
		return fmt.Errorf("update record detail: %w", err)
	}
	if res.RowsAffected() == 0 {
		return crawler.ErrNotFound
	}
	return nil
}

// SetRecordDetailError notes a terminal detail-crawl failure.
func (s *RecordStore) SetRecordDetailError(ctx context.Context, id string, note string) error {
	query := `UPDATE records SET detail_error = $1 WHERE id = $2;`
	res, err := s.pool.Exec(ctx, query, note, id)
	if err != nil {
		return fmt.Errorf("set record detail error: %w", err)
	}
	if res.RowsAffected() == 0 {
		return crawler.ErrNotFound
	}
	return nil
}

// ListRecords returns every record belonging to a session, oldest first.
func (s *RecordStore) ListRecords(ctx context.Context, sessionID string) ([]crawler.Record, error) {
	query := `SELECT ` + recordColumns + `, false FROM records WHERE session_id = $1 ORDER BY created_at;`
	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []crawler.Record
	for rows.Next() {
		var (
			r        crawler.Record
			inserted bool
		)
		if err := scanRecord(rows, &r, &inserted); err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row, r *crawler.Record, inserted *bool) error {
	return row.Scan(
		&r.ID, &r.SessionID, &r.IdentityKey,
		&r.Name, &r.Phone, &r.Address, &r.Website, &r.Email, &r.Categories, &r.Description,
		&r.DetailURL, &r.Detail.Biography, &r.Detail.Attorneys, &r.Detail.OfficeLocations, &r.Detail.Services, &r.Detail.Experience,
		&r.DetailEnriched, &r.DetailError,
		&r.SourceSite, &r.SourceURL, &r.Facets.Site, &r.Facets.Category, &r.Facets.Region, &r.Facets.Locality,
		&r.CompletenessScore, &r.QualityScore, &r.Created, &r.Updated,
		inserted,
	)
}
