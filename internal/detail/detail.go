// Package detail executes the second crawl pass: fetch a record's own
// profile page and merge the richer fields into the stored record.
package detail

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/TungDuong1712/lawyer-crawling-system/internal/crawler"
)

// Unit runs detail tasks for one record at a time.
type Unit struct {
	records  crawler.RecordStore
	blobs    crawler.BlobStore
	fetcher  crawler.Fetcher
	headless crawler.Fetcher
	parser   crawler.Parser
	clock    crawler.Clock
	sites    map[string]crawler.SiteProfile
	logger   *zap.Logger
}

// New constructs a detail Unit.
func New(
	records crawler.RecordStore,
	blobs crawler.BlobStore,
	fetcher crawler.Fetcher,
	headless crawler.Fetcher,
	parser crawler.Parser,
	clock crawler.Clock,
	sites map[string]crawler.SiteProfile,
	logger *zap.Logger,
) *Unit {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Unit{
		records:  records,
		blobs:    blobs,
		fetcher:  fetcher,
		headless: headless,
		parser:   parser,
		clock:    clock,
		sites:    sites,
		logger:   logger,
	}
}

// Execute crawls the record's detail page. Records already enriched are
// skipped, which makes redelivered tasks harmless.
func (u *Unit) Execute(ctx context.Context, task crawler.Task) error {
	record, err := u.records.GetRecord(ctx, task.RecordID)
	if err != nil {
		return fmt.Errorf("load record %s: %w", task.RecordID, err)
	}
	if record.DetailEnriched {
		u.logger.Debug("record already enriched, dropping task",
			zap.String("record_id", record.ID))
		return nil
	}
	if record.DetailURL == "" {
		return nil
	}

	profile, ok := u.sites[record.SourceSite]
	if !ok {
		return fmt.Errorf("no site profile for %q", record.SourceSite)
	}

	resp, err := u.fetch(ctx, crawler.FetchRequest{URL: record.DetailURL})
	if err != nil {
		return err
	}

	fields, err := u.parser.ParseDetail(resp.Body, profile.DetailSelectors)
	if err != nil {
		var pe *crawler.ParseError
		if errors.As(err, &pe) && pe.URL == "" {
			pe.URL = record.DetailURL
		}
		return err
	}

	u.snapshot(ctx, fmt.Sprintf("sessions/%s/records/%s.html", record.SessionID, record.ID), resp)

	merged := record
	applyDetail(&merged.Detail, fields)
	completeness := crawler.CompletenessScoreOf(merged)
	quality := crawler.QualityScoreOf(merged)

	if err := u.records.UpdateRecordDetail(ctx, record.ID, fields, completeness, quality, u.clock.Now()); err != nil {
		return fmt.Errorf("update record detail %s: %w", record.ID, err)
	}
	u.logger.Info("record detail enriched",
		zap.String("record_id", record.ID),
		zap.Float64("quality_score", quality))
	return nil
}

func (u *Unit) fetch(ctx context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	resp, err := u.fetcher.Fetch(ctx, req)
	if err == nil {
		return resp, nil
	}
	var fe *crawler.FetchError
	if u.headless == nil || !errors.As(err, &fe) || fe.Kind != crawler.FetchBlocked {
		return crawler.FetchResponse{}, err
	}
	u.logger.Info("detail page blocked, escalating to headless browser", zap.String("url", req.URL))
	return u.headless.Fetch(ctx, req)
}

func (u *Unit) snapshot(ctx context.Context, path string, resp crawler.FetchResponse) {
	if u.blobs == nil {
		return
	}
	contentType := resp.Headers.Get("Content-Type")
	if contentType == "" {
		contentType = "text/html; charset=utf-8"
	}
	if _, err := u.blobs.PutObject(ctx, path, contentType, resp.Body); err != nil {
		u.logger.Warn("snapshot upload failed", zap.String("path", path), zap.Error(err))
	}
}

func applyDetail(dst *crawler.DetailFields, src crawler.DetailFields) {
	if src.Biography != "" {
		dst.Biography = src.Biography
	}
	if src.Attorneys != "" {
		dst.Attorneys = src.Attorneys
	}
	if src.OfficeLocations != "" {
		dst.OfficeLocations = src.OfficeLocations
	}
	if src.Services != "" {
		dst.Services = src.Services
	}
	if src.Experience != "" {
		dst.Experience = src.Experience
	}
}
