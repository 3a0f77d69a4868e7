// Package discovery executes the first crawl pass: fetch a listing page,
// extract summary records and schedule detail crawls for the links found.
package discovery

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/TungDuong1712/lawyer-crawling-system/internal/crawler"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/facets"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/metrics"
)

// Unit runs discovery tasks against one listing URL at a time.
type Unit struct {
	targets  crawler.TargetStore
	records  crawler.RecordStore
	blobs    crawler.BlobStore
	queue    crawler.Queue
	fetcher  crawler.Fetcher
	headless crawler.Fetcher
	parser   crawler.Parser
	hasher   crawler.Hasher
	clock    crawler.Clock
	ids      crawler.IDGenerator
	sites    map[string]crawler.SiteProfile
	logger   *zap.Logger
}

// New constructs a discovery Unit. The headless fetcher may be nil, in
// which case blocked pages fail through the normal retry path.
func New(
	targets crawler.TargetStore,
	records crawler.RecordStore,
	blobs crawler.BlobStore,
	queue crawler.Queue,
	fetcher crawler.Fetcher,
	headless crawler.Fetcher,
	parser crawler.Parser,
	hasher crawler.Hasher,
	clock crawler.Clock,
	ids crawler.IDGenerator,
	sites map[string]crawler.SiteProfile,
	logger *zap.Logger,
) *Unit {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Unit{
		targets:  targets,
		records:  records,
		blobs:    blobs,
		queue:    queue,
		fetcher:  fetcher,
		headless: headless,
		parser:   parser,
		hasher:   hasher,
		clock:    clock,
		ids:      ids,
		sites:    sites,
		logger:   logger,
	}
}

// Execute claims the task's target, crawls it and persists the extracted
// records. A lost claim is a no-op; every other failure is returned for
// the retry controller to classify.
func (u *Unit) Execute(ctx context.Context, task crawler.Task) (int, error) {
	target, err := u.targets.ClaimTarget(ctx, task.TargetID, u.clock.Now())
	if errors.Is(err, crawler.ErrAlreadyClaimed) {
		u.logger.Debug("target already claimed, dropping task",
			zap.String("target_id", task.TargetID))
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("claim target %s: %w", task.TargetID, err)
	}

	profile, ok := u.sites[target.Facets.Site]
	if !ok {
		return 0, fmt.Errorf("no site profile for %q", target.Facets.Site)
	}

	resp, err := u.fetch(ctx, crawler.FetchRequest{URL: target.URL})
	if err != nil {
		return 0, err
	}
	metrics.ObserveFetch(target.URL, resp.Duration)

	summaries, err := u.parser.ParseList(resp.Body, profile.ListSelectors, target.URL)
	if err != nil {
		return 0, err
	}

	u.snapshot(ctx, fmt.Sprintf("sessions/%s/targets/%s.html", target.SessionID, target.ID), resp)

	found := 0
	for _, summary := range summaries {
		record, err := u.persistSummary(ctx, target, summary)
		if err != nil {
			u.logger.Warn("persist record failed",
				zap.String("target_id", target.ID),
				zap.String("name", summary.Name),
				zap.Error(err))
			continue
		}
		found++
		u.scheduleDetail(ctx, target.SessionID, record)
	}

	if err := u.targets.CompleteTarget(ctx, target.ID, found, u.clock.Now()); err != nil {
		return found, fmt.Errorf("complete target %s: %w", target.ID, err)
	}
	metrics.ObserveTarget(target.URL, "completed")
	u.logger.Info("target crawled",
		zap.String("session_id", target.SessionID),
		zap.String("target_id", target.ID),
		zap.Int("records_found", found))
	return found, nil
}

// fetch runs the plain HTTP fetcher and escalates to the headless browser
// when the page serves an anti-bot challenge.
func (u *Unit) fetch(ctx context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	resp, err := u.fetcher.Fetch(ctx, req)
	if err == nil {
		return resp, nil
	}
	var fe *crawler.FetchError
	if u.headless == nil || !errors.As(err, &fe) || fe.Kind != crawler.FetchBlocked {
		return crawler.FetchResponse{}, err
	}

	u.logger.Info("page blocked, escalating to headless browser", zap.String("url", req.URL))
	resp, headlessErr := u.headless.Fetch(ctx, req)
	if headlessErr != nil {
		return crawler.FetchResponse{}, headlessErr
	}
	return resp, nil
}

func (u *Unit) persistSummary(ctx context.Context, target crawler.DiscoveryTarget, s crawler.SummaryRecord) (crawler.Record, error) {
	key, err := facets.IdentityKey(u.hasher, target.Facets.Site, s.Name, s.Address)
	if err != nil {
		return crawler.Record{}, fmt.Errorf("identity key: %w", err)
	}
	id, err := u.ids.NewID()
	if err != nil {
		return crawler.Record{}, fmt.Errorf("new record id: %w", err)
	}

	now := u.clock.Now()
	record := crawler.Record{
		ID:          id,
		SessionID:   target.SessionID,
		IdentityKey: key,
		Name:        s.Name,
		Phone:       s.Phone,
		Address:     s.Address,
		Website:     s.Website,
		Email:       s.Email,
		Categories:  s.Categories,
		Description: s.Description,
		DetailURL:   s.DetailURL,
		SourceSite:  target.Facets.Site,
		SourceURL:   target.URL,
		Facets:      target.Facets,
		Created:     now,
		Updated:     now,
	}
	record.CompletenessScore = crawler.CompletenessScoreOf(record)
	record.QualityScore = crawler.QualityScoreOf(record)

	stored, created, err := u.records.UpsertRecord(ctx, record)
	if err != nil {
		return crawler.Record{}, err
	}
	metrics.ObserveRecord(target.Facets.Site, created)
	return stored, nil
}

// scheduleDetail enqueues a second-pass crawl unless the record has no
// detail link or was already enriched by an earlier session.
func (u *Unit) scheduleDetail(ctx context.Context, sessionID string, record crawler.Record) {
	if record.DetailURL == "" || record.DetailEnriched {
		return
	}
	task := crawler.Task{
		Kind:      crawler.TaskDetail,
		SessionID: sessionID,
		RecordID:  record.ID,
	}
	if err := u.queue.Enqueue(ctx, task); err != nil {
		u.logger.Error("enqueue detail task failed",
			zap.String("record_id", record.ID),
			zap.Error(err))
	}
}

func (u *Unit) snapshot(ctx context.Context, path string, resp crawler.FetchResponse) {
	if u.blobs == nil {
		return
	}
	contentType := resp.Headers.Get("Content-Type")
	if contentType == "" {
		contentType = "text/html; charset=utf-8"
	}
	uri, err := u.blobs.PutObject(ctx, path, contentType, resp.Body)
	if err != nil {
		u.logger.Warn("snapshot upload failed", zap.String("path", path), zap.Error(err))
		return
	}
	u.logger.Debug("snapshot stored", zap.String("uri", uri))
}
