// Package session coordinates crawl sessions: seed expansion, dispatch
// and progress bookkeeping.
package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/TungDuong1712/lawyer-crawling-system/internal/crawler"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/facets"
)

// Coordinator owns the session lifecycle. Workers report terminal target
// outcomes back through OnTargetDone, which recomputes progress and
// finalizes the session when the last target lands.
type Coordinator struct {
	sessions  crawler.SessionStore
	targets   crawler.TargetStore
	queue     crawler.Queue
	extractor *facets.Extractor
	clock     crawler.Clock
	ids       crawler.IDGenerator
	sites     map[string]crawler.SiteProfile
	logger    *zap.Logger
}

// New constructs a Coordinator.
func New(
	sessions crawler.SessionStore,
	targets crawler.TargetStore,
	queue crawler.Queue,
	extractor *facets.Extractor,
	clock crawler.Clock,
	ids crawler.IDGenerator,
	sites map[string]crawler.SiteProfile,
	logger *zap.Logger,
) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		sessions:  sessions,
		targets:   targets,
		queue:     queue,
		extractor: extractor,
		clock:     clock,
		ids:       ids,
		sites:     sites,
		logger:    logger,
	}
}

// CreateSession registers a PENDING session over the given seed URLs.
func (c *Coordinator) CreateSession(ctx context.Context, name string, seeds []string) (crawler.Session, error) {
	if len(seeds) == 0 {
		return crawler.Session{}, fmt.Errorf("at least one seed URL is required")
	}
	id, err := c.ids.NewID()
	if err != nil {
		return crawler.Session{}, fmt.Errorf("new session id: %w", err)
	}
	session := crawler.Session{
		ID:       id,
		Name:     name,
		SeedURLs: seeds,
		Status:   crawler.SessionStatusPending,
		Created:  c.clock.Now(),
	}
	if err := c.sessions.CreateSession(ctx, session); err != nil {
		return crawler.Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// GenerateSeeds builds the cartesian product of sites, categories,
// regions and localities using each site's seed pattern. Unknown sites
// are skipped.
func (c *Coordinator) GenerateSeeds(siteNames, categories, regions, localities []string) []string {
	var seeds []string
	for _, name := range siteNames {
		profile, ok := c.sites[name]
		if !ok || profile.SeedPattern == "" {
			c.logger.Warn("skipping unknown site in seed generation", zap.String("site", name))
			continue
		}
		for _, category := range categories {
			for _, region := range regions {
				for _, locality := range localities {
					seeds = append(seeds, facets.BuildSeedURL(
						profile.BaseURL, profile.SeedPattern, category, region, locality))
				}
			}
		}
	}
	return seeds
}

// Start expands a PENDING session's seeds into discovery targets and
// dispatches one task per target.
func (c *Coordinator) Start(ctx context.Context, id string) error {
	session, err := c.sessions.GetSession(ctx, id)
	if err != nil {
		return fmt.Errorf("load session %s: %w", id, err)
	}
	if session.Status != crawler.SessionStatusPending {
		return fmt.Errorf("session %s is %s, only pending sessions can start", id, session.Status)
	}

	targets, err := c.expandSeeds(session)
	if err != nil {
		return err
	}
	if err := c.targets.CreateTargets(ctx, targets); err != nil {
		return fmt.Errorf("create targets: %w", err)
	}
	if err := c.sessions.MarkSessionRunning(ctx, id, len(targets), c.clock.Now()); err != nil {
		return fmt.Errorf("mark session running: %w", err)
	}

	for _, target := range targets {
		task := crawler.Task{
			Kind:      crawler.TaskDiscovery,
			SessionID: id,
			TargetID:  target.ID,
		}
		if err := c.queue.Enqueue(ctx, task); err != nil {
			return fmt.Errorf("enqueue discovery task for %s: %w", target.ID, err)
		}
		handle, err := c.ids.NewID()
		if err == nil {
			if err := c.targets.SetTaskHandle(ctx, target.ID, handle); err != nil {
				c.logger.Warn("set task handle failed", zap.String("target_id", target.ID), zap.Error(err))
			}
		}
	}

	c.logger.Info("session started",
		zap.String("session_id", id),
		zap.Int("targets", len(targets)))
	return nil
}

// Cancel flags the session; in-flight targets finish, queued ones are
// dropped at dispatch.
func (c *Coordinator) Cancel(ctx context.Context, id string) error {
	if err := c.sessions.CancelSession(ctx, id); err != nil {
		return fmt.Errorf("cancel session %s: %w", id, err)
	}
	c.logger.Info("session cancelled", zap.String("session_id", id))
	return nil
}

// OnTargetDone recomputes session counters after a target reached a
// terminal state. It is idempotent: recomputation always starts from the
// authoritative target counts.
func (c *Coordinator) OnTargetDone(ctx context.Context, sessionID string) error {
	counts, err := c.targets.CountTargets(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("count targets: %w", err)
	}

	counters := crawler.SessionCounters{
		TotalURLs:    counts.Total,
		CrawledURLs:  counts.Terminal(),
		SuccessCount: counts.Completed,
		ErrorCount:   counts.Failed,
	}
	progress := 0.0
	if counts.Total > 0 {
		progress = float64(counts.Terminal()) / float64(counts.Total) * 100
	}
	if err := c.sessions.UpdateSessionProgress(ctx, sessionID, counters, progress); err != nil {
		return fmt.Errorf("update session progress: %w", err)
	}

	session, err := c.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if session.Completed != nil {
		return nil
	}

	cancelled := session.Status == crawler.SessionStatusCancelled
	allTerminal := counts.Total > 0 && counts.Terminal() == counts.Total
	if !cancelled && !allTerminal {
		return nil
	}

	status := crawler.SessionStatusFailed
	errText := "all targets failed"
	switch {
	case cancelled:
		status = crawler.SessionStatusCancelled
		errText = ""
	case counts.Completed > 0:
		status = crawler.SessionStatusDone
		errText = ""
	}
	if err := c.sessions.FinishSession(ctx, sessionID, status, errText, c.clock.Now()); err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	c.logger.Info("session finished",
		zap.String("session_id", sessionID),
		zap.String("status", string(status)),
		zap.Int("success", counts.Completed),
		zap.Int("failed", counts.Failed))
	return nil
}

func (c *Coordinator) expandSeeds(session crawler.Session) ([]crawler.DiscoveryTarget, error) {
	now := c.clock.Now()
	targets := make([]crawler.DiscoveryTarget, 0, len(session.SeedURLs))
	for _, seed := range session.SeedURLs {
		f, err := c.extractor.Parse(seed)
		if err != nil {
			return nil, fmt.Errorf("parse seed %q: %w", seed, err)
		}
		id, err := c.ids.NewID()
		if err != nil {
			return nil, fmt.Errorf("new target id: %w", err)
		}
		targets = append(targets, crawler.DiscoveryTarget{
			ID:        id,
			SessionID: session.ID,
			URL:       seed,
			Facets:    f,
			Status:    crawler.TargetStatusPending,
			Created:   now,
		})
	}
	return targets, nil
}
