// Package main wires together the lawyer directory scraper service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/TungDuong1712/lawyer-crawling-system/internal/antidetect"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/api"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/clock/system"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/config"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/crawler"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/detail"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/discovery"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/dispatcher"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/enrich"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/facets"
	collyfetcher "github.com/TungDuong1712/lawyer-crawling-system/internal/fetcher/colly"
	headlessfetcher "github.com/TungDuong1712/lawyer-crawling-system/internal/fetcher/headless"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/hash/sha256"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/id/uuid"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/logging"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/metrics"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/parser"
	queuememory "github.com/TungDuong1712/lawyer-crawling-system/internal/queue/memory"
	queuepubsub "github.com/TungDuong1712/lawyer-crawling-system/internal/queue/pubsub"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/retry"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/session"
	storagegcs "github.com/TungDuong1712/lawyer-crawling-system/internal/storage/gcs"
	storagememory "github.com/TungDuong1712/lawyer-crawling-system/internal/storage/memory"
	storagepostgres "github.com/TungDuong1712/lawyer-crawling-system/internal/storage/postgres"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/worker"
)

type stores struct {
	sessions crawler.SessionStore
	targets  crawler.TargetStore
	records  crawler.RecordStore
	lookups  crawler.LookupStore
}

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := buildStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	queue, queueClose, err := buildQueue(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("queue init failed", zap.Error(err))
	}
	defer queueClose()
	blobs, err := buildBlobStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("blob store init failed", zap.Error(err))
	}

	policy := antidetect.New(antidetect.Config{
		MinDelay:   cfg.MinDelay(),
		MaxDelay:   cfg.MaxDelay(),
		UserAgents: cfg.Crawler.UserAgents,
	})
	fetcher := collyfetcher.New(collyfetcher.Config{
		Timeout:           cfg.FetchTimeout(),
		BlockedSignatures: cfg.Crawler.BlockedSignatures,
	}, policy)

	var headless crawler.Fetcher
	if cfg.Headless.Enabled {
		chromeFetcher, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			logger.Warn("headless fetcher init failed, continuing without it", zap.Error(err))
		} else {
			headless = chromeFetcher
			defer chromeFetcher.Close()
		}
	}

	clock := system.New()
	idGen := uuid.New()
	sites := cfg.SiteProfiles()
	extractor := facets.NewExtractor(cfg.FacetLayouts())

	coordinator := session.New(db.sessions, db.targets, queue,
		extractor, clock, idGen, sites, logger.Named("session"))
	discoveryUnit := discovery.New(db.targets, db.records, blobs, queue,
		fetcher, headless, parser.New(), sha256.New(), clock, idGen, sites,
		logger.Named("discovery"))
	detailUnit := detail.New(db.records, blobs, fetcher, headless,
		parser.New(), clock, sites, logger.Named("detail"))

	var enrichment *enrich.Service
	if cfg.Enrichment.APIKey != "" {
		client, err := enrich.NewClient(enrich.ClientConfig{
			BaseURL: cfg.Enrichment.BaseURL,
			APIKey:  cfg.Enrichment.APIKey,
			Timeout: time.Duration(cfg.Enrichment.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			logger.Fatal("enrichment client init failed", zap.Error(err))
		}
		enrichment = enrich.NewService(db.records, db.lookups, queue, client,
			clock, idGen, logger.Named("enrich"))
	}

	retries := retry.New(cfg.Retry.MaxRetries, cfg.RetryBaseDelay())
	var workers []*worker.Worker
	for i := 0; i < cfg.Crawler.Concurrency; i++ {
		workers = append(workers, worker.New(
			queue,
			db.sessions,
			db.targets,
			db.records,
			discoveryUnit,
			detailUnit,
			enrichment,
			retries,
			coordinator,
			clock,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, workers)

	apiServer := api.NewServer(db.sessions, db.targets, db.records,
		coordinator, enrichment, cfg, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", len(workers)))
		dispatch.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// buildStores selects Postgres when a DSN is configured and the
// in-memory stores otherwise.
func buildStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (stores, error) {
	if cfg.DB.DSN == "" {
		logger.Info("no database configured, using in-memory stores")
		return stores{
			sessions: storagememory.NewSessionStore(),
			targets:  storagememory.NewTargetStore(),
			records:  storagememory.NewRecordStore(),
			lookups:  storagememory.NewLookupStore(),
		}, nil
	}
	pool, err := storagepostgres.NewPool(ctx, storagepostgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: int32(cfg.DB.MaxOpenConns),
	})
	if err != nil {
		return stores{}, err
	}
	logger.Info("postgres stores ready")
	return stores{
		sessions: storagepostgres.NewSessionStore(pool),
		targets:  storagepostgres.NewTargetStore(pool),
		records:  storagepostgres.NewRecordStore(pool),
		lookups:  storagepostgres.NewLookupStore(pool),
	}, nil
}

// buildQueue selects Pub/Sub when a project is configured and the
// in-memory queue otherwise.
func buildQueue(ctx context.Context, cfg config.Config, logger *zap.Logger) (crawler.Queue, func(), error) {
	if cfg.PubSub.ProjectID == "" {
		logger.Info("no pubsub project configured, using in-memory queue")
		q := queuememory.NewQueue(cfg.Crawler.QueueDepth)
		return q, q.Close, nil
	}
	q, err := queuepubsub.New(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName,
		cfg.PubSub.Subscription, logger.Named("pubsub"))
	if err != nil {
		return nil, nil, err
	}
	logger.Info("pubsub queue ready",
		zap.String("topic", cfg.PubSub.TopicName),
		zap.String("subscription", cfg.PubSub.Subscription))
	closeQueue := func() {
		if err := q.Close(); err != nil {
			logger.Error("pubsub queue close failed", zap.Error(err))
		}
	}
	return q, closeQueue, nil
}

// buildBlobStore selects GCS when a bucket is configured and the
// in-memory store otherwise.
func buildBlobStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (crawler.BlobStore, error) {
	if cfg.Storage.GCSBucket == "" {
		logger.Info("no snapshot bucket configured, keeping snapshots in memory")
		return storagememory.NewBlobStore(), nil
	}
	client, err := gcstorage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	store, err := storagegcs.New(client, storagegcs.Config{Bucket: cfg.Storage.GCSBucket})
	if err != nil {
		return nil, err
	}
	logger.Info("gcs snapshot store ready", zap.String("bucket", cfg.Storage.GCSBucket))
	return store, nil
}
