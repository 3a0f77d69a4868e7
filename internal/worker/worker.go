// Package worker implements the task execution loop. Workers dequeue
// tasks, run the matching pipeline unit and translate failures into
// retry or terminal-failure transitions.
package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/TungDuong1712/lawyer-crawling-system/internal/crawler"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/detail"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/discovery"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/enrich"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/metrics"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/retry"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/session"
)

// Worker consumes queue tasks and executes the pipeline units.
type Worker struct {
	queue       crawler.Queue
	sessions    crawler.SessionStore
	targets     crawler.TargetStore
	records     crawler.RecordStore
	discovery   *discovery.Unit
	detail      *detail.Unit
	enrichment  *enrich.Service
	retries     *retry.Controller
	coordinator *session.Coordinator
	clock       crawler.Clock
	logger      *zap.Logger
}

// New constructs a Worker. The enrichment service may be nil when no
// lookup API is configured; lookup tasks are then dropped with an error.
func New(
	queue crawler.Queue,
	sessions crawler.SessionStore,
	targets crawler.TargetStore,
	records crawler.RecordStore,
	discoveryUnit *discovery.Unit,
	detailUnit *detail.Unit,
	enrichment *enrich.Service,
	retries *retry.Controller,
	coordinator *session.Coordinator,
	clock crawler.Clock,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:       queue,
		sessions:    sessions,
		targets:     targets,
		records:     records,
		discovery:   discoveryUnit,
		detail:      detailUnit,
		enrichment:  enrichment,
		retries:     retries,
		coordinator: coordinator,
		clock:       clock,
		logger:      logger,
	}
}

// Run blocks, consuming tasks until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.Process(ctx, task)
	}
}

// Process executes one task end to end.
func (w *Worker) Process(ctx context.Context, task crawler.Task) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	if w.sessionCancelled(ctx, task) {
		return
	}

	switch task.Kind {
	case crawler.TaskDiscovery:
		w.processDiscovery(ctx, task)
	case crawler.TaskDetail:
		w.processDetail(ctx, task)
	case crawler.TaskLookup:
		w.processLookup(ctx, task)
	default:
		w.logger.Error("unknown task kind", zap.String("kind", string(task.Kind)))
	}
}

// sessionCancelled drops tasks of a cancelled session and nudges the
// coordinator so the session can finalize.
func (w *Worker) sessionCancelled(ctx context.Context, task crawler.Task) bool {
	if task.SessionID == "" {
		return false
	}
	sess, err := w.sessions.GetSession(ctx, task.SessionID)
	if err != nil {
		w.logger.Error("load session failed",
			zap.String("session_id", task.SessionID), zap.Error(err))
		return true
	}
	if sess.Status != crawler.SessionStatusCancelled {
		return false
	}
	w.logger.Info("dropping task for cancelled session",
		zap.String("session_id", task.SessionID),
		zap.String("kind", string(task.Kind)))
	if task.Kind == crawler.TaskDiscovery {
		if err := w.coordinator.OnTargetDone(ctx, task.SessionID); err != nil {
			w.logger.Error("finalize cancelled session failed", zap.Error(err))
		}
	}
	return true
}

func (w *Worker) processDiscovery(ctx context.Context, task crawler.Task) {
	_, err := w.discovery.Execute(ctx, task)
	if err == nil {
		w.notifyTargetDone(ctx, task.SessionID)
		return
	}

	decision := w.retries.Decide(task.Attempt, err)
	if decision.Retry {
		w.logger.Warn("discovery task failed, scheduling retry",
			zap.String("target_id", task.TargetID),
			zap.Int("attempt", task.Attempt),
			zap.Duration("delay", decision.Delay),
			zap.Error(err))
		if markErr := w.targets.MarkTargetRetrying(ctx, task.TargetID, err.Error()); markErr != nil {
			w.logger.Error("mark target retrying failed", zap.Error(markErr))
		}
		w.requeue(ctx, task, decision)
		return
	}

	w.logger.Error("discovery task failed terminally",
		zap.String("target_id", task.TargetID),
		zap.Int("attempt", task.Attempt),
		zap.Error(err))
	if failErr := w.targets.FailTarget(ctx, task.TargetID, err.Error(), w.clock.Now()); failErr != nil {
		w.logger.Error("fail target failed", zap.Error(failErr))
	}
	if target, getErr := w.targets.GetTarget(ctx, task.TargetID); getErr == nil {
		metrics.ObserveTarget(target.URL, "failed")
	}
	w.notifyTargetDone(ctx, task.SessionID)
}

func (w *Worker) processDetail(ctx context.Context, task crawler.Task) {
	err := w.detail.Execute(ctx, task)
	if err == nil {
		return
	}

	decision := w.retries.Decide(task.Attempt, err)
	if decision.Retry {
		w.logger.Warn("detail task failed, scheduling retry",
			zap.String("record_id", task.RecordID),
			zap.Int("attempt", task.Attempt),
			zap.Duration("delay", decision.Delay),
			zap.Error(err))
		w.requeue(ctx, task, decision)
		return
	}

	note := fmt.Sprintf("detail crawl failed after %d attempts: %v", task.Attempt+1, err)
	w.logger.Error("detail task failed terminally",
		zap.String("record_id", task.RecordID),
		zap.Error(err))
	if setErr := w.records.SetRecordDetailError(ctx, task.RecordID, note); setErr != nil {
		w.logger.Error("set record detail error failed", zap.Error(setErr))
	}
}

func (w *Worker) processLookup(ctx context.Context, task crawler.Task) {
	if w.enrichment == nil {
		w.logger.Error("lookup task with no enrichment service configured",
			zap.String("record_id", task.RecordID))
		return
	}
	err := w.enrichment.Execute(ctx, task.RecordID)
	if err == nil {
		return
	}

	decision := w.retries.Decide(task.Attempt, err)
	if decision.Retry {
		w.logger.Warn("lookup task failed, scheduling retry",
			zap.String("record_id", task.RecordID),
			zap.Int("attempt", task.Attempt),
			zap.Duration("delay", decision.Delay),
			zap.Error(err))
		w.requeue(ctx, task, decision)
		return
	}

	w.logger.Error("lookup task failed terminally",
		zap.String("record_id", task.RecordID),
		zap.Error(err))
	if abandonErr := w.enrichment.Abandon(ctx, task.RecordID, err); abandonErr != nil {
		w.logger.Error("abandon lookup attempt failed", zap.Error(abandonErr))
	}
}

func (w *Worker) requeue(ctx context.Context, task crawler.Task, decision retry.Decision) {
	metrics.ObserveRetry(string(task.Kind))
	next := task
	next.Attempt++
	next.NotBefore = w.clock.Now().Add(decision.Delay)
	if err := w.queue.Enqueue(ctx, next); err != nil {
		w.logger.Error("requeue task failed",
			zap.String("kind", string(task.Kind)),
			zap.Error(err))
	}
}

func (w *Worker) notifyTargetDone(ctx context.Context, sessionID string) {
	if err := w.coordinator.OnTargetDone(ctx, sessionID); err != nil {
		w.logger.Error("session progress update failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
}
