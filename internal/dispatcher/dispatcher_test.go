package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TungDuong1712/lawyer-crawling-system/internal/clock/system"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/crawler"
	queuemem "github.com/TungDuong1712/lawyer-crawling-system/internal/queue/memory"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/retry"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/session"
	storemem "github.com/TungDuong1712/lawyer-crawling-system/internal/storage/memory"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/worker"
)

func newIdleWorker(t *testing.T, q crawler.Queue) *worker.Worker {
	t.Helper()
	sessions := storemem.NewSessionStore()
	targets := storemem.NewTargetStore()
	coordinator := session.New(sessions, targets, q, nil,
		system.New(), nil, nil, zap.NewNop())
	return worker.New(q, sessions, targets, storemem.NewRecordStore(),
		nil, nil, nil, retry.New(1, time.Millisecond), coordinator,
		system.New(), zap.NewNop())
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	t.Parallel()

	q := queuemem.NewQueue(4)
	t.Cleanup(q.Close)
	d := New(q, []*worker.Worker{newIdleWorker(t, q), newIdleWorker(t, q)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not stop after cancel")
	}
}

func TestEnqueueProxiesToQueue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	q := queuemem.NewQueue(4)
	t.Cleanup(q.Close)
	d := New(q, nil)

	require.NoError(t, d.Enqueue(ctx, crawler.Task{Kind: crawler.TaskDiscovery, TargetID: "t1"}))
	task, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "t1", task.TargetID)
}
