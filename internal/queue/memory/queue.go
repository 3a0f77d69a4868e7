// Package memory provides the queue implementation used in local
// development and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/TungDuong1712/lawyer-crawling-system/internal/crawler"
)

// Queue is a bounded in-memory task queue. Tasks carrying a future
// NotBefore are parked on a timer and delivered once the backoff window
// elapses, which mirrors the delayed-delivery semantics of the hosted
// broker.
type Queue struct {
	ch      chan crawler.Task
	done    chan struct{}
	wg      sync.WaitGroup
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch:   make(chan crawler.Task, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue pushes a task, deferring delivery when NotBefore is in the
// future, or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, task crawler.Task) error {
	if delay := time.Until(task.NotBefore); delay > 0 {
		q.deferDelivery(task, delay)
		return nil
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return errors.New("queue closed")
	case q.ch <- task:
		return nil
	}
}

// Dequeue pops the next task, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (crawler.Task, error) {
	select {
	case <-ctx.Done():
		return crawler.Task{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case task, ok := <-q.ch:
		if !ok {
			return crawler.Task{}, errors.New("queue closed")
		}
		return task, nil
	}
}

func (q *Queue) deferDelivery(task crawler.Task, delay time.Duration) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-q.done:
		case <-timer.C:
			select {
			case <-q.done:
			case q.ch <- task:
			}
		}
	}()
}

// Close stops delayed deliveries and closes the channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
	q.wg.Wait()
	close(q.ch)
}
