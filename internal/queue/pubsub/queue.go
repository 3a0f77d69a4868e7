// Package pubsub backs the task queue with Google Cloud Pub/Sub for
// deployments where workers run separately from the API.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/TungDuong1712/lawyer-crawling-system/internal/crawler"
)

// Queue implements crawler.Queue on a Pub/Sub topic/subscription pair.
// Pub/Sub has no native delayed delivery, so tasks with a future
// NotBefore are parked on an in-process timer before publishing.
type Queue struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	logger *zap.Logger

	inbox     chan received
	startOnce sync.Once
	cancelRcv context.CancelFunc
	wg        sync.WaitGroup
}

type received struct {
	task crawler.Task
	msg  *pubsub.Message
}

// New connects to Pub/Sub and verifies the topic and subscription exist.
// Authentication uses Application Default Credentials.
func New(ctx context.Context, projectID, topicID, subscriptionID string, logger *zap.Logger) (*Queue, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	topic := client.Topic(topicID)
	ok, err := topic.Exists(ctx)
	if err != nil || !ok {
		closeClient(client, logger)
		if err != nil {
			return nil, fmt.Errorf("check topic %q: %w", topicID, err)
		}
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", topicID, projectID)
	}

	sub := client.Subscription(subscriptionID)
	ok, err = sub.Exists(ctx)
	if err != nil || !ok {
		closeClient(client, logger)
		if err != nil {
			return nil, fmt.Errorf("check subscription %q: %w", subscriptionID, err)
		}
		return nil, fmt.Errorf("pubsub subscription %q does not exist in project %q", subscriptionID, projectID)
	}

	return NewWithHandles(client, topic, sub, logger), nil
}

// NewWithHandles wires a queue over pre-built Pub/Sub handles. Used by
// tests running against the pstest fake.
func NewWithHandles(client *pubsub.Client, topic *pubsub.Topic, sub *pubsub.Subscription, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		client: client,
		topic:  topic,
		sub:    sub,
		logger: logger,
		inbox:  make(chan received, 64),
	}
}

// Enqueue publishes the task as JSON. The publish is awaited so that a
// broker rejection surfaces to the caller instead of vanishing.
func (q *Queue) Enqueue(ctx context.Context, task crawler.Task) error {
	if delay := time.Until(task.NotBefore); delay > 0 {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
			if err := q.publish(ctx, task); err != nil {
				q.logger.Error("delayed publish failed",
					zap.String("kind", string(task.Kind)),
					zap.String("target_id", task.TargetID),
					zap.Error(err))
			}
		}()
		return nil
	}
	return q.publish(ctx, task)
}

func (q *Queue) publish(ctx context.Context, task crawler.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	result := q.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"kind": string(task.Kind),
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish task: %w", err)
	}
	return nil
}

// Dequeue returns the next task from the subscription. The first call
// starts the background receive loop; malformed payloads are acked and
// dropped so a poison message cannot wedge the pipeline.
func (q *Queue) Dequeue(ctx context.Context) (crawler.Task, error) {
	q.startOnce.Do(q.startReceiver)

	select {
	case <-ctx.Done():
		return crawler.Task{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case r, ok := <-q.inbox:
		if !ok {
			return crawler.Task{}, fmt.Errorf("queue closed")
		}
		r.msg.Ack()
		return r.task, nil
	}
}

func (q *Queue) startReceiver() {
	rcvCtx, cancel := context.WithCancel(context.Background())
	q.cancelRcv = cancel

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		err := q.sub.Receive(rcvCtx, func(ctx context.Context, msg *pubsub.Message) {
			var task crawler.Task
			if err := json.Unmarshal(msg.Data, &task); err != nil {
				q.logger.Warn("dropping malformed task message", zap.Error(err))
				msg.Ack()
				return
			}
			select {
			case q.inbox <- received{task: task, msg: msg}:
			case <-ctx.Done():
				msg.Nack()
			}
		})
		if err != nil && rcvCtx.Err() == nil {
			q.logger.Error("pubsub receive stopped", zap.Error(err))
		}
		close(q.inbox)
	}()
}

// Close stops the receiver, flushes pending publishes and closes the
// client connection.
func (q *Queue) Close() error {
	if q.cancelRcv != nil {
		q.cancelRcv()
	}
	q.topic.Stop()
	q.wg.Wait()
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}

func closeClient(client *pubsub.Client, logger *zap.Logger) {
	if err := client.Close(); err != nil && logger != nil {
		logger.Warn("close pubsub client", zap.Error(err))
	}
}
