package pubsub

import (
	"context"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/TungDuong1712/lawyer-crawling-system/internal/crawler"
)

func newFakeQueue(t *testing.T) *Queue {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)

	topic, err := client.CreateTopic(ctx, "crawl-tasks")
	require.NoError(t, err)
	sub, err := client.CreateSubscription(ctx, "crawl-tasks-sub", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	q := NewWithHandles(client, topic, sub, nil)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestQueueRoundTrip(t *testing.T) {
	ctx := context.Background()
	q := newFakeQueue(t)

	task := crawler.Task{
		Kind:      crawler.TaskDiscovery,
		SessionID: "session-1",
		TargetID:  "target-1",
		Attempt:   2,
	}
	require.NoError(t, q.Enqueue(ctx, task))

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, task.Kind, got.Kind)
	require.Equal(t, task.SessionID, got.SessionID)
	require.Equal(t, task.TargetID, got.TargetID)
	require.Equal(t, task.Attempt, got.Attempt)
}

func TestQueueDequeueRespectsContext(t *testing.T) {
	q := newFakeQueue(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Dequeue(ctx)
	require.ErrorContains(t, err, "dequeue canceled")
}
