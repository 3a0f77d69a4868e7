package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TungDuong1712/lawyer-crawling-system/internal/clock/system"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/crawler"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/id/uuid"
	queuemem "github.com/TungDuong1712/lawyer-crawling-system/internal/queue/memory"
	storemem "github.com/TungDuong1712/lawyer-crawling-system/internal/storage/memory"
)

const foundBody = `{
	"emails": [{"email": "jsmith@smithjones.com", "grade": "A"}],
	"phones": [{"number": "480-555-0100"}],
	"confidence": 95,
	"credit_cost": 1
}`

func newClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "test-key"})
	require.NoError(t, err)
	return c
}

func TestNewClientValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := NewClient(ClientConfig{APIKey: "k"})
	require.Error(t, err)
	_, err = NewClient(ClientConfig{BaseURL: "https://api.example.com"})
	require.Error(t, err, "a missing API key fails at construction, not mid-pipeline")
}

func TestLookupPersonFound(t *testing.T) {
	t.Parallel()

	var gotKey, gotName string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Api-Key")
		gotName = r.URL.Query().Get("name")
		_, _ = w.Write([]byte(foundBody))
	})

	result, err := c.LookupPerson(context.Background(), Query{Name: "John Smith", Company: "Smith & Jones LLP"})
	require.NoError(t, err)
	require.Equal(t, "test-key", gotKey)
	require.Equal(t, "John Smith", gotName)
	require.True(t, result.Found)
	require.Equal(t, "jsmith@smithjones.com", result.Email)
	require.Equal(t, "480-555-0100", result.Phone)
	require.Equal(t, 95, result.Confidence)
	require.Equal(t, 1, result.CreditCost)
}

func TestLookupPersonNotFound(t *testing.T) {
	t.Parallel()

	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	result, err := c.LookupPerson(context.Background(), Query{Name: "Nobody"})
	require.NoError(t, err)
	require.False(t, result.Found)
}

func TestAccount(t *testing.T) {
	t.Parallel()

	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/account" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"email":"ops@example.com","plan":"pro","lookup_credit_balance":120}`))
	})

	account, err := c.Account(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ops@example.com", account.Email)
	require.Equal(t, 120, account.LookupCredits)
}

func TestAccountAuthError(t *testing.T) {
	t.Parallel()

	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	_, err := c.Account(context.Background())
	var le *crawler.LookupError
	require.ErrorAs(t, err, &le)
	require.Equal(t, crawler.LookupAuthError, le.Kind)
}

func TestLookupPersonErrorClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status    int
		kind      crawler.LookupErrorKind
		retryable bool
	}{
		{http.StatusTooManyRequests, crawler.LookupRateLimited, true},
		{http.StatusUnauthorized, crawler.LookupAuthError, false},
		{http.StatusForbidden, crawler.LookupAuthError, false},
		{http.StatusBadGateway, crawler.LookupUnavailable, true},
		{http.StatusBadRequest, crawler.LookupNotFound, false},
	}
	for _, tc := range cases {
		c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
		})
		_, err := c.LookupPerson(context.Background(), Query{Name: "X"})
		require.Error(t, err, "status %d", tc.status)

		var le *crawler.LookupError
		require.ErrorAs(t, err, &le)
		require.Equal(t, tc.kind, le.Kind)
		require.Equal(t, tc.retryable, crawler.Retryable(err))
	}
}

type serviceFixture struct {
	records *storemem.RecordStore
	lookups *storemem.LookupStore
	queue   *queuemem.Queue
	service *Service
}

func newService(t *testing.T, client *Client) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		records: storemem.NewRecordStore(),
		lookups: storemem.NewLookupStore(),
		queue:   queuemem.NewQueue(8),
	}
	t.Cleanup(f.queue.Close)
	f.service = NewService(f.records, f.lookups, f.queue, client,
		system.New(), uuid.New(), zap.NewNop())
	return f
}

func TestDispatchCreatesAttemptAndTask(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(foundBody))
	})
	f := newService(t, c)
	_, _, err := f.records.UpsertRecord(ctx, crawler.Record{
		ID: "r1", IdentityKey: "k1", Name: "Smith & Jones LLP",
		Website: "https://www.smithjones.com",
	})
	require.NoError(t, err)

	attempt, err := f.service.Dispatch(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, crawler.LookupStatusPending, attempt.Status)
	require.Equal(t, "smithjones.com", attempt.QueryDomain)

	task, err := f.queue.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, crawler.TaskLookup, task.Kind)
	require.Equal(t, "r1", task.RecordID)

	// A second dispatch while one is pending is rejected.
	_, err = f.service.Dispatch(ctx, "r1")
	require.ErrorIs(t, err, crawler.ErrLookupInFlight)
}

func TestDispatchValidationFailsFast(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(foundBody))
	})
	f := newService(t, c)
	_, _, err := f.records.UpsertRecord(ctx, crawler.Record{ID: "r1", IdentityKey: "k1"})
	require.NoError(t, err)

	_, err = f.service.Dispatch(ctx, "r1")
	require.Error(t, err)

	attempts, err := f.lookups.ListAttempts(ctx, "r1")
	require.NoError(t, err)
	require.Empty(t, attempts, "validation failures write no attempt row")
}

func TestExecuteFoundAppliesContact(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(foundBody))
	})
	f := newService(t, c)
	_, _, err := f.records.UpsertRecord(ctx, crawler.Record{
		ID: "r1", IdentityKey: "k1", Name: "Smith & Jones LLP",
	})
	require.NoError(t, err)
	_, err = f.service.Dispatch(ctx, "r1")
	require.NoError(t, err)

	require.NoError(t, f.service.Execute(ctx, "r1"))

	attempts, err := f.lookups.ListAttempts(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	require.Equal(t, crawler.LookupStatusFound, attempts[0].Status)
	require.Equal(t, "jsmith@smithjones.com", attempts[0].Email)
	require.NotNil(t, attempts[0].Completed)

	record, err := f.records.GetRecord(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, "jsmith@smithjones.com", record.Email)
	require.Equal(t, "480-555-0100", record.Phone)
}

func TestExecuteAuthErrorIsTerminal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	f := newService(t, c)
	_, _, err := f.records.UpsertRecord(ctx, crawler.Record{ID: "r1", IdentityKey: "k1", Name: "Acme"})
	require.NoError(t, err)
	_, err = f.service.Dispatch(ctx, "r1")
	require.NoError(t, err)

	require.NoError(t, f.service.Execute(ctx, "r1"), "terminal outcomes are recorded, not returned")

	attempts, err := f.lookups.ListAttempts(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	require.Equal(t, crawler.LookupStatusError, attempts[0].Status)
	require.Contains(t, attempts[0].ErrorText, "auth_error")
}

func TestExecuteRateLimitPropagatesForRetry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	f := newService(t, c)
	_, _, err := f.records.UpsertRecord(ctx, crawler.Record{ID: "r1", IdentityKey: "k1", Name: "Acme"})
	require.NoError(t, err)
	_, err = f.service.Dispatch(ctx, "r1")
	require.NoError(t, err)

	err = f.service.Execute(ctx, "r1")
	require.Error(t, err)
	require.True(t, crawler.Retryable(err))

	// The attempt stays pending so the retried task can finish it.
	attempts, _ := f.lookups.ListAttempts(ctx, "r1")
	require.Equal(t, crawler.LookupStatusPending, attempts[0].Status)

	// After retries run out the worker abandons the attempt.
	require.NoError(t, f.service.Abandon(ctx, "r1", err))
	attempts, _ = f.lookups.ListAttempts(ctx, "r1")
	require.Equal(t, crawler.LookupStatusError, attempts[0].Status)
}

func TestExecuteWithoutPendingAttemptIsNoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	calls := 0
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		_, _ = w.Write([]byte(foundBody))
	})
	f := newService(t, c)

	require.NoError(t, f.service.Execute(ctx, "ghost"))
	require.Zero(t, calls)
}
