package retry

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TungDuong1712/lawyer-crawling-system/internal/crawler"
)

func timeoutErr() error {
	return &crawler.FetchError{Kind: crawler.FetchTimeout, URL: "https://example.com", Err: errors.New("deadline")}
}

func TestDecide_RetryableBackoffSchedule(t *testing.T) {
	t.Parallel()

	c := New(3, 60*time.Second)

	cases := []struct {
		attempt int
		delay   time.Duration
	}{
		{0, 60 * time.Second},
		{1, 120 * time.Second},
		{2, 180 * time.Second},
	}
	for _, tc := range cases {
		d := c.Decide(tc.attempt, timeoutErr())
		require.True(t, d.Retry, "attempt %d", tc.attempt)
		require.Equal(t, tc.delay, d.Delay)
	}

	// Fourth failure (attempt 3) exhausts the budget.
	require.False(t, c.Decide(3, timeoutErr()).Retry)
}

func TestDecide_TerminalErrors(t *testing.T) {
	t.Parallel()

	c := New(3, time.Second)

	cases := []struct {
		name string
		err  error
	}{
		{"http 404", &crawler.FetchError{Kind: crawler.FetchHTTPStatus, StatusCode: http.StatusNotFound}},
		{"http 403", &crawler.FetchError{Kind: crawler.FetchHTTPStatus, StatusCode: http.StatusForbidden}},
		{"detail selector mismatch", &crawler.ParseError{URL: "https://example.com/x"}},
		{"auth error", &crawler.LookupError{Kind: crawler.LookupAuthError, Err: errors.New("bad key")}},
		{"plain error", errors.New("boom")},
	}
	for _, tc := range cases {
		require.False(t, c.Decide(0, tc.err).Retry, tc.name)
	}
}

func TestDecide_RetryableErrorClasses(t *testing.T) {
	t.Parallel()

	c := New(3, time.Second)

	cases := []error{
		&crawler.FetchError{Kind: crawler.FetchTimeout},
		&crawler.FetchError{Kind: crawler.FetchConnection},
		&crawler.FetchError{Kind: crawler.FetchBlocked},
		&crawler.FetchError{Kind: crawler.FetchHTTPStatus, StatusCode: http.StatusTooManyRequests},
		&crawler.FetchError{Kind: crawler.FetchHTTPStatus, StatusCode: http.StatusBadGateway},
		&crawler.LookupError{Kind: crawler.LookupRateLimited},
		fmt.Errorf("wrapped: %w", &crawler.FetchError{Kind: crawler.FetchBlocked}),
	}
	for _, err := range cases {
		require.True(t, c.Decide(0, err).Retry, err.Error())
	}
}

func TestDecide_NilError(t *testing.T) {
	t.Parallel()

	require.False(t, New(0, 0).Decide(0, nil).Retry)
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	c := New(0, 0)
	require.Equal(t, DefaultMaxRetries, c.MaxRetries())
	d := c.Decide(0, timeoutErr())
	require.Equal(t, DefaultBaseDelay, d.Delay)
}
