package collyfetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TungDuong1712/lawyer-crawling-system/internal/antidetect"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/crawler"
)

func fastPolicy() crawler.AntiDetectionPolicy {
	return antidetect.New(antidetect.Config{
		MinDelay: time.Millisecond,
		MaxDelay: 2 * time.Millisecond,
	})
}

func TestFetch_Success(t *testing.T) {
	t.Parallel()

	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("<html><body>listings</body></html>"))
	}))
	defer srv.Close()

	f := New(Config{}, fastPolicy())
	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(resp.Body), "listings")
	require.NotEmpty(t, gotUA, "identity headers applied")
	require.Greater(t, resp.Duration, time.Duration(0))
}

func TestFetch_HTTPStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(Config{}, fastPolicy())
	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL})

	var fe *crawler.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, crawler.FetchHTTPStatus, fe.Kind)
	require.Equal(t, http.StatusNotFound, fe.StatusCode)
	require.False(t, fe.Retryable())
}

func TestFetch_TooManyRequestsIsRetryable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := New(Config{}, fastPolicy())
	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL})

	var fe *crawler.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, crawler.FetchHTTPStatus, fe.Kind)
	require.True(t, fe.Retryable())
}

func TestFetch_BlockedChallengePage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Challenge interstitials often arrive with a 200.
		_, _ = w.Write([]byte("<html><body>Checking your browser before accessing</body></html>"))
	}))
	defer srv.Close()

	f := New(Config{}, fastPolicy())
	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL})

	var fe *crawler.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, crawler.FetchBlocked, fe.Kind)
	require.True(t, fe.Retryable())
}

func TestFetch_BlockedOnForbiddenChallenge(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("<html><title>Attention Required! | Cloudflare</title></html>"))
	}))
	defer srv.Close()

	f := New(Config{}, fastPolicy())
	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL})

	var fe *crawler.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, crawler.FetchBlocked, fe.Kind)
}

func TestFetch_Timeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()

	f := New(Config{Timeout: 50 * time.Millisecond}, fastPolicy())
	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL})

	var fe *crawler.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, crawler.FetchTimeout, fe.Kind)
	require.True(t, fe.Retryable())
}

func TestFetch_ConnectionError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	url := srv.URL
	srv.Close()

	f := New(Config{}, fastPolicy())
	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: url})

	var fe *crawler.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, crawler.FetchConnection, fe.Kind)
	require.True(t, fe.Retryable())
}

func TestFetch_ExplicitHeadersWin(t *testing.T) {
	t.Parallel()

	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	headers := http.Header{}
	headers.Set("User-Agent", "explicit-agent/2.0")

	f := New(Config{}, fastPolicy())
	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL, Headers: headers})
	require.NoError(t, err)
	require.Equal(t, "explicit-agent/2.0", gotUA)
}
