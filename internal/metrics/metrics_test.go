package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	t.Parallel()

	require.Equal(t, "www.lawinfo.com", SanitizeSite("https://www.lawinfo.com/personal-injury/arizona/chandler/"))
	require.Equal(t, "lawinfo.com", SanitizeSite("lawinfo.com"))
	require.Equal(t, "unknown", SanitizeSite("://not a url"))
}

func TestInitIsIdempotentAndObservable(t *testing.T) {
	Init()
	Init()

	ObserveTarget("https://www.lawinfo.com/x/", "completed")
	ObserveRecord("lawinfo.com", true)
	ObserveRecord("lawinfo.com", false)
	ObserveLookup("FOUND")
	ObserveFetch("lawinfo.com", 250*time.Millisecond)
	ObserveRetry("discovery")
	IncActiveWorkers()
	DecActiveWorkers()
	ObserveHTTPRequest("GET", "/v1/sessions/{id}", 200, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	Handler().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), "scraper_targets_total")
}
