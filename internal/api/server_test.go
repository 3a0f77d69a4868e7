package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TungDuong1712/lawyer-crawling-system/internal/clock/system"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/config"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/crawler"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/enrich"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/facets"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/id/uuid"
	queuemem "github.com/TungDuong1712/lawyer-crawling-system/internal/queue/memory"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/session"
	storemem "github.com/TungDuong1712/lawyer-crawling-system/internal/storage/memory"
)

var testSites = map[string]crawler.SiteProfile{
	"lawinfo": {
		BaseURL:       "https://www.lawinfo.com",
		SeedPattern:   "{base_url}/{category}/{region}/{locality}/",
		ListSelectors: crawler.SelectorSet{"container": ".card.firm"},
	},
}

type testServer struct {
	*Server
	sessions *storemem.SessionStore
	targets  *storemem.TargetStore
	records  *storemem.RecordStore
	queue    *queuemem.Queue
}

func newTestServer(t *testing.T, enrichment *enrich.Service, cfg config.Config) *testServer {
	t.Helper()
	ts := &testServer{
		sessions: storemem.NewSessionStore(),
		targets:  storemem.NewTargetStore(),
		records:  storemem.NewRecordStore(),
		queue:    queuemem.NewQueue(16),
	}
	t.Cleanup(ts.queue.Close)

	coordinator := session.New(ts.sessions, ts.targets, ts.queue,
		facets.NewExtractor(nil), system.New(), uuid.New(), testSites, zap.NewNop())
	ts.Server = NewServer(ts.sessions, ts.targets, ts.records,
		coordinator, enrichment, cfg, zap.NewNop())
	return ts
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil, config.Config{})
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doJSON(t, ts.Server, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := doJSON(t, ts.Server, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateSessionWithExplicitSeeds(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil, config.Config{})
	rec := doJSON(t, ts.Server, http.MethodPost, "/v1/sessions", map[string]any{
		"name":      "arizona-pi",
		"seed_urls": []string{"https://www.lawinfo.com/personal-injury/arizona/chandler/"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Session crawler.Session `json:"session"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Session.ID)
	require.Equal(t, crawler.SessionStatusPending, resp.Session.Status)
	require.Len(t, resp.Session.SeedURLs, 1)
}

func TestCreateSessionGeneratesSeedsFromConfig(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Seeds: config.SeedConfig{
		Sites:      []string{"lawinfo"},
		Categories: []string{"Personal Injury"},
		Regions:    []string{"Arizona"},
		Localities: []string{"Chandler", "Gilbert"},
	}}
	ts := newTestServer(t, nil, cfg)

	rec := doJSON(t, ts.Server, http.MethodPost, "/v1/sessions", map[string]any{"name": "generated"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Session crawler.Session `json:"session"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Session.SeedURLs, 2)
	require.Contains(t, resp.Session.SeedURLs,
		"https://www.lawinfo.com/personal-injury/arizona/gilbert/")
}

func TestCreateSessionWithoutSeedsFails(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil, config.Config{})
	rec := doJSON(t, ts.Server, http.MethodPost, "/v1/sessions", map[string]any{"name": "empty"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateSessionInvalidJSON(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil, config.Config{})
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewBufferString("{invalid"))
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil, config.Config{})
	rec := doJSON(t, ts.Server, http.MethodPost, "/v1/sessions", map[string]any{
		"name":      "flow",
		"seed_urls": []string{"https://www.lawinfo.com/personal-injury/arizona/chandler/"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Session crawler.Session `json:"session"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created.Session.ID

	rec = doJSON(t, ts.Server, http.MethodPost, "/v1/sessions/"+id+"/start", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	// One discovery task per seed was dispatched.
	task, err := ts.queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, crawler.TaskDiscovery, task.Kind)
	require.Equal(t, id, task.SessionID)

	rec = doJSON(t, ts.Server, http.MethodGet, "/v1/sessions/"+id+"/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		Session crawler.Session           `json:"session"`
		Targets []crawler.DiscoveryTarget `json:"targets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, crawler.SessionStatusRunning, status.Session.Status)
	require.Len(t, status.Targets, 1)
	require.Equal(t, "lawinfo", status.Targets[0].Facets.Site)

	// Starting twice is a conflict.
	rec = doJSON(t, ts.Server, http.MethodPost, "/v1/sessions/"+id+"/start", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, ts.Server, http.MethodPost, "/v1/sessions/"+id+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGetSessionNotFound(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil, config.Config{})
	rec := doJSON(t, ts.Server, http.MethodGet, "/v1/sessions/ghost/", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, ts.Server, http.MethodGet, "/v1/sessions/ghost/records", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRecords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ts := newTestServer(t, nil, config.Config{})
	rec := doJSON(t, ts.Server, http.MethodPost, "/v1/sessions", map[string]any{
		"name":      "with-records",
		"seed_urls": []string{"https://www.lawinfo.com/personal-injury/arizona/chandler/"},
	})
	var created struct {
		Session crawler.Session `json:"session"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	_, _, err := ts.records.UpsertRecord(ctx, crawler.Record{
		ID: "r1", IdentityKey: "k1", SessionID: created.Session.ID, Name: "Acme Law",
	})
	require.NoError(t, err)

	rec = doJSON(t, ts.Server, http.MethodGet, "/v1/sessions/"+created.Session.ID+"/records", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Records []crawler.Record `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Records, 1)
	require.Equal(t, "Acme Law", resp.Records[0].Name)
}

func TestLookupWithoutEnrichmentService(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil, config.Config{})
	rec := doJSON(t, ts.Server, http.MethodPost, "/v1/records/r1/lookup", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doJSON(t, ts.Server, http.MethodGet, "/v1/enrichment/account", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLookupConflictWhileInFlight(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"emails":[{"email":"a@b.com"}]}`))
	}))
	t.Cleanup(srv.Close)
	client, err := enrich.NewClient(enrich.ClientConfig{BaseURL: srv.URL, APIKey: "k"})
	require.NoError(t, err)

	records := storemem.NewRecordStore()
	lookups := storemem.NewLookupStore()
	queue := queuemem.NewQueue(8)
	t.Cleanup(queue.Close)
	enrichment := enrich.NewService(records, lookups, queue, client,
		system.New(), uuid.New(), zap.NewNop())

	ts := newTestServer(t, enrichment, config.Config{})
	_, _, err = records.UpsertRecord(ctx, crawler.Record{ID: "r1", IdentityKey: "k1", Name: "Acme"})
	require.NoError(t, err)

	rec := doJSON(t, ts.Server, http.MethodPost, "/v1/records/r1/lookup", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, ts.Server, http.MethodPost, "/v1/records/r1/lookup", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, ts.Server, http.MethodPost, "/v1/records/ghost/lookup", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, ts.Server, http.MethodGet, "/v1/enrichment/account", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
