// Package metrics exposes Prometheus collectors for the scraping service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scraperTargetsTotal        *prometheus.CounterVec
	scraperRecordsTotal        *prometheus.CounterVec
	scraperLookupsTotal        *prometheus.CounterVec
	scraperFetchSeconds        *prometheus.HistogramVec
	scraperRetriesTotal        *prometheus.CounterVec
	scraperActiveWorkers       prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scraperTargetsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_targets_total",
				Help: "Total number of discovery targets processed, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		scraperRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_records_total",
				Help: "Total number of records written, labeled by site and kind (created or refreshed).",
			},
			[]string{"site", "kind"},
		)

		scraperLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_lookups_total",
				Help: "Total number of enrichment lookups, labeled by status.",
			},
			[]string{"status"},
		)

		scraperFetchSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies, labeled by site.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)

		scraperRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_retries_total",
				Help: "Total number of task retries scheduled, labeled by task kind.",
			},
			[]string{"kind"},
		)

		scraperActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_active_workers",
				Help: "Number of workers currently processing a task.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL or host to a lowercase hostname.
// It returns "unknown" if the value is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler exposing the collectors.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTarget counts a terminal target outcome.
func ObserveTarget(site, outcome string) {
	Init()
	scraperTargetsTotal.WithLabelValues(SanitizeSite(site), outcome).Inc()
}

// ObserveRecord counts a record write.
func ObserveRecord(site string, created bool) {
	Init()
	kind := "refreshed"
	if created {
		kind = "created"
	}
	scraperRecordsTotal.WithLabelValues(SanitizeSite(site), kind).Inc()
}

// ObserveLookup counts an enrichment lookup outcome.
func ObserveLookup(status string) {
	Init()
	scraperLookupsTotal.WithLabelValues(status).Inc()
}

// ObserveFetch records the duration of one page fetch.
func ObserveFetch(site string, duration time.Duration) {
	Init()
	scraperFetchSeconds.WithLabelValues(SanitizeSite(site)).Observe(duration.Seconds())
}

// ObserveRetry counts a scheduled task retry.
func ObserveRetry(kind string) {
	Init()
	scraperRetriesTotal.WithLabelValues(kind).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	scraperActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	scraperActiveWorkers.Dec()
}

// ObserveHTTPRequest increments the API request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
