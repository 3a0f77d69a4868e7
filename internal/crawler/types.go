// Package crawler defines core types shared across subsystems.
package crawler

import (
	"net/http"
	"strings"
	"time"
)

// SessionStatus represents the lifecycle state of a crawl session.
type SessionStatus string

// Session status values persisted in the session store.
const (
	SessionStatusPending   SessionStatus = "PENDING"
	SessionStatusRunning   SessionStatus = "RUNNING"
	SessionStatusDone      SessionStatus = "DONE"
	SessionStatusFailed    SessionStatus = "FAILED"
	SessionStatusCancelled SessionStatus = "CANCELLED"
)

// TargetStatus represents the lifecycle state of a single discovery URL.
type TargetStatus string

// Target status values persisted in the target store.
const (
	TargetStatusPending   TargetStatus = "PENDING"
	TargetStatusRunning   TargetStatus = "RUNNING"
	TargetStatusCompleted TargetStatus = "COMPLETED"
	TargetStatusFailed    TargetStatus = "FAILED"
	TargetStatusRetrying  TargetStatus = "RETRYING"
)

// LookupStatus represents the outcome of one enrichment lookup call.
type LookupStatus string

// Lookup attempt status values.
const (
	LookupStatusPending  LookupStatus = "PENDING"
	LookupStatusFound    LookupStatus = "FOUND"
	LookupStatusNotFound LookupStatus = "NOT_FOUND"
	LookupStatusError    LookupStatus = "ERROR"
)

// Facets are the structured attributes derived from a seed URL's path.
type Facets struct {
	Site     string `json:"site"`
	Category string `json:"category"`
	Region   string `json:"region"`
	Locality string `json:"locality"`
}

// SessionCounters tracks aggregate URL outcomes for a session.
type SessionCounters struct {
	TotalURLs    int `json:"total_urls"`
	CrawledURLs  int `json:"crawled_urls"`
	SuccessCount int `json:"success_count"`
	ErrorCount   int `json:"error_count"`
}

// Session is a named crawl batch over a set of seed URLs.
type Session struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	SeedURLs  []string        `json:"seed_urls"`
	Status    SessionStatus   `json:"status"`
	Counters  SessionCounters `json:"counters"`
	Progress  float64         `json:"progress"`
	ErrorText string          `json:"error_text,omitempty"`
	Created   time.Time       `json:"created_at"`
	Started   *time.Time      `json:"started_at,omitempty"`
	Completed *time.Time      `json:"completed_at,omitempty"`
}

// DiscoveryTarget is one URL to crawl within a session.
type DiscoveryTarget struct {
	ID           string       `json:"id"`
	SessionID    string       `json:"session_id"`
	URL          string       `json:"url"`
	Facets       Facets       `json:"facets"`
	Status       TargetStatus `json:"status"`
	Attempts     int          `json:"attempts"`
	RecordsFound int          `json:"records_found"`
	ErrorText    string       `json:"error_text,omitempty"`
	TaskHandle   string       `json:"task_handle,omitempty"`
	Created      time.Time    `json:"created_at"`
	Started      *time.Time   `json:"started_at,omitempty"`
	Completed    *time.Time   `json:"completed_at,omitempty"`
}

// Terminal reports whether the target has reached a final state.
func (t DiscoveryTarget) Terminal() bool {
	return t.Status == TargetStatusCompleted || t.Status == TargetStatusFailed
}

// SummaryRecord holds the lightweight fields extracted from a listing page.
type SummaryRecord struct {
	Name        string
	Phone       string
	Address     string
	Website     string
	Email       string
	Categories  string
	Description string
	DetailURL   string
}

// DetailFields holds the second-pass fields extracted from a record's own page.
type DetailFields struct {
	Biography       string `json:"biography"`
	Attorneys       string `json:"attorneys"`
	OfficeLocations string `json:"office_locations"`
	Services        string `json:"services"`
	Experience      string `json:"experience"`
}

// Empty reports whether no detail field was extracted at all.
func (d DetailFields) Empty() bool {
	return d.Biography == "" && d.Attorneys == "" && d.OfficeLocations == "" &&
		d.Services == "" && d.Experience == ""
}

// Record is one scraped entity (a firm or individual lawyer).
type Record struct {
	ID          string `json:"id"`
	SessionID   string `json:"session_id"`
	IdentityKey string `json:"identity_key"`

	Name        string `json:"name"`
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`
	Website     string `json:"website,omitempty"`
	Email       string `json:"email,omitempty"`
	Categories  string `json:"categories,omitempty"`
	Description string `json:"description,omitempty"`

	DetailURL      string       `json:"detail_url,omitempty"`
	Detail         DetailFields `json:"detail"`
	DetailEnriched bool         `json:"detail_enriched"`
	DetailError    string       `json:"detail_error,omitempty"`

	SourceSite string `json:"source_site"`
	SourceURL  string `json:"source_url"`
	Facets     Facets `json:"facets"`

	CompletenessScore float64 `json:"completeness_score"`
	QualityScore      float64 `json:"quality_score"`

	Created time.Time `json:"created_at"`
	Updated time.Time `json:"updated_at"`
}

// CompletenessScoreOf scores how many of the core contact fields are filled,
// as a percentage.
func CompletenessScoreOf(r Record) float64 {
	fields := []string{r.Name, r.Phone, r.Address, r.Categories, r.Website, r.Email}
	filled := 0
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			filled++
		}
	}
	return float64(filled) / float64(len(fields)) * 100
}

// QualityScoreOf scores the record across core contact fields and the
// second-pass detail fields, as a percentage.
func QualityScoreOf(r Record) float64 {
	fields := []string{
		r.Name, r.Phone, r.Address, r.Categories, r.Website, r.Email,
		r.Detail.Biography, r.Detail.Attorneys, r.Detail.OfficeLocations,
		r.Detail.Services, r.Detail.Experience,
	}
	filled := 0
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			filled++
		}
	}
	return float64(filled) / float64(len(fields)) * 100
}

// LookupAttempt records one enrichment-lookup call against the external API.
type LookupAttempt struct {
	ID           string       `json:"id"`
	RecordID     string       `json:"record_id"`
	QueryName    string       `json:"query_name,omitempty"`
	QueryCompany string       `json:"query_company,omitempty"`
	QueryDomain  string       `json:"query_domain,omitempty"`
	Status       LookupStatus `json:"status"`
	Email        string       `json:"email,omitempty"`
	Phone        string       `json:"phone,omitempty"`
	Confidence   int          `json:"confidence"`
	CreditCost   int          `json:"credit_cost"`
	RawResponse  []byte       `json:"raw_response,omitempty"`
	ErrorText    string       `json:"error_text,omitempty"`
	Created      time.Time    `json:"created_at"`
	Completed    *time.Time   `json:"completed_at,omitempty"`
}

// SelectorSet maps a field name to a comma-separated CSS fallback chain.
// Chains are tried left to right; the first selector that matches wins.
type SelectorSet map[string]string

// SiteProfile bundles the per-site crawl settings resolved from config.
type SiteProfile struct {
	BaseURL         string
	SeedPattern     string
	ListSelectors   SelectorSet
	DetailSelectors SelectorSet
}

// FetchRequest captures everything needed to fetch a single page.
type FetchRequest struct {
	URL     string
	Headers http.Header
	Timeout time.Duration
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// TaskKind identifies the unit a queued task executes.
type TaskKind string

// Task kinds dispatched to the work queue.
const (
	TaskDiscovery TaskKind = "discovery"
	TaskDetail    TaskKind = "detail"
	TaskLookup    TaskKind = "lookup"
)

// Task is one work item emitted to the queue. Attempt counts completed
// executions; NotBefore delays delivery for backoff rescheduling.
type Task struct {
	Kind      TaskKind  `json:"kind"`
	SessionID string    `json:"session_id,omitempty"`
	TargetID  string    `json:"target_id,omitempty"`
	RecordID  string    `json:"record_id,omitempty"`
	Attempt   int       `json:"attempt"`
	NotBefore time.Time `json:"not_before,omitempty"`
}
