package crawler

import (
	"context"
	"net/http"
	"time"
)

// SessionStore persists crawl session state.
type SessionStore interface {
	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	// MarkSessionRunning transitions PENDING -> RUNNING and records the
	// expanded target total. Fails if the session is not PENDING.
	MarkSessionRunning(ctx context.Context, id string, total int, at time.Time) error
	// UpdateSessionProgress overwrites the counters and progress percentage.
	// It is idempotent and safe to call repeatedly.
	UpdateSessionProgress(ctx context.Context, id string, c SessionCounters, progress float64) error
	// FinishSession records the terminal status and completion time.
	FinishSession(ctx context.Context, id string, status SessionStatus, errText string, at time.Time) error
	// CancelSession sets the cancel flag; dispatch stops at the next check.
	CancelSession(ctx context.Context, id string) error
}

// TargetCounts aggregates target outcomes for progress recomputation.
type TargetCounts struct {
	Total     int
	Completed int
	Failed    int
}

// Terminal is the number of targets that reached a final state.
func (c TargetCounts) Terminal() int { return c.Completed + c.Failed }

// TargetStore persists per-URL discovery state.
type TargetStore interface {
	CreateTargets(ctx context.Context, targets []DiscoveryTarget) error
	GetTarget(ctx context.Context, id string) (DiscoveryTarget, error)
	// ClaimTarget atomically transitions PENDING or RETRYING to RUNNING and
	// increments the attempt counter. Returns ErrAlreadyClaimed when the
	// target is already running or terminal.
	ClaimTarget(ctx context.Context, id string, at time.Time) (DiscoveryTarget, error)
	CompleteTarget(ctx context.Context, id string, recordsFound int, at time.Time) error
	FailTarget(ctx context.Context, id string, errText string, at time.Time) error
	// MarkTargetRetrying parks a RUNNING target for a later reattempt.
	MarkTargetRetrying(ctx context.Context, id string, errText string) error
	SetTaskHandle(ctx context.Context, id string, handle string) error
	CountTargets(ctx context.Context, sessionID string) (TargetCounts, error)
	ListTargets(ctx context.Context, sessionID string) ([]DiscoveryTarget, error)
}

// RecordStore persists scraped records.
type RecordStore interface {
	// UpsertRecord inserts the record or, when its identity key is already
	// known, refreshes the summary fields of the existing row. The returned
	// bool is true when a new row was created.
	UpsertRecord(ctx context.Context, r Record) (Record, bool, error)
	GetRecord(ctx context.Context, id string) (Record, error)
	// UpdateRecordDetail merges detail fields field-by-field, flips the
	// enriched flag and stores recomputed scores.
	UpdateRecordDetail(ctx context.Context, id string, d DetailFields, completeness, quality float64, at time.Time) error
	SetRecordDetailError(ctx context.Context, id string, note string) error
	ListRecords(ctx context.Context, sessionID string) ([]Record, error)
}

// LookupStore persists enrichment attempts. History is append-only.
type LookupStore interface {
	// CreateAttempt inserts a PENDING attempt. Returns ErrLookupInFlight if
	// the record already has one pending.
	CreateAttempt(ctx context.Context, a LookupAttempt) error
	CompleteAttempt(ctx context.Context, id string, a LookupAttempt, at time.Time) error
	ListAttempts(ctx context.Context, recordID string) ([]LookupAttempt, error)
}

// BlobStore writes raw markup snapshots and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Queue provides enqueue/dequeue semantics for pipeline tasks. Enqueue is
// fire-and-forget from the producer's perspective; completion is observed
// through persisted state.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Dequeue(ctx context.Context) (Task, error)
}

// Fetcher fetches one URL and returns the markup plus metadata. Failures
// are always a *FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Parser evaluates a selector set against raw markup. Pure function of its
// inputs: no network, no persistence.
type Parser interface {
	ParseList(markup []byte, selectors SelectorSet, baseURL string) ([]SummaryRecord, error)
	ParseDetail(markup []byte, selectors SelectorSet) (DetailFields, error)
}

// AntiDetectionPolicy supplies randomized pacing and request identity.
// Implementations are stateless beyond their pools and safe for concurrent
// use by many units.
type AntiDetectionPolicy interface {
	NextDelay() time.Duration
	NextIdentity() http.Header
}

// Hasher computes digests for identity keys and content dedup.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces entity IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
