// Package retry holds the single place failure policy is decided. Units
// classify their errors; the controller turns (attempt, error) into a
// reschedule delay or a terminal failure, independent of the queue
// mechanism so the policy is testable without a broker.
package retry

import (
	"time"

	"github.com/TungDuong1712/lawyer-crawling-system/internal/crawler"
)

// Defaults matching the task queue's historical schedule.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 60 * time.Second
)

// Decision is the outcome of classifying one failed attempt.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Controller decides whether a failed unit execution is rescheduled.
type Controller struct {
	maxRetries int
	baseDelay  time.Duration
}

// New builds a Controller. Non-positive arguments select the defaults.
func New(maxRetries int, baseDelay time.Duration) *Controller {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	return &Controller{maxRetries: maxRetries, baseDelay: baseDelay}
}

// MaxRetries returns the bounded reattempt count.
func (c *Controller) MaxRetries() int { return c.maxRetries }

// Decide returns Retry with a backoff delay of base*(attempt+1) while the
// error is transient and attempts remain, otherwise Fail. attempt is
// zero-based: an entity exhausting retries executes maxRetries+1 times.
func (c *Controller) Decide(attempt int, err error) Decision {
	if err == nil {
		return Decision{}
	}
	if !crawler.Retryable(err) {
		return Decision{}
	}
	if attempt >= c.maxRetries {
		return Decision{}
	}
	return Decision{
		Retry: true,
		Delay: c.baseDelay * time.Duration(attempt+1),
	}
}
