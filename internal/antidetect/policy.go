// Package antidetect supplies randomized pacing and browser identities to
// the fetcher. The policy is stateless beyond its pools and is consulted
// once per outbound request.
package antidetect

import (
	"math/rand/v2"
	"net/http"
	"time"
)

// Default inter-request delay bounds.
const (
	DefaultMinDelay = 1 * time.Second
	DefaultMaxDelay = 3 * time.Second
)

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:121.0) Gecko/20100101 Firefox/121.0",
}

// Config controls the delay interval and the identity pool.
type Config struct {
	MinDelay   time.Duration
	MaxDelay   time.Duration
	UserAgents []string
}

// Policy implements crawler.AntiDetectionPolicy. Safe for concurrent use.
type Policy struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	userAgents []string
}

// New builds a Policy, falling back to defaults for unset fields.
func New(cfg Config) *Policy {
	minDelay := cfg.MinDelay
	maxDelay := cfg.MaxDelay
	if minDelay <= 0 {
		minDelay = DefaultMinDelay
	}
	if maxDelay < minDelay {
		maxDelay = DefaultMaxDelay
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	agents := cfg.UserAgents
	if len(agents) == 0 {
		agents = defaultUserAgents
	}
	return &Policy{
		minDelay:   minDelay,
		maxDelay:   maxDelay,
		userAgents: agents,
	}
}

// NextDelay returns a uniformly random duration in [MinDelay, MaxDelay].
func (p *Policy) NextDelay() time.Duration {
	if p.maxDelay == p.minDelay {
		return p.minDelay
	}
	return p.minDelay + rand.N(p.maxDelay-p.minDelay)
}

// NextIdentity returns a complete browser header set with a randomly
// selected User-Agent. A full set is required to pass Cloudflare-style
// header fingerprinting.
func (p *Policy) NextIdentity() http.Header {
	h := http.Header{}
	h.Set("User-Agent", p.userAgents[rand.IntN(len(p.userAgents))])
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Accept-Encoding", "gzip, deflate, br")
	h.Set("Connection", "keep-alive")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "none")
	h.Set("Sec-Fetch-User", "?1")
	h.Set("Cache-Control", "max-age=0")
	h.Set("DNT", "1")
	return h
}
