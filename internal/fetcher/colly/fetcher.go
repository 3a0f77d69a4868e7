// Package collyfetcher implements the page Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/TungDuong1712/lawyer-crawling-system/internal/crawler"
)

// DefaultTimeout bounds a single page fetch.
const DefaultTimeout = 30 * time.Second

// defaultBlockedSignatures are body markers of anti-bot challenge pages.
// A page carrying one of these is a BlockedError regardless of status code
// — Cloudflare serves its interstitial with 200 and 403 alike.
var defaultBlockedSignatures = []string{
	"Checking your browser",
	"cf-browser-verification",
	"cf-challenge",
	"Attention Required! | Cloudflare",
	"g-recaptcha",
	"Verify you are human",
}

// Config controls collector behavior.
type Config struct {
	Timeout           time.Duration
	BlockedSignatures []string
}

// Fetcher issues one browser-like page request per call. The injected
// anti-detection policy supplies the pre-request delay and the header
// identity; classification of failures is done here so callers only ever
// see *crawler.FetchError.
type Fetcher struct {
	cfg           Config
	policy        crawler.AntiDetectionPolicy
	baseCollector *colly.Collector
	signatures    []string
}

// New builds a Fetcher.
func New(cfg Config, policy crawler.AntiDetectionPolicy) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	signatures := cfg.BlockedSignatures
	if len(signatures) == 0 {
		signatures = defaultBlockedSignatures
	}

	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		policy:        policy,
		baseCollector: c,
		signatures:    signatures,
	}
}

// Fetch applies the anti-detection delay, executes a single GET and
// returns the markup or a classified failure.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	if err := f.pause(ctx); err != nil {
		return crawler.FetchResponse{}, &crawler.FetchError{
			Kind: crawler.FetchTimeout,
			URL:  request.URL,
			Err:  err,
		}
	}

	var (
		result   crawler.FetchResponse
		fetchErr error
		errResp  *colly.Response
	)
	start := time.Now()

	collector := f.buildCollector(request, start, &result, &fetchErr, &errResp)
	if err := f.runCollector(ctx, collector, request.URL); err != nil {
		return crawler.FetchResponse{}, f.classify(request.URL, err, errResp)
	}
	if fetchErr != nil {
		return crawler.FetchResponse{}, f.classify(request.URL, fetchErr, errResp)
	}
	if f.blocked(result.Body) {
		return crawler.FetchResponse{}, &crawler.FetchError{
			Kind:       crawler.FetchBlocked,
			URL:        request.URL,
			StatusCode: result.StatusCode,
		}
	}
	return result, nil
}

func (f *Fetcher) pause(ctx context.Context) error {
	if f.policy == nil {
		return nil
	}
	delay := f.policy.NextDelay()
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (f *Fetcher) buildCollector(
	request crawler.FetchRequest,
	start time.Time,
	result *crawler.FetchResponse,
	fetchErr *error,
	errResp **colly.Response,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.IgnoreRobotsTxt = true

	timeout := request.Timeout
	if timeout <= 0 {
		timeout = f.cfg.Timeout
	}
	collector.SetRequestTimeout(timeout)

	headers := request.Headers
	if headers == nil && f.policy != nil {
		headers = f.policy.NextIdentity()
	}

	collector.OnRequest(func(r *colly.Request) {
		for key, values := range headers {
			for _, v := range values {
				r.Headers.Set(key, v)
			}
		}
	})

	collector.OnResponse(func(r *colly.Response) {
		*result = crawler.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		*fetchErr = err
		*errResp = r
	})

	return collector
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// classify maps raw transport failures onto the fetch error taxonomy.
func (f *Fetcher) classify(url string, err error, resp *colly.Response) error {
	if resp != nil && resp.StatusCode > 0 {
		if f.blocked(resp.Body) {
			return &crawler.FetchError{
				Kind:       crawler.FetchBlocked,
				URL:        url,
				StatusCode: resp.StatusCode,
				Err:        err,
			}
		}
		return &crawler.FetchError{
			Kind:       crawler.FetchHTTPStatus,
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        err,
		}
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout(),
		strings.Contains(err.Error(), "Client.Timeout"):
		return &crawler.FetchError{Kind: crawler.FetchTimeout, URL: url, Err: err}
	default:
		return &crawler.FetchError{Kind: crawler.FetchConnection, URL: url, Err: err}
	}
}

func (f *Fetcher) blocked(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	page := string(body)
	for _, sig := range f.signatures {
		if strings.Contains(page, sig) {
			return true
		}
	}
	return false
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
