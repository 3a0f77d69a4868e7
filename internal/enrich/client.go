// Package enrich looks up verified contact details for scraped records
// through a third-party people-search API.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/TungDuong1712/lawyer-crawling-system/internal/crawler"
)

// DefaultTimeout bounds a single lookup call.
const DefaultTimeout = 20 * time.Second

// ClientConfig holds the API connection settings.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Query identifies the person or firm to look up.
type Query struct {
	Name    string
	Company string
	Domain  string
}

// Result is the parsed outcome of a lookup call.
type Result struct {
	Found      bool
	Email      string
	Phone      string
	Confidence int
	CreditCost int
	Raw        []byte
}

// Client calls the lookup API. Failures map onto the lookup error
// taxonomy so the retry controller can tell a rate limit from a dead key.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
}

// NewClient validates the config and builds a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("enrichment base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("enrichment API key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type lookupResponse struct {
	Emails []struct {
		Email string `json:"email"`
		Grade string `json:"grade"`
	} `json:"emails"`
	Phones []struct {
		Number string `json:"number"`
	} `json:"phones"`
	Confidence int `json:"confidence"`
	CreditCost int `json:"credit_cost"`
}

// LookupPerson queries the API. A person the API does not know is a
// normal Result{Found: false}, not an error.
func (c *Client) LookupPerson(ctx context.Context, q Query) (Result, error) {
	endpoint, err := c.buildURL(q)
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{}, fmt.Errorf("build lookup request: %w", err)
	}
	req.Header.Set("Api-Key", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, &crawler.LookupError{Kind: crawler.LookupUnavailable, Err: fmt.Errorf("call lookup api: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("read lookup response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return Result{}, &crawler.LookupError{Kind: crawler.LookupRateLimited, Err: fmt.Errorf("http 429")}
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return Result{}, &crawler.LookupError{Kind: crawler.LookupAuthError, Err: fmt.Errorf("http %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusNotFound:
		return Result{Raw: body}, nil
	case resp.StatusCode >= 500:
		return Result{}, &crawler.LookupError{Kind: crawler.LookupUnavailable, Err: fmt.Errorf("http %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return Result{}, &crawler.LookupError{Kind: crawler.LookupNotFound, Err: fmt.Errorf("http %d", resp.StatusCode)}
	}

	var parsed lookupResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Result{}, fmt.Errorf("decode lookup response: %w", err)
	}

	result := Result{
		Confidence: parsed.Confidence,
		CreditCost: parsed.CreditCost,
		Raw:        body,
	}
	if len(parsed.Emails) > 0 {
		result.Email = parsed.Emails[0].Email
	}
	if len(parsed.Phones) > 0 {
		result.Phone = parsed.Phones[0].Number
	}
	result.Found = result.Email != "" || result.Phone != ""
	return result, nil
}

// AccountInfo is the lookup API account state.
type AccountInfo struct {
	Email            string `json:"email"`
	Plan             string `json:"plan"`
	LookupCredits    int    `json:"lookup_credit_balance"`
	MonthlyLookups   int    `json:"monthly_lookups"`
	LookupsRemaining int    `json:"lookups_remaining"`
}

// Account fetches the account state, mainly the remaining credit balance.
// Failures use the same taxonomy as LookupPerson.
func (c *Client) Account(ctx context.Context) (AccountInfo, error) {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/account"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return AccountInfo{}, fmt.Errorf("build account request: %w", err)
	}
	req.Header.Set("Api-Key", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return AccountInfo{}, &crawler.LookupError{Kind: crawler.LookupUnavailable, Err: fmt.Errorf("call lookup api: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return AccountInfo{}, fmt.Errorf("read account response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return AccountInfo{}, &crawler.LookupError{Kind: crawler.LookupRateLimited, Err: fmt.Errorf("http 429")}
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return AccountInfo{}, &crawler.LookupError{Kind: crawler.LookupAuthError, Err: fmt.Errorf("http %d", resp.StatusCode)}
	case resp.StatusCode >= 500:
		return AccountInfo{}, &crawler.LookupError{Kind: crawler.LookupUnavailable, Err: fmt.Errorf("http %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return AccountInfo{}, &crawler.LookupError{Kind: crawler.LookupNotFound, Err: fmt.Errorf("http %d", resp.StatusCode)}
	}

	var account AccountInfo
	if err := json.Unmarshal(body, &account); err != nil {
		return AccountInfo{}, fmt.Errorf("decode account response: %w", err)
	}
	return account, nil
}

func (c *Client) buildURL(q Query) (string, error) {
	base, err := url.Parse(strings.TrimRight(c.cfg.BaseURL, "/") + "/person/lookup")
	if err != nil {
		return "", fmt.Errorf("parse enrichment base URL: %w", err)
	}
	params := url.Values{}
	if q.Name != "" {
		params.Set("name", q.Name)
	}
	if q.Company != "" {
		params.Set("current_employer", q.Company)
	}
	if q.Domain != "" {
		params.Set("company_domain", q.Domain)
	}
	base.RawQuery = params.Encode()
	return base.String(), nil
}
