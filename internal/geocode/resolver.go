// Package geocode resolves free-text addresses to coordinates and back using
// a Nominatim-compatible lookup service, with retry, backoff, and a
// suppression guard that keeps the two resolution directions from feeding
// each other in a loop.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mietwerk/portal/internal/geo"
)

// Kind classifies a resolution failure.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindRateLimited        Kind = "rate_limited"
	KindTimeout            Kind = "timeout"
	KindServiceUnavailable Kind = "service_unavailable"
)

// Error is a typed resolution failure. Raw transport errors never escape the
// resolver; callers switch on Kind.
type Error struct {
	Kind  Kind
	Query string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("geocode %q: %s: %v", e.Query, e.Kind, e.Err)
	}
	return fmt.Sprintf("geocode %q: %s", e.Query, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the failure kind of err, or "" if err is not a geocode error.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

const (
	defaultMaxRetries = 2 // 3 attempts total
	defaultBaseDelay  = 2 * time.Second
	reverseTimeout    = 10 * time.Second
)

// forwardTimeouts widens the per-attempt deadline on each retry.
var forwardTimeouts = []time.Duration{15 * time.Second, 20 * time.Second, 25 * time.Second}

// Config holds the upstream lookup service settings.
type Config struct {
	BaseURL      string
	UserAgent    string // client identifier; anonymous traffic is throttled harder
	CountryCodes string // optional countrycodes filter for forward lookups
}

// Resolver translates between addresses and coordinates with resilience
// against upstream rate limiting and transient unavailability.
type Resolver struct {
	baseURL      string
	userAgent    string
	countryCodes string
	httpClient   *http.Client

	maxRetries      int
	baseDelay       time.Duration
	forwardBudgets  []time.Duration
	reverseBudget   time.Duration

	// sleep waits between retry attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewResolver creates a Resolver for the given lookup service.
func NewResolver(cfg Config) *Resolver {
	return &Resolver{
		baseURL:        trimSlash(cfg.BaseURL),
		userAgent:      cfg.UserAgent,
		countryCodes:   cfg.CountryCodes,
		httpClient:     &http.Client{},
		maxRetries:     defaultMaxRetries,
		baseDelay:      defaultBaseDelay,
		forwardBudgets: forwardTimeouts,
		reverseBudget:  reverseTimeout,
		sleep:          sleepCtx,
	}
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// nominatimItem mirrors one entry of the JSON returned by GET /search.
type nominatimItem struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// reverseResponse mirrors the JSON returned by GET /reverse.
type reverseResponse struct {
	DisplayName string `json:"display_name"`
	ErrorMsg    string `json:"error"`
}

// Forward resolves a free-text address into a coordinate. Up to three
// attempts are made with linear backoff (attempt * 2s) and a widening
// per-attempt deadline. Returns a *Error with KindNotFound when the service
// has no candidate for the address after all attempts.
func (r *Resolver) Forward(ctx context.Context, address string) (geo.Coordinate, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			if err := r.sleep(ctx, time.Duration(attempt)*r.baseDelay); err != nil {
				return geo.Coordinate{}, &Error{Kind: KindTimeout, Query: address, Err: err}
			}
		}
		c, err := r.forwardOnce(ctx, address, r.attemptBudget(attempt))
		if err == nil {
			return c, nil
		}
		lastErr = err
	}
	return geo.Coordinate{}, lastErr
}

func (r *Resolver) attemptBudget(attempt int) time.Duration {
	if attempt >= len(r.forwardBudgets) {
		return r.forwardBudgets[len(r.forwardBudgets)-1]
	}
	return r.forwardBudgets[attempt]
}

func (r *Resolver) forwardOnce(ctx context.Context, address string, timeout time.Duration) (geo.Coordinate, error) {
	params := url.Values{}
	params.Set("q", address)
	params.Set("format", "json")
	params.Set("limit", "1")
	if r.countryCodes != "" {
		params.Set("countrycodes", r.countryCodes)
	}

	var items []nominatimItem
	if err := r.get(ctx, "/search?"+params.Encode(), address, timeout, &items); err != nil {
		return geo.Coordinate{}, err
	}
	if len(items) == 0 {
		return geo.Coordinate{}, &Error{Kind: KindNotFound, Query: address}
	}

	lat, err := strconv.ParseFloat(items[0].Lat, 64)
	if err != nil {
		return geo.Coordinate{}, &Error{Kind: KindServiceUnavailable, Query: address, Err: fmt.Errorf("parsing lat: %w", err)}
	}
	lon, err := strconv.ParseFloat(items[0].Lon, 64)
	if err != nil {
		return geo.Coordinate{}, &Error{Kind: KindServiceUnavailable, Query: address, Err: fmt.Errorf("parsing lon: %w", err)}
	}

	c := geo.Coordinate{Lat: lat, Lon: lon}
	if err := c.Validate(); err != nil {
		return geo.Coordinate{}, &Error{Kind: KindServiceUnavailable, Query: address, Err: err}
	}
	return c, nil
}

// Reverse resolves a coordinate into a formatted address. Uses the same
// retry loop as Forward but a fixed per-attempt deadline.
func (r *Resolver) Reverse(ctx context.Context, c geo.Coordinate) (string, error) {
	query := fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
	if err := c.Validate(); err != nil {
		return "", &Error{Kind: KindNotFound, Query: query, Err: err}
	}

	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			if err := r.sleep(ctx, time.Duration(attempt)*r.baseDelay); err != nil {
				return "", &Error{Kind: KindTimeout, Query: query, Err: err}
			}
		}
		addr, err := r.reverseOnce(ctx, c, query)
		if err == nil {
			return addr, nil
		}
		lastErr = err
	}
	return "", lastErr
}

func (r *Resolver) reverseOnce(ctx context.Context, c geo.Coordinate, query string) (string, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(c.Lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(c.Lon, 'f', -1, 64))
	params.Set("format", "json")

	var resp reverseResponse
	if err := r.get(ctx, "/reverse?"+params.Encode(), query, r.reverseBudget, &resp); err != nil {
		return "", err
	}
	// Nominatim reports an unresolvable point as 200 with an error field.
	if resp.ErrorMsg != "" || resp.DisplayName == "" {
		return "", &Error{Kind: KindNotFound, Query: query}
	}
	return resp.DisplayName, nil
}

// get performs one GET attempt against the lookup service and decodes the
// JSON body into out. All failures come back as *Error.
func (r *Resolver) get(ctx context.Context, pathAndQuery, query string, timeout time.Duration, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, r.baseURL+pathAndQuery, nil)
	if err != nil {
		return &Error{Kind: KindServiceUnavailable, Query: query, Err: err}
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || reqCtx.Err() != nil {
			return &Error{Kind: KindTimeout, Query: query, Err: err}
		}
		return &Error{Kind: KindServiceUnavailable, Query: query, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Query: query}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &Error{Kind: KindServiceUnavailable, Query: query, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindServiceUnavailable, Query: query, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}
