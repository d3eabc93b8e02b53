package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

const (
	defaultTimeout       = 15 * time.Second
	defaultUploadTimeout = 60 * time.Second
	maxResponseBodySize  = 10 << 20 // 10MB
)

// CredentialSource supplies the bearer token attached to outbound calls.
type CredentialSource interface {
	// Token returns the current bearer token, or ok=false when anonymous.
	Token() (token string, ok bool)
}

// Request describes one outbound call.
type Request struct {
	Method string
	Path   string
	Body   any        // marshaled to JSON when non-nil
	Query  url.Values // optional
	Upload bool       // uses the longer upload timeout budget
}

// Config holds Client construction parameters. MockMode is injected here
// rather than read from a global so independent clients (and tests) can run
// in different modes without interference.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	UploadTimeout  time.Duration
	MockMode       bool
	Credentials    CredentialSource     // optional
	OnAuthRejected func(path string)    // invoked on any 401 envelope
	Logger         *slog.Logger         // optional
}

// Client performs all outbound HTTP calls to the remote housing service.
// A circuit breaker sits on the network path: after sustained transport
// failures the breaker opens and calls fail fast as connection errors until
// the upstream recovers.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	timeout        time.Duration
	uploadTimeout  time.Duration
	creds          CredentialSource
	onAuthRejected func(path string)
	log            *slog.Logger
	breaker        *gobreaker.CircuitBreaker[*http.Response]

	mu       sync.Mutex
	mockMode bool
}

// NewClient creates a Client for the given remote service.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = defaultUploadTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:     &http.Client{},
		timeout:        cfg.Timeout,
		uploadTimeout:  cfg.UploadTimeout,
		creds:          cfg.Credentials,
		onAuthRejected: cfg.OnAuthRejected,
		log:            cfg.Logger,
		mockMode:       cfg.MockMode,
	}

	c.breaker = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:    "housing-backend",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("backend circuit state changed", "from", from.String(), "to", to.String())
		},
	})

	return c
}

// MockMode reports whether mock mode is currently enabled on this client.
func (c *Client) MockMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mockMode
}

// SetMockMode toggles mock mode on this client at runtime.
func (c *Client) SetMockMode(enabled bool) {
	c.mu.Lock()
	c.mockMode = enabled
	c.mu.Unlock()
	c.log.Info("mock mode changed", "enabled", enabled)
}

// Get performs a GET call.
func (c *Client) Get(ctx context.Context, path string, query url.Values) Envelope {
	return c.Call(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post performs a POST call with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) Envelope {
	return c.Call(ctx, Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put performs a PUT call with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) Envelope {
	return c.Call(ctx, Request{Method: http.MethodPut, Path: path, Body: body})
}

// Call performs one outbound call and normalizes the outcome. In mock mode,
// write calls are answered by the mock responder before any network attempt;
// reads always go to the real service.
func (c *Client) Call(ctx context.Context, req Request) Envelope {
	if c.MockMode() && req.Method != http.MethodGet {
		env := mockEnvelope(req)
		c.log.Debug("mock responder served call", "method", req.Method, "path", req.Path)
		return env
	}

	env := c.dispatch(ctx, req)

	if env.HTTPStatus == http.StatusUnauthorized && c.onAuthRejected != nil {
		c.onAuthRejected(req.Path)
	}
	return env
}

func (c *Client) dispatch(ctx context.Context, req Request) Envelope {
	timeout := c.timeout
	if req.Upload {
		timeout = c.uploadTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return failureEnvelope(0, KindValidationError, "invalid request body: "+err.Error())
		}
		bodyReader = bytes.NewReader(data)
	}

	callURL := c.baseURL + req.Path
	if len(req.Query) > 0 {
		callURL += "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, req.Method, callURL, bodyReader)
	if err != nil {
		return failureEnvelope(0, KindConnectionError, "building request: "+err.Error())
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.creds != nil {
		if token, ok := c.creds.Token(); ok {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		return c.httpClient.Do(httpReq)
	})
	if err != nil {
		return c.classifyTransportError(reqCtx, req, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return failureEnvelope(resp.StatusCode, KindConnectionError, "reading response: "+err.Error())
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return successEnvelope(resp.StatusCode, body)
	}

	msg, unrecognized := extractMessage(body)
	if unrecognized {
		// Flag a third error shape instead of silently special-casing it.
		c.log.Warn("upstream error body matched neither message nor status.message",
			"path", req.Path, "status", resp.StatusCode)
	}
	return failureEnvelope(resp.StatusCode, kindForStatus(resp.StatusCode), msg)
}

func (c *Client) classifyTransportError(reqCtx context.Context, req Request, err error) Envelope {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return failureEnvelope(0, KindConnectionError, "housing service temporarily unavailable")
	case errors.Is(err, context.DeadlineExceeded), reqCtx.Err() != nil:
		c.log.Warn("backend call timed out", "method", req.Method, "path", req.Path)
		return failureEnvelope(0, KindTimeout, "")
	default:
		c.log.Warn("backend call failed", "method", req.Method, "path", req.Path, "error", err)
		return failureEnvelope(0, KindConnectionError, "")
	}
}
