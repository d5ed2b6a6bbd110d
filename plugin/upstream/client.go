// Package upstream provides a resilient HTTP client for the generative-AI
// provider: bounded per-call timeout, doubling backoff, and retry on a fixed
// set of transient status codes.
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DefaultRetryableStatuses are the transient codes eligible for backoff-retry:
// standard transient 4xx/5xx plus the Cloudflare-style CDN edge range.
var DefaultRetryableStatuses = []int{
	http.StatusRequestTimeout, // 408
	http.StatusConflict,       // 409
	http.StatusTooEarly,       // 425
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
	520, 521, 522, 523, 524, 525, 526, 527,
}

// Error is a provider call that came back non-OK after the client's retries.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// TimeoutError is a network failure that was still timing out on the final
// attempt. It is distinguished from Error for logging only; retry behavior
// is identical to any other network failure.
type TimeoutError struct {
	Attempts int
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("upstream timed out after %d attempts (per-call timeout %s)", e.Attempts, e.Timeout)
}

// Config holds the client's retry policy. Zero values fall back to defaults.
type Config struct {
	Timeout           time.Duration
	MaxRetries        int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	RetryableStatuses []int
}

// Request is a single provider call. Credential is applied as a bearer token
// per call, so multi-tenant key routing never mutates shared client state.
type Request struct {
	Method      string
	URL         string
	Body        []byte
	Credential  string
	ContentType string
	Accept      string
}

// Response is the terminal outcome of Do: the last response received,
// whatever its status. Callers classify non-OK statuses themselves.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the status code is in the 2xx range.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Err converts a non-OK response into an *Error, or returns nil.
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}
	return &Error{StatusCode: r.StatusCode, Body: string(r.Body)}
}

// Client issues provider calls with the configured retry policy. Concurrent
// calls are independent; backoff sleeps never block other callers.
type Client struct {
	httpClient *http.Client
	cfg        Config
	retryable  map[int]bool

	// sleep is replaced in tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Client with the given policy.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.BackoffMultiplier <= 1 {
		cfg.BackoffMultiplier = 2
	}
	statuses := cfg.RetryableStatuses
	if len(statuses) == 0 {
		statuses = DefaultRetryableStatuses
	}
	retryable := make(map[int]bool, len(statuses))
	for _, s := range statuses {
		retryable[s] = true
	}
	return &Client{
		httpClient: &http.Client{},
		cfg:        cfg,
		retryable:  retryable,
		sleep:      sleepContext,
	}
}

// Do executes the request, retrying transient failures with doubling backoff.
// The per-attempt timeout cancels the in-flight call regardless of server
// behavior; a cancelled attempt counts as a network failure for retry
// purposes. The last response is returned as-is when its status is not
// retryable or retries are exhausted.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	backoff := c.cfg.InitialBackoff
	attempts := c.cfg.MaxRetries
	var lastErr error
	timedOut := false

	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := c.doAttempt(ctx, req)
		if err == nil {
			if !c.retryable[resp.StatusCode] || attempt == attempts {
				return resp, nil
			}
			lastErr = resp.Err()
		} else {
			if ctx.Err() != nil {
				// The caller's context ended; do not burn further attempts.
				return nil, errors.Wrap(ctx.Err(), "upstream call aborted")
			}
			timedOut = errors.Is(err, context.DeadlineExceeded)
			lastErr = err
			if attempt == attempts {
				break
			}
		}

		if err := c.sleep(ctx, backoff); err != nil {
			return nil, errors.Wrap(err, "upstream call aborted")
		}
		backoff = time.Duration(float64(backoff) * c.cfg.BackoffMultiplier)
	}

	if timedOut {
		return nil, &TimeoutError{Attempts: attempts, Timeout: c.cfg.Timeout}
	}
	return nil, errors.Wrap(lastErr, "upstream call failed")
}

func (c *Client) doAttempt(ctx context.Context, req *Request) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	if req.Credential != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Credential)
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	if req.Accept != "" {
		httpReq.Header.Set("Accept", req.Accept)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
