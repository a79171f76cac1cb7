// Package httpclient performs JSON request/response cycles against REST
// endpoints with bounded retries. Transport errors, HTTP 429 and any
// caller-declared retryable statuses are retried with exponential backoff;
// a Retry-After header overrides the computed delay. The client holds no
// concurrency primitives — callers serialise their requests.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds a single request unless the call overrides it.
	DefaultTimeout = 60 * time.Second

	// DefaultAttempts is the total number of tries per call.
	DefaultAttempts = 3

	backoffBase = 1 * time.Second
	backoffCap  = 30 * time.Second
)

// StatusError is returned when the server answered with a non-2xx status
// after all retries were spent (or the status was not retryable).
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}

// Request describes one JSON call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Query  url.Values

	// Body is JSON-encoded when non-nil.
	Body any

	// Timeout overrides DefaultTimeout for this call when positive.
	Timeout time.Duration

	// RetryStatuses lists extra HTTP statuses to treat as transient in
	// addition to 429. Group creation declares 403 here.
	RetryStatuses []int

	// Attempts overrides DefaultAttempts when positive.
	Attempts int
}

// Client wraps a stdlib http.Client with the retry policy above.
type Client struct {
	http    *http.Client
	logger  *zap.Logger
	onRetry func() // metrics hook, may be nil

	// lastRetryAfter holds the Retry-After header of the most recent
	// response. The client is used from a single goroutine.
	lastRetryAfter string
}

// New returns a Client logging through logger. onRetry, when non-nil, is
// invoked once per retried attempt.
func New(logger *zap.Logger, onRetry func()) *Client {
	return &Client{
		// Per-attempt deadlines come from the request context, not the
		// http.Client, so a retried call gets a fresh budget.
		http:    &http.Client{},
		logger:  logger.Named("http"),
		onRetry: onRetry,
	}
}

// Do executes req and decodes a 2xx JSON body into out (skipped when out is
// nil or the body is empty). Non-2xx responses surface as *StatusError;
// exhausted transport failures are returned as the last underlying error.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	attempts := req.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	fullURL := req.URL
	if len(req.Query) > 0 {
		sep := "?"
		if u, err := url.Parse(req.URL); err == nil && u.RawQuery != "" {
			sep = "&"
		}
		fullURL = req.URL + sep + req.Query.Encode()
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if c.onRetry != nil {
				c.onRetry()
			}
		}

		body, status, err := c.once(ctx, req, fullURL, timeout)
		if err == nil && status >= 200 && status < 300 {
			if out == nil || len(body) == 0 {
				return nil
			}
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("decode %s %s: %w", req.Method, req.URL, err)
			}
			return nil
		}

		var delay time.Duration
		retryable := false
		switch {
		case err != nil:
			lastErr = err
			retryable = ctx.Err() == nil
			delay = backoff(attempt)
		case status == http.StatusTooManyRequests || contains(req.RetryStatuses, status):
			lastErr = &StatusError{StatusCode: status, Body: truncate(string(body))}
			retryable = true
			delay = backoff(attempt)
			if ra := retryAfter(c.lastRetryAfter); ra > 0 {
				delay = ra
			}
		default:
			return &StatusError{StatusCode: status, Body: truncate(string(body))}
		}

		if !retryable || attempt == attempts {
			break
		}

		c.logger.Warn("retrying request",
			zap.String("method", req.Method),
			zap.String("url", req.URL),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(lastErr),
		)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("%s %s failed after %d attempts: %w", req.Method, req.URL, attempts, lastErr)
}

// once performs a single attempt. It records the Retry-After header of the
// response (if any) on the client for the retry loop to consult.
func (c *Client) once(ctx context.Context, req Request, fullURL string, timeout time.Duration) ([]byte, int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, 0, fmt.Errorf("encode %s %s: %w", req.Method, req.URL, err)
		}
		bodyReader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, fullURL, bodyReader)
	if err != nil {
		return nil, 0, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, vals := range req.Header {
		for _, v := range vals {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	c.lastRetryAfter = resp.Header.Get("Retry-After")

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return data, resp.StatusCode, nil
}

func backoff(attempt int) time.Duration {
	d := backoffBase << (attempt - 1)
	if d > backoffCap {
		return backoffCap
	}
	return d
}

// retryAfter parses a Retry-After header value given in seconds. HTTP-date
// values are ignored — TimeCamp sends delay-seconds.
func retryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	secs, err := strconv.Atoi(value)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func contains(statuses []int, status int) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func truncate(s string) string {
	const max = 512
	if len(s) > max {
		return s[:max]
	}
	return s
}
