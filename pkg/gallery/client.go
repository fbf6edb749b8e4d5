package gallery

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	errs "pzgrab/pkg/errors"
	"pzgrab/pkg/logger"
	"pzgrab/pkg/retry"
)

// Client fetches gallery media over HTTP. A single Client is shared by all
// workers; the underlying http.Client pools connections and is safe for
// concurrent use.
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	maxRetries int
	backoff    retry.BackoffStrategy
	logger     logger.Logger
}

// NewClient creates a gallery client. baseHeaders is the opaque header set
// obtained from the browser session; it is treated as read-only.
func NewClient(timeout time.Duration, baseHeaders map[string]string, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	headers := make(map[string]string, len(baseHeaders))
	for k, v := range baseHeaders {
		headers[k] = v
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		headers:    headers,
		maxRetries: 5,
		backoff:    retry.DefaultExponentialBackoff(),
		logger:     log,
	}
}

// SetTransportRetries overrides the transport retry budget
func (c *Client) SetTransportRetries(n int) {
	if n > 0 {
		c.maxRetries = n
	}
}

// FetchImage downloads one image. It retries connection errors and
// transient statuses (429, 500, 502, 503, 504) up to the transport retry
// budget, honoring Retry-After when the server sends one. It returns the
// body, the last HTTP status observed (0 if no response was ever received)
// and a typed error on failure. An empty body on a success status is an
// error: the caller treats it as a failed whole-operation attempt.
func (c *Client) FetchImage(ctx context.Context, url, referer string) ([]byte, int, error) {
	var lastStatus int
	var lastErr error

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		data, status, err := c.fetchOnce(ctx, url, referer)
		if status != 0 {
			lastStatus = status
		}

		if err == nil {
			return data, status, nil
		}
		lastErr = err

		var fetchErr *errs.Error
		retryable := false
		if e, ok := err.(*errs.Error); ok {
			fetchErr = e
			retryable = errs.IsRetryable(e.Type)
		}

		if !retryable || attempt == c.maxRetries {
			break
		}

		delay := c.backoff.NextDelay(attempt)
		if fetchErr != nil && fetchErr.RetryAfter > delay {
			delay = fetchErr.RetryAfter
		}

		c.logger.WarnWithFields("transient fetch failure, retrying", map[string]interface{}{
			"url":      url,
			"status":   lastStatus,
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
		})

		if err := retry.Wait(ctx, delay); err != nil {
			return nil, lastStatus, errs.New(errs.ErrorTypeNetwork, lastStatus, "fetch cancelled: %v", err)
		}
	}

	return nil, lastStatus, lastErr
}

// fetchOnce performs a single GET with the shared headers
func (c *Client) fetchOnce(ctx context.Context, url, referer string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, errs.New(errs.ErrorTypeUnknown, 0, "failed to create request: %v", err)
	}

	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.DebugWithFields("request failed", map[string]interface{}{
			"url":      url,
			"error":    err.Error(),
			"duration": time.Since(start),
		})
		return nil, 0, errs.New(errs.ErrorTypeNetwork, 0, "network error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		e := errs.New(errs.TypeForStatusCode(resp.StatusCode), resp.StatusCode, "HTTP %d", resp.StatusCode)
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, resp.StatusCode, e
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, errs.New(errs.ErrorTypeNetwork, resp.StatusCode, "failed to read body: %v", err)
	}
	if len(data) == 0 {
		return nil, resp.StatusCode, errs.New(errs.ErrorTypeEmptyBody, resp.StatusCode, "empty response body")
	}

	c.logger.DebugWithFields("fetched image", map[string]interface{}{
		"url":      url,
		"status":   resp.StatusCode,
		"size":     len(data),
		"duration": time.Since(start),
	})

	return data, resp.StatusCode, nil
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
