// Package rest is a small JSON-over-HTTP client with request pacing and
// retry of rate-limited or failed requests.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// StatusError is returned for non-2xx responses that were not retried.
type StatusError struct {
	Service string
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s request failed: status=%d code=%s message=%s", e.Service, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%s request failed: status=%d message=%s", e.Service, e.Status, e.Message)
}

// IsStatus reports whether err is a StatusError with the given status.
func IsStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}

// Options configures a Client.
type Options struct {
	// Service names the remote API in errors.
	Service    string
	BaseURL    string
	HTTPClient *http.Client
	// Header is applied to every request (auth, versions, user agent).
	Header http.Header
	// Limit paces requests; zero means unlimited.
	Limit      rate.Limit
	Burst      int
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Client sends JSON requests to one base URL.
type Client struct {
	service    string
	baseURL    string
	httpClient *http.Client
	header     http.Header
	limiter    *rate.Limiter
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// New creates a client, filling unset options with defaults.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = rate.Inf
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 250 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	service := opts.Service
	if service == "" {
		service = "http"
	}
	return &Client{
		service:    service,
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		httpClient: httpClient,
		header:     opts.Header.Clone(),
		limiter:    rate.NewLimiter(limit, burst),
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}
}

// Do sends method path?query with payload encoded as JSON (nil for no body)
// and decodes a 2xx response into out (nil to discard).
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	var bodyBytes []byte
	if payload != nil {
		var err error
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", c.service, err)
		}
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		var body io.Reader
		if bodyBytes != nil {
			body = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, body)
		if err != nil {
			return err
		}
		for k, v := range c.header {
			req.Header[k] = v
		}
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() == nil && attempt < c.maxRetries {
				if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(respBody) == 0 {
				return nil
			}
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("decode %s response: %w", c.service, err)
			}
			return nil
		}

		if retryable(resp.StatusCode) && attempt < c.maxRetries {
			if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}

		return c.statusError(resp.StatusCode, respBody)
	}
}

func (c *Client) statusError(status int, body []byte) error {
	se := &StatusError{
		Service: c.service,
		Status:  status,
		Message: strings.TrimSpace(string(body)),
	}
	var parsed map[string]any
	if json.Unmarshal(body, &parsed) == nil {
		switch code := parsed["code"].(type) {
		case string:
			se.Code = code
		case float64:
			se.Code = strconv.FormatFloat(code, 'f', -1, 64)
		}
		if message, ok := parsed["message"].(string); ok && strings.TrimSpace(message) != "" {
			se.Message = message
		}
	}
	return se
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || (status >= 500 && status <= 599)
}

func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if retryAfter := parseRetryAfter(retryAfterHeader); retryAfter > 0 {
		return min(retryAfter, c.maxDelay)
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	return min(delay, c.maxDelay)
}

// parseRetryAfter accepts whole or fractional seconds.
func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.ParseFloat(header, 64)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

func sleepContext(ctx context.Context, delay time.Duration) error {
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
