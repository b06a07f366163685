// Package api is the shared REST client: bearer auth, the paced request queue,
// 429 retries, envelope decoding and the typed backend endpoints.
package api

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

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/and161185/social-client/internal/errs"
	"github.com/and161185/social-client/internal/limiter"
	"github.com/and161185/social-client/internal/logging"
	"github.com/and161185/social-client/internal/metrics"
)

// TokenSource yields the current bearer token ("" when logged out).
type TokenSource interface {
	Token() string
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	// RetryBase is the first backoff interval after a 429.
	RetryBase  time.Duration
	Limiter    limiter.Limiter
	HTTPClient *http.Client
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	// OnUnauthorized runs after any 401 answer.
	OnUnauthorized func()
}

// Client talks to the REST backend.
type Client struct {
	baseURL        string
	http           *http.Client
	tokens         TokenSource
	limiter        limiter.Limiter
	maxRetries     int
	retryBase      time.Duration
	log            *zap.Logger
	metrics        *metrics.Metrics
	onUnauthorized func()
}

// New returns a Client. tokens may be nil for anonymous use.
func New(opts Options, tokens TokenSource) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	lim := opts.Limiter
	if lim == nil {
		lim = limiter.New(10, 5, time.Second)
	}
	base := opts.RetryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	return &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		http:           hc,
		tokens:         tokens,
		limiter:        lim,
		maxRetries:     opts.MaxRetries,
		retryBase:      base,
		log:            logging.OrNop(opts.Logger),
		metrics:        opts.Metrics,
		onUnauthorized: opts.OnUnauthorized,
	}
}

// SetUnauthorizedHook replaces the 401 hook.
func (c *Client) SetUnauthorizedHook(fn func()) { c.onUnauthorized = fn }

// BaseURL returns the configured backend URL.
func (c *Client) BaseURL() string { return c.baseURL }

// call is one request description. body is rebuilt per attempt.
type call struct {
	method string
	path   string
	query  url.Values
	body   func() (io.Reader, string, error)
}

func jsonBody(v any) func() (io.Reader, string, error) {
	if v == nil {
		return nil
	}
	return func() (io.Reader, string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, "", fmt.Errorf("encode body: %w", err)
		}
		return bytes.NewReader(b), "application/json", nil
	}
}

// Do sends a JSON request through the queue, retrying 429 answers with backoff.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	return c.queued(ctx, call{method: method, path: path, query: query, body: jsonBody(in)}, out)
}

// Direct sends a JSON request immediately: no queue, no retry.
func (c *Client) Direct(ctx context.Context, method, path string, in, out any) error {
	_, err := c.send(ctx, call{method: method, path: path, body: jsonBody(in)}, out)
	return err
}

// Upload sends a multipart form through the queue.
func (c *Client) Upload(ctx context.Context, method, path string, form *Form, out any) error {
	return c.queued(ctx, call{method: method, path: path, body: form.encode}, out)
}

func (c *Client) queued(ctx context.Context, cl call, out any) error {
	var b backoff.BackOff = &backoff.ExponentialBackOff{
		InitialInterval:     c.retryBase,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         30 * time.Second,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	b = backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(c.maxRetries, 0))), ctx)

	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		retryAfter, err := c.send(ctx, cl, out)
		var apiErr *errs.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusTooManyRequests {
			c.limiter.Failure(retryAfter)
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		c.limiter.Success()
		return nil
	}
	notify := func(err error, d time.Duration) {
		c.metrics.Retry()
		c.log.Warn("rate limited, retrying",
			zap.String("method", cl.method),
			zap.String("path", cl.path),
			zap.Duration("backoff", d))
	}
	return backoff.RetryNotify(op, b, notify)
}

// send performs one HTTP exchange. It returns the Retry-After hint of a 429 answer.
func (c *Client) send(ctx context.Context, cl call, out any) (time.Duration, error) {
	u := c.baseURL + cl.path
	if len(cl.query) > 0 {
		u += "?" + cl.query.Encode()
	}
	var body io.Reader
	var contentType string
	if cl.body != nil {
		var err error
		if body, contentType, err = cl.body(); err != nil {
			return 0, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, u, body)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.Request(cl.method, 0)
		return 0, fmt.Errorf("%s %s: %w", cl.method, cl.path, err)
	}
	defer resp.Body.Close()
	c.metrics.Request(cl.method, resp.StatusCode)
	c.log.Debug("api call",
		zap.String("method", cl.method),
		zap.String("path", cl.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("%s %s: read body: %w", cl.method, cl.path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &errs.APIError{Status: resp.StatusCode, Message: errorMessage(raw)}
		if resp.StatusCode == http.StatusUnauthorized && c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return retryAfter(resp.Header.Get("Retry-After")), apiErr
	}
	return 0, decodeEnvelope(resp.StatusCode, raw, out)
}

// envelope is the backend's {success, message, data} wrapper.
type envelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// decodeEnvelope unwraps data when present; bodies without data decode directly.
func decodeEnvelope(status int, raw []byte, out any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	var env envelope
	if raw[0] == '{' {
		if err := json.Unmarshal(raw, &env); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		if env.Success != nil && !*env.Success {
			return &errs.APIError{Status: status, Message: env.Message}
		}
	}
	if out == nil {
		return nil
	}
	payload := raw
	if len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
		payload = env.Data
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// maxErrorRunes caps a plain-text error body quoted in an error.
const maxErrorRunes = 200

func errorMessage(raw []byte) string {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Message != "" {
		return env.Message
	}
	var alt struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &alt); err == nil && alt.Error != "" {
		return alt.Error
	}
	s := strings.TrimSpace(string(raw))
	if r := []rune(s); len(r) > maxErrorRunes {
		s = string(r[:maxErrorRunes])
	}
	return s
}

// retryAfter parses a Retry-After header in seconds or HTTP-date form.
func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// pathID escapes an id for use as a path segment.
func pathID(id string) string { return url.PathEscape(id) }
