// Package apiclient is the JSON-over-HTTP wrapper shared by every REST
// surface prospector talks to. It owns timeouts, rate limiting and the
// classification of failures into retryable and non-retryable kinds.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout = 15 * time.Second
	maxErrorBody   = 512
	userAgent      = "prospector/1.0"
)

type Client struct {
	baseURL *url.URL
	http    *http.Client
	timeout time.Duration
	limiter *rate.Limiter
	token   string
	logger  *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLimiter caps the outbound request rate. A non-positive rate disables it.
func WithLimiter(reqPerSec float64, burst int) Option {
	return func(c *Client) {
		if reqPerSec <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(reqPerSec), burst)
	}
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{},
		timeout: DefaultTimeout,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type callConfig struct {
	timeout time.Duration
}

type CallOption func(*callConfig)

// CallTimeout overrides the client timeout for one call. Enrichment runs on
// the server side of some endpoints and needs far more than the default.
func CallTimeout(d time.Duration) CallOption {
	return func(cc *callConfig) {
		if d > 0 {
			cc.timeout = d
		}
	}
}

func (c *Client) Get(ctx context.Context, path string, query url.Values, out any, opts ...CallOption) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out, opts)
}

func (c *Client) Post(ctx context.Context, path string, body, out any, opts ...CallOption) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out, opts)
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, opts []CallOption) error {
	cc := callConfig{timeout: c.timeout}
	for _, opt := range opts {
		opt(&cc)
	}

	ctx, cancel := context.WithTimeout(ctx, cc.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			// Wait fails early when the deadline cannot be met.
			kind := KindTimeout
			if ctx.Err() != nil {
				kind = classifyTransport(ctx.Err())
			}
			return &Error{Kind: kind, Method: method, Path: path, Err: err}
		}
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		kind := classifyTransport(err)
		c.logger.Warn("Request failed", "method", method, "path", path, "request_id", reqID, "kind", kind, "err", err)
		return &Error{Kind: kind, Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("Request complete", "method", method, "path", path, "request_id", reqID,
		"status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		e := &Error{
			Kind:       classifyStatus(resp.StatusCode),
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       string(snippet),
		}
		if e.Kind == KindRateLimited {
			e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		}
		return e
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		kind := KindDecode
		if ctx.Err() != nil {
			kind = classifyTransport(ctx.Err())
		}
		return &Error{Kind: kind, Method: method, Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode JSON: %w", err)}
	}
	return nil
}
