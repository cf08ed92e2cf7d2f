// Package youtube is the metadata client for the video platform's Data API v3.
// Every request goes through the credential rotator and, when configured, the result cache.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"CrateDigger/internal/cache"
	"CrateDigger/internal/credentials"
)

const (
	DefaultBaseURL = "https://www.googleapis.com/youtube/v3"
	userAgent      = "CrateDigger/1.0"
	maxPageSize    = 50
)

// ErrNotFound is returned when a referenced channel or playlist does not exist upstream.
var ErrNotFound = errors.New("youtube: not found")

// Config holds request pacing, timeouts and cache lifetimes.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	SearchTTL         time.Duration
	DetailsTTL        time.Duration
	ListTTL           time.Duration
}

// Client implements search, batch detail lookup and list enumeration.
type Client struct {
	baseURL string
	timeout time.Duration
	ttl     Config
	http    *http.Client
	rotator *credentials.Rotator
	limiter *rate.Limiter
	cache   *cache.Cache
	logger  *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithCache enables result caching.
func WithCache(rc *cache.Cache) Option {
	return func(c *Client) { c.cache = rc }
}

// WithLogger attaches a logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient wires a client; zero Config fields fall back to defaults.
func NewClient(cfg Config, rotator *credentials.Rotator, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	c := &Client{
		baseURL: cfg.BaseURL,
		timeout: cfg.Timeout,
		ttl:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		rotator: rotator,
		limiter: rate.NewLimiter(limit, cfg.Burst),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get performs one rotated GET and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, mode credentials.Mode, endpoint string, params url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.rotator.Do(ctx, mode, func(ctx context.Context, key string) (*http.Response, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		q := url.Values{}
		for k, v := range params {
			q[k] = v
		}
		q.Set("key", key)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+endpoint+"?"+q.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: %w: %v", endpoint, credentials.ErrMalformedResponse, err)
	}
	return nil
}

func (c *Client) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func pageSize(n int) int {
	if n <= 0 || n > maxPageSize {
		return maxPageSize
	}
	return n
}

type thumbnail struct {
	URL string `json:"url"`
}

type thumbnails struct {
	Default  *thumbnail `json:"default"`
	Medium   *thumbnail `json:"medium"`
	High     *thumbnail `json:"high"`
	Standard *thumbnail `json:"standard"`
	Maxres   *thumbnail `json:"maxres"`
}

// best returns the largest available thumbnail URL.
func (t thumbnails) best() string {
	for _, th := range []*thumbnail{t.Maxres, t.Standard, t.High, t.Medium, t.Default} {
		if th != nil && th.URL != "" {
			return th.URL
		}
	}
	return ""
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}
