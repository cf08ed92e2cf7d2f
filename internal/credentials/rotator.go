package credentials

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync/atomic"
)

const maxErrorBody = 300

var quotaPattern = regexp.MustCompile(`(?i)quota|ratelimitexceeded|userratelimitexceeded|dailylimitexceeded`)

// Mode selects where a call starts in the credential list.
type Mode int

const (
	// FixedOrder always starts with the first credential.
	FixedOrder Mode = iota
	// RoundRobin starts at a rotating offset shared by every call on the rotator.
	RoundRobin
)

func (m Mode) String() string {
	if m == RoundRobin {
		return "round-robin"
	}
	return "fixed"
}

// Call performs a single HTTP request authenticated with credential.
type Call func(ctx context.Context, credential string) (*http.Response, error)

// Observer receives one event per attempt. Outcomes: ok, quota, error, transport.
type Observer interface {
	ObserveAttempt(outcome string)
}

// Rotator executes calls against an ordered credential list, moving past quota-exhausted credentials.
type Rotator struct {
	credentials []string
	offset      atomic.Uint64
	logger      *slog.Logger
	observer    Observer
}

// Option customises a Rotator.
type Option func(*Rotator)

// WithLogger attaches a logger for rotation events.
func WithLogger(l *slog.Logger) Option {
	return func(r *Rotator) { r.logger = l }
}

// WithObserver attaches an attempt observer (metrics).
func WithObserver(o Observer) Option {
	return func(r *Rotator) { r.observer = o }
}

// NewRotator keeps the non-blank credentials in their given order.
func NewRotator(credentials []string, opts ...Option) *Rotator {
	keys := make([]string, 0, len(credentials))
	for _, c := range credentials {
		if c = strings.TrimSpace(c); c != "" {
			keys = append(keys, c)
		}
	}
	r := &Rotator{credentials: keys}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Len returns the number of usable credentials.
func (r *Rotator) Len() int {
	return len(r.credentials)
}

// Do runs call with each credential in turn until one succeeds. A quota refusal moves on to the next
// credential; any other non-2xx status or transport error is returned immediately. On success the
// caller owns the response body.
func (r *Rotator) Do(ctx context.Context, mode Mode, call Call) (*http.Response, error) {
	n := len(r.credentials)
	if n == 0 {
		return nil, ErrNoCredentials
	}

	start := 0
	if mode == RoundRobin {
		start = int((r.offset.Add(1) - 1) % uint64(n))
	}

	var lastBody string
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		resp, err := call(ctx, r.credentials[idx])
		if err != nil {
			r.observe("transport")
			return nil, fmt.Errorf("credential #%d: %w", idx, err)
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			r.observe("ok")
			return resp, nil
		}

		body := readBody(resp)
		if isQuotaResponse(resp.StatusCode, body) {
			r.observe("quota")
			lastBody = body
			r.debug("credential quota exhausted", "credential", idx, "mode", mode.String(), "remaining", n-i-1)
			continue
		}

		r.observe("error")
		return nil, &APIError{Status: resp.StatusCode, Body: body}
	}

	return nil, &QuotaExhaustedError{Attempts: n, Body: lastBody}
}

func isQuotaResponse(status int, body string) bool {
	if status != http.StatusForbidden && status != http.StatusTooManyRequests {
		return false
	}
	return quotaPattern.MatchString(body)
}

func readBody(resp *http.Response) string {
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return truncate(strings.TrimSpace(string(raw)), maxErrorBody)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

func (r *Rotator) observe(outcome string) {
	if r.observer != nil {
		r.observer.ObserveAttempt(outcome)
	}
}

func (r *Rotator) debug(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}
