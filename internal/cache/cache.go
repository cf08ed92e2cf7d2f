// Package cache implements the process-wide TTL cache that shields the platform API from repeated lookups.
//
// Entries live in memory with lazy expiry on read and an optional periodic sweep. When the entry count
// reaches the configured bound, a block of the oldest-inserted entries is dropped before the insert.
// An optional second tier (Redis) survives restarts and is consulted on in-memory misses.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	defaultMaxEntries = 1000
	defaultEvictBlock = 100
	defaultRefillTTL  = 5 * time.Minute
)

// Tier is a slower, shared cache level consulted on in-memory misses.
type Tier interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Observer records hit/miss outcomes.
type Observer interface {
	ObserveLookup(hit bool)
}

type entry struct {
	value     []byte
	expiresAt time.Time
	seq       uint64
}

// Cache is safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	seq        uint64
	maxEntries int
	evictBlock int
	refillTTL  time.Duration
	now        func() time.Time
	l2         Tier
	observer   Observer
	logger     *slog.Logger
}

// Option customises a Cache.
type Option func(*Cache)

// WithMaxEntries bounds the in-memory entry count.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithEvictBlock sets how many oldest entries are dropped when the bound is hit.
func WithEvictBlock(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.evictBlock = n
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithTier attaches a second cache level. refillTTL bounds how long a value copied up from it lives in memory.
func WithTier(t Tier, refillTTL time.Duration) Option {
	return func(c *Cache) {
		c.l2 = t
		if refillTTL > 0 {
			c.refillTTL = refillTTL
		}
	}
}

// WithObserver attaches a hit/miss observer.
func WithObserver(o Observer) Option {
	return func(c *Cache) { c.observer = o }
}

// WithLogger attaches a logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New builds an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:    make(map[string]*entry),
		maxEntries: defaultMaxEntries,
		evictBlock: defaultEvictBlock,
		refillTTL:  defaultRefillTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.evictBlock > c.maxEntries {
		c.evictBlock = c.maxEntries
	}
	return c
}

// Get returns the cached value for key. Expired entries are evicted and reported as misses.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if c.now().Before(e.expiresAt) {
			value := e.value
			c.mu.Unlock()
			c.observe(true)
			return value, true
		}
		delete(c.entries, key)
	}
	c.mu.Unlock()

	if c.l2 != nil {
		value, ok, err := c.l2.Get(ctx, key)
		if err != nil {
			c.debug("cache tier get failed", "key", key, "error", err)
		}
		if ok {
			c.store(key, value, c.refillTTL)
			c.observe(true)
			return value, true
		}
	}

	c.observe(false)
	return nil, false
}

// Set stores value under key for ttl. Non-positive ttl is ignored.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.store(key, value, ttl)

	if c.l2 != nil {
		if err := c.l2.Set(ctx, key, value, ttl); err != nil {
			c.debug("cache tier set failed", "key", key, "error", err)
		}
	}
}

func (c *Cache) store(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.seq++
	c.entries[key] = &entry{value: value, expiresAt: c.now().Add(ttl), seq: c.seq}
}

func (c *Cache) evictOldestLocked() {
	type aged struct {
		key string
		seq uint64
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{key: k, seq: e.seq})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })

	n := c.evictBlock
	if n > len(all) {
		n = len(all)
	}
	for _, a := range all[:n] {
		delete(c.entries, a.key)
	}
}

// Clear drops every in-memory entry. The second tier expires on its own.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.mu.Unlock()
}

// Len returns the number of in-memory entries, expired ones included until swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep removes expired entries and returns how many were dropped.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.debug("cache swept", "removed", n)
			}
		}
	}
}

func (c *Cache) observe(hit bool) {
	if c.observer != nil {
		c.observer.ObserveLookup(hit)
	}
}

func (c *Cache) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

// Key builds a deterministic key from a namespace and its semantic parts.
func Key(namespace string, parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return fmt.Sprintf("cd:%s:%x", namespace, hash[:12])
}

// NormalizeSet lower-cases, trims, dedupes and sorts values so logically equal sets share a key.
func NormalizeSet(values []string) string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

// NormalizeQuery collapses whitespace and case.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// GetJSON decodes a cached JSON value. Undecodable entries count as misses.
func GetJSON[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var out T
	if c == nil {
		return out, false
	}
	raw, ok := c.Get(ctx, key)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		var zero T
		return zero, false
	}
	return out, true
}

// SetJSON encodes v and stores it.
func SetJSON[T any](ctx context.Context, c *Cache, key string, v T, ttl time.Duration) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.Set(ctx, key, raw, ttl)
}
