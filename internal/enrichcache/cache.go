// Package enrichcache remembers single-company enrichment results across
// sessions so the same company is not looked up twice within a day.
//
// The whole cache is one JSON document stored under a fixed key. Storage and
// decoding failures are logged and behave as a miss (reads) or a no-op
// (writes); they never reach the caller.
package enrichcache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shanehull/prospector/internal/model"
	"github.com/shanehull/prospector/internal/storage"
)

const (
	DefaultKey = "enrichment_cache"
	DefaultTTL = 24 * time.Hour
)

type entry struct {
	Data      model.EnrichedCompany `json:"data"`
	Timestamp int64                 `json:"timestamp"` // unix milliseconds
}

type Cache struct {
	store  storage.Store
	key    string
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu sync.Mutex
}

type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithKey(key string) Option {
	return func(c *Cache) {
		if key != "" {
			c.key = key
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func New(store storage.Store, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		key:    DefaultKey,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// KeyFor is the cache key of a company: its display name, case-folded.
func KeyFor(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func (c *Cache) load(ctx context.Context) map[string]entry {
	b, err := c.store.Get(ctx, c.key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.logger.Warn("Enrichment cache read failed", "err", err)
		}
		return map[string]entry{}
	}
	m := map[string]entry{}
	if err := json.Unmarshal(b, &m); err != nil {
		c.logger.Warn("Enrichment cache is corrupt, ignoring it", "err", err)
		return map[string]entry{}
	}
	return m
}

// save writes m back under the fixed key. An empty map drops the key.
func (c *Cache) save(ctx context.Context, m map[string]entry) {
	if len(m) == 0 {
		if err := c.store.Delete(ctx, c.key); err != nil {
			c.logger.Warn("Enrichment cache delete failed", "err", err)
		}
		return
	}
	b, err := json.Marshal(m)
	if err != nil {
		c.logger.Warn("Enrichment cache encode failed", "err", err)
		return
	}
	if err := c.store.Set(ctx, c.key, b); err != nil {
		c.logger.Warn("Enrichment cache write failed", "err", err)
	}
}

func (c *Cache) expired(e entry) bool {
	return c.now().Sub(time.UnixMilli(e.Timestamp)) > c.ttl
}

// Read returns the cached payload for name if it is younger than the TTL.
// Negative results (Enriched=false) are returned like any other payload.
// An expired entry is removed.
func (c *Cache) Read(ctx context.Context, name string) (model.EnrichedCompany, bool) {
	key := KeyFor(name)
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.load(ctx)
	e, ok := m[key]
	if !ok {
		return model.EnrichedCompany{}, false
	}
	if c.expired(e) {
		delete(m, key)
		c.save(ctx, m)
		c.logger.Debug("Enrichment cache entry expired", "name", key)
		return model.EnrichedCompany{}, false
	}
	return e.Data, true
}

// Write stores payload under name with the current time, replacing any
// previous entry.
func (c *Cache) Write(ctx context.Context, name string, payload model.EnrichedCompany) {
	key := KeyFor(name)
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.load(ctx)
	m[key] = entry{Data: payload, Timestamp: c.now().UnixMilli()}
	c.save(ctx, m)
}

func (c *Cache) Delete(ctx context.Context, name string) {
	key := KeyFor(name)
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.load(ctx)
	if _, ok := m[key]; !ok {
		return
	}
	delete(m, key)
	c.save(ctx, m)
}

// Purge drops every expired entry and reports how many were removed.
func (c *Cache) Purge(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.load(ctx)
	removed := 0
	for k, e := range m {
		if c.expired(e) {
			delete(m, k)
			removed++
		}
	}
	if removed > 0 {
		c.save(ctx, m)
	}
	return removed
}

func (c *Cache) Len(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.load(ctx))
}
