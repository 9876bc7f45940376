package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vytor/lingoflash/internal/logger"
)

// DefaultTTL applies when GetOrCompute is called with a non-positive ttl.
const DefaultTTL = 24 * time.Hour

// Producer computes a value on a cache miss.
type Producer func(ctx context.Context) (string, error)

// ResponseCache memoizes expensive downstream outputs for a bounded time.
// Concurrent misses on one key share a single producer call.
type ResponseCache struct {
	mu         sync.RWMutex
	entries    map[string]entry
	group      singleflight.Group
	defaultTTL time.Duration
	now        func() time.Time
	log        *logger.Logger
}

type entry struct {
	value     string
	expiresAt time.Time
}

// Option configures a ResponseCache.
type Option func(*ResponseCache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *ResponseCache) {
		c.now = now
	}
}

// New creates a cache whose default TTL is ttl (24h when non-positive).
func New(ttl time.Duration, opts ...Option) *ResponseCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &ResponseCache{
		entries:    make(map[string]entry),
		defaultTTL: ttl,
		now:        time.Now,
		log:        logger.Default().WithPrefix("cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the live value for key. Expired entries read as misses.
func (c *ResponseCache) Get(key string) (string, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expiresAt) {
		return "", false
	}
	return e.value, true
}

// Set stores value under key for ttl.
func (c *ResponseCache) Set(key, value string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

// GetOrCompute returns the cached value for key, calling produce on a miss.
// Producer errors are returned and nothing is stored. Concurrent misses share
// one produce call, which runs detached from any single caller's
// cancellation; each caller still stops waiting when its own ctx is done.
func (c *ResponseCache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, produce Producer) (string, error) {
	if v, ok := c.Get(key); ok {
		c.log.Debug("hit key=%s", shortKey(key))
		return v, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		// Another caller may have filled the entry while we waited for the group.
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		c.log.Debug("miss key=%s", shortKey(key))
		out, err := produce(detached)
		if err != nil {
			return "", err
		}
		c.Set(key, out, ttl)
		return out, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			c.log.Debug("shared producer result key=%s", shortKey(key))
		}
		return res.Val.(string), nil
	}
}

// Sweep deletes expired entries and returns how many were removed.
func (c *ResponseCache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired ones included.
func (c *ResponseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Fingerprint derives a stable key from content. Parts are trimmed and
// line endings normalized before hashing so cosmetic edits keep the key.
func Fingerprint(parts ...string) string {
	normalized := make([]string, len(parts))
	for i, p := range parts {
		p = strings.ReplaceAll(p, "\r\n", "\n")
		normalized[i] = strings.TrimSpace(p)
	}
	sum := sha256.Sum256([]byte(strings.Join(normalized, "\n\x00\n")))
	return fmt.Sprintf("%x", sum)
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
