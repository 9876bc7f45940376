package ratelimit

import (
	"sync"
	"time"

	"github.com/vytor/lingoflash/internal/logger"
)

const (
	DefaultLimit  = 10
	DefaultWindow = 60 * time.Second
)

// Limiter is a fixed-window counter keyed by actor. The window for a key
// opens on its first call and resets once it expires, not when consumed.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	windows map[string]*window
	now     func() time.Time
	log     *logger.Logger
}

type window struct {
	start time.Time
	count int
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a Limiter allowing limit calls per window for each key.
// Non-positive values fall back to 10 per minute.
func New(limit int, win time.Duration, opts ...Option) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if win <= 0 {
		win = DefaultWindow
	}
	l := &Limiter{
		limit:   limit,
		window:  win,
		windows: make(map[string]*window),
		now:     time.Now,
		log:     logger.Default().WithPrefix("ratelimit"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow counts one call for key and reports whether it fits in the current window.
func (l *Limiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !now.Before(w.start.Add(l.window)) {
		w = &window{start: now}
		l.windows[key] = w
	}
	if w.count >= l.limit {
		l.log.Debug("denied %s: %d calls since %s", key, w.count, w.start.Format(time.RFC3339))
		return false
	}
	w.count++
	return true
}

// Remaining reports how many calls key may still make in its current window.
func (l *Limiter) Remaining(key string) int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !now.Before(w.start.Add(l.window)) {
		return l.limit
	}
	return l.limit - w.count
}

// Sweep forgets keys whose window has expired and returns how many were removed.
func (l *Limiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k, w := range l.windows {
		if !now.Before(w.start.Add(l.window)) {
			delete(l.windows, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
