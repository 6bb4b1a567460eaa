// Package middleware implements the spec section 4.6 "supporting middleware
// primitives": rate limiting, compression, CORS, request-id and helmet. Each
// is a standalone `nextrush.Middleware`-returning factory taking a Config
// struct, the same functional-option-free shape teacher air.go's (deleted)
// gases/ package used, generalized to this module's `Next`-based signature.
package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/nextrush/nextrush"
)

// RateLimitStore is the pluggable per-key bucket store spec section 6
// requires: `{ get, increment, reset, clear }`. Decrement is an addition
// this module needs for `SkipSuccessfulRequests` (see the open-questions
// resolution in DESIGN.md: decrement, never reset, on a successful
// response).
type RateLimitStore interface {
	Get(key string) (count int, resetAt time.Time, ok bool)
	Increment(key string, window time.Duration) (count int, resetAt time.Time)
	Decrement(key string)
	Reset(key string)
	Clear()
}

// bucket is one key's window counter, matching spec section 3's rate-limit
// entry: `{ count, resetTime }`.
type bucket struct {
	count   int
	resetAt time.Time
}

// MemoryRateLimitStore is the default in-process `RateLimitStore`, grounded
// on `DylanHalstead-nimus/middleware/ratelimit.go`'s cleanup-sweeper shape
// (a ticker-driven goroutine that deletes stale entries) adapted from its
// token-bucket semantics to this spec's fixed-window counter. A plain
// `sync.Mutex`-guarded map is used here rather than nimus's lock-free
// `sync.Map`+atomics, since spec section 5 only requires the per-key
// increment to be atomic, not lock-free, and a single map lock keeps the
// window-reset logic (replacing a bucket wholesale) simpler to get right.
type MemoryRateLimitStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	cleanupInterval time.Duration
	stop            chan struct{}
	stopOnce        sync.Once
}

// NewMemoryRateLimitStore returns a store that sweeps expired buckets every
// cleanupInterval. A zero interval disables the sweeper; buckets are then
// only ever replaced lazily on next access.
func NewMemoryRateLimitStore(cleanupInterval time.Duration) *MemoryRateLimitStore {
	s := &MemoryRateLimitStore{
		buckets:         make(map[string]*bucket),
		cleanupInterval: cleanupInterval,
		stop:            make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go s.sweepLoop()
	}

	return s
}

func (s *MemoryRateLimitStore) sweepLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

// sweep removes every bucket whose window has already elapsed, matching
// spec section 3's rate-limit entry lifecycle: "removed when resetTime <
// now by cleanup sweeper".
func (s *MemoryRateLimitStore) sweep() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, b := range s.buckets {
		if b.resetAt.Before(now) {
			delete(s.buckets, k)
		}
	}
}

// Close stops the sweeper goroutine. Safe to call more than once.
func (s *MemoryRateLimitStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Get returns the current count and reset time for key, if a live bucket
// exists.
func (s *MemoryRateLimitStore) Get(key string) (int, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok || !b.resetAt.After(time.Now()) {
		return 0, time.Time{}, false
	}

	return b.count, b.resetAt, true
}

// Increment atomically gets-or-creates key's bucket and increments it,
// starting a fresh window if the previous one has elapsed.
func (s *MemoryRateLimitStore) Increment(key string, window time.Duration) (int, time.Time) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok || !b.resetAt.After(now) {
		b = &bucket{resetAt: now.Add(window)}
		s.buckets[key] = b
	}

	b.count++
	return b.count, b.resetAt
}

// Decrement lowers key's counter by one without touching its reset time,
// used by `SkipSuccessfulRequests` instead of a full reset.
func (s *MemoryRateLimitStore) Decrement(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.buckets[key]; ok && b.count > 0 {
		b.count--
	}
}

// Reset removes key's bucket entirely, so the next request starts a fresh
// window.
func (s *MemoryRateLimitStore) Reset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, key)
}

// Clear removes every bucket.
func (s *MemoryRateLimitStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets = make(map[string]*bucket)
}

// RateLimitConfig configures `RateLimit`, matching spec section 4.6's rate
// limiter description: a keyed store, a max-per-window admission count, and
// an optional custom handler/key function.
type RateLimitConfig struct {
	// Max is the number of requests admitted per Window before a key is
	// throttled.
	Max int

	// Window is the fixed-window duration each bucket covers.
	Window time.Duration

	// KeyFunc derives the bucket key from the request; defaults to the
	// client IP.
	KeyFunc func(c *nextrush.Context) string

	// Store is the backing `RateLimitStore`; defaults to a process-local
	// `MemoryRateLimitStore` with a 1-minute sweep.
	Store RateLimitStore

	// SkipSuccessfulRequests decrements (never resets -- see DESIGN.md's
	// open-questions resolution) the bucket counter after a response with
	// status < 400, so only requests that actually errored count against
	// the limit.
	SkipSuccessfulRequests bool

	// Handler overrides the default 429 response. retryAfter is the
	// duration until the window resets.
	Handler func(c *nextrush.Context, retryAfter time.Duration) error
}

// DefaultRateLimitConfig returns a 100-requests-per-minute, IP-keyed
// configuration backed by a `MemoryRateLimitStore`.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Max:    100,
		Window: time.Minute,
		KeyFunc: func(c *nextrush.Context) string {
			return c.Request.IP
		},
		Store: NewMemoryRateLimitStore(time.Minute),
	}
}

// RateLimit returns a windowed rate-limit middleware per spec section 4.6:
// on each request, atomically get-or-create and increment the caller's
// bucket; past Max, respond 429 with `X-RateLimit-*` headers and, when the
// window is known, `Retry-After`.
func RateLimit(cfg RateLimitConfig) nextrush.Middleware {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c *nextrush.Context) string { return c.Request.IP }
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryRateLimitStore(time.Minute)
	}
	if cfg.Max <= 0 {
		cfg.Max = 100
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}

	return func(c *nextrush.Context, next nextrush.Next) error {
		key := cfg.KeyFunc(c)
		count, resetAt := cfg.Store.Increment(key, cfg.Window)

		remaining := cfg.Max - count
		if remaining < 0 {
			remaining = 0
		}

		c.Response.Header.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
		c.Response.Header.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Response.Header.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if count > cfg.Max {
			retryAfter := time.Until(resetAt)
			if retryAfter < 0 {
				retryAfter = 0
			}

			if cfg.Handler != nil {
				return cfg.Handler(c, retryAfter)
			}

			return nextrush.ErrTooManyRequests(int(retryAfter.Seconds()) + 1)
		}

		err := next()

		if cfg.SkipSuccessfulRequests && c.Response.Status < 400 {
			cfg.Store.Decrement(key)
		}

		return err
	}
}
