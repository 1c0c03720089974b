package rate

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrBackendUnavailable wraps backend failures. Check still returns a
// usable, fail-open Result alongside it.
var ErrBackendUnavailable = errors.New("rate limit backend unavailable")

// Result is the outcome of one counter check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Backend is a counter store. Incr atomically increments the counter for
// key, attaching an expiry of window on the first increment, and returns
// the new count plus the remaining window.
type Backend interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
	Close() error
}

// Limiter counts requests per (identifier, limit, window) key against a
// backend chosen at construction time.
type Limiter struct {
	backend Backend
	now     func() time.Time
}

// New returns a Limiter over the given backend.
func New(backend Backend) *Limiter {
	return &Limiter{backend: backend, now: time.Now}
}

// Check increments the counter for identifier and reports whether the call
// is within budget. On backend failure it returns an allowed Result and a
// non-nil error wrapping [ErrBackendUnavailable] so the caller can log the
// fail-open.
func (l *Limiter) Check(ctx context.Context, identifier string, limit int, window time.Duration) (Result, error) {
	key := counterKey(identifier, limit, window)

	count, ttl, err := l.backend.Incr(ctx, key, window)
	if err != nil {
		return Result{
			Allowed:   true,
			Limit:     limit,
			Remaining: limit,
			ResetAt:   l.now().Add(window),
		}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   l.now().Add(ttl),
	}, nil
}

// Close releases backend resources (the in-process sweeper, if any).
func (l *Limiter) Close() error {
	if l == nil || l.backend == nil {
		return nil
	}
	return l.backend.Close()
}

// counterKey scopes counters by limit and window so callers overriding the
// policy for the same identifier never share a window.
func counterKey(identifier string, limit int, window time.Duration) string {
	return fmt.Sprintf("rl:%s:%d:%d", identifier, limit, int(window.Seconds()))
}
