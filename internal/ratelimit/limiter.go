// Package ratelimit enforces a per-key fixed-window quota. The window TTL is
// anchored at the first request in the window, not a rolling window, so a
// burst straddling a window boundary can see up to 2x the limit.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is the per-key quota gate.
type Limiter interface {
	// Allow counts one request against the key's window. It returns false,
	// without incrementing, once the window's count has reached the limit.
	Allow(ctx context.Context, keyID uint) (bool, error)
	// Remaining reports the quota left in the current window. An absent
	// window means the full limit.
	Remaining(ctx context.Context, keyID uint) (int, error)
	// Reset clears the key's window immediately (administrative override).
	Reset(ctx context.Context, keyID uint) error
}

type window struct {
	count     int
	expiresAt time.Time
}

// MemoryLimiter keeps windows in an in-process map. Expiry is lazy: a stale
// window is replaced the next time its key is touched.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[uint]*window
	limit   int
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryLimiter(limit int, ttl time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[uint]*window),
		limit:   limit,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, keyID uint) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[keyID]
	if !ok || now.After(w.expiresAt) {
		l.windows[keyID] = &window{count: 1, expiresAt: now.Add(l.ttl)}
		return true, nil
	}

	if w.count >= l.limit {
		return false, nil
	}

	w.count++
	return true, nil
}

func (l *MemoryLimiter) Remaining(_ context.Context, keyID uint) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[keyID]
	if !ok || l.now().After(w.expiresAt) {
		return l.limit, nil
	}

	remaining := l.limit - w.count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (l *MemoryLimiter) Reset(_ context.Context, keyID uint) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, keyID)
	return nil
}
