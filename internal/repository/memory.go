package repository

import (
	"context"
	"sync"
	"time"
)

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

const sweepInterval = time.Minute

// MemoryRateLimiter is the single-instance fallback for RedisRateLimiter.
// It counts fixed windows per user, like INCR+EXPIRE does in Redis. Expired
// entries are swept at most once per sweepInterval.
type MemoryRateLimiter struct {
	mu        sync.Mutex
	entries   map[int64]*rateLimitEntry
	lastSweep time.Time
	now       func() time.Time
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{
		entries: make(map[int64]*rateLimitEntry),
		now:     time.Now,
	}
}

func (r *MemoryRateLimiter) CheckRateLimit(_ context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sweep(now)

	entry, ok := r.entries[userID]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.entries[userID] = entry
	}
	entry.count++

	return entry.count <= limit, nil
}

func (r *MemoryRateLimiter) sweep(now time.Time) {
	if now.Sub(r.lastSweep) < sweepInterval {
		return
	}
	for userID, entry := range r.entries {
		if now.After(entry.expiresAt) {
			delete(r.entries, userID)
		}
	}
	r.lastSweep = now
}
