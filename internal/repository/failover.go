package repository

import (
	"context"
	"sync"
	"time"

	"barangay/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverRateLimiter uses the primary limiter until it errors, then serves
// from the fallback and retries the primary once per recoveryInterval.
type FailoverRateLimiter struct {
	primary  domain.RateLimiter
	fallback domain.RateLimiter
	logger   *zerolog.Logger

	mu        sync.Mutex
	isDown    bool
	lastCheck time.Time
	now       func() time.Time
}

func NewFailoverRateLimiter(primary, fallback domain.RateLimiter, logger *zerolog.Logger) *FailoverRateLimiter {
	return &FailoverRateLimiter{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

func (r *FailoverRateLimiter) usePrimary() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.isDown || r.now().Sub(r.lastCheck) > recoveryInterval
}

func (r *FailoverRateLimiter) markDown(down bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if down && !r.isDown {
		r.logger.Error().Msg("Primary rate limiter failed, falling back to memory")
	}
	if !down && r.isDown {
		r.logger.Info().Msg("Primary rate limiter recovered")
	}
	r.isDown = down
	r.lastCheck = r.now()
}

func (r *FailoverRateLimiter) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, userID, limit, window)
		if err == nil {
			r.markDown(false)
			return allowed, nil
		}
		r.logger.Warn().Err(err).Int64("user_id", userID).Msg("Rate limit check on primary failed")
		r.markDown(true)
	}

	return r.fallback.CheckRateLimit(ctx, userID, limit, window)
}
