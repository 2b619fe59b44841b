package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"barangay/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverLocker serves locks from the primary until it errors, then from the
// fallback, retrying the primary once per recoveryInterval. Lock timeouts are
// contention, not an outage, and are returned as-is. While failed over, items
// are only serialized within this process; the store transaction still
// re-checks capacity.
type FailoverLocker struct {
	primary  domain.ItemLocker
	fallback domain.ItemLocker
	logger   *zerolog.Logger

	mu        sync.Mutex
	isDown    bool
	lastCheck time.Time
	now       func() time.Time
}

func NewFailoverLocker(primary, fallback domain.ItemLocker, logger *zerolog.Logger) *FailoverLocker {
	return &FailoverLocker{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

func (l *FailoverLocker) usePrimary() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.isDown || l.now().Sub(l.lastCheck) > recoveryInterval
}

func (l *FailoverLocker) markDown(down bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if down && !l.isDown {
		l.logger.Error().Msg("Primary item lock failed, falling back to in-process locks")
	}
	if !down && l.isDown {
		l.logger.Info().Msg("Primary item lock recovered")
	}
	l.isDown = down
	l.lastCheck = l.now()
}

func (l *FailoverLocker) Lock(ctx context.Context, itemID int64) (func(), error) {
	if l.usePrimary() {
		unlock, err := l.primary.Lock(ctx, itemID)
		if err == nil {
			l.markDown(false)
			return unlock, nil
		}
		if errors.Is(err, domain.ErrLockTimeout) || ctx.Err() != nil {
			return nil, err
		}
		l.logger.Warn().Err(err).Int64("item_id", itemID).Msg("Item lock on primary failed")
		l.markDown(true)
	}

	return l.fallback.Lock(ctx, itemID)
}
