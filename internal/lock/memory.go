// Package lock provides per-item serialization points for admission decisions.
package lock

import (
	"context"
	"fmt"
	"sync"

	"barangay/internal/domain"
)

// MemoryLocker is a keyed mutex for a single process. Waiting honours ctx.
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[int64]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{slots: make(map[int64]*slot)}
}

func (l *MemoryLocker) acquireSlot(itemID int64) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[itemID]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[itemID] = s
	}
	s.refs++
	return s
}

func (l *MemoryLocker) releaseSlot(itemID int64, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, itemID)
	}
}

func (l *MemoryLocker) Lock(ctx context.Context, itemID int64) (func(), error) {
	s := l.acquireSlot(itemID)

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.releaseSlot(itemID, s)
		return nil, fmt.Errorf("item %d: %w", itemID, domain.ErrLockTimeout)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.releaseSlot(itemID, s)
		})
	}, nil
}
