package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                   = errors.New("not found")
	ErrItemInactive               = errors.New("item is not accepting requests")
	ErrInvalidRange               = errors.New("return date must be after borrow date")
	ErrPastDate                   = errors.New("borrow date is in the past")
	ErrDateTooFar                 = errors.New("borrow date is too far in the future")
	ErrInvalidQuantity            = errors.New("quantity must be at least 1")
	ErrInvalidStatus              = errors.New("unknown status")
	ErrInvalidItem                = errors.New("invalid item")
	ErrInsufficientCapacity       = errors.New("insufficient capacity")
	ErrCapacityNoLongerSufficient = errors.New("capacity no longer sufficient")
	ErrInvalidTransition          = errors.New("status transition not allowed")
	ErrConcurrentModification     = errors.New("request was modified concurrently")
	ErrTransientStore             = errors.New("data store unavailable")
	ErrLockTimeout                = errors.New("timed out waiting for item lock")
	ErrRateLimited                = errors.New("too many requests")
)

// InsufficientCapacityError carries the free-unit count back to the borrower.
type InsufficientCapacityError struct {
	Available int64
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("insufficient capacity: %d available", e.Available)
}

func (e *InsufficientCapacityError) Is(target error) bool {
	return target == ErrInsufficientCapacity
}

// IsRejection reports whether err is a business or input rejection rather than
// an infrastructure failure.
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrItemInactive, ErrInvalidRange, ErrPastDate, ErrDateTooFar,
		ErrInvalidQuantity, ErrInvalidStatus, ErrInvalidItem, ErrInsufficientCapacity,
		ErrCapacityNoLongerSufficient, ErrInvalidTransition, ErrConcurrentModification,
		ErrRateLimited,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
