package schedule

import (
	"sort"
	"time"

	"barangay/internal/models"
)

// Ledger holds the active requests of a single item and answers availability
// and conflict queries from memory.
type Ledger struct {
	item     models.Item
	requests []*models.BorrowRequest
}

// NewLedger keeps only requests of item that still hold capacity, sorted for display.
func NewLedger(item models.Item, requests []*models.BorrowRequest) *Ledger {
	active := make([]*models.BorrowRequest, 0, len(requests))
	for _, r := range requests {
		if r.ItemID == item.ID && r.IsActive() {
			active = append(active, r)
		}
	}
	SortRequests(active)
	return &Ledger{item: item, requests: active}
}

func (l *Ledger) Item() models.Item {
	return l.item
}

// Committed sums the quantity of active requests overlapping [start, end),
// skipping excludeID when it is non-zero.
func (l *Ledger) Committed(start, end time.Time, excludeID int64) int64 {
	var sum int64
	for _, r := range l.requests {
		if excludeID != 0 && r.ID == excludeID {
			continue
		}
		if Overlaps(start, end, r.BorrowDate, r.ReturnDate) {
			sum += r.Quantity
		}
	}
	return sum
}

// Available returns the free units over [start, end), never negative.
func (l *Ledger) Available(start, end time.Time, excludeID int64) int64 {
	free := l.item.TotalUnits - l.Committed(start, end, excludeID)
	if free < 0 {
		return 0
	}
	return free
}

// Overcommitted is true when stock was reduced below what is already promised.
func (l *Ledger) Overcommitted(start, end time.Time, excludeID int64) bool {
	return l.Committed(start, end, excludeID) > l.item.TotalUnits
}

// Conflicts lists active requests overlapping [start, end) in display order.
func (l *Ledger) Conflicts(start, end time.Time, excludeID int64) []*models.BorrowRequest {
	var out []*models.BorrowRequest
	for _, r := range l.requests {
		if excludeID != 0 && r.ID == excludeID {
			continue
		}
		if Overlaps(start, end, r.BorrowDate, r.ReturnDate) {
			out = append(out, r)
		}
	}
	return out
}

// Info builds the staff decision aid for one request of this ledger's item.
func (l *Ledger) Info(r *models.BorrowRequest, today time.Time) models.AvailabilityInfo {
	available := l.Available(r.BorrowDate, r.ReturnDate, r.ID)
	conflicts := l.Conflicts(r.BorrowDate, r.ReturnDate, r.ID)

	info := models.AvailabilityInfo{
		Total:         l.item.TotalUnits,
		Available:     available,
		Reserved:      l.item.TotalUnits - available,
		CanApprove:    r.Status == models.StatusPending && r.Quantity <= available,
		Overcommitted: l.Overcommitted(r.BorrowDate, r.ReturnDate, r.ID),
		Overdue:       r.IsOverdue(today),
		Conflicts:     make([]models.Conflict, 0, len(conflicts)),
	}
	for _, c := range conflicts {
		info.Conflicts = append(info.Conflicts, models.NewConflict(c))
	}
	return info
}

// SortRequests orders by borrow date, then creation time, then id.
func SortRequests(requests []*models.BorrowRequest) {
	sort.SliceStable(requests, func(i, j int) bool {
		a, b := requests[i], requests[j]
		if !a.BorrowDate.Equal(b.BorrowDate) {
			return a.BorrowDate.Before(b.BorrowDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
