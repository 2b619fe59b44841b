package models

import "time"

// BorrowRequest reserves Quantity units of one item over [BorrowDate, ReturnDate).
type BorrowRequest struct {
	ID            int64     `json:"id"`
	ItemID        int64     `json:"item_id"`
	ItemName      string    `json:"item_name"`
	UserID        int64     `json:"user_id"`
	BorrowerName  string    `json:"borrower_name"`
	ContactNumber string    `json:"contact_number"`
	Purpose       string    `json:"purpose"`
	Notes         string    `json:"notes"`
	Quantity      int64     `json:"quantity"`
	BorrowDate    time.Time `json:"borrow_date"`
	ReturnDate    time.Time `json:"return_date"`
	Status        string    `json:"status"` // pending, approved, rejected, returned
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Version       int64     `json:"version"`
}

// IsActive reports whether the request still holds capacity.
func (r *BorrowRequest) IsActive() bool {
	return IsActiveStatus(r.Status)
}

// IsOverdue is derived, never stored: approved and today is past the return date.
func (r *BorrowRequest) IsOverdue(today time.Time) bool {
	return r.Status == StatusApproved && TruncateDate(today).After(r.ReturnDate)
}

// RequestFilter narrows the staff listing. Zero values mean "any".
type RequestFilter struct {
	ItemID   int64
	UserID   int64
	Statuses []string
	Search   string
}

// Conflict is the public view of an overlapping active request.
type Conflict struct {
	RequestID    int64  `json:"request_id"`
	UserID       int64  `json:"user_id"`
	BorrowerName string `json:"borrower_name"`
	Quantity     int64  `json:"quantity"`
	BorrowDate   string `json:"borrow_date"`
	ReturnDate   string `json:"return_date"`
	Status       string `json:"status"`
}

// NewConflict builds the display form of r.
func NewConflict(r *BorrowRequest) Conflict {
	return Conflict{
		RequestID:    r.ID,
		UserID:       r.UserID,
		BorrowerName: r.BorrowerName,
		Quantity:     r.Quantity,
		BorrowDate:   FormatDate(r.BorrowDate),
		ReturnDate:   FormatDate(r.ReturnDate),
		Status:       r.Status,
	}
}

// AvailabilityInfo is attached to every row of the staff listing.
type AvailabilityInfo struct {
	Total         int64      `json:"total"`
	Available     int64      `json:"available"`
	Reserved      int64      `json:"reserved"`
	CanApprove    bool       `json:"can_approve"`
	Overcommitted bool       `json:"overcommitted"`
	Overdue       bool       `json:"overdue"`
	Conflicts     []Conflict `json:"conflicts"`
}

type EnrichedRequest struct {
	*BorrowRequest
	AvailabilityInfo AvailabilityInfo `json:"availability_info"`
}

// Availability answers a borrower's "how many are free" query.
type Availability struct {
	ItemID        int64      `json:"item_id"`
	ItemName      string     `json:"item_name"`
	BorrowDate    string     `json:"borrow_date"`
	ReturnDate    string     `json:"return_date"`
	Total         int64      `json:"total"`
	Available     int64      `json:"available"`
	Reserved      int64      `json:"reserved"`
	Overcommitted bool       `json:"overcommitted"`
	Conflicts     []Conflict `json:"conflicts"`
}

// BorrowInput is what a borrower submits.
type BorrowInput struct {
	ItemID        int64     `json:"item_id"`
	UserID        int64     `json:"user_id"`
	BorrowerName  string    `json:"borrower_name"`
	ContactNumber string    `json:"contact_number"`
	Purpose       string    `json:"purpose"`
	Notes         string    `json:"notes"`
	Quantity      int64     `json:"quantity"`
	BorrowDate    time.Time `json:"borrow_date"`
	ReturnDate    time.Time `json:"return_date"`
}
