package models

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusReturned = "returned"
)

// ActiveStatuses compete for capacity. A pending request has already been promised
// provisional availability, so it counts the same as an approved one.
var ActiveStatuses = []string{StatusPending, StatusApproved}

const (
	// DefaultMaxAdvanceDays how far ahead a borrow date may be placed
	DefaultMaxAdvanceDays = 365

	// SubmissionRateLimit requests a single user may submit per window
	SubmissionRateLimit = 10

	// SubmissionRateWindow window of the submission limit, seconds
	SubmissionRateWindow = 60

	// WorkerQueueSize size of the in-memory sync queue
	WorkerQueueSize = 128

	// LockTTL lifetime of a distributed item lock, seconds
	LockTTL = 10
)

func IsActiveStatus(status string) bool {
	return status == StatusPending || status == StatusApproved
}

func IsKnownStatus(status string) bool {
	switch status {
	case StatusPending, StatusApproved, StatusRejected, StatusReturned:
		return true
	}
	return false
}

var transitions = map[string][]string{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusReturned},
}

// CanTransition reports whether staff may move a request from one status to another.
// Rejected and returned are terminal.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
