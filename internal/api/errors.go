package api

import (
	"errors"
	"net/http"

	"barangay/internal/domain"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type errorMapping struct {
	target error
	status int
	code   codes.Code
	reason string
}

// Order matters: the first match wins.
var errorMappings = []errorMapping{
	{domain.ErrNotFound, http.StatusNotFound, codes.NotFound, "not_found"},
	{domain.ErrItemInactive, http.StatusBadRequest, codes.FailedPrecondition, "item_inactive"},
	{domain.ErrInvalidRange, http.StatusBadRequest, codes.InvalidArgument, "invalid_range"},
	{domain.ErrPastDate, http.StatusBadRequest, codes.InvalidArgument, "past_date"},
	{domain.ErrDateTooFar, http.StatusBadRequest, codes.InvalidArgument, "date_too_far"},
	{domain.ErrInvalidQuantity, http.StatusBadRequest, codes.InvalidArgument, "invalid_quantity"},
	{domain.ErrInvalidStatus, http.StatusBadRequest, codes.InvalidArgument, "invalid_status"},
	{domain.ErrInvalidItem, http.StatusBadRequest, codes.InvalidArgument, "invalid_item"},
	{domain.ErrInsufficientCapacity, http.StatusBadRequest, codes.FailedPrecondition, "insufficient_capacity"},
	{domain.ErrCapacityNoLongerSufficient, http.StatusConflict, codes.FailedPrecondition, "capacity_no_longer_sufficient"},
	{domain.ErrInvalidTransition, http.StatusConflict, codes.FailedPrecondition, "invalid_transition"},
	{domain.ErrConcurrentModification, http.StatusConflict, codes.Aborted, "concurrent_modification"},
	{domain.ErrRateLimited, http.StatusTooManyRequests, codes.ResourceExhausted, "rate_limited"},
	{domain.ErrLockTimeout, http.StatusServiceUnavailable, codes.Unavailable, "lock_timeout"},
	{domain.ErrTransientStore, http.StatusServiceUnavailable, codes.Unavailable, "store_unavailable"},
}

var internalError = errorMapping{status: http.StatusInternalServerError, code: codes.Internal, reason: "internal"}

func classify(err error) errorMapping {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m
		}
	}
	return internalError
}

// publicMessage hides driver details behind 5xx answers.
func publicMessage(err error, m errorMapping) string {
	switch m.status {
	case http.StatusServiceUnavailable:
		return "service temporarily unavailable, try again"
	case http.StatusInternalServerError:
		return "internal error"
	default:
		return err.Error()
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	Reason    string `json:"reason,omitempty"`
	Available *int64 `json:"available,omitempty"`
}

func newErrorResponse(err error) (int, errorResponse) {
	m := classify(err)
	resp := errorResponse{Error: publicMessage(err, m), Reason: m.reason}

	var capErr *domain.InsufficientCapacityError
	if errors.As(err, &capErr) {
		available := capErr.Available
		resp.Available = &available
	}
	return m.status, resp
}

func grpcError(err error) error {
	m := classify(err)
	return status.Error(m.code, publicMessage(err, m))
}
