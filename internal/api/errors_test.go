package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"barangay/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestNewErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantReason string
	}{
		{"NotFound", domain.ErrNotFound, http.StatusNotFound, "not_found"},
		{"WrappedRange", fmt.Errorf("admission: %w", domain.ErrInvalidRange), http.StatusBadRequest, "invalid_range"},
		{"Inactive", domain.ErrItemInactive, http.StatusBadRequest, "item_inactive"},
		{"NoLongerSufficient", domain.ErrCapacityNoLongerSufficient, http.StatusConflict, "capacity_no_longer_sufficient"},
		{"Transition", fmt.Errorf("approved -> rejected: %w", domain.ErrInvalidTransition), http.StatusConflict, "invalid_transition"},
		{"Version", domain.ErrConcurrentModification, http.StatusConflict, "concurrent_modification"},
		{"RateLimited", domain.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{"LockTimeout", domain.ErrLockTimeout, http.StatusServiceUnavailable, "lock_timeout"},
		{"Transient", fmt.Errorf("%w: disk I/O error", domain.ErrTransientStore), http.StatusServiceUnavailable, "store_unavailable"},
		{"Unknown", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := newErrorResponse(tt.err)
			assert.Equal(t, tt.wantStatus, code)
			assert.Equal(t, tt.wantReason, resp.Reason)
			assert.Nil(t, resp.Available)
		})
	}
}

func TestNewErrorResponse_Capacity(t *testing.T) {
	code, resp := newErrorResponse(&domain.InsufficientCapacityError{Available: 2})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "insufficient_capacity", resp.Reason)
	require.NotNil(t, resp.Available)
	assert.Equal(t, int64(2), *resp.Available)
}

func TestNewErrorResponse_HidesDriverErrors(t *testing.T) {
	_, resp := newErrorResponse(fmt.Errorf("%w: database is locked", domain.ErrTransientStore))
	assert.NotContains(t, resp.Error, "database is locked")
}

func TestGRPCError(t *testing.T) {
	assert.Equal(t, codes.NotFound, status.Code(grpcError(domain.ErrNotFound)))
	assert.Equal(t, codes.InvalidArgument, status.Code(grpcError(domain.ErrPastDate)))
	assert.Equal(t, codes.Unavailable, status.Code(grpcError(domain.ErrTransientStore)))
	assert.Equal(t, codes.Aborted, status.Code(grpcError(domain.ErrConcurrentModification)))
	assert.Equal(t, codes.Internal, status.Code(grpcError(errors.New("boom"))))
}
