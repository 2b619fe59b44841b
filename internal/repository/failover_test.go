package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, userID, limit, window)
	return args.Bool(0), args.Error(1)
}

func TestFailoverRateLimiter(t *testing.T) {
	logger := zerolog.Nop()
	ctx := context.Background()

	primary := new(mockLimiter)
	fallback := NewMemoryRateLimiter()
	r := NewFailoverRateLimiter(primary, fallback, &logger)

	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	primary.On("CheckRateLimit", ctx, int64(1), 5, time.Minute).Return(false, nil).Once()
	allowed, err := r.CheckRateLimit(ctx, 1, 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed, "primary answer is used while healthy")

	primary.On("CheckRateLimit", ctx, int64(1), 5, time.Minute).Return(false, errors.New("connection refused")).Once()
	allowed, err = r.CheckRateLimit(ctx, 1, 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed, "fallback serves after primary failure")

	// Within the recovery interval primary is not consulted
	allowed, err = r.CheckRateLimit(ctx, 1, 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
	primary.AssertNumberOfCalls(t, "CheckRateLimit", 2)

	now = now.Add(2 * time.Minute)
	primary.On("CheckRateLimit", ctx, int64(1), 5, time.Minute).Return(true, nil).Once()
	allowed, err = r.CheckRateLimit(ctx, 1, 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
	primary.AssertNumberOfCalls(t, "CheckRateLimit", 3)
	primary.AssertExpectations(t)
}
