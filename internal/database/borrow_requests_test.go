package database

import (
	"context"
	"testing"
	"time"

	"barangay/internal/domain"
	"barangay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := models.ParseDate(s)
	require.NoError(t, err)
	return d
}

func newRequest(t *testing.T, itemID, userID, qty int64, from, to string) *models.BorrowRequest {
	return &models.BorrowRequest{
		ItemID:       itemID,
		UserID:       userID,
		BorrowerName: "Juan Dela Cruz",
		Purpose:      "Fiesta",
		Quantity:     qty,
		BorrowDate:   date(t, from),
		ReturnDate:   date(t, to),
	}
}

func TestCreateBorrowRequestWithLock(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	item := createTestItem(t, db, "Chairs", 5)

	r := newRequest(t, item.ID, 1, 3, "2024-06-01", "2024-06-03")
	require.NoError(t, db.CreateBorrowRequestWithLock(ctx, r))
	assert.NotZero(t, r.ID)
	assert.Equal(t, models.StatusPending, r.Status)
	assert.Equal(t, "Chairs", r.ItemName)
	assert.Equal(t, int64(1), r.Version)

	stored, err := db.GetBorrowRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.BorrowDate, stored.BorrowDate)
	assert.Equal(t, r.ReturnDate, stored.ReturnDate)
	assert.Equal(t, int64(3), stored.Quantity)

	over := newRequest(t, item.ID, 2, 3, "2024-06-02", "2024-06-04")
	err = db.CreateBorrowRequestWithLock(ctx, over)
	require.ErrorIs(t, err, domain.ErrInsufficientCapacity)
	var capErr *domain.InsufficientCapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, int64(2), capErr.Available)

	all, err := db.ListRequests(ctx, models.RequestFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1, "rejected admission must not persist")
}

func TestCreateBorrowRequestWithLock_ItemChecks(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	err := db.CreateBorrowRequestWithLock(ctx, newRequest(t, 99, 1, 1, "2024-06-01", "2024-06-02"))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	item := createTestItem(t, db, "Tent", 1)
	item.IsActive = false
	require.NoError(t, db.UpdateItem(ctx, item))

	err = db.CreateBorrowRequestWithLock(ctx, newRequest(t, item.ID, 1, 1, "2024-06-01", "2024-06-02"))
	assert.ErrorIs(t, err, domain.ErrItemInactive)
}

func TestCreateBorrowRequestWithLock_BackToBackRanges(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	item := createTestItem(t, db, "Generator", 1)

	require.NoError(t, db.CreateBorrowRequestWithLock(ctx, newRequest(t, item.ID, 1, 1, "2024-06-01", "2024-06-03")))
	require.NoError(t, db.CreateBorrowRequestWithLock(ctx, newRequest(t, item.ID, 2, 1, "2024-06-03", "2024-06-05")))

	err := db.CreateBorrowRequestWithLock(ctx, newRequest(t, item.ID, 3, 1, "2024-06-02", "2024-06-04"))
	assert.ErrorIs(t, err, domain.ErrInsufficientCapacity)
}

func TestGetActiveRequests(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	item := createTestItem(t, db, "Chairs", 10)

	late := newRequest(t, item.ID, 1, 1, "2024-06-03", "2024-06-05")
	early := newRequest(t, item.ID, 2, 1, "2024-06-01", "2024-06-04")
	touching := newRequest(t, item.ID, 3, 1, "2024-05-30", "2024-06-01")
	rejected := newRequest(t, item.ID, 4, 1, "2024-06-02", "2024-06-03")
	for _, r := range []*models.BorrowRequest{late, early, touching, rejected} {
		require.NoError(t, db.CreateBorrowRequestWithLock(ctx, r))
	}
	_, err := db.TransitionStatusWithCheck(ctx, rejected.ID, 0, models.StatusRejected)
	require.NoError(t, err)

	got, err := db.GetActiveRequests(ctx, item.ID, date(t, "2024-06-01"), date(t, "2024-06-06"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, early.ID, got[0].ID)
	assert.Equal(t, late.ID, got[1].ID)

	again, err := db.GetActiveRequests(ctx, item.ID, date(t, "2024-06-01"), date(t, "2024-06-06"))
	require.NoError(t, err)
	assert.Equal(t, got, again)

	batch, err := db.GetActiveRequestsByItems(ctx, []int64{item.ID})
	require.NoError(t, err)
	assert.Len(t, batch, 3)
}

func TestListRequests_Filters(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	chairs := createTestItem(t, db, "Chairs", 10)
	tent := createTestItem(t, db, "Tent", 2)

	a := newRequest(t, chairs.ID, 1, 2, "2024-06-01", "2024-06-02")
	a.Purpose = "Basketball league"
	b := newRequest(t, tent.ID, 2, 1, "2024-06-01", "2024-06-02")
	b.BorrowerName = "Maria Santos"
	require.NoError(t, db.CreateBorrowRequestWithLock(ctx, a))
	require.NoError(t, db.CreateBorrowRequestWithLock(ctx, b))
	_, err := db.TransitionStatusWithCheck(ctx, b.ID, 0, models.StatusApproved)
	require.NoError(t, err)

	byItem, err := db.ListRequests(ctx, models.RequestFilter{ItemID: tent.ID})
	require.NoError(t, err)
	require.Len(t, byItem, 1)
	assert.Equal(t, b.ID, byItem[0].ID)

	byStatus, err := db.ListRequests(ctx, models.RequestFilter{Statuses: []string{models.StatusPending}})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, a.ID, byStatus[0].ID)

	byUser, err := db.ListRequests(ctx, models.RequestFilter{UserID: 2})
	require.NoError(t, err)
	assert.Len(t, byUser, 1)

	bySearch, err := db.ListRequests(ctx, models.RequestFilter{Search: "basketball"})
	require.NoError(t, err)
	require.Len(t, bySearch, 1)
	assert.Equal(t, a.ID, bySearch[0].ID)

	byName, err := db.ListRequests(ctx, models.RequestFilter{Search: "santos"})
	require.NoError(t, err)
	assert.Len(t, byName, 1)

	none, err := db.ListRequests(ctx, models.RequestFilter{Search: "karaoke"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListRequests_SearchMatchesWildcardsLiterally(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	item := createTestItem(t, db, "Chairs", 50)

	names := []string{"100% Youth Club", "1000 Youth Club", "SK_Council", "SKxCouncil"}
	ids := make(map[string]int64, len(names))
	for i, name := range names {
		r := newRequest(t, item.ID, int64(i+1), 1, "2024-06-01", "2024-06-02")
		r.BorrowerName = name
		require.NoError(t, db.CreateBorrowRequestWithLock(ctx, r))
		ids[name] = r.ID
	}

	tests := []struct {
		search string
		want   string
	}{
		{"100%", "100% Youth Club"},
		{"sk_", "SK_Council"},
	}
	for _, tt := range tests {
		found, err := db.ListRequests(ctx, models.RequestFilter{Search: tt.search})
		require.NoError(t, err)
		require.Len(t, found, 1, tt.search)
		assert.Equal(t, ids[tt.want], found[0].ID)
	}
}

func TestTransitionStatusWithCheck(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	item := createTestItem(t, db, "Chairs", 5)

	r := newRequest(t, item.ID, 1, 3, "2024-06-01", "2024-06-03")
	require.NoError(t, db.CreateBorrowRequestWithLock(ctx, r))

	_, err := db.TransitionStatusWithCheck(ctx, r.ID, 0, models.StatusReturned)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = db.TransitionStatusWithCheck(ctx, r.ID, 7, models.StatusApproved)
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)

	approved, err := db.TransitionStatusWithCheck(ctx, r.ID, 1, models.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, approved.Status)
	assert.Equal(t, int64(2), approved.Version)

	returned, err := db.TransitionStatusWithCheck(ctx, r.ID, 0, models.StatusReturned)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReturned, returned.Status)

	_, err = db.TransitionStatusWithCheck(ctx, r.ID, 0, models.StatusApproved)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = db.TransitionStatusWithCheck(ctx, 999, 0, models.StatusApproved)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTransitionStatusWithCheck_CapacityConsumedInterim(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	item := createTestItem(t, db, "Chairs", 5)

	first := newRequest(t, item.ID, 1, 3, "2024-06-01", "2024-06-03")
	second := newRequest(t, item.ID, 2, 2, "2024-06-01", "2024-06-03")
	require.NoError(t, db.CreateBorrowRequestWithLock(ctx, first))
	require.NoError(t, db.CreateBorrowRequestWithLock(ctx, second))

	// Stock is reduced after both were admitted
	item.TotalUnits = 3
	require.NoError(t, db.UpdateItem(ctx, item))

	_, err := db.TransitionStatusWithCheck(ctx, first.ID, 0, models.StatusApproved)
	assert.ErrorIs(t, err, domain.ErrCapacityNoLongerSufficient)

	stored, err := db.GetBorrowRequest(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)

	_, err = db.TransitionStatusWithCheck(ctx, second.ID, 0, models.StatusRejected)
	require.NoError(t, err)

	_, err = db.TransitionStatusWithCheck(ctx, first.ID, 0, models.StatusApproved)
	assert.NoError(t, err)
}
