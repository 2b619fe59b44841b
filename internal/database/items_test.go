package database

import (
	"context"
	"testing"

	"barangay/internal/domain"
	"barangay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemCRUD(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	item := &models.Item{
		Name:        "Folding table",
		Category:    "furniture",
		Description: "6ft",
		TotalUnits:  5,
		SortOrder:   10,
		IsActive:    true,
	}
	require.NoError(t, db.CreateItem(ctx, item))
	assert.NotZero(t, item.ID)

	found, err := db.GetItemByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.Description, found.Description)
	assert.Equal(t, item.TotalUnits, found.TotalUnits)

	found.TotalUnits = 2
	found.IsActive = false
	require.NoError(t, db.UpdateItem(ctx, found))

	updated, err := db.GetItemByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.TotalUnits)
	assert.False(t, updated.IsActive)

	active, err := db.GetItems(ctx, false)
	require.NoError(t, err)
	assert.Len(t, active, 0)

	all, err := db.GetItems(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestItemNotFound(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	_, err := db.GetItemByID(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = db.UpdateItem(context.Background(), &models.Item{ID: 42, Name: "ghost"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSyncItems(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	seed := []*models.Item{
		{Name: "Sound system", TotalUnits: 1, SortOrder: 2, IsActive: true},
		{Name: "Monobloc chair", TotalUnits: 100, SortOrder: 1, IsActive: true},
	}
	require.NoError(t, db.SyncItems(ctx, seed))

	items, err := db.GetItems(ctx, false)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Monobloc chair", items[0].Name)
	firstID := items[0].ID

	seed[1].TotalUnits = 80
	require.NoError(t, db.SyncItems(ctx, seed))

	items, err = db.GetItems(ctx, false)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, firstID, items[0].ID, "upsert keeps ids stable")
	assert.Equal(t, int64(80), items[0].TotalUnits)
}
