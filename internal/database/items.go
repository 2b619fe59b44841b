package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"barangay/internal/domain"
	"barangay/internal/models"
)

const itemColumns = `id, name, category, description, total_units, sort_order, is_active, created_at, updated_at`

func scanItem(row interface{ Scan(...interface{}) error }) (*models.Item, error) {
	var item models.Item
	err := row.Scan(
		&item.ID, &item.Name, &item.Category, &item.Description, &item.TotalUnits,
		&item.SortOrder, &item.IsActive, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (db *DB) cacheItem(item *models.Item) {
	db.mu.Lock()
	db.itemsCache[item.ID] = *item
	db.mu.Unlock()
}

func (db *DB) CreateItem(ctx context.Context, item *models.Item) error {
	query := `INSERT INTO items (name, category, description, total_units, sort_order, is_active, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, query,
		item.Name,
		item.Category,
		item.Description,
		item.TotalUnits,
		item.SortOrder,
		item.IsActive,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	item.ID = id
	item.CreatedAt = now
	item.UpdatedAt = now

	db.cacheItem(item)
	return nil
}

func (db *DB) GetItemByID(ctx context.Context, id int64) (*models.Item, error) {
	db.mu.RLock()
	cached, ok := db.itemsCache[id]
	db.mu.RUnlock()
	if ok {
		return &cached, nil
	}

	item, err := getItem(ctx, db, id)
	if err != nil {
		return nil, err
	}
	db.cacheItem(item)
	return item, nil
}

func getItem(ctx context.Context, q queryer, id int64) (*models.Item, error) {
	row := q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

func (db *DB) GetItems(ctx context.Context, includeInactive bool) ([]*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items`
	if !includeInactive {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY sort_order, id`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get items: %w", err)
	}
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}
	return items, nil
}

// UpdateItem edits an item. Lowering total_units below what is already
// committed is allowed; availability views flag the over-commitment.
func (db *DB) UpdateItem(ctx context.Context, item *models.Item) error {
	query := `UPDATE items SET name = ?, category = ?, description = ?, total_units = ?, sort_order = ?, is_active = ?, updated_at = ? WHERE id = ?`
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, query,
		item.Name, item.Category, item.Description, item.TotalUnits, item.SortOrder, item.IsActive, now, item.ID)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("item %d: %w", item.ID, domain.ErrNotFound)
	}
	item.UpdatedAt = now

	db.mu.Lock()
	delete(db.itemsCache, item.ID)
	db.mu.Unlock()
	return nil
}

// SyncItems upserts the seed catalogue by name, keeping ids stable.
func (db *DB) SyncItems(ctx context.Context, items []*models.Item) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	query := `INSERT INTO items (name, category, description, total_units, sort_order, is_active, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(name) DO UPDATE SET
                  category = excluded.category,
                  description = excluded.description,
                  total_units = excluded.total_units,
                  sort_order = excluded.sort_order,
                  is_active = excluded.is_active,
                  updated_at = excluded.updated_at`
	for _, item := range items {
		_, err := tx.ExecContext(ctx, query,
			item.Name, item.Category, item.Description, item.TotalUnits, item.SortOrder, item.IsActive, now, now)
		if err != nil {
			return fmt.Errorf("failed to sync item %s: %w", item.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit items: %w", err)
	}

	db.mu.Lock()
	db.itemsCache = make(map[int64]models.Item)
	db.mu.Unlock()

	db.logger.Info().Int("count", len(items)).Msg("Items synced")
	return nil
}
