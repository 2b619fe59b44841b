package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"barangay/internal/domain"
	"barangay/internal/models"

	"github.com/jackc/pgx/v5"
)

const itemColumns = `id, name, category, description, total_units, sort_order, is_active, created_at, updated_at`

func scanItem(row pgx.Row) (*models.Item, error) {
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

func getItem(ctx context.Context, q queryer, id int64, forUpdate bool) (*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	item, err := scanItem(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("item %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

func (s *Store) GetItemByID(ctx context.Context, id int64) (*models.Item, error) {
	return getItem(ctx, s.pool, id, false)
}

func (s *Store) GetItems(ctx context.Context, includeInactive bool) ([]*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items`
	if !includeInactive {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY sort_order, id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) CreateItem(ctx context.Context, item *models.Item) error {
	now := time.Now().UTC()
	err := s.pool.QueryRow(ctx,
		`INSERT INTO items (name, category, description, total_units, sort_order, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		 RETURNING id`,
		item.Name, item.Category, item.Description, item.TotalUnits, item.SortOrder, item.IsActive, now,
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	item.CreatedAt = now
	item.UpdatedAt = now
	return nil
}

func (s *Store) UpdateItem(ctx context.Context, item *models.Item) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE items SET name = $1, category = $2, description = $3, total_units = $4,
		        sort_order = $5, is_active = $6, updated_at = $7
		 WHERE id = $8`,
		item.Name, item.Category, item.Description, item.TotalUnits, item.SortOrder, item.IsActive, now, item.ID,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("item %d: %w", item.ID, domain.ErrNotFound)
	}
	item.UpdatedAt = now
	return nil
}

// SyncItems upserts the seed catalogue by name in one batch.
func (s *Store) SyncItems(ctx context.Context, items []*models.Item) error {
	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(
			`INSERT INTO items (name, category, description, total_units, sort_order, is_active, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
			 ON CONFLICT (name) DO UPDATE SET
			     category = EXCLUDED.category,
			     description = EXCLUDED.description,
			     total_units = EXCLUDED.total_units,
			     sort_order = EXCLUDED.sort_order,
			     is_active = EXCLUDED.is_active,
			     updated_at = EXCLUDED.updated_at`,
			item.Name, item.Category, item.Description, item.TotalUnits, item.SortOrder, item.IsActive, now,
		)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("sync items: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit items: %w", err)
	}

	s.logger.Info().Int("count", len(items)).Msg("Items synced")
	return nil
}
