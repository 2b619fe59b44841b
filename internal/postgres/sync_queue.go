package postgres

import (
	"context"
	"fmt"
	"time"

	"barangay/internal/models"
)

const syncTaskColumns = `id, task_type, request_id, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at`

func (s *Store) CreateSyncTask(ctx context.Context, task *models.SyncTask) error {
	if task.Status == "" {
		task.Status = "pending"
	}
	now := time.Now().UTC()
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sync_queue (task_type, request_id, payload, status, retry_count, last_error, created_at, next_retry_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		task.TaskType, task.RequestID, task.Payload, task.Status, task.RetryCount, task.LastError, now, task.NextRetryAt,
	).Scan(&task.ID)
	if err != nil {
		return fmt.Errorf("create sync task: %w", err)
	}
	task.CreatedAt = now
	return nil
}

func (s *Store) GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+syncTaskColumns+`
		 FROM sync_queue
		 WHERE status IN ('pending', 'retry') AND (next_retry_at IS NULL OR next_retry_at <= $1)
		 ORDER BY created_at
		 LIMIT $2`,
		time.Now().UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query sync tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.SyncTask
	for rows.Next() {
		var t models.SyncTask
		if err := rows.Scan(
			&t.ID, &t.TaskType, &t.RequestID, &t.Payload, &t.Status, &t.RetryCount,
			&t.LastError, &t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt,
		); err != nil {
			return nil, fmt.Errorf("scan sync task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *Store) UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var lastError *string
	if errMsg != "" {
		lastError = &errMsg
	}

	var query string
	args := []any{status, lastError, nextRetryAt, id}
	switch status {
	case "retry":
		query = `UPDATE sync_queue SET status = $1, last_error = $2, next_retry_at = $3, retry_count = retry_count + 1 WHERE id = $4`
	case "completed", "failed":
		query = `UPDATE sync_queue SET status = $1, last_error = $2, next_retry_at = $3, processed_at = $5 WHERE id = $4`
		args = append(args, time.Now().UTC())
	default:
		query = `UPDATE sync_queue SET status = $1, last_error = $2, next_retry_at = $3 WHERE id = $4`
	}

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update sync task status: %w", err)
	}
	return nil
}
