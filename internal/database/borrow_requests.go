package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"barangay/internal/domain"
	"barangay/internal/models"
)

const requestColumns = `id, item_id, item_name, user_id, borrower_name, contact_number, purpose, notes,
                 quantity, borrow_date, return_date, status, created_at, updated_at, version`

func scanRequest(row interface{ Scan(...interface{}) error }) (*models.BorrowRequest, error) {
	var r models.BorrowRequest
	var borrowDate, returnDate string
	err := row.Scan(
		&r.ID, &r.ItemID, &r.ItemName, &r.UserID, &r.BorrowerName, &r.ContactNumber, &r.Purpose, &r.Notes,
		&r.Quantity, &borrowDate, &returnDate, &r.Status, &r.CreatedAt, &r.UpdatedAt, &r.Version,
	)
	if err != nil {
		return nil, err
	}
	if r.BorrowDate, err = models.ParseDate(borrowDate); err != nil {
		return nil, fmt.Errorf("failed to parse borrow date %s: %w", borrowDate, err)
	}
	if r.ReturnDate, err = models.ParseDate(returnDate); err != nil {
		return nil, fmt.Errorf("failed to parse return date %s: %w", returnDate, err)
	}
	return &r, nil
}

func collectRequests(rows *sql.Rows) ([]*models.BorrowRequest, error) {
	defer rows.Close()

	var requests []*models.BorrowRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan borrow request: %w", err)
		}
		requests = append(requests, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate borrow requests: %w", err)
	}
	return requests, nil
}

func (db *DB) GetBorrowRequest(ctx context.Context, id int64) (*models.BorrowRequest, error) {
	return getRequest(ctx, db, id)
}

func getRequest(ctx context.Context, q queryer, id int64) (*models.BorrowRequest, error) {
	row := q.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM borrow_requests WHERE id = ?`, id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("borrow request %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get borrow request: %w", err)
	}
	return r, nil
}

// GetActiveRequests returns pending and approved requests of the item that
// overlap [start, end), ordered by borrow date, creation time and id.
func (db *DB) GetActiveRequests(ctx context.Context, itemID int64, start, end time.Time) ([]*models.BorrowRequest, error) {
	return activeOverlapping(ctx, db, itemID, start, end, 0)
}

func activeOverlapping(ctx context.Context, q queryer, itemID int64, start, end time.Time, excludeID int64) ([]*models.BorrowRequest, error) {
	query := `SELECT ` + requestColumns + `
              FROM borrow_requests
              WHERE item_id = ? AND status IN (?, ?)
                AND borrow_date < ? AND ? < return_date
                AND id != ?
              ORDER BY borrow_date, created_at, id`
	rows, err := q.QueryContext(ctx, query, itemID,
		models.StatusPending, models.StatusApproved,
		models.FormatDate(end), models.FormatDate(start), excludeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active requests: %w", err)
	}
	return collectRequests(rows)
}

// committedUnits sums active quantity overlapping [start, end) without excludeID.
func committedUnits(ctx context.Context, q queryer, itemID int64, start, end time.Time, excludeID int64) (int64, error) {
	query := `SELECT COALESCE(SUM(quantity), 0)
              FROM borrow_requests
              WHERE item_id = ? AND status IN (?, ?)
                AND borrow_date < ? AND ? < return_date
                AND id != ?`
	var sum int64
	err := q.QueryRowContext(ctx, query, itemID,
		models.StatusPending, models.StatusApproved,
		models.FormatDate(end), models.FormatDate(start), excludeID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum committed units: %w", err)
	}
	return sum, nil
}

// GetActiveRequestsByItems loads every active request for the given items in one query.
func (db *DB) GetActiveRequestsByItems(ctx context.Context, itemIDs []int64) ([]*models.BorrowRequest, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(itemIDs))
	args := []interface{}{models.StatusPending, models.StatusApproved}
	for i, id := range itemIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	query := `SELECT ` + requestColumns + `
              FROM borrow_requests
              WHERE status IN (?, ?) AND item_id IN (` + strings.Join(placeholders, ",") + `)
              ORDER BY borrow_date, created_at, id`
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get active requests by items: %w", err)
	}
	return collectRequests(rows)
}

func (db *DB) ListRequests(ctx context.Context, filter models.RequestFilter) ([]*models.BorrowRequest, error) {
	var where []string
	var args []interface{}

	if filter.ItemID != 0 {
		where = append(where, "item_id = ?")
		args = append(args, filter.ItemID)
	}
	if filter.UserID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, s)
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ",")+")")
	}
	if filter.Search != "" {
		like := "%" + escapeLike(strings.ToLower(filter.Search)) + "%"
		where = append(where, `(LOWER(borrower_name) LIKE ? ESCAPE '\' OR LOWER(purpose) LIKE ? ESCAPE '\' OR LOWER(item_name) LIKE ? ESCAPE '\')`)
		args = append(args, like, like, like)
	}

	query := `SELECT ` + requestColumns + ` FROM borrow_requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY borrow_date, created_at, id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list borrow requests: %w", err)
	}
	return collectRequests(rows)
}

// CreateBorrowRequestWithLock checks the item, re-validates capacity and
// inserts the request inside one immediate transaction.
func (db *DB) CreateBorrowRequestWithLock(ctx context.Context, request *models.BorrowRequest) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// 1. Item must exist and accept requests
	item, err := getItem(ctx, tx, request.ItemID)
	if err != nil {
		return err
	}
	if !item.IsActive {
		return domain.ErrItemInactive
	}

	// 2. Check capacity inside transaction
	committed, err := committedUnits(ctx, tx, item.ID, request.BorrowDate, request.ReturnDate, 0)
	if err != nil {
		return fmt.Errorf("failed to check availability in tx: %w", err)
	}
	available := item.TotalUnits - committed
	if available < 0 {
		available = 0
	}
	if request.Quantity > available {
		return &domain.InsufficientCapacityError{Available: available}
	}

	// 3. Create request
	query := `INSERT INTO borrow_requests (
				item_id, item_name, user_id, borrower_name, contact_number, purpose, notes,
				quantity, borrow_date, return_date, status, created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, query,
		item.ID,
		item.Name,
		request.UserID,
		request.BorrowerName,
		request.ContactNumber,
		request.Purpose,
		request.Notes,
		request.Quantity,
		models.FormatDate(request.BorrowDate),
		models.FormatDate(request.ReturnDate),
		models.StatusPending,
		now,
		now,
		1,
	)
	if err != nil {
		return fmt.Errorf("failed to insert borrow request in tx: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id in tx: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit borrow request: %w", err)
	}

	request.ID = id
	request.ItemName = item.Name
	request.Status = models.StatusPending
	request.CreatedAt = now
	request.UpdatedAt = now
	request.Version = 1
	return nil
}

func (db *DB) TransitionStatusWithCheck(ctx context.Context, id, expectedVersion int64, status string) (*models.BorrowRequest, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	request, err := getRequest(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if expectedVersion != 0 && request.Version != expectedVersion {
		return nil, domain.ErrConcurrentModification
	}
	if !models.CanTransition(request.Status, status) {
		return nil, fmt.Errorf("%s -> %s: %w", request.Status, status, domain.ErrInvalidTransition)
	}

	if status == models.StatusApproved {
		item, err := getItem(ctx, tx, request.ItemID)
		if err != nil {
			return nil, err
		}
		committed, err := committedUnits(ctx, tx, item.ID, request.BorrowDate, request.ReturnDate, request.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check availability in tx: %w", err)
		}
		if item.TotalUnits-committed < request.Quantity {
			return nil, domain.ErrCapacityNoLongerSufficient
		}
	}

	now := time.Now().UTC()
	query := `UPDATE borrow_requests SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := tx.ExecContext(ctx, query, status, now, id, request.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to update borrow request status: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, domain.ErrConcurrentModification
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit status change: %w", err)
	}

	request.Status = status
	request.Version++
	request.UpdatedAt = now
	return request, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes user input match literally inside a LIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
