package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"barangay/internal/domain"
	"barangay/internal/models"

	"github.com/jackc/pgx/v5"
)

const requestColumns = `id, item_id, item_name, user_id, borrower_name, contact_number, purpose, notes,
                 quantity, borrow_date, return_date, status, created_at, updated_at, version`

var activeStatuses = []string{models.StatusPending, models.StatusApproved}

func scanRequest(row pgx.Row) (*models.BorrowRequest, error) {
	var r models.BorrowRequest
	err := row.Scan(
		&r.ID, &r.ItemID, &r.ItemName, &r.UserID, &r.BorrowerName, &r.ContactNumber, &r.Purpose, &r.Notes,
		&r.Quantity, &r.BorrowDate, &r.ReturnDate, &r.Status, &r.CreatedAt, &r.UpdatedAt, &r.Version,
	)
	if err != nil {
		return nil, err
	}
	r.BorrowDate = models.TruncateDate(r.BorrowDate)
	r.ReturnDate = models.TruncateDate(r.ReturnDate)
	return &r, nil
}

func collectRequests(rows pgx.Rows, err error) ([]*models.BorrowRequest, error) {
	if err != nil {
		return nil, fmt.Errorf("query borrow requests: %w", err)
	}
	defer rows.Close()

	var requests []*models.BorrowRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan borrow request: %w", err)
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

func getRequest(ctx context.Context, q queryer, id int64) (*models.BorrowRequest, error) {
	r, err := scanRequest(q.QueryRow(ctx, `SELECT `+requestColumns+` FROM borrow_requests WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("borrow request %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get borrow request: %w", err)
	}
	return r, nil
}

func (s *Store) GetBorrowRequest(ctx context.Context, id int64) (*models.BorrowRequest, error) {
	return getRequest(ctx, s.pool, id)
}

func (s *Store) GetActiveRequests(ctx context.Context, itemID int64, start, end time.Time) ([]*models.BorrowRequest, error) {
	return collectRequests(s.pool.Query(ctx,
		`SELECT `+requestColumns+`
		 FROM borrow_requests
		 WHERE item_id = $1 AND status = ANY($2)
		   AND borrow_date < $3 AND $4 < return_date
		 ORDER BY borrow_date, created_at, id`,
		itemID, activeStatuses, models.TruncateDate(end), models.TruncateDate(start),
	))
}

func committedUnits(ctx context.Context, q queryer, itemID int64, start, end time.Time, excludeID int64) (int64, error) {
	var sum int64
	err := q.QueryRow(ctx,
		`SELECT COALESCE(SUM(quantity), 0)::BIGINT
		 FROM borrow_requests
		 WHERE item_id = $1 AND status = ANY($2)
		   AND borrow_date < $3 AND $4 < return_date
		   AND id <> $5`,
		itemID, activeStatuses, end, start, excludeID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum committed units: %w", err)
	}
	return sum, nil
}

func (s *Store) GetActiveRequestsByItems(ctx context.Context, itemIDs []int64) ([]*models.BorrowRequest, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	return collectRequests(s.pool.Query(ctx,
		`SELECT `+requestColumns+`
		 FROM borrow_requests
		 WHERE status = ANY($1) AND item_id = ANY($2)
		 ORDER BY borrow_date, created_at, id`,
		activeStatuses, itemIDs,
	))
}

func (s *Store) ListRequests(ctx context.Context, filter models.RequestFilter) ([]*models.BorrowRequest, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.ItemID != 0 {
		where = append(where, "item_id = "+arg(filter.ItemID))
	}
	if filter.UserID != 0 {
		where = append(where, "user_id = "+arg(filter.UserID))
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "status = ANY("+arg(filter.Statuses)+")")
	}
	if filter.Search != "" {
		p := arg("%" + escapeLike(filter.Search) + "%")
		where = append(where, "(borrower_name ILIKE "+p+` ESCAPE '\' OR purpose ILIKE `+p+` ESCAPE '\' OR item_name ILIKE `+p+` ESCAPE '\')`)
	}

	query := `SELECT ` + requestColumns + ` FROM borrow_requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY borrow_date, created_at, id`

	return collectRequests(s.pool.Query(ctx, query, args...))
}

// CreateBorrowRequestWithLock locks the item row, re-validates capacity and
// inserts the request in one transaction.
func (s *Store) CreateBorrowRequestWithLock(ctx context.Context, request *models.BorrowRequest) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	item, err := getItem(ctx, tx, request.ItemID, true)
	if err != nil {
		return err
	}
	if !item.IsActive {
		return domain.ErrItemInactive
	}

	committed, err := committedUnits(ctx, tx, item.ID, request.BorrowDate, request.ReturnDate, 0)
	if err != nil {
		return err
	}
	available := max(item.TotalUnits-committed, 0)
	if request.Quantity > available {
		return &domain.InsufficientCapacityError{Available: available}
	}

	now := time.Now().UTC()
	err = tx.QueryRow(ctx,
		`INSERT INTO borrow_requests (
		     item_id, item_name, user_id, borrower_name, contact_number, purpose, notes,
		     quantity, borrow_date, return_date, status, created_at, updated_at, version
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12, 1)
		 RETURNING id`,
		item.ID, item.Name, request.UserID, request.BorrowerName, request.ContactNumber, request.Purpose, request.Notes,
		request.Quantity, request.BorrowDate, request.ReturnDate, models.StatusPending, now,
	).Scan(&request.ID)
	if err != nil {
		return fmt.Errorf("insert borrow request: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit borrow request: %w", err)
	}

	request.ItemName = item.Name
	request.Status = models.StatusPending
	request.CreatedAt = now
	request.UpdatedAt = now
	request.Version = 1
	return nil
}

func (s *Store) TransitionStatusWithCheck(ctx context.Context, id, expectedVersion int64, status string) (*models.BorrowRequest, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	request, err := getRequest(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	// Approval takes the same item row lock as admission
	if status == models.StatusApproved {
		item, err := getItem(ctx, tx, request.ItemID, true)
		if err != nil {
			return nil, err
		}
		if request, err = getRequest(ctx, tx, id); err != nil {
			return nil, err
		}
		if err := checkTransition(request, expectedVersion, status); err != nil {
			return nil, err
		}
		committed, err := committedUnits(ctx, tx, item.ID, request.BorrowDate, request.ReturnDate, request.ID)
		if err != nil {
			return nil, err
		}
		if item.TotalUnits-committed < request.Quantity {
			return nil, domain.ErrCapacityNoLongerSufficient
		}
	} else if err := checkTransition(request, expectedVersion, status); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	tag, err := tx.Exec(ctx,
		`UPDATE borrow_requests SET status = $1, version = version + 1, updated_at = $2
		 WHERE id = $3 AND version = $4`,
		status, now, id, request.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("update borrow request status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrConcurrentModification
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit status change: %w", err)
	}

	request.Status = status
	request.Version++
	request.UpdatedAt = now
	return request, nil
}

func checkTransition(r *models.BorrowRequest, expectedVersion int64, status string) error {
	if expectedVersion != 0 && r.Version != expectedVersion {
		return domain.ErrConcurrentModification
	}
	if !models.CanTransition(r.Status, status) {
		return fmt.Errorf("%s -> %s: %w", r.Status, status, domain.ErrInvalidTransition)
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes user input match literally inside an ILIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
