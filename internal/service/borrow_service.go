package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"barangay/internal/config"
	"barangay/internal/domain"
	"barangay/internal/events"
	"barangay/internal/metrics"
	"barangay/internal/models"
	"barangay/internal/schedule"

	"github.com/rs/zerolog"
)

// BorrowService is the admission controller and status lifecycle for borrow requests.
type BorrowService struct {
	repo         domain.Repository
	locker       domain.ItemLocker
	limiter      domain.RateLimiter
	notifier     domain.Notifier
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	cfg          config.BorrowingConfig
	location     *time.Location
	logger       *zerolog.Logger
	now          func() time.Time
}

func NewBorrowService(
	repo domain.Repository,
	locker domain.ItemLocker,
	eventBus domain.EventPublisher,
	sheetsWorker domain.SyncWorker,
	notifier domain.Notifier,
	cfg config.BorrowingConfig,
	logger *zerolog.Logger,
) *BorrowService {
	if cfg.LockWait <= 0 {
		cfg.LockWait = 5 * time.Second
	}
	return &BorrowService{
		repo:         repo,
		locker:       locker,
		notifier:     notifier,
		eventBus:     eventBus,
		sheetsWorker: sheetsWorker,
		cfg:          cfg,
		location:     cfg.Location(),
		logger:       logger,
		now:          time.Now,
	}
}

// SetRateLimiter enables the per-user submission limit.
func (s *BorrowService) SetRateLimiter(limiter domain.RateLimiter) {
	s.limiter = limiter
}

// SetClock replaces the wall clock used for past-date and overdue checks.
func (s *BorrowService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *BorrowService) today() time.Time {
	return models.TruncateDate(s.now().In(s.location))
}

// ValidateInput applies the ordered input checks of admission.
func (s *BorrowService) ValidateInput(input *models.BorrowInput) error {
	input.BorrowDate = models.TruncateDate(input.BorrowDate)
	input.ReturnDate = models.TruncateDate(input.ReturnDate)

	if !input.ReturnDate.After(input.BorrowDate) {
		return domain.ErrInvalidRange
	}

	today := s.today()
	if input.BorrowDate.Before(today) {
		return domain.ErrPastDate
	}

	if input.Quantity < 1 {
		return domain.ErrInvalidQuantity
	}

	if s.cfg.MaxAdvanceDays > 0 && input.BorrowDate.After(today.AddDate(0, 0, s.cfg.MaxAdvanceDays)) {
		return domain.ErrDateTooFar
	}

	return nil
}

func (s *BorrowService) CreateBorrowRequest(ctx context.Context, input models.BorrowInput) (*models.BorrowRequest, error) {
	if err := s.ValidateInput(&input); err != nil {
		metrics.IncAdmission("invalid")
		return nil, err
	}

	if err := s.checkRateLimit(ctx, input.UserID); err != nil {
		metrics.IncAdmission("rate_limited")
		return nil, err
	}

	item, err := s.repo.GetItemByID(ctx, input.ItemID)
	if err != nil {
		metrics.IncAdmission("invalid")
		return nil, storeErr(err)
	}
	if !item.IsActive {
		metrics.IncAdmission("invalid")
		return nil, domain.ErrItemInactive
	}

	unlock, err := s.lockItem(ctx, item.ID)
	if err != nil {
		metrics.IncAdmission("error")
		return nil, err
	}
	defer unlock()

	request := &models.BorrowRequest{
		ItemID:        item.ID,
		ItemName:      item.Name,
		UserID:        input.UserID,
		BorrowerName:  strings.TrimSpace(input.BorrowerName),
		ContactNumber: strings.TrimSpace(input.ContactNumber),
		Purpose:       strings.TrimSpace(input.Purpose),
		Notes:         strings.TrimSpace(input.Notes),
		Quantity:      input.Quantity,
		BorrowDate:    input.BorrowDate,
		ReturnDate:    input.ReturnDate,
		Status:        models.StatusPending,
	}

	if err := s.repo.CreateBorrowRequestWithLock(ctx, request); err != nil {
		var capErr *domain.InsufficientCapacityError
		if errors.As(err, &capErr) {
			metrics.IncAdmission("insufficient_capacity")
			s.logger.Info().
				Int64("item_id", item.ID).
				Int64("requested", input.Quantity).
				Int64("available", capErr.Available).
				Msg("Borrow request rejected: insufficient capacity")
			return nil, err
		}
		metrics.IncAdmission("error")
		return nil, storeErr(err)
	}

	metrics.IncAdmission("accepted")
	s.logger.Info().
		Int64("request_id", request.ID).
		Int64("item_id", request.ItemID).
		Int64("user_id", request.UserID).
		Int64("quantity", request.Quantity).
		Msg("Borrow request created")

	s.publishEvent(events.EventRequestCreated, request)
	s.enqueueSync(ctx, request, "upsert")
	s.notifyStaff(ctx, fmt.Sprintf("New borrow request #%d: %s x%d, %s to %s, by %s",
		request.ID, request.ItemName, request.Quantity,
		models.FormatDate(request.BorrowDate), models.FormatDate(request.ReturnDate),
		borrowerLabel(request)))

	return request, nil
}

// AvailableQuantity returns the free units of an item over [start, end),
// skipping excludeID when it is non-zero.
func (s *BorrowService) AvailableQuantity(ctx context.Context, itemID int64, start, end time.Time, excludeID int64) (int64, error) {
	ledger, err := s.loadLedger(ctx, itemID, start, end)
	if err != nil {
		return 0, err
	}
	start, end = models.TruncateDate(start), models.TruncateDate(end)
	s.warnOvercommitted(ledger, start, end, excludeID)
	return ledger.Available(start, end, excludeID), nil
}

// ConflictingRequests lists active requests overlapping [start, end) in display order.
func (s *BorrowService) ConflictingRequests(ctx context.Context, itemID int64, start, end time.Time) ([]*models.BorrowRequest, error) {
	ledger, err := s.loadLedger(ctx, itemID, start, end)
	if err != nil {
		return nil, err
	}
	return ledger.Conflicts(models.TruncateDate(start), models.TruncateDate(end), 0), nil
}

// CheckAvailability is the borrower-facing view of one item over a date range.
func (s *BorrowService) CheckAvailability(ctx context.Context, itemID int64, start, end time.Time) (*models.Availability, error) {
	ledger, err := s.loadLedger(ctx, itemID, start, end)
	if err != nil {
		return nil, err
	}
	start, end = models.TruncateDate(start), models.TruncateDate(end)

	item := ledger.Item()
	available := ledger.Available(start, end, 0)
	conflicts := ledger.Conflicts(start, end, 0)
	overcommitted := s.warnOvercommitted(ledger, start, end, 0)

	view := &models.Availability{
		ItemID:        item.ID,
		ItemName:      item.Name,
		BorrowDate:    models.FormatDate(start),
		ReturnDate:    models.FormatDate(end),
		Total:         item.TotalUnits,
		Available:     available,
		Reserved:      item.TotalUnits - available,
		Overcommitted: overcommitted,
		Conflicts:     make([]models.Conflict, 0, len(conflicts)),
	}
	for _, c := range conflicts {
		view.Conflicts = append(view.Conflicts, models.NewConflict(c))
	}
	return view, nil
}

func (s *BorrowService) loadLedger(ctx context.Context, itemID int64, start, end time.Time) (*schedule.Ledger, error) {
	start, end = models.TruncateDate(start), models.TruncateDate(end)
	if !end.After(start) {
		return nil, domain.ErrInvalidRange
	}

	item, err := s.repo.GetItemByID(ctx, itemID)
	if err != nil {
		return nil, storeErr(err)
	}
	requests, err := s.repo.GetActiveRequests(ctx, itemID, start, end)
	if err != nil {
		return nil, storeErr(err)
	}
	return schedule.NewLedger(*item, requests), nil
}

func (s *BorrowService) warnOvercommitted(ledger *schedule.Ledger, start, end time.Time, excludeID int64) bool {
	if !ledger.Overcommitted(start, end, excludeID) {
		return false
	}
	metrics.IncOvercommitted()
	item := ledger.Item()
	s.logger.Warn().
		Int64("item_id", item.ID).
		Int64("total_units", item.TotalUnits).
		Int64("committed", ledger.Committed(start, end, excludeID)).
		Str("borrow_date", models.FormatDate(start)).
		Str("return_date", models.FormatDate(end)).
		Msg("Item is over-committed")
	return true
}

// TransitionStatus moves a request through its lifecycle. Approval re-checks
// capacity under the item lock. version of 0 skips the optimistic check.
func (s *BorrowService) TransitionStatus(ctx context.Context, id int64, status string, version int64) (*models.BorrowRequest, error) {
	if !models.IsKnownStatus(status) {
		return nil, domain.ErrInvalidStatus
	}

	current, err := s.repo.GetBorrowRequest(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	if !models.CanTransition(current.Status, status) {
		metrics.IncTransition(status, "invalid")
		return nil, fmt.Errorf("%s -> %s: %w", current.Status, status, domain.ErrInvalidTransition)
	}

	if status == models.StatusApproved {
		unlock, err := s.lockItem(ctx, current.ItemID)
		if err != nil {
			metrics.IncTransition(status, "error")
			return nil, err
		}
		defer unlock()
	}

	updated, err := s.repo.TransitionStatusWithCheck(ctx, id, version, status)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrCapacityNoLongerSufficient):
			metrics.IncTransition(status, "capacity")
			s.logger.Info().Int64("request_id", id).Msg("Approval blocked: capacity no longer sufficient")
		case errors.Is(err, domain.ErrConcurrentModification):
			metrics.IncTransition(status, "conflict")
		default:
			metrics.IncTransition(status, "error")
		}
		return nil, storeErr(err)
	}

	metrics.IncTransition(status, "ok")
	s.logger.Info().
		Int64("request_id", updated.ID).
		Str("from", current.Status).
		Str("to", updated.Status).
		Int64("version", updated.Version).
		Msg("Borrow request status changed")

	s.publishEvent(events.EventForStatus(status), updated)
	s.enqueueSync(ctx, updated, "update_status")
	s.notifyUser(ctx, updated.UserID, fmt.Sprintf("Your borrow request #%d for %s x%d (%s to %s) is now %s.",
		updated.ID, updated.ItemName, updated.Quantity,
		models.FormatDate(updated.BorrowDate), models.FormatDate(updated.ReturnDate), updated.Status))

	return updated, nil
}

// ListRequests returns the filtered staff listing with live availability attached.
// An empty status filter means the active statuses.
func (s *BorrowService) ListRequests(ctx context.Context, filter models.RequestFilter) ([]*models.EnrichedRequest, error) {
	if len(filter.Statuses) == 0 {
		filter.Statuses = models.ActiveStatuses
	}
	for _, st := range filter.Statuses {
		if !models.IsKnownStatus(st) {
			return nil, domain.ErrInvalidStatus
		}
	}

	requests, err := s.repo.ListRequests(ctx, filter)
	if err != nil {
		return nil, storeErr(err)
	}
	return s.EnrichRequests(ctx, requests)
}

func (s *BorrowService) GetRequest(ctx context.Context, id int64) (*models.EnrichedRequest, error) {
	request, err := s.repo.GetBorrowRequest(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	enriched, err := s.EnrichRequests(ctx, []*models.BorrowRequest{request})
	if err != nil {
		return nil, err
	}
	return enriched[0], nil
}

// EnrichRequests attaches availability info to every request. Active requests
// are fetched once for all involved items and answered from per-item ledgers.
func (s *BorrowService) EnrichRequests(ctx context.Context, requests []*models.BorrowRequest) ([]*models.EnrichedRequest, error) {
	if len(requests) == 0 {
		return []*models.EnrichedRequest{}, nil
	}

	var itemIDs []int64
	items := make(map[int64]*models.Item)
	for _, r := range requests {
		if _, ok := items[r.ItemID]; ok {
			continue
		}
		item, err := s.repo.GetItemByID(ctx, r.ItemID)
		if err != nil {
			return nil, storeErr(err)
		}
		items[r.ItemID] = item
		itemIDs = append(itemIDs, r.ItemID)
	}

	active, err := s.repo.GetActiveRequestsByItems(ctx, itemIDs)
	if err != nil {
		return nil, storeErr(err)
	}
	byItem := make(map[int64][]*models.BorrowRequest, len(itemIDs))
	for _, r := range active {
		byItem[r.ItemID] = append(byItem[r.ItemID], r)
	}
	ledgers := make(map[int64]*schedule.Ledger, len(itemIDs))
	for _, id := range itemIDs {
		ledgers[id] = schedule.NewLedger(*items[id], byItem[id])
	}

	today := s.today()
	out := make([]*models.EnrichedRequest, 0, len(requests))
	for _, r := range requests {
		out = append(out, &models.EnrichedRequest{
			BorrowRequest:    r,
			AvailabilityInfo: ledgers[r.ItemID].Info(r, today),
		})
	}
	return out, nil
}

// ItemLedgers returns one ledger per active item with all of its active
// requests, for schedule views.
func (s *BorrowService) ItemLedgers(ctx context.Context) ([]*schedule.Ledger, error) {
	items, err := s.repo.GetItems(ctx, false)
	if err != nil {
		return nil, storeErr(err)
	}
	if len(items) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	active, err := s.repo.GetActiveRequestsByItems(ctx, ids)
	if err != nil {
		return nil, storeErr(err)
	}

	ledgers := make([]*schedule.Ledger, 0, len(items))
	for _, item := range items {
		ledgers = append(ledgers, schedule.NewLedger(*item, active))
	}
	return ledgers, nil
}

func (s *BorrowService) checkRateLimit(ctx context.Context, userID int64) error {
	if s.limiter == nil || userID == 0 || s.cfg.SubmissionRateLimit <= 0 {
		return nil
	}
	window := time.Duration(s.cfg.SubmissionRateWindow) * time.Second
	allowed, err := s.limiter.CheckRateLimit(ctx, userID, s.cfg.SubmissionRateLimit, window)
	if err != nil {
		// Limiter outage must not block borrowing
		s.logger.Warn().Err(err).Int64("user_id", userID).Msg("rate limit check failed")
		return nil
	}
	if !allowed {
		return domain.ErrRateLimited
	}
	return nil
}

func (s *BorrowService) lockItem(ctx context.Context, itemID int64) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	lockCtx, cancel := context.WithTimeout(ctx, s.cfg.LockWait)
	defer cancel()

	unlock, err := s.locker.Lock(lockCtx, itemID)
	if err != nil {
		s.logger.Error().Err(err).Int64("item_id", itemID).Msg("failed to lock item")
		if errors.Is(err, domain.ErrLockTimeout) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrTransientStore, err)
	}
	return unlock, nil
}

func (s *BorrowService) publishEvent(eventType string, request *models.BorrowRequest) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, events.NewRequestPayload(request)); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("request_id", request.ID).Msg("publish event error")
	}
}

func (s *BorrowService) enqueueSync(ctx context.Context, request *models.BorrowRequest, taskType string) {
	if s.sheetsWorker == nil {
		return
	}

	var status string
	if taskType == "update_status" {
		status = request.Status
	}

	snapshot := *request
	if err := s.sheetsWorker.EnqueueTask(ctx, taskType, request.ID, &snapshot, status); err != nil {
		s.logger.Error().Err(err).Int64("request_id", request.ID).Str("task", taskType).Msg("sheets enqueue error")
	}
}

func (s *BorrowService) notifyStaff(ctx context.Context, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyStaff(ctx, text); err != nil {
		metrics.IncNotificationFailure("staff")
		s.logger.Warn().Err(err).Msg("staff notification failed")
	}
}

func (s *BorrowService) notifyUser(ctx context.Context, userID int64, text string) {
	if s.notifier == nil || userID == 0 {
		return
	}
	if err := s.notifier.NotifyUser(ctx, userID, text); err != nil {
		metrics.IncNotificationFailure("user")
		s.logger.Warn().Err(err).Int64("user_id", userID).Msg("user notification failed")
	}
}

func borrowerLabel(r *models.BorrowRequest) string {
	if r.BorrowerName != "" {
		return r.BorrowerName
	}
	return fmt.Sprintf("user %d", r.UserID)
}

// storeErr keeps rejections as they are and marks everything else transient.
func storeErr(err error) error {
	if err == nil || domain.IsRejection(err) || errors.Is(err, domain.ErrTransientStore) || errors.Is(err, domain.ErrLockTimeout) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrTransientStore, err)
}
