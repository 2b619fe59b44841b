package service

import (
	"context"
	"fmt"
	"strings"

	"barangay/internal/domain"
	"barangay/internal/events"
	"barangay/internal/models"
	"barangay/internal/schedule"

	"github.com/rs/zerolog"
)

type ItemService struct {
	repo     domain.Repository
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewItemService(repo domain.Repository, eventBus domain.EventPublisher, logger *zerolog.Logger) *ItemService {
	return &ItemService{
		repo:     repo,
		eventBus: eventBus,
		logger:   logger,
	}
}

func (s *ItemService) GetItems(ctx context.Context, includeInactive bool) ([]*models.Item, error) {
	items, err := s.repo.GetItems(ctx, includeInactive)
	return items, storeErr(err)
}

func (s *ItemService) GetItemByID(ctx context.Context, id int64) (*models.Item, error) {
	item, err := s.repo.GetItemByID(ctx, id)
	return item, storeErr(err)
}

func validateItem(item *models.Item) error {
	item.Name = strings.TrimSpace(item.Name)
	if item.Name == "" {
		return fmt.Errorf("name is required: %w", domain.ErrInvalidItem)
	}
	if item.TotalUnits < 0 {
		return fmt.Errorf("total units must not be negative: %w", domain.ErrInvalidItem)
	}
	return nil
}

func (s *ItemService) CreateItem(ctx context.Context, item *models.Item) error {
	if err := validateItem(item); err != nil {
		return err
	}
	if err := s.repo.CreateItem(ctx, item); err != nil {
		return storeErr(err)
	}
	s.publish(item)
	return nil
}

// UpdateItem saves the item and returns the active requests that no longer fit
// its stock. Reducing stock is never refused; staff resolve the overlap.
func (s *ItemService) UpdateItem(ctx context.Context, item *models.Item) ([]*models.BorrowRequest, error) {
	if err := validateItem(item); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateItem(ctx, item); err != nil {
		return nil, storeErr(err)
	}
	s.publish(item)

	active, err := s.repo.GetActiveRequestsByItems(ctx, []int64{item.ID})
	if err != nil {
		return nil, storeErr(err)
	}
	ledger := schedule.NewLedger(*item, active)

	var overcommitted []*models.BorrowRequest
	for _, r := range active {
		if ledger.Overcommitted(r.BorrowDate, r.ReturnDate, 0) {
			overcommitted = append(overcommitted, r)
		}
	}
	if len(overcommitted) > 0 {
		s.logger.Warn().
			Int64("item_id", item.ID).
			Int64("total_units", item.TotalUnits).
			Int("requests", len(overcommitted)).
			Msg("Stock change left active requests over-committed")
	}
	return overcommitted, nil
}

func (s *ItemService) publish(item *models.Item) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(events.EventItemChanged, item); err != nil {
		s.logger.Error().Err(err).Int64("item_id", item.ID).Msg("publish event error")
	}
}
