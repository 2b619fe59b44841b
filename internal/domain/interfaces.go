package domain

import (
	"context"
	"time"

	"barangay/internal/models"
	"barangay/internal/schedule"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Repository is implemented by the sqlite and postgres stores.
type Repository interface {
	GetItemByID(ctx context.Context, id int64) (*models.Item, error)
	GetItems(ctx context.Context, includeInactive bool) ([]*models.Item, error)
	CreateItem(ctx context.Context, item *models.Item) error
	UpdateItem(ctx context.Context, item *models.Item) error
	SyncItems(ctx context.Context, items []*models.Item) error

	GetBorrowRequest(ctx context.Context, id int64) (*models.BorrowRequest, error)
	GetActiveRequests(ctx context.Context, itemID int64, start, end time.Time) ([]*models.BorrowRequest, error)
	GetActiveRequestsByItems(ctx context.Context, itemIDs []int64) ([]*models.BorrowRequest, error)
	ListRequests(ctx context.Context, filter models.RequestFilter) ([]*models.BorrowRequest, error)

	// CreateBorrowRequestWithLock re-validates capacity and inserts in one transaction.
	CreateBorrowRequestWithLock(ctx context.Context, request *models.BorrowRequest) error
	// TransitionStatusWithCheck applies a status change, re-checking capacity on approval.
	// expectedVersion of 0 skips the optimistic version check.
	TransitionStatusWithCheck(ctx context.Context, id, expectedVersion int64, status string) (*models.BorrowRequest, error)

	PingContext(ctx context.Context) error
	Close() error
}

type SyncQueueRepository interface {
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// ItemLocker serializes admission decisions for one item.
type ItemLocker interface {
	Lock(ctx context.Context, itemID int64) (unlock func(), err error)
}

type RateLimiter interface {
	CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error)
}

// Notifier delivers fire-and-forget messages. A nil error means delivered.
type Notifier interface {
	NotifyStaff(ctx context.Context, text string) error
	NotifyUser(ctx context.Context, userID int64, text string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetSelf() tgbotapi.User
}

type SheetsWriter interface {
	UpsertRequest(ctx context.Context, request *models.BorrowRequest) error
	UpdateRequestStatus(ctx context.Context, requestID int64, status string) error
	ReplaceRequests(ctx context.Context, requests []*models.BorrowRequest) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, requestID int64, request *models.BorrowRequest, status string) error
}

type BorrowService interface {
	CreateBorrowRequest(ctx context.Context, input models.BorrowInput) (*models.BorrowRequest, error)
	AvailableQuantity(ctx context.Context, itemID int64, start, end time.Time, excludeID int64) (int64, error)
	ConflictingRequests(ctx context.Context, itemID int64, start, end time.Time) ([]*models.BorrowRequest, error)
	CheckAvailability(ctx context.Context, itemID int64, start, end time.Time) (*models.Availability, error)
	TransitionStatus(ctx context.Context, id int64, status string, version int64) (*models.BorrowRequest, error)
	ListRequests(ctx context.Context, filter models.RequestFilter) ([]*models.EnrichedRequest, error)
	GetRequest(ctx context.Context, id int64) (*models.EnrichedRequest, error)
	ItemLedgers(ctx context.Context) ([]*schedule.Ledger, error)
}

type ItemService interface {
	GetItems(ctx context.Context, includeInactive bool) ([]*models.Item, error)
	GetItemByID(ctx context.Context, id int64) (*models.Item, error)
	CreateItem(ctx context.Context, item *models.Item) error
	UpdateItem(ctx context.Context, item *models.Item) ([]*models.BorrowRequest, error)
}
