package events

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"barangay/internal/models"
)

const (
	EventRequestCreated  = "borrow_request_created"
	EventRequestApproved = "borrow_request_approved"
	EventRequestRejected = "borrow_request_rejected"
	EventRequestReturned = "borrow_request_returned"
	EventItemChanged     = "item_changed"
)

// EventForStatus maps a target status to its event type.
func EventForStatus(status string) string {
	switch status {
	case models.StatusApproved:
		return EventRequestApproved
	case models.StatusRejected:
		return EventRequestRejected
	case models.StatusReturned:
		return EventRequestReturned
	default:
		return EventRequestCreated
	}
}

// RequestEventPayload is the borrow request snapshot sent to subscribers.
type RequestEventPayload struct {
	RequestID    int64  `json:"request_id"`
	ItemID       int64  `json:"item_id"`
	ItemName     string `json:"item_name"`
	UserID       int64  `json:"user_id"`
	BorrowerName string `json:"borrower_name"`
	Quantity     int64  `json:"quantity"`
	BorrowDate   string `json:"borrow_date"`
	ReturnDate   string `json:"return_date"`
	Status       string `json:"status"`
	Version      int64  `json:"version"`
}

func NewRequestPayload(r *models.BorrowRequest) RequestEventPayload {
	return RequestEventPayload{
		RequestID:    r.ID,
		ItemID:       r.ItemID,
		ItemName:     r.ItemName,
		UserID:       r.UserID,
		BorrowerName: r.BorrowerName,
		Quantity:     r.Quantity,
		BorrowDate:   models.FormatDate(r.BorrowDate),
		ReturnDate:   models.FormatDate(r.ReturnDate),
		Status:       r.Status,
		Version:      r.Version,
	}
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	all         []EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers a handler for every event type.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, handler)
}

// Publish runs every matching handler and joins their errors.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
}
