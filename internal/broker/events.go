package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"separation-service/internal/models"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// EventPublisher records applied separation changes on the broker,
// keyed by order so per-order ordering is preserved.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// Publish publishes one separation event. itemID zero means an
// order-level event.
func (ep *EventPublisher) Publish(ctx context.Context, eventType string, orderID, itemID int64, progress float64) error {
	event := models.SeparationEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: time.Now(),
		},
		OrderID:  orderID,
		ItemID:   itemID,
		Progress: progress,
	}
	key := fmt.Sprintf("order-%d", orderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler routes consumed separation events by type
type EventHandler struct {
	onItemEvent      func(context.Context, *models.SeparationEvent) error
	onOrderCompleted func(context.Context, *models.SeparationEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnItemEvent registers a handler for item-level events
func (eh *EventHandler) OnItemEvent(handler func(context.Context, *models.SeparationEvent) error) {
	eh.onItemEvent = handler
}

// OnOrderCompleted registers a handler for order_completed events
func (eh *EventHandler) OnOrderCompleted(handler func(context.Context, *models.SeparationEvent) error) {
	eh.onOrderCompleted = handler
}

// HandleMessage decodes and dispatches one consumed message
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var event models.SeparationEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}

	switch event.EventType {
	case models.EventItemSeparated, models.EventItemSentToPurchase, models.EventItemNotSent:
		if eh.onItemEvent != nil {
			return eh.onItemEvent(ctx, &event)
		}
	case models.EventOrderCompleted:
		if eh.onOrderCompleted != nil {
			return eh.onOrderCompleted(ctx, &event)
		}
	}
	return nil
}
