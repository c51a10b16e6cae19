package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"separation-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func message(t *testing.T, eventType string, orderID, itemID int64) kafka.Message {
	t.Helper()
	event := models.SeparationEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "ev-1",
			EventType: eventType,
			Timestamp: time.Now(),
		},
		OrderID: orderID,
		ItemID:  itemID,
	}
	raw, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Key: []byte("order-1"), Value: raw}
}

func TestEventHandlerRoutesByType(t *testing.T) {
	eh := NewEventHandler()

	var items []string
	var completed []int64
	eh.OnItemEvent(func(_ context.Context, ev *models.SeparationEvent) error {
		items = append(items, ev.EventType)
		return nil
	})
	eh.OnOrderCompleted(func(_ context.Context, ev *models.SeparationEvent) error {
		completed = append(completed, ev.OrderID)
		return nil
	})

	ctx := context.Background()
	require.NoError(t, eh.HandleMessage(ctx, message(t, models.EventItemSeparated, 1, 7)))
	require.NoError(t, eh.HandleMessage(ctx, message(t, models.EventItemNotSent, 1, 8)))
	require.NoError(t, eh.HandleMessage(ctx, message(t, models.EventOrderCompleted, 1, 0)))
	// Unknown types are ignored without error.
	require.NoError(t, eh.HandleMessage(ctx, message(t, "something_else", 1, 0)))

	assert.Equal(t, []string{models.EventItemSeparated, models.EventItemNotSent}, items)
	assert.Equal(t, []int64{1}, completed)
}

func TestEventHandlerRejectsBadPayload(t *testing.T) {
	eh := NewEventHandler()
	err := eh.HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")})
	assert.Error(t, err)
}
