package channel

import (
	"testing"

	"separation-service/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestRouterDispatchesTypedEvents(t *testing.T) {
	router := NewRouter()

	var itemEvents []models.ItemEvent
	var presence []models.PresenceEvent
	var snapshots []models.PresenceSnapshot
	router.OnItemSeparated(func(ev models.ItemEvent) { itemEvents = append(itemEvents, ev) })
	router.OnUserJoined(func(ev models.PresenceEvent) { presence = append(presence, ev) })
	router.OnPresenceUpdate(func(ev models.PresenceSnapshot) { snapshots = append(snapshots, ev) })

	router.HandleFrame([]byte(`{"type":"item_separated","data":{"order_id":42,"item_id":7}}`))
	router.HandleFrame([]byte(`{"type":"user_joined","data":{"order_id":42,"user_id":3,"user_name":"Maria"}}`))
	// order_access is an alias for user_joined.
	router.HandleFrame([]byte(`{"type":"order_access","data":{"order_id":42,"user_id":4,"user_name":"José"}}`))
	router.HandleFrame([]byte(`{"type":"presence_update","data":{"order_id":42,"active_users":[{"user_id":3,"user_name":"Maria"}]}}`))

	if assert.Len(t, itemEvents, 1) {
		assert.Equal(t, int64(42), itemEvents[0].OrderID)
		assert.Equal(t, int64(7), itemEvents[0].ItemID)
	}
	if assert.Len(t, presence, 2) {
		assert.Equal(t, "Maria", presence[0].UserName)
		assert.Equal(t, "José", presence[1].UserName)
	}
	if assert.Len(t, snapshots, 1) {
		assert.Len(t, snapshots[0].ActiveUsers, 1)
	}
}

func TestRouterDropsBadFrames(t *testing.T) {
	router := NewRouter()

	called := false
	router.OnItemSeparated(func(models.ItemEvent) { called = true })

	// None of these may panic or reach a handler.
	router.HandleFrame([]byte(`not json at all`))
	router.HandleFrame([]byte(`{"data":{"order_id":42}}`))
	router.HandleFrame([]byte(`{"type":"something_new","data":{}}`))
	router.HandleFrame([]byte(`{"type":"item_separated","data":"not an object"}`))

	assert.False(t, called)
}

func TestRouterIgnoresUnregisteredTypes(t *testing.T) {
	router := NewRouter()

	// No handlers registered: frames are simply dropped.
	router.HandleFrame([]byte(`{"type":"order_completed","data":{"order_id":42}}`))
	router.HandleFrame([]byte(`{"type":"pong","data":{"timestamp":123}}`))
}
