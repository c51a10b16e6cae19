package models

import (
	"encoding/json"
	"time"
)

// Event types carried on the realtime channel (server -> client)
const (
	EventItemSeparated      = "item_separated"
	EventItemSentToPurchase = "item_sent_to_purchase"
	EventItemNotSent        = "item_not_sent"
	EventOrderUpdated       = "order_updated"
	EventOrderCompleted     = "order_completed"
	EventUserJoined         = "user_joined"
	EventUserLeft           = "user_left"
	EventPresenceUpdate     = "presence_update"
	EventOrderAccess        = "order_access"
	EventNewOrder           = "new_order"
	EventPong               = "pong"
)

// Command types sent by clients (client -> server)
const (
	CommandJoinOrder  = "join_order"
	CommandLeaveOrder = "leave_order"
	CommandSubscribe  = "subscribe"
	CommandPing       = "ping"
)

// Envelope is the wire frame for every channel message
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewEnvelope marshals a payload into a ready-to-send frame
func NewEnvelope(eventType string, payload interface{}) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: eventType, Data: data}, nil
}

// ItemEvent is the payload of item_separated, item_sent_to_purchase
// and item_not_sent events. Progress is only present when the server
// recomputed it as part of the change.
type ItemEvent struct {
	EventID  string   `json:"event_id,omitempty"`
	OrderID  int64    `json:"order_id"`
	ItemID   int64    `json:"item_id"`
	Progress *float64 `json:"progress_percentage,omitempty"`
}

// OrderEvent is the payload of order_updated and order_completed
type OrderEvent struct {
	EventID  string   `json:"event_id,omitempty"`
	OrderID  int64    `json:"order_id"`
	Progress *float64 `json:"progress_percentage,omitempty"`
}

// PresenceEvent is the payload of user_joined, user_left and
// order_access. OrderID zero on user_left means the user disconnected
// entirely and must be dropped from every order.
type PresenceEvent struct {
	OrderID  int64  `json:"order_id,omitempty"`
	UserID   int64  `json:"user_id"`
	UserName string `json:"user_name"`
	Role     string `json:"role,omitempty"`
	PhotoURL string `json:"photo_url,omitempty"`
}

// PresenceSnapshot is the payload of presence_update: the full set of
// users currently active on one order.
type PresenceSnapshot struct {
	OrderID     int64        `json:"order_id"`
	ActiveUsers []ActiveUser `json:"active_users"`
}

// OrderCommand is the payload of join_order, leave_order and subscribe
type OrderCommand struct {
	OrderID int64 `json:"order_id"`
}

// PingCommand is the payload of ping/pong keep-alive frames
type PingCommand struct {
	Timestamp int64 `json:"timestamp"`
}

// BaseEvent contains common fields for events published to the broker
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// SeparationEvent is the broker-side record of an applied item change
// or order transition, consumed by downstream dashboards.
type SeparationEvent struct {
	BaseEvent
	OrderID  int64   `json:"order_id"`
	ItemID   int64   `json:"item_id,omitempty"`
	Progress float64 `json:"progress_percentage"`
}
