package channel

import (
	"encoding/json"

	"separation-service/internal/models"
	"separation-service/internal/util"

	"go.uber.org/zap"
)

// Router decodes inbound frames into typed events and dispatches them
// to registered handlers. Unknown types are logged and dropped;
// malformed frames are dropped with a diagnostic and never kill the
// session.
type Router struct {
	onItemSeparated      func(models.ItemEvent)
	onItemSentToPurchase func(models.ItemEvent)
	onItemNotSent        func(models.ItemEvent)
	onOrderUpdated       func(models.OrderEvent)
	onOrderCompleted     func(models.OrderEvent)
	onUserJoined         func(models.PresenceEvent)
	onUserLeft           func(models.PresenceEvent)
	onPresenceUpdate     func(models.PresenceSnapshot)
	onPong               func(models.PingCommand)

	logger *zap.Logger
}

// NewRouter creates a new message router
func NewRouter() *Router {
	return &Router{logger: util.GetLogger()}
}

// OnItemSeparated registers a handler for item_separated events
func (r *Router) OnItemSeparated(h func(models.ItemEvent)) { r.onItemSeparated = h }

// OnItemSentToPurchase registers a handler for item_sent_to_purchase events
func (r *Router) OnItemSentToPurchase(h func(models.ItemEvent)) { r.onItemSentToPurchase = h }

// OnItemNotSent registers a handler for item_not_sent events
func (r *Router) OnItemNotSent(h func(models.ItemEvent)) { r.onItemNotSent = h }

// OnOrderUpdated registers a handler for order_updated events
func (r *Router) OnOrderUpdated(h func(models.OrderEvent)) { r.onOrderUpdated = h }

// OnOrderCompleted registers a handler for order_completed events
func (r *Router) OnOrderCompleted(h func(models.OrderEvent)) { r.onOrderCompleted = h }

// OnUserJoined registers a handler for user_joined and order_access events
func (r *Router) OnUserJoined(h func(models.PresenceEvent)) { r.onUserJoined = h }

// OnUserLeft registers a handler for user_left events
func (r *Router) OnUserLeft(h func(models.PresenceEvent)) { r.onUserLeft = h }

// OnPresenceUpdate registers a handler for presence_update snapshots
func (r *Router) OnPresenceUpdate(h func(models.PresenceSnapshot)) { r.onPresenceUpdate = h }

// OnPong registers a handler for keep-alive pongs
func (r *Router) OnPong(h func(models.PingCommand)) { r.onPong = h }

// HandleFrame parses one wire frame and routes it. It never returns an
// error to the read loop; a bad frame only costs itself.
func (r *Router) HandleFrame(raw []byte) {
	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		util.FramesDroppedTotal.WithLabelValues("malformed").Inc()
		r.logger.Warn("Dropping malformed frame", zap.Error(err))
		return
	}
	if env.Type == "" {
		util.FramesDroppedTotal.WithLabelValues("untyped").Inc()
		r.logger.Warn("Dropping frame without type")
		return
	}

	switch env.Type {
	case models.EventItemSeparated:
		dispatch(r, env, r.onItemSeparated)
	case models.EventItemSentToPurchase:
		dispatch(r, env, r.onItemSentToPurchase)
	case models.EventItemNotSent:
		dispatch(r, env, r.onItemNotSent)
	case models.EventOrderUpdated:
		dispatch(r, env, r.onOrderUpdated)
	case models.EventOrderCompleted:
		dispatch(r, env, r.onOrderCompleted)
	case models.EventUserJoined, models.EventOrderAccess:
		dispatch(r, env, r.onUserJoined)
	case models.EventUserLeft:
		dispatch(r, env, r.onUserLeft)
	case models.EventPresenceUpdate:
		dispatch(r, env, r.onPresenceUpdate)
	case models.EventPong:
		dispatch(r, env, r.onPong)
	default:
		util.FramesDroppedTotal.WithLabelValues("unknown_type").Inc()
		r.logger.Debug("Unknown event type", zap.String("type", env.Type))
	}
}

func dispatch[T any](r *Router, env models.Envelope, handler func(T)) {
	if handler == nil {
		return
	}
	var payload T
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		util.FramesDroppedTotal.WithLabelValues("bad_payload").Inc()
		r.logger.Warn("Dropping frame with bad payload",
			zap.String("type", env.Type),
			zap.Error(err))
		return
	}
	handler(payload)
}
