package hub

import (
	"sync"
	"time"

	"separation-service/internal/models"
	"separation-service/internal/util"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 64
)

// Conn is one registered websocket connection with its write pump.
// All writes go through the send channel so the pump is the only
// goroutine touching the socket for writes.
type Conn struct {
	UserID   int64
	UserName string
	Role     string
	PhotoURL string

	ws *websocket.Conn

	// sendMu guards send against a close racing an enqueue
	sendMu sync.Mutex
	closed bool
	send   chan models.Envelope
}

func (c *Conn) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Hub tracks live websocket connections and which orders each user has
// joined, and fans events out to them. One connection per user: a new
// connection for the same user replaces the old one.
type Hub struct {
	mu     sync.RWMutex
	conns  map[int64]*Conn
	orders map[int64]map[int64]struct{}
	logger *zap.Logger
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		conns:  make(map[int64]*Conn),
		orders: make(map[int64]map[int64]struct{}),
		logger: util.GetLogger(),
	}
}

// Register adds a connection for a user, replacing any previous one,
// and starts its write pump.
func (h *Hub) Register(ws *websocket.Conn, userID int64, userName, role, photoURL string) *Conn {
	conn := &Conn{
		UserID:   userID,
		UserName: userName,
		Role:     role,
		PhotoURL: photoURL,
		ws:       ws,
		send:     make(chan models.Envelope, sendBufferSize),
	}

	h.mu.Lock()
	if old, ok := h.conns[userID]; ok {
		old.close()
	}
	h.conns[userID] = conn
	total := len(h.conns)
	h.mu.Unlock()

	util.HubConnectionsActive.Set(float64(total))
	h.logger.Info("WebSocket connected",
		zap.Int64("user_id", userID),
		zap.String("user_name", userName),
		zap.Int("total_connections", total))

	go h.writePump(conn)
	return conn
}

// Disconnect removes a connection, drops the user from every joined
// order and announces the departure: an order-scoped user_left plus
// presence_update to each order, and a global user_left so other
// views can sweep the user from their presence sets.
func (h *Hub) Disconnect(conn *Conn) {
	h.mu.Lock()
	current, ok := h.conns[conn.UserID]
	if ok && current == conn {
		delete(h.conns, conn.UserID)
	}
	var joined []int64
	for orderID, users := range h.orders {
		if _, in := users[conn.UserID]; in {
			delete(users, conn.UserID)
			if len(users) == 0 {
				delete(h.orders, orderID)
			}
			joined = append(joined, orderID)
		}
	}
	total := len(h.conns)
	h.mu.Unlock()

	conn.close()
	util.HubConnectionsActive.Set(float64(total))
	h.logger.Info("WebSocket disconnected",
		zap.Int64("user_id", conn.UserID),
		zap.Int("total_connections", total))

	for _, orderID := range joined {
		h.BroadcastToOrder(orderID, models.EventUserLeft, models.PresenceEvent{
			OrderID: orderID,
			UserID:  conn.UserID,
		})
		h.broadcastPresence(orderID)
	}
	h.BroadcastAll(models.EventUserLeft, models.PresenceEvent{
		UserID:   conn.UserID,
		UserName: conn.UserName,
	})
}

// JoinOrder subscribes the connection's user to an order's events and
// announces the arrival to everyone already on the order.
func (h *Hub) JoinOrder(conn *Conn, orderID int64) {
	h.mu.Lock()
	users, ok := h.orders[orderID]
	if !ok {
		users = make(map[int64]struct{})
		h.orders[orderID] = users
	}
	_, already := users[conn.UserID]
	users[conn.UserID] = struct{}{}
	h.mu.Unlock()

	if already {
		return
	}
	h.logger.Debug("User joined order",
		zap.Int64("user_id", conn.UserID),
		zap.Int64("order_id", orderID))

	h.BroadcastToOrder(orderID, models.EventUserJoined, models.PresenceEvent{
		OrderID:  orderID,
		UserID:   conn.UserID,
		UserName: conn.UserName,
		Role:     conn.Role,
		PhotoURL: conn.PhotoURL,
	})
	h.broadcastPresence(orderID)
}

// LeaveOrder unsubscribes the connection's user from an order
func (h *Hub) LeaveOrder(conn *Conn, orderID int64) {
	h.mu.Lock()
	users, ok := h.orders[orderID]
	if ok {
		if _, in := users[conn.UserID]; !in {
			ok = false
		}
		delete(users, conn.UserID)
		if len(users) == 0 {
			delete(h.orders, orderID)
		}
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	h.BroadcastToOrder(orderID, models.EventUserLeft, models.PresenceEvent{
		OrderID: orderID,
		UserID:  conn.UserID,
	})
	h.broadcastPresence(orderID)
}

// UsersInOrder returns the presence snapshot for an order
func (h *Hub) UsersInOrder(orderID int64) []models.ActiveUser {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make([]models.ActiveUser, 0)
	for userID := range h.orders[orderID] {
		if conn, ok := h.conns[userID]; ok {
			users = append(users, models.ActiveUser{
				UserID:   conn.UserID,
				UserName: conn.UserName,
				Role:     conn.Role,
				PhotoURL: conn.PhotoURL,
			})
		}
	}
	return users
}

// Send queues one frame to a single connection
func (h *Hub) Send(conn *Conn, eventType string, payload interface{}) {
	env, err := models.NewEnvelope(eventType, payload)
	if err != nil {
		h.logger.Error("Failed to encode frame", zap.String("type", eventType), zap.Error(err))
		return
	}
	h.deliver(conn, env)
}

// BroadcastToOrder fans a frame out to every user joined to an order
func (h *Hub) BroadcastToOrder(orderID int64, eventType string, payload interface{}) {
	env, err := models.NewEnvelope(eventType, payload)
	if err != nil {
		h.logger.Error("Failed to encode frame", zap.String("type", eventType), zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.orders[orderID]))
	for userID := range h.orders[orderID] {
		if conn, ok := h.conns[userID]; ok {
			targets = append(targets, conn)
		}
	}
	h.mu.RUnlock()

	util.HubBroadcastsTotal.WithLabelValues(eventType).Inc()
	for _, conn := range targets {
		h.deliver(conn, env)
	}
}

// BroadcastAll fans a frame out to every live connection
func (h *Hub) BroadcastAll(eventType string, payload interface{}) {
	env, err := models.NewEnvelope(eventType, payload)
	if err != nil {
		h.logger.Error("Failed to encode frame", zap.String("type", eventType), zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.conns))
	for _, conn := range h.conns {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	util.HubBroadcastsTotal.WithLabelValues(eventType).Inc()
	for _, conn := range targets {
		h.deliver(conn, env)
	}
}

func (h *Hub) broadcastPresence(orderID int64) {
	h.BroadcastToOrder(orderID, models.EventPresenceUpdate, models.PresenceSnapshot{
		OrderID:     orderID,
		ActiveUsers: h.UsersInOrder(orderID),
	})
}

// deliver queues a frame without blocking; a full buffer means the
// peer stopped reading and the connection is torn down.
func (h *Hub) deliver(conn *Conn, env models.Envelope) {
	conn.sendMu.Lock()
	defer conn.sendMu.Unlock()
	if conn.closed {
		return
	}
	select {
	case conn.send <- env:
	default:
		h.logger.Warn("Dropping slow websocket connection",
			zap.Int64("user_id", conn.UserID))
		go h.Disconnect(conn)
	}
}

func (h *Hub) writePump(conn *Conn) {
	defer conn.ws.Close()
	for env := range conn.send {
		conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.ws.WriteJSON(env); err != nil {
			h.logger.Debug("WebSocket write failed",
				zap.Int64("user_id", conn.UserID),
				zap.Error(err))
			go h.Disconnect(conn)
			return
		}
	}
}
