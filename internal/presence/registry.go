package presence

import (
	"sync"
	"time"

	"separation-service/internal/channel"
	"separation-service/internal/models"
	"separation-service/internal/util"

	"go.uber.org/zap"
)

// Registry tracks which users are actively viewing which order. It is
// purely in-memory and session-scoped: on restart it starts empty and
// is repopulated only by live events plus an explicit authoritative
// fetch for the order being viewed. It is never serialized.
type Registry struct {
	mu      sync.RWMutex
	byOrder map[int64]map[int64]models.ActiveUser
	logger  *zap.Logger
	now     func() time.Time
}

// NewRegistry creates an empty presence registry
func NewRegistry() *Registry {
	return &Registry{
		byOrder: make(map[int64]map[int64]models.ActiveUser),
		logger:  util.GetLogger(),
		now:     time.Now,
	}
}

// Attach registers the registry's handlers on a channel router
func (r *Registry) Attach(router *channel.Router) {
	router.OnUserJoined(r.handleUserJoined)
	router.OnUserLeft(r.handleUserLeft)
	router.OnPresenceUpdate(r.handlePresenceUpdate)
}

// ReplaceOrder installs the authoritative "everyone currently present"
// snapshot for one order, discarding whatever was tracked before.
func (r *Registry) ReplaceOrder(orderID int64, users []models.ActiveUser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(users) == 0 {
		delete(r.byOrder, orderID)
		return
	}
	set := make(map[int64]models.ActiveUser, len(users))
	for _, u := range users {
		set[u.UserID] = u
	}
	r.byOrder[orderID] = set
}

// AddUser inserts or updates a user on one order, refreshing the
// joined-at timestamp.
func (r *Registry) AddUser(orderID int64, user models.ActiveUser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.byOrder[orderID]
	if !ok {
		set = make(map[int64]models.ActiveUser)
		r.byOrder[orderID] = set
	}
	user.ConnectedAt = r.now()
	set[user.UserID] = user
}

// RemoveUser deletes a user from one order. Orders with no remaining
// users are removed entirely; no empty-set placeholders are retained.
func (r *Registry) RemoveUser(orderID, userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(orderID, userID)
}

// RemoveUserEverywhere drops a user from every order's set. A global
// disconnect must not leave stale entries anywhere.
func (r *Registry) RemoveUserEverywhere(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for orderID := range r.byOrder {
		r.removeLocked(orderID, userID)
	}
}

func (r *Registry) removeLocked(orderID, userID int64) {
	set, ok := r.byOrder[orderID]
	if !ok {
		return
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(r.byOrder, orderID)
	}
}

// ClearOrder drops the whole set for one order, e.g. on view teardown
func (r *Registry) ClearOrder(orderID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byOrder, orderID)
}

// ClearAll resets the registry
func (r *Registry) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byOrder = make(map[int64]map[int64]models.ActiveUser)
}

// ActiveUsers returns the users currently present on an order
func (r *Registry) ActiveUsers(orderID int64) []models.ActiveUser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.byOrder[orderID]
	if !ok {
		return nil
	}
	users := make([]models.ActiveUser, 0, len(set))
	for _, u := range set {
		users = append(users, u)
	}
	return users
}

// UserCount returns how many users are present on an order
func (r *Registry) UserCount(orderID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byOrder[orderID])
}

// IsUserActive reports whether a user is present on an order
func (r *Registry) IsUserActive(orderID, userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.byOrder[orderID]
	if !ok {
		return false
	}
	_, active := set[userID]
	return active
}

// OrderCount returns how many orders have at least one active user
func (r *Registry) OrderCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byOrder)
}

func (r *Registry) handleUserJoined(ev models.PresenceEvent) {
	if ev.OrderID == 0 || ev.UserID == 0 {
		return
	}
	r.logger.Debug("User joined order",
		zap.Int64("order_id", ev.OrderID),
		zap.Int64("user_id", ev.UserID),
		zap.String("user_name", ev.UserName))
	r.AddUser(ev.OrderID, models.ActiveUser{
		UserID:   ev.UserID,
		UserName: ev.UserName,
		Role:     ev.Role,
		PhotoURL: ev.PhotoURL,
	})
}

// handleUserLeft distinguishes an order-scoped leave from a global
// disconnect: without an order id the user is swept from every order.
func (r *Registry) handleUserLeft(ev models.PresenceEvent) {
	if ev.UserID == 0 {
		return
	}
	if ev.OrderID != 0 {
		r.RemoveUser(ev.OrderID, ev.UserID)
		return
	}
	r.logger.Debug("User disconnected, sweeping presence",
		zap.Int64("user_id", ev.UserID))
	r.RemoveUserEverywhere(ev.UserID)
}

func (r *Registry) handlePresenceUpdate(ev models.PresenceSnapshot) {
	if ev.OrderID == 0 {
		return
	}
	r.ReplaceOrder(ev.OrderID, ev.ActiveUsers)
}
