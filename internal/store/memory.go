package store

import (
	"context"
	"sync"
	"time"

	"separation-service/internal/models"
)

// Memory is an in-memory order store. It backs the reference service
// in development and the integration tests; durable persistence lives
// behind the Postgres store.
type Memory struct {
	mu          sync.RWMutex
	orders      map[int64]*models.Order
	items       map[int64][]models.OrderItem
	nextOrderID int64
	nextItemID  int64
	now         func() time.Time
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		orders: make(map[int64]*models.Order),
		items:  make(map[int64][]models.OrderItem),
		now:    time.Now,
	}
}

// SeedOrder inserts an order with its items, assigning ids where
// missing and deriving counters and progress.
func (m *Memory) SeedOrder(order models.Order, items []models.OrderItem) *models.OrderDetail {
	m.mu.Lock()
	defer m.mu.Unlock()

	if order.ID == 0 {
		m.nextOrderID++
		order.ID = m.nextOrderID
	} else if order.ID > m.nextOrderID {
		m.nextOrderID = order.ID
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = m.now()
	}
	order.UpdatedAt = m.now()

	for i := range items {
		items[i].OrderID = order.ID
		if items[i].ID == 0 {
			m.nextItemID++
			items[i].ID = m.nextItemID
		} else if items[i].ID > m.nextItemID {
			m.nextItemID = items[i].ID
		}
	}

	Recalculate(&order, items)
	m.orders[order.ID] = &order
	m.items[order.ID] = items

	return m.detailLocked(order.ID)
}

// OrderDetail returns the order and its items
func (m *Memory) OrderDetail(_ context.Context, orderID int64) (*models.OrderDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.orders[orderID]; !ok {
		return nil, ErrOrderNotFound
	}
	return m.detailLocked(orderID), nil
}

// ApplyItemUpdates applies a batch of partial item changes, recomputes
// the order and returns the authoritative snapshot plus the broadcast
// events the changes produced.
func (m *Memory) ApplyItemUpdates(_ context.Context, orderID int64, updates []models.ItemUpdate) (*models.OrderDetail, []ItemChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderID]
	if !ok {
		return nil, nil, ErrOrderNotFound
	}

	// Stage on a copy so a failing batch leaves the store untouched,
	// mirroring the Postgres transaction rollback.
	staged := make([]models.OrderItem, len(m.items[orderID]))
	copy(staged, m.items[orderID])

	var changes []ItemChange
	now := m.now()
	for _, update := range updates {
		found := false
		for i := range staged {
			if staged[i].ID == update.ItemID {
				changes = append(changes, ApplyUpdate(&staged[i], update, now)...)
				found = true
				break
			}
		}
		if !found {
			return nil, nil, ErrItemNotFound
		}
	}

	Recalculate(order, staged)
	order.UpdatedAt = now
	m.items[orderID] = staged

	return m.detailLocked(orderID), changes, nil
}

// CompleteOrder finalizes an order once every item is processed
func (m *Memory) CompleteOrder(_ context.Context, orderID int64) (*models.OrderDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if order.Status == models.OrderStatusCompleted {
		return nil, ErrOrderCompleted
	}

	items := m.items[orderID]
	processed := 0
	for i := range items {
		if items[i].Processed() {
			processed++
		}
	}
	if processed != len(items) || len(items) == 0 {
		return nil, ErrOrderNotReady
	}

	now := m.now()
	order.Status = models.OrderStatusCompleted
	order.Progress = 100
	order.CompletedAt = &now
	order.UpdatedAt = now

	return m.detailLocked(orderID), nil
}

func (m *Memory) detailLocked(orderID int64) *models.OrderDetail {
	order := *m.orders[orderID]
	items := make([]models.OrderItem, len(m.items[orderID]))
	copy(items, m.items[orderID])
	return &models.OrderDetail{Order: order, Items: items}
}
