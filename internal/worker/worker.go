package worker

import (
	"context"
	"sync"

	"separation-service/internal/broker"
	"separation-service/internal/models"
	"separation-service/internal/util"

	"go.uber.org/zap"
)

// StatsWorker consumes the separation event stream and keeps running
// per-order counters for dashboards. State is rebuilt from the topic
// on restart, so nothing here is persisted.
type StatsWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger

	mu         sync.RWMutex
	itemEvents map[int64]int64
	completed  map[int64]struct{}
}

// NewStatsWorker creates a new stats worker
func NewStatsWorker(consumer *broker.Consumer) *StatsWorker {
	w := &StatsWorker{
		consumer:   consumer,
		logger:     util.GetLogger(),
		itemEvents: make(map[int64]int64),
		completed:  make(map[int64]struct{}),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnItemEvent(w.handleItemEvent)
	eventHandler.OnOrderCompleted(w.handleOrderCompleted)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *StatsWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting stats worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StatsWorker) Stop() error {
	w.logger.Info("Stopping stats worker")
	return w.consumer.Close()
}

// ItemEventCount returns how many item events were seen for an order
func (w *StatsWorker) ItemEventCount(orderID int64) int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.itemEvents[orderID]
}

// IsCompleted reports whether an order_completed event was seen
func (w *StatsWorker) IsCompleted(orderID int64) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.completed[orderID]
	return ok
}

func (w *StatsWorker) handleItemEvent(_ context.Context, event *models.SeparationEvent) error {
	w.mu.Lock()
	w.itemEvents[event.OrderID]++
	w.mu.Unlock()

	util.EventsConsumedTotal.WithLabelValues(event.EventType).Inc()
	w.logger.Debug("Item event consumed",
		zap.String("event_type", event.EventType),
		zap.Int64("order_id", event.OrderID),
		zap.Int64("item_id", event.ItemID),
		zap.Float64("progress", event.Progress))
	return nil
}

func (w *StatsWorker) handleOrderCompleted(_ context.Context, event *models.SeparationEvent) error {
	w.mu.Lock()
	w.completed[event.OrderID] = struct{}{}
	w.mu.Unlock()

	util.EventsConsumedTotal.WithLabelValues(event.EventType).Inc()
	w.logger.Info("Order completed event consumed",
		zap.Int64("order_id", event.OrderID))
	return nil
}
