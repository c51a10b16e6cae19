package separation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"separation-service/internal/apiclient"
	"separation-service/internal/channel"
	"separation-service/internal/models"
	"separation-service/internal/util"

	"go.uber.org/zap"
)

// ErrOrderNotReady means the completion gate rejected the transition:
// at least one item is neither separated nor not_sent.
var ErrOrderNotReady = errors.New("separation: order still has unprocessed items")

// ErrNoSnapshot means no authoritative snapshot has been loaded yet
var ErrNoSnapshot = errors.New("separation: order snapshot not loaded")

// Session is the single source of truth for one order's in-memory
// snapshot, reconciling optimistic local edits with authoritative
// server state. Broadcast events from other clients are merged as
// idempotent patches; a direct mutation response always supersedes
// them wholesale.
type Session struct {
	orderID  int64
	api      *apiclient.Client
	notifier Notifier
	logger   *zap.Logger

	retries   int
	retryUnit time.Duration
	sleep     func(time.Duration)
	now       func() time.Time

	mu    sync.RWMutex
	order *models.Order
	items []models.OrderItem

	// updating is the single in-flight mutation lock: concurrent
	// UpdateItem calls while one is pending are ignored, not queued.
	updating  atomic.Bool
	connected atomic.Bool
}

// Option customizes a Session
type Option func(*Session)

// WithRetries sets how many extra attempts a transient mutation
// failure gets before giving up.
func WithRetries(n int) Option {
	return func(s *Session) { s.retries = n }
}

// WithRetryUnit sets the delay unit between mutation retries; the
// actual delay grows linearly with the attempt index.
func WithRetryUnit(d time.Duration) Option {
	return func(s *Session) { s.retryUnit = d }
}

// WithSleep overrides the retry sleep, for tests
func WithSleep(f func(time.Duration)) Option {
	return func(s *Session) { s.sleep = f }
}

// WithClock overrides the timestamp source, for tests
func WithClock(f func() time.Time) Option {
	return func(s *Session) { s.now = f }
}

// NewSession creates a reconciliation session for one order
func NewSession(orderID int64, api *apiclient.Client, notifier Notifier, opts ...Option) *Session {
	s := &Session{
		orderID:   orderID,
		api:       api,
		notifier:  notifier,
		logger:    util.GetLogger(),
		retries:   2,
		retryUnit: time.Second,
		sleep:     time.Sleep,
		now:       time.Now,
	}
	if s.notifier == nil {
		s.notifier = NopNotifier{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attach registers the session's broadcast handlers on a router
func (s *Session) Attach(r *channel.Router) {
	r.OnItemSeparated(s.handleItemSeparated)
	r.OnItemSentToPurchase(s.handleItemSentToPurchase)
	r.OnItemNotSent(s.handleItemNotSent)
	r.OnOrderUpdated(s.handleOrderUpdated)
	r.OnOrderCompleted(s.handleOrderCompleted)
}

// Snapshot returns a copy of the current order and item list. The
// second return is false until the first authoritative fetch lands.
func (s *Session) Snapshot() (models.Order, []models.OrderItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.order == nil {
		return models.Order{}, nil, false
	}
	items := make([]models.OrderItem, len(s.items))
	copy(items, s.items)
	return *s.order, items, true
}

// FetchOrderDetails does a full resynchronization: the authoritative
// order + item list replaces all local state. Used on initial mount
// and as the revert path after a failed mutation.
func (s *Session) FetchOrderDetails(ctx context.Context) error {
	ctx, span := util.StartSpan(ctx, "Session.FetchOrderDetails")
	defer span.End()

	detail, err := s.api.OrderDetail(ctx, s.orderID)
	if err != nil {
		s.logger.Error("Failed to fetch order details",
			zap.Int64("order_id", s.orderID),
			zap.Error(err))
		s.notifier.Error(fetchErrorMessage(err))
		return err
	}

	s.applyAuthoritative(detail)
	return nil
}

// UpdateItem sends a partial change for one item and reconciles the
// authoritative response into local state. Only one mutation may be in
// flight at a time; concurrent attempts are no-ops. Transient failures
// are retried with a linearly growing delay; anything else reverts
// local state via a full refetch.
func (s *Session) UpdateItem(ctx context.Context, itemID int64, change models.ItemUpdate) error {
	if !s.updating.CompareAndSwap(false, true) {
		s.logger.Debug("Mutation already in flight, ignoring",
			zap.Int64("order_id", s.orderID),
			zap.Int64("item_id", itemID))
		return nil
	}
	defer s.updating.Store(false)

	ctx, span := util.StartSpan(ctx, "Session.UpdateItem")
	defer span.End()

	change.ItemID = itemID
	start := time.Now()

	var err error
	for attempt := 0; ; attempt++ {
		var detail *models.OrderDetail
		detail, err = s.api.UpdateItems(ctx, s.orderID, []models.ItemUpdate{change})
		if err == nil {
			util.ItemMutationsTotal.WithLabelValues("success").Inc()
			util.ItemMutationLatency.Observe(time.Since(start).Seconds())
			s.applyAuthoritative(detail)
			s.notifyChanged(change)
			return nil
		}

		if !apiclient.IsRetryable(err) || attempt >= s.retries {
			break
		}

		util.ItemMutationRetriesTotal.Inc()
		s.logger.Warn("Retrying item update",
			zap.Int64("item_id", itemID),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		s.sleep(time.Duration(attempt+1) * s.retryUnit)
	}

	util.ItemMutationsTotal.WithLabelValues("failure").Inc()
	s.logger.Error("Item update failed",
		zap.Int64("order_id", s.orderID),
		zap.Int64("item_id", itemID),
		zap.Error(err))
	s.notifier.Error(updateErrorMessage(err))

	// Discard any divergent optimistic state.
	util.CorrectiveRefetchesTotal.Inc()
	if ferr := s.FetchOrderDetails(ctx); ferr != nil {
		s.logger.Warn("Corrective refetch failed", zap.Error(ferr))
	}
	return err
}

// Updating reports whether a mutation is currently in flight
func (s *Session) Updating() bool {
	return s.updating.Load()
}

// CanComplete evaluates the completion gate against the current snapshot
func (s *Session) CanComplete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.order == nil {
		return false
	}
	return CanComplete(*s.order, s.items)
}

// CompleteOrder asks the server to finalize the order. Unlike item
// edits there is no optimistic completion: status only changes after
// authoritative confirmation.
func (s *Session) CompleteOrder(ctx context.Context) error {
	ctx, span := util.StartSpan(ctx, "Session.CompleteOrder")
	defer span.End()

	s.mu.RLock()
	order := s.order
	items := s.items
	s.mu.RUnlock()

	if order == nil {
		return ErrNoSnapshot
	}
	if !CanComplete(*order, items) {
		return ErrOrderNotReady
	}

	detail, err := s.api.CompleteOrder(ctx, s.orderID)
	if err != nil {
		s.logger.Error("Failed to complete order",
			zap.Int64("order_id", s.orderID),
			zap.Error(err))
		s.notifier.Error(completeErrorMessage(err))
		return err
	}

	util.OrdersCompletedTotal.Inc()
	s.applyAuthoritative(detail)
	s.notifier.Success(msgOrderCompleted)
	return nil
}

// HandleStatus consumes channel state transitions; wire it as the
// channel's OnStatus callback.
func (s *Session) HandleStatus(state channel.State, err error) {
	s.connected.Store(state == channel.StateOpen)
	switch {
	case errors.Is(err, channel.ErrReconnectExhausted):
		s.notifier.Error(msgReconnectExhausted)
	case errors.Is(err, channel.ErrAuthRejected):
		s.notifier.Error(msgSessionExpired)
	}
}

// Connected reports whether the live channel is currently open
func (s *Session) Connected() bool {
	return s.connected.Load()
}

// ConnectionLabel is the operator-facing connection indicator
func (s *Session) ConnectionLabel() string {
	if s.Connected() {
		return LabelConnected
	}
	return LabelDisconnected
}

// applyAuthoritative replaces the whole snapshot with server truth and
// re-applies the ordering policy. Last authoritative write wins over
// any interleaved broadcast patches.
func (s *Session) applyAuthoritative(detail *models.OrderDetail) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order := detail.Order
	s.order = &order
	s.items = SortItems(detail.Items)
}

func (s *Session) handleItemSeparated(ev models.ItemEvent) {
	if ev.OrderID != s.orderID {
		return
	}
	util.BroadcastsAppliedTotal.WithLabelValues(models.EventItemSeparated).Inc()
	s.patchItem(ev.ItemID, func(it *models.OrderItem) {
		it.Separated = true
		it.SentToPurchase = false
		it.NotSent = false
		t := s.now()
		it.SeparatedAt = &t
	})
	s.applyProgress(ev.Progress)
}

func (s *Session) handleItemSentToPurchase(ev models.ItemEvent) {
	if ev.OrderID != s.orderID {
		return
	}
	util.BroadcastsAppliedTotal.WithLabelValues(models.EventItemSentToPurchase).Inc()
	s.patchItem(ev.ItemID, func(it *models.OrderItem) {
		it.SentToPurchase = true
		it.Separated = false
		it.NotSent = false
		it.SeparatedAt = nil
	})
	s.applyProgress(ev.Progress)
}

func (s *Session) handleItemNotSent(ev models.ItemEvent) {
	if ev.OrderID != s.orderID {
		return
	}
	util.BroadcastsAppliedTotal.WithLabelValues(models.EventItemNotSent).Inc()
	s.patchItem(ev.ItemID, func(it *models.OrderItem) {
		it.NotSent = true
		it.Separated = false
		it.SentToPurchase = false
		it.SeparatedAt = nil
	})
	s.applyProgress(ev.Progress)
}

func (s *Session) handleOrderUpdated(ev models.OrderEvent) {
	if ev.OrderID != s.orderID {
		return
	}
	util.BroadcastsAppliedTotal.WithLabelValues(models.EventOrderUpdated).Inc()
	s.applyProgress(ev.Progress)
}

func (s *Session) handleOrderCompleted(ev models.OrderEvent) {
	if ev.OrderID != s.orderID {
		return
	}
	util.BroadcastsAppliedTotal.WithLabelValues(models.EventOrderCompleted).Inc()

	s.mu.Lock()
	if s.order != nil && s.order.Status != models.OrderStatusCompleted {
		s.order.Status = models.OrderStatusCompleted
		s.order.Progress = 100
		if s.order.CompletedAt == nil {
			t := s.now()
			s.order.CompletedAt = &t
		}
		s.mu.Unlock()
		s.notifier.Success(msgOrderCompleted)
		return
	}
	s.mu.Unlock()
}

// patchItem applies an idempotent optimistic patch to the matching
// item and re-sorts. Events for items we do not know about are ignored;
// the next authoritative snapshot will bring them in.
func (s *Session) patchItem(itemID int64, apply func(*models.OrderItem)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == itemID {
			apply(&s.items[i])
			s.items = SortItems(s.items)
			return
		}
	}
}

func (s *Session) applyProgress(progress *float64) {
	if progress == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.order != nil {
		s.order.Progress = *progress
	}
}

func (s *Session) notifyChanged(change models.ItemUpdate) {
	if change.Separated != nil {
		if *change.Separated {
			s.notifier.Success(msgItemSeparated)
		} else {
			s.notifier.Success(msgItemUnseparated)
		}
	}
	if change.SentToPurchase != nil {
		if *change.SentToPurchase {
			s.notifier.Success(msgItemSentToPurchase)
		} else {
			s.notifier.Success(msgItemRemovedFromPurchase)
		}
	}
	if change.NotSent != nil {
		if *change.NotSent {
			s.notifier.Success(msgItemNotSent)
		} else {
			s.notifier.Success(msgItemPendingAgain)
		}
	}
}

func fetchErrorMessage(err error) string {
	switch apiclient.KindOf(err) {
	case apiclient.KindNotFound:
		return msgOrderNotFound
	case apiclient.KindUnauthorized, apiclient.KindForbidden:
		return msgAccessDenied
	case apiclient.KindServer:
		return msgServerError
	default:
		return msgNetworkError
	}
}

func updateErrorMessage(err error) string {
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) && apiErr.Kind == apiclient.KindValidation && apiErr.Message != "" {
		return apiErr.Message
	}
	switch apiclient.KindOf(err) {
	case apiclient.KindNotFound:
		return msgItemNotFound
	case apiclient.KindUnauthorized, apiclient.KindForbidden:
		return msgAccessDenied
	case apiclient.KindServer:
		return msgUpdateServerError
	default:
		return msgUpdateNetworkError
	}
}

func completeErrorMessage(err error) string {
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) && apiErr.Kind == apiclient.KindValidation && apiErr.Message != "" {
		return apiErr.Message
	}
	switch apiclient.KindOf(err) {
	case apiclient.KindNotFound:
		return msgOrderNotFound
	case apiclient.KindUnauthorized:
		return msgAccessDenied
	case apiclient.KindForbidden:
		return msgCompleteForbidden
	case apiclient.KindServer:
		return msgServerError
	default:
		return msgCompleteNetwork
	}
}
