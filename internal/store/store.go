package store

import (
	"errors"
	"time"

	"separation-service/internal/models"
)

var (
	ErrOrderNotFound  = errors.New("store: order not found")
	ErrItemNotFound   = errors.New("store: item not found")
	ErrOrderCompleted = errors.New("store: order already completed")
	ErrOrderNotReady  = errors.New("store: order has unprocessed items")
)

// ItemChange records one broadcastable flag transition produced by a
// batch of item updates. Unsetting a flag produces no item event; the
// order_updated broadcast carries the recomputed progress instead.
type ItemChange struct {
	ItemID int64
	Event  string
}

// ApplyUpdate applies one partial change set to an item, enforcing the
// mutual-exclusivity convention: at most one of separated and
// sent_to_purchase is true, and not_sent clears both. separated_at is
// set exactly when separated becomes true and cleared when it becomes
// false. Returns the broadcast events the transition produced.
func ApplyUpdate(item *models.OrderItem, update models.ItemUpdate, now time.Time) []ItemChange {
	var changes []ItemChange

	if update.Separated != nil {
		if *update.Separated {
			item.Separated = true
			item.SentToPurchase = false
			item.NotSent = false
			t := now
			item.SeparatedAt = &t
			changes = append(changes, ItemChange{ItemID: item.ID, Event: models.EventItemSeparated})
		} else {
			item.Separated = false
			item.SeparatedAt = nil
		}
	}

	if update.SentToPurchase != nil {
		if *update.SentToPurchase {
			item.SentToPurchase = true
			item.Separated = false
			item.NotSent = false
			item.SeparatedAt = nil
			changes = append(changes, ItemChange{ItemID: item.ID, Event: models.EventItemSentToPurchase})
		} else {
			item.SentToPurchase = false
		}
	}

	if update.NotSent != nil {
		if *update.NotSent {
			item.NotSent = true
			item.Separated = false
			item.SentToPurchase = false
			item.SeparatedAt = nil
			changes = append(changes, ItemChange{ItemID: item.ID, Event: models.EventItemNotSent})
		} else {
			item.NotSent = false
		}
	}

	return changes
}

// Recalculate rederives the order counters, progress percentage and
// status from its items. Separated and not_sent items count as
// processed; items in purchase do not. Completed status is terminal
// and only set by CompleteOrder.
func Recalculate(order *models.Order, items []models.OrderItem) {
	var separated, inPurchase, notSent int
	for i := range items {
		switch {
		case items[i].Separated:
			separated++
		case items[i].SentToPurchase:
			inPurchase++
		case items[i].NotSent:
			notSent++
		}
	}

	order.ItemsCount = len(items)
	order.ItemsSeparated = separated
	order.ItemsInPurchase = inPurchase
	order.ItemsNotSent = notSent

	if order.ItemsCount == 0 {
		order.Progress = 0
	} else {
		order.Progress = float64(separated+notSent) / float64(order.ItemsCount) * 100
	}

	if order.Status != models.OrderStatusCompleted {
		if separated+inPurchase+notSent > 0 {
			order.Status = models.OrderStatusInProgress
		} else {
			order.Status = models.OrderStatusPending
		}
	}
}
