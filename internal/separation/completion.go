package separation

import "separation-service/internal/models"

// CanComplete reports whether the order may transition to completed:
// every item must be processed, i.e. separated or not_sent. Items
// merely sent to purchase still have to resolve one way or the other.
// Already-completed orders are never re-completable.
func CanComplete(order models.Order, items []models.OrderItem) bool {
	if order.Status == models.OrderStatusCompleted {
		return false
	}

	total := order.ItemsCount
	if total == 0 {
		total = len(items)
	}
	if total == 0 {
		return false
	}

	processed := 0
	for i := range items {
		if items[i].Processed() {
			processed++
		}
	}
	return processed == total
}
