package separation

import (
	"testing"

	"separation-service/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestCanComplete(t *testing.T) {
	tests := []struct {
		name  string
		order models.Order
		items []models.OrderItem
		want  bool
	}{
		{
			name:  "all separated",
			order: models.Order{ItemsCount: 2},
			items: []models.OrderItem{{Separated: true}, {Separated: true}},
			want:  true,
		},
		{
			name:  "separated and not sent mix",
			order: models.Order{ItemsCount: 3},
			items: []models.OrderItem{{Separated: true}, {NotSent: true}, {Separated: true}},
			want:  true,
		},
		{
			name:  "pending item blocks",
			order: models.Order{ItemsCount: 2},
			items: []models.OrderItem{{Separated: true}, {}},
			want:  false,
		},
		{
			name:  "sent to purchase blocks",
			order: models.Order{ItemsCount: 2},
			items: []models.OrderItem{{Separated: true}, {SentToPurchase: true}},
			want:  false,
		},
		{
			name:  "already completed",
			order: models.Order{ItemsCount: 1, Status: models.OrderStatusCompleted},
			items: []models.OrderItem{{Separated: true}},
			want:  false,
		},
		{
			name:  "no items",
			order: models.Order{},
			items: nil,
			want:  false,
		},
		{
			name:  "items count falls back to slice length",
			order: models.Order{},
			items: []models.OrderItem{{NotSent: true}},
			want:  true,
		},
		{
			name:  "declared count larger than loaded items blocks",
			order: models.Order{ItemsCount: 3},
			items: []models.OrderItem{{Separated: true}, {Separated: true}},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanComplete(tt.order, tt.items))
		})
	}
}
