package models

import "time"

// Order represents a customer order under separation
type Order struct {
	ID            int64   `db:"id" json:"id"`
	OrderNumber   string  `db:"order_number" json:"order_number"`
	ClientName    string  `db:"client_name" json:"client_name"`
	SellerName    string  `db:"seller_name" json:"seller_name"`
	TotalValue    float64 `db:"total_value" json:"total_value"`
	Status        string  `db:"status" json:"status"`
	LogisticsType string  `db:"logistics_type" json:"logistics_type,omitempty"`
	PackageType   string  `db:"package_type" json:"package_type,omitempty"`
	Observations  string  `db:"observations" json:"observations,omitempty"`

	ItemsCount      int     `db:"items_count" json:"items_count"`
	ItemsSeparated  int     `db:"items_separated" json:"items_separated"`
	ItemsInPurchase int     `db:"items_in_purchase" json:"items_in_purchase"`
	ItemsNotSent    int     `db:"items_not_sent" json:"items_not_sent"`
	Progress        float64 `db:"progress_percentage" json:"progress_percentage"`

	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// OrderItem represents one product line within an order
type OrderItem struct {
	ID          int64   `db:"id" json:"id"`
	OrderID     int64   `db:"order_id" json:"order_id"`
	ProductCode string  `db:"product_code" json:"product_code"`
	ProductName string  `db:"product_name" json:"product_name"`
	Quantity    int     `db:"quantity" json:"quantity"`
	UnitPrice   float64 `db:"unit_price" json:"unit_price"`
	TotalPrice  float64 `db:"total_price" json:"total_price"`

	Separated      bool       `db:"separated" json:"separated"`
	SentToPurchase bool       `db:"sent_to_purchase" json:"sent_to_purchase"`
	NotSent        bool       `db:"not_sent" json:"not_sent"`
	SeparatedAt    *time.Time `db:"separated_at" json:"separated_at,omitempty"`
}

// OrderDetail is the authoritative order + items snapshot exchanged
// with the separation service
type OrderDetail struct {
	Order
	Items []OrderItem `json:"items"`
}

// ItemUpdate is a partial change set for one item. Nil fields are
// left untouched by the server.
type ItemUpdate struct {
	ItemID         int64 `json:"item_id"`
	Separated      *bool `json:"separated,omitempty"`
	SentToPurchase *bool `json:"sent_to_purchase,omitempty"`
	NotSent        *bool `json:"not_sent,omitempty"`
}

// ActiveUser is a presence entry for a user currently working an order
type ActiveUser struct {
	UserID      int64     `json:"user_id"`
	UserName    string    `json:"user_name"`
	Role        string    `json:"role,omitempty"`
	PhotoURL    string    `json:"photo_url,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Order statuses
const (
	OrderStatusPending    = "pending"
	OrderStatusInProgress = "in_progress"
	OrderStatusCompleted  = "completed"
)

// ItemState is the derived processing state of an item. It is computed
// from the three flags and never persisted.
type ItemState int

const (
	ItemStatePending ItemState = iota + 1
	ItemStateNotSent
	ItemStateSentToPurchase
	ItemStateSeparated
)

// State derives the processing state from the item flags. Separated
// takes precedence, then sent_to_purchase, then not_sent.
func (i *OrderItem) State() ItemState {
	switch {
	case i.Separated:
		return ItemStateSeparated
	case i.SentToPurchase:
		return ItemStateSentToPurchase
	case i.NotSent:
		return ItemStateNotSent
	default:
		return ItemStatePending
	}
}

// Processed reports whether the item counts toward order completion.
// Items merely sent to purchase are not processed yet.
func (i *OrderItem) Processed() bool {
	return i.Separated || i.NotSent
}

// Bool is a convenience for building ItemUpdate literals.
func Bool(v bool) *bool { return &v }
