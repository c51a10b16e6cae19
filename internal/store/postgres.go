package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"separation-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Postgres is the durable order store backing the service in
// production. All write paths recompute the order counters inside the
// same transaction that changed the items, so the persisted row is
// always consistent with its items.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres connects to the database and verifies the connection
func NewPostgres(databaseURL string) (*Postgres, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{db: db}, nil
}

// Close closes the database connection
func (s *Postgres) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Postgres) GetDB() *sqlx.DB {
	return s.db
}

// OrderDetail retrieves an order with its items
func (s *Postgres) OrderDetail(ctx context.Context, orderID int64) (*models.OrderDetail, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", orderID)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	items, err := s.orderItems(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}

	return &models.OrderDetail{Order: order, Items: items}, nil
}

// ApplyItemUpdates applies a batch of partial item changes inside one
// transaction, recomputes the order row and returns the fresh snapshot
// plus the broadcast events the changes produced. The order row is
// locked FOR UPDATE so concurrent batches serialize.
func (s *Postgres) ApplyItemUpdates(ctx context.Context, orderID int64, updates []models.ItemUpdate) (*models.OrderDetail, []ItemChange, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	var order models.Order
	err = tx.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", orderID)
	if err == sql.ErrNoRows {
		return nil, nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	items, err := s.orderItems(ctx, tx, orderID)
	if err != nil {
		return nil, nil, err
	}

	var changes []ItemChange
	now := time.Now()
	for _, update := range updates {
		found := false
		for i := range items {
			if items[i].ID == update.ItemID {
				changes = append(changes, ApplyUpdate(&items[i], update, now)...)
				if err := s.updateItem(ctx, tx, &items[i]); err != nil {
					return nil, nil, err
				}
				found = true
				break
			}
		}
		if !found {
			return nil, nil, ErrItemNotFound
		}
	}

	Recalculate(&order, items)
	order.UpdatedAt = now
	if err := s.updateOrder(ctx, tx, &order); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}

	return &models.OrderDetail{Order: order, Items: items}, changes, nil
}

// CompleteOrder finalizes an order once every item is processed
func (s *Postgres) CompleteOrder(ctx context.Context, orderID int64) (*models.OrderDetail, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var order models.Order
	err = tx.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", orderID)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if order.Status == models.OrderStatusCompleted {
		return nil, ErrOrderCompleted
	}

	items, err := s.orderItems(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	processed := 0
	for i := range items {
		if items[i].Processed() {
			processed++
		}
	}
	if processed != len(items) || len(items) == 0 {
		return nil, ErrOrderNotReady
	}

	now := time.Now()
	order.Status = models.OrderStatusCompleted
	order.Progress = 100
	order.CompletedAt = &now
	order.UpdatedAt = now
	if err := s.updateOrder(ctx, tx, &order); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &models.OrderDetail{Order: order, Items: items}, nil
}

func (s *Postgres) orderItems(ctx context.Context, q sqlx.QueryerContext, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := sqlx.SelectContext(ctx, q, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

func (s *Postgres) updateItem(ctx context.Context, tx *sqlx.Tx, item *models.OrderItem) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE order_items
		SET separated = $1, sent_to_purchase = $2, not_sent = $3, separated_at = $4
		WHERE id = $5`,
		item.Separated, item.SentToPurchase, item.NotSent, item.SeparatedAt, item.ID)
	return err
}

func (s *Postgres) updateOrder(ctx context.Context, tx *sqlx.Tx, order *models.Order) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, items_count = $2, items_separated = $3, items_in_purchase = $4,
		    items_not_sent = $5, progress_percentage = $6, updated_at = $7, completed_at = $8
		WHERE id = $9`,
		order.Status, order.ItemsCount, order.ItemsSeparated, order.ItemsInPurchase,
		order.ItemsNotSent, order.Progress, order.UpdatedAt, order.CompletedAt, order.ID)
	return err
}
