package redisclient

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const progressTTL = time.Hour

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client and verifies the connection
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// AcquireOrderLock takes the per-order update lock. Returns false when
// another process holds it; the TTL guards against a crashed holder.
func (c *Client) AcquireOrderLock(ctx context.Context, orderID int64, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, lockKey(orderID), 1, ttl).Result()
}

// ReleaseOrderLock releases the per-order update lock
func (c *Client) ReleaseOrderLock(ctx context.Context, orderID int64) error {
	return c.rdb.Del(ctx, lockKey(orderID)).Err()
}

// SetOrderProgress caches the latest progress percentage for an order
func (c *Client) SetOrderProgress(ctx context.Context, orderID int64, progress float64) error {
	return c.rdb.Set(ctx, progressKey(orderID),
		strconv.FormatFloat(progress, 'f', -1, 64), progressTTL).Err()
}

// GetOrderProgress reads the cached progress percentage. Returns
// redis.Nil when no value is cached.
func (c *Client) GetOrderProgress(ctx context.Context, orderID int64) (float64, error) {
	val, err := c.rdb.Get(ctx, progressKey(orderID)).Result()
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(val, 64)
}

func lockKey(orderID int64) string {
	return fmt.Sprintf("lock:order:%d", orderID)
}

func progressKey(orderID int64) string {
	return fmt.Sprintf("order:%d:progress", orderID)
}
