package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"separation-service/internal/models"
	"separation-service/internal/util"

	"go.uber.org/zap"
)

// Client talks to the authoritative separation service over HTTP
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a new API client
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  util.GetLogger(),
	}
}

// OrderDetail fetches the full order + ordered item list
func (c *Client) OrderDetail(ctx context.Context, orderID int64) (*models.OrderDetail, error) {
	ctx, span := util.StartSpan(ctx, "Client.OrderDetail")
	defer span.End()

	var detail models.OrderDetail
	path := fmt.Sprintf("/api/orders/%d/detail", orderID)
	if err := c.do(ctx, http.MethodGet, path, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// UpdateItems applies a batch of partial item changes and returns the
// authoritative order + items snapshot.
func (c *Client) UpdateItems(ctx context.Context, orderID int64, updates []models.ItemUpdate) (*models.OrderDetail, error) {
	ctx, span := util.StartSpan(ctx, "Client.UpdateItems")
	defer span.End()

	body := struct {
		Updates []models.ItemUpdate `json:"updates"`
	}{Updates: updates}

	var detail models.OrderDetail
	path := fmt.Sprintf("/api/orders/%d/items", orderID)
	if err := c.do(ctx, http.MethodPatch, path, body, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// CompleteOrder asks the service to finalize the order
func (c *Client) CompleteOrder(ctx context.Context, orderID int64) (*models.OrderDetail, error) {
	ctx, span := util.StartSpan(ctx, "Client.CompleteOrder")
	defer span.End()

	var detail models.OrderDetail
	path := fmt.Sprintf("/api/orders/%d/complete", orderID)
	if err := c.do(ctx, http.MethodPost, path, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ActiveUsers fetches the presence snapshot for an order, used to seed
// the presence registry outside the live channel's own join events.
func (c *Client) ActiveUsers(ctx context.Context, orderID int64) ([]models.ActiveUser, error) {
	var out struct {
		ActiveUsers []models.ActiveUser `json:"active_users"`
	}
	path := fmt.Sprintf("/api/orders/%d/active-users", orderID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.ActiveUsers, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("Request transport failure",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return &Error{Kind: KindNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: KindNetwork, Message: err.Error()}
	}

	if resp.StatusCode >= 400 {
		apiErr := classify(resp.StatusCode, raw)
		c.logger.Warn("Request rejected",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("detail", apiErr.Message))
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
