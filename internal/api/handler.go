package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"separation-service/internal/hub"
	"separation-service/internal/models"
	"separation-service/internal/store"
	"separation-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Store is the order persistence the handlers work against. Both the
// Postgres and the in-memory store satisfy it.
type Store interface {
	OrderDetail(ctx context.Context, orderID int64) (*models.OrderDetail, error)
	ApplyItemUpdates(ctx context.Context, orderID int64, updates []models.ItemUpdate) (*models.OrderDetail, []store.ItemChange, error)
	CompleteOrder(ctx context.Context, orderID int64) (*models.OrderDetail, error)
}

// EventPublisher records applied changes on the broker for downstream
// consumers. Optional; nil disables publishing.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, orderID, itemID int64, progress float64) error
}

// Cache provides the optional redis-backed order lock and progress
// cache. Nil disables both.
type Cache interface {
	AcquireOrderLock(ctx context.Context, orderID int64, ttl time.Duration) (bool, error)
	ReleaseOrderLock(ctx context.Context, orderID int64) error
	SetOrderProgress(ctx context.Context, orderID int64, progress float64) error
}

// Handler contains HTTP handlers
type Handler struct {
	store  Store
	hub    *hub.Hub
	events EventPublisher
	cache  Cache
	token  string
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(st Store, h *hub.Hub, events EventPublisher, cache Cache, token string) *Handler {
	return &Handler{
		store:  st,
		hub:    h,
		events: events,
		cache:  cache,
		token:  token,
		logger: util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api", h.authMiddleware())
	{
		api.GET("/orders/:id/detail", h.getOrderDetail)
		api.PATCH("/orders/:id/items", h.updateItems)
		api.PATCH("/orders/:id/items/:item_id/purchase", h.toggleItemPurchase)
		api.POST("/orders/:id/complete", h.completeOrder)
		api.GET("/orders/:id/active-users", h.getActiveUsers)
	}

	// The websocket endpoint authenticates after the upgrade so the
	// rejection reaches the client as a policy-violation close frame.
	router.GET("/api/ws/orders", h.serveWS)
}

// authMiddleware requires the static service token as a Bearer header
// or a token query parameter.
func (h *Handler) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimPrefix(auth, "Bearer ")
		}
		if h.token != "" && token != h.token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"detail": "Não autenticado",
			})
			return
		}
		c.Next()
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// getOrderDetail returns the authoritative order snapshot with items
func (h *Handler) getOrderDetail(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}

	detail, err := h.store.OrderDetail(c.Request.Context(), orderID)
	if err != nil {
		h.storeError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

type updateItemsRequest struct {
	Updates []models.ItemUpdate `json:"updates" binding:"required"`
}

// updateItems applies a batch of partial item changes, broadcasts the
// resulting events to the order's viewers and returns the fresh
// snapshot the caller reconciles against.
func (h *Handler) updateItems(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}

	var req updateItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"detail": "Corpo da requisição inválido",
		})
		return
	}

	ctx := c.Request.Context()
	if h.cache != nil {
		acquired, err := h.cache.AcquireOrderLock(ctx, orderID, 5*time.Second)
		if err != nil {
			h.logger.Warn("Order lock unavailable", zap.Int64("order_id", orderID), zap.Error(err))
		} else if !acquired {
			c.JSON(http.StatusConflict, gin.H{
				"detail": "Pedido está sendo atualizado por outro usuário",
			})
			return
		} else {
			defer h.cache.ReleaseOrderLock(ctx, orderID)
		}
	}

	detail, changes, err := h.store.ApplyItemUpdates(ctx, orderID, req.Updates)
	if err != nil {
		h.storeError(c, err)
		return
	}

	h.broadcastChanges(ctx, detail, changes)
	c.JSON(http.StatusOK, detail)
}

type togglePurchaseRequest struct {
	SentToPurchase bool `json:"sent_to_purchase"`
}

// toggleItemPurchase flips a single item's sent_to_purchase flag
func (h *Handler) toggleItemPurchase(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}
	itemID, err := strconv.ParseInt(c.Param("item_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "ID de item inválido"})
		return
	}

	var req togglePurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"detail": "Corpo da requisição inválido",
		})
		return
	}

	ctx := c.Request.Context()
	detail, changes, err := h.store.ApplyItemUpdates(ctx, orderID, []models.ItemUpdate{
		{ItemID: itemID, SentToPurchase: models.Bool(req.SentToPurchase)},
	})
	if err != nil {
		h.storeError(c, err)
		return
	}

	h.broadcastChanges(ctx, detail, changes)
	c.JSON(http.StatusOK, detail)
}

// completeOrder finalizes an order once every item is processed
func (h *Handler) completeOrder(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	detail, err := h.store.CompleteOrder(ctx, orderID)
	if err != nil {
		h.storeError(c, err)
		return
	}

	util.OrdersCompletedTotal.Inc()
	eventID := uuid.New().String()
	progress := detail.Progress
	h.hub.BroadcastToOrder(orderID, models.EventOrderCompleted, models.OrderEvent{
		EventID:  eventID,
		OrderID:  orderID,
		Progress: &progress,
	})
	h.hub.BroadcastAll(models.EventOrderUpdated, models.OrderEvent{
		EventID:  eventID,
		OrderID:  orderID,
		Progress: &progress,
	})
	h.publish(ctx, models.EventOrderCompleted, orderID, 0, progress)

	c.JSON(http.StatusOK, detail)
}

// getActiveUsers returns the users currently viewing an order
func (h *Handler) getActiveUsers(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}

	if _, err := h.store.OrderDetail(c.Request.Context(), orderID); err != nil {
		h.storeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_id":     orderID,
		"active_users": h.hub.UsersInOrder(orderID),
	})
}

// broadcastChanges fans the applied item events out to the order's
// viewers, refreshes the cached progress and records the events on the
// broker.
func (h *Handler) broadcastChanges(ctx context.Context, detail *models.OrderDetail, changes []store.ItemChange) {
	progress := detail.Progress
	for _, change := range changes {
		h.hub.BroadcastToOrder(detail.ID, change.Event, models.ItemEvent{
			EventID:  uuid.New().String(),
			OrderID:  detail.ID,
			ItemID:   change.ItemID,
			Progress: &progress,
		})
		h.publish(ctx, change.Event, detail.ID, change.ItemID, progress)
	}

	h.hub.BroadcastAll(models.EventOrderUpdated, models.OrderEvent{
		EventID:  uuid.New().String(),
		OrderID:  detail.ID,
		Progress: &progress,
	})

	if h.cache != nil {
		if err := h.cache.SetOrderProgress(ctx, detail.ID, progress); err != nil {
			h.logger.Warn("Failed to cache order progress",
				zap.Int64("order_id", detail.ID), zap.Error(err))
		}
	}
}

func (h *Handler) publish(ctx context.Context, eventType string, orderID, itemID int64, progress float64) {
	if h.events == nil {
		return
	}
	if err := h.events.Publish(ctx, eventType, orderID, itemID, progress); err != nil {
		h.logger.Error("Failed to publish event",
			zap.String("event_type", eventType),
			zap.Int64("order_id", orderID),
			zap.Error(err))
	}
}

func (h *Handler) orderID(c *gin.Context) (int64, bool) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "ID de pedido inválido"})
		return 0, false
	}
	return orderID, true
}

func (h *Handler) storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": "Pedido não encontrado"})
	case errors.Is(err, store.ErrItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": "Item não encontrado"})
	case errors.Is(err, store.ErrOrderCompleted):
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Pedido já foi finalizado"})
	case errors.Is(err, store.ErrOrderNotReady):
		c.JSON(http.StatusBadRequest, gin.H{"detail": "O pedido ainda possui itens pendentes"})
	default:
		h.logger.Error("Store operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Erro interno do servidor"})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
