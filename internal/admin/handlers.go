package admin

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yamb-labs/sokoni/internal/order"
	"github.com/yamb-labs/sokoni/internal/reconciliation"
)

// OrderService abstracts order operations for admin handlers.
type OrderService interface {
	Get(ctx context.Context, id string) (*order.Order, error)
	Refund(ctx context.Context, orderID string, actor order.Actor, reason string) (*order.Order, error)
}

// ReconciliationRunner runs ledger and hold reconciliation on demand.
type ReconciliationRunner interface {
	RunAll(ctx context.Context) (*reconciliation.Report, error)
}

// Handler provides admin HTTP endpoints.
type Handler struct {
	orders     OrderService
	reconciler ReconciliationRunner
}

// NewHandler creates a new admin handler.
func NewHandler() *Handler {
	return &Handler{}
}

// WithOrderService sets the order service for force-refund operations.
func (h *Handler) WithOrderService(svc OrderService) *Handler {
	h.orders = svc
	return h
}

// WithReconciler sets the reconciliation runner for on-demand reconciliation.
func (h *Handler) WithReconciler(r ReconciliationRunner) *Handler {
	h.reconciler = r
	return h
}

// RegisterRoutes sets up admin routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/admin/holds/stuck", h.listStuckHolds)
	r.POST("/admin/orders/:id/refund", h.forceRefund)
	r.POST("/admin/reconcile", h.triggerReconciliation)
}

// listStuckHolds returns active holds whose order has already settled.
func (h *Handler) listStuckHolds(c *gin.Context) {
	if h.reconciler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reconciliation not configured"})
		return
	}

	limit := 100
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	report, err := h.reconciler.RunAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list stuck holds", "message": err.Error()})
		return
	}

	holds := report.OrphanedHolds
	if len(holds) > limit {
		holds = holds[:limit]
	}
	c.JSON(http.StatusOK, gin.H{"holds": holds, "count": len(holds)})
}

// forceRefund refunds an order on behalf of its business.
func (h *Handler) forceRefund(c *gin.Context) {
	if h.orders == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "order service not configured"})
		return
	}

	orderID := c.Param("id")
	o, err := h.orders.Get(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found", "message": err.Error()})
		return
	}

	var req ForceRefundRequest
	_ = c.ShouldBindJSON(&req)
	reason := req.Reason
	if reason == "" {
		reason = "admin force refund"
	}

	// Force-refund: act as the order's business so the normal refund
	// authorization path applies.
	actor := order.Actor{Type: order.ActorBusiness, UserID: o.BusinessID}
	refunded, err := h.orders.Refund(c.Request.Context(), orderID, actor, reason)
	if err != nil {
		if errors.Is(err, order.ErrInvalidTransition) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_status",
				"message": "Order cannot be refunded from its current status",
				"status":  o.Status,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refund failed", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"refunded": true, "order": refunded})
}

// triggerReconciliation runs an on-demand reconciliation pass.
func (h *Handler) triggerReconciliation(c *gin.Context) {
	if h.reconciler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reconciliation not configured"})
		return
	}

	report, err := h.reconciler.RunAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reconciliation failed", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"report": report, "healthy": report.Clean()})
}
