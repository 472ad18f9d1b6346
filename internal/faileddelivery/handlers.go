package faileddelivery

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yamb-labs/sokoni/internal/ledger"
)

// Handler provides HTTP endpoints for failed-delivery resolution.
type Handler struct {
	service *Service
}

// NewHandler creates a new failed-delivery handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up read-only failed-delivery routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/failed-deliveries", h.List)
	r.GET("/failed-deliveries/:id", h.Get)
}

// RegisterProtectedRoutes sets up resolution routes. Resolution moves
// money and is restricted to operators.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/failed-deliveries/:id/resolve", h.Resolve)
}

// Resolve handles POST /v1/failed-deliveries/:id/resolve
func (h *Handler) Resolve(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	fd, err := h.service.Resolve(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		var insufficient *ledger.InsufficientFundsError
		switch {
		case errors.Is(err, ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Failed-delivery record not found",
			})
		case errors.Is(err, ErrAlreadyResolved):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "already_resolved",
				"message": err.Error(),
			})
		case errors.Is(err, ErrUnknownFault):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": err.Error(),
			})
		case errors.As(err, &insufficient):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "insufficient_funds",
				"message": insufficient.Error(),
			})
		case errors.Is(err, ErrFeeNotConfigured):
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "failed delivery fee not configured",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "resolution_failed",
				"message": "Failed to resolve failed delivery",
			})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"failedDelivery": fd})
}

// Get handles GET /v1/failed-deliveries/:id
func (h *Handler) Get(c *gin.Context) {
	fd, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Failed-delivery record not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "lookup_failed",
			"message": "Failed to look up record",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"failedDelivery": fd})
}

// List handles GET /v1/failed-deliveries
func (h *Handler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	f := ListFilter{
		OrderID: c.Query("order_id"),
		Status:  Status(c.Query("status")),
		Limit:   limit,
	}

	records, err := h.service.List(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "lookup_failed",
			"message": "Failed to list failed deliveries",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"failedDeliveries": records, "count": len(records)})
}
