package order

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yamb-labs/sokoni/internal/deliveryfee"
	"github.com/yamb-labs/sokoni/internal/ledger"
	"github.com/yamb-labs/sokoni/internal/pagination"
	"github.com/yamb-labs/sokoni/internal/validation"
)

// Handler provides HTTP endpoints for the order lifecycle.
type Handler struct {
	service *Service
}

// NewHandler creates a new order handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up order routes. The actor performing each
// transition comes from the request body; identity resolution is the
// gateway's job upstream of this service.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/orders", h.Create)
	r.GET("/orders", h.List)
	r.GET("/orders/:id", h.Get)
	r.GET("/orders/:id/history", h.History)

	r.POST("/orders/:id/confirm", h.action(func(c *gin.Context, id string, a Actor, req actionRequest) (*Order, error) {
		return h.service.Confirm(c.Request.Context(), id, a, req.Window)
	}))
	r.POST("/orders/:id/prepare", h.action(func(c *gin.Context, id string, a Actor, req actionRequest) (*Order, error) {
		return h.service.StartPreparing(c.Request.Context(), id, a)
	}))
	r.POST("/orders/:id/ready", h.action(func(c *gin.Context, id string, a Actor, req actionRequest) (*Order, error) {
		return h.service.CompletePreparation(c.Request.Context(), id, a)
	}))
	r.POST("/orders/:id/claim", h.action(func(c *gin.Context, id string, a Actor, req actionRequest) (*Order, error) {
		return h.service.Claim(c.Request.Context(), id, a)
	}))
	r.POST("/orders/:id/drop", h.action(func(c *gin.Context, id string, a Actor, req actionRequest) (*Order, error) {
		return h.service.Drop(c.Request.Context(), id, a)
	}))
	r.POST("/orders/:id/pickup", h.action(func(c *gin.Context, id string, a Actor, req actionRequest) (*Order, error) {
		return h.service.PickUp(c.Request.Context(), id, a)
	}))
	r.POST("/orders/:id/transit", h.action(func(c *gin.Context, id string, a Actor, req actionRequest) (*Order, error) {
		return h.service.StartTransit(c.Request.Context(), id, a)
	}))
	r.POST("/orders/:id/out-for-delivery", h.action(func(c *gin.Context, id string, a Actor, req actionRequest) (*Order, error) {
		return h.service.OutForDelivery(c.Request.Context(), id, a)
	}))
	r.POST("/orders/:id/deliver", h.action(func(c *gin.Context, id string, a Actor, req actionRequest) (*Order, error) {
		return h.service.Deliver(c.Request.Context(), id, a)
	}))
	r.POST("/orders/:id/complete", h.action(func(c *gin.Context, id string, a Actor, req actionRequest) (*Order, error) {
		return h.service.Complete(c.Request.Context(), id, a)
	}))
	r.POST("/orders/:id/fail", h.action(func(c *gin.Context, id string, a Actor, req actionRequest) (*Order, error) {
		return h.service.FailDelivery(c.Request.Context(), id, a, req.Reason)
	}))
	r.POST("/orders/:id/cancel", h.action(func(c *gin.Context, id string, a Actor, req actionRequest) (*Order, error) {
		return h.service.Cancel(c.Request.Context(), id, a, req.Reason)
	}))
	r.POST("/orders/:id/refund", h.action(func(c *gin.Context, id string, a Actor, req actionRequest) (*Order, error) {
		return h.service.Refund(c.Request.Context(), id, a, req.Reason)
	}))
}

// actionRequest is the shared body for transition endpoints.
type actionRequest struct {
	Actor  Actor         `json:"actor" binding:"required"`
	Reason string        `json:"reason"`
	Window ConfirmWindow `json:"window"` // confirm only
}

func (h *Handler) action(fn func(c *gin.Context, id string, a Actor, req actionRequest) (*Order, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req actionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "Invalid request body",
			})
			return
		}
		if req.Actor.Type == "" || (req.Actor.Type != ActorSystem && req.Actor.UserID == "") {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "actor type and user id are required",
			})
			return
		}

		o, err := fn(c, c.Param("id"), req.Actor, req)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"order": o})
	}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var insufficient *ledger.InsufficientFundsError
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "order_not_found",
			"message": "Order not found",
		})
	case errors.Is(err, ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "invalid_transition",
			"message": err.Error(),
		})
	case errors.Is(err, ErrConflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "conflict",
			"message": "Order was modified concurrently, retry",
		})
	case errors.Is(err, ErrNotAuthorized), errors.Is(err, ErrNoAgent),
		errors.Is(err, ErrVerifiedAgentRequired):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "not_authorized",
			"message": err.Error(),
		})
	case errors.As(err, &insufficient):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "insufficient_funds",
			"message": insufficient.Error(),
		})
	case errors.Is(err, deliveryfee.ErrFastDisabled), errors.Is(err, deliveryfee.ErrUnknownSpeed),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ErrWindowRequired), errors.Is(err, ErrWindowTooSoon):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "order_operation_failed",
			"message": "Failed to process order operation",
		})
	}
}

// Create handles POST /v1/orders
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	validators := []func() *validation.ValidationError{
		validation.Required("client_id", req.ClientID),
		validation.Required("business_id", req.BusinessID),
		validation.PositiveAmount("subtotal", req.Subtotal),
	}
	if req.Currency != "" {
		validators = append(validators, validation.ValidCurrency("currency", req.Currency))
	}
	if req.DeliveryCountry != "" {
		validators = append(validators, validation.ValidCountry("delivery_country", req.DeliveryCountry))
	}
	if errs := validation.Validate(validators...); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	o, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order": o})
}

// Get handles GET /v1/orders/:id
func (h *Handler) Get(c *gin.Context) {
	o, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o})
}

// List handles GET /v1/orders
func (h *Handler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	f := ListFilter{
		ClientID:   c.Query("client_id"),
		BusinessID: c.Query("business_id"),
		AgentID:    c.Query("agent_id"),
		Status:     Status(c.Query("status")),
		Limit:      limit + 1, // one extra row to detect another page
	}

	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid cursor",
		})
		return
	}
	if cursor != nil {
		f.CreatedBefore = cursor.CreatedAt
		f.BeforeID = cursor.ID
	}

	orders, err := h.service.List(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "order_lookup_failed",
			"message": "Failed to list orders",
		})
		return
	}

	orders, next, hasMore := pagination.ComputePage(orders, limit, func(o *Order) (time.Time, string) {
		return o.CreatedAt, o.ID
	})

	resp := gin.H{"orders": orders, "count": len(orders), "hasMore": hasMore}
	if next != "" {
		resp["nextCursor"] = next
	}
	c.JSON(http.StatusOK, resp)
}

// History handles GET /v1/orders/:id/history
func (h *Handler) History(c *gin.Context) {
	rows, err := h.service.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": rows})
}
