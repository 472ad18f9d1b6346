package ledger

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yamb-labs/sokoni/internal/validation"
)

// Handler provides HTTP endpoints for accounts and transactions.
type Handler struct {
	service *Service
}

// NewHandler creates a new ledger handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up public (read-only) account routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/users/:id/accounts", h.ListAccounts)
	r.GET("/users/:id/accounts/:currency", h.GetAccount)
	r.GET("/users/:id/transactions", h.ListTransactions)
}

// RegisterProtectedRoutes sets up protected (admin) routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/transactions", h.RegisterTransaction)
}

// RegisterTransaction handles POST /v1/transactions
func (h *Handler) RegisterTransaction(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("user_id", req.UserID),
		validation.ValidCurrency("currency", req.Currency),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	txn, err := h.service.RegisterTransaction(c.Request.Context(), req)
	if err != nil {
		var insufficient *InsufficientFundsError
		switch {
		case errors.As(err, &insufficient):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "insufficient_funds",
				"message": insufficient.Error(),
			})
		case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrUnknownType), errors.Is(err, ErrCurrencyRequired):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": err.Error(),
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "transaction_failed",
				"message": "Failed to register transaction",
			})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"transaction": txn})
}

// GetAccount handles GET /v1/users/:id/accounts/:currency
func (h *Handler) GetAccount(c *gin.Context) {
	acct, err := h.service.GetAccount(c.Request.Context(), c.Param("id"), c.Param("currency"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "account_lookup_failed",
			"message": "Failed to look up account",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": acct, "total": acct.Total()})
}

// ListAccounts handles GET /v1/users/:id/accounts
func (h *Handler) ListAccounts(c *gin.Context) {
	accts, err := h.service.ListAccounts(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "account_lookup_failed",
			"message": "Failed to list accounts",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accts})
}

// ListTransactions handles GET /v1/users/:id/transactions
func (h *Handler) ListTransactions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	f := TransactionFilter{
		Currency: c.Query("currency"),
		OrderID:  c.Query("order_id"),
		Type:     TransactionType(c.Query("type")),
		Limit:    limit,
	}

	txns, err := h.service.ListTransactions(c.Request.Context(), c.Param("id"), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "transaction_lookup_failed",
			"message": "Failed to list transactions",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}
