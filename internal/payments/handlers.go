package payments

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	stripe "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/yamb-labs/sokoni/internal/order"
)

// Stripe event types we act on. Everything else is acknowledged and dropped.
const (
	eventCheckoutCompleted = "checkout.session.completed"
	eventCheckoutExpired   = "checkout.session.expired"
)

// maxBodyBytes caps webhook payloads, per Stripe's recommendation.
const maxBodyBytes = int64(65536)

// Handler receives Stripe webhook callbacks.
type Handler struct {
	orders Orders
	secret string
	logger *slog.Logger
}

// NewHandler creates a Stripe webhook handler. If secret is empty the
// endpoint responds 503 to every delivery.
func NewHandler(orders Orders, secret string, logger *slog.Logger) *Handler {
	return &Handler{orders: orders, secret: secret, logger: logger}
}

// RegisterRoutes sets up the webhook endpoint. Stripe authenticates via the
// signature header, so the route stays outside the admin group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/payments/stripe/webhook", h.HandleWebhook)
}

// HandleWebhook handles POST /v1/payments/stripe/webhook
func (h *Handler) HandleWebhook(c *gin.Context) {
	if h.secret == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "disabled",
			"message": ErrDisabled.Error(),
		})
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Failed to read request body",
		})
		return
	}

	event, err := webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), h.secret)
	if err != nil {
		h.logger.Warn("stripe signature verification failed", "error", err)
		observeStripeEvent("unknown", "bad_signature")
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_signature",
			"message": "Webhook signature verification failed",
		})
		return
	}

	eventType := string(event.Type)
	switch eventType {
	case eventCheckoutCompleted, eventCheckoutExpired:
	default:
		observeStripeEvent(eventType, "ignored")
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		h.logger.Error("stripe event payload unmarshal failed", "type", eventType, "error", err)
		observeStripeEvent(eventType, "error")
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Malformed event payload",
		})
		return
	}

	orderID := session.ClientReferenceID
	if orderID == "" {
		// Not one of ours (e.g. a session created outside the marketplace).
		h.logger.Warn("checkout session without order reference", "session", session.ID)
		observeStripeEvent(eventType, "ignored")
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	ctx := c.Request.Context()
	switch eventType {
	case eventCheckoutCompleted:
		_, err = h.orders.MarkPaid(ctx, orderID)
	case eventCheckoutExpired:
		_, err = h.orders.Cancel(ctx, orderID, systemActor, "payment session expired")
	}

	if err != nil {
		switch {
		case errors.Is(err, order.ErrNotFound):
			// Ack so Stripe stops retrying; the order may belong to another environment.
			h.logger.Warn("stripe event for unknown order", "order", orderID, "type", eventType)
			observeStripeEvent(eventType, "unknown_order")
			c.JSON(http.StatusOK, gin.H{"received": true})
		case errors.Is(err, order.ErrInvalidTransition):
			// Replayed delivery: the order already moved on.
			observeStripeEvent(eventType, "replay")
			c.JSON(http.StatusOK, gin.H{"received": true})
		default:
			h.logger.Error("stripe event processing failed", "order", orderID, "type", eventType, "error", err)
			observeStripeEvent(eventType, "error")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to process event",
			})
		}
		return
	}

	h.logger.Info("stripe event processed", "order", orderID, "type", eventType)
	observeStripeEvent(eventType, "processed")
	c.JSON(http.StatusOK, gin.H{"received": true})
}
