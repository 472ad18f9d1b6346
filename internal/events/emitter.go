package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/yamb-labs/sokoni/internal/idgen"
	"github.com/yamb-labs/sokoni/internal/ledger"
	"github.com/yamb-labs/sokoni/internal/order"
)

var (
	eventEmitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sokoni",
		Subsystem: "events",
		Name:      "emit_total",
		Help:      "Total event emit attempts by event type.",
	}, []string{"event_type"})

	eventEmitErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sokoni",
		Subsystem: "events",
		Name:      "emit_errors_total",
		Help:      "Total event emit failures by event type.",
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(eventEmitTotal, eventEmitErrors)
}

// Emitter wraps a Dispatcher to emit lifecycle events across subsystems.
// All methods are fire-and-forget: errors are logged but never returned.
// It satisfies the order service's Recorder interface.
type Emitter struct {
	d      *Dispatcher
	logger *slog.Logger
}

// NewEmitter creates a new event emitter.
func NewEmitter(d *Dispatcher, logger *slog.Logger) *Emitter {
	return &Emitter{d: d, logger: logger}
}

func (e *Emitter) emit(eventType EventType, data map[string]interface{}) {
	if e == nil || e.d == nil {
		return
	}
	eventEmitTotal.WithLabelValues(string(eventType)).Inc()
	event := &Event{
		ID:        idgen.WithPrefix("evt_"),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.d.Dispatch(ctx, event); err != nil {
		eventEmitErrors.WithLabelValues(string(eventType)).Inc()
		e.logger.Warn("event emit failed", "event", eventType, "error", err)
	}
}

func orderData(o *order.Order) map[string]interface{} {
	return map[string]interface{}{
		"orderId":     o.ID,
		"orderNumber": o.OrderNumber,
		"clientId":    o.ClientID,
		"businessId":  o.BusinessID,
		"agentId":     o.AgentID,
		"status":      o.Status,
		"total":       o.Total,
		"currency":    o.Currency,
	}
}

// EmitOrderCreated emits an order.created event.
func (e *Emitter) EmitOrderCreated(o *order.Order) {
	e.emit(EventOrderCreated, orderData(o))
}

// OrderStatusChanged emits an order.status.changed event.
func (e *Emitter) OrderStatusChanged(ctx context.Context, o *order.Order, from order.Status, actor order.Actor) {
	data := orderData(o)
	data["fromStatus"] = from
	data["actorType"] = actor.Type
	data["actorId"] = actor.UserID
	e.emit(EventOrderStatusChanged, data)
}

// OrderCompleted emits an order.completed event.
func (e *Emitter) OrderCompleted(ctx context.Context, o *order.Order) {
	e.emit(EventOrderCompleted, orderData(o))
}

// OrderCancelled emits an order.cancelled event.
func (e *Emitter) OrderCancelled(ctx context.Context, o *order.Order, actor order.Actor) {
	data := orderData(o)
	data["actorType"] = actor.Type
	data["actorId"] = actor.UserID
	e.emit(EventOrderCancelled, data)
}

// OrderFailed emits an order.failed event.
func (e *Emitter) OrderFailed(ctx context.Context, o *order.Order, reason string) {
	data := orderData(o)
	data["reason"] = reason
	e.emit(EventOrderFailed, data)
}

// TransactionRegistered emits a ledger.transaction.registered event.
func (e *Emitter) TransactionRegistered(txn *ledger.Transaction) {
	e.emit(EventTransactionRegistered, map[string]interface{}{
		"transactionId": txn.ID,
		"userId":        txn.UserID,
		"currency":      txn.Currency,
		"amount":        txn.Amount,
		"type":          txn.Type,
		"orderId":       txn.OrderID,
	})
}
