// Package payments processes inbound Stripe webhook events.
//
// Clients pay through Stripe Checkout; Stripe notifies us when a checkout
// session settles or expires, and we move the order accordingly. The order ID
// travels in the session's client_reference_id.
package payments

import (
	"context"
	"errors"

	"github.com/yamb-labs/sokoni/internal/order"
)

var (
	// ErrDisabled is returned when no webhook signing secret is configured.
	ErrDisabled = errors.New("payments: stripe webhook disabled (no signing secret configured)")
	// ErrNoOrderReference is returned when a checkout session carries no order ID.
	ErrNoOrderReference = errors.New("payments: checkout session has no order reference")
)

// Orders is the slice of the order service the payment processor needs.
type Orders interface {
	MarkPaid(ctx context.Context, orderID string) (*order.Order, error)
	Cancel(ctx context.Context, orderID string, actor order.Actor, reason string) (*order.Order, error)
}

// systemActor attributes payment-driven transitions to the platform.
var systemActor = order.Actor{Type: order.ActorSystem, UserID: "stripe"}
