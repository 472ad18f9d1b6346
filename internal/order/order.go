// Package order implements the marketplace order lifecycle.
//
// An order moves through a fixed status graph. Every transition is checked
// against the graph and against who is acting: the business that sells,
// the agent that delivers, or the client that buys. Status changes with
// financial consequences move money through the ledger and the order hold
// before the new status is stored.
package order

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/yamb-labs/sokoni/internal/geo"
)

var (
	ErrNotFound          = errors.New("order: not found")
	ErrInvalidTransition = errors.New("order: invalid status transition")
	ErrNotAuthorized     = errors.New("order: actor not authorized for this transition")
	ErrConflict          = errors.New("order: concurrent status change")
	ErrNoAgent           = errors.New("order: no agent assigned")
	ErrWindowRequired    = errors.New("order: delivery window required to confirm")
	ErrWindowTooSoon     = errors.New("order: delivery window must start at least 2 hours out")
	// ErrVerifiedAgentRequired rejects unverified agents claiming orders
	// flagged as verified-only.
	ErrVerifiedAgentRequired = errors.New("order: verified agent required")
)

// Status is an order lifecycle state.
type Status string

const (
	StatusPendingPayment  Status = "pending_payment"
	StatusPending         Status = "pending"
	StatusConfirmed       Status = "confirmed"
	StatusPreparing       Status = "preparing"
	StatusReadyForPickup  Status = "ready_for_pickup"
	StatusAssignedToAgent Status = "assigned_to_agent"
	StatusPickedUp        Status = "picked_up"
	StatusInTransit       Status = "in_transit"
	StatusOutForDelivery  Status = "out_for_delivery"
	StatusDelivered       Status = "delivered"
	StatusComplete        Status = "complete"
	StatusCancelled       Status = "cancelled"
	StatusFailed          Status = "failed"
	StatusRefunded        Status = "refunded"
)

// IsTerminal reports whether the order reached a settled end state.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusRefunded
}

// ActorType identifies which side of the marketplace is acting.
type ActorType string

const (
	ActorBusiness ActorType = "business"
	ActorAgent    ActorType = "agent"
	ActorClient   ActorType = "client"
	ActorSystem   ActorType = "system"
)

// AgentTier determines how much of an order's value an agent must escrow
// when claiming it.
type AgentTier string

const (
	TierInternal   AgentTier = "internal"
	TierVerified   AgentTier = "verified"
	TierUnverified AgentTier = "unverified"
)

// Actor is the resolved identity performing a transition. Identity
// resolution happens upstream; the order service only checks that the
// actor matches the order's parties.
type Actor struct {
	Type   ActorType `json:"type"`
	UserID string    `json:"userId"`
	Tier   AgentTier `json:"tier,omitempty"` // agents only
}

// Order is a marketplace order.
type Order struct {
	ID               string    `json:"id"`
	OrderNumber      string    `json:"orderNumber"`
	ClientID         string    `json:"clientId"`
	BusinessID       string    `json:"businessId"`
	AgentID          string    `json:"agentId,omitempty"`
	Subtotal         int64     `json:"subtotal"`    // minor units
	DeliveryFee      int64     `json:"deliveryFee"` // minor units
	Total            int64     `json:"total"`       // subtotal + delivery fee
	Currency         string    `json:"currency"`
	Status           Status    `json:"status"`
	DeliverySpeed    string    `json:"deliverySpeed"`
	DeliveryCountry  string    `json:"deliveryCountry,omitempty"`
	// RequiresVerifiedAgent restricts claiming to verified or internal agents.
	RequiresVerifiedAgent bool      `json:"requiresVerifiedAgent,omitempty"`
	BusinessLocation      geo.Point `json:"businessLocation"`
	DeliveryLocation      geo.Point `json:"deliveryLocation"`
	DeliveryWindow        *Window   `json:"deliveryWindow,omitempty"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

// Window is the delivery slot attached when the business confirms the order.
type Window struct {
	ID       string    `json:"id"`
	StartsAt time.Time `json:"startsAt"`
	EndsAt   time.Time `json:"endsAt"`
}

// StatusChange is one row of an order's audit trail.
type StatusChange struct {
	ID              string    `json:"id"`
	OrderID         string    `json:"orderId"`
	FromStatus      Status    `json:"fromStatus,omitempty"`
	ToStatus        Status    `json:"toStatus"`
	ChangedByType   ActorType `json:"changedByType"`
	ChangedByUserID string    `json:"changedByUserId,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// transitions maps each status to who may move the order where.
var transitions = map[Status]map[Status][]ActorType{
	StatusPendingPayment: {
		StatusPending:   {ActorSystem},
		StatusCancelled: {ActorClient, ActorSystem},
	},
	StatusPending: {
		StatusConfirmed: {ActorBusiness},
		StatusCancelled: {ActorBusiness, ActorClient},
	},
	StatusConfirmed: {
		StatusPreparing: {ActorBusiness},
		StatusCancelled: {ActorBusiness, ActorClient},
	},
	StatusPreparing: {
		StatusReadyForPickup: {ActorBusiness},
		StatusCancelled:      {ActorBusiness, ActorClient},
	},
	// Only the client may still back out once the order is ready; any
	// agent may claim it.
	StatusReadyForPickup: {
		StatusAssignedToAgent: {ActorAgent},
		StatusCancelled:       {ActorClient},
	},
	StatusAssignedToAgent: {
		StatusPickedUp:       {ActorAgent},
		StatusReadyForPickup: {ActorAgent}, // agent drops the order
	},
	StatusPickedUp: {
		StatusInTransit:      {ActorAgent},
		StatusOutForDelivery: {ActorAgent},
	},
	StatusInTransit: {
		StatusOutForDelivery: {ActorAgent},
	},
	// Failure can only be declared at the door.
	StatusOutForDelivery: {
		StatusDelivered: {ActorAgent},
		StatusFailed:    {ActorAgent},
	},
	StatusDelivered: {
		StatusComplete: {ActorClient},
		StatusRefunded: {ActorBusiness},
	},
	StatusFailed: {
		StatusRefunded: {ActorBusiness},
	},
}

// CanTransition reports whether an actor type may move an order between
// two statuses. It checks the graph only; party matching is separate.
func CanTransition(from, to Status, by ActorType) bool {
	targets, ok := transitions[from]
	if !ok {
		return false
	}
	allowed, ok := targets[to]
	if !ok {
		return false
	}
	for _, a := range allowed {
		if a == by {
			return true
		}
	}
	return false
}

// Authorize checks the transition graph and that the actor is a party to
// the order. The one deliberate exception: any agent may claim an order
// that is ready for pickup. After assignment only the assigned agent acts.
func (o *Order) Authorize(to Status, actor Actor) error {
	if !CanTransition(o.Status, to, actor.Type) {
		return ErrInvalidTransition
	}

	switch actor.Type {
	case ActorBusiness:
		if actor.UserID != o.BusinessID {
			return ErrNotAuthorized
		}
	case ActorClient:
		if actor.UserID != o.ClientID {
			return ErrNotAuthorized
		}
	case ActorAgent:
		if o.Status == StatusReadyForPickup && to == StatusAssignedToAgent {
			return nil // open claim
		}
		if o.AgentID == "" {
			return ErrNoAgent
		}
		if actor.UserID != o.AgentID {
			return ErrNotAuthorized
		}
	case ActorSystem:
		// trusted internal caller
	default:
		return ErrNotAuthorized
	}
	return nil
}

// ListFilter narrows List results. Results are ordered newest first;
// CreatedBefore and BeforeID carry the cursor position for pagination.
type ListFilter struct {
	ClientID      string
	BusinessID    string
	AgentID       string
	Status        Status
	Limit         int
	CreatedBefore time.Time
	BeforeID      string
}

// Store persists orders and their status history.
type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// UpdateStatus compare-and-swaps the order status. Returns ErrConflict
	// when the stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to Status) (*Order, error)
	SetAgent(ctx context.Context, id, agentID string) error
	SetWindow(ctx context.Context, id string, w Window) error
	List(ctx context.Context, f ListFilter) ([]*Order, error)
	AppendHistory(ctx context.Context, ch *StatusChange) error
	History(ctx context.Context, orderID string) ([]*StatusChange, error)
}

// NewOrderNumber derives a short human-readable order number from an ID.
func NewOrderNumber(id string) string {
	suffix := strings.TrimPrefix(id, "ord_")
	if len(suffix) > 8 {
		suffix = suffix[len(suffix)-8:]
	}
	return "SKN-" + strings.ToUpper(suffix)
}
