// Package hold tracks the escrow amounts tied to a single order.
//
// One OrderHold row exists per order. It mirrors what the ledger has
// withheld for each party so that settlement and cancellation paths know
// exactly how much to release without replaying the transaction log.
package hold

import (
	"context"
	"errors"
	"time"

	"github.com/yamb-labs/sokoni/internal/idgen"
)

var (
	ErrNotFound = errors.New("hold: not found")
)

// Status describes the lifecycle of an order hold.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// OrderHold records escrowed amounts per party for one order.
type OrderHold struct {
	ID                 string    `json:"id"`
	OrderID            string    `json:"orderId"`
	ClientHoldAmount   int64     `json:"clientHoldAmount"`   // minor units
	AgentHoldAmount    int64     `json:"agentHoldAmount"`    // minor units
	DeliveryFeesAmount int64     `json:"deliveryFeesAmount"` // minor units
	Currency           string    `json:"currency"`
	Status             Status    `json:"status"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Patch updates selected amounts on a hold. Nil fields are left unchanged.
type Patch struct {
	ClientHoldAmount   *int64
	AgentHoldAmount    *int64
	DeliveryFeesAmount *int64
}

// Store persists order holds.
type Store interface {
	// Create inserts the hold unless one already exists for the order, in
	// which case the existing hold is returned with created=false.
	Create(ctx context.Context, h *OrderHold) (existing *OrderHold, created bool, err error)
	GetByOrder(ctx context.Context, orderID string) (*OrderHold, error)
	Update(ctx context.Context, orderID string, p Patch) (*OrderHold, error)
	SetStatus(ctx context.Context, orderID string, status Status) (*OrderHold, error)
	// ListByStatus returns every hold in the given status. Used by
	// reconciliation to cross-check holds against the ledger.
	ListByStatus(ctx context.Context, status Status) ([]*OrderHold, error)
}

// Manager provides hold lifecycle operations.
type Manager struct {
	store Store
}

// NewManager creates a new hold manager.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// GetOrCreate returns the hold for an order, creating it on first call.
// The new hold is seeded with the order total as the client hold; agent
// and delivery fee amounts start at zero. Calling it again for the same
// order returns the existing hold unchanged.
func (m *Manager) GetOrCreate(ctx context.Context, orderID string, orderTotal int64, currency string) (*OrderHold, error) {
	now := time.Now().UTC()
	h := &OrderHold{
		ID:               idgen.WithPrefix("hold_"),
		OrderID:          orderID,
		ClientHoldAmount: orderTotal,
		Currency:         currency,
		Status:           StatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	existing, created, err := m.store.Create(ctx, h)
	if err != nil {
		return nil, err
	}
	if !created {
		return existing, nil
	}
	return h, nil
}

// GetByOrder returns the hold for an order.
func (m *Manager) GetByOrder(ctx context.Context, orderID string) (*OrderHold, error) {
	return m.store.GetByOrder(ctx, orderID)
}

// Update applies a patch to the hold amounts.
func (m *Manager) Update(ctx context.Context, orderID string, p Patch) (*OrderHold, error) {
	return m.store.Update(ctx, orderID, p)
}

// SetStatus marks a hold completed or cancelled.
func (m *Manager) SetStatus(ctx context.Context, orderID string, status Status) (*OrderHold, error) {
	return m.store.SetStatus(ctx, orderID, status)
}

// ListByStatus returns every hold in the given status.
func (m *Manager) ListByStatus(ctx context.Context, status Status) ([]*OrderHold, error) {
	return m.store.ListByStatus(ctx, status)
}
