// Package faileddelivery settles orders whose delivery failed.
//
// A failed order keeps its escrow in place until someone attributes the
// fault. Resolution then decides where the held money goes: back to its
// owners, forfeited to the business, or split as a penalty fee. The
// resolver runs outside the main transition path and operates on the
// same ledger and hold records.
package faileddelivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yamb-labs/sokoni/internal/hold"
	"github.com/yamb-labs/sokoni/internal/idgen"
	"github.com/yamb-labs/sokoni/internal/ledger"
	"github.com/yamb-labs/sokoni/internal/logging"
	"github.com/yamb-labs/sokoni/internal/order"
	"github.com/yamb-labs/sokoni/internal/syncutil"
	"github.com/yamb-labs/sokoni/internal/traces"
)

var (
	ErrNotFound         = errors.New("faileddelivery: record not found")
	ErrAlreadyResolved  = errors.New("faileddelivery: already resolved")
	ErrUnknownFault     = errors.New("faileddelivery: unknown fault type")
	ErrFeeNotConfigured = errors.New("faileddelivery: failed delivery fee not configured")
)

// FaultType attributes a failed delivery to one party.
type FaultType string

const (
	FaultAgent  FaultType = "agent_fault"
	FaultItem   FaultType = "item_fault"
	FaultClient FaultType = "client_fault"
)

// Status is the lifecycle of a failed-delivery record.
type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
)

// FailedDelivery is one delivery failure awaiting or past resolution.
type FailedDelivery struct {
	ID         string     `json:"id"`
	OrderID    string     `json:"orderId"`
	AgentID    string     `json:"agentId,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	Status     Status     `json:"status"`
	FaultType  FaultType  `json:"faultType,omitempty"`
	ResolvedBy string     `json:"resolvedBy,omitempty"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// ListFilter narrows List results.
type ListFilter struct {
	OrderID string
	Status  Status
	Limit   int
}

// Store persists failed-delivery records.
type Store interface {
	Create(ctx context.Context, fd *FailedDelivery) error
	Get(ctx context.Context, id string) (*FailedDelivery, error)
	GetByOrder(ctx context.Context, orderID string) (*FailedDelivery, error)
	// MarkResolved flips a pending record to resolved. Returns
	// ErrAlreadyResolved when the record is no longer pending.
	MarkResolved(ctx context.Context, id string, fault FaultType, resolvedBy, notes string) (*FailedDelivery, error)
	List(ctx context.Context, f ListFilter) ([]*FailedDelivery, error)
}

// Orders is the slice of the order service the resolver needs.
type Orders interface {
	Get(ctx context.Context, id string) (*order.Order, error)
}

// Holds reads and closes per-order escrow records.
type Holds interface {
	GetByOrder(ctx context.Context, orderID string) (*hold.OrderHold, error)
	SetStatus(ctx context.Context, orderID string, status hold.Status) (*hold.OrderHold, error)
}

// Ledger registers the settlement transactions.
type Ledger interface {
	RegisterTransaction(ctx context.Context, req ledger.RegisterRequest) (*ledger.Transaction, error)
}

// FeeConfig looks up the per-country failed-delivery fee. The second
// return value reports whether a fee is configured at all.
type FeeConfig interface {
	FailedDeliveryFee(ctx context.Context, country string) (int64, bool)
}

// Inventory restores reserved stock for item faults.
type Inventory interface {
	Restore(ctx context.Context, orderID string) error
}

// Service records and resolves failed deliveries.
type Service struct {
	store     Store
	orders    Orders
	holds     Holds
	ledger    Ledger
	feeConfig FeeConfig
	inventory Inventory

	locks syncutil.ShardedMutex // per-record locks serializing resolution
}

// NewService creates a failed-delivery resolver.
func NewService(store Store, orders Orders, holds Holds, ledgerSvc Ledger, feeConfig FeeConfig) *Service {
	return &Service{
		store:     store,
		orders:    orders,
		holds:     holds,
		ledger:    ledgerSvc,
		feeConfig: feeConfig,
	}
}

// WithInventory adds stock restoration on item faults.
func (s *Service) WithInventory(inv Inventory) *Service {
	s.inventory = inv
	return s
}

// RecordFailure opens a pending failed-delivery record. Called by the
// order service when an agent reports a failure.
func (s *Service) RecordFailure(ctx context.Context, orderID, agentID, reason string) error {
	if existing, err := s.store.GetByOrder(ctx, orderID); err == nil && existing.Status == StatusPending {
		return nil // already open
	}

	now := time.Now().UTC()
	fd := &FailedDelivery{
		ID:        idgen.WithPrefix("fd_"),
		OrderID:   orderID,
		AgentID:   agentID,
		Reason:    reason,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, fd); err != nil {
		return err
	}

	logging.L(ctx).Info("failed delivery recorded",
		"failed_delivery_id", fd.ID, "order_id", orderID, "agent_id", agentID)
	return nil
}

// ResolveRequest carries the human fault attribution.
type ResolveRequest struct {
	FaultType        FaultType `json:"faultType" binding:"required"`
	Notes            string    `json:"notes"`
	ResolvedBy       string    `json:"resolvedBy" binding:"required"`
	RestoreInventory *bool     `json:"restoreInventory"` // item faults, default true
}

// Resolve settles a pending failed delivery. All three escrow parts are
// released; on agent fault the business additionally receives the agent's
// forfeited hold, on client fault the client pays the configured
// failed-delivery fee, split evenly between agent and business.
func (s *Service) Resolve(ctx context.Context, id string, req ResolveRequest) (*FailedDelivery, error) {
	switch req.FaultType {
	case FaultAgent, FaultItem, FaultClient:
	default:
		return nil, ErrUnknownFault
	}

	ctx, span := traces.StartSpan(ctx, "faileddelivery.Resolve",
		traces.FailureID(id),
		attribute.String("fault_type", string(req.FaultType)),
	)
	defer span.End()

	unlock := s.locks.Lock(id)
	defer unlock()

	fd, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if fd.Status != StatusPending {
		return nil, ErrAlreadyResolved
	}

	o, err := s.orders.Get(ctx, fd.OrderID)
	if err != nil {
		return nil, err
	}
	h, err := s.holds.GetByOrder(ctx, fd.OrderID)
	if err != nil {
		return nil, err
	}

	// A client fault needs a configured fee before any money moves.
	var fee int64
	if req.FaultType == FaultClient {
		var ok bool
		fee, ok = s.feeConfig.FailedDeliveryFee(ctx, o.DeliveryCountry)
		if !ok {
			return nil, ErrFeeNotConfigured
		}
	}

	if h.Status == hold.StatusActive {
		if err := s.releaseHolds(ctx, o, h, req.FaultType); err != nil {
			return nil, err
		}
		if _, err := s.holds.SetStatus(ctx, fd.OrderID, hold.StatusCancelled); err != nil {
			logging.L(ctx).Error("holds released but hold row not marked cancelled",
				"order_id", fd.OrderID, "error", err)
		}
	}

	if req.FaultType == FaultClient {
		if err := s.chargeClientFee(ctx, o, fee); err != nil {
			return nil, err
		}
	}

	if req.FaultType == FaultItem && s.inventory != nil {
		if req.RestoreInventory == nil || *req.RestoreInventory {
			if err := s.inventory.Restore(ctx, o.ID); err != nil {
				logging.L(ctx).Error("inventory restore failed", "order_id", o.ID, "error", err)
			}
		}
	}

	resolved, err := s.store.MarkResolved(ctx, id, req.FaultType, req.ResolvedBy, req.Notes)
	if err != nil {
		logging.L(ctx).Error("CRITICAL: settlement registered but record not marked resolved",
			"failed_delivery_id", id, "order_id", fd.OrderID, "error", err)
		return nil, err
	}
	observeResolution(req.FaultType)

	// The order stays failed. The ledger trail plus the resolved record
	// carry the outcome.

	logging.L(ctx).Info("failed delivery resolved",
		"failed_delivery_id", id, "order_id", fd.OrderID,
		"fault_type", req.FaultType, "resolved_by", req.ResolvedBy)
	return resolved, nil
}

// releaseHolds returns every escrow part to its owner. Agent faults
// additionally forfeit the agent's hold amount to the business.
func (s *Service) releaseHolds(ctx context.Context, o *order.Order, h *hold.OrderHold, fault FaultType) error {
	if o.AgentID != "" && h.AgentHoldAmount > 0 {
		if err := s.register(ctx, o, o.AgentID, h.AgentHoldAmount, ledger.TypeRelease,
			fmt.Sprintf("Hold released for order %s", o.OrderNumber)); err != nil {
			return err
		}
		if fault == FaultAgent {
			if err := s.register(ctx, o, o.BusinessID, h.AgentHoldAmount, ledger.TypeDeposit,
				fmt.Sprintf("Agent penalty for failed order %s", o.OrderNumber)); err != nil {
				return err
			}
		}
	}
	if h.DeliveryFeesAmount > 0 {
		if err := s.register(ctx, o, o.ClientID, h.DeliveryFeesAmount, ledger.TypeRelease,
			fmt.Sprintf("Delivery fee hold released for order %s", o.OrderNumber)); err != nil {
			return err
		}
	}
	if h.ClientHoldAmount > 0 {
		if err := s.register(ctx, o, o.ClientID, h.ClientHoldAmount, ledger.TypeRelease,
			fmt.Sprintf("Hold released for order %s", o.OrderNumber)); err != nil {
			return err
		}
	}
	return nil
}

// chargeClientFee withdraws the failed-delivery fee from the client and
// splits it evenly between the agent and the business.
func (s *Service) chargeClientFee(ctx context.Context, o *order.Order, fee int64) error {
	if fee <= 0 {
		return nil
	}
	if err := s.register(ctx, o, o.ClientID, fee, ledger.TypeWithdrawal,
		fmt.Sprintf("Failed delivery fee for order %s", o.OrderNumber)); err != nil {
		return err
	}

	agentShare := fee / 2
	businessShare := fee - agentShare
	if o.AgentID != "" && agentShare > 0 {
		if err := s.register(ctx, o, o.AgentID, agentShare, ledger.TypeDeposit,
			fmt.Sprintf("Failed delivery compensation for order %s", o.OrderNumber)); err != nil {
			return err
		}
	}
	if err := s.register(ctx, o, o.BusinessID, businessShare, ledger.TypeDeposit,
		fmt.Sprintf("Failed delivery compensation for order %s", o.OrderNumber)); err != nil {
		return err
	}
	return nil
}

func (s *Service) register(ctx context.Context, o *order.Order, userID string, amount int64, t ledger.TransactionType, memo string) error {
	_, err := s.ledger.RegisterTransaction(ctx, ledger.RegisterRequest{
		UserID:   userID,
		Currency: o.Currency,
		Amount:   amount,
		Type:     t,
		Memo:     memo,
		OrderID:  o.ID,
	})
	return err
}

// Get returns a failed-delivery record by ID.
func (s *Service) Get(ctx context.Context, id string) (*FailedDelivery, error) {
	return s.store.Get(ctx, id)
}

// GetByOrder returns the failed-delivery record for an order.
func (s *Service) GetByOrder(ctx context.Context, orderID string) (*FailedDelivery, error) {
	return s.store.GetByOrder(ctx, orderID)
}

// List returns failed-delivery records matching a filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]*FailedDelivery, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	return s.store.List(ctx, f)
}
