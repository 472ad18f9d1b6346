package order

import (
	"context"
	"fmt"

	"github.com/yamb-labs/sokoni/internal/deliveryfee"
	"github.com/yamb-labs/sokoni/internal/hold"
	"github.com/yamb-labs/sokoni/internal/ledger"
)

// LedgerService is the slice of the ledger the order service needs.
// Defined here so the ledger package stays unaware of orders.
type LedgerService interface {
	RegisterTransaction(ctx context.Context, req ledger.RegisterRequest) (*ledger.Transaction, error)
}

// HoldManager tracks per-order escrow amounts.
type HoldManager interface {
	GetOrCreate(ctx context.Context, orderID string, orderTotal int64, currency string) (*hold.OrderHold, error)
	GetByOrder(ctx context.Context, orderID string) (*hold.OrderHold, error)
	Update(ctx context.Context, orderID string, p hold.Patch) (*hold.OrderHold, error)
	SetStatus(ctx context.Context, orderID string, status hold.Status) (*hold.OrderHold, error)
}

// FeeQuoter computes delivery fees at order creation.
type FeeQuoter interface {
	Quote(ctx context.Context, req deliveryfee.QuoteRequest) (*deliveryfee.Quote, error)
}

// FeeConfig reads per-country fee settings used by cancellations.
type FeeConfig interface {
	CancellationFee(ctx context.Context, country string) int64
}

// HoldPolicy decides how much an agent escrows when claiming an order.
type HoldPolicy interface {
	HoldPercent(tier AgentTier) int64
}

// Commissions distributes the proceeds of a completed order. Failures
// are logged, never fatal to the completion itself.
type Commissions interface {
	Distribute(ctx context.Context, o *Order) error
}

// LedgerCommissions is the default payout: the business earns the goods
// value and the assigned agent the delivery fee, straight from the ledger.
type LedgerCommissions struct {
	Ledger LedgerService
}

func (c LedgerCommissions) Distribute(ctx context.Context, o *Order) error {
	if _, err := c.Ledger.RegisterTransaction(ctx, ledger.RegisterRequest{
		UserID:        o.BusinessID,
		Currency:      o.Currency,
		Amount:        o.Subtotal,
		Type:          ledger.TypeDeposit,
		Memo:          fmt.Sprintf("Payment received for order %s", o.OrderNumber),
		OrderID:       o.ID,
		RelatedUserID: o.ClientID,
	}); err != nil {
		return err
	}
	if o.AgentID != "" && o.DeliveryFee > 0 {
		if _, err := c.Ledger.RegisterTransaction(ctx, ledger.RegisterRequest{
			UserID:        o.AgentID,
			Currency:      o.Currency,
			Amount:        o.DeliveryFee,
			Type:          ledger.TypeDeposit,
			Memo:          fmt.Sprintf("Delivery fee for order %s", o.OrderNumber),
			OrderID:       o.ID,
			RelatedUserID: o.ClientID,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Inventory adjusts stock levels when orders complete or fail.
type Inventory interface {
	Decrement(ctx context.Context, orderID string) error
	Restore(ctx context.Context, orderID string) error
}

// FailureRecorder opens a failed-delivery case when an agent reports one.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, orderID, agentID, reason string) error
}

// Recorder receives order lifecycle events for webhooks, receipts and
// live tracking. Implementations must not block.
type Recorder interface {
	OrderStatusChanged(ctx context.Context, o *Order, from Status, actor Actor)
	OrderCompleted(ctx context.Context, o *Order)
	OrderCancelled(ctx context.Context, o *Order, actor Actor)
	OrderFailed(ctx context.Context, o *Order, reason string)
}

// StaticHoldPolicy is the default tier table.
type StaticHoldPolicy struct {
	Internal   int64
	Verified   int64
	Unverified int64
}

// HoldPercent returns the escrow percentage for a tier. Unknown tiers are
// treated as unverified.
func (p StaticHoldPolicy) HoldPercent(tier AgentTier) int64 {
	switch tier {
	case TierInternal:
		return p.Internal
	case TierVerified:
		return p.Verified
	default:
		return p.Unverified
	}
}
