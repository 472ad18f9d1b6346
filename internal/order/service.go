package order

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yamb-labs/sokoni/internal/deliveryfee"
	"github.com/yamb-labs/sokoni/internal/geo"
	"github.com/yamb-labs/sokoni/internal/hold"
	"github.com/yamb-labs/sokoni/internal/idgen"
	"github.com/yamb-labs/sokoni/internal/ledger"
	"github.com/yamb-labs/sokoni/internal/logging"
	"github.com/yamb-labs/sokoni/internal/money"
	"github.com/yamb-labs/sokoni/internal/traces"
)

// Service implements order lifecycle logic.
type Service struct {
	store      Store
	ledger     LedgerService
	holds      HoldManager
	fees       FeeQuoter
	feeConfig  FeeConfig
	holdPolicy HoldPolicy

	commissions Commissions
	inventory   Inventory
	failures    FailureRecorder
	recorder    Recorder

	locks sync.Map // per-order ID locks serializing transitions
}

// orderLock returns a mutex for the given order ID.
// This prevents concurrent transitions (e.g. two agents claiming at once).
func (s *Service) orderLock(id string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// NewService creates a new order service.
func NewService(store Store, ledgerSvc LedgerService, holds HoldManager, fees FeeQuoter, feeConfig FeeConfig, holdPolicy HoldPolicy) *Service {
	return &Service{
		store:       store,
		ledger:      ledgerSvc,
		holds:       holds,
		fees:        fees,
		feeConfig:   feeConfig,
		holdPolicy:  holdPolicy,
		commissions: LedgerCommissions{Ledger: ledgerSvc},
	}
}

// WithCommissions replaces the default ledger payout on completion.
func (s *Service) WithCommissions(c Commissions) *Service {
	s.commissions = c
	return s
}

// WithInventory adds stock adjustments on completion.
func (s *Service) WithInventory(inv Inventory) *Service {
	s.inventory = inv
	return s
}

// WithFailureRecorder adds failed-delivery case creation.
func (s *Service) WithFailureRecorder(f FailureRecorder) *Service {
	s.failures = f
	return s
}

// WithRecorder adds lifecycle event recording (webhooks, realtime, receipts).
func (s *Service) WithRecorder(r Recorder) *Service {
	s.recorder = r
	return s
}

// CreateRequest contains the parameters for placing an order.
type CreateRequest struct {
	ClientID              string    `json:"clientId" binding:"required"`
	BusinessID            string    `json:"businessId" binding:"required"`
	Subtotal              int64     `json:"subtotal" binding:"required"`
	Currency              string    `json:"currency"`
	DeliverySpeed         string    `json:"deliverySpeed"`
	DeliveryCountry       string    `json:"deliveryCountry"`
	BusinessLocation      geo.Point `json:"businessLocation"`
	DeliveryLocation      geo.Point `json:"deliveryLocation"`
	RequiresVerifiedAgent bool      `json:"requiresVerifiedAgent"`
}

// Create places a new order in pending_payment with a quoted delivery fee.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	if req.Subtotal <= 0 {
		return nil, ledger.ErrInvalidAmount
	}

	speed := req.DeliverySpeed
	if speed == "" {
		speed = string(deliveryfee.SpeedNormal)
	}

	quote, err := s.fees.Quote(ctx, deliveryfee.QuoteRequest{
		BusinessLocation: req.BusinessLocation,
		DeliveryLocation: req.DeliveryLocation,
		Speed:            deliveryfee.Speed(speed),
		Country:          req.DeliveryCountry,
	})
	if err != nil {
		return nil, fmt.Errorf("quote delivery fee: %w", err)
	}

	currency := req.Currency
	if currency == "" {
		currency = quote.Currency
	}

	now := time.Now().UTC()
	id := idgen.WithPrefix("ord_")
	o := &Order{
		ID:                    id,
		OrderNumber:           NewOrderNumber(id),
		ClientID:              req.ClientID,
		BusinessID:            req.BusinessID,
		Subtotal:              req.Subtotal,
		DeliveryFee:           quote.Fee,
		Total:                 req.Subtotal + quote.Fee,
		Currency:              currency,
		Status:                StatusPendingPayment,
		DeliverySpeed:         speed,
		DeliveryCountry:       req.DeliveryCountry,
		BusinessLocation:      req.BusinessLocation,
		DeliveryLocation:      req.DeliveryLocation,
		RequiresVerifiedAgent: req.RequiresVerifiedAgent,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := s.store.Create(ctx, o); err != nil {
		return nil, err
	}
	s.appendHistory(ctx, o.ID, "", StatusPendingPayment, Actor{Type: ActorSystem}, "order placed")
	observeTransition("", StatusPendingPayment)
	return o, nil
}

// Get returns an order by ID.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.store.Get(ctx, id)
}

// List returns orders matching a filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]*Order, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	return s.store.List(ctx, f)
}

// History returns an order's status audit trail.
func (s *Service) History(ctx context.Context, orderID string) ([]*StatusChange, error) {
	return s.store.History(ctx, orderID)
}

// MarkPaid moves a paid order out of pending_payment. Called by the
// payment webhook, never directly by users.
func (s *Service) MarkPaid(ctx context.Context, orderID string) (*Order, error) {
	return s.transition(ctx, orderID, StatusPending, Actor{Type: ActorSystem}, "payment received", nil)
}

// minWindowLead is the earliest a newly created delivery window may start.
const minWindowLead = 2 * time.Hour

// ConfirmWindow carries the delivery slot for a confirmation: either the
// id of an already scheduled window, or times for a new one.
type ConfirmWindow struct {
	WindowID string    `json:"windowId,omitempty"`
	StartsAt time.Time `json:"windowStart,omitempty"`
	EndsAt   time.Time `json:"windowEnd,omitempty"`
}

// resolveWindow turns a ConfirmWindow into the Window stored on the order.
func resolveWindow(cw ConfirmWindow, now time.Time) (Window, error) {
	if cw.WindowID != "" {
		return Window{ID: cw.WindowID, StartsAt: cw.StartsAt, EndsAt: cw.EndsAt}, nil
	}
	if cw.StartsAt.IsZero() {
		return Window{}, ErrWindowRequired
	}
	if cw.StartsAt.Before(now.Add(minWindowLead)) {
		return Window{}, ErrWindowTooSoon
	}
	end := cw.EndsAt
	if end.IsZero() {
		end = cw.StartsAt.Add(minWindowLead)
	}
	return Window{ID: idgen.WithPrefix("win_"), StartsAt: cw.StartsAt, EndsAt: end}, nil
}

// Confirm accepts an order on behalf of the business: a delivery window is
// attached and the client's money is escrowed in one ledger hold covering
// subtotal plus delivery fee.
func (s *Service) Confirm(ctx context.Context, orderID string, actor Actor, cw ConfirmWindow) (*Order, error) {
	return s.transition(ctx, orderID, StatusConfirmed, actor, "", func(ctx context.Context, o *Order) error {
		win, err := resolveWindow(cw, time.Now().UTC())
		if err != nil {
			return err
		}
		if err := s.store.SetWindow(ctx, o.ID, win); err != nil {
			return err
		}
		o.DeliveryWindow = &win

		if _, err := s.ledger.RegisterTransaction(ctx, ledger.RegisterRequest{
			UserID:   o.ClientID,
			Currency: o.Currency,
			Amount:   o.Total,
			Type:     ledger.TypeHold,
			Memo:     fmt.Sprintf("Hold for order %s", o.OrderNumber),
			OrderID:  o.ID,
		}); err != nil {
			return err
		}

		if _, err := s.holds.GetOrCreate(ctx, o.ID, o.Total, o.Currency); err != nil {
			return s.compensateClientHold(ctx, o, err)
		}
		clientPart := o.Total - o.DeliveryFee
		if _, err := s.holds.Update(ctx, o.ID, hold.Patch{
			ClientHoldAmount:   &clientPart,
			DeliveryFeesAmount: &o.DeliveryFee,
		}); err != nil {
			return s.compensateClientHold(ctx, o, err)
		}
		return nil
	})
}

// compensateClientHold releases a just-placed client hold when the hold
// record could not be written.
func (s *Service) compensateClientHold(ctx context.Context, o *Order, cause error) error {
	if _, rerr := s.ledger.RegisterTransaction(ctx, ledger.RegisterRequest{
		UserID:   o.ClientID,
		Currency: o.Currency,
		Amount:   o.Total,
		Type:     ledger.TypeRelease,
		Memo:     fmt.Sprintf("Hold released for order %s", o.OrderNumber),
		OrderID:  o.ID,
	}); rerr != nil {
		logging.L(ctx).Error("CRITICAL: client hold placed but hold record failed and release failed",
			"order_id", o.ID, "cause", cause, "release_error", rerr)
	}
	return cause
}

// StartPreparing marks the business as preparing the order.
func (s *Service) StartPreparing(ctx context.Context, orderID string, actor Actor) (*Order, error) {
	return s.transition(ctx, orderID, StatusPreparing, actor, "", nil)
}

// CompletePreparation marks the order ready for an agent to claim.
func (s *Service) CompletePreparation(ctx context.Context, orderID string, actor Actor) (*Order, error) {
	return s.transition(ctx, orderID, StatusReadyForPickup, actor, "", nil)
}

// Claim assigns the order to the calling agent. Any agent may claim an
// order that is ready for pickup; the claim escrows a share of the order
// subtotal according to the agent's tier. An agent without the funds
// cannot claim.
func (s *Service) Claim(ctx context.Context, orderID string, actor Actor) (*Order, error) {
	return s.transition(ctx, orderID, StatusAssignedToAgent, actor, "claimed by agent", func(ctx context.Context, o *Order) error {
		if o.RequiresVerifiedAgent && actor.Tier != TierVerified && actor.Tier != TierInternal {
			return ErrVerifiedAgentRequired
		}
		pct := s.holdPolicy.HoldPercent(actor.Tier)
		holdAmount := money.Percent(o.Subtotal, pct)

		if holdAmount > 0 {
			if _, err := s.ledger.RegisterTransaction(ctx, ledger.RegisterRequest{
				UserID:   actor.UserID,
				Currency: o.Currency,
				Amount:   holdAmount,
				Type:     ledger.TypeHold,
				Memo:     fmt.Sprintf("Hold for order %s", o.OrderNumber),
				OrderID:  o.ID,
			}); err != nil {
				return err
			}
		}

		if err := s.store.SetAgent(ctx, o.ID, actor.UserID); err != nil {
			if holdAmount > 0 {
				if _, rerr := s.ledger.RegisterTransaction(ctx, ledger.RegisterRequest{
					UserID:   actor.UserID,
					Currency: o.Currency,
					Amount:   holdAmount,
					Type:     ledger.TypeRelease,
					Memo:     fmt.Sprintf("Hold released for order %s", o.OrderNumber),
					OrderID:  o.ID,
				}); rerr != nil {
					logging.L(ctx).Error("CRITICAL: agent hold placed but assignment failed and release failed",
						"order_id", o.ID, "agent_id", actor.UserID, "release_error", rerr)
				}
			}
			return err
		}
		o.AgentID = actor.UserID

		if _, err := s.holds.Update(ctx, o.ID, hold.Patch{AgentHoldAmount: &holdAmount}); err != nil {
			if holdAmount > 0 {
				if _, rerr := s.ledger.RegisterTransaction(ctx, ledger.RegisterRequest{
					UserID:   actor.UserID,
					Currency: o.Currency,
					Amount:   holdAmount,
					Type:     ledger.TypeRelease,
					Memo:     fmt.Sprintf("Hold released for order %s", o.OrderNumber),
					OrderID:  o.ID,
				}); rerr != nil {
					logging.L(ctx).Error("CRITICAL: agent hold placed but hold row update failed and release failed",
						"order_id", o.ID, "agent_id", actor.UserID, "release_error", rerr)
				}
			}
			if serr := s.store.SetAgent(ctx, o.ID, ""); serr != nil {
				logging.L(ctx).Error("agent assignment not rolled back after hold row update failure",
					"order_id", o.ID, "agent_id", actor.UserID, "error", serr)
			}
			return err
		}
		return nil
	})
}

// Drop releases the order back to the pickup pool and returns the agent's
// escrow. Only the assigned agent may drop.
func (s *Service) Drop(ctx context.Context, orderID string, actor Actor) (*Order, error) {
	return s.transition(ctx, orderID, StatusReadyForPickup, actor, "dropped by agent", func(ctx context.Context, o *Order) error {
		h, err := s.holds.GetByOrder(ctx, o.ID)
		if err != nil {
			return err
		}

		if h.AgentHoldAmount > 0 {
			if _, err := s.ledger.RegisterTransaction(ctx, ledger.RegisterRequest{
				UserID:   o.AgentID,
				Currency: o.Currency,
				Amount:   h.AgentHoldAmount,
				Type:     ledger.TypeRelease,
				Memo:     fmt.Sprintf("Hold released for order %s", o.OrderNumber),
				OrderID:  o.ID,
			}); err != nil {
				return err
			}
		}

		if err := s.store.SetAgent(ctx, o.ID, ""); err != nil {
			return err
		}
		o.AgentID = ""

		var zero int64
		if _, err := s.holds.Update(ctx, o.ID, hold.Patch{AgentHoldAmount: &zero}); err != nil {
			logging.L(ctx).Error("agent hold released in ledger but hold row update failed",
				"order_id", o.ID, "error", err)
		}
		return nil
	})
}

// PickUp marks the order as collected from the business.
func (s *Service) PickUp(ctx context.Context, orderID string, actor Actor) (*Order, error) {
	return s.transition(ctx, orderID, StatusPickedUp, actor, "", nil)
}

// StartTransit marks the order as moving.
func (s *Service) StartTransit(ctx context.Context, orderID string, actor Actor) (*Order, error) {
	return s.transition(ctx, orderID, StatusInTransit, actor, "", nil)
}

// OutForDelivery marks the order as on its final leg.
func (s *Service) OutForDelivery(ctx context.Context, orderID string, actor Actor) (*Order, error) {
	return s.transition(ctx, orderID, StatusOutForDelivery, actor, "", nil)
}

// Deliver marks the order as handed to the client.
func (s *Service) Deliver(ctx context.Context, orderID string, actor Actor) (*Order, error) {
	return s.transition(ctx, orderID, StatusDelivered, actor, "", nil)
}

// Complete settles a delivered order: every hold is released, the client
// pays, the business and the agent are credited, and the hold record
// closes. Commission distribution, inventory and receipts are best-effort.
func (s *Service) Complete(ctx context.Context, orderID string, actor Actor) (*Order, error) {
	o, err := s.transition(ctx, orderID, StatusComplete, actor, "", func(ctx context.Context, o *Order) error {
		h, err := s.holds.GetByOrder(ctx, o.ID)
		if err != nil {
			return err
		}

		if o.AgentID != "" && h.AgentHoldAmount > 0 {
			if err := s.release(ctx, o, o.AgentID, h.AgentHoldAmount,
				fmt.Sprintf("Hold released for order %s", o.OrderNumber)); err != nil {
				return err
			}
		}
		if h.ClientHoldAmount > 0 {
			if err := s.release(ctx, o, o.ClientID, h.ClientHoldAmount,
				fmt.Sprintf("Hold released for order %s", o.OrderNumber)); err != nil {
				return err
			}
		}
		if h.DeliveryFeesAmount > 0 {
			if err := s.release(ctx, o, o.ClientID, h.DeliveryFeesAmount,
				fmt.Sprintf("Delivery fee hold released for order %s", o.OrderNumber)); err != nil {
				return err
			}
		}

		// Client pays the full order amount.
		if _, err := s.ledger.RegisterTransaction(ctx, ledger.RegisterRequest{
			UserID:        o.ClientID,
			Currency:      o.Currency,
			Amount:        o.Total,
			Type:          ledger.TypePayment,
			Memo:          fmt.Sprintf("Payment for delivered order %s", o.OrderNumber),
			OrderID:       o.ID,
			RelatedUserID: o.BusinessID,
		}); err != nil {
			return err
		}

		// Payouts to the business and the agent run through the
		// commissions collaborator so deployments can swap the split.
		if s.commissions != nil {
			if err := s.commissions.Distribute(ctx, o); err != nil {
				logging.L(ctx).Error("commission distribution failed", "order_id", o.ID, "error", err)
			}
		}

		if _, err := s.holds.SetStatus(ctx, o.ID, hold.StatusCompleted); err != nil {
			logging.L(ctx).Error("order settled but hold row not marked completed",
				"order_id", o.ID, "error", err)
		}

		if s.inventory != nil {
			if err := s.inventory.Decrement(ctx, o.ID); err != nil {
				logging.L(ctx).Error("inventory decrement failed", "order_id", o.ID, "error", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.recorder != nil {
		s.recorder.OrderCompleted(ctx, o)
	}
	return o, nil
}

// FailDelivery records a delivery failure reported by the assigned agent.
// Money stays escrowed until the failure is resolved by fault type.
func (s *Service) FailDelivery(ctx context.Context, orderID string, actor Actor, reason string) (*Order, error) {
	o, err := s.transition(ctx, orderID, StatusFailed, actor, reason, func(ctx context.Context, o *Order) error {
		if s.failures != nil {
			return s.failures.RecordFailure(ctx, o.ID, o.AgentID, reason)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.recorder != nil {
		s.recorder.OrderFailed(ctx, o, reason)
	}
	return o, nil
}

// Cancel aborts an order. Escrowed money flows back to its owners; a
// client cancelling after the business already confirmed pays the
// per-country cancellation fee out of the released hold. Businesses
// cancel free of charge.
func (s *Service) Cancel(ctx context.Context, orderID string, actor Actor, reason string) (*Order, error) {
	o, err := s.transition(ctx, orderID, StatusCancelled, actor, reason, func(ctx context.Context, o *Order) error {
		h, err := s.holds.GetByOrder(ctx, o.ID)
		if err == hold.ErrNotFound {
			return nil // never confirmed, nothing escrowed
		}
		if err != nil {
			return err
		}
		if h.Status != hold.StatusActive {
			return nil
		}

		if o.AgentID != "" && h.AgentHoldAmount > 0 {
			if err := s.release(ctx, o, o.AgentID, h.AgentHoldAmount,
				fmt.Sprintf("Hold released for order %s", o.OrderNumber)); err != nil {
				return err
			}
		}
		if h.DeliveryFeesAmount > 0 {
			if err := s.release(ctx, o, o.ClientID, h.DeliveryFeesAmount,
				fmt.Sprintf("Delivery fee hold released for order %s", o.OrderNumber)); err != nil {
				return err
			}
		}

		// Clients who cancel after confirmation pay the country's fee.
		// The fee is settled out of the escrowed hold: the client gets
		// back hold minus fee, never the full hold.
		var fee int64
		if actor.Type == ActorClient {
			fee = s.feeConfig.CancellationFee(ctx, o.DeliveryCountry)
			if fee > h.ClientHoldAmount {
				fee = h.ClientHoldAmount
			}
		}
		if fee > 0 {
			if _, err := s.ledger.RegisterTransaction(ctx, ledger.RegisterRequest{
				UserID:   o.ClientID,
				Currency: o.Currency,
				Amount:   fee,
				Type:     ledger.TypeFee,
				Memo:     fmt.Sprintf("Cancellation fee for order %s", o.OrderNumber),
				OrderID:  o.ID,
			}); err != nil {
				return err
			}
		}
		if refund := h.ClientHoldAmount - fee; refund > 0 {
			memo := fmt.Sprintf("Hold released for order %s", o.OrderNumber)
			if fee > 0 {
				memo = fmt.Sprintf("Hold released for order %s (cancellation fee: %d deducted)", o.OrderNumber, fee)
			}
			if err := s.release(ctx, o, o.ClientID, refund, memo); err != nil {
				return err
			}
		}

		if _, err := s.holds.SetStatus(ctx, o.ID, hold.StatusCancelled); err != nil {
			logging.L(ctx).Error("order cancelled but hold row not marked cancelled",
				"order_id", o.ID, "error", err)
		}

		if s.inventory != nil {
			if err := s.inventory.Restore(ctx, o.ID); err != nil {
				logging.L(ctx).Error("inventory restore failed", "order_id", o.ID, "error", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.recorder != nil {
		s.recorder.OrderCancelled(ctx, o, actor)
	}
	return o, nil
}

// Refund returns the client's money. While the escrow hold is still
// active (refund straight from delivered) the holds simply release; once
// the order settled and the client actually paid, a refund transaction
// for the total is registered instead.
func (s *Service) Refund(ctx context.Context, orderID string, actor Actor, reason string) (*Order, error) {
	return s.transition(ctx, orderID, StatusRefunded, actor, reason, func(ctx context.Context, o *Order) error {
		h, err := s.holds.GetByOrder(ctx, o.ID)
		if err != nil && err != hold.ErrNotFound {
			return err
		}

		if err == nil && h.Status == hold.StatusActive {
			if o.AgentID != "" && h.AgentHoldAmount > 0 {
				if err := s.release(ctx, o, o.AgentID, h.AgentHoldAmount,
					fmt.Sprintf("Hold released for order %s", o.OrderNumber)); err != nil {
					return err
				}
			}
			if h.DeliveryFeesAmount > 0 {
				if err := s.release(ctx, o, o.ClientID, h.DeliveryFeesAmount,
					fmt.Sprintf("Delivery fee hold released for order %s", o.OrderNumber)); err != nil {
					return err
				}
			}
			if h.ClientHoldAmount > 0 {
				if err := s.release(ctx, o, o.ClientID, h.ClientHoldAmount,
					fmt.Sprintf("Hold released for order %s", o.OrderNumber)); err != nil {
					return err
				}
			}
			if _, err := s.holds.SetStatus(ctx, o.ID, hold.StatusCompleted); err != nil {
				logging.L(ctx).Error("refund released holds but hold row not marked completed",
					"order_id", o.ID, "error", err)
			}
			return nil
		}

		// Hold already settled: the client paid, give the money back.
		_, err = s.ledger.RegisterTransaction(ctx, ledger.RegisterRequest{
			UserID:        o.ClientID,
			Currency:      o.Currency,
			Amount:        o.Total,
			Type:          ledger.TypeRefund,
			Memo:          fmt.Sprintf("Refund for order %s", o.OrderNumber),
			OrderID:       o.ID,
			RelatedUserID: o.BusinessID,
		})
		return err
	})
}

// release registers a ledger release for one party.
func (s *Service) release(ctx context.Context, o *Order, userID string, amount int64, memo string) error {
	_, err := s.ledger.RegisterTransaction(ctx, ledger.RegisterRequest{
		UserID:   userID,
		Currency: o.Currency,
		Amount:   amount,
		Type:     ledger.TypeRelease,
		Memo:     memo,
		OrderID:  o.ID,
	})
	return err
}

// transition is the shared path for every status change: lock the order,
// authorize, run the financial side effects, CAS the status, append
// history, then notify.
func (s *Service) transition(ctx context.Context, orderID string, to Status, actor Actor, notes string,
	sideEffects func(ctx context.Context, o *Order) error) (*Order, error) {

	ctx, span := traces.StartSpan(ctx, "order.transition",
		traces.OrderID(orderID),
		traces.OrderStatus(string(to)),
	)
	defer span.End()

	lock := s.orderLock(orderID)
	lock.Lock()
	defer lock.Unlock()

	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	from := o.Status

	if err := o.Authorize(to, actor); err != nil {
		return nil, err
	}

	if sideEffects != nil {
		if err := sideEffects(ctx, o); err != nil {
			return nil, err
		}
	}

	updated, err := s.store.UpdateStatus(ctx, orderID, from, to)
	if err != nil {
		// Money may already have moved. The ledger log carries the full
		// trail for manual reconciliation.
		logging.L(ctx).Error("status update failed after side effects",
			"order_id", orderID, "from", from, "to", to, "error", err)
		return nil, err
	}
	updated.AgentID = o.AgentID

	s.appendHistory(ctx, orderID, from, to, actor, notes)
	observeTransition(from, to)

	if s.recorder != nil {
		s.recorder.OrderStatusChanged(ctx, updated, from, actor)
	}

	logging.L(ctx).Info("order status changed",
		"order_id", orderID, "from", from, "to", to,
		"actor_type", actor.Type, "actor_id", actor.UserID)
	return updated, nil
}

// appendHistory writes the audit row; failures are logged, not fatal.
func (s *Service) appendHistory(ctx context.Context, orderID string, from, to Status, actor Actor, notes string) {
	ch := &StatusChange{
		ID:              idgen.WithPrefix("osh_"),
		OrderID:         orderID,
		FromStatus:      from,
		ToStatus:        to,
		ChangedByType:   actor.Type,
		ChangedByUserID: actor.UserID,
		Notes:           notes,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.store.AppendHistory(ctx, ch); err != nil {
		logging.L(ctx).Error("failed to append status history",
			"order_id", orderID, "to", to, "error", err)
	}
}
