// Package reconciliation cross-checks ledger withheld balances against
// active order holds and flags holds whose order has already settled.
package reconciliation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yamb-labs/sokoni/internal/hold"
	"github.com/yamb-labs/sokoni/internal/order"
)

// LedgerSums returns the total withheld balance per currency across all
// ledger accounts.
type LedgerSums interface {
	SumWithheld(ctx context.Context) (map[string]int64, error)
}

// HoldLister returns order holds by status.
type HoldLister interface {
	ListByStatus(ctx context.Context, status hold.Status) ([]*hold.OrderHold, error)
}

// OrderGetter looks up a single order.
type OrderGetter interface {
	Get(ctx context.Context, id string) (*order.Order, error)
}

// Mismatch is a per-currency disagreement between the ledger's withheld
// totals and the sum of active holds.
type Mismatch struct {
	Currency       string `json:"currency"`
	LedgerWithheld int64  `json:"ledgerWithheld"`
	HoldsWithheld  int64  `json:"holdsWithheld"`
	Diff           int64  `json:"diff"`
}

// OrphanedHold is a hold still marked active whose order has already
// reached a settled terminal state. Failed orders are excluded: their
// escrow stays held until the failure is resolved.
type OrphanedHold struct {
	HoldID      string    `json:"holdId"`
	OrderID     string    `json:"orderId"`
	OrderStatus string    `json:"orderStatus"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Report is the outcome of one reconciliation run.
type Report struct {
	RanAt         time.Time      `json:"ranAt"`
	Duration      time.Duration  `json:"-"`
	Mismatches    []Mismatch     `json:"mismatches"`
	OrphanedHolds []OrphanedHold `json:"orphanedHolds"`
	Errors        []string       `json:"errors,omitempty"`
}

// Clean reports whether the run found nothing to flag.
func (r *Report) Clean() bool {
	return len(r.Mismatches) == 0 && len(r.OrphanedHolds) == 0 && len(r.Errors) == 0
}

// Runner executes reconciliation checks.
type Runner struct {
	ledger LedgerSums
	holds  HoldLister
	orders OrderGetter
	logger *slog.Logger
}

// NewRunner creates a reconciliation runner.
func NewRunner(ledger LedgerSums, holds HoldLister, orders OrderGetter, logger *slog.Logger) *Runner {
	return &Runner{ledger: ledger, holds: holds, orders: orders, logger: logger}
}

// settledStatus reports whether an active hold on an order with this
// status means a release was missed. Failed is deliberately absent:
// escrow for failed orders is released only when the failure is resolved.
func settledStatus(s order.Status) bool {
	switch s {
	case order.StatusComplete, order.StatusRefunded, order.StatusCancelled:
		return true
	}
	return false
}

// RunAll executes every check and updates the gauges.
func (r *Runner) RunAll(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{RanAt: start.UTC()}

	active, err := r.holds.ListByStatus(ctx, hold.StatusActive)
	if err != nil {
		reconcileErrors.Inc()
		return nil, fmt.Errorf("list active holds: %w", err)
	}

	r.checkWithheld(ctx, report, active)
	r.checkOrphans(ctx, report, active)

	report.Duration = time.Since(start)
	reconcileDuration.Observe(report.Duration.Seconds())
	reconcileLedgerMismatches.Set(float64(len(report.Mismatches)))
	reconcileOrphanedHolds.Set(float64(len(report.OrphanedHolds)))

	if report.Clean() {
		r.logger.Info("reconciliation clean", "activeHolds", len(active), "duration", report.Duration)
	} else {
		r.logger.Warn("reconciliation found discrepancies",
			"mismatches", len(report.Mismatches),
			"orphanedHolds", len(report.OrphanedHolds),
			"errors", len(report.Errors))
	}
	return report, nil
}

// checkWithheld compares ledger withheld totals per currency against the
// sum of active hold parts.
func (r *Runner) checkWithheld(ctx context.Context, report *Report, active []*hold.OrderHold) {
	ledgerTotals, err := r.ledger.SumWithheld(ctx)
	if err != nil {
		reconcileErrors.Inc()
		report.Errors = append(report.Errors, fmt.Sprintf("sum withheld: %v", err))
		return
	}

	holdTotals := make(map[string]int64)
	for _, h := range active {
		holdTotals[h.Currency] += h.ClientHoldAmount + h.AgentHoldAmount + h.DeliveryFeesAmount
	}

	currencies := make(map[string]struct{})
	for c := range ledgerTotals {
		currencies[c] = struct{}{}
	}
	for c := range holdTotals {
		currencies[c] = struct{}{}
	}

	for c := range currencies {
		lw, hw := ledgerTotals[c], holdTotals[c]
		if lw != hw {
			report.Mismatches = append(report.Mismatches, Mismatch{
				Currency:       c,
				LedgerWithheld: lw,
				HoldsWithheld:  hw,
				Diff:           lw - hw,
			})
		}
	}
}

// checkOrphans flags active holds whose order has already settled.
func (r *Runner) checkOrphans(ctx context.Context, report *Report, active []*hold.OrderHold) {
	for _, h := range active {
		o, err := r.orders.Get(ctx, h.OrderID)
		if err != nil {
			reconcileErrors.Inc()
			report.Errors = append(report.Errors, fmt.Sprintf("get order %s: %v", h.OrderID, err))
			continue
		}
		if !settledStatus(o.Status) {
			continue
		}
		report.OrphanedHolds = append(report.OrphanedHolds, OrphanedHold{
			HoldID:      h.ID,
			OrderID:     h.OrderID,
			OrderStatus: string(o.Status),
			Amount:      h.ClientHoldAmount + h.AgentHoldAmount + h.DeliveryFeesAmount,
			Currency:    h.Currency,
			CreatedAt:   h.CreatedAt,
		})
	}
}
