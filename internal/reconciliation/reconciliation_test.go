package reconciliation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yamb-labs/sokoni/internal/hold"
	"github.com/yamb-labs/sokoni/internal/logging"
	"github.com/yamb-labs/sokoni/internal/order"
)

type mockLedger struct {
	withheld map[string]int64
	err      error
}

func (m *mockLedger) SumWithheld(_ context.Context) (map[string]int64, error) {
	return m.withheld, m.err
}

type mockHolds struct {
	holds []*hold.OrderHold
	err   error
}

func (m *mockHolds) ListByStatus(_ context.Context, status hold.Status) ([]*hold.OrderHold, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*hold.OrderHold
	for _, h := range m.holds {
		if h.Status == status {
			out = append(out, h)
		}
	}
	return out, nil
}

type mockOrders struct {
	orders map[string]*order.Order
}

func (m *mockOrders) Get(_ context.Context, id string) (*order.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func activeHold(orderID string, client, agent, fees int64) *hold.OrderHold {
	return &hold.OrderHold{
		ID:                 "hold_" + orderID,
		OrderID:            orderID,
		ClientHoldAmount:   client,
		AgentHoldAmount:    agent,
		DeliveryFeesAmount: fees,
		Currency:           "XAF",
		Status:             hold.StatusActive,
		CreatedAt:          time.Now().UTC(),
	}
}

func orderWithStatus(id string, status order.Status) *order.Order {
	return &order.Order{ID: id, Status: status, Currency: "XAF"}
}

func newTestRunner(l *mockLedger, h *mockHolds, o *mockOrders) *Runner {
	return NewRunner(l, h, o, logging.New("error", "text"))
}

func TestRunAll_Clean(t *testing.T) {
	ledger := &mockLedger{withheld: map[string]int64{"XAF": 15500}}
	holds := &mockHolds{holds: []*hold.OrderHold{
		activeHold("ord_1", 10000, 2000, 1500),
		activeHold("ord_2", 2000, 0, 0),
	}}
	orders := &mockOrders{orders: map[string]*order.Order{
		"ord_1": orderWithStatus("ord_1", order.StatusInTransit),
		"ord_2": orderWithStatus("ord_2", order.StatusConfirmed),
	}}

	report, err := newTestRunner(ledger, holds, orders).RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}
	if !report.Clean() {
		t.Errorf("expected clean report, got mismatches=%v orphans=%v errors=%v",
			report.Mismatches, report.OrphanedHolds, report.Errors)
	}
}

func TestRunAll_WithheldMismatch(t *testing.T) {
	// Ledger says 20000 withheld but holds only account for 13500.
	ledger := &mockLedger{withheld: map[string]int64{"XAF": 20000}}
	holds := &mockHolds{holds: []*hold.OrderHold{
		activeHold("ord_1", 10000, 2000, 1500),
	}}
	orders := &mockOrders{orders: map[string]*order.Order{
		"ord_1": orderWithStatus("ord_1", order.StatusInTransit),
	}}

	report, err := newTestRunner(ledger, holds, orders).RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}
	if len(report.Mismatches) != 1 {
		t.Fatalf("expected 1 mismatch, got %d", len(report.Mismatches))
	}
	m := report.Mismatches[0]
	if m.Currency != "XAF" || m.LedgerWithheld != 20000 || m.HoldsWithheld != 13500 || m.Diff != 6500 {
		t.Errorf("unexpected mismatch: %+v", m)
	}
}

func TestRunAll_CurrencyOnlyInHolds(t *testing.T) {
	// A currency with active holds but nothing withheld in the ledger
	// must still be flagged.
	ledger := &mockLedger{withheld: map[string]int64{}}
	holds := &mockHolds{holds: []*hold.OrderHold{
		activeHold("ord_1", 5000, 0, 0),
	}}
	orders := &mockOrders{orders: map[string]*order.Order{
		"ord_1": orderWithStatus("ord_1", order.StatusPending),
	}}

	report, err := newTestRunner(ledger, holds, orders).RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}
	if len(report.Mismatches) != 1 {
		t.Fatalf("expected 1 mismatch, got %d", len(report.Mismatches))
	}
	if report.Mismatches[0].Diff != -5000 {
		t.Errorf("expected diff -5000, got %d", report.Mismatches[0].Diff)
	}
}

func TestRunAll_OrphanedHold(t *testing.T) {
	ledger := &mockLedger{withheld: map[string]int64{"XAF": 13500}}
	holds := &mockHolds{holds: []*hold.OrderHold{
		activeHold("ord_done", 10000, 2000, 1500),
	}}
	orders := &mockOrders{orders: map[string]*order.Order{
		"ord_done": orderWithStatus("ord_done", order.StatusComplete),
	}}

	report, err := newTestRunner(ledger, holds, orders).RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}
	if len(report.OrphanedHolds) != 1 {
		t.Fatalf("expected 1 orphaned hold, got %d", len(report.OrphanedHolds))
	}
	orphan := report.OrphanedHolds[0]
	if orphan.OrderID != "ord_done" || orphan.OrderStatus != "complete" || orphan.Amount != 13500 {
		t.Errorf("unexpected orphan: %+v", orphan)
	}
}

func TestRunAll_FailedOrderNotOrphaned(t *testing.T) {
	// Failed orders keep their escrow until resolution; an active hold
	// on a failed order is expected, not a discrepancy.
	ledger := &mockLedger{withheld: map[string]int64{"XAF": 13500}}
	holds := &mockHolds{holds: []*hold.OrderHold{
		activeHold("ord_failed", 10000, 2000, 1500),
	}}
	orders := &mockOrders{orders: map[string]*order.Order{
		"ord_failed": orderWithStatus("ord_failed", order.StatusFailed),
	}}

	report, err := newTestRunner(ledger, holds, orders).RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}
	if len(report.OrphanedHolds) != 0 {
		t.Errorf("failed order should not be orphaned: %+v", report.OrphanedHolds)
	}
}

func TestRunAll_MissingOrderRecordedAsError(t *testing.T) {
	ledger := &mockLedger{withheld: map[string]int64{"XAF": 5000}}
	holds := &mockHolds{holds: []*hold.OrderHold{
		activeHold("ord_ghost", 5000, 0, 0),
	}}
	orders := &mockOrders{orders: map[string]*order.Order{}}

	report, err := newTestRunner(ledger, holds, orders).RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}
	if len(report.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(report.Errors))
	}
	if report.Clean() {
		t.Error("report with errors should not be clean")
	}
}

func TestRunAll_HoldListFailure(t *testing.T) {
	ledger := &mockLedger{withheld: map[string]int64{}}
	holds := &mockHolds{err: errors.New("db down")}
	orders := &mockOrders{}

	if _, err := newTestRunner(ledger, holds, orders).RunAll(context.Background()); err == nil {
		t.Fatal("expected error when hold listing fails")
	}
}

func TestRunAll_LedgerFailureIsPartial(t *testing.T) {
	// A ledger failure should not abort the orphan check.
	ledger := &mockLedger{err: errors.New("db down")}
	holds := &mockHolds{holds: []*hold.OrderHold{
		activeHold("ord_done", 1000, 0, 0),
	}}
	orders := &mockOrders{orders: map[string]*order.Order{
		"ord_done": orderWithStatus("ord_done", order.StatusRefunded),
	}}

	report, err := newTestRunner(ledger, holds, orders).RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}
	if len(report.Errors) != 1 {
		t.Errorf("expected 1 error from ledger failure, got %d", len(report.Errors))
	}
	if len(report.OrphanedHolds) != 1 {
		t.Errorf("orphan check should still run, got %d orphans", len(report.OrphanedHolds))
	}
}

func TestTimer_StartStop(t *testing.T) {
	runner := newTestRunner(
		&mockLedger{withheld: map[string]int64{}},
		&mockHolds{},
		&mockOrders{},
	)
	timer := NewTimer(runner, logging.New("error", "text"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		timer.Start(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for !timer.Running() {
		select {
		case <-deadline:
			t.Fatal("timer never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not stop on context cancellation")
	}
}
