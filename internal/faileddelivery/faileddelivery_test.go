package faileddelivery

import (
	"context"
	"testing"

	"github.com/yamb-labs/sokoni/internal/hold"
	"github.com/yamb-labs/sokoni/internal/ledger"
	"github.com/yamb-labs/sokoni/internal/order"
)

type mockOrders struct {
	order *order.Order
}

func (m *mockOrders) Get(ctx context.Context, id string) (*order.Order, error) {
	if m.order == nil || m.order.ID != id {
		return nil, order.ErrNotFound
	}
	cp := *m.order
	return &cp, nil
}

type mockLedger struct {
	txns []ledger.RegisterRequest
}

func (m *mockLedger) RegisterTransaction(ctx context.Context, req ledger.RegisterRequest) (*ledger.Transaction, error) {
	m.txns = append(m.txns, req)
	return &ledger.Transaction{ID: "txn_test", Type: req.Type, Amount: req.Amount}, nil
}

func (m *mockLedger) byType(t ledger.TransactionType) []ledger.RegisterRequest {
	var out []ledger.RegisterRequest
	for _, txn := range m.txns {
		if txn.Type == t {
			out = append(out, txn)
		}
	}
	return out
}

type mockFeeConfig struct {
	fee        int64
	configured bool
}

func (m *mockFeeConfig) FailedDeliveryFee(ctx context.Context, country string) (int64, bool) {
	return m.fee, m.configured
}

type mockInventory struct {
	restored []string
}

func (m *mockInventory) Restore(ctx context.Context, orderID string) error {
	m.restored = append(m.restored, orderID)
	return nil
}

type testEnv struct {
	svc       *Service
	orders    *mockOrders
	ledger    *mockLedger
	holds     *hold.Manager
	inventory *mockInventory
}

func newTestEnv(t *testing.T, feeConfig FeeConfig) *testEnv {
	t.Helper()
	orders := &mockOrders{order: &order.Order{
		ID:              "ord_1",
		OrderNumber:     "SKN-TEST0001",
		ClientID:        "client-1",
		BusinessID:      "biz-1",
		AgentID:         "agent-1",
		Subtotal:        10000,
		DeliveryFee:     2000,
		Total:           12000,
		Currency:        "XAF",
		Status:          order.StatusFailed,
		DeliveryCountry: "GA",
	}}
	led := &mockLedger{}
	holds := hold.NewManager(hold.NewMemoryStore())
	inv := &mockInventory{}
	svc := NewService(NewMemoryStore(), orders, holds, led, feeConfig).WithInventory(inv)
	return &testEnv{svc: svc, orders: orders, ledger: led, holds: holds, inventory: inv}
}

// seedFailure opens a failure record with the full escrow in place:
// client 10000, delivery fee 2000, agent 8000.
func (e *testEnv) seedFailure(t *testing.T) *FailedDelivery {
	t.Helper()
	ctx := context.Background()
	if _, err := e.holds.GetOrCreate(ctx, "ord_1", 12000, "XAF"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	client, agent, fees := int64(10000), int64(8000), int64(2000)
	if _, err := e.holds.Update(ctx, "ord_1", hold.Patch{
		ClientHoldAmount:   &client,
		AgentHoldAmount:    &agent,
		DeliveryFeesAmount: &fees,
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if err := e.svc.RecordFailure(ctx, "ord_1", "agent-1", "client unreachable"); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	fd, err := e.svc.GetByOrder(ctx, "ord_1")
	if err != nil {
		t.Fatalf("GetByOrder: %v", err)
	}
	return fd
}

func TestRecordFailure_Idempotent(t *testing.T) {
	e := newTestEnv(t, &mockFeeConfig{})
	ctx := context.Background()

	if err := e.svc.RecordFailure(ctx, "ord_1", "agent-1", "first"); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if err := e.svc.RecordFailure(ctx, "ord_1", "agent-1", "second"); err != nil {
		t.Fatalf("RecordFailure again: %v", err)
	}

	records, _ := e.svc.List(ctx, ListFilter{OrderID: "ord_1"})
	if len(records) != 1 {
		t.Errorf("records = %d, want 1 open record per order", len(records))
	}
	if records[0].Reason != "first" {
		t.Errorf("reason = %q, want original kept", records[0].Reason)
	}
}

func TestResolve_AgentFault(t *testing.T) {
	e := newTestEnv(t, &mockFeeConfig{})
	fd := e.seedFailure(t)

	resolved, err := e.svc.Resolve(context.Background(), fd.ID, ResolveRequest{
		FaultType:  FaultAgent,
		ResolvedBy: "ops-1",
		Notes:      "agent abandoned the route",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Status != StatusResolved || resolved.FaultType != FaultAgent {
		t.Errorf("record = %s/%s, want resolved/agent_fault", resolved.Status, resolved.FaultType)
	}
	if resolved.ResolvedBy != "ops-1" || resolved.ResolvedAt == nil {
		t.Errorf("resolver metadata missing: %+v", resolved)
	}

	// All three parts release to their owners.
	releases := e.ledger.byType(ledger.TypeRelease)
	totals := map[string]int64{}
	for _, r := range releases {
		totals[r.UserID] += r.Amount
	}
	if totals["agent-1"] != 8000 {
		t.Errorf("agent released %d, want 8000", totals["agent-1"])
	}
	if totals["client-1"] != 12000 {
		t.Errorf("client released %d, want 12000", totals["client-1"])
	}

	// The business keeps what the agent forfeits.
	deposits := e.ledger.byType(ledger.TypeDeposit)
	if len(deposits) != 1 || deposits[0].UserID != "biz-1" || deposits[0].Amount != 8000 {
		t.Fatalf("deposits = %+v, want biz-1 credited 8000", deposits)
	}

	h, _ := e.holds.GetByOrder(context.Background(), "ord_1")
	if h.Status != hold.StatusCancelled {
		t.Errorf("hold status = %s, want cancelled", h.Status)
	}
	// The order itself stays failed; resolution never rewrites its status.
	got, _ := e.orders.Get(context.Background(), "ord_1")
	if got.Status != order.StatusFailed {
		t.Errorf("order status = %s, want failed after resolution", got.Status)
	}
}

func TestResolve_ItemFault(t *testing.T) {
	e := newTestEnv(t, &mockFeeConfig{})
	fd := e.seedFailure(t)

	if _, err := e.svc.Resolve(context.Background(), fd.ID, ResolveRequest{
		FaultType:  FaultItem,
		ResolvedBy: "ops-1",
	}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	// No forfeit, no fee: releases only.
	if deposits := e.ledger.byType(ledger.TypeDeposit); len(deposits) != 0 {
		t.Errorf("item fault produced deposits: %+v", deposits)
	}
	if withdrawals := e.ledger.byType(ledger.TypeWithdrawal); len(withdrawals) != 0 {
		t.Errorf("item fault produced withdrawals: %+v", withdrawals)
	}

	// Reserved stock goes back by default.
	if len(e.inventory.restored) != 1 || e.inventory.restored[0] != "ord_1" {
		t.Errorf("inventory restored = %v, want [ord_1]", e.inventory.restored)
	}
}

func TestResolve_ItemFault_SkipRestore(t *testing.T) {
	e := newTestEnv(t, &mockFeeConfig{})
	fd := e.seedFailure(t)

	skip := false
	if _, err := e.svc.Resolve(context.Background(), fd.ID, ResolveRequest{
		FaultType:        FaultItem,
		ResolvedBy:       "ops-1",
		RestoreInventory: &skip,
	}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(e.inventory.restored) != 0 {
		t.Errorf("inventory restored despite opt-out: %v", e.inventory.restored)
	}
}

func TestResolve_ClientFault(t *testing.T) {
	e := newTestEnv(t, &mockFeeConfig{fee: 4000, configured: true})
	fd := e.seedFailure(t)

	if _, err := e.svc.Resolve(context.Background(), fd.ID, ResolveRequest{
		FaultType:  FaultClient,
		ResolvedBy: "ops-1",
	}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	// Client pays the configured fee after the releases.
	withdrawals := e.ledger.byType(ledger.TypeWithdrawal)
	if len(withdrawals) != 1 || withdrawals[0].UserID != "client-1" || withdrawals[0].Amount != 4000 {
		t.Fatalf("withdrawals = %+v, want client-1 charged 4000", withdrawals)
	}

	// The fee splits evenly between agent and business.
	deposits := e.ledger.byType(ledger.TypeDeposit)
	if len(deposits) != 2 {
		t.Fatalf("deposits = %d, want 2", len(deposits))
	}
	byUser := map[string]int64{}
	for _, d := range deposits {
		byUser[d.UserID] = d.Amount
	}
	if byUser["agent-1"] != 2000 || byUser["biz-1"] != 2000 {
		t.Errorf("fee split = %v, want 2000 each", byUser)
	}
}

func TestResolve_ClientFault_FeeNotConfigured(t *testing.T) {
	e := newTestEnv(t, &mockFeeConfig{configured: false})
	fd := e.seedFailure(t)

	if _, err := e.svc.Resolve(context.Background(), fd.ID, ResolveRequest{
		FaultType:  FaultClient,
		ResolvedBy: "ops-1",
	}); err != ErrFeeNotConfigured {
		t.Fatalf("got %v, want ErrFeeNotConfigured", err)
	}

	// Nothing moved, record still pending.
	if len(e.ledger.txns) != 0 {
		t.Errorf("money moved without configured fee: %v", e.ledger.txns)
	}
	got, _ := e.svc.Get(context.Background(), fd.ID)
	if got.Status != StatusPending {
		t.Errorf("record status = %s, want still pending", got.Status)
	}
}

func TestResolve_AlreadyResolved(t *testing.T) {
	e := newTestEnv(t, &mockFeeConfig{})
	fd := e.seedFailure(t)

	if _, err := e.svc.Resolve(context.Background(), fd.ID, ResolveRequest{FaultType: FaultItem, ResolvedBy: "ops-1"}); err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	before := len(e.ledger.txns)

	if _, err := e.svc.Resolve(context.Background(), fd.ID, ResolveRequest{FaultType: FaultAgent, ResolvedBy: "ops-2"}); err != ErrAlreadyResolved {
		t.Fatalf("got %v, want ErrAlreadyResolved", err)
	}
	if len(e.ledger.txns) != before {
		t.Error("second resolution moved money")
	}
}

func TestResolve_UnknownFault(t *testing.T) {
	e := newTestEnv(t, &mockFeeConfig{})
	fd := e.seedFailure(t)

	if _, err := e.svc.Resolve(context.Background(), fd.ID, ResolveRequest{FaultType: "gremlins", ResolvedBy: "ops-1"}); err != ErrUnknownFault {
		t.Errorf("got %v, want ErrUnknownFault", err)
	}
}

func TestResolve_NotFound(t *testing.T) {
	e := newTestEnv(t, &mockFeeConfig{})

	if _, err := e.svc.Resolve(context.Background(), "fd_missing", ResolveRequest{FaultType: FaultItem, ResolvedBy: "ops-1"}); err != ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}
