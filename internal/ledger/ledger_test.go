package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/yamb-labs/sokoni/internal/money"
)

func newTestService() *Service {
	return NewService(NewMemoryStore())
}

func register(t *testing.T, s *Service, userID string, amount int64, typ TransactionType) *Transaction {
	t.Helper()
	txn, err := s.RegisterTransaction(context.Background(), RegisterRequest{
		UserID:   userID,
		Currency: "USD",
		Amount:   amount,
		Type:     typ,
	})
	if err != nil {
		t.Fatalf("RegisterTransaction(%s, %d): %v", typ, amount, err)
	}
	return txn
}

func balances(t *testing.T, s *Service, userID string) (available, withheld int64) {
	t.Helper()
	acct, err := s.GetAccount(context.Background(), userID, "USD")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if acct.Total() != acct.Available+acct.Withheld {
		t.Fatalf("invariant broken: total %d != available %d + withheld %d",
			acct.Total(), acct.Available, acct.Withheld)
	}
	return acct.Available, acct.Withheld
}

func TestRegisterTransaction_Deposit(t *testing.T) {
	s := newTestService()
	register(t, s, "client_1", money.FromMajor(100), TypeDeposit)

	avail, withheld := balances(t, s, "client_1")
	if avail != money.FromMajor(100) || withheld != 0 {
		t.Errorf("balances = (%d, %d), want (10000, 0)", avail, withheld)
	}
}

func TestRegisterTransaction_HoldAndRelease(t *testing.T) {
	s := newTestService()
	register(t, s, "client_1", money.FromMajor(100), TypeDeposit)
	register(t, s, "client_1", money.FromMajor(60), TypeHold)

	avail, withheld := balances(t, s, "client_1")
	if avail != money.FromMajor(40) || withheld != money.FromMajor(60) {
		t.Errorf("after hold: (%d, %d), want (4000, 6000)", avail, withheld)
	}

	register(t, s, "client_1", money.FromMajor(60), TypeRelease)
	avail, withheld = balances(t, s, "client_1")
	if avail != money.FromMajor(100) || withheld != 0 {
		t.Errorf("after release: (%d, %d), want (10000, 0)", avail, withheld)
	}
}

func TestRegisterTransaction_DebitTypes(t *testing.T) {
	for _, typ := range []TransactionType{TypeWithdrawal, TypePayment, TypeFee, TypeTransfer} {
		s := newTestService()
		register(t, s, "u", money.FromMajor(100), TypeDeposit)
		register(t, s, "u", money.FromMajor(30), typ)

		avail, _ := balances(t, s, "u")
		if avail != money.FromMajor(70) {
			t.Errorf("%s: available = %d, want 7000", typ, avail)
		}
	}
}

func TestRegisterTransaction_CreditTypes(t *testing.T) {
	for _, typ := range []TransactionType{TypeDeposit, TypeRefund, TypeExchange, TypeAdjustment} {
		s := newTestService()
		register(t, s, "u", money.FromMajor(25), typ)

		avail, _ := balances(t, s, "u")
		if avail != money.FromMajor(25) {
			t.Errorf("%s: available = %d, want 2500", typ, avail)
		}
	}
}

func TestRegisterTransaction_InsufficientFunds(t *testing.T) {
	s := newTestService()
	register(t, s, "agent_1", money.FromMajor(50), TypeDeposit)

	_, err := s.RegisterTransaction(context.Background(), RegisterRequest{
		UserID:   "agent_1",
		Currency: "USD",
		Amount:   money.FromMajor(80),
		Type:     TypeHold,
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}

	var insufficient *InsufficientFundsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("err = %T, want *InsufficientFundsError", err)
	}
	want := "Insufficient balance. Required: 80 USD, Available: 50 USD"
	if insufficient.Error() != want {
		t.Errorf("message = %q, want %q", insufficient.Error(), want)
	}

	// Failed attempt must leave balances untouched
	avail, withheld := balances(t, s, "agent_1")
	if avail != money.FromMajor(50) || withheld != 0 {
		t.Errorf("balances after failed hold = (%d, %d), want (5000, 0)", avail, withheld)
	}
}

func TestRegisterTransaction_ReleaseWithoutHold(t *testing.T) {
	s := newTestService()
	register(t, s, "u", money.FromMajor(100), TypeDeposit)

	_, err := s.RegisterTransaction(context.Background(), RegisterRequest{
		UserID:   "u",
		Currency: "USD",
		Amount:   money.FromMajor(10),
		Type:     TypeRelease,
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("release without hold: err = %v, want ErrInsufficientBalance", err)
	}
}

func TestRegisterTransaction_AdjustmentSkipsChecks(t *testing.T) {
	s := newTestService()

	// No prior balance, still accepted
	register(t, s, "u", money.FromMajor(15), TypeAdjustment)
	avail, _ := balances(t, s, "u")
	if avail != money.FromMajor(15) {
		t.Errorf("available = %d, want 1500", avail)
	}
}

func TestRegisterTransaction_Validation(t *testing.T) {
	s := newTestService()

	_, err := s.RegisterTransaction(context.Background(), RegisterRequest{
		UserID: "u", Currency: "USD", Amount: 0, Type: TypeDeposit,
	})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero amount: err = %v, want ErrInvalidAmount", err)
	}

	_, err = s.RegisterTransaction(context.Background(), RegisterRequest{
		UserID: "u", Currency: "USD", Amount: -5, Type: TypeDeposit,
	})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("negative amount: err = %v, want ErrInvalidAmount", err)
	}

	_, err = s.RegisterTransaction(context.Background(), RegisterRequest{
		UserID: "u", Currency: "USD", Amount: 100, Type: "bogus",
	})
	if !errors.Is(err, ErrUnknownType) {
		t.Errorf("unknown type: err = %v, want ErrUnknownType", err)
	}

	_, err = s.RegisterTransaction(context.Background(), RegisterRequest{
		UserID: "u", Amount: 100, Type: TypeDeposit,
	})
	if !errors.Is(err, ErrCurrencyRequired) {
		t.Errorf("missing currency: err = %v, want ErrCurrencyRequired", err)
	}
}

func TestRegisterTransaction_CurrenciesIsolated(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	if _, err := s.RegisterTransaction(ctx, RegisterRequest{
		UserID: "u", Currency: "USD", Amount: money.FromMajor(100), Type: TypeDeposit,
	}); err != nil {
		t.Fatal(err)
	}

	// XAF account is still empty
	_, err := s.RegisterTransaction(ctx, RegisterRequest{
		UserID: "u", Currency: "XAF", Amount: money.FromMajor(10), Type: TypePayment,
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("cross-currency spend: err = %v, want ErrInsufficientBalance", err)
	}

	accts, err := s.ListAccounts(ctx, "u")
	if err != nil {
		t.Fatal(err)
	}
	if len(accts) != 2 {
		t.Errorf("ListAccounts = %d accounts, want 2", len(accts))
	}
}

func TestListTransactions_Filters(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	register(t, s, "u", money.FromMajor(100), TypeDeposit)
	if _, err := s.RegisterTransaction(ctx, RegisterRequest{
		UserID: "u", Currency: "USD", Amount: money.FromMajor(60),
		Type: TypeHold, OrderID: "ord_1",
	}); err != nil {
		t.Fatal(err)
	}

	txns, err := s.ListTransactions(ctx, "u", TransactionFilter{OrderID: "ord_1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(txns) != 1 || txns[0].Type != TypeHold {
		t.Errorf("filter by order: got %d txns, want 1 hold", len(txns))
	}

	txns, err = s.ListTransactions(ctx, "u", TransactionFilter{Type: TypeDeposit})
	if err != nil {
		t.Fatal(err)
	}
	if len(txns) != 1 || txns[0].Type != TypeDeposit {
		t.Errorf("filter by type: got %d txns, want 1 deposit", len(txns))
	}
}
