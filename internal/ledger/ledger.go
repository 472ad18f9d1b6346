// Package ledger tracks user account balances on the marketplace.
//
// Every balance movement goes through RegisterTransaction, which appends
// an immutable transaction row and adjusts one (user, currency) account.
// The transaction log is the source of truth; balances are derived state
// that must always satisfy total = available + withheld.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yamb-labs/sokoni/internal/idgen"
	"github.com/yamb-labs/sokoni/internal/money"
)

var (
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrAccountNotFound     = errors.New("ledger: account not found")
	ErrInvalidAmount       = errors.New("ledger: amount must be positive")
	ErrUnknownType         = errors.New("ledger: unknown transaction type")
	ErrCurrencyRequired    = errors.New("ledger: currency is required")
)

// InsufficientFundsError reports a failed sufficiency check with the
// amounts involved, so callers can surface them to the user.
type InsufficientFundsError struct {
	Required  int64
	Available int64
	Currency  string
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("Insufficient balance. Required: %s %s, Available: %s %s",
		money.Format(e.Required), e.Currency, money.Format(e.Available), e.Currency)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientBalance }

// TransactionType classifies a balance movement.
type TransactionType string

const (
	TypeDeposit    TransactionType = "deposit"
	TypeWithdrawal TransactionType = "withdrawal"
	TypePayment    TransactionType = "payment"
	TypeFee        TransactionType = "fee"
	TypeHold       TransactionType = "hold"
	TypeRelease    TransactionType = "release"
	TypeTransfer   TransactionType = "transfer"
	TypeRefund     TransactionType = "refund"
	TypeExchange   TransactionType = "exchange"
	TypeAdjustment TransactionType = "adjustment"
)

// Account is the derived balance state for one (user, currency) pair.
// Accounts are created lazily on first use.
type Account struct {
	UserID    string    `json:"userId"`
	Currency  string    `json:"currency"`
	Available int64     `json:"available"` // minor units, spendable
	Withheld  int64     `json:"withheld"`  // minor units, locked by holds
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Total returns the full balance. Invariant: Total = Available + Withheld.
func (a *Account) Total() int64 { return a.Available + a.Withheld }

// Transaction is an immutable ledger row.
type Transaction struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	Currency      string          `json:"currency"`
	Amount        int64           `json:"amount"` // minor units, always positive
	Type          TransactionType `json:"type"`
	Memo          string          `json:"memo,omitempty"`
	OrderID       string          `json:"orderId,omitempty"`
	RelatedUserID string          `json:"relatedUserId,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// delta describes how a transaction type moves an account's balances.
type delta struct {
	available     int64
	withheld      int64
	checkAvail    bool // reject when available < amount
	checkWithheld bool // reject when withheld < amount
}

// Deltas returns the balance movement for a transaction type.
func Deltas(t TransactionType, amount int64) (delta, error) {
	switch t {
	case TypeDeposit, TypeRefund, TypeExchange:
		return delta{available: amount}, nil
	case TypeWithdrawal, TypePayment, TypeFee:
		return delta{available: -amount, checkAvail: true}, nil
	case TypeHold:
		return delta{available: -amount, withheld: amount, checkAvail: true}, nil
	case TypeRelease:
		return delta{available: amount, withheld: -amount, checkWithheld: true}, nil
	case TypeTransfer:
		return delta{available: -amount, checkAvail: true}, nil
	case TypeAdjustment:
		// Manual corrections bypass sufficiency checks.
		return delta{available: amount}, nil
	default:
		return delta{}, ErrUnknownType
	}
}

// RegisterRequest is the input for recording a transaction.
type RegisterRequest struct {
	UserID        string          `json:"userId" binding:"required"`
	Currency      string          `json:"currency" binding:"required"`
	Amount        int64           `json:"amount" binding:"required"`
	Type          TransactionType `json:"type" binding:"required"`
	Memo          string          `json:"memo,omitempty"`
	OrderID       string          `json:"orderId,omitempty"`
	RelatedUserID string          `json:"relatedUserId,omitempty"`
}

// TransactionFilter narrows ListTransactions results.
type TransactionFilter struct {
	Currency string
	OrderID  string
	Type     TransactionType
	Limit    int
}

// Store persists accounts and transactions.
type Store interface {
	// Register atomically inserts the transaction and applies d to the
	// user's account, creating the account if needed. Returns
	// ErrInsufficientBalance when a sufficiency check fails.
	Register(ctx context.Context, txn *Transaction, d delta) error
	GetAccount(ctx context.Context, userID, currency string) (*Account, error)
	ListAccounts(ctx context.Context, userID string) ([]*Account, error)
	ListTransactions(ctx context.Context, userID string, f TransactionFilter) ([]*Transaction, error)
	// SumWithheld returns the total withheld balance per currency across
	// all accounts. Used by reconciliation.
	SumWithheld(ctx context.Context) (map[string]int64, error)
}

// Service validates and records balance movements.
type Service struct {
	store Store
}

// NewService creates a new ledger service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// RegisterTransaction validates the request, appends the transaction and
// applies its balance movement atomically.
func (s *Service) RegisterTransaction(ctx context.Context, req RegisterRequest) (*Transaction, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.Currency == "" {
		return nil, ErrCurrencyRequired
	}

	d, err := Deltas(req.Type, req.Amount)
	if err != nil {
		return nil, err
	}

	done := observeOp(string(req.Type))
	defer done()

	txn := &Transaction{
		ID:            idgen.WithPrefix("txn_"),
		UserID:        req.UserID,
		Currency:      req.Currency,
		Amount:        req.Amount,
		Type:          req.Type,
		Memo:          req.Memo,
		OrderID:       req.OrderID,
		RelatedUserID: req.RelatedUserID,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.store.Register(ctx, txn, d); err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			return nil, s.insufficientFunds(ctx, req, d)
		}
		return nil, err
	}
	return txn, nil
}

// insufficientFunds builds the typed error with current balances.
func (s *Service) insufficientFunds(ctx context.Context, req RegisterRequest, d delta) error {
	acct, err := s.store.GetAccount(ctx, req.UserID, req.Currency)
	if err != nil {
		acct = &Account{Currency: req.Currency}
	}
	available := acct.Available
	if d.checkWithheld {
		available = acct.Withheld
	}
	return &InsufficientFundsError{
		Required:  req.Amount,
		Available: available,
		Currency:  req.Currency,
	}
}

// GetAccount returns the account for a (user, currency) pair. A user who
// has never transacted gets a zero-balance account.
func (s *Service) GetAccount(ctx context.Context, userID, currency string) (*Account, error) {
	if currency == "" {
		return nil, ErrCurrencyRequired
	}
	return s.store.GetAccount(ctx, userID, currency)
}

// ListAccounts returns all currency accounts for a user.
func (s *Service) ListAccounts(ctx context.Context, userID string) ([]*Account, error) {
	return s.store.ListAccounts(ctx, userID)
}

// SumWithheld reports total withheld funds per currency across all accounts.
func (s *Service) SumWithheld(ctx context.Context) (map[string]int64, error) {
	return s.store.SumWithheld(ctx)
}

// ListTransactions returns a user's transactions, newest first.
func (s *Service) ListTransactions(ctx context.Context, userID string, f TransactionFilter) ([]*Transaction, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	return s.store.ListTransactions(ctx, userID, f)
}
