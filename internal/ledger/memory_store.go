package ledger

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory ledger store for demo/development mode.
type MemoryStore struct {
	accounts map[string]*Account // "userID:currency"
	txns     []*Transaction
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*Account),
		txns:     make([]*Transaction, 0),
	}
}

func accountKey(userID, currency string) string {
	return userID + ":" + currency
}

func (m *MemoryStore) Register(ctx context.Context, txn *Transaction, d delta) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := accountKey(txn.UserID, txn.Currency)
	acct, ok := m.accounts[key]
	if !ok {
		acct = &Account{
			UserID:    txn.UserID,
			Currency:  txn.Currency,
			CreatedAt: time.Now(),
		}
		m.accounts[key] = acct
	}

	if d.checkAvail && acct.Available < txn.Amount {
		return ErrInsufficientBalance
	}
	if d.checkWithheld && acct.Withheld < txn.Amount {
		return ErrInsufficientBalance
	}

	acct.Available += d.available
	acct.Withheld += d.withheld
	acct.UpdatedAt = time.Now()

	cp := *txn
	m.txns = append(m.txns, &cp)

	return nil
}

func (m *MemoryStore) GetAccount(ctx context.Context, userID, currency string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if acct, ok := m.accounts[accountKey(userID, currency)]; ok {
		cp := *acct
		return &cp, nil
	}
	return &Account{
		UserID:    userID,
		Currency:  currency,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}, nil
}

func (m *MemoryStore) ListAccounts(ctx context.Context, userID string) ([]*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Account
	for _, acct := range m.accounts {
		if acct.UserID == userID {
			cp := *acct
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *MemoryStore) SumWithheld(ctx context.Context) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]int64)
	for _, acct := range m.accounts {
		if acct.Withheld != 0 {
			out[acct.Currency] += acct.Withheld
		}
	}
	return out, nil
}

func (m *MemoryStore) ListTransactions(ctx context.Context, userID string, f TransactionFilter) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Transaction
	for i := len(m.txns) - 1; i >= 0 && len(result) < f.Limit; i-- {
		t := m.txns[i]
		if t.UserID != userID {
			continue
		}
		if f.Currency != "" && t.Currency != f.Currency {
			continue
		}
		if f.OrderID != "" && t.OrderID != f.OrderID {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		result = append(result, t)
	}
	return result, nil
}
