package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/yamb-labs/sokoni/internal/retry"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed ledger store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the ledger tables. Amounts are BIGINT minor units.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			user_id     VARCHAR(64) NOT NULL,
			currency    VARCHAR(8)  NOT NULL,
			available   BIGINT NOT NULL DEFAULT 0,
			withheld    BIGINT NOT NULL DEFAULT 0,
			created_at  TIMESTAMPTZ DEFAULT NOW(),
			updated_at  TIMESTAMPTZ DEFAULT NOW(),
			PRIMARY KEY (user_id, currency),
			CONSTRAINT chk_available_nonneg CHECK (available >= 0),
			CONSTRAINT chk_withheld_nonneg  CHECK (withheld >= 0)
		);

		CREATE TABLE IF NOT EXISTS account_transactions (
			id              VARCHAR(36) PRIMARY KEY,
			user_id         VARCHAR(64) NOT NULL,
			currency        VARCHAR(8)  NOT NULL,
			amount          BIGINT NOT NULL CHECK (amount > 0),
			type            VARCHAR(20) NOT NULL,
			memo            TEXT,
			order_id        VARCHAR(36),
			related_user_id VARCHAR(64),
			created_at      TIMESTAMPTZ DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_txn_user ON account_transactions(user_id);
		CREATE INDEX IF NOT EXISTS idx_txn_order ON account_transactions(order_id);
		CREATE INDEX IF NOT EXISTS idx_txn_created ON account_transactions(created_at DESC);
	`)
	return err
}

// Register inserts the transaction and applies the balance movement in one
// serializable transaction. Serialization aborts (SQLSTATE 40001) are
// retried with backoff; everything else is final.
func (p *PostgresStore) Register(ctx context.Context, txn *Transaction, d delta) error {
	return retry.Do(ctx, 3, 25*time.Millisecond, func() error {
		err := p.registerOnce(ctx, txn, d)
		if err != nil && !isSerializationFailure(err) {
			return retry.Permanent(err)
		}
		return err
	})
}

// The CHECK constraints on accounts prevent any overdraft the WHERE
// guard misses.
func (p *PostgresStore) registerOnce(ctx context.Context, txn *Transaction, d delta) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Ensure the account row exists
	_, err = tx.ExecContext(ctx, `
		INSERT INTO accounts (user_id, currency, available, withheld, created_at, updated_at)
		VALUES ($1, $2, 0, 0, NOW(), NOW())
		ON CONFLICT (user_id, currency) DO NOTHING
	`, txn.UserID, txn.Currency)
	if err != nil {
		return fmt.Errorf("failed to ensure account: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE accounts SET
			available  = available + $3,
			withheld   = withheld  + $4,
			updated_at = NOW()
		WHERE user_id = $1 AND currency = $2
		  AND ($5 = false OR available >= $6)
		  AND ($7 = false OR withheld  >= $6)
	`, txn.UserID, txn.Currency, d.available, d.withheld, d.checkAvail, txn.Amount, d.checkWithheld)
	if err != nil {
		if isCheckViolation(err) {
			return ErrInsufficientBalance
		}
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrInsufficientBalance
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO account_transactions (id, user_id, currency, amount, type, memo, order_id, related_user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9)
	`, txn.ID, txn.UserID, txn.Currency, txn.Amount, txn.Type, txn.Memo, txn.OrderID, txn.RelatedUserID, txn.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}

	return tx.Commit()
}

func isCheckViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23514"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "40001"
}

// GetAccount retrieves an account. Unknown accounts read as zero balances.
func (p *PostgresStore) GetAccount(ctx context.Context, userID, currency string) (*Account, error) {
	acct := &Account{UserID: userID, Currency: currency}

	err := p.db.QueryRowContext(ctx, `
		SELECT available, withheld, created_at, updated_at
		FROM accounts WHERE user_id = $1 AND currency = $2
	`, userID, currency).Scan(&acct.Available, &acct.Withheld, &acct.CreatedAt, &acct.UpdatedAt)

	if err == sql.ErrNoRows {
		now := time.Now()
		acct.CreatedAt = now
		acct.UpdatedAt = now
		return acct, nil
	}
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// ListAccounts returns all currency accounts for a user.
func (p *PostgresStore) ListAccounts(ctx context.Context, userID string) ([]*Account, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT user_id, currency, available, withheld, created_at, updated_at
		FROM accounts WHERE user_id = $1 ORDER BY currency
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Account
	for rows.Next() {
		acct := &Account{}
		if err := rows.Scan(&acct.UserID, &acct.Currency, &acct.Available, &acct.Withheld, &acct.CreatedAt, &acct.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, acct)
	}
	return result, rows.Err()
}

// SumWithheld returns the total withheld balance per currency.
func (p *PostgresStore) SumWithheld(ctx context.Context) (map[string]int64, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT currency, SUM(withheld)
		FROM accounts
		GROUP BY currency
		HAVING SUM(withheld) <> 0
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var currency string
		var withheld int64
		if err := rows.Scan(&currency, &withheld); err != nil {
			return nil, err
		}
		out[currency] = withheld
	}
	return out, rows.Err()
}

// ListTransactions returns a user's transactions, newest first.
func (p *PostgresStore) ListTransactions(ctx context.Context, userID string, f TransactionFilter) ([]*Transaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, currency, amount, type, COALESCE(memo, ''), COALESCE(order_id, ''), COALESCE(related_user_id, ''), created_at
		FROM account_transactions
		WHERE user_id = $1
		  AND ($2 = '' OR currency = $2)
		  AND ($3 = '' OR order_id = $3)
		  AND ($4 = '' OR type = $4)
		ORDER BY created_at DESC
		LIMIT $5
	`, userID, f.Currency, f.OrderID, string(f.Type), f.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Transaction
	for rows.Next() {
		t := &Transaction{}
		if err := rows.Scan(&t.ID, &t.UserID, &t.Currency, &t.Amount, &t.Type, &t.Memo, &t.OrderID, &t.RelatedUserID, &t.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}
