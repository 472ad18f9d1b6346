package hold

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed hold store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the order_holds table
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS order_holds (
			id                   VARCHAR(36) PRIMARY KEY,
			order_id             VARCHAR(36) NOT NULL UNIQUE,
			client_hold_amount   BIGINT NOT NULL DEFAULT 0,
			agent_hold_amount    BIGINT NOT NULL DEFAULT 0,
			delivery_fees_amount BIGINT NOT NULL DEFAULT 0,
			currency             VARCHAR(8) NOT NULL,
			status               VARCHAR(12) NOT NULL DEFAULT 'active',
			created_at           TIMESTAMPTZ DEFAULT NOW(),
			updated_at           TIMESTAMPTZ DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_holds_status ON order_holds(status);
	`)
	return err
}

func (p *PostgresStore) Create(ctx context.Context, h *OrderHold) (*OrderHold, bool, error) {
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO order_holds (id, order_id, client_hold_amount, agent_hold_amount, delivery_fees_amount, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (order_id) DO NOTHING
	`, h.ID, h.OrderID, h.ClientHoldAmount, h.AgentHoldAmount, h.DeliveryFeesAmount, h.Currency, h.Status, h.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create hold: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		existing, err := p.GetByOrder(ctx, h.OrderID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return nil, true, nil
}

func (p *PostgresStore) GetByOrder(ctx context.Context, orderID string) (*OrderHold, error) {
	h := &OrderHold{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, order_id, client_hold_amount, agent_hold_amount, delivery_fees_amount, currency, status, created_at, updated_at
		FROM order_holds WHERE order_id = $1
	`, orderID).Scan(&h.ID, &h.OrderID, &h.ClientHoldAmount, &h.AgentHoldAmount, &h.DeliveryFeesAmount, &h.Currency, &h.Status, &h.CreatedAt, &h.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (p *PostgresStore) Update(ctx context.Context, orderID string, patch Patch) (*OrderHold, error) {
	h := &OrderHold{}
	err := p.db.QueryRowContext(ctx, `
		UPDATE order_holds SET
			client_hold_amount   = COALESCE($2, client_hold_amount),
			agent_hold_amount    = COALESCE($3, agent_hold_amount),
			delivery_fees_amount = COALESCE($4, delivery_fees_amount),
			updated_at           = NOW()
		WHERE order_id = $1
		RETURNING id, order_id, client_hold_amount, agent_hold_amount, delivery_fees_amount, currency, status, created_at, updated_at
	`, orderID, patch.ClientHoldAmount, patch.AgentHoldAmount, patch.DeliveryFeesAmount).
		Scan(&h.ID, &h.OrderID, &h.ClientHoldAmount, &h.AgentHoldAmount, &h.DeliveryFeesAmount, &h.Currency, &h.Status, &h.CreatedAt, &h.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (p *PostgresStore) SetStatus(ctx context.Context, orderID string, status Status) (*OrderHold, error) {
	h := &OrderHold{}
	err := p.db.QueryRowContext(ctx, `
		UPDATE order_holds SET status = $2, updated_at = NOW()
		WHERE order_id = $1
		RETURNING id, order_id, client_hold_amount, agent_hold_amount, delivery_fees_amount, currency, status, created_at, updated_at
	`, orderID, status).
		Scan(&h.ID, &h.OrderID, &h.ClientHoldAmount, &h.AgentHoldAmount, &h.DeliveryFeesAmount, &h.Currency, &h.Status, &h.CreatedAt, &h.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (p *PostgresStore) ListByStatus(ctx context.Context, status Status) ([]*OrderHold, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, order_id, client_hold_amount, agent_hold_amount, delivery_fees_amount, currency, status, created_at, updated_at
		FROM order_holds WHERE status = $1
		ORDER BY created_at ASC
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*OrderHold
	for rows.Next() {
		h := &OrderHold{}
		if err := rows.Scan(&h.ID, &h.OrderID, &h.ClientHoldAmount, &h.AgentHoldAmount, &h.DeliveryFeesAmount, &h.Currency, &h.Status, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
