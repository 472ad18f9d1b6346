package faileddelivery

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed failed-delivery store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the failed_deliveries table
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS failed_deliveries (
			id           VARCHAR(36) PRIMARY KEY,
			order_id     VARCHAR(36) NOT NULL REFERENCES orders(id),
			agent_id     VARCHAR(64),
			reason       TEXT,
			status       VARCHAR(12) NOT NULL DEFAULT 'pending',
			fault_type   VARCHAR(16),
			resolved_by  VARCHAR(64),
			resolved_at  TIMESTAMPTZ,
			notes        TEXT,
			created_at   TIMESTAMPTZ DEFAULT NOW(),
			updated_at   TIMESTAMPTZ DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_failed_order ON failed_deliveries(order_id);
		CREATE INDEX IF NOT EXISTS idx_failed_status ON failed_deliveries(status);
	`)
	return err
}

const fdColumns = `id, order_id, COALESCE(agent_id, ''), COALESCE(reason, ''), status,
	COALESCE(fault_type, ''), COALESCE(resolved_by, ''), resolved_at, COALESCE(notes, ''),
	created_at, updated_at`

func scanFD(row interface{ Scan(...any) error }) (*FailedDelivery, error) {
	fd := &FailedDelivery{}
	var resolvedAt sql.NullTime
	err := row.Scan(&fd.ID, &fd.OrderID, &fd.AgentID, &fd.Reason, &fd.Status,
		&fd.FaultType, &fd.ResolvedBy, &resolvedAt, &fd.Notes, &fd.CreatedAt, &fd.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		fd.ResolvedAt = &resolvedAt.Time
	}
	return fd, nil
}

func (p *PostgresStore) Create(ctx context.Context, fd *FailedDelivery) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO failed_deliveries (id, order_id, agent_id, reason, status, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $6)
	`, fd.ID, fd.OrderID, fd.AgentID, fd.Reason, fd.Status, fd.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create failed-delivery record: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*FailedDelivery, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+fdColumns+` FROM failed_deliveries WHERE id = $1`, id)
	fd, err := scanFD(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fd, nil
}

func (p *PostgresStore) GetByOrder(ctx context.Context, orderID string) (*FailedDelivery, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+fdColumns+` FROM failed_deliveries
		WHERE order_id = $1 ORDER BY created_at DESC LIMIT 1
	`, orderID)
	fd, err := scanFD(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fd, nil
}

func (p *PostgresStore) MarkResolved(ctx context.Context, id string, fault FaultType, resolvedBy, notes string) (*FailedDelivery, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE failed_deliveries
		SET status = $2, fault_type = $3, resolved_by = $4, resolved_at = $5, notes = $6, updated_at = $5
		WHERE id = $1 AND status = $7
		RETURNING `+fdColumns+`
	`, id, StatusResolved, fault, resolvedBy, time.Now().UTC(), notes, StatusPending)

	fd, err := scanFD(row)
	if err == sql.ErrNoRows {
		// Missing record or lost resolution race.
		if _, gerr := p.Get(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, ErrAlreadyResolved
	}
	if err != nil {
		return nil, err
	}
	return fd, nil
}

func (p *PostgresStore) List(ctx context.Context, f ListFilter) ([]*FailedDelivery, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.OrderID != "" {
		add("order_id = $%d", f.OrderID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}

	q := `SELECT ` + fdColumns + ` FROM failed_deliveries`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, f.Limit)
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*FailedDelivery
	for rows.Next() {
		fd, err := scanFD(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fd)
	}
	return out, rows.Err()
}
