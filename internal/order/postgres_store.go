package order

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed order store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the orders and order_status_history tables
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS orders (
			id               VARCHAR(36) PRIMARY KEY,
			order_number     VARCHAR(32) NOT NULL UNIQUE,
			client_id        VARCHAR(64) NOT NULL,
			business_id      VARCHAR(64) NOT NULL,
			agent_id         VARCHAR(64),
			subtotal         BIGINT NOT NULL DEFAULT 0,
			delivery_fee     BIGINT NOT NULL DEFAULT 0,
			total            BIGINT NOT NULL DEFAULT 0,
			currency         VARCHAR(8) NOT NULL,
			status           VARCHAR(24) NOT NULL,
			delivery_speed   VARCHAR(8) NOT NULL DEFAULT 'normal',
			delivery_country VARCHAR(2),
			requires_verified_agent BOOLEAN NOT NULL DEFAULT FALSE,
			business_lat     DOUBLE PRECISION,
			business_lng     DOUBLE PRECISION,
			delivery_lat     DOUBLE PRECISION,
			delivery_lng     DOUBLE PRECISION,
			window_id        VARCHAR(36),
			window_starts_at TIMESTAMPTZ,
			window_ends_at   TIMESTAMPTZ,
			created_at       TIMESTAMPTZ DEFAULT NOW(),
			updated_at       TIMESTAMPTZ DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_orders_client ON orders(client_id);
		CREATE INDEX IF NOT EXISTS idx_orders_business ON orders(business_id);
		CREATE INDEX IF NOT EXISTS idx_orders_agent ON orders(agent_id);
		CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);

		CREATE TABLE IF NOT EXISTS order_status_history (
			id                 VARCHAR(36) PRIMARY KEY,
			order_id           VARCHAR(36) NOT NULL REFERENCES orders(id),
			from_status        VARCHAR(24),
			to_status          VARCHAR(24) NOT NULL,
			changed_by_type    VARCHAR(16) NOT NULL,
			changed_by_user_id VARCHAR(64),
			notes              TEXT,
			created_at         TIMESTAMPTZ DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_history_order ON order_status_history(order_id);
	`)
	return err
}

const orderColumns = `id, order_number, client_id, business_id, COALESCE(agent_id, ''),
	subtotal, delivery_fee, total, currency, status, delivery_speed, COALESCE(delivery_country, ''),
	requires_verified_agent,
	COALESCE(business_lat, 0), COALESCE(business_lng, 0), COALESCE(delivery_lat, 0), COALESCE(delivery_lng, 0),
	window_id, window_starts_at, window_ends_at,
	created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*Order, error) {
	o := &Order{}
	var winID sql.NullString
	var winStart, winEnd sql.NullTime
	err := row.Scan(&o.ID, &o.OrderNumber, &o.ClientID, &o.BusinessID, &o.AgentID,
		&o.Subtotal, &o.DeliveryFee, &o.Total, &o.Currency, &o.Status, &o.DeliverySpeed, &o.DeliveryCountry,
		&o.RequiresVerifiedAgent,
		&o.BusinessLocation.Lat, &o.BusinessLocation.Lng, &o.DeliveryLocation.Lat, &o.DeliveryLocation.Lng,
		&winID, &winStart, &winEnd,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if winID.Valid {
		o.DeliveryWindow = &Window{ID: winID.String, StartsAt: winStart.Time, EndsAt: winEnd.Time}
	}
	return o, nil
}

func (p *PostgresStore) Create(ctx context.Context, o *Order) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO orders (id, order_number, client_id, business_id, agent_id,
			subtotal, delivery_fee, total, currency, status, delivery_speed, delivery_country,
			requires_verified_agent,
			business_lat, business_lng, delivery_lat, delivery_lng, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11, NULLIF($12, ''),
			$13, $14, $15, $16, $17, $18, $18)
	`, o.ID, o.OrderNumber, o.ClientID, o.BusinessID, o.AgentID,
		o.Subtotal, o.DeliveryFee, o.Total, o.Currency, o.Status, o.DeliverySpeed, o.DeliveryCountry,
		o.RequiresVerifiedAgent,
		o.BusinessLocation.Lat, o.BusinessLocation.Lng, o.DeliveryLocation.Lat, o.DeliveryLocation.Lng,
		o.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Order, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (p *PostgresStore) UpdateStatus(ctx context.Context, id string, from, to Status) (*Order, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE orders SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+orderColumns+`
	`, id, from, to)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		// Either the order is missing or another transition won the race.
		if _, gerr := p.Get(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, ErrConflict
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (p *PostgresStore) SetWindow(ctx context.Context, id string, w Window) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE orders SET window_id = $2, window_starts_at = $3, window_ends_at = $4, updated_at = NOW()
		WHERE id = $1
	`, id, w.ID, w.StartsAt, w.EndsAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) SetAgent(ctx context.Context, id, agentID string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE orders SET agent_id = NULLIF($2, ''), updated_at = NOW() WHERE id = $1
	`, id, agentID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context, f ListFilter) ([]*Order, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.ClientID != "" {
		add("client_id = $%d", f.ClientID)
	}
	if f.BusinessID != "" {
		add("business_id = $%d", f.BusinessID)
	}
	if f.AgentID != "" {
		add("agent_id = $%d", f.AgentID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if !f.CreatedBefore.IsZero() {
		args = append(args, f.CreatedBefore, f.BeforeID)
		conds = append(conds, fmt.Sprintf("(created_at, id) < ($%d, $%d)", len(args)-1, len(args)))
	}

	q := `SELECT ` + orderColumns + ` FROM orders`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, f.Limit)
	q += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *PostgresStore) AppendHistory(ctx context.Context, ch *StatusChange) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO order_status_history (id, order_id, from_status, to_status, changed_by_type, changed_by_user_id, notes, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, NULLIF($6, ''), $7, $8)
	`, ch.ID, ch.OrderID, string(ch.FromStatus), ch.ToStatus, ch.ChangedByType, ch.ChangedByUserID, ch.Notes, ch.CreatedAt)
	return err
}

func (p *PostgresStore) History(ctx context.Context, orderID string) ([]*StatusChange, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, order_id, COALESCE(from_status, ''), to_status, changed_by_type, COALESCE(changed_by_user_id, ''), COALESCE(notes, ''), created_at
		FROM order_status_history WHERE order_id = $1 ORDER BY created_at ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*StatusChange
	for rows.Next() {
		ch := &StatusChange{}
		if err := rows.Scan(&ch.ID, &ch.OrderID, &ch.FromStatus, &ch.ToStatus, &ch.ChangedByType, &ch.ChangedByUserID, &ch.Notes, &ch.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}
