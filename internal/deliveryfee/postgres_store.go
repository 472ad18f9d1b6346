package deliveryfee

import (
	"context"
	"database/sql"
)

// PostgresConfigStore implements ConfigStore with PostgreSQL
type PostgresConfigStore struct {
	db *sql.DB
}

// NewPostgresConfigStore creates a new PostgreSQL-backed config store
func NewPostgresConfigStore(db *sql.DB) *PostgresConfigStore {
	return &PostgresConfigStore{db: db}
}

// Migrate creates the config table
func (p *PostgresConfigStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS country_delivery_configs (
			country              VARCHAR(2) PRIMARY KEY,
			normal_base_fee      BIGINT,
			fast_base_fee        BIGINT,
			per_km_fee           BIGINT,
			fast_enabled         BOOLEAN,
			fast_sla_hours       INT,
			currency             VARCHAR(8),
			cancellation_fee     BIGINT,
			failed_delivery_fee  BIGINT,
			updated_at           TIMESTAMPTZ DEFAULT NOW()
		);
	`)
	return err
}

func (p *PostgresConfigStore) Get(ctx context.Context, country string) (*CountryConfig, error) {
	cfg := &CountryConfig{Country: country}

	err := p.db.QueryRowContext(ctx, `
		SELECT normal_base_fee, fast_base_fee, per_km_fee, fast_enabled,
		       fast_sla_hours, currency, cancellation_fee, failed_delivery_fee, updated_at
		FROM country_delivery_configs WHERE country = $1
	`, country).Scan(&cfg.NormalBaseFee, &cfg.FastBaseFee, &cfg.PerKmFee, &cfg.FastEnabled,
		&cfg.FastSLAHours, &cfg.Currency, &cfg.CancellationFee, &cfg.FailedDeliveryFee, &cfg.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (p *PostgresConfigStore) Upsert(ctx context.Context, cfg *CountryConfig) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO country_delivery_configs
			(country, normal_base_fee, fast_base_fee, per_km_fee, fast_enabled,
			 fast_sla_hours, currency, cancellation_fee, failed_delivery_fee, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (country) DO UPDATE SET
			normal_base_fee     = EXCLUDED.normal_base_fee,
			fast_base_fee       = EXCLUDED.fast_base_fee,
			per_km_fee          = EXCLUDED.per_km_fee,
			fast_enabled        = EXCLUDED.fast_enabled,
			fast_sla_hours      = EXCLUDED.fast_sla_hours,
			currency            = EXCLUDED.currency,
			cancellation_fee    = EXCLUDED.cancellation_fee,
			failed_delivery_fee = EXCLUDED.failed_delivery_fee,
			updated_at          = NOW()
	`, cfg.Country, cfg.NormalBaseFee, cfg.FastBaseFee, cfg.PerKmFee, cfg.FastEnabled,
		cfg.FastSLAHours, cfg.Currency, cfg.CancellationFee, cfg.FailedDeliveryFee)
	return err
}
