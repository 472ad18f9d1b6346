package deliveryfee

import (
	"context"
	"time"

	"github.com/yamb-labs/sokoni/internal/logging"
	"github.com/yamb-labs/sokoni/internal/money"
)

// Defaults applied when a country has no stored override. Fast delivery
// is on by default; a country opts out with an explicit override.
const (
	DefaultNormalBaseFeeMajor = 1000
	DefaultFastBaseFeeMajor   = 1500
	DefaultPerKmFeeMajor      = 200
	DefaultFastEnabled        = true
	DefaultFastSLAHours       = 4
	DefaultCurrency           = "XAF"
	DefaultCancellationFee    = 0
)

// CountryConfig holds per-country fee overrides. Nil fields fall back to
// the platform defaults.
type CountryConfig struct {
	Country           string    `json:"country"`
	NormalBaseFee     *int64    `json:"normalBaseFee,omitempty"`
	FastBaseFee       *int64    `json:"fastBaseFee,omitempty"`
	PerKmFee          *int64    `json:"perKmFee,omitempty"`
	FastEnabled       *bool     `json:"fastEnabled,omitempty"`
	FastSLAHours      *int      `json:"fastSlaHours,omitempty"`
	Currency          *string   `json:"currency,omitempty"`
	CancellationFee   *int64    `json:"cancellationFee,omitempty"`
	FailedDeliveryFee *int64    `json:"failedDeliveryFee,omitempty"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// ConfigStore persists per-country fee configuration.
type ConfigStore interface {
	Get(ctx context.Context, country string) (*CountryConfig, error)
	Upsert(ctx context.Context, cfg *CountryConfig) error
}

// Config resolves fee settings for a country, falling back to the default
// country and then to platform defaults.
type Config struct {
	store          ConfigStore
	defaultCountry string
}

// NewConfig creates a config resolver.
func NewConfig(store ConfigStore, defaultCountry string) *Config {
	return &Config{store: store, defaultCountry: defaultCountry}
}

// lookup fetches the stored config, tolerating store errors: a missing or
// unreadable row means defaults apply.
func (c *Config) lookup(ctx context.Context, country string) *CountryConfig {
	if country == "" {
		country = c.defaultCountry
	}
	cfg, err := c.store.Get(ctx, country)
	if err != nil {
		logging.L(ctx).Warn("delivery config lookup failed, using defaults",
			"country", country, "error", err)
		return &CountryConfig{Country: country}
	}
	if cfg == nil {
		return &CountryConfig{Country: country}
	}
	return cfg
}

func (c *Config) NormalBaseFee(ctx context.Context, country string) int64 {
	if v := c.lookup(ctx, country).NormalBaseFee; v != nil {
		return *v
	}
	return money.FromMajor(DefaultNormalBaseFeeMajor)
}

func (c *Config) FastBaseFee(ctx context.Context, country string) int64 {
	if v := c.lookup(ctx, country).FastBaseFee; v != nil {
		return *v
	}
	return money.FromMajor(DefaultFastBaseFeeMajor)
}

func (c *Config) PerKmFee(ctx context.Context, country string) int64 {
	if v := c.lookup(ctx, country).PerKmFee; v != nil {
		return *v
	}
	return money.FromMajor(DefaultPerKmFeeMajor)
}

func (c *Config) FastEnabled(ctx context.Context, country string) bool {
	if v := c.lookup(ctx, country).FastEnabled; v != nil {
		return *v
	}
	return DefaultFastEnabled
}

func (c *Config) FastSLAHours(ctx context.Context, country string) int {
	if v := c.lookup(ctx, country).FastSLAHours; v != nil {
		return *v
	}
	return DefaultFastSLAHours
}

func (c *Config) Currency(ctx context.Context, country string) string {
	if v := c.lookup(ctx, country).Currency; v != nil {
		return *v
	}
	return DefaultCurrency
}

func (c *Config) CancellationFee(ctx context.Context, country string) int64 {
	if v := c.lookup(ctx, country).CancellationFee; v != nil {
		return *v
	}
	return DefaultCancellationFee
}

// FailedDeliveryFee has no platform default. The second return reports
// whether the country has one configured.
func (c *Config) FailedDeliveryFee(ctx context.Context, country string) (int64, bool) {
	if v := c.lookup(ctx, country).FailedDeliveryFee; v != nil {
		return *v, true
	}
	return 0, false
}

// Upsert stores a country override.
func (c *Config) Upsert(ctx context.Context, cfg *CountryConfig) error {
	cfg.UpdatedAt = time.Now().UTC()
	return c.store.Upsert(ctx, cfg)
}

// Get returns the raw stored config for a country.
func (c *Config) Get(ctx context.Context, country string) (*CountryConfig, error) {
	if country == "" {
		country = c.defaultCountry
	}
	return c.store.Get(ctx, country)
}
