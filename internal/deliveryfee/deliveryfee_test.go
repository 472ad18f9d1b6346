package deliveryfee

import (
	"context"
	"errors"
	"testing"

	"github.com/yamb-labs/sokoni/internal/geo"
	"github.com/yamb-labs/sokoni/internal/money"
)

func ptrI64(v int64) *int64 { return &v }
func ptrBool(v bool) *bool  { return &v }
func ptrStr(v string) *string {
	return &v
}

func newTestService(t *testing.T, overrides ...*CountryConfig) *Service {
	t.Helper()
	store := NewMemoryConfigStore()
	for _, cfg := range overrides {
		if err := store.Upsert(context.Background(), cfg); err != nil {
			t.Fatal(err)
		}
	}
	return NewService(NewConfig(store, "GA"))
}

func TestQuote_FlatFeeFallback(t *testing.T) {
	s := newTestService(t)

	// No delivery location resolvable
	q, err := s.Quote(context.Background(), QuoteRequest{
		BusinessLocation: geo.Point{Lat: 0.41, Lng: 9.46},
	})
	if err != nil {
		t.Fatal(err)
	}
	if q.Method != MethodFlatFee {
		t.Errorf("method = %s, want flat_fee", q.Method)
	}
	if q.Fee != money.FromMajor(DefaultNormalBaseFeeMajor) {
		t.Errorf("fee = %d, want %d", q.Fee, money.FromMajor(DefaultNormalBaseFeeMajor))
	}
	if q.Currency != DefaultCurrency {
		t.Errorf("currency = %s, want %s", q.Currency, DefaultCurrency)
	}
}

func TestQuote_DistanceBased(t *testing.T) {
	s := newTestService(t)

	// Roughly 9.6 km apart, rounds to 10
	q, err := s.Quote(context.Background(), QuoteRequest{
		BusinessLocation: geo.Point{Lat: 0.4162, Lng: 9.4673},
		DeliveryLocation: geo.Point{Lat: 0.3380, Lng: 9.5050},
	})
	if err != nil {
		t.Fatal(err)
	}
	if q.Method != MethodDistanceBased {
		t.Fatalf("method = %s, want distance_based", q.Method)
	}
	if q.DistanceKM <= 0 {
		t.Fatalf("distance = %f, want > 0", q.DistanceKM)
	}

	wantKM := int64(q.DistanceKM + 0.5)
	want := money.FromMajor(DefaultNormalBaseFeeMajor) + wantKM*money.FromMajor(DefaultPerKmFeeMajor)
	if q.Fee != want {
		t.Errorf("fee = %d, want %d (base + %d km * per-km)", q.Fee, want, wantKM)
	}
}

func TestQuote_FastSpeed(t *testing.T) {
	s := newTestService(t, &CountryConfig{
		Country:     "GA",
		FastEnabled: ptrBool(true),
	})

	q, err := s.Quote(context.Background(), QuoteRequest{Speed: SpeedFast})
	if err != nil {
		t.Fatal(err)
	}
	if q.Fee != money.FromMajor(DefaultFastBaseFeeMajor) {
		t.Errorf("fee = %d, want fast base fee", q.Fee)
	}
	if q.SLAHours != DefaultFastSLAHours {
		t.Errorf("sla = %d, want %d", q.SLAHours, DefaultFastSLAHours)
	}
}

func TestQuote_FastDefaultsOn(t *testing.T) {
	s := newTestService(t)

	// No config row exists for the country; defaults still quote fast.
	q, err := s.Quote(context.Background(), QuoteRequest{Country: "CM", Speed: SpeedFast})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.Fee != money.FromMajor(DefaultFastBaseFeeMajor) {
		t.Errorf("fee = %d, want fast base fee", q.Fee)
	}
}

func TestQuote_FastOptOut(t *testing.T) {
	s := newTestService(t, &CountryConfig{
		Country:     "GA",
		FastEnabled: ptrBool(false),
	})

	_, err := s.Quote(context.Background(), QuoteRequest{Speed: SpeedFast})
	if !errors.Is(err, ErrFastDisabled) {
		t.Errorf("err = %v, want ErrFastDisabled", err)
	}
}

func TestQuote_UnknownSpeed(t *testing.T) {
	s := newTestService(t)

	_, err := s.Quote(context.Background(), QuoteRequest{Speed: "teleport"})
	if !errors.Is(err, ErrUnknownSpeed) {
		t.Errorf("err = %v, want ErrUnknownSpeed", err)
	}
}

func TestQuote_CountryOverrides(t *testing.T) {
	s := newTestService(t, &CountryConfig{
		Country:       "CM",
		NormalBaseFee: ptrI64(money.FromMajor(500)),
		PerKmFee:      ptrI64(money.FromMajor(100)),
		Currency:      ptrStr("XAF"),
	})

	q, err := s.Quote(context.Background(), QuoteRequest{Country: "CM"})
	if err != nil {
		t.Fatal(err)
	}
	if q.Fee != money.FromMajor(500) {
		t.Errorf("fee = %d, want override 50000", q.Fee)
	}
}

func TestConfig_Accessors(t *testing.T) {
	store := NewMemoryConfigStore()
	cfg := NewConfig(store, "GA")
	ctx := context.Background()

	if got := cfg.CancellationFee(ctx, ""); got != DefaultCancellationFee {
		t.Errorf("CancellationFee default = %d, want %d", got, int64(DefaultCancellationFee))
	}
	if _, ok := cfg.FailedDeliveryFee(ctx, ""); ok {
		t.Error("FailedDeliveryFee should be unset by default")
	}

	if err := cfg.Upsert(ctx, &CountryConfig{
		Country:           "GA",
		CancellationFee:   ptrI64(money.FromMajor(20)),
		FailedDeliveryFee: ptrI64(money.FromMajor(40)),
	}); err != nil {
		t.Fatal(err)
	}

	if got := cfg.CancellationFee(ctx, "GA"); got != money.FromMajor(20) {
		t.Errorf("CancellationFee = %d, want 2000", got)
	}
	fee, ok := cfg.FailedDeliveryFee(ctx, "GA")
	if !ok || fee != money.FromMajor(40) {
		t.Errorf("FailedDeliveryFee = (%d, %v), want (4000, true)", fee, ok)
	}
}
