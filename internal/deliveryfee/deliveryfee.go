// Package deliveryfee computes delivery fees for orders.
//
// Fees are distance-based when both endpoints are known: the rounded
// distance in kilometers times the per-km rate, plus a base fee chosen by
// delivery speed. When a distance cannot be resolved the base fee alone is
// quoted as a flat fee.
package deliveryfee

import (
	"context"
	"errors"
	"math"

	"github.com/yamb-labs/sokoni/internal/geo"
)

var (
	ErrFastDisabled = errors.New("deliveryfee: fast delivery is not available in this country")
	ErrUnknownSpeed = errors.New("deliveryfee: unknown delivery speed")
)

// Speed selects the delivery service level.
type Speed string

const (
	SpeedNormal Speed = "normal"
	SpeedFast   Speed = "fast"
)

// Method records how a quote was computed.
type Method string

const (
	MethodDistanceBased Method = "distance_based"
	MethodFlatFee       Method = "flat_fee"
)

// QuoteRequest is the input for a fee quote.
type QuoteRequest struct {
	BusinessLocation geo.Point `json:"businessLocation"`
	DeliveryLocation geo.Point `json:"deliveryLocation"`
	Speed            Speed     `json:"speed"`
	Country          string    `json:"country,omitempty"`
}

// Quote is a computed delivery fee.
type Quote struct {
	Fee        int64   `json:"fee"` // minor units
	Currency   string  `json:"currency"`
	Method     Method  `json:"method"`
	DistanceKM float64 `json:"distanceKm,omitempty"`
	BaseFee    int64   `json:"baseFee"`
	PerKmFee   int64   `json:"perKmFee,omitempty"`
	SLAHours   int     `json:"slaHours,omitempty"`
}

// Service quotes delivery fees from per-country configuration.
type Service struct {
	cfg *Config
}

// NewService creates a new fee calculator.
func NewService(cfg *Config) *Service {
	return &Service{cfg: cfg}
}

// Quote computes the delivery fee for a request.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	speed := req.Speed
	if speed == "" {
		speed = SpeedNormal
	}

	var baseFee int64
	var slaHours int
	switch speed {
	case SpeedNormal:
		baseFee = s.cfg.NormalBaseFee(ctx, req.Country)
	case SpeedFast:
		if !s.cfg.FastEnabled(ctx, req.Country) {
			return nil, ErrFastDisabled
		}
		baseFee = s.cfg.FastBaseFee(ctx, req.Country)
		slaHours = s.cfg.FastSLAHours(ctx, req.Country)
	default:
		return nil, ErrUnknownSpeed
	}

	currency := s.cfg.Currency(ctx, req.Country)

	// Without both endpoints there is no distance to price.
	if req.BusinessLocation.Zero() || req.DeliveryLocation.Zero() {
		return &Quote{
			Fee:      baseFee,
			Currency: currency,
			Method:   MethodFlatFee,
			BaseFee:  baseFee,
			SLAHours: slaHours,
		}, nil
	}

	distance := geo.DistanceKM(req.BusinessLocation, req.DeliveryLocation)
	perKm := s.cfg.PerKmFee(ctx, req.Country)
	fee := baseFee + int64(math.Round(distance))*perKm

	return &Quote{
		Fee:        fee,
		Currency:   currency,
		Method:     MethodDistanceBased,
		DistanceKM: distance,
		BaseFee:    baseFee,
		PerKmFee:   perKm,
		SLAHours:   slaHours,
	}, nil
}
