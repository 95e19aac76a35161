package pricing

import (
	"fmt"
	"math"

	"github.com/example/ride-dispatch/internal/catalog"
	"github.com/example/ride-dispatch/internal/faults"
)

// Stage computes a fare for a distance and vehicle class. Stages wrap other
// stages: the wrapper calls the wrapped stage first and adjusts its result,
// so nesting order decides the outcome (discount-wrapping-surge differs from
// surge-wrapping-discount; both are legal).
type Stage interface {
	Fare(distanceKm float64, class catalog.VehicleClass) (float64, error)
}

// CarpoolReduction is the flat fraction shaved off shared rides after the
// pipeline result, applied at settlement.
const CarpoolReduction = 0.20

// maxSurge is the regulatory ceiling on surge multipliers.
const maxSurge = 5.0

// Base charges baseFare + distance*perKmRate, never below baseFare.
type Base struct{}

func (Base) Fare(distanceKm float64, class catalog.VehicleClass) (float64, error) {
	if distanceKm < 0 {
		return 0, fmt.Errorf("%w: negative distance %f", faults.ErrInvalidInput, distanceKm)
	}
	base := catalog.BaseFare(class)
	return math.Max(base+distanceKm*catalog.PerKmRate(class), base), nil
}

// Surge multiplies the wrapped stage's fare.
type Surge struct {
	inner      Stage
	multiplier float64
}

func NewSurge(inner Stage, multiplier float64) (*Surge, error) {
	if multiplier <= 0 || multiplier > maxSurge {
		return nil, fmt.Errorf("%w: surge multiplier %f outside (0, %g]", faults.ErrInvalidConfig, multiplier, maxSurge)
	}
	return &Surge{inner: inner, multiplier: multiplier}, nil
}

func (s *Surge) Fare(distanceKm float64, class catalog.VehicleClass) (float64, error) {
	f, err := s.inner.Fare(distanceKm, class)
	if err != nil {
		return 0, err
	}
	return f * s.multiplier, nil
}

// Discount takes a percentage off the wrapped stage's fare, floored at half
// the class base fare.
type Discount struct {
	inner Stage
	pct   float64
}

func NewDiscount(inner Stage, pct float64) (*Discount, error) {
	if pct < 0 || pct > 100 {
		return nil, fmt.Errorf("%w: discount %f%% outside [0, 100]", faults.ErrInvalidConfig, pct)
	}
	return &Discount{inner: inner, pct: pct}, nil
}

func (d *Discount) Fare(distanceKm float64, class catalog.VehicleClass) (float64, error) {
	f, err := d.inner.Fare(distanceKm, class)
	if err != nil {
		return 0, err
	}
	return math.Max(f*(1-d.pct/100), 0.5*catalog.BaseFare(class)), nil
}

// Toll adds a fixed surcharge to the wrapped stage's fare.
type Toll struct {
	inner     Stage
	surcharge float64
}

func NewToll(inner Stage, surcharge float64) (*Toll, error) {
	if surcharge < 0 {
		return nil, fmt.Errorf("%w: negative toll surcharge %f", faults.ErrInvalidConfig, surcharge)
	}
	return &Toll{inner: inner, surcharge: surcharge}, nil
}

func (t *Toll) Fare(distanceKm float64, class catalog.VehicleClass) (float64, error) {
	f, err := t.inner.Fare(distanceKm, class)
	if err != nil {
		return 0, err
	}
	return f + t.surcharge, nil
}
