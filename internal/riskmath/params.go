package riskmath

import (
	"fmt"
	"math"

	guarderrors "github.com/ducminhle1904/trade-guard/internal/errors"
)

const component = "riskmath"

// Params holds the empirical constants used by the calculator
type Params struct {
	// KellyFraction scales the fixed-percentage size in kelly mode.
	// 0.5 is a conservative half-Kelly approximation, not the edge/odds formula.
	KellyFraction float64 `json:"kelly_fraction"`

	// CVaRMultiplier turns VaR into an expected tail loss estimate
	CVaRMultiplier float64 `json:"cvar_multiplier"`

	// ATRMultiplier is used when an exit request leaves it unset
	ATRMultiplier float64 `json:"atr_multiplier"`
}

// DefaultParams returns the standard calculator parameters
func DefaultParams() Params {
	return Params{
		KellyFraction:  0.5,
		CVaRMultiplier: 1.3,
		ATRMultiplier:  2.0,
	}
}

// Validate checks parameter ranges
func (p Params) Validate() error {
	if !finite(p.KellyFraction) || p.KellyFraction <= 0 || p.KellyFraction > 1 {
		return fmt.Errorf("kelly fraction must be in (0, 1], got %v", p.KellyFraction)
	}
	if !finite(p.CVaRMultiplier) || p.CVaRMultiplier < 1 {
		return fmt.Errorf("cvar multiplier must be >= 1, got %v", p.CVaRMultiplier)
	}
	if !finite(p.ATRMultiplier) || p.ATRMultiplier <= 0 {
		return fmt.Errorf("atr multiplier must be positive, got %v", p.ATRMultiplier)
	}
	return nil
}

// Calculator carries Params into the sizing and portfolio risk computations.
// It has no mutable state and is safe for concurrent use.
type Calculator struct {
	params Params
}

// NewCalculator creates a calculator; zero fields fall back to defaults
func NewCalculator(params Params) *Calculator {
	defaults := DefaultParams()
	if params.KellyFraction == 0 {
		params.KellyFraction = defaults.KellyFraction
	}
	if params.CVaRMultiplier == 0 {
		params.CVaRMultiplier = defaults.CVaRMultiplier
	}
	if params.ATRMultiplier == 0 {
		params.ATRMultiplier = defaults.ATRMultiplier
	}
	return &Calculator{params: params}
}

// Params returns the calculator parameters
func (c *Calculator) Params() Params {
	return c.params
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func requireFinite(operation string, values map[string]float64) error {
	for name, v := range values {
		if !finite(v) {
			return guarderrors.NewValidationError(component, operation, guarderrors.ErrInvalidNumber, "%s is %v", name, v)
		}
	}
	return nil
}
