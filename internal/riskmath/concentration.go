package riskmath

import (
	"math"
	"sort"

	guarderrors "github.com/ducminhle1904/trade-guard/internal/errors"
	"github.com/ducminhle1904/trade-guard/internal/portfolio"
)

// HHI band boundaries on the 0–10000 scale
const (
	hhiModerate = 1500.0
	hhiHigh     = 2500.0
)

// Weight is one ticker's share of the portfolio in percent
type Weight struct {
	Ticker    string  `json:"ticker"`
	WeightPct float64 `json:"weight_pct"`
}

// SectorLookup resolves a ticker to its sector. ok is false for unknown tickers.
type SectorLookup interface {
	Sector(ticker string) (sector string, ok bool)
}

// SectorMap is a static ticker→sector lookup
type SectorMap map[string]string

// Sector implements SectorLookup
func (m SectorMap) Sector(ticker string) (string, bool) {
	s, ok := m[ticker]
	return s, ok
}

// ViolationScope says whether a concentration breach is per ticker or per sector
type ViolationScope string

const (
	ScopeTicker ViolationScope = "ticker"
	ScopeSector ViolationScope = "sector"
)

// ConcentrationViolation records one weight above its limit
type ConcentrationViolation struct {
	Scope     ViolationScope `json:"scope"`
	Name      string         `json:"name"`
	WeightPct float64        `json:"weight_pct"`
	LimitPct  float64        `json:"limit_pct"`
	ExcessPct float64        `json:"excess_pct"`
}

// ConcentrationResult is the outcome of a concentration check
type ConcentrationResult struct {
	HHI              float64                  `json:"hhi"`
	Band             RiskBand                 `json:"band"`
	LargestTicker    string                   `json:"largest_ticker"`
	LargestWeightPct float64                  `json:"largest_weight_pct"`
	Violations       []ConcentrationViolation `json:"violations"`
	SectorWeights    map[string]float64       `json:"sector_weights,omitempty"`
	SectorsChecked   bool                     `json:"sectors_checked"`
}

// Weights derives the weight list from a snapshot. Shorts carry negative weights.
func Weights(snap portfolio.Snapshot) []Weight {
	positions := snap.Positions()
	weights := make([]Weight, 0, len(positions))
	for _, p := range positions {
		weights = append(weights, Weight{Ticker: p.Ticker, WeightPct: snap.Weight(p).InexactFloat64()})
	}
	return weights
}

// ConcentrationRisk checks single-name and (when sectors is non-nil) sector weights
// against their limits and computes the Herfindahl-Hirschman index.
// Limits <= 0 disable the corresponding check. Tickers the lookup cannot resolve
// are left out of sector totals.
func ConcentrationRisk(weights []Weight, maxSingleWeightPct, maxSectorWeightPct float64, sectors SectorLookup) (ConcentrationResult, error) {
	const op = "concentration"

	result := ConcentrationResult{Violations: []ConcentrationViolation{}}

	for _, w := range weights {
		if !finite(w.WeightPct) {
			return ConcentrationResult{}, guarderrors.NewValidationError(component, op, guarderrors.ErrInvalidNumber,
				"weight for %s is %v", w.Ticker, w.WeightPct)
		}
		abs := math.Abs(w.WeightPct)
		result.HHI += w.WeightPct * w.WeightPct

		if abs > result.LargestWeightPct {
			result.LargestWeightPct = abs
			result.LargestTicker = w.Ticker
		}
		if maxSingleWeightPct > 0 && abs > maxSingleWeightPct {
			result.Violations = append(result.Violations, ConcentrationViolation{
				Scope:     ScopeTicker,
				Name:      w.Ticker,
				WeightPct: abs,
				LimitPct:  maxSingleWeightPct,
				ExcessPct: abs - maxSingleWeightPct,
			})
		}
	}
	result.Band = classifyHHI(result.HHI)

	if sectors == nil {
		return result, nil
	}

	result.SectorsChecked = true
	result.SectorWeights = make(map[string]float64)
	for _, w := range weights {
		sector, ok := sectors.Sector(w.Ticker)
		if !ok {
			continue
		}
		result.SectorWeights[sector] += math.Abs(w.WeightPct)
	}

	if maxSectorWeightPct > 0 {
		names := make([]string, 0, len(result.SectorWeights))
		for name := range result.SectorWeights {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			weight := result.SectorWeights[name]
			if weight > maxSectorWeightPct {
				result.Violations = append(result.Violations, ConcentrationViolation{
					Scope:     ScopeSector,
					Name:      name,
					WeightPct: weight,
					LimitPct:  maxSectorWeightPct,
					ExcessPct: weight - maxSectorWeightPct,
				})
			}
		}
	}

	return result, nil
}

func classifyHHI(hhi float64) RiskBand {
	switch {
	case hhi < hhiModerate:
		return RiskLow
	case hhi < hhiHigh:
		return RiskModerate
	default:
		return RiskHigh
	}
}
