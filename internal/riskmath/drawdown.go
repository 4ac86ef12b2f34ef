package riskmath

import (
	guarderrors "github.com/ducminhle1904/trade-guard/internal/errors"
)

// DrawdownResult describes the worst peak-to-trough decline of an equity curve
type DrawdownResult struct {
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`

	// Start is the peak index, End is one past the trough index
	Start  int     `json:"start"`
	End    int     `json:"end"`
	Peak   float64 `json:"peak"`
	Trough float64 `json:"trough"`

	CurrentDrawdownPct float64 `json:"current_drawdown_pct"`
	ThresholdPct       float64 `json:"threshold_pct"`
	IsWarning          bool    `json:"is_warning"`
}

// MaxDrawdown walks the equity curve with a running peak.
// IsWarning is set when the current drawdown reaches a positive thresholdPct.
func MaxDrawdown(equity []float64, thresholdPct float64) (DrawdownResult, error) {
	const op = "drawdown"

	if len(equity) < 2 {
		return DrawdownResult{}, guarderrors.NewValidationError(component, op, guarderrors.ErrInsufficientData,
			"got %d points, need at least 2", len(equity))
	}
	for i, v := range equity {
		if !finite(v) || v <= 0 {
			return DrawdownResult{}, guarderrors.NewValidationError(component, op, guarderrors.ErrInvalidEquity,
				"equity[%d] = %v", i, v)
		}
	}

	peak := equity[0]
	peakIdx := 0
	result := DrawdownResult{Peak: equity[0], Trough: equity[0], ThresholdPct: thresholdPct}

	var maxDD float64
	for i, v := range equity {
		if v > peak {
			peak = v
			peakIdx = i
			continue
		}
		dd := (peak - v) / peak
		if dd > maxDD {
			maxDD = dd
			result.Start = peakIdx
			result.End = i + 1
			result.Peak = peak
			result.Trough = v
		}
	}

	last := equity[len(equity)-1]
	result.MaxDrawdownPct = maxDD * 100
	result.CurrentDrawdownPct = (peak - last) / peak * 100
	result.IsWarning = thresholdPct > 0 && result.CurrentDrawdownPct >= thresholdPct
	return result, nil
}
