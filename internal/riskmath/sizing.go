package riskmath

import (
	"math"

	guarderrors "github.com/ducminhle1904/trade-guard/internal/errors"
)

// SizingMethod selects how the share count is derived from the risk budget
type SizingMethod string

const (
	SizingFixedPercentage SizingMethod = "fixed_percentage"
	SizingKelly           SizingMethod = "kelly"
	SizingVolatilityBased SizingMethod = "volatility_based"
)

// LeverageBand is a qualitative leverage classification
type LeverageBand string

const (
	LeverageSafe     LeverageBand = "Safe"
	LeverageModerate LeverageBand = "Moderate"
	LeverageHighRisk LeverageBand = "HighRisk"
)

// SizingRequest describes one position sizing computation
type SizingRequest struct {
	AccountBalance  float64      `json:"account_balance"`
	EntryPrice      float64      `json:"entry_price"`
	StopLossPrice   float64      `json:"stop_loss_price"`
	RiskPerTradePct float64      `json:"risk_per_trade_pct"`
	Method          SizingMethod `json:"method"`

	// VolatilityFactor in (0, 1], required by volatility_based
	VolatilityFactor float64 `json:"volatility_factor,omitempty"`
}

// SizingResult is the computed position size
type SizingResult struct {
	Method        SizingMethod `json:"method"`
	Shares        int64        `json:"shares"`
	PositionValue float64      `json:"position_value"`
	Leverage      float64      `json:"leverage"`
	Band          LeverageBand `json:"band"`
	RiskAmount    float64      `json:"risk_amount"`
	RiskPerShare  float64      `json:"risk_per_share"`
}

// SizePosition computes the share count that risks at most RiskPerTradePct of the balance.
// Sizes always round down.
func (c *Calculator) SizePosition(req SizingRequest) (SizingResult, error) {
	const op = "size_position"

	if err := requireFinite(op, map[string]float64{
		"account balance":   req.AccountBalance,
		"entry price":       req.EntryPrice,
		"stop loss price":   req.StopLossPrice,
		"risk per trade":    req.RiskPerTradePct,
		"volatility factor": req.VolatilityFactor,
	}); err != nil {
		return SizingResult{}, err
	}
	if req.AccountBalance <= 0 {
		return SizingResult{}, guarderrors.NewValidationError(component, op, guarderrors.ErrInvalidBalance,
			"balance %.2f", req.AccountBalance)
	}
	if req.RiskPerTradePct <= 0 || req.RiskPerTradePct > 100 {
		return SizingResult{}, guarderrors.NewValidationError(component, op, guarderrors.ErrInvalidRiskPercent,
			"risk per trade %.4f%%", req.RiskPerTradePct)
	}
	if req.EntryPrice <= 0 || req.StopLossPrice <= 0 {
		return SizingResult{}, guarderrors.NewValidationError(component, op, guarderrors.ErrInvalidTrade,
			"entry %.4f and stop %.4f must be positive", req.EntryPrice, req.StopLossPrice)
	}
	if req.EntryPrice == req.StopLossPrice {
		return SizingResult{}, guarderrors.NewValidationError(component, op, guarderrors.ErrInvalidRiskDistance,
			"entry and stop both %.4f", req.EntryPrice)
	}

	method := req.Method
	if method == "" {
		method = SizingFixedPercentage
	}

	riskAmount := req.AccountBalance * req.RiskPerTradePct / 100
	riskPerShare := math.Abs(req.EntryPrice - req.StopLossPrice)
	fixed := math.Floor(riskAmount / riskPerShare)

	var shares float64
	switch method {
	case SizingFixedPercentage:
		shares = fixed
	case SizingKelly:
		shares = math.Floor(fixed * c.params.KellyFraction)
	case SizingVolatilityBased:
		if req.VolatilityFactor <= 0 || req.VolatilityFactor > 1 {
			return SizingResult{}, guarderrors.NewValidationError(component, op, guarderrors.ErrInvalidVolatilityFactor,
				"volatility factor %.4f", req.VolatilityFactor)
		}
		shares = math.Floor(fixed * req.VolatilityFactor)
	default:
		return SizingResult{}, guarderrors.NewValidationError(component, op, guarderrors.ErrUnknownMethod,
			"sizing method %q", method)
	}
	if shares < 0 {
		shares = 0
	}

	positionValue := shares * req.EntryPrice
	leverage := positionValue / req.AccountBalance

	return SizingResult{
		Method:        method,
		Shares:        int64(shares),
		PositionValue: positionValue,
		Leverage:      leverage,
		Band:          ClassifyLeverage(leverage),
		RiskAmount:    riskAmount,
		RiskPerShare:  riskPerShare,
	}, nil
}

// ClassifyLeverage maps a leverage ratio to its band
func ClassifyLeverage(leverage float64) LeverageBand {
	switch {
	case leverage <= 1.0:
		return LeverageSafe
	case leverage <= 2.0:
		return LeverageModerate
	default:
		return LeverageHighRisk
	}
}
