package riskmath

import (
	"math"

	guarderrors "github.com/ducminhle1904/trade-guard/internal/errors"
	"github.com/ducminhle1904/trade-guard/internal/portfolio"
)

// One-sided normal quantiles for the supported confidence levels
const (
	Z95 = 1.65
	Z99 = 2.33
)

// RiskBand is a qualitative Low/Moderate/High classification
type RiskBand string

const (
	RiskLow      RiskBand = "Low"
	RiskModerate RiskBand = "Moderate"
	RiskHigh     RiskBand = "High"
)

// PositionRisk is the per-position breakdown of a portfolio risk report
type PositionRisk struct {
	Ticker           string  `json:"ticker"`
	Quantity         int64   `json:"quantity"`
	Value            float64 `json:"value"`
	WeightPct        float64 `json:"weight_pct"`
	UnrealizedPnL    float64 `json:"unrealized_pnl"`
	UnrealizedPnLPct float64 `json:"unrealized_pnl_pct"`
}

// PortfolioRiskResult is a parametric VaR/CVaR report
type PortfolioRiskResult struct {
	TotalValue      float64        `json:"total_value"`
	Confidence      float64        `json:"confidence"`
	Z               float64        `json:"z"`
	HorizonDays     int            `json:"horizon_days"`
	DailyVolatility float64        `json:"daily_volatility"`
	VaR             float64        `json:"var"`
	CVaR            float64        `json:"cvar"`
	VaRPct          float64        `json:"var_pct"`
	Band            RiskBand       `json:"band"`
	Positions       []PositionRisk `json:"positions"`
}

// ZForConfidence maps 0.95/0.99 (or 95/99) to its z-score
func ZForConfidence(confidence float64) (float64, error) {
	switch confidence {
	case 0.95, 95:
		return Z95, nil
	case 0.99, 99:
		return Z99, nil
	default:
		return 0, guarderrors.NewValidationError(component, "portfolio_risk", guarderrors.ErrUnsupportedConfidence,
			"confidence %v (use 0.95 or 0.99)", confidence)
	}
}

// PortfolioRisk computes parametric VaR and CVaR at 95% or 99% confidence
func (c *Calculator) PortfolioRisk(snap portfolio.Snapshot, confidence float64, horizonDays int, dailyVolatility float64) (PortfolioRiskResult, error) {
	z, err := ZForConfidence(confidence)
	if err != nil {
		return PortfolioRiskResult{}, err
	}
	result, err := c.PortfolioRiskWithZ(snap, z, horizonDays, dailyVolatility)
	if err != nil {
		return PortfolioRiskResult{}, err
	}
	result.Confidence = confidence
	return result, nil
}

// PortfolioRiskWithZ is PortfolioRisk with a caller-supplied z-score
func (c *Calculator) PortfolioRiskWithZ(snap portfolio.Snapshot, z float64, horizonDays int, dailyVolatility float64) (PortfolioRiskResult, error) {
	const op = "portfolio_risk"

	if err := requireFinite(op, map[string]float64{"z": z, "daily volatility": dailyVolatility}); err != nil {
		return PortfolioRiskResult{}, err
	}
	if z <= 0 {
		return PortfolioRiskResult{}, guarderrors.NewValidationError(component, op, guarderrors.ErrUnsupportedConfidence,
			"z-score %.4f must be positive", z)
	}
	if horizonDays < 1 {
		return PortfolioRiskResult{}, guarderrors.NewValidationError(component, op, guarderrors.ErrInvalidHorizon,
			"horizon %d", horizonDays)
	}
	if dailyVolatility < 0 {
		return PortfolioRiskResult{}, guarderrors.NewValidationError(component, op, guarderrors.ErrInvalidNumber,
			"daily volatility %.6f must be non-negative", dailyVolatility)
	}

	total := snap.TotalValue().InexactFloat64()
	if total <= 0 {
		return PortfolioRiskResult{}, guarderrors.NewValidationError(component, op, guarderrors.ErrInvalidPortfolio,
			"total value %.2f", total)
	}

	varAmount := total * dailyVolatility * z * math.Sqrt(float64(horizonDays))
	cvar := varAmount * c.params.CVaRMultiplier
	varPct := varAmount / total * 100

	positions := snap.Positions()
	breakdown := make([]PositionRisk, 0, len(positions))
	for _, p := range positions {
		breakdown = append(breakdown, PositionRisk{
			Ticker:           p.Ticker,
			Quantity:         p.Quantity,
			Value:            p.Value().InexactFloat64(),
			WeightPct:        snap.Weight(p).InexactFloat64(),
			UnrealizedPnL:    p.UnrealizedPnL().InexactFloat64(),
			UnrealizedPnLPct: p.UnrealizedPnLPct().InexactFloat64(),
		})
	}

	return PortfolioRiskResult{
		TotalValue:      total,
		Z:               z,
		HorizonDays:     horizonDays,
		DailyVolatility: dailyVolatility,
		VaR:             varAmount,
		CVaR:            cvar,
		VaRPct:          varPct,
		Band:            classifyVaR(varPct),
		Positions:       breakdown,
	}, nil
}

func classifyVaR(varPct float64) RiskBand {
	switch {
	case varPct < 2:
		return RiskLow
	case varPct < 5:
		return RiskModerate
	default:
		return RiskHigh
	}
}
