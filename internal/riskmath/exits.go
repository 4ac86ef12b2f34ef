package riskmath

import (
	"math"

	guarderrors "github.com/ducminhle1904/trade-guard/internal/errors"
)

// ExitMethod selects how stop-loss and take-profit are placed
type ExitMethod string

const (
	ExitPercentage        ExitMethod = "percentage"
	ExitATR               ExitMethod = "atr"
	ExitSupportResistance ExitMethod = "support_resistance"
)

// Placeholder band for support_resistance until a level detector feeds real levels
const (
	supportResistanceStopPct   = 5.0
	supportResistanceTargetPct = 15.0
)

// RewardRating grades a reward/risk ratio
type RewardRating string

const (
	RatingExcellent RewardRating = "Excellent"
	RatingGood      RewardRating = "Good"
	RatingFair      RewardRating = "Fair"
	RatingPoor      RewardRating = "Poor"
)

// ExitRequest describes one exit computation
type ExitRequest struct {
	EntryPrice      float64    `json:"entry_price"`
	Action          Action     `json:"action"`
	Method          ExitMethod `json:"method"`
	StopLossPct     float64    `json:"stop_loss_pct,omitempty"`
	RiskRewardRatio float64    `json:"risk_reward_ratio,omitempty"`

	// ATR is required by the atr method; zero means absent
	ATR           float64 `json:"atr,omitempty"`
	ATRMultiplier float64 `json:"atr_multiplier,omitempty"`
}

// ExitLevels are the computed stop and target
type ExitLevels struct {
	Method          ExitMethod   `json:"method"`
	Action          Action       `json:"action"`
	EntryPrice      float64      `json:"entry_price"`
	StopLoss        float64      `json:"stop_loss"`
	TakeProfit      float64      `json:"take_profit"`
	RiskPerShare    float64      `json:"risk_per_share"`
	RewardPerShare  float64      `json:"reward_per_share"`
	RiskRewardRatio float64      `json:"risk_reward_ratio"`
	Rating          RewardRating `json:"rating"`
}

// ComputeExits places a stop-loss and take-profit around the entry
func (c *Calculator) ComputeExits(req ExitRequest) (ExitLevels, error) {
	if req.ATRMultiplier == 0 {
		req.ATRMultiplier = c.params.ATRMultiplier
	}
	return ComputeExits(req)
}

// ComputeExits places a stop-loss and take-profit around the entry.
// An unset ATRMultiplier defaults to 2.0.
func ComputeExits(req ExitRequest) (ExitLevels, error) {
	const op = "compute_exits"

	if err := requireFinite(op, map[string]float64{
		"entry price":       req.EntryPrice,
		"stop loss pct":     req.StopLossPct,
		"risk reward ratio": req.RiskRewardRatio,
		"atr":               req.ATR,
		"atr multiplier":    req.ATRMultiplier,
	}); err != nil {
		return ExitLevels{}, err
	}
	if req.EntryPrice <= 0 {
		return ExitLevels{}, guarderrors.NewValidationError(component, op, guarderrors.ErrInvalidTrade,
			"entry price %.4f must be positive", req.EntryPrice)
	}
	if !req.Action.Valid() {
		return ExitLevels{}, guarderrors.NewValidationError(component, op, guarderrors.ErrInvalidTrade,
			"action %q", req.Action)
	}

	entry := req.EntryPrice
	sign := req.Action.Sign()
	var stop, target float64

	switch req.Method {
	case ExitPercentage:
		if req.StopLossPct <= 0 || req.StopLossPct >= 100 || req.RiskRewardRatio <= 0 {
			return ExitLevels{}, guarderrors.NewValidationError(component, op, guarderrors.ErrInvalidExitParams,
				"stop loss %.4f%% and risk/reward %.4f", req.StopLossPct, req.RiskRewardRatio)
		}
		stop = entry * (1 - sign*req.StopLossPct/100)
		target = entry * (1 + sign*req.StopLossPct*req.RiskRewardRatio/100)

	case ExitATR:
		if req.ATR <= 0 {
			return ExitLevels{}, guarderrors.NewValidationError(component, op, guarderrors.ErrMissingATR,
				"atr %.4f", req.ATR)
		}
		multiplier := req.ATRMultiplier
		if multiplier == 0 {
			multiplier = DefaultParams().ATRMultiplier
		}
		if multiplier < 0 || req.RiskRewardRatio <= 0 {
			return ExitLevels{}, guarderrors.NewValidationError(component, op, guarderrors.ErrInvalidExitParams,
				"atr multiplier %.4f and risk/reward %.4f", multiplier, req.RiskRewardRatio)
		}
		distance := req.ATR * multiplier
		stop = entry - sign*distance
		target = entry + sign*distance*req.RiskRewardRatio

	case ExitSupportResistance:
		stop = entry * (1 - sign*supportResistanceStopPct/100)
		target = entry * (1 + sign*supportResistanceTargetPct/100)

	default:
		return ExitLevels{}, guarderrors.NewValidationError(component, op, guarderrors.ErrUnknownMethod,
			"exit method %q", req.Method)
	}

	if stop <= 0 || target <= 0 {
		return ExitLevels{}, guarderrors.NewValidationError(component, op, guarderrors.ErrInvalidExitParams,
			"stop %.4f and target %.4f must stay positive", stop, target)
	}

	risk := math.Abs(entry - stop)
	reward := math.Abs(target - entry)
	ratio := roundTo(reward/risk, 6)

	return ExitLevels{
		Method:          req.Method,
		Action:          req.Action,
		EntryPrice:      entry,
		StopLoss:        stop,
		TakeProfit:      target,
		RiskPerShare:    risk,
		RewardPerShare:  reward,
		RiskRewardRatio: ratio,
		Rating:          RateRiskReward(ratio),
	}, nil
}

// RateRiskReward grades a reward/risk ratio
func RateRiskReward(ratio float64) RewardRating {
	switch {
	case ratio >= 3.0:
		return RatingExcellent
	case ratio >= 2.0:
		return RatingGood
	case ratio >= 1.5:
		return RatingFair
	default:
		return RatingPoor
	}
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
