package risk

import (
	"fmt"
	"strings"
	"time"

	"github.com/ducminhle1904/trade-guard/internal/portfolio"
	"github.com/ducminhle1904/trade-guard/internal/riskmath"
)

// Limits is the immutable limits configuration shared by all evaluations.
// Percentages are on the 0–100 scale.
type Limits struct {
	MaxPositionSizePct    float64 `json:"max_position_size_pct"`
	MaxTotalExposurePct   float64 `json:"max_total_exposure_pct"`
	MaxLeverage           float64 `json:"max_leverage"`
	MaxDailyLossPct       float64 `json:"max_daily_loss_pct"`
	MaxDrawdownPct        float64 `json:"max_drawdown_pct"`
	RiskPerTradePct       float64 `json:"risk_per_trade_pct"`
	ConcentrationLimitPct float64 `json:"concentration_limit_pct"` // 0 disables the check
}

// DefaultLimits returns conservative defaults
func DefaultLimits() Limits {
	return Limits{
		MaxPositionSizePct:    10,
		MaxTotalExposurePct:   100,
		MaxLeverage:           1.0,
		MaxDailyLossPct:       3,
		MaxDrawdownPct:        8,
		RiskPerTradePct:       1,
		ConcentrationLimitPct: 25,
	}
}

// Validate checks every limit is usable. The gate refuses to evaluate against
// invalid limits rather than treating a zero limit as "no limit".
func (l Limits) Validate() error {
	checks := []struct {
		name  string
		value float64
		max   float64
	}{
		{"max position size", l.MaxPositionSizePct, 100},
		{"max daily loss", l.MaxDailyLossPct, 100},
		{"max drawdown", l.MaxDrawdownPct, 100},
		{"risk per trade", l.RiskPerTradePct, 100},
	}
	for _, c := range checks {
		if !(c.value > 0 && c.value <= c.max) {
			return fmt.Errorf("%s must be in (0, %.0f], got %v", c.name, c.max, c.value)
		}
	}
	if !(l.MaxTotalExposurePct > 0) {
		return fmt.Errorf("max total exposure must be positive, got %v", l.MaxTotalExposurePct)
	}
	if !(l.MaxLeverage > 0) {
		return fmt.Errorf("max leverage must be positive, got %v", l.MaxLeverage)
	}
	if l.ConcentrationLimitPct < 0 || l.ConcentrationLimitPct > 100 {
		return fmt.Errorf("concentration limit must be in [0, 100], got %v", l.ConcentrationLimitPct)
	}
	return nil
}

// Trade is a candidate order
type Trade struct {
	Ticker   string          `json:"ticker"`
	Action   riskmath.Action `json:"action"`
	Quantity int64           `json:"quantity"`
	Price    float64         `json:"price"`
}

// Value is the trade notional
func (t Trade) Value() float64 {
	return float64(t.Quantity) * t.Price
}

// ViolationType identifies which limit was breached
type ViolationType string

const (
	ViolationKillSwitch    ViolationType = "kill_switch"
	ViolationPositionSize  ViolationType = "position_size"
	ViolationTotalExposure ViolationType = "total_exposure"
	ViolationLeverage      ViolationType = "leverage"
	ViolationConcentration ViolationType = "concentration"

	// Monitor thresholds
	ViolationDailyLoss  ViolationType = "daily_loss"
	ViolationDrawdown   ViolationType = "drawdown"
	ViolationVolatility ViolationType = "volatility"
)

// Violation is one breached limit
type Violation struct {
	Type    ViolationType `json:"type"`
	Message string        `json:"message"`
	Current float64       `json:"current"`
	Limit   float64       `json:"limit"`
}

// Request is everything the gate needs for one evaluation
type Request struct {
	AccountBalance float64            `json:"account_balance"`
	Positions      portfolio.Snapshot `json:"-"`
	Candidate      Trade              `json:"candidate"`
	Limits         Limits             `json:"limits"`

	// PendingExposure is the notional of approved, unfilled orders
	PendingExposure float64 `json:"pending_exposure"`
}

// Metrics are the post-trade figures the gate compared against the limits
type Metrics struct {
	CandidateValue    float64 `json:"candidate_value"`
	PositionPct       float64 `json:"position_pct"`
	CurrentExposure   float64 `json:"current_exposure"`
	ResultingExposure float64 `json:"resulting_exposure"`
	ExposurePct       float64 `json:"exposure_pct"`
	Leverage          float64 `json:"leverage"`
	ConcentrationPct  float64 `json:"concentration_pct"`
}

// Decision is the gate outcome. Rejections are data, never errors.
type Decision struct {
	Approved    bool        `json:"approved"`
	Violations  []Violation `json:"violations"`
	Metrics     Metrics     `json:"metrics"`
	EvaluatedAt time.Time   `json:"evaluated_at"`
}

// Reason joins the violation messages
func (d Decision) Reason() string {
	msgs := make([]string, 0, len(d.Violations))
	for _, v := range d.Violations {
		msgs = append(msgs, v.Message)
	}
	return strings.Join(msgs, "; ")
}

// ViolationTypes lists the breached limit types in order
func (d Decision) ViolationTypes() []string {
	types := make([]string, 0, len(d.Violations))
	for _, v := range d.Violations {
		types = append(types, string(v.Type))
	}
	return types
}
