package risk

import (
	"fmt"
	"math"
	"time"

	guarderrors "github.com/ducminhle1904/trade-guard/internal/errors"
	"github.com/ducminhle1904/trade-guard/internal/logger"
	"github.com/ducminhle1904/trade-guard/internal/monitoring"
	"github.com/ducminhle1904/trade-guard/internal/safety"
)

const component = "risk_gate"

// LimitGate is the pre-trade check. Apart from the kill switch read it is pure,
// so one instance can serve any number of concurrent evaluations.
type LimitGate struct {
	killSwitch KillSwitchReader
	validator  *safety.Validator
	inst       monitoring.Instrumentation
	log        *logger.Logger
	now        func() time.Time
}

// NewLimitGate creates a gate. inst may be nil. A nil killSwitch rejects every
// trade, so an unwired switch can never let one through.
func NewLimitGate(killSwitch KillSwitchReader, inst monitoring.Instrumentation, log *logger.Logger) *LimitGate {
	return &LimitGate{
		killSwitch: killSwitch,
		validator:  safety.NewValidator(),
		inst:       monitoring.OrNop(inst),
		log:        log,
		now:        time.Now,
	}
}

// Evaluate checks a candidate trade against the limits. The kill switch is
// consulted first and vetoes everything else. All limit checks run so the
// caller sees every breach in one pass.
func (g *LimitGate) Evaluate(req Request) (Decision, error) {
	start := time.Now()
	decision, err := g.evaluate(req)
	if err != nil {
		return Decision{}, err
	}

	g.inst.GateEvaluated(decision.Approved, decision.ViolationTypes(), time.Since(start))
	if !decision.Approved {
		g.log.Risk("REJECTED %s %d %s @ %.4f: %s", req.Candidate.Action, req.Candidate.Quantity,
			req.Candidate.Ticker, req.Candidate.Price, decision.Reason())
	}
	return decision, nil
}

func (g *LimitGate) evaluate(req Request) (Decision, error) {
	decision := Decision{Violations: []Violation{}, EvaluatedAt: g.now()}

	active, reason := true, "not configured"
	if g.killSwitch != nil {
		active, reason = g.killSwitch.IsActive()
	}
	if active {
		decision.Violations = append(decision.Violations, Violation{
			Type:    ViolationKillSwitch,
			Message: fmt.Sprintf("kill switch: %s", reason),
		})
		return decision, nil
	}

	if err := g.validate(req); err != nil {
		return Decision{}, err
	}

	limits := req.Limits
	balance := req.AccountBalance
	trade := req.Candidate
	value := trade.Value()

	currentExposure := req.Positions.GrossExposure().InexactFloat64()
	resulting := currentExposure + trade.Action.Sign()*value
	if resulting < 0 {
		resulting = 0
	}
	resulting += req.PendingExposure

	m := Metrics{
		CandidateValue:    value,
		PositionPct:       value / balance * 100,
		CurrentExposure:   currentExposure,
		ResultingExposure: resulting,
		ExposurePct:       resulting / balance * 100,
		Leverage:          resulting / balance,
	}

	if m.PositionPct > limits.MaxPositionSizePct {
		decision.Violations = append(decision.Violations, Violation{
			Type:    ViolationPositionSize,
			Message: fmt.Sprintf("position size %.2f%% exceeds limit %.2f%%", m.PositionPct, limits.MaxPositionSizePct),
			Current: m.PositionPct,
			Limit:   limits.MaxPositionSizePct,
		})
	}
	if m.ExposurePct > limits.MaxTotalExposurePct {
		decision.Violations = append(decision.Violations, Violation{
			Type:    ViolationTotalExposure,
			Message: fmt.Sprintf("total exposure %.2f%% exceeds limit %.2f%%", m.ExposurePct, limits.MaxTotalExposurePct),
			Current: m.ExposurePct,
			Limit:   limits.MaxTotalExposurePct,
		})
	}
	if m.Leverage > limits.MaxLeverage {
		decision.Violations = append(decision.Violations, Violation{
			Type:    ViolationLeverage,
			Message: fmt.Sprintf("leverage %.2fx exceeds limit %.2fx", m.Leverage, limits.MaxLeverage),
			Current: m.Leverage,
			Limit:   limits.MaxLeverage,
		})
	}

	if limits.ConcentrationLimitPct > 0 {
		// resulting single-ticker value relative to the account balance
		tickerValue := trade.Action.Sign() * value
		if existing, ok := req.Positions.Position(trade.Ticker); ok {
			tickerValue += existing.Value().InexactFloat64()
		}
		m.ConcentrationPct = math.Abs(tickerValue) / balance * 100
		if m.ConcentrationPct > limits.ConcentrationLimitPct {
			decision.Violations = append(decision.Violations, Violation{
				Type: ViolationConcentration,
				Message: fmt.Sprintf("%s concentration %.2f%% exceeds limit %.2f%%",
					trade.Ticker, m.ConcentrationPct, limits.ConcentrationLimitPct),
				Current: m.ConcentrationPct,
				Limit:   limits.ConcentrationLimitPct,
			})
		}
	}

	decision.Metrics = m
	decision.Approved = len(decision.Violations) == 0
	return decision, nil
}

func (g *LimitGate) validate(req Request) error {
	const op = "evaluate"

	if r := g.validator.ValidateBalance(req.AccountBalance); !r.Valid {
		return guarderrors.NewValidationError(component, op, guarderrors.ErrInvalidBalance, "%s", r.Message)
	}

	trade := req.Candidate
	if !trade.Action.Valid() {
		return guarderrors.NewValidationError(component, op, guarderrors.ErrInvalidTrade, "action %q", trade.Action)
	}
	for _, r := range []safety.ValidationResult{
		g.validator.ValidateTicker(trade.Ticker),
		g.validator.ValidateQuantity(trade.Quantity, trade.Ticker),
		g.validator.ValidatePrice(trade.Price, trade.Ticker),
	} {
		if !r.Valid {
			return guarderrors.NewValidationError(component, op, guarderrors.ErrInvalidTrade, "%s", r.Message).
				WithContext("code", r.Code)
		}
	}

	if math.IsNaN(req.PendingExposure) || math.IsInf(req.PendingExposure, 0) || req.PendingExposure < 0 {
		return guarderrors.NewValidationError(component, op, guarderrors.ErrInvalidTrade,
			"pending exposure %v must be a non-negative number", req.PendingExposure)
	}

	if err := req.Limits.Validate(); err != nil {
		return guarderrors.NewValidationError(component, op, guarderrors.ErrInvalidLimits, "%v", err)
	}
	return nil
}
