package operations

import (
	"context"
	"encoding/json"

	"github.com/ducminhle1904/trade-guard/internal/monitoring"
	"github.com/ducminhle1904/trade-guard/internal/portfolio"
	"github.com/ducminhle1904/trade-guard/internal/risk"
	"github.com/ducminhle1904/trade-guard/internal/riskmath"
	"github.com/ducminhle1904/trade-guard/internal/safety"
	"github.com/shopspring/decimal"
)

// Deps are the shared components the default operations run on
type Deps struct {
	Calculator *riskmath.Calculator
	Gate       risk.Gate
	KillSwitch monitoring.KillSwitchStatus
	Limits     risk.Limits
}

// RegisterDefaults registers the built-in operations
func RegisterDefaults(r *Registry, deps Deps) error {
	calc := deps.Calculator
	if calc == nil {
		calc = riskmath.NewCalculator(riskmath.DefaultParams())
	}
	ops := []Operation{
		&sizePosition{calc: calc},
		&computeExits{calc: calc},
		&portfolioRisk{calc: calc},
		concentration{},
		drawdown{},
	}
	if deps.Gate != nil {
		ops = append(ops, &evaluateTrade{gate: deps.Gate, limits: deps.Limits})
	}
	if deps.KillSwitch != nil {
		ops = append(ops, &killSwitchStatus{ks: deps.KillSwitch})
	}
	for _, op := range ops {
		if err := r.Register(op); err != nil {
			return err
		}
	}
	return nil
}

// portfolioParams is the JSON form of a portfolio snapshot
type portfolioParams struct {
	Positions []portfolio.Position `json:"positions"`
	Cash      decimal.Decimal      `json:"cash"`
}

func (p portfolioParams) snapshot() (portfolio.Snapshot, error) {
	return portfolio.NewSnapshot(p.Positions, p.Cash)
}

type sizePosition struct{ calc *riskmath.Calculator }

func (*sizePosition) Name() string { return "size_position" }

func (*sizePosition) Description() string {
	return "Share count risking at most risk_per_trade_pct of the balance"
}

func (o *sizePosition) Execute(_ context.Context, params json.RawMessage) (any, error) {
	var req riskmath.SizingRequest
	if err := decode(o.Name(), params, &req); err != nil {
		return nil, err
	}
	return o.calc.SizePosition(req)
}

type computeExits struct{ calc *riskmath.Calculator }

func (*computeExits) Name() string { return "compute_exits" }

func (*computeExits) Description() string {
	return "Stop-loss and take-profit levels with reward/risk rating"
}

func (o *computeExits) Execute(_ context.Context, params json.RawMessage) (any, error) {
	var req riskmath.ExitRequest
	if err := decode(o.Name(), params, &req); err != nil {
		return nil, err
	}
	return o.calc.ComputeExits(req)
}

type portfolioRisk struct{ calc *riskmath.Calculator }

func (*portfolioRisk) Name() string { return "portfolio_risk" }

func (*portfolioRisk) Description() string {
	return "Parametric VaR and CVaR at 95% or 99% confidence"
}

func (o *portfolioRisk) Execute(_ context.Context, params json.RawMessage) (any, error) {
	p := struct {
		portfolioParams
		Confidence      float64 `json:"confidence"`
		HorizonDays     int     `json:"horizon_days"`
		DailyVolatility float64 `json:"daily_volatility"`
	}{Confidence: 0.95, HorizonDays: 1}
	if err := decode(o.Name(), params, &p); err != nil {
		return nil, err
	}
	snap, err := p.snapshot()
	if err != nil {
		return nil, err
	}
	return o.calc.PortfolioRisk(snap, p.Confidence, p.HorizonDays, p.DailyVolatility)
}

type concentration struct{}

func (concentration) Name() string { return "concentration" }

func (concentration) Description() string {
	return "Herfindahl index and single-ticker and sector weight breaches"
}

func (o concentration) Execute(_ context.Context, params json.RawMessage) (any, error) {
	var p struct {
		portfolioParams
		MaxSingleWeightPct float64           `json:"max_single_weight_pct"`
		MaxSectorWeightPct float64           `json:"max_sector_weight_pct"`
		Sectors            map[string]string `json:"sectors"`
	}
	if err := decode(o.Name(), params, &p); err != nil {
		return nil, err
	}
	snap, err := p.snapshot()
	if err != nil {
		return nil, err
	}

	var sectors riskmath.SectorLookup
	if len(p.Sectors) > 0 {
		sectors = riskmath.SectorMap(p.Sectors)
	}
	return riskmath.ConcentrationRisk(riskmath.Weights(snap), p.MaxSingleWeightPct, p.MaxSectorWeightPct, sectors)
}

type drawdown struct{}

func (drawdown) Name() string { return "drawdown" }

func (drawdown) Description() string {
	return "Maximum and current drawdown of an equity curve"
}

func (o drawdown) Execute(_ context.Context, params json.RawMessage) (any, error) {
	var p struct {
		Equity       []float64 `json:"equity"`
		ThresholdPct float64   `json:"threshold_pct"`
	}
	if err := decode(o.Name(), params, &p); err != nil {
		return nil, err
	}
	return riskmath.MaxDrawdown(p.Equity, p.ThresholdPct)
}

type evaluateTrade struct {
	gate   risk.Gate
	limits risk.Limits
}

func (*evaluateTrade) Name() string { return "evaluate_trade" }

func (*evaluateTrade) Description() string {
	return "Pre-trade limit check; limits default to the configured ones"
}

func (o *evaluateTrade) Execute(_ context.Context, params json.RawMessage) (any, error) {
	var p struct {
		portfolioParams
		AccountBalance  float64      `json:"account_balance"`
		Candidate       risk.Trade   `json:"candidate"`
		Limits          *risk.Limits `json:"limits"`
		PendingExposure float64      `json:"pending_exposure"`
	}
	if err := decode(o.Name(), params, &p); err != nil {
		return nil, err
	}
	snap, err := p.snapshot()
	if err != nil {
		return nil, err
	}

	limits := o.limits
	if p.Limits != nil {
		limits = *p.Limits
	}
	return o.gate.Evaluate(risk.Request{
		AccountBalance:  p.AccountBalance,
		Positions:       snap,
		Candidate:       p.Candidate,
		Limits:          limits,
		PendingExposure: p.PendingExposure,
	})
}

type killSwitchStatus struct{ ks monitoring.KillSwitchStatus }

func (*killSwitchStatus) Name() string { return "kill_switch_status" }

func (*killSwitchStatus) Description() string {
	return "Whether trading is halted, and why"
}

// KillSwitchReport is the kill_switch_status result
type KillSwitchReport struct {
	safety.KillSwitchState
	Error string `json:"error,omitempty"`
}

func (o *killSwitchStatus) Execute(_ context.Context, params json.RawMessage) (any, error) {
	var p struct{}
	if err := decode(o.Name(), params, &p); err != nil {
		return nil, err
	}
	state, err := o.ks.Status()
	report := KillSwitchReport{KillSwitchState: state}
	if err != nil {
		report.Error = err.Error()
	}
	return report, nil
}
