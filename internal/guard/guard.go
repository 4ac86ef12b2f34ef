// Package guard wires the snapshot provider, the limit gate and the pending
// order arena into the single pre-trade entry point used by callers.
package guard

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/ducminhle1904/trade-guard/internal/alerts"
	guarderrors "github.com/ducminhle1904/trade-guard/internal/errors"
	"github.com/ducminhle1904/trade-guard/internal/logger"
	"github.com/ducminhle1904/trade-guard/internal/orders"
	"github.com/ducminhle1904/trade-guard/internal/portfolio"
	"github.com/ducminhle1904/trade-guard/internal/risk"
	"github.com/ducminhle1904/trade-guard/internal/riskmath"
	"github.com/ducminhle1904/trade-guard/internal/safety"
)

const (
	component = "guard"

	// ProviderCircuit is the breaker name protecting snapshot fetches
	ProviderCircuit = "portfolio_provider"
)

// CheckRecorder receives gate activity for the health endpoint
type CheckRecorder interface {
	RecordCheck(at time.Time)
	RecordError(msg string)
}

// Options are the Guard dependencies. Alerts and Health may be nil.
type Options struct {
	Gate       risk.Gate
	Provider   portfolio.Provider
	Breakers   *safety.CircuitBreakerManager
	Arena      *orders.Arena
	Calculator *riskmath.Calculator
	Limits     risk.Limits
	Alerts     risk.AlertSender
	Health     CheckRecorder
	Log        *logger.Logger
}

// Guard runs pre-trade checks against live portfolio snapshots
type Guard struct {
	gate     risk.Gate
	provider portfolio.Provider
	breakers *safety.CircuitBreakerManager
	arena    *orders.Arena
	calc     *riskmath.Calculator
	limits   risk.Limits
	alerts   risk.AlertSender
	health   CheckRecorder
	log      *logger.Logger

	// serializes evaluate+reserve so concurrent approvals cannot both fit
	// under the same pending exposure
	reserveMu sync.Mutex
}

// CheckResult is the outcome of Check. Order is set only when approved.
type CheckResult struct {
	Decision risk.Decision `json:"decision"`
	Order    *orders.Order `json:"order,omitempty"`
}

// New validates the options and creates a guard
func New(opts Options) (*Guard, error) {
	switch {
	case opts.Gate == nil:
		return nil, guarderrors.NewConfigurationError(component, "new", "gate is required")
	case opts.Provider == nil:
		return nil, guarderrors.NewConfigurationError(component, "new", "portfolio provider is required")
	case opts.Breakers == nil:
		return nil, guarderrors.NewConfigurationError(component, "new", "circuit breaker manager is required")
	case opts.Arena == nil:
		return nil, guarderrors.NewConfigurationError(component, "new", "order arena is required")
	}
	if err := opts.Limits.Validate(); err != nil {
		return nil, guarderrors.NewConfigurationError(component, "new", err.Error())
	}
	calc := opts.Calculator
	if calc == nil {
		calc = riskmath.NewCalculator(riskmath.DefaultParams())
	}

	return &Guard{
		gate:     opts.Gate,
		provider: opts.Provider,
		breakers: opts.Breakers,
		arena:    opts.Arena,
		calc:     calc,
		limits:   opts.Limits,
		alerts:   opts.Alerts,
		health:   opts.Health,
		log:      opts.Log,
	}, nil
}

// Limits returns the configured limits
func (g *Guard) Limits() risk.Limits {
	return g.limits
}

// Snapshot fetches the portfolio through the provider circuit breaker
func (g *Guard) Snapshot(ctx context.Context) (portfolio.Snapshot, error) {
	cb := g.breakers.GetOrCreate(ProviderCircuit)
	snap, err := safety.Execute(cb, func() (portfolio.Snapshot, error) {
		return g.provider.Snapshot(ctx)
	})
	if err != nil {
		g.recordError(fmt.Sprintf("snapshot: %v", err))
		var open *safety.CircuitOpenError
		if stderrors.As(err, &open) {
			return portfolio.Snapshot{}, err
		}
		return portfolio.Snapshot{}, guarderrors.WrapError(err, guarderrors.ErrorCategoryInfrastructure, component, "snapshot")
	}
	return snap, nil
}

// Check evaluates trade against the current portfolio. Approved trades are
// reserved in the arena until Release is called.
func (g *Guard) Check(ctx context.Context, trade risk.Trade) (CheckResult, error) {
	snap, err := g.Snapshot(ctx)
	if err != nil {
		return CheckResult{}, err
	}

	g.reserveMu.Lock()
	decision, err := g.gate.Evaluate(risk.Request{
		AccountBalance:  snap.TotalValue().InexactFloat64(),
		Positions:       snap,
		Candidate:       trade,
		Limits:          g.limits,
		PendingExposure: g.arena.Exposure(),
	})
	if err != nil {
		g.reserveMu.Unlock()
		return CheckResult{}, err
	}

	result := CheckResult{Decision: decision}
	if decision.Approved {
		order, err := g.arena.Reserve(trade)
		if err != nil {
			g.reserveMu.Unlock()
			return CheckResult{}, fmt.Errorf("reserve approved order: %w", err)
		}
		result.Order = &order
	}
	g.reserveMu.Unlock()

	if g.health != nil {
		g.health.RecordCheck(decision.EvaluatedAt)
	}
	if !decision.Approved {
		g.alertRejection(ctx, trade, decision)
	}
	return result, nil
}

// Release frees a reservation after its order filled or was cancelled
func (g *Guard) Release(id string) (orders.Order, bool) {
	order, ok := g.arena.Release(id)
	if ok {
		g.log.Info("released order %s (%s %d %s)", id, order.Trade.Action, order.Trade.Quantity, order.Trade.Ticker)
	}
	return order, ok
}

// Pending lists reserved orders, oldest first
func (g *Guard) Pending() []orders.Order {
	return g.arena.List()
}

// ExpirePending releases reservations older than maxAge
func (g *Guard) ExpirePending(maxAge time.Duration) []orders.Order {
	expired := g.arena.Expire(time.Now().Add(-maxAge))
	for _, o := range expired {
		g.log.Warning("expired pending order %s (%s %s) after %s", o.ID, o.Trade.Action, o.Trade.Ticker, maxAge)
	}
	return expired
}

// Size sizes a position. A zero balance is taken from the current portfolio
// value and a zero risk percent from the limits.
func (g *Guard) Size(ctx context.Context, req riskmath.SizingRequest) (riskmath.SizingResult, error) {
	if req.AccountBalance == 0 {
		snap, err := g.Snapshot(ctx)
		if err != nil {
			return riskmath.SizingResult{}, err
		}
		req.AccountBalance = snap.TotalValue().InexactFloat64()
	}
	if req.RiskPerTradePct == 0 {
		req.RiskPerTradePct = g.limits.RiskPerTradePct
	}
	return g.calc.SizePosition(req)
}

// PortfolioRisk computes VaR/CVaR for the current portfolio
func (g *Guard) PortfolioRisk(ctx context.Context, confidence float64, horizonDays int, dailyVolatility float64) (riskmath.PortfolioRiskResult, error) {
	snap, err := g.Snapshot(ctx)
	if err != nil {
		return riskmath.PortfolioRiskResult{}, err
	}
	return g.calc.PortfolioRisk(snap, confidence, horizonDays, dailyVolatility)
}

func (g *Guard) alertRejection(ctx context.Context, trade risk.Trade, decision risk.Decision) {
	if g.alerts == nil {
		return
	}
	metadata := map[string]string{
		"ticker":     trade.Ticker,
		"action":     string(trade.Action),
		"quantity":   fmt.Sprintf("%d", trade.Quantity),
		"price":      fmt.Sprintf("%.4f", trade.Price),
		"violations": fmt.Sprintf("%v", decision.ViolationTypes()),
	}
	_, err := g.alerts.Send(ctx, alerts.Request{
		Category: alerts.CategoryTrade,
		Priority: alerts.PriorityHigh,
		Title:    fmt.Sprintf("Trade rejected: %s %s", trade.Action, trade.Ticker),
		Message:  decision.Reason(),
		Metadata: metadata,
	})
	if err != nil {
		g.log.LogError("rejection alert", err)
	}
}

func (g *Guard) recordError(msg string) {
	if g.health != nil {
		g.health.RecordError(msg)
	}
	g.log.Error("%s", msg)
}
