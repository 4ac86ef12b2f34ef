package risk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/ducminhle1904/trade-guard/internal/alerts"
	guarderrors "github.com/ducminhle1904/trade-guard/internal/errors"
	"github.com/ducminhle1904/trade-guard/internal/logger"
	"github.com/ducminhle1904/trade-guard/internal/riskmath"
)

// Reading is one sample from the monitoring feed
type Reading struct {
	DailyPnLPct     float64   `json:"daily_pnl_pct"` // negative for a loss
	DrawdownPct     float64   `json:"drawdown_pct"`
	VolatilityIndex float64   `json:"volatility_index"`
	At              time.Time `json:"at"`
}

// Feed supplies monitoring readings
type Feed interface {
	Reading(ctx context.Context) (Reading, error)
}

// MonitorConfig holds the thresholds that halt trading
type MonitorConfig struct {
	MaxDailyLossPct   float64
	MaxDrawdownPct    float64
	VolatilityCeiling float64 // 0 disables the volatility trigger

	// MaxFeedFailures consecutive feed errors halt trading; 0 means 3
	MaxFeedFailures int
}

const defaultMaxFeedFailures = 3

// MonitorConfigFromLimits builds a monitor config from the gate limits
func MonitorConfigFromLimits(limits Limits, volatilityCeiling float64) MonitorConfig {
	return MonitorConfig{
		MaxDailyLossPct:   limits.MaxDailyLossPct,
		MaxDrawdownPct:    limits.MaxDrawdownPct,
		VolatilityCeiling: volatilityCeiling,
		MaxFeedFailures:   defaultMaxFeedFailures,
	}
}

// Monitor watches daily P&L, drawdown and a volatility index, and activates
// the kill switch when a threshold is crossed. It never deactivates the switch.
type Monitor struct {
	config     MonitorConfig
	killSwitch KillSwitch
	alerts     AlertSender
	log        *logger.Logger

	mu          sync.Mutex
	lastReading Reading
	triggers    int
}

// NewMonitor creates a threshold monitor. alerts may be nil.
func NewMonitor(config MonitorConfig, killSwitch KillSwitch, alertSender AlertSender, log *logger.Logger) *Monitor {
	return &Monitor{
		config:     config,
		killSwitch: killSwitch,
		alerts:     alertSender,
		log:        log,
	}
}

// Observe checks one reading and returns the breached thresholds
func (m *Monitor) Observe(ctx context.Context, r Reading) ([]Violation, error) {
	m.mu.Lock()
	m.lastReading = r
	m.mu.Unlock()

	var violations []Violation

	if loss := -r.DailyPnLPct; m.config.MaxDailyLossPct > 0 && loss >= m.config.MaxDailyLossPct {
		violations = append(violations, Violation{
			Type:    ViolationDailyLoss,
			Message: fmt.Sprintf("daily loss %.2f%% reached limit %.2f%%", loss, m.config.MaxDailyLossPct),
			Current: loss,
			Limit:   m.config.MaxDailyLossPct,
		})
	}
	if m.config.MaxDrawdownPct > 0 && r.DrawdownPct >= m.config.MaxDrawdownPct {
		violations = append(violations, Violation{
			Type:    ViolationDrawdown,
			Message: fmt.Sprintf("drawdown %.2f%% reached limit %.2f%%", r.DrawdownPct, m.config.MaxDrawdownPct),
			Current: r.DrawdownPct,
			Limit:   m.config.MaxDrawdownPct,
		})
	}
	if m.config.VolatilityCeiling > 0 && r.VolatilityIndex >= m.config.VolatilityCeiling {
		violations = append(violations, Violation{
			Type:    ViolationVolatility,
			Message: fmt.Sprintf("volatility index %.2f reached ceiling %.2f", r.VolatilityIndex, m.config.VolatilityCeiling),
			Current: r.VolatilityIndex,
			Limit:   m.config.VolatilityCeiling,
		})
	}

	if len(violations) == 0 {
		return nil, nil
	}

	msgs := make([]string, 0, len(violations))
	for _, v := range violations {
		msgs = append(msgs, v.Message)
	}
	metadata := map[string]string{
		"daily_pnl_pct":    fmt.Sprintf("%.2f", r.DailyPnLPct),
		"drawdown_pct":     fmt.Sprintf("%.2f", r.DrawdownPct),
		"volatility_index": fmt.Sprintf("%.2f", r.VolatilityIndex),
	}
	err := m.trip(ctx, strings.Join(msgs, "; "), metadata)
	return violations, err
}

// trip activates the kill switch once and raises a critical alert. It is a
// no-op while the switch is already active.
func (m *Monitor) trip(ctx context.Context, reason string, metadata map[string]string) error {
	if active, _ := m.killSwitch.IsActive(); active {
		return nil
	}

	m.mu.Lock()
	m.triggers++
	m.mu.Unlock()

	err := m.killSwitch.Activate(reason)
	m.log.Risk("kill switch activated by risk monitor: %s", reason)

	if m.alerts != nil {
		if _, alertErr := m.alerts.Send(ctx, alerts.Request{
			Category: alerts.CategoryRisk,
			Priority: alerts.PriorityCritical,
			Title:    "Kill switch activated",
			Message:  reason,
			Metadata: metadata,
		}); alertErr != nil {
			m.log.LogError("kill switch alert", alertErr)
		}
	}
	return err
}

// Run polls feed every interval until ctx is cancelled. Feed errors are logged;
// MaxFeedFailures of them in a row activate the kill switch, since thresholds
// can no longer be checked.
func (m *Monitor) Run(ctx context.Context, feed Feed, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	maxFailures := m.config.MaxFeedFailures
	if maxFailures <= 0 {
		maxFailures = defaultMaxFeedFailures
	}
	failures := 0

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r, err := feed.Reading(ctx)
			if err != nil {
				failures++
				m.log.LogWarning("risk monitor", "feed reading failed (%d/%d): %v", failures, maxFailures, err)
				if failures >= maxFailures {
					reason := fmt.Sprintf("risk feed unavailable after %d readings: %v", failures, err)
					if err := m.trip(ctx, reason, map[string]string{"feed_error": err.Error()}); err != nil {
						m.log.LogError("risk monitor", err)
					}
				}
				continue
			}
			failures = 0
			if _, err := m.Observe(ctx, r); err != nil {
				m.log.LogError("risk monitor", err)
			}
		}
	}
}

// LastReading returns the most recent observed reading
func (m *Monitor) LastReading() Reading {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReading
}

// Triggers returns how many times the monitor activated the kill switch
func (m *Monitor) Triggers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.triggers
}

const maxEquityPoints = 10000

// EquityFeed derives readings from recorded account equity. Daily P&L is
// measured against the first value recorded on the current calendar day.
type EquityFeed struct {
	mu         sync.Mutex
	equity     []float64
	dayStart   float64
	day        time.Time
	volatility func() float64
	now        func() time.Time
}

// NewEquityFeed creates an equity feed. volatility may be nil.
func NewEquityFeed(volatility func() float64) *EquityFeed {
	return &EquityFeed{
		volatility: volatility,
		now:        time.Now,
	}
}

// Record appends an equity value
func (f *EquityFeed) Record(equity float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if !today.Equal(f.day) {
		f.day = today
		f.dayStart = equity
	}

	f.equity = append(f.equity, equity)
	if len(f.equity) > maxEquityPoints {
		f.equity = append(f.equity[:0], f.equity[len(f.equity)-maxEquityPoints:]...)
	}
}

// Reading implements Feed
func (f *EquityFeed) Reading(ctx context.Context) (Reading, error) {
	f.mu.Lock()
	equity := append([]float64(nil), f.equity...)
	dayStart := f.dayStart
	now := f.now()
	f.mu.Unlock()

	if len(equity) < 2 {
		return Reading{At: now}, nil
	}

	r := Reading{At: now}
	dd, err := riskmath.MaxDrawdown(equity, 0)
	switch {
	case err == nil:
		r.DrawdownPct = dd.CurrentDrawdownPct
	case errors.Is(err, guarderrors.ErrInvalidEquity):
		r.DrawdownPct = wipeoutDrawdown(equity)
	default:
		return Reading{}, err
	}

	if dayStart > 0 {
		r.DailyPnLPct = (equity[len(equity)-1] - dayStart) / dayStart * 100
	}
	if f.volatility != nil {
		r.VolatilityIndex = f.volatility()
	}
	return r, nil
}

// wipeoutDrawdown is the current drawdown of a curve holding zero or negative
// equity, measured from the highest value and capped at 100%
func wipeoutDrawdown(equity []float64) float64 {
	peak := equity[0]
	for _, v := range equity[1:] {
		peak = math.Max(peak, v)
	}
	last := equity[len(equity)-1]
	if peak <= 0 || last <= 0 {
		return 100
	}
	return math.Min((peak-last)/peak*100, 100)
}
