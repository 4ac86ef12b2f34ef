package risk

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	guarderrors "github.com/ducminhle1904/trade-guard/internal/errors"
	"github.com/ducminhle1904/trade-guard/internal/logger"
	"github.com/ducminhle1904/trade-guard/internal/monitoring"
	"github.com/ducminhle1904/trade-guard/internal/portfolio"
	"github.com/ducminhle1904/trade-guard/internal/riskmath"
	"github.com/ducminhle1904/trade-guard/internal/safety"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 100 AAPL @ 150 plus 85k cash: total value 100k, gross exposure 15k
func testPositions() portfolio.Snapshot {
	return portfolio.MustSnapshot([]portfolio.Position{
		{
			Ticker:       "AAPL",
			Quantity:     100,
			EntryPrice:   decimal.NewFromInt(140),
			CurrentPrice: decimal.NewFromInt(150),
		},
	}, decimal.NewFromInt(85000))
}

func buy(ticker string, qty int64, price float64) Trade {
	return Trade{Ticker: ticker, Action: riskmath.ActionBuy, Quantity: qty, Price: price}
}

func request(trade Trade, limits Limits) Request {
	return Request{
		AccountBalance: 100000,
		Positions:      testPositions(),
		Candidate:      trade,
		Limits:         limits,
	}
}

// offSwitch is a kill switch that never halts
type offSwitch struct{}

func (offSwitch) IsActive() (bool, string) { return false, "" }

type recordingInst struct {
	monitoring.Nop
	mu        sync.Mutex
	decisions []bool
}

func (r *recordingInst) GateEvaluated(approved bool, _ []string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, approved)
}

func TestLimitGateApprovesWithinLimits(t *testing.T) {
	inst := &recordingInst{}
	gate := NewLimitGate(offSwitch{}, inst, logger.Nop())

	decision, err := gate.Evaluate(request(buy("MSFT", 10, 300), DefaultLimits()))
	require.NoError(t, err)

	assert.True(t, decision.Approved)
	assert.Empty(t, decision.Violations)
	assert.InDelta(t, 3000, decision.Metrics.CandidateValue, 1e-9)
	assert.InDelta(t, 3, decision.Metrics.PositionPct, 1e-9)
	assert.InDelta(t, 18000, decision.Metrics.ResultingExposure, 1e-9)
	assert.InDelta(t, 0.18, decision.Metrics.Leverage, 1e-9)
	assert.Equal(t, []bool{true}, inst.decisions)
}

func TestLimitGateViolations(t *testing.T) {
	tests := []struct {
		name   string
		trade  Trade
		limits func(l *Limits)
		want   []ViolationType
	}{
		{
			name:  "position size",
			trade: buy("MSFT", 40, 300),
			want:  []ViolationType{ViolationPositionSize},
		},
		{
			name:   "total exposure",
			trade:  buy("MSFT", 20, 300),
			limits: func(l *Limits) { l.MaxTotalExposurePct = 20; l.MaxLeverage = 2 },
			want:   []ViolationType{ViolationTotalExposure},
		},
		{
			name:   "leverage",
			trade:  buy("MSFT", 20, 300),
			limits: func(l *Limits) { l.MaxLeverage = 0.2; l.MaxTotalExposurePct = 200 },
			want:   []ViolationType{ViolationLeverage},
		},
		{
			name:   "concentration includes existing position",
			trade:  buy("AAPL", 70, 150),
			limits: func(l *Limits) { l.MaxPositionSizePct = 20 },
			want:   []ViolationType{ViolationConcentration},
		},
		{
			name:   "concentration disabled",
			trade:  buy("AAPL", 70, 150),
			limits: func(l *Limits) { l.MaxPositionSizePct = 20; l.ConcentrationLimitPct = 0 },
			want:   nil,
		},
		{
			name:   "all breaches reported in one pass",
			trade:  buy("AAPL", 700, 150),
			limits: func(l *Limits) { l.MaxLeverage = 5 },
			want: []ViolationType{
				ViolationPositionSize,
				ViolationTotalExposure,
				ViolationConcentration,
			},
		},
	}

	gate := NewLimitGate(offSwitch{}, nil, logger.Nop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limits := DefaultLimits()
			if tt.limits != nil {
				tt.limits(&limits)
			}
			decision, err := gate.Evaluate(request(tt.trade, limits))
			require.NoError(t, err)

			var got []ViolationType
			for _, v := range decision.Violations {
				got = append(got, v.Type)
				assert.Greater(t, v.Current, v.Limit)
				assert.NotEmpty(t, v.Message)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len(tt.want) == 0, decision.Approved)
		})
	}
}

func TestLimitGateSellFloorsExposureAtZero(t *testing.T) {
	gate := NewLimitGate(offSwitch{}, nil, logger.Nop())
	limits := DefaultLimits()
	limits.MaxPositionSizePct = 50

	trade := Trade{Ticker: "AAPL", Action: riskmath.ActionSell, Quantity: 200, Price: 150}
	decision, err := gate.Evaluate(request(trade, limits))
	require.NoError(t, err)

	assert.True(t, decision.Approved)
	assert.Zero(t, decision.Metrics.ResultingExposure)
	assert.InDelta(t, 15, decision.Metrics.ConcentrationPct, 1e-9, "flipped to a 15k short")
}

func TestLimitGateCountsPendingExposure(t *testing.T) {
	gate := NewLimitGate(offSwitch{}, nil, logger.Nop())
	req := request(buy("MSFT", 10, 300), DefaultLimits())

	decision, err := gate.Evaluate(req)
	require.NoError(t, err)
	require.True(t, decision.Approved)

	req.PendingExposure = 90000
	decision, err = gate.Evaluate(req)
	require.NoError(t, err)
	assert.False(t, decision.Approved)
	assert.Equal(t, []string{"total_exposure", "leverage"}, decision.ViolationTypes())
	assert.InDelta(t, 108000, decision.Metrics.ResultingExposure, 1e-9)
}

func TestLimitGateValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *Request)
		want   error
	}{
		{"zero balance", func(r *Request) { r.AccountBalance = 0 }, guarderrors.ErrInvalidBalance},
		{"nan balance", func(r *Request) { r.AccountBalance = math.NaN() }, guarderrors.ErrInvalidBalance},
		{"zero quantity", func(r *Request) { r.Candidate.Quantity = 0 }, guarderrors.ErrInvalidTrade},
		{"negative price", func(r *Request) { r.Candidate.Price = -1 }, guarderrors.ErrInvalidTrade},
		{"empty ticker", func(r *Request) { r.Candidate.Ticker = "" }, guarderrors.ErrInvalidTrade},
		{"unknown action", func(r *Request) { r.Candidate.Action = "HOLD" }, guarderrors.ErrInvalidTrade},
		{"negative pending", func(r *Request) { r.PendingExposure = -5 }, guarderrors.ErrInvalidTrade},
		{"zero position limit", func(r *Request) { r.Limits.MaxPositionSizePct = 0 }, guarderrors.ErrInvalidLimits},
		{"concentration above 100", func(r *Request) { r.Limits.ConcentrationLimitPct = 150 }, guarderrors.ErrInvalidLimits},
	}

	gate := NewLimitGate(offSwitch{}, nil, logger.Nop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request(buy("MSFT", 10, 300), DefaultLimits())
			tt.mutate(&req)

			_, err := gate.Evaluate(req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.True(t, guarderrors.IsValidation(err))
		})
	}
}

func TestKillSwitchVetoesEveryEvaluation(t *testing.T) {
	ks := safety.NewKillSwitch(nil, logger.Nop())
	gate := NewLimitGate(ks, nil, logger.Nop())
	req := request(buy("MSFT", 10, 300), DefaultLimits())

	require.NoError(t, ks.Activate("daily loss"))
	for i := 0; i < 20; i++ {
		decision, err := gate.Evaluate(req)
		require.NoError(t, err)
		assert.False(t, decision.Approved)
		require.Len(t, decision.Violations, 1)
		assert.Equal(t, ViolationKillSwitch, decision.Violations[0].Type)
		assert.Equal(t, "kill switch: daily loss", decision.Reason())
	}

	// the veto comes before input validation
	bad := req
	bad.AccountBalance = -1
	decision, err := gate.Evaluate(bad)
	require.NoError(t, err)
	assert.False(t, decision.Approved)

	require.NoError(t, ks.Deactivate())
	decision, err = gate.Evaluate(req)
	require.NoError(t, err)
	assert.True(t, decision.Approved)
}

func TestKillSwitchConcurrentActivation(t *testing.T) {
	ks := safety.NewKillSwitch(nil, logger.Nop())
	gate := NewLimitGate(ks, nil, logger.Nop())
	req := request(buy("MSFT", 10, 300), DefaultLimits())

	require.NoError(t, ks.Activate("drawdown"))

	var wg sync.WaitGroup
	var mu sync.Mutex
	approved := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := gate.Evaluate(req)
			if err == nil && d.Approved {
				mu.Lock()
				approved++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, approved)
}

type brokenStore struct{}

func (brokenStore) Load(context.Context) (safety.KillSwitchState, error) {
	return safety.KillSwitchState{}, errors.New("redis: connection refused")
}

func (brokenStore) Save(context.Context, safety.KillSwitchState) error {
	return errors.New("redis: connection refused")
}

func TestUnreadableKillSwitchRejects(t *testing.T) {
	ks := safety.NewKillSwitch(brokenStore{}, logger.Nop())
	gate := NewLimitGate(ks, nil, logger.Nop())

	decision, err := gate.Evaluate(request(buy("MSFT", 1, 300), DefaultLimits()))
	require.NoError(t, err)
	assert.False(t, decision.Approved)
	assert.Equal(t, ViolationKillSwitch, decision.Violations[0].Type)
	assert.Contains(t, decision.Reason(), "state unavailable")
}

func TestLimitsValidate(t *testing.T) {
	assert.NoError(t, DefaultLimits().Validate())

	l := DefaultLimits()
	l.MaxLeverage = math.NaN()
	assert.Error(t, l.Validate())

	l = DefaultLimits()
	l.RiskPerTradePct = 101
	assert.Error(t, l.Validate())
}

func TestNilKillSwitchRejects(t *testing.T) {
	gate := NewLimitGate(nil, nil, logger.Nop())

	decision, err := gate.Evaluate(request(buy("MSFT", 1, 300), DefaultLimits()))
	require.NoError(t, err)
	assert.False(t, decision.Approved)
	require.Len(t, decision.Violations, 1)
	assert.Equal(t, ViolationKillSwitch, decision.Violations[0].Type)
	assert.Equal(t, "kill switch: not configured", decision.Reason())
}
