package riskmath

import (
	"errors"
	"testing"

	guarderrors "github.com/ducminhle1904/trade-guard/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeExits(t *testing.T) {
	tests := []struct {
		name       string
		req        ExitRequest
		wantStop   float64
		wantTarget float64
		wantRating RewardRating
	}{
		{
			name:       "percentage buy",
			req:        ExitRequest{EntryPrice: 100, Action: ActionBuy, Method: ExitPercentage, StopLossPct: 2, RiskRewardRatio: 2},
			wantStop:   98,
			wantTarget: 104,
			wantRating: RatingGood,
		},
		{
			name:       "percentage sell",
			req:        ExitRequest{EntryPrice: 100, Action: ActionSell, Method: ExitPercentage, StopLossPct: 2, RiskRewardRatio: 2},
			wantStop:   102,
			wantTarget: 96,
			wantRating: RatingGood,
		},
		{
			name:       "atr buy",
			req:        ExitRequest{EntryPrice: 100, Action: ActionBuy, Method: ExitATR, ATR: 1.5, ATRMultiplier: 2, RiskRewardRatio: 3},
			wantStop:   97,
			wantTarget: 109,
			wantRating: RatingExcellent,
		},
		{
			name:       "atr sell",
			req:        ExitRequest{EntryPrice: 100, Action: ActionSell, Method: ExitATR, ATR: 1.5, ATRMultiplier: 2, RiskRewardRatio: 1.5},
			wantStop:   103,
			wantTarget: 95.5,
			wantRating: RatingFair,
		},
		{
			name:       "support resistance buy",
			req:        ExitRequest{EntryPrice: 100, Action: ActionBuy, Method: ExitSupportResistance},
			wantStop:   95,
			wantTarget: 115,
			wantRating: RatingExcellent,
		},
		{
			name:       "support resistance sell",
			req:        ExitRequest{EntryPrice: 100, Action: ActionSell, Method: ExitSupportResistance},
			wantStop:   105,
			wantTarget: 85,
			wantRating: RatingExcellent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeExits(tt.req)
			require.NoError(t, err)
			assert.InDelta(t, tt.wantStop, got.StopLoss, 1e-9)
			assert.InDelta(t, tt.wantTarget, got.TakeProfit, 1e-9)
			assert.Equal(t, tt.wantRating, got.Rating)
		})
	}
}

func TestComputeExitsRoundTrip(t *testing.T) {
	for _, rr := range []float64{0.5, 1, 1.5, 2, 2.7, 3, 4.25} {
		for _, action := range []Action{ActionBuy, ActionSell} {
			for _, req := range []ExitRequest{
				{EntryPrice: 123.45, Action: action, Method: ExitPercentage, StopLossPct: 3, RiskRewardRatio: rr},
				{EntryPrice: 123.45, Action: action, Method: ExitATR, ATR: 2.2, ATRMultiplier: 1.5, RiskRewardRatio: rr},
			} {
				levels, err := ComputeExits(req)
				require.NoError(t, err)

				var risk, reward float64
				if action == ActionBuy {
					risk = levels.EntryPrice - levels.StopLoss
					reward = levels.TakeProfit - levels.EntryPrice
				} else {
					risk = levels.StopLoss - levels.EntryPrice
					reward = levels.EntryPrice - levels.TakeProfit
				}
				assert.Greater(t, risk, 0.0)
				assert.InDelta(t, rr, reward/risk, 1e-6, "%s %s rr=%v", req.Method, action, rr)
				assert.InDelta(t, rr, levels.RiskRewardRatio, 1e-6)
			}
		}
	}
}

func TestComputeExitsValidation(t *testing.T) {
	tests := []struct {
		name string
		req  ExitRequest
		want error
	}{
		{"missing atr", ExitRequest{EntryPrice: 100, Action: ActionBuy, Method: ExitATR, RiskRewardRatio: 2}, guarderrors.ErrMissingATR},
		{"bad stop pct", ExitRequest{EntryPrice: 100, Action: ActionBuy, Method: ExitPercentage, StopLossPct: 0, RiskRewardRatio: 2}, guarderrors.ErrInvalidExitParams},
		{"sell target below zero", ExitRequest{EntryPrice: 100, Action: ActionSell, Method: ExitPercentage, StopLossPct: 50, RiskRewardRatio: 3}, guarderrors.ErrInvalidExitParams},
		{"unknown method", ExitRequest{EntryPrice: 100, Action: ActionBuy, Method: "fib"}, guarderrors.ErrUnknownMethod},
		{"bad action", ExitRequest{EntryPrice: 100, Action: "HOLD", Method: ExitSupportResistance}, guarderrors.ErrInvalidTrade},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeExits(tt.req)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestCalculatorExitsUseDefaultMultiplier(t *testing.T) {
	calc := NewCalculator(Params{ATRMultiplier: 3})
	levels, err := calc.ComputeExits(ExitRequest{EntryPrice: 100, Action: ActionBuy, Method: ExitATR, ATR: 1, RiskRewardRatio: 2})
	require.NoError(t, err)
	assert.InDelta(t, 97, levels.StopLoss, 1e-9)
	assert.InDelta(t, 106, levels.TakeProfit, 1e-9)
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction(" buy ")
	require.NoError(t, err)
	assert.Equal(t, ActionBuy, a)

	_, err = ParseAction("hold")
	assert.Error(t, err)
}
