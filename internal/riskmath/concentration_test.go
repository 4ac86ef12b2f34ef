package riskmath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcentrationHHI(t *testing.T) {
	weights := []Weight{
		{Ticker: "AAPL", WeightPct: 55},
		{Ticker: "MSFT", WeightPct: 22.5},
		{Ticker: "GOOG", WeightPct: 22.5},
	}

	res, err := ConcentrationRisk(weights, 40, 0, nil)
	require.NoError(t, err)

	assert.InDelta(t, 4037.5, res.HHI, 1e-9)
	assert.Equal(t, RiskHigh, res.Band)
	assert.Equal(t, "AAPL", res.LargestTicker)
	assert.False(t, res.SectorsChecked)

	require.Len(t, res.Violations, 1)
	assert.Equal(t, ScopeTicker, res.Violations[0].Scope)
	assert.Equal(t, "AAPL", res.Violations[0].Name)
	assert.InDelta(t, 15, res.Violations[0].ExcessPct, 1e-9)
}

func TestConcentrationBands(t *testing.T) {
	tests := []struct {
		name    string
		weights []float64
		want    RiskBand
	}{
		{"ten equal", []float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 10}, RiskLow},
		{"five equal", []float64{20, 20, 20, 20, 20}, RiskModerate},
		{"two equal", []float64{50, 50}, RiskHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ws []Weight
			for i, w := range tt.weights {
				ws = append(ws, Weight{Ticker: string(rune('A' + i)), WeightPct: w})
			}
			res, err := ConcentrationRisk(ws, 0, 0, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Band)
			assert.Empty(t, res.Violations)
		})
	}
}

func TestConcentrationSectors(t *testing.T) {
	weights := []Weight{
		{Ticker: "AAPL", WeightPct: 30},
		{Ticker: "MSFT", WeightPct: 25},
		{Ticker: "XOM", WeightPct: 10},
		{Ticker: "UNKNOWN", WeightPct: 35},
	}
	sectors := SectorMap{"AAPL": "tech", "MSFT": "tech", "XOM": "energy"}

	res, err := ConcentrationRisk(weights, 40, 50, sectors)
	require.NoError(t, err)

	assert.True(t, res.SectorsChecked)
	assert.InDelta(t, 55, res.SectorWeights["tech"], 1e-9)
	assert.InDelta(t, 10, res.SectorWeights["energy"], 1e-9)
	assert.Len(t, res.SectorWeights, 2, "unknown tickers are not assigned a sector")

	require.Len(t, res.Violations, 1)
	assert.Equal(t, ScopeSector, res.Violations[0].Scope)
	assert.Equal(t, "tech", res.Violations[0].Name)
	assert.InDelta(t, 5, res.Violations[0].ExcessPct, 1e-9)
}

func TestWeightsFromSnapshot(t *testing.T) {
	snap := testSnapshot(t)
	ws := Weights(snap)
	require.Len(t, ws, 2)
	assert.InDelta(t, 20, ws[0].WeightPct, 1e-9)
	assert.InDelta(t, 20, ws[1].WeightPct, 1e-9)
}
