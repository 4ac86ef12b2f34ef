package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ducminhle1904/trade-guard/internal/config"
	guarderrors "github.com/ducminhle1904/trade-guard/internal/errors"
	"github.com/ducminhle1904/trade-guard/internal/logger"
	"github.com/ducminhle1904/trade-guard/internal/portfolio"
	"github.com/ducminhle1904/trade-guard/internal/portfolio/storage"
	"github.com/ducminhle1904/trade-guard/internal/reporting"
	"github.com/ducminhle1904/trade-guard/internal/risk"
	"github.com/ducminhle1904/trade-guard/internal/riskmath"
	"github.com/ducminhle1904/trade-guard/internal/safety"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// newTestApp wires an app over a 100k book: 1 BTCUSDT at 60000 plus 40000 cash
func newTestApp(t *testing.T) *app {
	t.Helper()
	dir := t.TempDir()
	holdingsPath := filepath.Join(dir, "holdings.json")

	t.Setenv("KILL_SWITCH_STORE", "memory")
	t.Setenv("PORTFOLIO_FILE", holdingsPath)
	t.Setenv("PORTFOLIO_SOURCE", "file")
	t.Setenv("ALERT_WEBSOCKET", "false")
	t.Setenv("LOG_DIR", dir)

	holdings, err := storage.NewHoldingsFile(holdingsPath)
	require.NoError(t, err)
	require.NoError(t, holdings.Save(storage.Holdings{
		Positions: []portfolio.Position{{
			Ticker:       "BTCUSDT",
			Quantity:     1,
			EntryPrice:   decimal.NewFromInt(60000),
			CurrentPrice: decimal.NewFromInt(60000),
		}},
		Cash: decimal.NewFromInt(40000),
	}))

	cfg, err := config.Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	a, err := newApp(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestAppCheck(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	small := risk.Trade{Ticker: "ETHUSDT", Action: riskmath.ActionBuy, Quantity: 5, Price: 1000}
	result, err := a.guard.Check(ctx, small)
	require.NoError(t, err)
	assert.True(t, result.Decision.Approved)
	require.NotNil(t, result.Order)
	assert.Len(t, a.guard.Pending(), 1)

	big := risk.Trade{Ticker: "ETHUSDT", Action: riskmath.ActionBuy, Quantity: 50, Price: 1000}
	result, err = a.guard.Check(ctx, big)
	require.NoError(t, err)
	assert.False(t, result.Decision.Approved)
	assert.Contains(t, result.Decision.ViolationTypes(), string(risk.ViolationPositionSize))
	assert.Nil(t, result.Order)
}

func TestAppKillSwitch(t *testing.T) {
	a := newTestApp(t)

	require.NoError(t, a.killSwitch.Activate("operator halt"))
	result, err := a.guard.Check(context.Background(),
		risk.Trade{Ticker: "ETHUSDT", Action: riskmath.ActionBuy, Quantity: 1, Price: 1000})
	require.NoError(t, err)
	assert.False(t, result.Decision.Approved)
	assert.Equal(t, "halted", a.health.Check().Status)

	require.NoError(t, a.killSwitch.Deactivate())
	assert.Equal(t, "healthy", a.health.Check().Status)
}

func TestAppRegistry(t *testing.T) {
	a := newTestApp(t)

	assert.Contains(t, a.registry.Names(), "evaluate_trade")
	assert.Contains(t, a.registry.Names(), "kill_switch_status")

	result, err := a.registry.Execute(context.Background(), "drawdown",
		json.RawMessage(`{"equity": [100, 80, 90], "threshold_pct": 10}`))
	require.NoError(t, err)
	dd, ok := result.(riskmath.DrawdownResult)
	require.True(t, ok)
	assert.InDelta(t, 20.0, dd.MaxDrawdownPct, 1e-9)
}

func TestWriteReport(t *testing.T) {
	a := newTestApp(t)
	dir := t.TempDir()

	trades := []risk.Trade{
		{Ticker: "ETHUSDT", Action: riskmath.ActionBuy, Quantity: 5, Price: 1000},
		{Ticker: "ETHUSDT", Action: riskmath.ActionBuy, Quantity: 50, Price: 1000},
	}
	data, err := json.Marshal(trades)
	require.NoError(t, err)
	tradesFile := filepath.Join(dir, "trades.json")
	require.NoError(t, os.WriteFile(tradesFile, data, 0644))

	path := filepath.Join(dir, "risk.xlsx")
	require.NoError(t, writeReport(context.Background(), a, path, tradesFile, 0.95, 1, 0.02))

	fx, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer fx.Close()

	assert.Contains(t, fx.GetSheetList(), reporting.DecisionsSheet)
	assert.Contains(t, fx.GetSheetList(), reporting.PortfolioRiskSheet)

	ticker, err := fx.GetCellValue(reporting.DecisionsSheet, "B2")
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", ticker)

	first, err := fx.GetCellValue(reporting.DecisionsSheet, "G2")
	require.NoError(t, err)
	assert.Equal(t, "APPROVED", first)

	second, err := fx.GetCellValue(reporting.DecisionsSheet, "G3")
	require.NoError(t, err)
	assert.Equal(t, "REJECTED", second)
}

func TestWriteReportBadTrades(t *testing.T) {
	a := newTestApp(t)
	dir := t.TempDir()

	tradesFile := filepath.Join(dir, "trades.json")
	require.NoError(t, os.WriteFile(tradesFile, []byte("not json"), 0644))

	err := writeReport(context.Background(), a, filepath.Join(dir, "risk.xlsx"), tradesFile, 0.95, 1, 0.02)
	assert.Error(t, err)
}

func TestDescribeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "open circuit",
			err:  fmt.Errorf("check BTCUSDT: %w", &safety.CircuitOpenError{Name: "bybit", RetryAfter: time.Second}),
			want: "[WAIT: a circuit breaker is open",
		},
		{
			name: "bad input",
			err:  guarderrors.NewValidationError("riskmath", "var", guarderrors.ErrUnsupportedConfidence, "confidence %v", 0.5),
			want: "[SKIP: fix the input]",
		},
		{
			name: "bad config",
			err:  guarderrors.NewConfigurationError("bybit", "snapshot", "credentials rejected"),
			want: "[STOP: not retryable]",
		},
		{
			name: "network",
			err:  errors.New("dial tcp: connection refused"),
			want: "[RETRY]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := describeError(tt.err)
			assert.Contains(t, got, tt.err.Error())
			assert.Contains(t, got, tt.want)
		})
	}
}

func TestCloseDeliversKillSwitchAlert(t *testing.T) {
	a := newTestApp(t)

	require.NoError(t, a.killSwitch.Activate("operator halt"))
	a.Close()

	assert.GreaterOrEqual(t, a.dispatcher.History().Len(), 1)
}
