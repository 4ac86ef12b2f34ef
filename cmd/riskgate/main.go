package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ducminhle1904/trade-guard/internal/config"
	guarderrors "github.com/ducminhle1904/trade-guard/internal/errors"
	"github.com/ducminhle1904/trade-guard/internal/logger"
	"github.com/ducminhle1904/trade-guard/internal/operations"
	"github.com/ducminhle1904/trade-guard/internal/reporting"
	"github.com/ducminhle1904/trade-guard/internal/risk"
	"github.com/ducminhle1904/trade-guard/internal/riskmath"
	"github.com/joho/godotenv"
)

const version = "1.0.0"

func main() {
	var (
		envFile    = flag.String("env", ".env", "Environment file path")
		op         = flag.String("op", "", "Run one operation (see -ops) and print the result")
		params     = flag.String("params", "{}", "JSON parameters for -op")
		listOps    = flag.Bool("ops", false, "List the available operations")
		check      = flag.String("check", "", `Check one trade against the live portfolio, e.g. '{"ticker":"BTCUSDT","action":"BUY","quantity":1,"price":65000}'`)
		reportPath = flag.String("report", "", "Write an Excel risk report to this path")
		tradesFile = flag.String("trades", "", "JSON array of trades to evaluate into the report")
		confidence = flag.Float64("confidence", 0.95, "VaR confidence for -report (0.95 or 0.99)")
		horizon    = flag.Int("horizon", 1, "VaR horizon in days for -report")
		volatility = flag.Float64("volatility", 0.02, "Daily volatility when no exchange sample is available")
		kill       = flag.String("kill", "", "Activate the kill switch with this reason")
		resume     = flag.Bool("resume", false, "Deactivate the kill switch")
		serve      = flag.Bool("serve", false, "Run the risk monitor and serve /metrics, /health and /ws")
		orderTTL   = flag.Duration("order-ttl", 15*time.Minute, "Drop pending orders older than this while serving")
		showVer    = flag.Bool("version", false, "Print the version and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Printf("riskgate %s\n", version)
		return
	}

	if err := loadEnvFile(*envFile); err != nil {
		log.Printf("Warning: %v, using process environment", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	lg, err := logger.New(cfg.LogDir, "riskgate")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer lg.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, lg)
	if err != nil {
		lg.LogError("startup", err)
		log.Fatalf("Failed to start: %v", err)
	}
	defer a.Close()

	switch {
	case *kill != "":
		err = a.killSwitch.Activate(*kill)
		if err == nil {
			fmt.Printf("Kill switch ACTIVE: %s\n", *kill)
		}
	case *resume:
		err = a.killSwitch.Deactivate()
		if err == nil {
			fmt.Println("Kill switch cleared, trading resumed")
		}
	case *listOps:
		printOperations(a.registry)
	case *op != "":
		err = runOperation(ctx, a.registry, *op, *params)
	case *check != "":
		err = runCheck(ctx, a, *check)
	case *reportPath != "":
		err = writeReport(ctx, a, *reportPath, *tradesFile, *confidence, *horizon, *volatility)
	case *serve:
		err = runServer(ctx, a, *orderTTL)
	default:
		flag.Usage()
		printOperations(a.registry)
	}

	if err != nil {
		lg.LogError("riskgate", err)
		a.Close()
		lg.Close()
		log.Fatalf("Error: %s", describeError(err))
	}
}

// describeError appends the suggested recovery action to err
func describeError(err error) string {
	ge := guarderrors.CategorizeError(err, "riskgate", "run")
	action := ge.GetRecoveryAction()
	switch {
	case guarderrors.IsValidation(ge):
		return fmt.Sprintf("%v [%s: fix the input]", err, action)
	case action == guarderrors.RecoveryActionWait:
		return fmt.Sprintf("%v [%s: a circuit breaker is open, retry after its cooldown]", err, action)
	case ge.IsRetryable():
		return fmt.Sprintf("%v [%s]", err, action)
	default:
		return fmt.Sprintf("%v [%s: not retryable]", err, action)
	}
}

// loadEnvFile loads environment variables from a file when it exists
func loadEnvFile(envFile string) error {
	if _, err := os.Stat(envFile); err == nil {
		return godotenv.Load(envFile)
	}
	return fmt.Errorf("env file %s not found", envFile)
}

func printOperations(r *operations.Registry) {
	ops := make([]reporting.OperationInfo, 0, len(r.Names()))
	for _, name := range r.Names() {
		o, _ := r.Get(name)
		ops = append(ops, reporting.OperationInfo{Name: o.Name(), Description: o.Description()})
	}
	reporting.RenderOperations(os.Stdout, ops)
}

func runOperation(ctx context.Context, r *operations.Registry, name, params string) error {
	result, err := r.Execute(ctx, name, json.RawMessage(params))
	if err != nil {
		return err
	}
	return reporting.RenderResult(os.Stdout, name, result)
}

func runCheck(ctx context.Context, a *app, raw string) error {
	var trade risk.Trade
	if err := json.Unmarshal([]byte(raw), &trade); err != nil {
		return fmt.Errorf("parse trade: %w", err)
	}
	result, err := a.guard.Check(ctx, trade)
	if err != nil {
		return err
	}
	return reporting.RenderResult(os.Stdout, "check "+trade.Ticker, result)
}

func writeReport(ctx context.Context, a *app, path, tradesFile string, confidence float64, horizon int, fallbackVol float64) error {
	report := reporting.Report{
		GeneratedAt: time.Now(),
		Limits:      a.guard.Limits(),
	}

	if tradesFile != "" {
		data, err := os.ReadFile(tradesFile)
		if err != nil {
			return fmt.Errorf("read trades: %w", err)
		}
		var trades []risk.Trade
		if err := json.Unmarshal(data, &trades); err != nil {
			return fmt.Errorf("parse trades: %w", err)
		}
		for _, trade := range trades {
			result, err := a.guard.Check(ctx, trade)
			if err != nil {
				return fmt.Errorf("check %s: %w", trade.Ticker, err)
			}
			record := reporting.DecisionRecord{Trade: trade, Decision: result.Decision}
			if result.Order != nil {
				record.OrderID = result.Order.ID
			}
			report.Decisions = append(report.Decisions, record)
		}
	}

	snap, err := a.guard.Snapshot(ctx)
	if err != nil {
		return err
	}
	vol := a.dailyVolatility(ctx, fallbackVol)
	portfolioRisk, err := a.calc.PortfolioRisk(snap, confidence, horizon, vol)
	if err != nil {
		return err
	}
	report.PortfolioRisk = &portfolioRisk

	concentration, err := riskmath.ConcentrationRisk(riskmath.Weights(snap), report.Limits.ConcentrationLimitPct, 0, nil)
	if err != nil {
		return err
	}
	report.Concentration = &concentration

	// an unreadable store already reports the switch as active
	report.KillSwitch, _ = a.killSwitch.Status()
	report.Breakers = a.breakers.AllStats()
	report.Alerts = a.dispatcher.History().Recent(a.dispatcher.History().Len())

	if err := reporting.NewExcelReporter().Write(report, path); err != nil {
		return err
	}
	a.log.Info("risk report written to %s", path)
	fmt.Printf("Report written to %s\n", path)
	return nil
}

func runServer(ctx context.Context, a *app, orderTTL time.Duration) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.inst.Handler())
	mux.Handle("/health", a.health)
	if a.hub != nil {
		mux.Handle("/ws", a.hub)
		go func() {
			if err := a.hub.Run(ctx); err != nil {
				a.log.LogError("websocket hub", err)
			}
		}()
	}

	server := &http.Server{
		Addr:              a.cfg.Monitoring.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.log.Info("monitoring server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.LogError("monitoring server", err)
		}
	}()

	go a.sampleEquity(ctx, orderTTL)
	go func() {
		if err := a.monitor.Run(ctx, a.feed, a.cfg.KillSwitch.MonitorInterval); err != nil {
			a.log.LogError("risk monitor", err)
		}
	}()

	fmt.Printf("riskgate %s serving on %s\n", version, server.Addr)
	<-ctx.Done()
	fmt.Println("\nShutdown signal received...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	a.log.Info("stopped")
	return nil
}

// sampleEquity records portfolio value into the monitor feed and drops stale
// pending orders, once per monitor interval
func (a *app) sampleEquity(ctx context.Context, orderTTL time.Duration) {
	ticker := time.NewTicker(a.cfg.KillSwitch.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := a.guard.Snapshot(ctx)
			if err != nil {
				a.log.LogWarning("equity sample", "%v", err)
			} else {
				equity, _ := snap.TotalValue().Float64()
				a.feed.Record(equity)
			}
			if a.exchange != nil {
				// refreshes the cached volatility index read by the feed
				a.dailyVolatility(ctx, 0)
			}
			if expired := a.guard.ExpirePending(orderTTL); len(expired) > 0 {
				a.log.Info("expired %d pending orders", len(expired))
			}
		}
	}
}
