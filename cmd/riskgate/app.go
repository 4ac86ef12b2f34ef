package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ducminhle1904/trade-guard/internal/alerts"
	"github.com/ducminhle1904/trade-guard/internal/config"
	"github.com/ducminhle1904/trade-guard/internal/guard"
	"github.com/ducminhle1904/trade-guard/internal/logger"
	"github.com/ducminhle1904/trade-guard/internal/monitoring"
	"github.com/ducminhle1904/trade-guard/internal/notifications"
	"github.com/ducminhle1904/trade-guard/internal/operations"
	"github.com/ducminhle1904/trade-guard/internal/orders"
	"github.com/ducminhle1904/trade-guard/internal/portfolio"
	"github.com/ducminhle1904/trade-guard/internal/portfolio/storage"
	"github.com/ducminhle1904/trade-guard/internal/provider/bybit"
	"github.com/ducminhle1904/trade-guard/internal/risk"
	"github.com/ducminhle1904/trade-guard/internal/riskmath"
	"github.com/ducminhle1904/trade-guard/internal/safety"
	"github.com/ducminhle1904/trade-guard/internal/state"
	"github.com/redis/go-redis/v9"
)

const (
	// bybitCircuit guards exchange calls made by the Bybit provider
	bybitCircuit = "bybit"

	drainTimeout = 5 * time.Second
)

// app holds the wired risk gate components
type app struct {
	cfg  *config.Config
	log  *logger.Logger
	inst *monitoring.PrometheusInstrumentation

	killSwitch *safety.KillSwitch
	dispatcher *alerts.Dispatcher
	hub        *notifications.WebsocketHub
	breakers   *safety.CircuitBreakerManager
	calc       *riskmath.Calculator
	guard      *guard.Guard
	health     *monitoring.HealthChecker
	monitor    *risk.Monitor
	feed       *risk.EquityFeed
	registry   *operations.Registry

	exchange *bybit.Provider // nil unless PORTFOLIO_SOURCE=bybit
	rdb      *redis.Client
}

func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{
		cfg:  cfg,
		log:  log,
		inst: monitoring.NewPrometheusInstrumentation(),
	}

	store, err := a.killSwitchStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.killSwitch = safety.NewKillSwitch(store, log)
	if err := a.killSwitch.Restore(ctx); err != nil {
		// Restore leaves the switch active; keep running so operators can see why
		log.LogError("kill switch restore", err)
	}

	dispatcherConfig, err := cfg.DispatcherConfig()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.dispatcher = alerts.NewDispatcher(dispatcherConfig, a.inst, log)
	a.dispatcher.AddChannel(notifications.NewLogChannel(log))
	if cfg.Notifications.TelegramToken != "" {
		a.dispatcher.AddChannel(notifications.NewTelegramChannel(cfg.Notifications.TelegramToken, cfg.Notifications.TelegramChatID))
	}
	if cfg.Notifications.Websocket {
		a.hub = notifications.NewWebsocketHub(log)
		a.dispatcher.AddChannel(a.hub)
	}

	killSwitchAlert := alerts.KillSwitchObserver(a.dispatcher)
	a.killSwitch.SetObserver(func(s safety.KillSwitchState) {
		a.inst.KillSwitchChanged(s.Active)
		killSwitchAlert(s)
	})
	if active, _ := a.killSwitch.IsActive(); active {
		a.inst.KillSwitchChanged(true)
	}

	breakerAlert := alerts.CircuitBreakerObserver(a.dispatcher)
	a.breakers = safety.NewCircuitBreakerManager(cfg.Breaker, func(name string, from, to safety.CircuitBreakerState) {
		a.inst.BreakerTransition(name, from.String(), to.String())
		breakerAlert(name, from, to)
	})

	provider, err := a.portfolioProvider()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.calc = riskmath.NewCalculator(cfg.RiskMath)
	a.health = monitoring.NewHealthChecker(a.killSwitch, a.breakers)
	gate := risk.NewLimitGate(a.killSwitch, a.inst, log)

	a.guard, err = guard.New(guard.Options{
		Gate:       gate,
		Provider:   provider,
		Breakers:   a.breakers,
		Arena:      orders.NewArena(a.inst),
		Calculator: a.calc,
		Limits:     cfg.Limits,
		Alerts:     a.dispatcher,
		Health:     a.health,
		Log:        log,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	var volatility func() float64
	if a.exchange != nil {
		volatility = a.exchange.VolatilityIndex
	}
	a.feed = risk.NewEquityFeed(volatility)
	a.monitor = risk.NewMonitor(
		risk.MonitorConfigFromLimits(cfg.Limits, cfg.KillSwitch.VolatilityCeiling),
		a.killSwitch, a.dispatcher, log)

	a.registry = operations.NewRegistry(a.inst)
	if err := operations.RegisterDefaults(a.registry, operations.Deps{
		Calculator: a.calc,
		Gate:       gate,
		KillSwitch: a.killSwitch,
		Limits:     cfg.Limits,
	}); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) killSwitchStore(ctx context.Context) (safety.KillSwitchStore, error) {
	switch a.cfg.KillSwitch.Store {
	case "file":
		return state.NewFileStore(a.cfg.KillSwitch.FilePath)
	case "redis":
		rdb, err := state.NewRedisClient(ctx, state.RedisConfig{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		a.rdb = rdb
		return state.NewRedisStore(rdb, a.cfg.KillSwitch.RedisKey), nil
	default:
		return nil, nil
	}
}

func (a *app) portfolioProvider() (portfolio.Provider, error) {
	holdings, err := storage.NewHoldingsFile(a.cfg.Portfolio.HoldingsFile)
	if err != nil {
		return nil, fmt.Errorf("holdings file: %w", err)
	}
	if a.cfg.Portfolio.Source != "bybit" {
		return holdings, nil
	}

	client := bybit.NewClient(bybit.Config{
		APIKey:    a.cfg.Bybit.APIKey,
		APISecret: a.cfg.Bybit.Secret,
		Testnet:   a.cfg.Bybit.Testnet,
		Category:  a.cfg.Bybit.Category,
	})
	providerConfig := bybit.ProviderConfig{
		WalletCash:     a.cfg.Bybit.WalletCash,
		VolatilityDays: a.cfg.Bybit.VolatilityDays,
	}
	if len(a.cfg.Bybit.Symbols) > 0 {
		providerConfig.VolatilitySymbol = a.cfg.Bybit.Symbols[0]
	}
	a.exchange = bybit.NewProvider(client, holdings, a.breakers.GetOrCreate(bybitCircuit), providerConfig, a.log)
	a.log.Info("marking holdings to Bybit %s prices (%s)", client.Environment(), a.cfg.Bybit.Category)
	return a.exchange, nil
}

// dailyVolatility samples the exchange benchmark, falling back to fallback
// when no exchange is configured or the sample fails
func (a *app) dailyVolatility(ctx context.Context, fallback float64) float64 {
	if a.exchange == nil {
		return fallback
	}
	vol, err := a.exchange.DailyVolatility(ctx)
	if err != nil {
		a.log.LogWarning("volatility", "using %.4f: %v", fallback, err)
		return fallback
	}
	return vol
}

// Close delivers in-flight hook alerts and releases external connections
func (a *app) Close() {
	if a.dispatcher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		if err := a.dispatcher.Drain(ctx); err != nil {
			a.log.LogWarning("shutdown", "undelivered alerts dropped: %v", err)
		}
		cancel()
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.LogError("redis close", err)
		}
	}
}
