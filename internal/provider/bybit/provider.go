package bybit

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	guarderrors "github.com/ducminhle1904/trade-guard/internal/errors"
	"github.com/ducminhle1904/trade-guard/internal/logger"
	"github.com/ducminhle1904/trade-guard/internal/portfolio"
	"github.com/ducminhle1904/trade-guard/internal/safety"
	"github.com/shopspring/decimal"
)

const component = "bybit_provider"

// ProviderConfig tunes how the book is marked and volatility is sampled
type ProviderConfig struct {
	// WalletCash replaces the book's cash with the exchange wallet balance
	WalletCash bool

	VolatilitySymbol string        // benchmark symbol, BTCUSDT by default
	VolatilityDays   int           // closes per sample, 30 by default
	VolatilityTTL    time.Duration // cache lifetime, 1h by default
}

// Provider marks a position book to Bybit last prices. Every exchange call
// goes through the breaker so an unreachable exchange fails fast.
type Provider struct {
	client   *Client
	holdings portfolio.Provider
	breaker  *safety.CircuitBreaker
	config   ProviderConfig
	log      *logger.Logger
	now      func() time.Time

	mu           sync.Mutex
	dailyVol     float64
	volSampledAt time.Time
}

var _ portfolio.Provider = (*Provider)(nil)

// NewProvider creates a provider over holdings
func NewProvider(client *Client, holdings portfolio.Provider, breaker *safety.CircuitBreaker, config ProviderConfig, log *logger.Logger) *Provider {
	if config.VolatilitySymbol == "" {
		config.VolatilitySymbol = "BTCUSDT"
	}
	if config.VolatilityDays == 0 {
		config.VolatilityDays = 30
	}
	if config.VolatilityTTL == 0 {
		config.VolatilityTTL = time.Hour
	}
	return &Provider{
		client:   client,
		holdings: holdings,
		breaker:  breaker,
		config:   config,
		log:      log,
		now:      time.Now,
	}
}

// Snapshot loads the book, reprices every position and optionally swaps in
// the wallet cash balance
func (p *Provider) Snapshot(ctx context.Context) (portfolio.Snapshot, error) {
	book, err := p.holdings.Snapshot(ctx)
	if err != nil {
		return portfolio.Snapshot{}, guarderrors.WrapError(err, guarderrors.ErrorCategoryStorage, component, "holdings")
	}

	positions := book.Positions()
	if len(positions) > 0 {
		symbols := make([]string, 0, len(positions))
		for _, pos := range positions {
			symbols = append(symbols, pos.Ticker)
		}
		prices, err := safety.Execute(p.breaker, func() (map[string]decimal.Decimal, error) {
			return p.client.LatestPrices(ctx, symbols)
		})
		if err != nil {
			return portfolio.Snapshot{}, classify(err, "prices")
		}
		book = book.WithPrices(prices)
	}

	if !p.config.WalletCash {
		return book, nil
	}

	cash, err := safety.Execute(p.breaker, func() (decimal.Decimal, error) {
		return p.client.Cash(ctx)
	})
	if err != nil {
		return portfolio.Snapshot{}, classify(err, "cash")
	}
	return portfolio.NewSnapshot(book.Positions(), cash)
}

// DailyVolatility returns the benchmark's realized daily volatility,
// resampling when the cached value is older than the TTL
func (p *Provider) DailyVolatility(ctx context.Context) (float64, error) {
	p.mu.Lock()
	if !p.volSampledAt.IsZero() && p.now().Sub(p.volSampledAt) < p.config.VolatilityTTL {
		vol := p.dailyVol
		p.mu.Unlock()
		return vol, nil
	}
	p.mu.Unlock()

	vol, err := safety.Execute(p.breaker, func() (float64, error) {
		return p.client.DailyVolatility(ctx, p.config.VolatilitySymbol, p.config.VolatilityDays)
	})
	if err != nil {
		return 0, classify(err, "volatility")
	}

	p.mu.Lock()
	p.dailyVol = vol
	p.volSampledAt = p.now()
	p.mu.Unlock()

	p.log.Info("%s daily volatility %.4f (%.1f%% annualized) over %d days",
		p.config.VolatilitySymbol, vol, AnnualizedPct(vol), p.config.VolatilityDays)
	return vol, nil
}

// VolatilityIndex is the last sampled daily volatility annualized over 365
// days, in percent. Zero until the first successful sample.
func (p *Provider) VolatilityIndex() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return AnnualizedPct(p.dailyVol)
}

// AnnualizedPct converts a daily volatility fraction to an annual percentage
func AnnualizedPct(daily float64) float64 {
	return daily * math.Sqrt(365) * 100
}

func classify(err error, operation string) error {
	if errors.Is(err, guarderrors.ErrCircuitOpen) {
		return err
	}
	if IsAuthenticationError(err) {
		return guarderrors.WrapError(err, guarderrors.ErrorCategoryConfiguration, component, operation).WithRetryable(false)
	}
	if IsRateLimitError(err) {
		return guarderrors.WrapError(err, guarderrors.ErrorCategoryTemporary, component, operation)
	}
	return guarderrors.WrapError(err, guarderrors.ErrorCategoryInfrastructure, component, operation)
}
