package bybit

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// MaxKlines is the page size limit of the kline endpoint
const MaxKlines = 1000

// LatestPrices returns the last traded price per symbol. The tickers endpoint
// is queried once for the whole category; symbols it does not list are an error.
func (c *Client) LatestPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	params := map[string]interface{}{"category": c.category}
	if len(symbols) == 1 {
		params["symbol"] = symbols[0]
	}

	response, err := c.api.Tickers(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("bybit tickers: %w", err)
	}

	var result struct {
		List []struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := decodeResult("tickers", response, &result); err != nil {
		return nil, err
	}

	all := make(map[string]decimal.Decimal, len(result.List))
	for _, t := range result.List {
		price, err := decimal.NewFromString(t.LastPrice)
		if err != nil || !price.IsPositive() {
			continue
		}
		all[t.Symbol] = price
	}

	prices := make(map[string]decimal.Decimal, len(symbols))
	for _, s := range symbols {
		price, ok := all[s]
		if !ok {
			return nil, &APIError{Operation: "tickers", Code: ErrCodeSymbolNotFound, Message: "no price for " + s}
		}
		prices[s] = price
	}
	return prices, nil
}

// DailyCloses returns up to days daily closes, oldest first
func (c *Client) DailyCloses(ctx context.Context, symbol string, days int) ([]float64, error) {
	if days < 2 || days > MaxKlines {
		return nil, fmt.Errorf("bybit klines: days must be in [2, %d], got %d", MaxKlines, days)
	}

	response, err := c.api.Klines(ctx, map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
		"interval": "D",
		"limit":    days,
	})
	if err != nil {
		return nil, fmt.Errorf("bybit klines: %w", err)
	}

	var result struct {
		List [][]string `json:"list"`
	}
	if err := decodeResult("klines", response, &result); err != nil {
		return nil, err
	}

	// newest first: [startTime, open, high, low, close, volume, turnover]
	closes := make([]float64, 0, len(result.List))
	for i := len(result.List) - 1; i >= 0; i-- {
		row := result.List[i]
		if len(row) < 5 {
			continue
		}
		v, err := strconv.ParseFloat(row[4], 64)
		if err != nil || v <= 0 {
			continue
		}
		closes = append(closes, v)
	}
	return closes, nil
}

// DailyVolatility is the sample standard deviation of daily log returns over
// the last days closes, as a fraction (0.02 = 2%).
func (c *Client) DailyVolatility(ctx context.Context, symbol string, days int) (float64, error) {
	closes, err := c.DailyCloses(ctx, symbol, days)
	if err != nil {
		return 0, err
	}
	return RealizedVolatility(closes)
}

// RealizedVolatility computes the sample standard deviation of log returns
func RealizedVolatility(closes []float64) (float64, error) {
	if len(closes) < 3 {
		return 0, fmt.Errorf("need at least 3 closes for volatility, got %d", len(closes))
	}

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	return math.Sqrt(variance), nil
}
