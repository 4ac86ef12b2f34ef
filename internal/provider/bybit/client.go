// Package bybit reads last prices, realized volatility and wallet cash from
// the Bybit v5 REST API and uses them to mark a position book to market.
// It never places orders.
package bybit

import (
	"context"
	"strings"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
)

// Config holds the Bybit connection settings
type Config struct {
	APIKey    string
	APISecret string
	Testnet   bool
	Category  string // spot, linear or inverse
	CashCoin  string // wallet coin counted as cash
}

// restAPI is the slice of the v5 REST surface the client reads. Responses are
// *bybit_api.ServerResponse values.
type restAPI interface {
	Tickers(ctx context.Context, params map[string]interface{}) (interface{}, error)
	Klines(ctx context.Context, params map[string]interface{}) (interface{}, error)
	Wallet(ctx context.Context, params map[string]interface{}) (interface{}, error)
}

type httpAPI struct {
	client *bybit_api.Client
}

func (h httpAPI) Tickers(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return h.client.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
}

func (h httpAPI) Klines(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return h.client.NewUtaBybitServiceWithParams(params).GetMarketKline(ctx)
}

func (h httpAPI) Wallet(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return h.client.NewUtaBybitServiceWithParams(params).GetAccountWallet(ctx)
}

// Client is a read-only Bybit client
type Client struct {
	api       restAPI
	category  string
	cashCoin  string
	testnet   bool
	hasWallet bool
}

// NewClient creates a client for mainnet or testnet
func NewClient(config Config) *Client {
	baseURL := bybit_api.MAINNET
	if config.Testnet {
		baseURL = bybit_api.TESTNET
	}

	httpClient := bybit_api.NewBybitHttpClient(
		config.APIKey,
		config.APISecret,
		bybit_api.WithBaseURL(baseURL),
	)

	c := newClient(httpAPI{client: httpClient}, config)
	c.hasWallet = config.APIKey != "" && config.APISecret != ""
	return c
}

func newClient(api restAPI, config Config) *Client {
	category := strings.ToLower(config.Category)
	if category == "" {
		category = "linear"
	}
	cashCoin := strings.ToUpper(config.CashCoin)
	if cashCoin == "" {
		cashCoin = "USDT"
	}
	return &Client{
		api:      api,
		category: category,
		cashCoin: cashCoin,
		testnet:  config.Testnet,
	}
}

// Environment returns "testnet" or "mainnet"
func (c *Client) Environment() string {
	if c.testnet {
		return "testnet"
	}
	return "mainnet"
}

// HasWallet reports whether credentials were supplied for wallet reads
func (c *Client) HasWallet() bool {
	return c.hasWallet
}
