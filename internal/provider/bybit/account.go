package bybit

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Cash returns the unified account wallet balance of the configured cash coin
func (c *Client) Cash(ctx context.Context) (decimal.Decimal, error) {
	response, err := c.api.Wallet(ctx, map[string]interface{}{
		"accountType": "UNIFIED",
		"coin":        c.cashCoin,
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("bybit wallet: %w", err)
	}

	var result struct {
		List []struct {
			AccountType string `json:"accountType"`
			Coin        []struct {
				Coin          string `json:"coin"`
				WalletBalance string `json:"walletBalance"`
			} `json:"coin"`
		} `json:"list"`
	}
	if err := decodeResult("wallet", response, &result); err != nil {
		return decimal.Zero, err
	}

	for _, account := range result.List {
		for _, coin := range account.Coin {
			if coin.Coin != c.cashCoin {
				continue
			}
			balance, err := decimal.NewFromString(coin.WalletBalance)
			if err != nil {
				return decimal.Zero, fmt.Errorf("bybit wallet: bad balance %q: %w", coin.WalletBalance, err)
			}
			return balance, nil
		}
	}
	return decimal.Zero, fmt.Errorf("bybit wallet: coin %s not found in account", c.cashCoin)
}
