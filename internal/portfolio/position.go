package portfolio

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Position is a non-zero holding in one ticker. Negative quantity is short.
type Position struct {
	Ticker       string          `json:"ticker"`
	Quantity     int64           `json:"quantity"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
}

// NewPosition validates and builds a position
func NewPosition(ticker string, quantity int64, entryPrice, currentPrice decimal.Decimal) (Position, error) {
	p := Position{
		Ticker:       ticker,
		Quantity:     quantity,
		EntryPrice:   entryPrice,
		CurrentPrice: currentPrice,
	}
	if err := p.Validate(); err != nil {
		return Position{}, err
	}
	return p, nil
}

// Validate checks the position invariants
func (p Position) Validate() error {
	if p.Ticker == "" {
		return fmt.Errorf("position ticker is required")
	}
	if p.Quantity == 0 {
		return fmt.Errorf("position %s: quantity must be non-zero", p.Ticker)
	}
	if !p.EntryPrice.IsPositive() {
		return fmt.Errorf("position %s: entry price must be positive", p.Ticker)
	}
	if !p.CurrentPrice.IsPositive() {
		return fmt.Errorf("position %s: current price must be positive", p.Ticker)
	}
	return nil
}

// Value is quantity × current price; negative for shorts
func (p Position) Value() decimal.Decimal {
	return p.CurrentPrice.Mul(decimal.NewFromInt(p.Quantity))
}

// Exposure is the absolute market value
func (p Position) Exposure() decimal.Decimal {
	return p.Value().Abs()
}

// UnrealizedPnL is (current − entry) × quantity
func (p Position) UnrealizedPnL() decimal.Decimal {
	return p.CurrentPrice.Sub(p.EntryPrice).Mul(decimal.NewFromInt(p.Quantity))
}

// UnrealizedPnLPct is the PnL relative to cost basis, in percent
func (p Position) UnrealizedPnLPct() decimal.Decimal {
	cost := p.EntryPrice.Mul(decimal.NewFromInt(p.Quantity)).Abs()
	if cost.IsZero() {
		return decimal.Zero
	}
	return p.UnrealizedPnL().Div(cost).Mul(decimal.NewFromInt(100))
}

// IsShort reports whether the position is short
func (p Position) IsShort() bool {
	return p.Quantity < 0
}

// ApplyFill returns the position after a signed fill. ok is false when the fill
// flattens the position, in which case the position no longer exists.
func (p Position) ApplyFill(quantity int64, price decimal.Decimal) (next Position, ok bool) {
	newQty := p.Quantity + quantity
	if newQty == 0 {
		return Position{}, false
	}

	next = p
	next.Quantity = newQty
	next.CurrentPrice = price

	sameDirection := (p.Quantity > 0) == (quantity > 0)
	flipped := (p.Quantity > 0) != (newQty > 0)
	switch {
	case sameDirection:
		// weighted average entry
		oldCost := p.EntryPrice.Mul(decimal.NewFromInt(p.Quantity))
		addCost := price.Mul(decimal.NewFromInt(quantity))
		next.EntryPrice = oldCost.Add(addCost).Div(decimal.NewFromInt(newQty))
	case flipped:
		next.EntryPrice = price
	}
	return next, true
}
