package portfolio

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is an immutable view of the portfolio taken for one risk check
type Snapshot struct {
	positions []Position
	cash      decimal.Decimal
	takenAt   time.Time
}

// Provider returns a fresh snapshot on demand
type Provider interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// ProviderFunc adapts a function to Provider
type ProviderFunc func(ctx context.Context) (Snapshot, error)

// Snapshot implements Provider
func (f ProviderFunc) Snapshot(ctx context.Context) (Snapshot, error) {
	return f(ctx)
}

// NewSnapshot copies positions, dropping flat ones, and validates the rest
func NewSnapshot(positions []Position, cash decimal.Decimal) (Snapshot, error) {
	if cash.IsNegative() {
		return Snapshot{}, fmt.Errorf("cash must be non-negative, got %s", cash)
	}

	kept := make([]Position, 0, len(positions))
	seen := make(map[string]bool, len(positions))
	for _, p := range positions {
		if p.Quantity == 0 {
			continue
		}
		if err := p.Validate(); err != nil {
			return Snapshot{}, err
		}
		if seen[p.Ticker] {
			return Snapshot{}, fmt.Errorf("duplicate position for ticker %s", p.Ticker)
		}
		seen[p.Ticker] = true
		kept = append(kept, p)
	}

	return Snapshot{
		positions: kept,
		cash:      cash,
		takenAt:   time.Now(),
	}, nil
}

// MustSnapshot is NewSnapshot for fixtures; it panics on invalid input
func MustSnapshot(positions []Position, cash decimal.Decimal) Snapshot {
	s, err := NewSnapshot(positions, cash)
	if err != nil {
		panic(err)
	}
	return s
}

// Positions returns a copy of the positions in their original order
func (s Snapshot) Positions() []Position {
	out := make([]Position, len(s.positions))
	copy(out, s.positions)
	return out
}

// Len returns the number of positions
func (s Snapshot) Len() int {
	return len(s.positions)
}

// Cash returns the cash balance
func (s Snapshot) Cash() decimal.Decimal {
	return s.cash
}

// TakenAt returns when the snapshot was built
func (s Snapshot) TakenAt() time.Time {
	return s.takenAt
}

// Position looks up a position by ticker
func (s Snapshot) Position(ticker string) (Position, bool) {
	for _, p := range s.positions {
		if p.Ticker == ticker {
			return p, true
		}
	}
	return Position{}, false
}

// MarketValue is Σ position value (shorts subtract)
func (s Snapshot) MarketValue() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.positions {
		total = total.Add(p.Value())
	}
	return total
}

// GrossExposure is Σ |position value|
func (s Snapshot) GrossExposure() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.positions {
		total = total.Add(p.Exposure())
	}
	return total
}

// TotalValue is cash + Σ position value
func (s Snapshot) TotalValue() decimal.Decimal {
	return s.cash.Add(s.MarketValue())
}

// Weight returns the position's share of total value in percent (0–100 scale)
func (s Snapshot) Weight(p Position) decimal.Decimal {
	total := s.TotalValue()
	if !total.IsPositive() {
		return decimal.Zero
	}
	return p.Value().Div(total).Mul(decimal.NewFromInt(100))
}

// WithPrices returns a new snapshot with current prices replaced where quoted
func (s Snapshot) WithPrices(prices map[string]decimal.Decimal) Snapshot {
	next := Snapshot{
		positions: s.Positions(),
		cash:      s.cash,
		takenAt:   time.Now(),
	}
	for i, p := range next.positions {
		if px, ok := prices[p.Ticker]; ok && px.IsPositive() {
			next.positions[i].CurrentPrice = px
		}
	}
	return next
}
