package riskmath

import (
	"fmt"
	"strings"
)

// Action is the trade direction
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// ParseAction accepts BUY/SELL in any case
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToUpper(strings.TrimSpace(s))) {
	case ActionBuy:
		return ActionBuy, nil
	case ActionSell:
		return ActionSell, nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// Sign is +1 for BUY, -1 for SELL
func (a Action) Sign() float64 {
	if a == ActionSell {
		return -1
	}
	return 1
}

// Valid reports whether a is BUY or SELL
func (a Action) Valid() bool {
	return a == ActionBuy || a == ActionSell
}
