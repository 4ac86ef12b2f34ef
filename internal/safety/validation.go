package safety

import (
	"fmt"
	"math"
	"strings"
	"unicode"
)

// ValidationResult represents the result of a validation check
type ValidationResult struct {
	Valid   bool
	Message string
	Code    string
}

// Err converts a failed result into an error, nil when valid
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("%s: %s", r.Code, r.Message)
}

// Validator provides defensive validation of trade inputs
type Validator struct{}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateTicker checks a ticker is non-empty, short and printable
func (v *Validator) ValidateTicker(ticker string) ValidationResult {
	trimmed := strings.TrimSpace(ticker)
	if trimmed == "" {
		return ValidationResult{Message: "ticker cannot be empty", Code: "TICKER_EMPTY"}
	}
	if trimmed != ticker {
		return ValidationResult{
			Message: fmt.Sprintf("ticker %q has surrounding whitespace", ticker),
			Code:    "TICKER_WHITESPACE",
		}
	}
	if len(ticker) > 32 {
		return ValidationResult{
			Message: fmt.Sprintf("ticker %q too long: maximum 32 characters", ticker),
			Code:    "TICKER_TOO_LONG",
		}
	}
	for _, r := range ticker {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !strings.ContainsRune(".-_/:", r) {
			return ValidationResult{
				Message: fmt.Sprintf("ticker %q contains invalid character %q", ticker, r),
				Code:    "TICKER_INVALID_CHAR",
			}
		}
	}
	return ValidationResult{Valid: true}
}

// ValidatePrice validates a price value for trading
func (v *Validator) ValidatePrice(price float64, ticker string) ValidationResult {
	if math.IsNaN(price) {
		return ValidationResult{
			Message: fmt.Sprintf("invalid price for %s: price is NaN", ticker),
			Code:    "INVALID_PRICE_NAN",
		}
	}
	if math.IsInf(price, 0) {
		return ValidationResult{
			Message: fmt.Sprintf("invalid price for %s: price is infinite", ticker),
			Code:    "INVALID_PRICE_INF",
		}
	}
	if price <= 0 {
		return ValidationResult{
			Message: fmt.Sprintf("invalid price %.8f for %s: price must be positive", price, ticker),
			Code:    "INVALID_PRICE_NEGATIVE",
		}
	}
	// Prevent obvious data errors
	if price > 1e10 {
		return ValidationResult{
			Message: fmt.Sprintf("suspicious price %.8f for %s: exceeds reasonable bounds", price, ticker),
			Code:    "PRICE_OUT_OF_BOUNDS",
		}
	}
	return ValidationResult{Valid: true}
}

// ValidateQuantity validates a share count for a candidate trade
func (v *Validator) ValidateQuantity(quantity int64, ticker string) ValidationResult {
	if quantity <= 0 {
		return ValidationResult{
			Message: fmt.Sprintf("invalid quantity %d for %s: quantity must be positive", quantity, ticker),
			Code:    "INVALID_QUANTITY_NEGATIVE",
		}
	}
	if quantity > 1e12 {
		return ValidationResult{
			Message: fmt.Sprintf("suspicious quantity %d for %s: exceeds reasonable bounds", quantity, ticker),
			Code:    "QUANTITY_OUT_OF_BOUNDS",
		}
	}
	return ValidationResult{Valid: true}
}

// ValidateBalance validates an account balance, which must be strictly positive
func (v *Validator) ValidateBalance(balance float64) ValidationResult {
	if math.IsNaN(balance) || math.IsInf(balance, 0) {
		return ValidationResult{
			Message: fmt.Sprintf("balance %v is not a finite number", balance),
			Code:    "BALANCE_NOT_FINITE",
		}
	}
	if balance <= 0 {
		return ValidationResult{
			Message: fmt.Sprintf("balance %.2f must be positive", balance),
			Code:    "BALANCE_NOT_POSITIVE",
		}
	}
	return ValidationResult{Valid: true}
}
