package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationErrorMatchesSentinel(t *testing.T) {
	err := NewValidationError("riskmath", "SizePosition", ErrInvalidRiskDistance, "entry %.2f == stop %.2f", 10.0, 10.0)

	assert.True(t, stderrors.Is(err, ErrInvalidRiskDistance))
	assert.False(t, stderrors.Is(err, ErrMissingATR))
	assert.True(t, IsValidation(err))
	assert.False(t, err.IsRetryable())
	assert.Equal(t, RecoveryActionSkip, err.GetRecoveryAction())
	assert.Contains(t, err.Error(), "VALIDATION")
}

func TestWrappedValidationStillDetected(t *testing.T) {
	inner := NewValidationError("riskmath", "MaxDrawdown", ErrInsufficientData, "need 2 points")
	outer := fmt.Errorf("operation drawdown: %w", inner)

	assert.True(t, IsValidation(outer))
	assert.True(t, stderrors.Is(outer, ErrInsufficientData))
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category ErrorCategory
		action   RecoveryAction
	}{
		{"circuit open", fmt.Errorf("bybit: %w", ErrCircuitOpen), ErrorCategoryInfrastructure, RecoveryActionWait},
		{"timeout", stderrors.New("read tcp: i/o timeout"), ErrorCategoryInfrastructure, RecoveryActionRetry},
		{"invalid", stderrors.New("invalid symbol"), ErrorCategoryValidation, RecoveryActionSkip},
		{"unknown", stderrors.New("boom"), ErrorCategoryTemporary, RecoveryActionRetry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guardErr := CategorizeError(tt.err, "test", "op")
			require.NotNil(t, guardErr)
			assert.Equal(t, tt.category, guardErr.Category)
			assert.Equal(t, tt.action, guardErr.GetRecoveryAction())
		})
	}

	assert.Nil(t, CategorizeError(nil, "test", "op"))
}

func TestWrapErrorNil(t *testing.T) {
	assert.Nil(t, WrapError(nil, ErrorCategoryStorage, "state", "save"))
}
