package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCategory groups errors by how callers should react to them
type ErrorCategory string

const (
	// Caller supplied malformed arguments; never retried
	ErrorCategoryValidation    ErrorCategory = "VALIDATION"
	ErrorCategoryConfiguration ErrorCategory = "CONFIG"

	// Dependency is unavailable right now; caller owns retry/backoff
	ErrorCategoryInfrastructure ErrorCategory = "INFRASTRUCTURE"
	ErrorCategoryStorage        ErrorCategory = "STORAGE"
	ErrorCategoryNotification   ErrorCategory = "NOTIFICATION"

	ErrorCategoryTemporary ErrorCategory = "TEMPORARY"
)

// Input validation sentinels. Wrapped in a *GuardError so errors.Is still matches.
var (
	ErrInvalidRiskDistance     = stderrors.New("entry price equals stop-loss price")
	ErrInvalidBalance          = stderrors.New("account balance must be positive")
	ErrInvalidRiskPercent      = stderrors.New("risk per trade percent must be in (0, 100]")
	ErrInvalidVolatilityFactor = stderrors.New("volatility factor must be in (0, 1]")
	ErrUnknownMethod           = stderrors.New("unknown method")
	ErrMissingATR              = stderrors.New("atr value is required for atr exits")
	ErrInvalidExitParams       = stderrors.New("invalid exit parameters")
	ErrUnsupportedConfidence   = stderrors.New("unsupported confidence level")
	ErrInvalidPortfolio        = stderrors.New("portfolio value must be positive")
	ErrInvalidHorizon          = stderrors.New("horizon days must be at least 1")
	ErrInsufficientData        = stderrors.New("insufficient data points")
	ErrInvalidEquity           = stderrors.New("equity values must be positive")
	ErrInvalidTrade            = stderrors.New("invalid candidate trade")
	ErrInvalidLimits           = stderrors.New("invalid risk limits")
	ErrInvalidNumber           = stderrors.New("value is NaN or infinite")
	ErrInvalidParams           = stderrors.New("invalid operation parameters")
	ErrUnknownOperation        = stderrors.New("unknown operation")

	// ErrCircuitOpen is matched by every circuit-open rejection
	ErrCircuitOpen = stderrors.New("circuit breaker is open")
	// ErrKillSwitchUnavailable signals the kill switch state could not be read
	ErrKillSwitchUnavailable = stderrors.New("kill switch state unavailable")
)

// GuardError represents a categorized error with context
type GuardError struct {
	Category   ErrorCategory
	Component  string
	Operation  string
	Message    string
	Underlying error
	Context    map[string]interface{}
	Retryable  bool
}

// Error implements the error interface
func (e *GuardError) Error() string {
	msg := e.Message
	if msg == "" && e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Component, e.Operation, e.Underlying)
	}
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Category, e.Component, e.Operation, msg, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Category, e.Component, e.Operation, msg)
}

// Unwrap returns the underlying error for error unwrapping
func (e *GuardError) Unwrap() error {
	return e.Underlying
}

// IsRetryable returns whether this error can be retried
func (e *GuardError) IsRetryable() bool {
	return e.Retryable
}

// NewGuardError creates a new categorized error
func NewGuardError(category ErrorCategory, component, operation, message string) *GuardError {
	return &GuardError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
		Context:   make(map[string]interface{}),
		Retryable: isRetryableCategory(category),
	}
}

// WrapError wraps an existing error with categorized context
func WrapError(err error, category ErrorCategory, component, operation string) *GuardError {
	if err == nil {
		return nil
	}

	return &GuardError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Underlying: err,
		Context:    make(map[string]interface{}),
		Retryable:  isRetryableCategory(category),
	}
}

// NewValidationError wraps a validation sentinel with a detail message
func NewValidationError(component, operation string, sentinel error, format string, args ...interface{}) *GuardError {
	return &GuardError{
		Category:   ErrorCategoryValidation,
		Component:  component,
		Operation:  operation,
		Message:    fmt.Sprintf(format, args...),
		Underlying: sentinel,
		Context:    make(map[string]interface{}),
		Retryable:  false,
	}
}

// NewConfigurationError creates a non-retryable configuration error
func NewConfigurationError(component, operation, message string) *GuardError {
	return NewGuardError(ErrorCategoryConfiguration, component, operation, message)
}

// NewStorageError wraps a persistence failure
func NewStorageError(component, operation string, err error) *GuardError {
	return WrapError(err, ErrorCategoryStorage, component, operation)
}

// WithContext adds context information to the error
func (e *GuardError) WithContext(key string, value interface{}) *GuardError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRetryable sets the retryable flag
func (e *GuardError) WithRetryable(retryable bool) *GuardError {
	e.Retryable = retryable
	return e
}

func isRetryableCategory(category ErrorCategory) bool {
	switch category {
	case ErrorCategoryInfrastructure, ErrorCategoryStorage, ErrorCategoryNotification, ErrorCategoryTemporary:
		return true
	default:
		return false
	}
}

// IsValidation reports whether err is (or wraps) a validation error
func IsValidation(err error) bool {
	var guardErr *GuardError
	if stderrors.As(err, &guardErr) {
		return guardErr.Category == ErrorCategoryValidation
	}
	return false
}

// CategorizeError attempts to categorize a generic error
func CategorizeError(err error, component, operation string) *GuardError {
	if err == nil {
		return nil
	}

	var guardErr *GuardError
	if stderrors.As(err, &guardErr) {
		return guardErr
	}

	if stderrors.Is(err, ErrCircuitOpen) {
		return WrapError(err, ErrorCategoryInfrastructure, component, operation)
	}

	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "context deadline exceeded") ||
		strings.Contains(errMsg, "connection") || strings.Contains(errMsg, "network") ||
		strings.Contains(errMsg, "dial") || strings.Contains(errMsg, "rate limit") {
		return WrapError(err, ErrorCategoryInfrastructure, component, operation)
	}

	if strings.Contains(errMsg, "invalid") || strings.Contains(errMsg, "must be") {
		return WrapError(err, ErrorCategoryValidation, component, operation).WithRetryable(false)
	}

	return WrapError(err, ErrorCategoryTemporary, component, operation)
}

// RecoveryAction is the suggested caller reaction to an error
type RecoveryAction string

const (
	RecoveryActionRetry RecoveryAction = "RETRY"
	RecoveryActionSkip  RecoveryAction = "SKIP"
	RecoveryActionStop  RecoveryAction = "STOP"
	RecoveryActionWait  RecoveryAction = "WAIT"
)

// GetRecoveryAction suggests a recovery action based on error category
func (e *GuardError) GetRecoveryAction() RecoveryAction {
	switch e.Category {
	case ErrorCategoryConfiguration:
		return RecoveryActionStop
	case ErrorCategoryValidation:
		return RecoveryActionSkip
	case ErrorCategoryInfrastructure:
		if stderrors.Is(e, ErrCircuitOpen) {
			return RecoveryActionWait
		}
		return RecoveryActionRetry
	default:
		return RecoveryActionRetry
	}
}
