package bybit

import (
	"encoding/json"
	"errors"
	"fmt"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
)

// Bybit error codes the provider reacts to
const (
	ErrCodeInvalidAPIKey     = 10003
	ErrCodeInvalidSignature  = 10004
	ErrCodeRateLimitExceeded = 10006
	ErrCodeSymbolNotFound    = 10001
)

// APIError is a non-zero retCode returned by the API
type APIError struct {
	Operation string
	Code      int
	Message   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bybit %s: API error %d: %s", e.Operation, e.Code, e.Message)
}

// IsRateLimitError reports whether err is a Bybit rate limit rejection
func IsRateLimitError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == ErrCodeRateLimitExceeded
}

// IsAuthenticationError reports whether err is a Bybit credential rejection
func IsAuthenticationError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == ErrCodeInvalidAPIKey || apiErr.Code == ErrCodeInvalidSignature
}

// decodeResult checks the response envelope and decodes its result into out
func decodeResult(operation string, response interface{}, out interface{}) error {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok || serverResp == nil {
		return fmt.Errorf("bybit %s: invalid response type %T", operation, response)
	}
	if serverResp.RetCode != 0 {
		return &APIError{Operation: operation, Code: serverResp.RetCode, Message: serverResp.RetMsg}
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return fmt.Errorf("bybit %s: failed to marshal result: %w", operation, err)
	}
	if err := json.Unmarshal(resultBytes, out); err != nil {
		return fmt.Errorf("bybit %s: failed to unmarshal result: %w", operation, err)
	}
	return nil
}
