package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents an application-level error with HTTP status code
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	StatusCode int    `json:"-"`
}

func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any AppError carrying the same code, so constructed errors
// compare equal to the predefined sentinels under errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Common error codes
const (
	ErrCodeUnauthorized            = "unauthorized"
	ErrCodeForbidden               = "forbidden"
	ErrCodeNotFound                = "not_found"
	ErrCodeBadRequest              = "bad_request"
	ErrCodeConflict                = "conflict"
	ErrCodeRateLimited             = "rate_limited"
	ErrCodeInternalError           = "internal_error"
	ErrCodeConfiguration           = "configuration_error"
	ErrCodeDecryption              = "decryption_error"
	ErrCodeUnsupportedChain        = "unsupported_chain"
	ErrCodeUnimplementedCapability = "unimplemented_capability"
	ErrCodeFeatureDisabled         = "feature_disabled"
	ErrCodeInvalidAddress          = "invalid_address"
	ErrCodeWalletNotFound          = "wallet_not_found"
	ErrCodeAgentKeyNotFound        = "agent_key_not_found"
)

// Predefined errors
var (
	ErrUnauthorized = &AppError{
		Code:       ErrCodeUnauthorized,
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrForbidden = &AppError{
		Code:       ErrCodeForbidden,
		Message:    "Access denied",
		StatusCode: http.StatusForbidden,
	}

	ErrNotFound = &AppError{
		Code:       ErrCodeNotFound,
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &AppError{
		Code:       ErrCodeBadRequest,
		Message:    "Invalid request parameters",
		StatusCode: http.StatusBadRequest,
	}

	ErrInternalError = &AppError{
		Code:       ErrCodeInternalError,
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}

	ErrConflict = &AppError{
		Code:       ErrCodeConflict,
		Message:    "Request conflict",
		StatusCode: http.StatusConflict,
	}

	ErrRateLimited = &AppError{
		Code:       ErrCodeRateLimited,
		Message:    "Rate limit exceeded",
		StatusCode: http.StatusTooManyRequests,
	}

	// ErrConfiguration: a required secret or feature flag is missing. Not retryable.
	ErrConfiguration = &AppError{
		Code:       ErrCodeConfiguration,
		Message:    "Service is not configured for this operation",
		StatusCode: http.StatusInternalServerError,
	}

	// ErrDecryption: authentication-tag mismatch or malformed ciphertext.
	// It never carries detail.
	ErrDecryption = &AppError{
		Code:       ErrCodeDecryption,
		Message:    "Key material could not be decrypted",
		StatusCode: http.StatusInternalServerError,
	}

	ErrUnsupportedChain = &AppError{
		Code:       ErrCodeUnsupportedChain,
		Message:    "Chain is not supported",
		StatusCode: http.StatusBadRequest,
	}

	ErrUnimplementedCapability = &AppError{
		Code:       ErrCodeUnimplementedCapability,
		Message:    "Operation is not supported for this chain family",
		StatusCode: http.StatusNotImplemented,
	}

	ErrFeatureDisabled = &AppError{
		Code:       ErrCodeFeatureDisabled,
		Message:    "Feature is disabled",
		StatusCode: http.StatusForbidden,
	}

	ErrInvalidAddress = &AppError{
		Code:       ErrCodeInvalidAddress,
		Message:    "Address is not valid for the chain",
		StatusCode: http.StatusBadRequest,
	}

	ErrWalletNotFound = &AppError{
		Code:       ErrCodeWalletNotFound,
		Message:    "Wallet not found",
		StatusCode: http.StatusNotFound,
	}

	ErrAgentKeyNotFound = &AppError{
		Code:       ErrCodeAgentKeyNotFound,
		Message:    "No active agent key for mission",
		StatusCode: http.StatusNotFound,
	}
)

// New creates a new AppError
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// NewWithDetail creates a new AppError with additional detail
func NewWithDetail(code, message, detail string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		Detail:     detail,
		StatusCode: statusCode,
	}
}

func withDetail(base *AppError, detail string) *AppError {
	return &AppError{
		Code:       base.Code,
		Message:    base.Message,
		Detail:     detail,
		StatusCode: base.StatusCode,
	}
}

// Configuration creates a configuration error naming the missing setting
func Configuration(setting string) *AppError {
	return withDetail(ErrConfiguration, setting)
}

// Decryption creates a decryption error. The cause is deliberately dropped.
func Decryption() *AppError {
	return withDetail(ErrDecryption, "")
}

// UnsupportedChain creates an unsupported chain error
func UnsupportedChain(chain string) *AppError {
	return withDetail(ErrUnsupportedChain, fmt.Sprintf("chain: %q", chain))
}

// UnimplementedCapability creates an error for an operation a chain family does not support
func UnimplementedCapability(family, operation string) *AppError {
	return withDetail(ErrUnimplementedCapability, fmt.Sprintf("%s does not support %s", family, operation))
}

// FeatureDisabled creates a feature disabled error
func FeatureDisabled(feature string) *AppError {
	return withDetail(ErrFeatureDisabled, feature)
}

// InvalidAddress creates an invalid address error
func InvalidAddress(chain, address string) *AppError {
	return withDetail(ErrInvalidAddress, fmt.Sprintf("chain: %s, address: %s", chain, address))
}

// BadRequest creates a bad request error with detail
func BadRequest(detail string) *AppError {
	return withDetail(ErrBadRequest, detail)
}

// WalletNotFound creates a wallet not found error
func WalletNotFound(chain, address string) *AppError {
	return withDetail(ErrWalletNotFound, fmt.Sprintf("chain: %s, address: %s", chain, address))
}

// WalletChainConflict reports an address already provisioned on another chain
// that shares its chain id
func WalletChainConflict(chain, address, existing string) *AppError {
	return withDetail(ErrConflict, fmt.Sprintf("address %s on %s is already provisioned on %s", address, chain, existing))
}

// AgentKeyNotFound creates an agent key not found error
func AgentKeyNotFound(missionID string) *AppError {
	return withDetail(ErrAgentKeyNotFound, fmt.Sprintf("mission_id: %s", missionID))
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
