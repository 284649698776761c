// Package errors defines the error taxonomy of the wallet core. Low-level
// storage, HSM, and authenticator error codes are translated into CoreError
// values at component boundaries; raw codes never reach callers outside the
// core.
package errors

import (
	"errors"
	"fmt"
)

// CoreError is a wallet-core error with a stable machine-readable code and a
// short, non-technical message. Detail carries development-time context and is
// reduced to an opaque fingerprint in production logging.
type CoreError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func (e *CoreError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches CoreErrors by code so sentinel comparisons with errors.Is work
// across wrapped chains.
func (e *CoreError) Is(target error) bool {
	var other *CoreError
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// Error codes
const (
	CodeDetectionFailed    = "detection_failed"
	CodeDerivationFailed   = "derivation_failed"
	CodeVerificationFailed = "verification_failed"
	CodeBindingFailed      = "binding_failed"
	CodeKeyNotFound        = "key_not_found"
	CodeUserCancelled      = "user_cancelled"
	CodeUnsupportedDevice  = "unsupported_device"
	CodeHardwareUnavailable = "hardware_unavailable"
	CodeInvalidCredential  = "invalid_credential"
	CodeTimeout            = "timeout"
	CodeInsufficientFunds  = "insufficient_funds"
	CodeInvalidAddress     = "invalid_address"
	CodeSimulationRequired = "simulation_required"
	CodeAlreadyBound       = "already_bound"
	CodeInvalidPhrase      = "invalid_phrase"
	CodeNotFound           = "not_found"
	CodeAuthFailed         = "auth_failed"
	CodeStoreError         = "store_error"
	CodeInternal           = "internal_error"
)

// Predefined errors
var (
	ErrKeyNotFound = &CoreError{
		Code:    CodeKeyNotFound,
		Message: "Key not found",
	}

	ErrUserCancelled = &CoreError{
		Code:    CodeUserCancelled,
		Message: "Operation cancelled",
	}

	ErrUnsupportedDevice = &CoreError{
		Code:    CodeUnsupportedDevice,
		Message: "Security key not supported",
	}

	ErrHardwareUnavailable = &CoreError{
		Code:    CodeHardwareUnavailable,
		Message: "Security hardware unavailable",
	}

	ErrTimeout = &CoreError{
		Code:    CodeTimeout,
		Message: "Operation timed out",
	}

	ErrNotFound = &CoreError{
		Code:    CodeNotFound,
		Message: "Item not found",
	}

	ErrAuthFailed = &CoreError{
		Code:    CodeAuthFailed,
		Message: "Authentication failed",
	}

	ErrSimulationRequired = &CoreError{
		Code:    CodeSimulationRequired,
		Message: "Transaction must be simulated before signing",
	}
)

// New creates a CoreError.
func New(code, message string) *CoreError {
	return &CoreError{Code: code, Message: message}
}

// NewWithDetail creates a CoreError with development-time detail.
func NewWithDetail(code, message, detail string) *CoreError {
	return &CoreError{Code: code, Message: message, Detail: detail}
}

// DerivationFailed creates a derivation failure error.
func DerivationFailed(reason string) *CoreError {
	return &CoreError{
		Code:    CodeDerivationFailed,
		Message: "Key derivation failed",
		Detail:  reason,
	}
}

// VerificationFailed creates a verification failure error.
func VerificationFailed(reason string) *CoreError {
	return &CoreError{
		Code:    CodeVerificationFailed,
		Message: "Security key verification failed",
		Detail:  reason,
	}
}

// BindingFailed creates a binding failure error.
func BindingFailed(reason string) *CoreError {
	return &CoreError{
		Code:    CodeBindingFailed,
		Message: "Wallet binding failed",
		Detail:  reason,
	}
}

// AlreadyBound creates an error for a wallet that already has an HSK binding.
func AlreadyBound(address string) *CoreError {
	return &CoreError{
		Code:    CodeAlreadyBound,
		Message: "Wallet already bound to a security key",
		Detail:  fmt.Sprintf("address: %s", address),
	}
}

// InvalidAddress creates an invalid address error.
func InvalidAddress(detail string) *CoreError {
	return &CoreError{
		Code:    CodeInvalidAddress,
		Message: "Invalid address",
		Detail:  detail,
	}
}

// InsufficientFunds creates an insufficient funds error.
func InsufficientFunds(detail string) *CoreError {
	return &CoreError{
		Code:    CodeInsufficientFunds,
		Message: "Insufficient funds",
		Detail:  detail,
	}
}

// InvalidCredential creates an invalid credential error.
func InvalidCredential(reason string) *CoreError {
	return &CoreError{
		Code:    CodeInvalidCredential,
		Message: "Invalid security key credential",
		Detail:  reason,
	}
}

// StoreError wraps an underlying credential store failure without leaking its
// raw status code to callers.
func StoreError(detail string) *CoreError {
	return &CoreError{
		Code:    CodeStoreError,
		Message: "Secure storage error",
		Detail:  detail,
	}
}

// IsCoreError checks if an error is a CoreError.
func IsCoreError(err error) (*CoreError, bool) {
	var coreErr *CoreError
	if errors.As(err, &coreErr) {
		return coreErr, true
	}
	return nil, false
}

// Code returns the code of a CoreError, or internal_error for anything else.
func Code(err error) string {
	if coreErr, ok := IsCoreError(err); ok {
		return coreErr.Code
	}
	return CodeInternal
}
