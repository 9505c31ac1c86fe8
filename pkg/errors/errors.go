// Package errors provides structured error handling for courier.
// It defines sentinel errors, exit codes, and helpers for adding
// context, details, and suggestions to errors.
//
//nolint:revive // Package name intentionally shadows stdlib for domain-specific error handling
package errors

import (
	"errors"
	"fmt"
	"sort"
)

// Exit codes returned by the CLI.
const (
	ExitSuccess  = 0 // Successful execution
	ExitGeneral  = 1 // General/unknown error
	ExitInput    = 2 // Invalid input
	ExitAuth     = 3 // Signing or keystore failure
	ExitNotFound = 4 // Resource not found
)

// CourierError is the structured error type for courier.
type CourierError struct {
	Code       string            // Machine-readable error code
	Message    string            // Human-readable message
	Details    map[string]string // Additional context
	Suggestion string            // Actionable suggestion for user
	Cause      error             // Underlying error
	ExitCode   int               // Exit code for CLI
}

func (e *CourierError) Error() string {
	msg := e.Message

	// Details are sorted for deterministic output
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg = fmt.Sprintf("%s (%s: %s)", msg, k, e.Details[k])
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *CourierError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for CourierError.
func (e *CourierError) Is(target error) bool {
	var t *CourierError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinel errors.
var (
	ErrGeneral = &CourierError{
		Code:     "GENERAL_ERROR",
		Message:  "an error occurred",
		ExitCode: ExitGeneral,
	}

	ErrInvalidInput = &CourierError{
		Code:     "INVALID_INPUT",
		Message:  "invalid input",
		ExitCode: ExitInput,
	}

	ErrNotFound = &CourierError{
		Code:     "NOT_FOUND",
		Message:  "resource not found",
		ExitCode: ExitNotFound,
	}

	// Validation errors. Detected before any network call and never retried.
	ErrIncompleteForm = &CourierError{
		Code:     "INCOMPLETE_FORM",
		Message:  "required field is missing",
		ExitCode: ExitInput,
	}

	ErrIncompleteTransactionRequest = &CourierError{
		Code:     "INCOMPLETE_TRANSACTION_REQUEST",
		Message:  "transaction request is missing chain id or destination",
		ExitCode: ExitInput,
	}

	ErrInvalidAddress = &CourierError{
		Code:     "INVALID_ADDRESS",
		Message:  "invalid address format",
		ExitCode: ExitInput,
	}

	ErrInvalidAmount = &CourierError{
		Code:     "INVALID_AMOUNT",
		Message:  "amount must be a positive integer in base units",
		ExitCode: ExitInput,
	}

	ErrUnsupportedChain = &CourierError{
		Code:     "UNSUPPORTED_CHAIN",
		Message:  "unsupported chain",
		ExitCode: ExitInput,
	}

	ErrInvalidStatusTransition = &CourierError{
		Code:     "INVALID_STATUS_TRANSITION",
		Message:  "transaction status can only move forward",
		ExitCode: ExitInput,
	}

	// Signing errors.
	ErrNoSignerAvailable = &CourierError{
		Code:     "NO_SIGNER_AVAILABLE",
		Message:  "no signer available for account",
		ExitCode: ExitAuth,
	}

	ErrKeystoreLocked = &CourierError{
		Code:     "KEYSTORE_LOCKED",
		Message:  "keystore is locked",
		ExitCode: ExitAuth,
	}

	ErrDecryptionFailed = &CourierError{
		Code:     "DECRYPTION_FAILED",
		Message:  "decryption failed - wrong passphrase or corrupted file",
		ExitCode: ExitAuth,
	}

	ErrInvalidMnemonic = &CourierError{
		Code:     "INVALID_MNEMONIC",
		Message:  "invalid mnemonic phrase",
		ExitCode: ExitInput,
	}

	// Network errors.
	ErrNetworkError = &CourierError{
		Code:     "NETWORK_ERROR",
		Message:  "network communication failed",
		ExitCode: ExitGeneral,
	}

	ErrTxRejected = &CourierError{
		Code:     "TX_REJECTED",
		Message:  "transaction rejected by network",
		ExitCode: ExitGeneral,
	}

	// Task supervisor errors. Messages are user-facing.
	ErrCancelled = &CourierError{
		Code:     "CANCELLED",
		Message:  "Action was cancelled.",
		ExitCode: ExitGeneral,
	}

	ErrTimedOut = &CourierError{
		Code:     "TIMED_OUT",
		Message:  "Action timed out.",
		ExitCode: ExitGeneral,
	}

	// Storage and config errors.
	ErrAccountNotFound = &CourierError{
		Code:     "ACCOUNT_NOT_FOUND",
		Message:  "account not found",
		ExitCode: ExitNotFound,
	}

	ErrAccountExists = &CourierError{
		Code:     "ACCOUNT_EXISTS",
		Message:  "account already exists",
		ExitCode: ExitInput,
	}

	ErrTransactionNotFound = &CourierError{
		Code:     "TRANSACTION_NOT_FOUND",
		Message:  "transaction not found",
		ExitCode: ExitNotFound,
	}

	ErrConfigInvalid = &CourierError{
		Code:     "CONFIG_INVALID",
		Message:  "configuration file is invalid",
		ExitCode: ExitInput,
	}
)

// New creates a new CourierError with the given code and message.
func New(code, message string) *CourierError {
	return &CourierError{
		Code:     code,
		Message:  message,
		ExitCode: ExitGeneral,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	var ce *CourierError
	if errors.As(err, &ce) {
		return &CourierError{
			Code:       ce.Code,
			Message:    fmt.Sprintf("%s: %s", msg, ce.Message),
			Details:    ce.Details,
			Suggestion: ce.Suggestion,
			Cause:      err,
			ExitCode:   ce.ExitCode,
		}
	}

	return &CourierError{
		Code:     "GENERAL_ERROR",
		Message:  msg,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithDetails adds details to an error. Existing details are kept unless
// overridden by a key in details.
func WithDetails(err error, details map[string]string) error {
	if err == nil {
		return nil
	}

	var ce *CourierError
	if errors.As(err, &ce) {
		merged := make(map[string]string, len(ce.Details)+len(details))
		for k, v := range ce.Details {
			merged[k] = v
		}
		for k, v := range details {
			merged[k] = v
		}
		return &CourierError{
			Code:       ce.Code,
			Message:    ce.Message,
			Details:    merged,
			Suggestion: ce.Suggestion,
			Cause:      ce.Cause,
			ExitCode:   ce.ExitCode,
		}
	}

	return &CourierError{
		Code:     "GENERAL_ERROR",
		Message:  err.Error(),
		Details:  details,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithSuggestion adds a suggestion to an error.
func WithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}

	var ce *CourierError
	if errors.As(err, &ce) {
		return &CourierError{
			Code:       ce.Code,
			Message:    ce.Message,
			Details:    ce.Details,
			Suggestion: suggestion,
			Cause:      ce.Cause,
			ExitCode:   ce.ExitCode,
		}
	}

	return &CourierError{
		Code:       "GENERAL_ERROR",
		Message:    err.Error(),
		Suggestion: suggestion,
		Cause:      err,
		ExitCode:   ExitGeneral,
	}
}

// WithCause returns a copy of a sentinel error carrying cause.
func WithCause(sentinel *CourierError, cause error) error {
	return &CourierError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		Details:    sentinel.Details,
		Suggestion: sentinel.Suggestion,
		Cause:      cause,
		ExitCode:   sentinel.ExitCode,
	}
}

// IsValidation reports whether err is a caller-input problem. Validation
// errors drive form state and are never sent to the notification channel.
func IsValidation(err error) bool {
	var ce *CourierError
	if errors.As(err, &ce) {
		return ce.ExitCode == ExitInput
	}
	return false
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var ce *CourierError
	if errors.As(err, &ce) {
		return ce.ExitCode
	}

	return ExitGeneral
}

// Code returns the error code for an error.
func Code(err error) string {
	var ce *CourierError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return "GENERAL_ERROR"
}

// Message returns the user-facing message of err without details or cause.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var ce *CourierError
	if errors.As(err, &ce) {
		return ce.Message
	}
	return err.Error()
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience.
func As(err error, target any) bool {
	return errors.As(err, target)
}
