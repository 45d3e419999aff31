// Package errors provides standardized error handling for the orchestration service.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"

	ErrCodeReasoningTimeout     ErrorCode = "REASONING_TIMEOUT"
	ErrCodeReasoningMalformed   ErrorCode = "REASONING_MALFORMED"
	ErrCodeReasoningUnavailable ErrorCode = "REASONING_UNAVAILABLE"

	ErrCodeSourceUnavailable ErrorCode = "SOURCE_UNAVAILABLE"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"

	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"

	ErrCodeInternal ErrorCode = "INTERNAL"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewStoreUnavailableError creates a non-retryable conversation store error.
// Store failures abort the cycle without retry; nothing partial is persisted.
func NewStoreUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreUnavailable,
		Message:   "Conversation store error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewReasoningTimeoutError creates a non-retryable reasoning timeout error.
func NewReasoningTimeoutError(purpose string) *StandardError {
	return &StandardError{
		Code:      ErrCodeReasoningTimeout,
		Message:   "Reasoning service timeout",
		Details:   fmt.Sprintf("purpose: %s", purpose),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewReasoningMalformedError creates a non-retryable malformed reasoning output error.
func NewReasoningMalformedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeReasoningMalformed,
		Message:   "Reasoning service returned unparseable output",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewReasoningUnavailableError creates a non-retryable reasoning transport error.
func NewReasoningUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeReasoningUnavailable,
		Message:   "Reasoning service unreachable",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSourceUnavailableError creates a retryable data source error.
func NewSourceUnavailableError(source string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSourceUnavailable,
		Message:   "Data source unreachable",
		Details:   fmt.Sprintf("source: %s, error: %s", source, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotFoundError creates a non-retryable not-found result. This is a normal
// business outcome, not a failure.
func NewNotFoundError(source, key string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotFound,
		Message:   "No matching record",
		Details:   fmt.Sprintf("source: %s, key: %s", source, key),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidRequestError creates a non-retryable request validation error.
func NewInvalidRequestError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidRequest,
		Message:   "Invalid request",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInternalError creates a non-retryable error for failures that fit no
// other code.
func NewInternalError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Internal error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Retry Policy
// ==========================

// GetRetryCount returns the recommended retry count per error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeSourceUnavailable:
		return 1 // One retry with backoff, then apologize

	default:
		return 0 // Everything else fails the cycle immediately
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// ==========================
// 4. Utility Functions
// ==========================

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "STORE"):
		return "STORE"
	case strings.Contains(codeStr, "REASONING"):
		return "REASONING"
	case strings.Contains(codeStr, "SOURCE") || codeStr == "NOT_FOUND":
		return "DATASOURCE"
	case strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
