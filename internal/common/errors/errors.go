// Package errors provides the standardized error taxonomy shared by the row
// store clients, the scrapers, the router and the chat transport.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeConfiguration ErrorCode = "CONFIGURATION_ERROR"
	ErrCodeRemote        ErrorCode = "REMOTE_ERROR"
	ErrCodeQuery         ErrorCode = "QUERY_ERROR"
	ErrCodeScrape        ErrorCode = "SCRAPE_ERROR"
	ErrCodeValidation    ErrorCode = "VALIDATION_ERROR"
	ErrCodeRateLimited   ErrorCode = "RATE_LIMITED"
	ErrCodeInternal      ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
}

// Unwrap exposes the transport error that was translated into this one.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// MetadataString returns a string metadata value, or "" when absent.
func (e *StandardError) MetadataString(key string) string {
	if e.Metadata == nil {
		return ""
	}
	s, _ := e.Metadata[key].(string)
	return s
}

// ==========================
// 2. Error Constructors
// ==========================

// NewConfigurationError reports missing or invalid startup configuration.
func NewConfigurationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConfiguration,
		Message:   "Invalid configuration",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRemoteError wraps a row store network, auth or SQL failure.
func NewRemoteError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRemote,
		Message:   "Remote row store error",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, errString(err)),
		Retryable: true,
		Metadata: map[string]interface{}{
			"operation": operation,
		},
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewQueryError wraps a failure of a caller-supplied read query.
func NewQueryError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQuery,
		Message:   "Custom query failed",
		Details:   errString(err),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewScrapeError reports a page that could not be fetched or parsed.
// The attempted URL is kept in Metadata["url"].
func NewScrapeError(url string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeScrape,
		Message:   "Web source unavailable",
		Details:   fmt.Sprintf("url: %s, error: %s", url, errString(err)),
		Retryable: true,
		Metadata: map[string]interface{}{
			"url": url,
		},
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewValidationError rejects bad caller input before any I/O happens.
func NewValidationError(field, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidation,
		Message:   "Validation failed",
		Details:   details,
		Retryable: false,
		Metadata: map[string]interface{}{
			"field": field,
		},
		Timestamp: time.Now().UTC(),
	}
}

// NewRateLimitedError reports a caller that exceeded its request budget.
func NewRateLimitedError(key string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRateLimited,
		Message:   "Too many requests",
		Details:   fmt.Sprintf("key: %s", key),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInternalError is the catch-all used when normalizing unknown errors.
func NewInternalError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   errString(err),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ==========================
// 3. Utility Functions
// ==========================

// AsStandard returns the first StandardError in err's chain.
func AsStandard(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// Code returns the code of err, or INTERNAL_ERROR for foreign errors.
func Code(err error) ErrorCode {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	return Code(err) == code
}

// HTTPStatus maps an error code onto the status returned by the chat transport.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeRemote, ErrCodeScrape:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "CONFIGURATION"):
		return "STARTUP"
	case strings.Contains(codeStr, "REMOTE") || strings.Contains(codeStr, "QUERY"):
		return "DATABASE"
	case strings.Contains(codeStr, "SCRAPE"):
		return "WEB"
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "RATE"):
		return "CLIENT"
	default:
		return "INTERNAL"
	}
}
