package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents an unreadable upstream payload.
	ErrorClassDecode ErrorClass = "decode"
)

// ConfigurationError reports required credentials that are not set.
type ConfigurationError struct {
	Missing []string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("shopify credentials not configured: %s", strings.Join(e.Missing, ", "))
}

// UpstreamError represents a failed call to the catalog source.
type UpstreamError struct {
	// Op is the adapter operation that failed (e.g. "list products").
	Op         string
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, "shopify %s error (status %d)", e.Class, e.StatusCode)
	} else {
		fmt.Fprintf(&b, "shopify %s error", e.Class)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// PartialDataError is returned when a page fetch fails after earlier pages
// were already collected. The collected data is discarded.
type PartialDataError struct {
	Pages    int
	Products int
	Err      error
}

// Error implements the error interface.
func (e *PartialDataError) Error() string {
	return fmt.Sprintf("export incomplete after %d pages (%d products): %v", e.Pages, e.Products, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *PartialDataError) Unwrap() error {
	return e.Err
}

// SerializationError reports a row that could not be rendered.
type SerializationError struct {
	Row   int
	Field string
	Err   error
}

// Error implements the error interface.
func (e *SerializationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("serialize row %d: %v", e.Row, e.Err)
	}
	return fmt.Sprintf("serialize row %d field %s: %v", e.Row, e.Field, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *SerializationError) Unwrap() error {
	return e.Err
}

// ErrInvalidUTF8 is wrapped by SerializationError for text that is not valid UTF-8.
var ErrInvalidUTF8 = errors.New("invalid utf-8")

// IsRetryable determines if an error class should be retried.
func IsRetryable(class ErrorClass) bool {
	switch class {
	case ErrorClassClient:
		// 4xx errors are not going to change on retry
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}
