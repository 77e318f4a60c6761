// Package errors provides the typed error taxonomy for the flouds-vector
// gateway. Leaf code returns an *Error carrying a Kind; the service-method
// wrapper maps the kind to an HTTP status and response envelope.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind is the machine-readable error classification
type Kind string

const (
	// KindValidation indicates a malformed request, dimension mismatch or bad tenant code
	KindValidation Kind = "validation_error"

	// KindAuthentication indicates missing or invalid credentials
	KindAuthentication Kind = "authentication_error"

	// KindAuthorization indicates the principal lacks the required permission
	KindAuthorization Kind = "authorization_error"

	// KindTenant indicates a tenant mismatch or unknown tenant
	KindTenant Kind = "tenant_error"

	// KindRateLimit indicates a rate limit was exceeded
	KindRateLimit Kind = "rate_limit_error"

	// KindConnection indicates the vector DB is unreachable
	KindConnection Kind = "connection_error"

	// KindOperation indicates the vector DB rejected an operation
	KindOperation Kind = "operation_error"

	// KindNotFound indicates a missing resource (config entry, client, collection)
	KindNotFound Kind = "not_found_error"

	// KindConflict indicates a conflict with an existing resource
	KindConflict Kind = "conflict_error"

	// KindSchemaConflict indicates a collection exists with a different dimension
	KindSchemaConflict Kind = "schema_conflict"

	// KindConfiguration indicates invalid startup configuration
	KindConfiguration Kind = "configuration_error"

	// KindSystem indicates an unexpected but classified server-side failure
	KindSystem Kind = "system_error"

	// KindInternal is the catch-all for unclassified failures
	KindInternal Kind = "internal_error"
)

// Error is a typed error with a kind tag
type Error struct {
	Kind    Kind
	Message string
	Details string
	Err     error
}

// Error returns a string representation of the error
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new typed error
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a new typed error with a formatted message
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a typed error wrapping a cause; the cause's text becomes
// the details string that the sanitizer processes at the edge.
func Wrap(kind Kind, message string, err error) *Error {
	e := &Error{Kind: kind, Message: message, Err: err}
	if err != nil {
		e.Details = err.Error()
	}
	return e
}

// WithDetails attaches a details string
func (e *Error) WithDetails(details string) *Error {
	e.Details = details
	return e
}

// KindOf extracts the kind from an error chain, defaulting to internal_error.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindInternal
}

// DetailsOf extracts the details string from an error chain
func DetailsOf(err error) string {
	var typed *Error
	if errors.As(err, &typed) {
		if typed.Details != "" {
			return typed.Details
		}
		return typed.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// MessageOf extracts the human message from an error chain
func MessageOf(err error) string {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// IsCanceled reports whether the error chain stems from request cancellation
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// IsKind reports whether the error chain carries the given kind
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsNotFound reports whether the error indicates a missing resource
func IsNotFound(err error) bool {
	return IsKind(err, KindNotFound)
}

// IsConflict reports whether the error indicates a resource conflict
func IsConflict(err error) bool {
	return IsKind(err, KindConflict) || IsKind(err, KindSchemaConflict)
}

// IsConnection reports whether the error indicates an unreachable backend
func IsConnection(err error) bool {
	return IsKind(err, KindConnection)
}

// StatusCode maps a kind to its HTTP status
func StatusCode(kind Kind) int {
	switch kind {
	case KindValidation, KindTenant, KindOperation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindSchemaConflict:
		return http.StatusConflict
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindConnection:
		return http.StatusServiceUnavailable
	case KindConfiguration, KindSystem, KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Title maps a kind to the human-readable error title used in envelopes
func Title(kind Kind) string {
	switch kind {
	case KindValidation:
		return "Validation Error"
	case KindAuthentication:
		return "Authentication Failed"
	case KindAuthorization:
		return "Not Authorized"
	case KindTenant:
		return "Tenant Error"
	case KindRateLimit:
		return "Rate Limit Exceeded"
	case KindConnection:
		return "Service Unavailable"
	case KindOperation:
		return "Operation Failed"
	case KindNotFound:
		return "Not Found"
	case KindConflict:
		return "Conflict"
	case KindSchemaConflict:
		return "Schema Conflict"
	case KindConfiguration:
		return "Configuration Error"
	case KindSystem:
		return "System Error"
	default:
		return "Internal Server Error"
	}
}
