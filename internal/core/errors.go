// Package core provides core types and errors for the image pairing service.
package core

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// ErrorType represents the type of error that occurred
type ErrorType string

const (
	// ErrorTypeCredential indicates missing or invalid storage credentials
	ErrorTypeCredential ErrorType = "credential_error"
	// ErrorTypeUpstreamAuth indicates the provider rejected the token, even after one refresh
	ErrorTypeUpstreamAuth ErrorType = "upstream_auth_error"
	// ErrorTypeUpstreamList indicates a folder listing call failed
	ErrorTypeUpstreamList ErrorType = "upstream_list_error"
	// ErrorTypeUpstreamLink indicates a temporary link call failed
	ErrorTypeUpstreamLink ErrorType = "upstream_link_error"
	// ErrorTypeUpstream indicates a generic provider failure (network, 429, 5xx)
	ErrorTypeUpstream ErrorType = "upstream_error"
	// ErrorTypeEmptyBucket indicates no assets are available after a refresh
	ErrorTypeEmptyBucket ErrorType = "empty_bucket_error"
	// ErrorTypeAggregateFetch indicates every constituent fetch failed
	ErrorTypeAggregateFetch ErrorType = "aggregate_fetch_error"
	// ErrorTypeNotFound indicates an unknown route or collection (404)
	ErrorTypeNotFound ErrorType = "not_found_error"
)

// Error is the base error type for all service errors
type Error struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code"`
	Service    string    `json:"service,omitempty"`
	// Retryable marks transient failures (timeouts, rate limits, gateway errors)
	Retryable bool `json:"-"`
	// Original error for debugging (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Service != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Service, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the HTTP status code the router should answer with
func (e *Error) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Type {
	case ErrorTypeEmptyBucket, ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeUpstream, ErrorTypeUpstreamList, ErrorTypeUpstreamLink:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts the error to the client-facing envelope.
func (e *Error) ToJSON() map[string]interface{} {
	return map[string]interface{}{
		"error":   string(e.Type),
		"details": e.Message,
	}
}

// NewCredentialError creates a credential error (missing/invalid configuration)
func NewCredentialError(message string, err error) *Error {
	return &Error{
		Type:       ErrorTypeCredential,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewUpstreamAuthError creates an error for a token the provider refused
func NewUpstreamAuthError(service, message string, err error) *Error {
	return &Error{
		Type:       ErrorTypeUpstreamAuth,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Service:    service,
		Err:        err,
	}
}

// NewUpstreamError creates a generic provider failure
func NewUpstreamError(service string, statusCode int, message string, retryable bool, err error) *Error {
	return &Error{
		Type:       ErrorTypeUpstream,
		Message:    message,
		StatusCode: statusCode,
		Service:    service,
		Retryable:  retryable,
		Err:        err,
	}
}

// NewUpstreamListError wraps a listing failure for a folder
func NewUpstreamListError(folder string, err error) *Error {
	return &Error{
		Type:       ErrorTypeUpstreamList,
		Message:    fmt.Sprintf("failed to list folder %q: %v", folder, err),
		StatusCode: http.StatusBadGateway,
		Retryable:  IsRetryable(err),
		Err:        err,
	}
}

// NewUpstreamLinkError wraps a temporary link failure for a path
func NewUpstreamLinkError(path string, err error) *Error {
	return &Error{
		Type:       ErrorTypeUpstreamLink,
		Message:    fmt.Sprintf("failed to get temporary link for %q: %v", path, err),
		StatusCode: http.StatusBadGateway,
		Retryable:  IsRetryable(err),
		Err:        err,
	}
}

// NewEmptyBucketError creates an error for a bucket that has no assets
func NewEmptyBucketError(bucket string) *Error {
	return &Error{
		Type:       ErrorTypeEmptyBucket,
		Message:    fmt.Sprintf("no images available in bucket %q", bucket),
		StatusCode: http.StatusNotFound,
	}
}

// NewAggregateFetchError creates an error for a refresh where every fetch failed
func NewAggregateFetchError(bucket string, err error) *Error {
	return &Error{
		Type:       ErrorTypeAggregateFetch,
		Message:    fmt.Sprintf("failed to fetch any images for bucket %q", bucket),
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewNotFoundError creates a new not found error (404)
func NewNotFoundError(message string) *Error {
	return &Error{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// IsRetryable reports whether err (or anything it wraps) is a transient failure.
func IsRetryable(err error) bool {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Retryable
	}
	return false
}

// IsType reports whether err wraps a *Error of the given type.
func IsType(err error, t ErrorType) bool {
	var svcErr *Error
	return errors.As(err, &svcErr) && svcErr.Type == t
}

// ParseUpstreamError converts a non-2xx provider response into an Error.
// Dropbox reports failures as {"error_summary": "...", "error": {...}}.
func ParseUpstreamError(service string, statusCode int, body []byte) *Error {
	message := string(body)
	if gjson.ValidBytes(body) {
		if summary := gjson.GetBytes(body, "error_summary"); summary.Exists() && summary.String() != "" {
			message = summary.String()
		} else if msg := gjson.GetBytes(body, "error.message"); msg.Exists() {
			message = msg.String()
		}
	}
	if message == "" {
		message = http.StatusText(statusCode)
	}

	switch {
	case statusCode == http.StatusUnauthorized:
		return NewUpstreamAuthError(service, message, nil)
	case statusCode == http.StatusTooManyRequests:
		return NewUpstreamError(service, http.StatusBadGateway, "rate limited: "+message, true, nil)
	case statusCode == http.StatusBadGateway ||
		statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusGatewayTimeout:
		return NewUpstreamError(service, http.StatusBadGateway, message, true, nil)
	default:
		return NewUpstreamError(service, http.StatusBadGateway, message, false, nil)
	}
}
