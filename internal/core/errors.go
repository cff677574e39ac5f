package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// ErrorKind is the machine-readable class of an Error.
type ErrorKind string

// Error kinds.
const (
	ErrKindValidation           ErrorKind = "validation_error"
	ErrKindModelNotFound        ErrorKind = "model_not_found"
	ErrKindModelDisabled        ErrorKind = "model_disabled"
	ErrKindRateLimitExceeded    ErrorKind = "rate_limit_exceeded"
	ErrKindUnsupportedModelType ErrorKind = "unsupported_model_type"
	ErrKindProvider             ErrorKind = "provider_error"
	ErrKindCacheFetch           ErrorKind = "cache_fetch_error"
	ErrKindUnauthenticated      ErrorKind = "unauthenticated"
	ErrKindForbidden            ErrorKind = "forbidden"
	ErrKindInternal             ErrorKind = "internal_error"
)

// ProviderErrorKind classifies a provider failure.
type ProviderErrorKind string

// Provider failure kinds.
const (
	ProviderTimeout     ProviderErrorKind = "timeout"
	ProviderUnreachable ProviderErrorKind = "unreachable"
	ProviderRejected    ProviderErrorKind = "rejected"
	ProviderUnknown     ProviderErrorKind = "unknown"
)

// ErrNotFound is returned by metadata stores for unknown ids.
var ErrNotFound = errors.New("not found")

// Error is the single error type surfaced by the routing layer.
type Error struct {
	Kind         ErrorKind
	Message      string
	Provider     string
	ProviderKind ProviderErrorKind
	ResetAt      time.Time
	Cause        error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Details returns the structured fields worth exposing to callers.
func (e *Error) Details() map[string]any {
	details := map[string]any{}
	if e.Provider != "" {
		details["provider"] = e.Provider
	}
	if e.ProviderKind != "" {
		details["providerKind"] = string(e.ProviderKind)
	}
	if !e.ResetAt.IsZero() {
		details["resetAt"] = e.ResetAt.UTC().Format(time.RFC3339)
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

// NewValidationError reports malformed caller input.
func NewValidationError(format string, args ...any) *Error {
	return &Error{Kind: ErrKindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewModelNotFoundError reports an id unknown to the metadata store.
func NewModelNotFoundError(modelID string) *Error {
	return &Error{Kind: ErrKindModelNotFound, Message: fmt.Sprintf("model not found: %s", modelID)}
}

// NewModelDisabledError reports a model whose enabled flag is off.
func NewModelDisabledError(modelID string) *Error {
	return &Error{Kind: ErrKindModelDisabled, Message: fmt.Sprintf("model is disabled: %s", modelID)}
}

// NewRateLimitError reports an exhausted quota window.
func NewRateLimitError(resetAt time.Time) *Error {
	return &Error{
		Kind:    ErrKindRateLimitExceeded,
		Message: fmt.Sprintf("rate limit exceeded, retry after %s", resetAt.UTC().Format(time.RFC3339)),
		ResetAt: resetAt,
	}
}

// NewUnsupportedModelTypeError reports a (provider, kind) pair with no adapter.
func NewUnsupportedModelTypeError(provider string, kind RequestKind) *Error {
	return &Error{
		Kind:     ErrKindUnsupportedModelType,
		Message:  fmt.Sprintf("provider %q has no %s adapter", provider, kind),
		Provider: provider,
	}
}

// NewProviderError wraps an adapter failure.
func NewProviderError(provider string, kind ProviderErrorKind, cause error) *Error {
	return &Error{
		Kind:         ErrKindProvider,
		Message:      fmt.Sprintf("provider %s failed (%s)", provider, kind),
		Provider:     provider,
		ProviderKind: kind,
		Cause:        cause,
	}
}

// NewCacheFetchError reports an unreachable metadata store.
func NewCacheFetchError(modelID string, cause error) *Error {
	return &Error{
		Kind:    ErrKindCacheFetch,
		Message: fmt.Sprintf("failed to fetch model %s", modelID),
		Cause:   cause,
	}
}

// NewUnauthenticatedError reports a missing or unknown credential.
func NewUnauthenticatedError(message string) *Error {
	return &Error{Kind: ErrKindUnauthenticated, Message: message}
}

// NewForbiddenError reports a caller lacking a required role.
func NewForbiddenError(message string) *Error {
	return &Error{Kind: ErrKindForbidden, Message: message}
}

// AsError converts any error into *Error, wrapping unknown errors as internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: ErrKindInternal, Message: "internal error", Cause: err}
}

// KindOf returns the ErrorKind of err, or "" for nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	return AsError(err).Kind
}

// HTTPStatus maps an error onto the boundary status code.
func HTTPStatus(err error) int {
	e := AsError(err)
	if e == nil {
		return http.StatusOK
	}
	switch e.Kind {
	case ErrKindValidation, ErrKindUnsupportedModelType:
		return http.StatusBadRequest
	case ErrKindUnauthenticated:
		return http.StatusUnauthorized
	case ErrKindForbidden, ErrKindModelDisabled:
		return http.StatusForbidden
	case ErrKindModelNotFound:
		return http.StatusNotFound
	case ErrKindRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrKindCacheFetch:
		return http.StatusServiceUnavailable
	case ErrKindProvider:
		if e.ProviderKind == ProviderTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// UpstreamStatusError is returned by adapters when a backend answers with a
// non-success HTTP status.
type UpstreamStatusError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
}

// ClassifyProviderError wraps an adapter failure into a ProviderError,
// picking the kind from the cause. Errors that already are *Error pass through.
func ClassifyProviderError(provider string, err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewProviderError(provider, providerKindOf(err), err)
}

func providerKindOf(err error) ProviderErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return ProviderTimeout
	}

	var statusErr *UpstreamStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout || statusErr.StatusCode == http.StatusGatewayTimeout:
			return ProviderTimeout
		case statusErr.StatusCode == http.StatusBadGateway || statusErr.StatusCode == http.StatusServiceUnavailable:
			return ProviderUnreachable
		case statusErr.StatusCode >= 400 && statusErr.StatusCode < 500:
			return ProviderRejected
		}
		return ProviderUnknown
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ProviderTimeout
		}
		return ProviderUnreachable
	}
	return ProviderUnknown
}
