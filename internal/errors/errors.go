// Package errors defines the kind-based error taxonomy shared by every
// gateway, store, and orchestrator component in this module.
package errors

import (
	"errors"
	"fmt"
)

// Kind identifies the taxonomy bucket an Error belongs to.
type Kind string

const (
	KindValidation        Kind = "validation_error"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindAuth              Kind = "auth_error"
	KindRateLimited       Kind = "rate_limited"
	KindUpstream          Kind = "upstream_error"
	KindTransport         Kind = "transport_error"
	KindConfig            Kind = "config_error"
	KindServiceUnavailable Kind = "service_unavailable"
	KindInternal          Kind = "internal_error"
)

// UpstreamSystem names which external collaborator produced an UpstreamError.
type UpstreamSystem string

const (
	SystemForge     UpstreamSystem = "forge"
	SystemPlatform  UpstreamSystem = "platform"
	SystemAssistant UpstreamSystem = "assistant"
)

// Error is the single error type used across gateway, store, and
// orchestrator boundaries. Code and Message are safe to surface to callers;
// cause is retained only for operator debugging via Unwrap.
type Error struct {
	Kind         Kind
	Code         string
	Message      string
	RetryAfterMS int64
	Upstream     UpstreamSystem
	StatusCode   int
	cause        error
}

func (e *Error) Error() string {
	if e.Upstream != "" && e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (upstream=%s status=%d)", e.Code, e.Message, e.Upstream, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func new_(kind Kind, code, msg string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, cause: cause}
}

func Validation(msg string) *Error { return new_(KindValidation, "validation_error", msg, nil) }

func NotFound(msg string) *Error { return new_(KindNotFound, "not_found", msg, nil) }

func Conflict(msg string) *Error { return new_(KindConflict, "conflict", msg, nil) }

func Auth(msg string, cause error) *Error { return new_(KindAuth, "auth_error", msg, cause) }

func RateLimited(msg string, retryAfterMS int64) *Error {
	e := new_(KindRateLimited, "rate_limited", msg, nil)
	e.RetryAfterMS = retryAfterMS
	return e
}

func Upstream(system UpstreamSystem, statusCode int, msg string, cause error) *Error {
	e := new_(KindUpstream, "upstream_error", msg, cause)
	e.Upstream = system
	e.StatusCode = statusCode
	return e
}

func Transport(msg string, cause error) *Error { return new_(KindTransport, "transport_error", msg, cause) }

func Config(msg string) *Error { return new_(KindConfig, "config_error", msg, nil) }

func ServiceUnavailable(msg string) *Error {
	return new_(KindServiceUnavailable, "service_unavailable", msg, nil)
}

func Internal(msg string, cause error) *Error { return new_(KindInternal, "internal_error", msg, cause) }

// Protocol marks a gateway response that could not be parsed. It is surfaced
// as an UpstreamError with no status code, since the body itself, not the
// transport, was the problem.
func Protocol(system UpstreamSystem, msg string, cause error) *Error {
	e := new_(KindUpstream, "protocol_error", msg, cause)
	e.Upstream = system
	return e
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Retryable reports whether the error belongs to a class the orchestrator
// may retry with bounded backoff: transport failures and rate limiting.
func Retryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindTransport || e.Kind == KindRateLimited
	}
	return false
}

// RetryAfter returns the retry-after hint in milliseconds, if any.
func RetryAfter(err error) (int64, bool) {
	var e *Error
	if errors.As(err, &e) && e.RetryAfterMS > 0 {
		return e.RetryAfterMS, true
	}
	return 0, false
}
