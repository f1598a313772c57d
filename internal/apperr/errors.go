package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for status mapping and client exposure.
type Kind string

const (
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindUpstream   Kind = "upstream_query"
	KindRateLimit  Kind = "rate_limit"
	KindUnknown    Kind = "unknown"
)

const (
	upstreamMessage = "Error executing query"
	internalMessage = "Internal server error"
)

// Error annotates a failure with its kind, HTTP status and the operation that produced it.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Op      string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Validation reports missing or malformed request parameters.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// Unauthorized reports a request without credentials.
func Unauthorized(message string) error {
	return &Error{Kind: KindAuth, Status: http.StatusUnauthorized, Message: message}
}

// Forbidden reports a request with credentials that do not match.
func Forbidden(message string) error {
	return &Error{Kind: KindAuth, Status: http.StatusForbidden, Message: message}
}

// TooManyRequests reports a client over its request budget.
func TooManyRequests() error {
	return &Error{Kind: KindRateLimit, Status: http.StatusTooManyRequests, Message: "Too many requests, please try again later"}
}

// Upstream wraps a warehouse failure. The wrapped error is for logs only.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) && existing.Kind == KindUpstream {
		return err
	}
	return &Error{Kind: KindUpstream, Status: http.StatusInternalServerError, Message: upstreamMessage, Op: op, Err: err}
}

// Unknown wraps anything that was not classified.
func Unknown(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindUnknown, Status: http.StatusInternalServerError, Message: internalMessage, Err: err}
}

// KindOf returns the kind of err, defaulting to KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// StatusOf returns the HTTP status to respond with for err.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the text that may be shown to a client.
// Upstream and unclassified failures never expose their cause.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return internalMessage
	}
	switch e.Kind {
	case KindValidation, KindAuth, KindRateLimit:
		return e.Message
	case KindUpstream:
		return upstreamMessage
	default:
		return internalMessage
	}
}
