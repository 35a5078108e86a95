package utils

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies failures surfaced by the gateway and the client core.
type ErrorKind string

const (
	// KindTransport covers network, dial, timeout and cancellation failures.
	KindTransport ErrorKind = "transport"
	// KindServer covers non-2xx backend responses other than 401.
	KindServer ErrorKind = "server"
	// KindAuth marks a 401 from the backend; callers are expected to send the operator to sign-in.
	KindAuth ErrorKind = "auth"
	// KindValidation marks malformed client-side input that was never sent.
	KindValidation ErrorKind = "validation"
)

// AppError wraps an operation, human-facing message, and underlying error.
type AppError struct {
	Op     string
	Msg    string
	Kind   ErrorKind
	Status int
	Err    error
}

func (e *AppError) Error() string {
	prefix := e.Op
	if e.Status != 0 {
		prefix = fmt.Sprintf("%s (%d)", e.Op, e.Status)
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", prefix, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", prefix, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError without a kind.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// NewTransportError reports a request that never produced an HTTP response.
func NewTransportError(op string, err error) error {
	return &AppError{Op: op, Msg: "backend unreachable", Kind: KindTransport, Err: err}
}

// NewServerError reports a non-2xx response. A 401 status yields an auth error instead.
func NewServerError(op string, status int, msg string) error {
	if status == http.StatusUnauthorized {
		return NewAuthError(op, msg)
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &AppError{Op: op, Msg: msg, Kind: KindServer, Status: status}
}

// NewAuthError reports a rejected or missing credential.
func NewAuthError(op, msg string) error {
	if msg == "" {
		msg = "authentication required"
	}
	return &AppError{Op: op, Msg: msg, Kind: KindAuth, Status: http.StatusUnauthorized}
}

// NewValidationError reports client-side input that was rejected before any request.
func NewValidationError(op, msg string) error {
	return &AppError{Op: op, Msg: msg, Kind: KindValidation}
}

// KindOf returns the kind of the first AppError in the chain, or "" when there is none.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// IsAuth is shorthand for IsKind(err, KindAuth).
func IsAuth(err error) bool { return IsKind(err, KindAuth) }

// StatusOf returns the HTTP status recorded on err, or zero.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return 0
}
