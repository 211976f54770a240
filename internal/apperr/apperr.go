// Package apperr defines the single error type that crosses the service
// boundary. Everything a client sees is derived from Kind, Status and Message.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation         Kind = "validation"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindUnauthorized       Kind = "unauthorized"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindTooManyRequests    Kind = "too_many_requests"
	KindInternal           Kind = "internal"
)

var statusByKind = map[Kind]int{
	KindValidation:         http.StatusBadRequest,
	KindInvalidCredentials: http.StatusUnauthorized,
	KindUnauthorized:       http.StatusUnauthorized,
	KindNotFound:           http.StatusNotFound,
	KindConflict:           http.StatusConflict,
	KindTooManyRequests:    http.StatusTooManyRequests,
	KindInternal:           http.StatusInternalServerError,
}

type Error struct {
	Kind    Kind
	Status  int
	Message string
	Errors  []string
	// Err is the underlying cause. It is logged, never rendered.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	return &Error{Kind: kind, Status: status, Message: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	e := New(kind, msg)
	e.Err = err
	return e
}

func Validation(msg string, details ...string) *Error {
	e := New(KindValidation, msg)
	e.Errors = details
	return e
}

func InvalidCredentials(msg string) *Error { return New(KindInvalidCredentials, msg) }
func Unauthorized(msg string) *Error       { return New(KindUnauthorized, msg) }
func NotFound(msg string) *Error           { return New(KindNotFound, msg) }
func Conflict(msg string) *Error           { return New(KindConflict, msg) }
func TooManyRequests(msg string) *Error    { return New(KindTooManyRequests, msg) }

func Internal(err error) *Error {
	return Wrap(KindInternal, "Internal server error", err)
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

func IsKind(err error, kind Kind) bool {
	ae, ok := As(err)
	return ok && ae.Kind == kind
}
