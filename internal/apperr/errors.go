package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindForbidden
	KindInvalidState
	KindExpired
	KindConflict
)

// Error carries a kind and a short machine-stable message.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// New builds an error of the given kind.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf builds a formatted error of the given kind.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Validation(msg string) error   { return New(KindValidation, msg) }
func NotFound(msg string) error     { return New(KindNotFound, msg) }
func Forbidden(msg string) error    { return New(KindForbidden, msg) }
func InvalidState(msg string) error { return New(KindInvalidState, msg) }
func Expired(msg string) error      { return New(KindExpired, msg) }
func Conflict(msg string) error     { return New(KindConflict, msg) }

// KindOf extracts the kind, defaulting to KindInternal for unknown errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is an application error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// HTTPStatus maps an error to its response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidState, KindConflict:
		return http.StatusConflict
	case KindExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
