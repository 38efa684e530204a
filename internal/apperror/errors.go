package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind tags a failure so the boundary layer can pick a status code or socket error code.
type Kind int

const (
	KindInfrastructure Kind = iota
	KindValidation
	KindUnauthorized
	KindNotFound
	KindAccessDenied
	KindConflict
)

// Error is the tagged failure returned by every service operation.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func AccessDenied(msg string) *Error {
	return &Error{Kind: KindAccessDenied, Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

// Infrastructure wraps a storage or transport failure. The message is what callers see; err is only logged.
func Infrastructure(msg string, err error) *Error {
	return &Error{Kind: KindInfrastructure, Message: msg, Err: err}
}

// KindOf reports the kind of err. Untagged errors are infrastructure failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfrastructure
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps err to the response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindAccessDenied:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Code maps err to the code carried by socket `error` events.
func Code(err error) string {
	switch KindOf(err) {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindUnauthorized:
		return "UNAUTHORIZED"
	case KindNotFound:
		return "NOT_FOUND"
	case KindAccessDenied:
		return "ACCESS_DENIED"
	case KindConflict:
		return "CONFLICT"
	default:
		return "SERVER_ERROR"
	}
}

// PublicMessage is the message safe to hand back to a caller. Infrastructure causes are never exposed.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Internal server error"
}
