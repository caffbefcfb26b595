// Package apperr defines the error taxonomy surfaced by the conversation
// service: validation failures, missing entities and authorization
// failures. The HTTP layer maps these to 400/404/403.
package apperr

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Kind classifies a service error.
type Kind int

const (
	KindValidation Kind = iota
	KindNotFound
	KindForbidden
)

// Error is a typed service error.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Validation builds a ValidationError.
func Validation(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a NotFound error.
func NotFound(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Forbidden builds a Forbidden error.
func Forbidden(format string, args ...interface{}) error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool { return is(err, KindValidation) }

// IsNotFound reports whether err is (or wraps) a NotFound error.
func IsNotFound(err error) bool { return is(err, KindNotFound) }

// IsForbidden reports whether err is (or wraps) a Forbidden error.
func IsForbidden(err error) bool { return is(err, KindForbidden) }

// HTTPStatus maps an error to its HTTP status code. Unclassified errors
// map to 500.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}
