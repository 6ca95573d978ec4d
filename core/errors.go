package core

import (
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// Kind classifies the errors surfaced to API clients.
type Kind string

const (
	KindDuplicateUser      Kind = "DuplicateUser"
	KindInvalidCredentials Kind = "InvalidCredentials"
	KindUnauthenticated    Kind = "Unauthenticated"
	KindInvalidToken       Kind = "InvalidToken"
	KindNotFound           Kind = "NotFound"
	KindForbidden          Kind = "Forbidden"
	KindCourseNotPublished Kind = "CourseNotPublished"
	KindAlreadyEnrolled    Kind = "AlreadyEnrolled"
	KindValidation         Kind = "ValidationError"
	KindRateLimited        Kind = "RateLimited"
)

// Error is a domain error carrying its Kind.
// Packages declare them as sentinels and compare with errors.Cause.
type Error struct {
	Kind    Kind
	Message string
}

func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func (err *Error) Error() string {
	return err.Message
}

// KindOf returns the Kind of err, or "" when err is not a domain error.
func KindOf(err error) Kind {
	switch e := errors.Cause(err).(type) {
	case *Error:
		return e.Kind
	case *ValidationError, validator.ValidationErrors:
		return KindValidation
	}
	return ""
}

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return "invalid input"
	}
	return err.Err.Error()
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
