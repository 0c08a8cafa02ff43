package core

import "github.com/pkg/errors"

// ErrDuplicateJoinCode is returned by repositories when a freshly generated join code collides with an existing one.
var ErrDuplicateJoinCode = errors.New("join code already in use")

type ErrorKind int

const (
	KindNotFound ErrorKind = iota + 1
	KindConflict
	KindForbidden
	KindBadRequest
	KindUnauthorized
)

// Error is a domain error the API layer knows how to present to clients.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (err *Error) Error() string { return err.Message }

func NewNotFoundError(msg string) *Error     { return &Error{Kind: KindNotFound, Message: msg} }
func NewConflictError(msg string) *Error     { return &Error{Kind: KindConflict, Message: msg} }
func NewForbiddenError(msg string) *Error    { return &Error{Kind: KindForbidden, Message: msg} }
func NewBadRequestError(msg string) *Error   { return &Error{Kind: KindBadRequest, Message: msg} }
func NewUnauthorizedError(msg string) *Error { return &Error{Kind: KindUnauthorized, Message: msg} }

// IsKind reports whether the cause of err is a domain Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	e, ok := errors.Cause(err).(*Error)
	return ok && e.Kind == kind
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
		return "validation failed"
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
