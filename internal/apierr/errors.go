// Package apierr defines the uniform error taxonomy and the HATEOAS-style
// result envelope shared by every layer of rserv: the document store, the
// graph overlay, the Sulpher query engine and the async job manager all
// return errors of the kinds declared here so that the HTTP layer can map
// them to status codes without inspecting package-specific error types.
package apierr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error taxonomy entries.
type Kind string

const (
	KindValidation  Kind = "ValidationError"
	KindIntegrity   Kind = "IntegrityError"
	KindNotFound    Kind = "NotFound"
	KindConflict    Kind = "Conflict"
	KindQuerySyntax Kind = "QuerySyntaxError"
	KindQueryRuntime Kind = "QueryRuntimeError"
	KindTimeout     Kind = "TimeoutError"
	KindStorage     Kind = "StorageError"
)

// StatusCode returns the default HTTP status for a Kind. Individual errors
// may override this (e.g. IntegrityError is 400 for a bad FK, 409 for a
// non-cascade delete of a referenced document) via Error.Status.
func (k Kind) StatusCode() int {
	switch k {
	case KindValidation, KindQuerySyntax, KindQueryRuntime:
		return 400
	case KindIntegrity:
		return 400
	case KindNotFound:
		return 404
	case KindConflict:
		return 409
	case KindTimeout, KindStorage:
		return 500
	default:
		return 500
	}
}

// FieldError is one field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the concrete error type carried through the system. It satisfies
// the standard `error` interface and also carries enough structure for the
// HTTP layer to render its response envelope without guesswork.
type Error struct {
	Kind    Kind
	Status  int // overrides Kind.StatusCode() when non-zero
	Message string
	Details []FieldError

	// Query-syntax specific detail.
	Token  string
	Column int

	cause error
}

func (e *Error) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("%s: %s (token %q at column %d)", e.Kind, e.Message, e.Token, e.Column)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// StatusCode resolves the HTTP status to use for this error.
func (e *Error) StatusCode() int {
	if e.Status != 0 {
		return e.Status
	}
	return e.Kind.StatusCode()
}

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new Error of the given kind. Used at storage
// boundaries where an os/io error needs to surface as a generic
// StorageError: logged in full, reduced to a generic 500 for callers.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithStatus overrides the default status code for this Kind (e.g. a
// non-cascading delete of a still-referenced document is an
// IntegrityError answered with 409).
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// WithDetails attaches field-level validation details.
func (e *Error) WithDetails(details ...FieldError) *Error {
	e.Details = append(e.Details, details...)
	return e
}

// WithToken attaches the offending-token/column detail for a
// QuerySyntaxError.
func (e *Error) WithToken(token string, column int) *Error {
	e.Token = token
	e.Column = column
	return e
}

// NotFound builds a standard "entity/document/job not found" error.
func NotFound(what string) *Error {
	return New(KindNotFound, what+" not found")
}

// As is a convenience wrapper around errors.As for *Error.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, and
// KindStorage otherwise — the conservative default for unexpected errors
// reaching an API boundary.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindStorage
}
