// Package apperr defines the error taxonomy shared by the library services.
//
// Every expected business outcome (bad input, missing book, limit reached,
// declined payment) is returned as an *Error whose Message is safe to show to
// a patron or librarian. Codes are stable and can be matched with errors.Is
// against the sentinels below.
package apperr

import (
	"errors"
	"net/http"
)

// Kind groups codes by how a caller should react.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindConflict
	KindStorage
	KindGateway
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindStorage:
		return "storage"
	case KindGateway:
		return "gateway"
	default:
		return "unknown"
	}
}

// Error is a failed operation with a user-facing message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is matching. Their messages are generic; the
// constructors below attach the specific text.
var (
	ErrInvalidPatron = &Error{Kind: KindValidation, Code: "InvalidPatron", Message: "invalid patron"}
	ErrInvalidInput  = &Error{Kind: KindValidation, Code: "InvalidInput", Message: "invalid input"}
	ErrNoFees        = &Error{Kind: KindValidation, Code: "NoFees", Message: "no fees"}
	ErrNotFound      = &Error{Kind: KindNotFound, Code: "NotFound", Message: "not found"}
	ErrUnavailable   = &Error{Kind: KindConflict, Code: "Unavailable", Message: "unavailable"}
	ErrLimitReached  = &Error{Kind: KindConflict, Code: "LimitReached", Message: "limit reached"}
	ErrNotBorrowed   = &Error{Kind: KindConflict, Code: "NotBorrowed", Message: "not borrowed"}
	ErrAlreadyExists = &Error{Kind: KindConflict, Code: "AlreadyExists", Message: "already exists"}
	ErrStorage       = &Error{Kind: KindStorage, Code: "StorageError", Message: "storage error"}
	ErrGateway       = &Error{Kind: KindGateway, Code: "GatewayError", Message: "gateway error"}
)

// New returns a copy of the sentinel with msg as its message.
func New(sentinel *Error, msg string) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Message: msg}
}

// Wrap is New with an underlying cause.
func Wrap(sentinel *Error, msg string, err error) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Message: msg, Err: err}
}

// KindOf returns the kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// CodeOf returns the code of err, or "" when err is not an *Error.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HTTPStatus maps an error to the status code the HTTP handlers answer with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
