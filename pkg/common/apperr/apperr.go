package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error by how it is reported at the HTTP boundary.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindTransportAuth Kind = "transport_auth"
	KindSystem        Kind = "system"
)

// GenericMessage is shown to users for system and transport failures.
const GenericMessage = "internal error"

// Error carries a kind, a user-facing message and an optional cause.
// The cause is for logs only.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Validation(msg string) *Error { return New(KindValidation, msg) }

func NotFound(msg string) *Error { return New(KindNotFound, msg) }

// KindOf returns the kind of the first *Error in err's chain, or KindSystem.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindSystem
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Status maps err to an HTTP status code.
func Status(err error) int {
	switch KindOf(err) {
	case KindValidation, KindTransportAuth:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns text safe to show an end user.
func PublicMessage(err error) string {
	var ae *Error
	if !errors.As(err, &ae) {
		return GenericMessage
	}
	switch ae.Kind {
	case KindValidation, KindNotFound, KindConflict:
		return ae.Message
	default:
		return GenericMessage
	}
}
