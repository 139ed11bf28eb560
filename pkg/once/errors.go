package once

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrEntryNotFound indicates no record exists for an entry id
	ErrEntryNotFound = errors.New("entry not found")

	// ErrEntryExists indicates a record with the same id already exists
	ErrEntryExists = errors.New("entry already exists")

	// ErrEntryAlreadyServed indicates the pending to served transition was lost
	ErrEntryAlreadyServed = errors.New("entry already served")

	// ErrObjectNotFound indicates the stored object does not exist
	ErrObjectNotFound = errors.New("object not found")

	// ErrInvalidFilename indicates a filename that cannot be used as an object key segment
	ErrInvalidFilename = errors.New("invalid filename")
)

// Kind classifies an error for the request boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthorized
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is returned by Service operations. Message is safe to show to
// callers; Err carries the underlying cause for logs.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
// Errors that carry no kind are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-facing message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "Internal server error"
}
