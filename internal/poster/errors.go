package poster

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures for callers.
type ErrorKind string

// Error kinds surfaced to API clients.
const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindUpstream   ErrorKind = "upstream"
	KindDownload   ErrorKind = "download"
	KindInternal   ErrorKind = "internal"
)

// ErrNoMatch is returned by resolvers when the upstream has no poster for a title.
var ErrNoMatch = errors.New("no poster match")

// Error carries a kind and a human readable message.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an Error of the given kind.
func NewError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf reports the kind of err, defaulting to KindInternal.
func KindOf(err error) ErrorKind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	if errors.Is(err, ErrNoMatch) {
		return KindNotFound
	}
	return KindInternal
}

// StatusError reports a non-success HTTP status from an upstream.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}
