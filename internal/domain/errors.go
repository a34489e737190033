package domain

import (
	"errors"
	"fmt"
)

var (
	ErrBusy            = errors.New("pipeline busy")
	ErrNoImage         = errors.New("no image supplied")
	ErrSessionNotFound = errors.New("session not found")
)

// ErrorKind classifies pipeline failures so presentation code can format a
// message per kind without parsing error strings.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindDecode     ErrorKind = "decode"
	KindTransport  ErrorKind = "transport"
	KindProtocol   ErrorKind = "protocol"
	KindWorkflow   ErrorKind = "workflow"
)

// Error is the classified failure produced by pipeline stages. Message is safe
// to show to a user; Err keeps the underlying cause for logs. Remote is set
// when Message was supplied verbatim by the remote service.
type Error struct {
	Kind    ErrorKind
	Message string
	Remote  bool
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified error.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// RemoteError builds a workflow error whose message came from the remote service.
func RemoteError(message string) *Error {
	return &Error{Kind: KindWorkflow, Message: message, Remote: true}
}

// AsError extracts the classified error from err's chain.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// KindOf returns the classification of err, or "" when err is not classified.
func KindOf(err error) ErrorKind {
	if de, ok := AsError(err); ok {
		return de.Kind
	}
	return ""
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}
