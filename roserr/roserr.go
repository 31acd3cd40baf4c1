// Package roserr defines the exhaustive error taxonomy shared by every layer
// of the middleware, from the connection abstraction up to the node runtime.
package roserr

import "github.com/pkg/errors"

// Kind is one of the exhaustive error kinds a layer of this middleware may
// produce. Callers decide retry/close policy from the Kind, never from the
// wrapped message.
type Kind int

const (
	OK Kind = iota
	TIMEOUT
	NOMEM
	PARSE
	EOF
	BADPARAM
	NOCONN
	BADCONN
	NOTIMPL
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "OK"
	case TIMEOUT:
		return "TIMEOUT"
	case NOMEM:
		return "NOMEM"
	case PARSE:
		return "PARSE"
	case EOF:
		return "EOF"
	case BADPARAM:
		return "BADPARAM"
	case NOCONN:
		return "NOCONN"
	case BADCONN:
		return "BADCONN"
	case NOTIMPL:
		return "NOTIMPL"
	default:
		return "UNKNOWN"
	}
}

// Error pairs a Kind with the context that produced it. It wraps an
// underlying cause (if any) using github.com/pkg/errors so %+v at the
// outermost boundary prints a stack trace.
type Error struct {
	Kind    Kind
	Context string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Kind.String() + ": " + e.Context + ": " + e.cause.Error()
	}
	return e.Kind.String() + ": " + e.Context
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an Error of the given kind with no wrapped cause.
func New(kind Kind, context string) *Error {
	return &Error{Kind: kind, Context: context}
}

// Wrap annotates cause with a Kind and context, attaching a stack trace via
// github.com/pkg/errors when cause does not already carry one.
func Wrap(kind Kind, context string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Context: context, cause: errors.WithStack(cause)}
}

// Is reports whether err is a *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
