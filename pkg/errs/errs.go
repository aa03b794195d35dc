// Package errs tags failures with the kind taxonomy from the spec (§7) so
// handlers can pick an HTTP status and the CLI can pick an exit code
// without re-deriving intent from error text.
package errs

import "errors"

// Kind names a failure category. It describes the kind of failure, not a
// source-language type.
type Kind string

const (
	Configuration Kind = "configuration"
	Admission     Kind = "admission"
	Deployment    Kind = "deployment"
	Storage       Kind = "storage"
	Update        Kind = "update"
)

// Error wraps an underlying error with a Kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Msg == "" {
			return e.Err.Error()
		}
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a Kind-tagged error from a message.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap tags an existing error with a Kind, preserving it for errors.Unwrap
// and errors.Is/As chains.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if errors.As(err, &e) {
			if e.Kind == kind {
				return true
			}
			err = e.Err
			continue
		}
		return false
	}
	return false
}
