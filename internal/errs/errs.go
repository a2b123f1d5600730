// Package errs defines the failure taxonomy shared by the tour pipeline.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure
type Kind string

const (
	// KindValidation is a caller error reported before any file or process I/O
	KindValidation Kind = "validation"
	// KindSolver means the external engine exited non-zero
	KindSolver Kind = "solver"
	// KindTimeout means the engine ran past its wall-clock budget and was killed
	KindTimeout Kind = "timeout"
	// KindUnavailable means the engine circuit breaker is open
	KindUnavailable Kind = "unavailable"
	// KindDecode means the engine's tour file was missing, empty or corrupt
	KindDecode Kind = "decode"
	// KindIO covers scratch-file creation, write and read errors
	KindIO Kind = "io"
)

// Error is a tagged pipeline error
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s failure: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s failure: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err with a kind and the operation that produced it
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validation builds a validation failure from a formatted message
func Validation(op, format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Op: op, Err: fmt.Errorf(format, args...)}
}

// Decode builds a decode failure from a formatted message
func Decode(op, format string, args ...interface{}) error {
	return &Error{Kind: KindDecode, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost tagged error in err's chain, or ""
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
