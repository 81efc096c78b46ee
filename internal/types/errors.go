package types

import (
	"errors"
	"fmt"
)

// ErrNotFound reports that an entity or milestone is absent after full
// resolution. Returned as a typed failure, never retried automatically.
var ErrNotFound = errors.New("not found")

// ErrDisposed reports an operation against a disposed content store.
var ErrDisposed = errors.New("content store disposed")

// ValidationError reports a malformed request: missing required fields,
// an unknown status, or a mutation attempt against a cross-branch task.
// It is a client error, not a server fault.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// AmbiguousError reports that a milestone title resolves to more than one
// active milestone.
type AmbiguousError struct {
	Input   string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous reference %q matches %v", e.Input, e.Matches)
}

// ParseError reports a single malformed entity file. Hydration logs and
// skips the file; the error never aborts a cache build and is never
// surfaced from read paths.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
