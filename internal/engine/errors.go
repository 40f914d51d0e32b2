package engine

import (
	"errors"
	"fmt"

	"ledgerlens/internal/core"
)

type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindConfiguration ErrorKind = "configuration"
	KindNotFound      ErrorKind = "not_found"
	KindStore         ErrorKind = "store"
)

// Error is returned by every Engine operation. errors.Is and errors.As
// reach the wrapped core error.
type Error struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// wrap classifies err for op. Anything that is not a core error is a
// store failure.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var already *Error
	if errors.As(err, &already) {
		return err
	}
	kind := KindStore
	switch {
	case errors.Is(err, core.ErrValidation):
		kind = KindValidation
	case errors.Is(err, core.ErrConfiguration):
		kind = KindConfiguration
	case errors.Is(err, core.ErrNotFound):
		kind = KindNotFound
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// KindOf returns the kind of an engine error, or "" for any other error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
