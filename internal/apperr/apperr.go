// Package apperr defines the error kinds shared by the quality-control core.
//
// Packages wrap one of the sentinel errors with fmt.Errorf and %w so callers
// can classify failures with errors.Is or KindOf without parsing messages.
package apperr

import (
	"errors"
)

// Sentinel errors. Wrap these; never compare error strings.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	Unexpected Kind = iota
	NotFound
	Forbidden
	InvalidInput
	Conflict
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Forbidden:
		return "forbidden"
	case InvalidInput:
		return "invalid_input"
	case Conflict:
		return "conflict"
	default:
		return "unexpected"
	}
}

// KindOf returns the Kind of err. Nil and unclassified errors are Unexpected.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return Unexpected
	case errors.Is(err, ErrNotFound):
		return NotFound
	case errors.Is(err, ErrForbidden):
		return Forbidden
	case errors.Is(err, ErrInvalidInput):
		return InvalidInput
	case errors.Is(err, ErrConflict):
		return Conflict
	default:
		return Unexpected
	}
}
