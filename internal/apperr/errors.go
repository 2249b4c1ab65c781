// Package apperr defines sentinel errors shared across the engine.
// The API layer maps them onto HTTP status codes.
package apperr

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid input")
	ErrConflict = errors.New("conflict")
	ErrStale    = errors.New("stale update")
	ErrBusy     = errors.New("operation already in flight")
)
