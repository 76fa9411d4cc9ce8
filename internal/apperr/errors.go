// Package apperr holds sentinel errors shared across packages.
package apperr

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	// ErrNoData is returned when a command needs stored scan output and there is none yet.
	ErrNoData = errors.New("no data")
)
