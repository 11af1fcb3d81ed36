package storage

import "errors"

var (
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a conditional write loses a race, e.g.
	// the wallet compare-and-swap observing a stale balance.
	ErrConflict = errors.New("conflict")
)
