package store

import (
	"errors"
	"fmt"
)

var (
	ErrConflict            = errors.New("conflict")
	ErrNotFound            = errors.New("not found")
	ErrIdempotencyConflict = errors.New("idempotency key conflict")
	ErrUnavailable         = errors.New("store unavailable")
)

// Unavailable wraps a backend failure so callers can tell it apart from an
// empty collection.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
