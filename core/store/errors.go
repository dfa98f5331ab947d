package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a key does not exist or has expired.
	ErrNotFound = errors.New("key not found")
	// ErrUnavailable is returned when the store cannot be reached or the
	// operation timed out.
	ErrUnavailable = errors.New("store unavailable")
)

// Unavailable wraps err so that errors.Is(err, ErrUnavailable) holds.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
