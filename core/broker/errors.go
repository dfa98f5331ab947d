package broker

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedMessage is returned when a payload fails to parse or
	// validate. The router logs and drops such messages.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrStaleReading is returned by Merge when stale rejection is enabled
	// and the reading is older than the stored value.
	ErrStaleReading = errors.New("stale reading")
	// ErrCorruptSnapshot is returned when a cached snapshot cannot be
	// decoded.
	ErrCorruptSnapshot = errors.New("corrupt snapshot")
	// ErrNotRunning is returned by Start/Stop misuse.
	ErrNotRunning = errors.New("broker not running")
)

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedMessage, fmt.Sprintf(format, args...))
}
