package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidVehicleID is returned when a vehicle identifier cannot be used
// as part of a storage key or topic.
var ErrInvalidVehicleID = errors.New("invalid vehicle id")

var platePattern = regexp.MustCompile(`^[A-Z]{3}-[0-9]{3}$`)

// ValidateVehicleID checks that id is non-empty and free of key separators,
// whitespace, glob characters and MQTT topic characters. The identifier is
// otherwise opaque.
func ValidateVehicleID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidVehicleID)
	}
	if strings.ContainsAny(id, ":*?[]\\/+# \t\r\n") {
		return fmt.Errorf("%w: %q contains reserved characters", ErrInvalidVehicleID, id)
	}
	return nil
}

// IsLicensePlate reports whether id follows the AAA-999 plate format used by
// the simulated fleet.
func IsLicensePlate(id string) bool { return platePattern.MatchString(id) }
