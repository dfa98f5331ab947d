package model

import (
	"encoding/json"
	"errors"
)

// ErrMissingCommand is returned for a command payload without a name.
var ErrMissingCommand = errors.New("missing command name")

// Command is an instruction addressed to one vehicle. ID and ReceivedAt are
// assigned by the broker when the command enters the history.
type Command struct {
	ID         string         `json:"id,omitempty"`
	VehicleID  string         `json:"vehicleId"`
	Name       string         `json:"command"`
	Parameters map[string]any `json:"parameters"`
	Timestamp  Timestamp      `json:"timestamp"`
	Source     string         `json:"source,omitempty"`
	ReceivedAt Timestamp      `json:"receivedAt"`
}

// UnmarshalJSON accepts licensePlate and license_plate as aliases of
// vehicleId.
func (c *Command) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID                string         `json:"id"`
		VehicleID         string         `json:"vehicleId"`
		LicensePlate      string         `json:"licensePlate"`
		LicensePlateSnake string         `json:"license_plate"`
		Name              string         `json:"command"`
		Parameters        map[string]any `json:"parameters"`
		Timestamp         Timestamp      `json:"timestamp"`
		Source            string         `json:"source"`
		ReceivedAt        Timestamp      `json:"receivedAt"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*c = Command{
		ID:         wire.ID,
		VehicleID:  wire.VehicleID,
		Name:       wire.Name,
		Parameters: wire.Parameters,
		Timestamp:  wire.Timestamp,
		Source:     wire.Source,
		ReceivedAt: wire.ReceivedAt,
	}
	switch {
	case c.VehicleID != "":
	case wire.LicensePlate != "":
		c.VehicleID = wire.LicensePlate
	default:
		c.VehicleID = wire.LicensePlateSnake
	}
	if c.Parameters == nil {
		c.Parameters = map[string]any{}
	}
	return nil
}

// Validate checks the fields the command log depends on.
func (c Command) Validate() error {
	if err := ValidateVehicleID(c.VehicleID); err != nil {
		return err
	}
	if c.Name == "" {
		return ErrMissingCommand
	}
	return nil
}
