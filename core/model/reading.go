package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sensor types emitted by the simulated fleet. Any other string is accepted.
const (
	SensorIndoorTemp  = "indoorTemp"
	SensorOutdoorTemp = "outdoorTemp"
	SensorGPS         = "gps"
)

// ErrMissingSensorType is returned when neither the payload nor the topic
// names a sensor type.
var ErrMissingSensorType = errors.New("missing sensor type")

// SensorReading is a single measurement published by a sensor producer.
type SensorReading struct {
	VehicleID  string          `json:"vehicleId"`
	SensorType string          `json:"sensorType"`
	Value      json.RawMessage `json:"value"`
	Timestamp  Timestamp       `json:"timestamp"`
	Source     string          `json:"source,omitempty"`
}

// UnmarshalJSON accepts licensePlate as an alias of vehicleId.
func (r *SensorReading) UnmarshalJSON(data []byte) error {
	var wire struct {
		VehicleID    string          `json:"vehicleId"`
		LicensePlate string          `json:"licensePlate"`
		SensorType   string          `json:"sensorType"`
		Value        json.RawMessage `json:"value"`
		Timestamp    Timestamp       `json:"timestamp"`
		Source       string          `json:"source"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*r = SensorReading{
		VehicleID:  wire.VehicleID,
		SensorType: wire.SensorType,
		Value:      wire.Value,
		Timestamp:  wire.Timestamp,
		Source:     wire.Source,
	}
	if r.VehicleID == "" {
		r.VehicleID = wire.LicensePlate
	}
	return nil
}

// Validate checks the fields the aggregator depends on.
func (r SensorReading) Validate() error {
	if err := ValidateVehicleID(r.VehicleID); err != nil {
		return err
	}
	if r.SensorType == "" {
		return ErrMissingSensorType
	}
	if len(r.Value) == 0 || !json.Valid(r.Value) {
		return fmt.Errorf("sensor %s: missing or invalid value", r.SensorType)
	}
	return nil
}

// SensorEntry is the per-sensor record kept in a vehicle's sensor hash.
type SensorEntry struct {
	Value     json.RawMessage `json:"value"`
	Timestamp Timestamp       `json:"timestamp"`
	Source    string          `json:"source,omitempty"`
}

// Entry returns the hash record for the reading.
func (r SensorReading) Entry() SensorEntry {
	return SensorEntry{Value: r.Value, Timestamp: r.Timestamp, Source: r.Source}
}
