package model

import "encoding/json"

// VehicleSnapshot is the aggregated latest-known value per sensor type for
// one vehicle.
type VehicleSnapshot struct {
	VehicleID       string                     `json:"vehicleId"`
	Timestamp       Timestamp                  `json:"timestamp"`
	Fields          map[string]json.RawMessage `json:"fields"`
	FieldTimestamps map[string]Timestamp       `json:"fieldTimestamps"`
}

// NewSnapshot returns an empty snapshot for id.
func NewSnapshot(id string) VehicleSnapshot {
	return VehicleSnapshot{
		VehicleID:       id,
		Fields:          make(map[string]json.RawMessage),
		FieldTimestamps: make(map[string]Timestamp),
	}
}

// Set overwrites one sensor field.
func (s *VehicleSnapshot) Set(sensorType string, e SensorEntry) {
	if s.Fields == nil {
		s.Fields = make(map[string]json.RawMessage)
	}
	if s.FieldTimestamps == nil {
		s.FieldTimestamps = make(map[string]Timestamp)
	}
	s.Fields[sensorType] = e.Value
	s.FieldTimestamps[sensorType] = e.Timestamp
}

// Float decodes a numeric field. ok is false when the field is missing or not
// a number.
func (s VehicleSnapshot) Float(sensorType string) (v float64, ok bool) {
	raw, found := s.Fields[sensorType]
	if !found {
		return 0, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	return v, true
}
