package metrics

import (
	"encoding/json"
	"time"
)

// MessageEvent describes the outcome of handling one inbound message.
type MessageEvent struct {
	Kind      string
	VehicleID string
	Outcome   string
	Latency   time.Duration
	Time      time.Time
}

// MetricsSink records message outcomes. Every sink implements it; the
// narrower recorders below are optional.
type MetricsSink interface {
	RecordMessage(ev MessageEvent) error
}

// SensorValueEvent is a reading as seen by observability backends. Numeric is
// false for structured values such as GPS fixes.
type SensorValueEvent struct {
	VehicleID  string
	SensorType string
	Value      float64
	Numeric    bool
	Raw        json.RawMessage
	Source     string
	Time       time.Time
}

// SensorValueRecorder records individual sensor values.
type SensorValueRecorder interface {
	RecordSensorValue(ev SensorValueEvent) error
}

// CommandEvent describes a command accepted into a vehicle history.
type CommandEvent struct {
	CommandID string
	VehicleID string
	Command   string
	Source    string
	Time      time.Time
}

// CommandRecorder records accepted commands.
type CommandRecorder interface {
	RecordCommand(ev CommandEvent) error
}

// DropEvent describes a discarded message.
type DropEvent struct {
	Kind      string
	VehicleID string
	Reason    string
	Time      time.Time
}

// DropRecorder records discarded messages.
type DropRecorder interface {
	RecordDrop(ev DropEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordMessage(MessageEvent) error         { return nil }
func (NopSink) RecordSensorValue(SensorValueEvent) error { return nil }
func (NopSink) RecordCommand(CommandEvent) error         { return nil }
func (NopSink) RecordDrop(DropEvent) error               { return nil }
