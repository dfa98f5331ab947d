package events

import (
	"time"

	"github.com/kilianp07/vehicle-broker/core/model"
)

// Event is implemented by every broker event.
type Event interface {
	EventTime() time.Time
}

// SensorEvent is published after a reading has been merged and the snapshot
// rewritten.
type SensorEvent struct {
	Reading  model.SensorReading
	Snapshot model.VehicleSnapshot
	Latency  time.Duration
	Time     time.Time
}

// CommandEvent is published after a command has been recorded.
type CommandEvent struct {
	Command model.Command
	Latency time.Duration
	Time    time.Time
}

// Drop reasons.
const (
	ReasonMalformed        = "malformed"
	ReasonStoreUnavailable = "store_unavailable"
	ReasonStoreError       = "store_error"
	ReasonStale            = "stale"
	ReasonQueueClosed      = "queue_closed"
)

// DropEvent is published when a message is discarded.
type DropEvent struct {
	Kind      string
	Topic     string
	VehicleID string
	Reason    string
	Err       error
	Time      time.Time
}

func (e SensorEvent) EventTime() time.Time  { return e.Time }
func (e CommandEvent) EventTime() time.Time { return e.Time }
func (e DropEvent) EventTime() time.Time    { return e.Time }
