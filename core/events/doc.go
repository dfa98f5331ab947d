// Package events defines the broker events emitted on the event bus.
//
// Available event types:
//   - SensorEvent: a reading was merged into a vehicle snapshot
//   - CommandEvent: a command was appended to a vehicle history
//   - DropEvent: a message was discarded without being relayed
package events
