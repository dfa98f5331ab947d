package metrics

import (
	"context"
	"encoding/json"

	"github.com/kilianp07/vehicle-broker/core/events"
	coremetrics "github.com/kilianp07/vehicle-broker/core/metrics"
	"github.com/kilianp07/vehicle-broker/infra/logger"
	"github.com/kilianp07/vehicle-broker/internal/eventbus"
)

// Message kinds and the outcome recorded for successfully handled messages.
const (
	KindSensor     = "sensor"
	KindCommand    = "command"
	OutcomeHandled = "handled"
)

// StartEventCollector subscribes to the event bus and records metrics for
// events. It stops when the context is canceled or the bus is closed; the
// returned channel is closed once the collector has exited.
func StartEventCollector(ctx context.Context, bus *eventbus.Bus[events.Event], sink coremetrics.MetricsSink, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := record(sink, ev); err != nil {
					log.Warnf("metrics sink: %v", err)
				}
			}
		}
	}()
	return done
}

func record(sink coremetrics.MetricsSink, ev events.Event) error {
	switch e := ev.(type) {
	case events.SensorEvent:
		if err := sink.RecordMessage(coremetrics.MessageEvent{
			Kind: KindSensor, VehicleID: e.Reading.VehicleID, Outcome: OutcomeHandled, Latency: e.Latency, Time: e.Time,
		}); err != nil {
			return err
		}
		if r, ok := sink.(coremetrics.SensorValueRecorder); ok {
			return r.RecordSensorValue(sensorValue(e))
		}
	case events.CommandEvent:
		if err := sink.RecordMessage(coremetrics.MessageEvent{
			Kind: KindCommand, VehicleID: e.Command.VehicleID, Outcome: OutcomeHandled, Latency: e.Latency, Time: e.Time,
		}); err != nil {
			return err
		}
		if r, ok := sink.(coremetrics.CommandRecorder); ok {
			return r.RecordCommand(coremetrics.CommandEvent{
				CommandID: e.Command.ID,
				VehicleID: e.Command.VehicleID,
				Command:   e.Command.Name,
				Source:    e.Command.Source,
				Time:      e.Time,
			})
		}
	case events.DropEvent:
		if err := sink.RecordMessage(coremetrics.MessageEvent{
			Kind: e.Kind, VehicleID: e.VehicleID, Outcome: e.Reason, Time: e.Time,
		}); err != nil {
			return err
		}
		if r, ok := sink.(coremetrics.DropRecorder); ok {
			return r.RecordDrop(coremetrics.DropEvent{Kind: e.Kind, VehicleID: e.VehicleID, Reason: e.Reason, Time: e.Time})
		}
	}
	return nil
}

func sensorValue(e events.SensorEvent) coremetrics.SensorValueEvent {
	ev := coremetrics.SensorValueEvent{
		VehicleID:  e.Reading.VehicleID,
		SensorType: e.Reading.SensorType,
		Raw:        e.Reading.Value,
		Source:     e.Reading.Source,
		Time:       e.Reading.Timestamp.Time,
	}
	if ev.Time.IsZero() {
		ev.Time = e.Time
	}
	var f float64
	if err := json.Unmarshal(e.Reading.Value, &f); err == nil {
		ev.Value = f
		ev.Numeric = true
	}
	return ev
}
