package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/vehicle-broker/core/events"
	"github.com/kilianp07/vehicle-broker/core/logger"
	"github.com/kilianp07/vehicle-broker/core/model"
	coremon "github.com/kilianp07/vehicle-broker/core/monitoring"
	"github.com/kilianp07/vehicle-broker/core/store"
	"github.com/kilianp07/vehicle-broker/core/topics"
	"github.com/kilianp07/vehicle-broker/core/transport"
	"github.com/kilianp07/vehicle-broker/internal/eventbus"
)

// Router subscribes to the inbound sensor and command topics, hands each
// message to the Aggregator or CommandLog and relays the raw payload to the
// per-vehicle output topic. Nothing is ever reported back to the publisher.
type Router struct {
	transport transport.Transport
	agg       *Aggregator
	commands  *CommandLog
	pool      *shardedPool
	bus       *eventbus.Bus[events.Event]
	log       logger.Logger
	now       func() time.Time
	newID     func() string

	subs []transport.Subscription
}

// NewRouter wires a Router. bus may be nil.
func NewRouter(tr transport.Transport, agg *Aggregator, cl *CommandLog, cfg Config, bus *eventbus.Bus[events.Event], log logger.Logger) *Router {
	return &Router{
		transport: tr,
		agg:       agg,
		commands:  cl,
		pool:      newShardedPool(cfg.Workers, cfg.QueueSize, log),
		bus:       bus,
		log:       log,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Start launches the workers and registers the topic handlers.
func (r *Router) Start(ctx context.Context) error {
	r.pool.start(context.WithoutCancel(ctx))
	sensors, err := r.transport.PSubscribe(ctx, topics.SensorPattern, r.onSensor)
	if err != nil {
		r.pool.stop()
		return fmt.Errorf("subscribe %s: %w", topics.SensorPattern, err)
	}
	cmds, err := r.transport.PSubscribe(ctx, topics.CommandPattern, r.onCommand)
	if err != nil {
		_ = sensors.Close()
		r.pool.stop()
		return fmt.Errorf("subscribe %s: %w", topics.CommandPattern, err)
	}
	r.subs = []transport.Subscription{sensors, cmds}
	r.log.Infof("router listening on %s and %s", topics.SensorPattern, topics.CommandPattern)
	return nil
}

// Stop unsubscribes, then drains the queued messages.
func (r *Router) Stop() {
	for _, s := range r.subs {
		if err := s.Close(); err != nil {
			r.log.Warnf("close subscription: %v", err)
		}
	}
	r.subs = nil
	r.pool.stop()
}

func (r *Router) onSensor(_ context.Context, msg transport.Message) {
	received := r.now()
	reading, err := ParseSensorReading(msg.Topic, msg.Payload)
	if err != nil {
		r.drop(kindSensor, msg.Topic, "", events.ReasonMalformed, err)
		return
	}
	payload := append([]byte(nil), msg.Payload...)
	if !r.pool.submit(reading.VehicleID, job{kind: kindSensor, run: func(ctx context.Context) {
		_ = r.processSensor(ctx, reading, payload, received)
	}}) {
		r.drop(kindSensor, msg.Topic, reading.VehicleID, events.ReasonQueueClosed, nil)
	}
}

func (r *Router) onCommand(_ context.Context, msg transport.Message) {
	received := r.now()
	cmd, err := r.parseCommand(msg.Topic, msg.Payload, received)
	if err != nil {
		r.drop(kindCommand, msg.Topic, "", events.ReasonMalformed, err)
		return
	}
	payload := append([]byte(nil), msg.Payload...)
	if !r.pool.submit(cmd.VehicleID, job{kind: kindCommand, run: func(ctx context.Context) {
		_ = r.processCommand(ctx, cmd, payload, received)
	}}) {
		r.drop(kindCommand, msg.Topic, cmd.VehicleID, events.ReasonQueueClosed, nil)
	}
}

// HandleSensorUpdate processes one sensor message synchronously on the
// calling goroutine. The returned error is informational; it has already
// been logged and counted.
func (r *Router) HandleSensorUpdate(ctx context.Context, topic string, raw []byte) error {
	received := r.now()
	reading, err := ParseSensorReading(topic, raw)
	if err != nil {
		r.drop(kindSensor, topic, "", events.ReasonMalformed, err)
		return err
	}
	return r.processSensor(ctx, reading, raw, received)
}

// HandleCommand processes one command message synchronously on the calling
// goroutine.
func (r *Router) HandleCommand(ctx context.Context, topic string, raw []byte) error {
	received := r.now()
	cmd, err := r.parseCommand(topic, raw, received)
	if err != nil {
		r.drop(kindCommand, topic, "", events.ReasonMalformed, err)
		return err
	}
	return r.processCommand(ctx, cmd, raw, received)
}

func (r *Router) processSensor(ctx context.Context, reading model.SensorReading, raw []byte, received time.Time) error {
	snap, err := r.agg.Merge(ctx, reading)
	if err != nil {
		r.storeFailure(kindSensor, reading.VehicleID, err)
		return err
	}
	outcome := outcomeRelayed
	if err := r.transport.Publish(ctx, topics.DataTopic(reading.VehicleID), raw); err != nil {
		outcome = outcomeRelayFailed
		r.log.Errorw("relay sensor payload", map[string]any{"vehicle_id": reading.VehicleID, "err": err})
	}
	elapsed := r.now().Sub(received)
	messagesTotal.WithLabelValues(kindSensor, outcome).Inc()
	handleDuration.WithLabelValues(kindSensor).Observe(elapsed.Seconds())
	r.bus.Publish(events.SensorEvent{Reading: reading, Snapshot: snap, Latency: elapsed, Time: r.now()})
	return nil
}

func (r *Router) processCommand(ctx context.Context, cmd model.Command, raw []byte, received time.Time) error {
	if err := r.commands.Append(ctx, cmd); err != nil {
		r.storeFailure(kindCommand, cmd.VehicleID, err)
		return err
	}
	outcome := outcomeRelayed
	if err := r.transport.Publish(ctx, topics.ActiveCommandsTopic(cmd.VehicleID), raw); err != nil {
		outcome = outcomeRelayFailed
		r.log.Errorw("relay command payload", map[string]any{"vehicle_id": cmd.VehicleID, "err": err})
	}
	elapsed := r.now().Sub(received)
	messagesTotal.WithLabelValues(kindCommand, outcome).Inc()
	handleDuration.WithLabelValues(kindCommand).Observe(elapsed.Seconds())
	r.bus.Publish(events.CommandEvent{Command: cmd, Latency: elapsed, Time: r.now()})
	return nil
}

// storeFailure classifies an Aggregator or CommandLog error. Nothing is
// relayed for a message that was not stored.
func (r *Router) storeFailure(kind, vehicleID string, err error) {
	switch {
	case errors.Is(err, ErrMalformedMessage):
		r.drop(kind, "", vehicleID, events.ReasonMalformed, err)
	case errors.Is(err, ErrStaleReading):
		r.log.Debugw("stale reading skipped", map[string]any{"vehicle_id": vehicleID, "err": err})
		messagesTotal.WithLabelValues(kind, outcomeStale).Inc()
		r.bus.Publish(events.DropEvent{Kind: kind, VehicleID: vehicleID, Reason: events.ReasonStale, Err: err, Time: r.now()})
	case errors.Is(err, store.ErrUnavailable):
		r.log.Errorw("store unavailable, message skipped", map[string]any{"kind": kind, "vehicle_id": vehicleID, "err": err})
		coremon.CaptureException(err, map[string]string{"module": "broker", "kind": kind, "vehicle_id": vehicleID})
		messagesTotal.WithLabelValues(kind, outcomeStoreUnavailable).Inc()
		r.bus.Publish(events.DropEvent{Kind: kind, VehicleID: vehicleID, Reason: events.ReasonStoreUnavailable, Err: err, Time: r.now()})
	default:
		r.log.Errorw("store error, message skipped", map[string]any{"kind": kind, "vehicle_id": vehicleID, "err": err})
		messagesTotal.WithLabelValues(kind, outcomeStoreError).Inc()
		r.bus.Publish(events.DropEvent{Kind: kind, VehicleID: vehicleID, Reason: events.ReasonStoreError, Err: err, Time: r.now()})
	}
}

func (r *Router) drop(kind, topic, vehicleID, reason string, err error) {
	fields := map[string]any{"kind": kind, "topic": topic, "reason": reason}
	if err != nil {
		fields["err"] = err
	}
	r.log.Warnw("message dropped", fields)
	outcome := outcomeMalformed
	if reason == events.ReasonQueueClosed {
		outcome = outcomeRejected
	}
	messagesTotal.WithLabelValues(kind, outcome).Inc()
	r.bus.Publish(events.DropEvent{Kind: kind, Topic: topic, VehicleID: vehicleID, Reason: reason, Err: err, Time: r.now()})
}

// ParseSensorReading decodes a sensor payload received on topic. The sensor
// type falls back to the topic suffix when the payload omits it.
func ParseSensorReading(topic string, raw []byte) (model.SensorReading, error) {
	var reading model.SensorReading
	if err := json.Unmarshal(raw, &reading); err != nil {
		return model.SensorReading{}, malformed("sensor payload on %s: %v", topic, err)
	}
	if reading.SensorType == "" {
		if t, ok := topics.SensorTypeFromTopic(topic); ok {
			reading.SensorType = t
		}
	}
	if err := reading.Validate(); err != nil {
		return model.SensorReading{}, malformed("sensor payload on %s: %v", topic, err)
	}
	return reading, nil
}

// parseCommand decodes a command payload. The vehicle id of the topic wins
// over the payload. The broker assigns receivedAt and, when absent, the id
// and timestamp.
func (r *Router) parseCommand(topic string, raw []byte, received time.Time) (model.Command, error) {
	id, ok := topics.VehicleFromCommandTopic(topic)
	if !ok {
		return model.Command{}, malformed("command topic %q", topic)
	}
	var cmd model.Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return model.Command{}, malformed("command payload on %s: %v", topic, err)
	}
	if cmd.VehicleID != "" && cmd.VehicleID != id {
		r.log.Warnw("command vehicle id differs from topic", map[string]any{"topic": topic, "payload_vehicle_id": cmd.VehicleID})
	}
	cmd.VehicleID = id
	if err := cmd.Validate(); err != nil {
		return model.Command{}, malformed("command payload on %s: %v", topic, err)
	}
	cmd.ReceivedAt = model.NewTimestamp(received)
	if cmd.ID == "" {
		cmd.ID = r.newID()
	}
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = cmd.ReceivedAt
	}
	return cmd, nil
}
