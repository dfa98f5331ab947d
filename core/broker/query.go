package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/vehicle-broker/core/logger"
	"github.com/kilianp07/vehicle-broker/core/model"
	"github.com/kilianp07/vehicle-broker/core/store"
	"github.com/kilianp07/vehicle-broker/core/topics"
	"github.com/kilianp07/vehicle-broker/core/transport"
)

// SensorValue is one field of a snapshot.
type SensorValue struct {
	VehicleID  string          `json:"vehicleId"`
	SensorType string          `json:"sensorType"`
	Value      json.RawMessage `json:"value"`
	Timestamp  model.Timestamp `json:"timestamp"`
}

// QueryService is the read-only façade over the store used by the HTTP API,
// the CLI and the uplink. Store failures are returned to the caller; absent
// data is reported with found=false.
type QueryService struct {
	store     store.KeyValueStore
	commands  *CommandLog
	transport transport.Transport
	timeout   time.Duration
	log       logger.Logger
	now       func() time.Time
}

// NewQueryService returns a QueryService. tr is only needed by
// PublishCommand and may be nil.
func NewQueryService(st store.KeyValueStore, cl *CommandLog, tr transport.Transport, cfg Config, log logger.Logger) *QueryService {
	return &QueryService{store: st, commands: cl, transport: tr, timeout: cfg.storeTimeout(), log: log, now: time.Now}
}

// LatestSnapshot returns the cached snapshot of a vehicle.
func (q *QueryService) LatestSnapshot(ctx context.Context, vehicleID string) (model.VehicleSnapshot, bool, error) {
	if model.ValidateVehicleID(vehicleID) != nil {
		return model.VehicleSnapshot{}, false, nil
	}
	var raw string
	err := callWithTimeout(ctx, q.timeout, func(ctx context.Context) (err error) {
		raw, err = q.store.Get(ctx, topics.LatestDataKey(vehicleID))
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return model.VehicleSnapshot{}, false, nil
	}
	if err != nil {
		return model.VehicleSnapshot{}, false, err
	}
	var snap model.VehicleSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return model.VehicleSnapshot{}, false, fmt.Errorf("%w: %s: %w", ErrCorruptSnapshot, vehicleID, err)
	}
	return snap, true, nil
}

// SensorValue returns one field of the latest snapshot.
func (q *QueryService) SensorValue(ctx context.Context, vehicleID, sensorType string) (SensorValue, bool, error) {
	snap, found, err := q.LatestSnapshot(ctx, vehicleID)
	if err != nil || !found {
		return SensorValue{}, false, err
	}
	v, ok := snap.Fields[sensorType]
	if !ok {
		return SensorValue{}, false, nil
	}
	return SensorValue{
		VehicleID:  vehicleID,
		SensorType: sensorType,
		Value:      v,
		Timestamp:  snap.FieldTimestamps[sensorType],
	}, true, nil
}

// CommandHistory returns up to limit commands, most recent first.
func (q *QueryService) CommandHistory(ctx context.Context, vehicleID string, limit int) ([]model.Command, error) {
	return q.commands.Recent(ctx, vehicleID, limit)
}

// AllVehicles returns every cached snapshot ordered by vehicle id. Keys that
// expire between listing and reading and undecodable snapshots are skipped.
func (q *QueryService) AllVehicles(ctx context.Context) ([]model.VehicleSnapshot, error) {
	var keys []string
	if err := callWithTimeout(ctx, q.timeout, func(ctx context.Context) (err error) {
		keys, err = q.store.KeysMatching(ctx, topics.LatestDataPattern)
		return err
	}); err != nil {
		return nil, err
	}
	out := make([]model.VehicleSnapshot, 0, len(keys))
	for _, key := range keys {
		id, ok := topics.VehicleFromLatestDataKey(key)
		if !ok {
			continue
		}
		snap, found, err := q.LatestSnapshot(ctx, id)
		if errors.Is(err, ErrCorruptSnapshot) {
			q.log.Warnw("skipping corrupt snapshot", map[string]any{"vehicle_id": id, "err": err})
			continue
		}
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VehicleID < out[j].VehicleID })
	return out, nil
}

// Health pings the store.
func (q *QueryService) Health(ctx context.Context) error {
	return callWithTimeout(ctx, q.timeout, q.store.Ping)
}

// PublishCommand publishes a command on the vehicle's inbound command topic
// so it follows the same path as any other issuer. The returned command
// carries the id the history entry will have.
func (q *QueryService) PublishCommand(ctx context.Context, vehicleID, name string, params map[string]any, source string) (model.Command, error) {
	if params == nil {
		params = map[string]any{}
	}
	cmd := model.Command{
		ID:         uuid.NewString(),
		VehicleID:  vehicleID,
		Name:       name,
		Parameters: params,
		Timestamp:  model.NewTimestamp(q.now()),
		Source:     source,
	}
	if err := cmd.Validate(); err != nil {
		return model.Command{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if q.transport == nil {
		return model.Command{}, fmt.Errorf("publish command: no transport")
	}
	raw, err := json.Marshal(cmd)
	if err != nil {
		return model.Command{}, fmt.Errorf("encode command: %w", err)
	}
	if err := q.transport.Publish(ctx, topics.CommandTopic(vehicleID), raw); err != nil {
		return model.Command{}, err
	}
	return cmd, nil
}
