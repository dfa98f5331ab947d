package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/vehicle-broker/core/logger"
	"github.com/kilianp07/vehicle-broker/core/model"
	"github.com/kilianp07/vehicle-broker/core/store"
	"github.com/kilianp07/vehicle-broker/core/topics"
)

// Aggregator merges per-sensor readings into one snapshot per vehicle. It is
// the only writer of vehicle:<id>:sensors and vehicle:<id>:latest_data.
type Aggregator struct {
	store       store.KeyValueStore
	locks       *keyedMutex
	ttl         time.Duration
	timeout     time.Duration
	rejectStale bool
	now         func() time.Time
	log         logger.Logger
}

// NewAggregator returns an Aggregator persisting through st.
func NewAggregator(st store.KeyValueStore, cfg Config, log logger.Logger) *Aggregator {
	return &Aggregator{
		store:       st,
		locks:       newKeyedMutex(),
		ttl:         cfg.snapshotTTL(),
		timeout:     cfg.storeTimeout(),
		rejectStale: cfg.RejectStaleReadings,
		now:         time.Now,
		log:         log,
	}
}

// Merge records reading and rewrites the vehicle snapshot from the full
// sensor hash. The snapshot is never patched incrementally, so a failed
// snapshot write is repaired by the next merge.
func (a *Aggregator) Merge(ctx context.Context, reading model.SensorReading) (model.VehicleSnapshot, error) {
	if err := reading.Validate(); err != nil {
		return model.VehicleSnapshot{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if reading.Timestamp.IsZero() {
		reading.Timestamp = model.NewTimestamp(a.now())
	}
	id := reading.VehicleID
	unlock := a.locks.Lock(id)
	defer unlock()

	hashKey := topics.SensorsKey(id)
	if a.rejectStale {
		stale, err := a.isStale(ctx, hashKey, reading)
		if err != nil {
			return model.VehicleSnapshot{}, err
		}
		if stale {
			return model.VehicleSnapshot{}, fmt.Errorf("%w: %s/%s at %s", ErrStaleReading, id, reading.SensorType, reading.Timestamp.Time)
		}
	}

	entry, err := json.Marshal(reading.Entry())
	if err != nil {
		return model.VehicleSnapshot{}, fmt.Errorf("encode sensor entry: %w", err)
	}
	if err := a.withTimeout(ctx, func(ctx context.Context) error {
		return a.store.SetHash(ctx, hashKey, reading.SensorType, string(entry))
	}); err != nil {
		return model.VehicleSnapshot{}, err
	}

	var fields map[string]string
	if err := a.withTimeout(ctx, func(ctx context.Context) (err error) {
		fields, err = a.store.GetAllHash(ctx, hashKey)
		return err
	}); err != nil {
		return model.VehicleSnapshot{}, err
	}

	snap := a.build(id, fields)
	snap.Timestamp = model.NewTimestamp(a.now())
	raw, err := json.Marshal(snap)
	if err != nil {
		return model.VehicleSnapshot{}, fmt.Errorf("encode snapshot: %w", err)
	}
	if err := a.withTimeout(ctx, func(ctx context.Context) error {
		return a.store.SetWithTTL(ctx, topics.LatestDataKey(id), string(raw), a.ttl)
	}); err != nil {
		return model.VehicleSnapshot{}, err
	}
	return snap, nil
}

func (a *Aggregator) isStale(ctx context.Context, hashKey string, reading model.SensorReading) (bool, error) {
	var fields map[string]string
	if err := a.withTimeout(ctx, func(ctx context.Context) (err error) {
		fields, err = a.store.GetAllHash(ctx, hashKey)
		return err
	}); err != nil {
		return false, err
	}
	raw, ok := fields[reading.SensorType]
	if !ok {
		return false, nil
	}
	var prev model.SensorEntry
	if err := json.Unmarshal([]byte(raw), &prev); err != nil {
		return false, nil
	}
	return reading.Timestamp.Before(prev.Timestamp.Time), nil
}

// build decodes a sensor hash into a snapshot. Corrupt entries are skipped.
func (a *Aggregator) build(id string, fields map[string]string) model.VehicleSnapshot {
	snap := model.NewSnapshot(id)
	for sensorType, raw := range fields {
		var e model.SensorEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			a.log.Warnw("skipping corrupt sensor entry", map[string]any{"vehicle_id": id, "sensor_type": sensorType, "err": err})
			continue
		}
		snap.Set(sensorType, e)
	}
	return snap
}

// Flush deletes the sensor hash and the snapshot of a vehicle.
func (a *Aggregator) Flush(ctx context.Context, vehicleID string) error {
	if err := model.ValidateVehicleID(vehicleID); err != nil {
		return err
	}
	unlock := a.locks.Lock(vehicleID)
	defer unlock()
	return a.withTimeout(ctx, func(ctx context.Context) error {
		return a.store.Delete(ctx, topics.SensorsKey(vehicleID), topics.LatestDataKey(vehicleID))
	})
}

func (a *Aggregator) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	return callWithTimeout(ctx, a.timeout, fn)
}

// callWithTimeout runs one store call under its own deadline. A deadline hit
// is reported as store.ErrUnavailable.
func callWithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := fn(cctx)
	if err != nil && cctx.Err() != nil && !errors.Is(err, store.ErrUnavailable) {
		return store.Unavailable("store call", err)
	}
	return err
}
