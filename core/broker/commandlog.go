package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kilianp07/vehicle-broker/core/logger"
	"github.com/kilianp07/vehicle-broker/core/model"
	"github.com/kilianp07/vehicle-broker/core/store"
	"github.com/kilianp07/vehicle-broker/core/topics"
)

// CommandLog keeps a bounded, most-recent-first command history per vehicle.
type CommandLog struct {
	store    store.KeyValueStore
	locks    *keyedMutex
	capacity int
	timeout  time.Duration
	log      logger.Logger
}

// NewCommandLog returns a CommandLog persisting through st.
func NewCommandLog(st store.KeyValueStore, cfg Config, log logger.Logger) *CommandLog {
	return &CommandLog{
		store:    st,
		locks:    newKeyedMutex(),
		capacity: cfg.HistoryCapacity,
		timeout:  cfg.storeTimeout(),
		log:      log,
	}
}

// Capacity returns the per-vehicle history bound.
func (l *CommandLog) Capacity() int { return l.capacity }

// Append prepends cmd to its vehicle history and trims the history to
// capacity. Both steps run under the vehicle lock.
func (l *CommandLog) Append(ctx context.Context, cmd model.Command) error {
	if err := cmd.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	raw, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	key := topics.CommandHistoryKey(cmd.VehicleID)

	unlock := l.locks.Lock(cmd.VehicleID)
	defer unlock()
	if err := callWithTimeout(ctx, l.timeout, func(ctx context.Context) error {
		return l.store.ListPrepend(ctx, key, string(raw))
	}); err != nil {
		return err
	}
	return callWithTimeout(ctx, l.timeout, func(ctx context.Context) error {
		return l.store.ListTrim(ctx, key, int64(l.capacity))
	})
}

// Recent returns up to limit commands, most recent first. limit <= 0 or
// above capacity is clamped to capacity. An unknown vehicle yields an empty
// slice.
func (l *CommandLog) Recent(ctx context.Context, vehicleID string, limit int) ([]model.Command, error) {
	if err := model.ValidateVehicleID(vehicleID); err != nil {
		return []model.Command{}, nil
	}
	if limit <= 0 || limit > l.capacity {
		limit = l.capacity
	}
	var raws []string
	if err := callWithTimeout(ctx, l.timeout, func(ctx context.Context) (err error) {
		raws, err = l.store.ListRange(ctx, topics.CommandHistoryKey(vehicleID), 0, int64(limit-1))
		return err
	}); err != nil {
		return nil, err
	}
	if len(raws) > l.capacity {
		capacityViolations.Inc()
		l.log.Errorw("command history above capacity", map[string]any{"vehicle_id": vehicleID, "len": len(raws), "capacity": l.capacity})
		raws = raws[:l.capacity]
	}
	out := make([]model.Command, 0, len(raws))
	for _, raw := range raws {
		var cmd model.Command
		if err := json.Unmarshal([]byte(raw), &cmd); err != nil {
			l.log.Warnw("skipping corrupt history entry", map[string]any{"vehicle_id": vehicleID, "err": err})
			continue
		}
		out = append(out, cmd)
	}
	return out, nil
}

// Len returns the stored history length and records a capacity violation
// when it exceeds the bound.
func (l *CommandLog) Len(ctx context.Context, vehicleID string) (int, error) {
	var n int64
	if err := callWithTimeout(ctx, l.timeout, func(ctx context.Context) (err error) {
		n, err = l.store.ListLen(ctx, topics.CommandHistoryKey(vehicleID))
		return err
	}); err != nil {
		return 0, err
	}
	if n > int64(l.capacity) {
		capacityViolations.Inc()
		l.log.Errorw("command history above capacity", map[string]any{"vehicle_id": vehicleID, "len": n, "capacity": l.capacity})
	}
	return int(n), nil
}
