package uplink

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/vehicle-broker/config"
	"github.com/kilianp07/vehicle-broker/core/logger"
	"github.com/kilianp07/vehicle-broker/core/model"
)

// ErrTooManyFailures is returned by Run after MaxFailures consecutive failed
// uploads.
var ErrTooManyFailures = errors.New("too many consecutive uplink failures")

const statusTimeout = 5 * time.Second

// Source is the read and command side of the broker used by the uplink.
type Source interface {
	LatestSnapshot(ctx context.Context, vehicleID string) (model.VehicleSnapshot, bool, error)
	PublishCommand(ctx context.Context, vehicleID, name string, params map[string]any, source string) (model.Command, error)
}

// Communicator periodically uploads one vehicle's snapshot.
type Communicator struct {
	cfg    config.UplinkConfig
	client *Client
	source Source
	log    logger.Logger
}

// NewCommunicator returns a Communicator for cfg.VehicleID.
func NewCommunicator(cfg config.UplinkConfig, client *Client, src Source, log logger.Logger) *Communicator {
	return &Communicator{cfg: cfg, client: client, source: src, log: log}
}

// Run uploads on every interval until ctx is cancelled or the failure budget
// is exhausted. An offline status is sent on the way out.
func (c *Communicator) Run(ctx context.Context) error {
	id := c.cfg.VehicleID
	c.status(ctx, StatusOnline, map[string]any{"component": PayloadSource})
	defer c.status(context.WithoutCancel(ctx), StatusOffline, map[string]any{"reason": "shutdown"})

	ticker := time.NewTicker(c.cfg.Interval())
	defer ticker.Stop()
	failures := 0
	for {
		ok := c.tick(ctx)
		switch {
		case ok:
			failures = 0
		case ctx.Err() != nil:
			return nil
		default:
			failures++
			if failures >= c.cfg.MaxFailures {
				c.log.Errorw("uplink giving up", map[string]any{"vehicle_id": id, "failures": failures})
				c.status(context.WithoutCancel(ctx), StatusError, map[string]any{
					"message":              "cloud communication failed",
					"consecutive_failures": failures,
				})
				return ErrTooManyFailures
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// tick performs one upload. A missing snapshot is not a failure.
func (c *Communicator) tick(ctx context.Context) bool {
	id := c.cfg.VehicleID
	snap, found, err := c.source.LatestSnapshot(ctx, id)
	if err != nil {
		c.log.Errorw("read snapshot", map[string]any{"vehicle_id": id, "err": err})
		return false
	}
	if !found {
		c.log.Warnw("no data available", map[string]any{"vehicle_id": id})
		return true
	}
	resp, err := c.client.SendData(ctx, id, snap)
	if err != nil {
		c.log.Errorw("upload snapshot", map[string]any{"vehicle_id": id, "err": err})
		return false
	}
	c.log.Debugw("snapshot uploaded", map[string]any{"vehicle_id": id, "message": resp.Message})
	for _, cc := range resp.Commands {
		if cc.Action == "" {
			c.log.Warnw("cloud command without action", map[string]any{"vehicle_id": id})
			continue
		}
		cmd, err := c.source.PublishCommand(ctx, id, cc.Action, cc.Parameters, c.cfg.Source)
		if err != nil {
			c.log.Errorw("forward cloud command", map[string]any{"vehicle_id": id, "command": cc.Action, "err": err})
			continue
		}
		c.log.Infow("cloud command forwarded", map[string]any{"vehicle_id": id, "command": cmd.Name, "id": cmd.ID})
	}
	return true
}

func (c *Communicator) status(ctx context.Context, status string, details map[string]any) {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()
	if err := c.client.SendStatus(ctx, c.cfg.VehicleID, status, details); err != nil {
		c.log.Warnw("status update failed", map[string]any{"status": status, "err": err})
	}
}
