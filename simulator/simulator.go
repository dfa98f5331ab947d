package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/vehicle-broker/config"
	"github.com/kilianp07/vehicle-broker/core/logger"
	"github.com/kilianp07/vehicle-broker/core/model"
	"github.com/kilianp07/vehicle-broker/core/topics"
	"github.com/kilianp07/vehicle-broker/core/transport"
)

// Payload is the message published on sensors:<type>.
type Payload struct {
	LicensePlate string          `json:"licensePlate"`
	VehicleID    string          `json:"vehicleId"`
	SensorType   string          `json:"sensorType"`
	Value        any             `json:"value"`
	Timestamp    model.Timestamp `json:"timestamp"`
	Source       string          `json:"source"`
}

// Simulator publishes sensor readings for every configured vehicle.
type Simulator struct {
	cfg       config.SimulatorConfig
	publisher transport.Transport
	log       logger.Logger
	now       func() time.Time

	sent   atomic.Uint64
	failed atomic.Uint64
}

// New validates cfg and returns a Simulator publishing through tr.
func New(cfg config.SimulatorConfig, tr transport.Transport, log logger.Logger) (*Simulator, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("simulator config: %w", err)
	}
	for _, id := range cfg.Vehicles {
		if !ValidLicensePlate(id) {
			log.Warnw("vehicle id is not a license plate", map[string]any{"vehicle_id": id})
		}
	}
	return &Simulator{cfg: cfg, publisher: tr, log: log, now: time.Now}, nil
}

// Sent returns the number of published readings.
func (s *Simulator) Sent() uint64 { return s.sent.Load() }

// Failed returns the number of readings that could not be published.
func (s *Simulator) Failed() uint64 { return s.failed.Load() }

// Run publishes until ctx is cancelled. Publish errors are logged and the
// loop continues.
func (s *Simulator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	start := s.now()
	for i, id := range s.cfg.Vehicles {
		gen := NewGenerator(s.cfg, s.seed(id, i), start)
		// Generator is single-threaded; one goroutine drives all sensors
		// of a vehicle.
		g.Go(func() error {
			s.runVehicle(ctx, id, gen)
			return nil
		})
	}
	s.log.Infow("simulator started", map[string]any{"vehicles": len(s.cfg.Vehicles)})
	return g.Wait()
}

func (s *Simulator) seed(id string, i int) uint64 {
	if s.cfg.Seed != 0 {
		return s.cfg.Seed + uint64(i)
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return h.Sum64() ^ uint64(s.now().UnixNano())
}

func (s *Simulator) runVehicle(ctx context.Context, id string, gen *Generator) {
	temps := time.NewTicker(s.cfg.SensorInterval())
	defer temps.Stop()
	gps := time.NewTicker(s.cfg.GPSInterval())
	defer gps.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-temps.C:
			now := s.now()
			s.publish(ctx, id, model.SensorIndoorTemp, gen.IndoorTemp(now), now)
			s.publish(ctx, id, model.SensorOutdoorTemp, gen.OutdoorTemp(now), now)
		case <-gps.C:
			now := s.now()
			s.publish(ctx, id, model.SensorGPS, gen.Position(now), now)
		}
	}
}

// publish sends one reading for vehicle id.
func (s *Simulator) publish(ctx context.Context, id, sensorType string, value any, now time.Time) {
	if err := Validate(sensorType, value); err != nil {
		s.log.Warnw("skipping invalid reading", map[string]any{"vehicle_id": id, "err": err})
		return
	}
	raw, err := json.Marshal(Payload{
		LicensePlate: id,
		VehicleID:    id,
		SensorType:   sensorType,
		Value:        value,
		Timestamp:    model.NewTimestamp(now),
		Source:       s.cfg.Source,
	})
	if err != nil {
		s.failed.Add(1)
		s.log.Errorw("encode reading", map[string]any{"vehicle_id": id, "err": err})
		return
	}
	if err := s.publisher.Publish(ctx, topics.SensorTopic(sensorType), raw); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.failed.Add(1)
		s.log.Errorw("publish reading", map[string]any{"vehicle_id": id, "sensor_type": sensorType, "err": err})
		return
	}
	s.sent.Add(1)
	s.log.Debugw("reading sent", map[string]any{"vehicle_id": id, "sensor_type": sensorType})
}
