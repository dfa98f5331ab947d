package broker

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/vehicle-broker/core/model"
	"github.com/kilianp07/vehicle-broker/infra/logger"
	"github.com/kilianp07/vehicle-broker/infra/memory"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig() Config {
	cfg := Config{Workers: 4, QueueSize: 16}
	cfg.SetDefaults()
	return cfg
}

func newTestAggregator(t *testing.T, cfg Config) (*Aggregator, *memory.Store) {
	t.Helper()
	st := memory.NewStore()
	t.Cleanup(func() { _ = st.Close() })
	return NewAggregator(st, cfg, logger.NopLogger{}), st
}

func reading(id, sensorType, value string, ts time.Time) model.SensorReading {
	return model.SensorReading{
		VehicleID:  id,
		SensorType: sensorType,
		Value:      json.RawMessage(value),
		Timestamp:  model.NewTimestamp(ts),
	}
}

func command(id, name string, ts time.Time) model.Command {
	return model.Command{
		ID:         name + "-" + ts.Format("150405.000"),
		VehicleID:  id,
		Name:       name,
		Parameters: map[string]any{},
		Timestamp:  model.NewTimestamp(ts),
		ReceivedAt: model.NewTimestamp(ts),
	}
}

func resetMetrics(t *testing.T) {
	t.Helper()
	ResetMetrics(prometheus.NewRegistry())
}

func mustFloat(t *testing.T, snap model.VehicleSnapshot, sensorType string) float64 {
	t.Helper()
	v, ok := snap.Float(sensorType)
	require.True(t, ok, "field %s missing", sensorType)
	return v
}
