package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/vehicle-broker/core/metrics"
)

func TestPromSinkRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, sink.RecordSensorValue(coremetrics.SensorValueEvent{VehicleID: "ABC-123", SensorType: "indoorTemp", Value: 22.5, Numeric: true}))
	require.NoError(t, sink.RecordSensorValue(coremetrics.SensorValueEvent{VehicleID: "ABC-123", SensorType: "gps"}))
	require.NoError(t, sink.RecordCommand(coremetrics.CommandEvent{Command: "lock", Source: "cloud"}))
	require.NoError(t, sink.RecordCommand(coremetrics.CommandEvent{Command: "lock", Source: "cloud"}))
	require.NoError(t, sink.RecordDrop(coremetrics.DropEvent{Kind: "sensor", Reason: "malformed"}))
	require.NoError(t, sink.RecordMessage(coremetrics.MessageEvent{Kind: "sensor", Outcome: "handled"}))

	assert.Equal(t, 22.5, testutil.ToFloat64(sink.values.WithLabelValues("ABC-123", "indoorTemp")))
	assert.Equal(t, 1, testutil.CollectAndCount(sink.values))
	assert.Equal(t, 2.0, testutil.ToFloat64(sink.commands.WithLabelValues("lock", "cloud")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.drops.WithLabelValues("sensor", "malformed")))
	assert.Equal(t, 1, testutil.CollectAndCount(sink.latency))
}

func TestPromSinkReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	second, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	assert.Same(t, first.commands, second.commands)
}
