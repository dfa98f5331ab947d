package metrics_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/vehicle-broker/core/factory"
	metrics "github.com/kilianp07/vehicle-broker/core/metrics"
	_ "github.com/kilianp07/vehicle-broker/infra/metrics"
)

func TestNewMetricsSinkDefaultsToNop(t *testing.T) {
	s, err := metrics.NewMetricsSink(nil)
	require.NoError(t, err)
	assert.IsType(t, metrics.NopSink{}, s)

	s, err = metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}})
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestNewMetricsSinkUnknownType(t *testing.T) {
	_, err := metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "statsd"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statsd")
}

func TestSinksSectionFromYAML(t *testing.T) {
	data := `sinks:
  - type: nop
  - type: nop
`
	var cfg metrics.Config
	require.NoError(t, yaml.Unmarshal([]byte(data), &cfg))
	s, err := metrics.NewMetricsSink(cfg.Sinks)
	require.NoError(t, err)
	multi, ok := s.(*metrics.MultiSink)
	require.True(t, ok, "got %T", s)
	assert.Len(t, multi.Sinks, 2)
}

func TestSinksSectionFromJSONRejectsInfluxWithoutURL(t *testing.T) {
	data := `{"sinks":[{"type":"influx","conf":{"bucket":"vehicles"}}]}`
	var cfg metrics.Config
	require.NoError(t, json.Unmarshal([]byte(data), &cfg))
	_, err := metrics.NewMetricsSink(cfg.Sinks)
	require.Error(t, err)
}
