package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/vehicle-broker/core/metrics"
)

// PromSink exposes the latest sensor values and command counts as
// Prometheus metrics.
type PromSink struct {
	latency  *prometheus.HistogramVec
	values   *prometheus.GaugeVec
	commands *prometheus.CounterVec
	drops    *prometheus.CounterVec
}

// NewPromSink registers the sink collectors on the default registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by a previous sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vehicle_message_latency_seconds",
		Help:    "Time from message receipt to store write, per message kind",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind", "outcome"})
	values := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vehicle_sensor_value",
		Help: "Latest numeric sensor value per vehicle",
	}, []string{"vehicle_id", "sensor_type"})
	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vehicle_commands_total",
		Help: "Commands accepted into vehicle histories",
	}, []string{"command", "source"})
	drops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vehicle_messages_dropped_total",
		Help: "Messages discarded by the broker",
	}, []string{"kind", "reason"})

	var err error
	if latency, err = register(reg, latency); err != nil {
		return nil, err
	}
	if values, err = register(reg, values); err != nil {
		return nil, err
	}
	if commands, err = register(reg, commands); err != nil {
		return nil, err
	}
	if drops, err = register(reg, drops); err != nil {
		return nil, err
	}
	return &PromSink{latency: latency, values: values, commands: commands, drops: drops}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (s *PromSink) RecordMessage(ev coremetrics.MessageEvent) error {
	s.latency.WithLabelValues(ev.Kind, ev.Outcome).Observe(ev.Latency.Seconds())
	return nil
}

// RecordSensorValue sets the gauge for numeric readings. Structured values
// are ignored.
func (s *PromSink) RecordSensorValue(ev coremetrics.SensorValueEvent) error {
	if ev.Numeric {
		s.values.WithLabelValues(ev.VehicleID, ev.SensorType).Set(ev.Value)
	}
	return nil
}

func (s *PromSink) RecordCommand(ev coremetrics.CommandEvent) error {
	s.commands.WithLabelValues(ev.Command, ev.Source).Inc()
	return nil
}

func (s *PromSink) RecordDrop(ev coremetrics.DropEvent) error {
	s.drops.WithLabelValues(ev.Kind, ev.Reason).Inc()
	return nil
}
