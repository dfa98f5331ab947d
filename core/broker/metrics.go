package broker

import "github.com/prometheus/client_golang/prometheus"

// Message kinds and outcomes used as metric labels.
const (
	kindSensor  = "sensor"
	kindCommand = "command"

	outcomeRelayed          = "relayed"
	outcomeRelayFailed      = "relay_failed"
	outcomeMalformed        = "malformed"
	outcomeStoreUnavailable = "store_unavailable"
	outcomeStoreError       = "store_error"
	outcomeStale            = "stale"
	outcomeRejected         = "rejected"
)

var (
	messagesTotal      *prometheus.CounterVec
	handleDuration     *prometheus.HistogramVec
	capacityViolations prometheus.Counter
	queueDepth         prometheus.Gauge
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, *prometheus.HistogramVec, prometheus.Counter, prometheus.Gauge) {
	msgs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_messages_total",
			Help: "Inbound messages by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
	dur := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "broker_handle_duration_seconds",
			Help:    "Time spent handling one inbound message",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
	viol := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_capacity_violations_total",
			Help: "Command histories observed above their capacity",
		},
	)
	depth := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "broker_queue_depth",
			Help: "Messages waiting in the ingestion shards",
		},
	)
	return msgs, dur, viol, depth
}

func init() {
	messagesTotal, handleDuration, capacityViolations, queueDepth = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers broker metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(messagesTotal, handleDuration, capacityViolations, queueDepth)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	messagesTotal, handleDuration, capacityViolations, queueDepth = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
