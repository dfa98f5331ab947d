package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/vehicle-broker/core/metrics"
	"github.com/kilianp07/vehicle-broker/infra/logger"
)

// InfluxSink writes broker events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordMessage writes the handling outcome of one message.
func (s *InfluxSink) RecordMessage(ev coremetrics.MessageEvent) error {
	p := write.NewPointWithMeasurement("message_handled").
		AddTag("kind", ev.Kind).
		AddTag("outcome", ev.Outcome).
		AddTag("vehicle_id", ev.VehicleID).
		AddField("latency_ms", round3(ev.Latency.Seconds()*1000)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordSensorValue writes one reading. Structured values are stored as
// their JSON text.
func (s *InfluxSink) RecordSensorValue(ev coremetrics.SensorValueEvent) error {
	p := write.NewPointWithMeasurement("sensor_reading").
		AddTag("vehicle_id", ev.VehicleID).
		AddTag("sensor_type", ev.SensorType)
	if ev.Source != "" {
		p = p.AddTag("source", ev.Source)
	}
	if ev.Numeric {
		p = p.AddField("value", round3(ev.Value))
	} else {
		p = p.AddField("raw", string(ev.Raw))
	}
	return s.write(p.SetTime(ev.Time))
}

// RecordCommand writes an accepted command.
func (s *InfluxSink) RecordCommand(ev coremetrics.CommandEvent) error {
	p := write.NewPointWithMeasurement("command_received").
		AddTag("vehicle_id", ev.VehicleID).
		AddTag("command", ev.Command).
		AddTag("source", ev.Source).
		AddField("command_id", ev.CommandID).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordDrop writes a discarded message.
func (s *InfluxSink) RecordDrop(ev coremetrics.DropEvent) error {
	p := write.NewPointWithMeasurement("message_dropped").
		AddTag("kind", ev.Kind).
		AddTag("reason", ev.Reason).
		AddTag("vehicle_id", ev.VehicleID).
		AddField("count", 1).
		SetTime(ev.Time)
	return s.write(p)
}

// Close releases the underlying HTTP client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
