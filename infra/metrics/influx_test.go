package metrics

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/vehicle-broker/core/metrics"
)

type lineRecorder struct {
	mu     sync.Mutex
	bodies []string
}

func (l *lineRecorder) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		l.mu.Lock()
		l.bodies = append(l.bodies, strings.TrimSpace(string(data)))
		l.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func lineOf(p *write.Point) string {
	return strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
}

func TestInfluxSink_RecordSensorValue(t *testing.T) {
	rec := &lineRecorder{}
	srv := rec.server(t)
	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	now := time.Now()

	if err := sink.RecordSensorValue(coremetrics.SensorValueEvent{
		VehicleID: "ABC-123", SensorType: "indoorTemp", Value: 22.5, Numeric: true, Source: "C5_sensors", Time: now,
	}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := sink.RecordSensorValue(coremetrics.SensorValueEvent{
		VehicleID: "ABC-123", SensorType: "gps", Raw: json.RawMessage(`{"lat":60.1}`), Time: now,
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	p1 := write.NewPointWithMeasurement("sensor_reading").
		AddTag("vehicle_id", "ABC-123").
		AddTag("sensor_type", "indoorTemp").
		AddTag("source", "C5_sensors").
		AddField("value", 22.5).
		SetTime(now)
	p2 := write.NewPointWithMeasurement("sensor_reading").
		AddTag("vehicle_id", "ABC-123").
		AddTag("sensor_type", "gps").
		AddField("raw", `{"lat":60.1}`).
		SetTime(now)
	if len(rec.bodies) != 2 || rec.bodies[0] != lineOf(p1) || rec.bodies[1] != lineOf(p2) {
		t.Errorf("unexpected bodies: %#v", rec.bodies)
	}
}

func TestInfluxSink_RecordCommandAndDrop(t *testing.T) {
	rec := &lineRecorder{}
	srv := rec.server(t)
	sink := NewInfluxSink(srv.URL+"/api/v2/write", "token", "org", "bucket")
	now := time.Now()

	if err := sink.RecordCommand(coremetrics.CommandEvent{CommandID: "c1", VehicleID: "ABC-123", Command: "lock", Source: "cloud", Time: now}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := sink.RecordDrop(coremetrics.DropEvent{Kind: "sensor", VehicleID: "ABC-123", Reason: "malformed", Time: now}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := sink.RecordMessage(coremetrics.MessageEvent{Kind: "sensor", VehicleID: "ABC-123", Outcome: "handled", Latency: 1500 * time.Microsecond, Time: now}); err != nil {
		t.Fatalf("record: %v", err)
	}

	cmd := write.NewPointWithMeasurement("command_received").
		AddTag("vehicle_id", "ABC-123").
		AddTag("command", "lock").
		AddTag("source", "cloud").
		AddField("command_id", "c1").
		SetTime(now)
	drop := write.NewPointWithMeasurement("message_dropped").
		AddTag("kind", "sensor").
		AddTag("reason", "malformed").
		AddTag("vehicle_id", "ABC-123").
		AddField("count", 1).
		SetTime(now)
	msg := write.NewPointWithMeasurement("message_handled").
		AddTag("kind", "sensor").
		AddTag("outcome", "handled").
		AddTag("vehicle_id", "ABC-123").
		AddField("latency_ms", 1.5).
		SetTime(now)
	want := []string{lineOf(cmd), lineOf(drop), lineOf(msg)}
	if len(rec.bodies) != 3 {
		t.Fatalf("bodies: %#v", rec.bodies)
	}
	for i := range want {
		if rec.bodies[i] != want[i] {
			t.Errorf("body %d: got %s want %s", i, rec.bodies[i], want[i])
		}
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket")
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}
