package vehicles

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/vehicle-broker/core/broker"
	"github.com/kilianp07/vehicle-broker/core/model"
	"github.com/kilianp07/vehicle-broker/core/store"
	"github.com/kilianp07/vehicle-broker/infra/logger"
	"github.com/kilianp07/vehicle-broker/infra/memory"
)

type fixture struct {
	broker *broker.Broker
	store  *memory.Store
	srv    *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.NewStore()
	tr := memory.NewTransport()
	b, err := broker.New(broker.Config{Workers: 2, QueueSize: 8}, st, tr, nil, logger.NopLogger{})
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))
	h := NewHandler(b.Query(), b.Aggregator(), b.CommandLog().Capacity(), logger.NopLogger{})
	srv := httptest.NewServer(h.Router())
	t.Cleanup(func() {
		srv.Close()
		_ = b.Stop()
	})
	return &fixture{broker: b, store: st, srv: srv}
}

func (f *fixture) ingest(t *testing.T, id, sensorType, value string) {
	t.Helper()
	_, err := f.broker.Aggregator().Merge(context.Background(), model.SensorReading{
		VehicleID:  id,
		SensorType: sensorType,
		Value:      json.RawMessage(value),
		Timestamp:  model.NewTimestamp(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
}

func get(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestVehicleData(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "ABC-123", model.SensorIndoorTemp, "22.5")
	f.ingest(t, "ABC-123", model.SensorOutdoorTemp, "15.2")

	var snap model.VehicleSnapshot
	require.Equal(t, http.StatusOK, get(t, f.srv.URL+"/api/vehicles/ABC-123/data", &snap))
	v, ok := snap.Float(model.SensorIndoorTemp)
	require.True(t, ok)
	assert.InDelta(t, 22.5, v, 1e-9)
	v, ok = snap.Float(model.SensorOutdoorTemp)
	require.True(t, ok)
	assert.InDelta(t, 15.2, v, 1e-9)

	var body map[string]string
	assert.Equal(t, http.StatusNotFound, get(t, f.srv.URL+"/api/vehicles/ZZZ-999/data", &body))
	assert.Equal(t, map[string]string{"error": "not found"}, body)
}

func TestSensorValue(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "ABC-123", model.SensorIndoorTemp, "22.5")

	var out struct {
		VehicleID  string          `json:"vehicleId"`
		SensorType string          `json:"sensorType"`
		Value      float64         `json:"value"`
		Timestamp  model.Timestamp `json:"timestamp"`
	}
	require.Equal(t, http.StatusOK, get(t, f.srv.URL+"/api/vehicles/ABC-123/sensors/indoorTemp", &out))
	assert.Equal(t, "ABC-123", out.VehicleID)
	assert.Equal(t, "indoorTemp", out.SensorType)
	assert.InDelta(t, 22.5, out.Value, 1e-9)
	assert.False(t, out.Timestamp.IsZero())

	var missing map[string]string
	assert.Equal(t, http.StatusNotFound, get(t, f.srv.URL+"/api/vehicles/ABC-123/sensors/gps", &missing))
	assert.Equal(t, map[string]string{"error": "not found"}, missing)
}

func TestCommandsRoundTrip(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Post(f.srv.URL+"/api/vehicles/ABC-123/commands", "application/json",
		strings.NewReader(`{"command":"lock","parameters":{"duration":5}}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var echo model.Command
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&echo))
	assert.Equal(t, "lock", echo.Name)
	assert.Equal(t, "api", echo.Source)
	assert.NotEmpty(t, echo.ID)

	require.Eventually(t, func() bool {
		var hist []model.Command
		code := get(t, f.srv.URL+"/api/vehicles/ABC-123/commands?limit=1", &hist)
		return code == http.StatusOK && len(hist) == 1 && hist[0].ID == echo.ID
	}, time.Second, 10*time.Millisecond)
}

func TestSendCommandBadRequest(t *testing.T) {
	f := newFixture(t)
	for _, body := range []string{`not json`, `{"parameters":{}}`} {
		resp, err := http.Post(f.srv.URL+"/api/vehicles/ABC-123/commands", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
	resp, err := http.Post(f.srv.URL+"/api/vehicles/a+b/commands", "application/json", strings.NewReader(`{"command":"lock"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCommandHistoryLimits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		require.NoError(t, f.broker.CommandLog().Append(ctx, model.Command{VehicleID: "ABC-123", Name: "ping"}))
	}

	var hist []model.Command
	require.Equal(t, http.StatusOK, get(t, f.srv.URL+"/api/vehicles/ABC-123/commands", &hist))
	assert.Len(t, hist, DefaultHistoryLimit)

	require.Equal(t, http.StatusOK, get(t, f.srv.URL+"/api/vehicles/ABC-123/commands?limit=1000", &hist))
	assert.Len(t, hist, 15)

	assert.Equal(t, http.StatusBadRequest, get(t, f.srv.URL+"/api/vehicles/ABC-123/commands?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, f.srv.URL+"/api/vehicles/ABC-123/commands?limit=0", nil))

	require.Equal(t, http.StatusOK, get(t, f.srv.URL+"/api/vehicles/ZZZ-999/commands", &hist))
	assert.Empty(t, hist)
}

func TestListVehiclesAndFlush(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "ABC-123", model.SensorIndoorTemp, "22.5")
	f.ingest(t, "XYZ-789", model.SensorIndoorTemp, "19")

	var all []model.VehicleSnapshot
	require.Equal(t, http.StatusOK, get(t, f.srv.URL+"/api/vehicles", &all))
	require.Len(t, all, 2)
	assert.Equal(t, "ABC-123", all[0].VehicleID)

	req, err := http.NewRequest(http.MethodDelete, f.srv.URL+"/api/vehicles/ABC-123/data", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	require.Equal(t, http.StatusOK, get(t, f.srv.URL+"/api/vehicles", &all))
	assert.Len(t, all, 1)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	var body map[string]string
	require.Equal(t, http.StatusOK, get(t, f.srv.URL+"/health", &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "connected", body["store"])

	require.NoError(t, f.store.Close())
	var unhealthy map[string]string
	require.Equal(t, http.StatusInternalServerError, get(t, f.srv.URL+"/health", &unhealthy))
	assert.Equal(t, map[string]string{"status": "unhealthy", "store": "disconnected"}, unhealthy)
}

type failingQuery struct{ Querier }

func (failingQuery) LatestSnapshot(context.Context, string) (model.VehicleSnapshot, bool, error) {
	return model.VehicleSnapshot{}, false, store.Unavailable("get", errors.New("connection refused"))
}

func TestStoreErrorIs500(t *testing.T) {
	h := NewHandler(failingQuery{}, nil, 0, logger.NopLogger{})
	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/vehicles/ABC-123/data", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rr.Body.String())
	assert.NotContains(t, rr.Body.String(), "connection refused")

	rr = httptest.NewRecorder()
	h.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/vehicles/ABC-123/data", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
