package uplink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/vehicle-broker/config"
	"github.com/kilianp07/vehicle-broker/core/model"
	"github.com/kilianp07/vehicle-broker/infra/logger"
)

type cloud struct {
	mu       sync.Mutex
	data     []DataRequest
	statuses []string
	auth     []string
	fail     bool
	commands []CloudCommand
}

func (c *cloud) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/car-data", func(w http.ResponseWriter, r *http.Request) {
		var req DataRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		c.mu.Lock()
		defer c.mu.Unlock()
		c.auth = append(c.auth, r.Header.Get("Authorization"))
		if c.fail {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		c.data = append(c.data, req)
		cmds := c.commands
		c.commands = nil
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(DataResponse{Status: "received", Message: "ok", Commands: cmds})
	})
	mux.HandleFunc("/api/car-status", func(w http.ResponseWriter, r *http.Request) {
		var req StatusRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		c.mu.Lock()
		c.statuses = append(c.statuses, req.Status)
		c.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"received"}`))
	})
	return mux
}

func (c *cloud) snapshot() ([]DataRequest, []string, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]DataRequest(nil), c.data...), append([]string(nil), c.statuses...), append([]string(nil), c.auth...)
}

type fakeSource struct {
	mu        sync.Mutex
	snap      *model.VehicleSnapshot
	published []model.Command
}

func (f *fakeSource) LatestSnapshot(_ context.Context, id string) (model.VehicleSnapshot, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snap == nil {
		return model.VehicleSnapshot{}, false, nil
	}
	return *f.snap, true, nil
}

func (f *fakeSource) PublishCommand(_ context.Context, id, name string, params map[string]any, source string) (model.Command, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := model.Command{ID: "c1", VehicleID: id, Name: name, Parameters: params, Source: source}
	f.published = append(f.published, cmd)
	return cmd, nil
}

func (f *fakeSource) commands() []model.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Command(nil), f.published...)
}

func testConfig(endpoint string) config.UplinkConfig {
	cfg := config.UplinkConfig{
		Enabled:         true,
		Endpoint:        endpoint,
		APIKey:          "secret",
		VehicleID:       "ABC-123",
		IntervalSeconds: 1,
		RetryBackoffMS:  1,
	}
	cfg.SetDefaults()
	cfg.RetryCount = 0
	return cfg
}

func snapshot() *model.VehicleSnapshot {
	s := model.NewSnapshot("ABC-123")
	s.Set(model.SensorIndoorTemp, model.SensorEntry{Value: json.RawMessage("22.5")})
	return &s
}

func TestCommunicatorUploadsAndForwardsCommands(t *testing.T) {
	cl := &cloud{commands: []CloudCommand{{Action: "start_heating", Parameters: map[string]any{"target_temp": 22.0}}}}
	srv := httptest.NewServer(cl.handler())
	defer srv.Close()
	src := &fakeSource{snap: snapshot()}
	cfg := testConfig(srv.URL)

	comm := NewCommunicator(cfg, NewClient(cfg), src, logger.NopLogger{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- comm.Run(ctx) }()

	require.Eventually(t, func() bool { return len(src.commands()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	data, statuses, auth := cl.snapshot()
	require.NotEmpty(t, data)
	assert.Equal(t, "ABC-123", data[0].LicensePlate)
	assert.Equal(t, PayloadSource, data[0].Source)
	assert.Contains(t, data[0].Data.Fields, model.SensorIndoorTemp)
	assert.Equal(t, "Bearer secret", auth[0])
	assert.Equal(t, StatusOnline, statuses[0])
	assert.Equal(t, StatusOffline, statuses[len(statuses)-1])

	cmd := src.commands()[0]
	assert.Equal(t, "start_heating", cmd.Name)
	assert.Equal(t, "cloud", cmd.Source)
	assert.Equal(t, 22.0, cmd.Parameters["target_temp"])
}

func TestCommunicatorStopsAfterMaxFailures(t *testing.T) {
	cl := &cloud{fail: true}
	srv := httptest.NewServer(cl.handler())
	defer srv.Close()
	cfg := testConfig(srv.URL)
	cfg.MaxFailures = 3

	comm := NewCommunicator(cfg, NewClient(cfg), &fakeSource{snap: snapshot()}, logger.NopLogger{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := comm.Run(ctx)
	require.ErrorIs(t, err, ErrTooManyFailures)
	_, statuses, auth := cl.snapshot()
	assert.Len(t, auth, 3)
	assert.Equal(t, []string{StatusOnline, StatusError, StatusOffline}, statuses)
}

func TestCommunicatorNoDataIsNotAFailure(t *testing.T) {
	cl := &cloud{}
	srv := httptest.NewServer(cl.handler())
	defer srv.Close()
	cfg := testConfig(srv.URL)

	comm := NewCommunicator(cfg, NewClient(cfg), &fakeSource{}, logger.NopLogger{})
	assert.True(t, comm.tick(context.Background()))
	data, _, _ := cl.snapshot()
	assert.Empty(t, data)
}

func TestClientRetriesServerErrors(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"received","message":"ok"}`))
	}))
	defer srv.Close()
	cfg := testConfig(srv.URL)
	cfg.RetryCount = 3

	resp, err := NewClient(cfg).SendData(context.Background(), "ABC-123", *snapshot())
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Message)
	mu.Lock()
	assert.Equal(t, 3, calls)
	mu.Unlock()
}

func TestSendDataDecodesRegardlessOfContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(`{"status":"received","commands":[{"action":"lock","parameters":{}}]}`))
	}))
	defer srv.Close()
	cfg := testConfig(srv.URL)

	resp, err := NewClient(cfg).SendData(context.Background(), "ABC-123", *snapshot())
	require.NoError(t, err)
	require.Len(t, resp.Commands, 1)
	assert.Equal(t, "lock", resp.Commands[0].Action)
}

func TestUndecodableResponseFailsTick(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()
	cfg := testConfig(srv.URL)

	_, err := NewClient(cfg).SendData(context.Background(), "ABC-123", *snapshot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")

	src := &fakeSource{snap: snapshot()}
	comm := NewCommunicator(cfg, NewClient(cfg), src, logger.NopLogger{})
	assert.False(t, comm.tick(context.Background()))
	assert.Empty(t, src.commands())
}
