package test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/vehicle-broker/app"
	"github.com/kilianp07/vehicle-broker/config"
	"github.com/kilianp07/vehicle-broker/core/factory"
	"github.com/kilianp07/vehicle-broker/core/model"
	"github.com/kilianp07/vehicle-broker/infra/logger"
	"github.com/kilianp07/vehicle-broker/simulator"
	"github.com/kilianp07/vehicle-broker/test/util"
)

// TestBrokerWithContainers runs the service against real Redis and Mosquitto
// servers fed by the simulator.
func TestBrokerWithContainers(t *testing.T) {
	util.RequireE2E(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	redisAddr, stopRedis, err := util.StartRedis(ctx)
	require.NoError(t, err)
	defer stopRedis()
	mqttURL, stopMosquitto, err := util.StartMosquitto(ctx)
	require.NoError(t, err)
	defer stopMosquitto()

	cfg := &config.Config{}
	cfg.Store.Type = config.StoreRedis
	cfg.Transport.Type = config.TransportMQTT
	cfg.Redis.Addr = redisAddr
	cfg.MQTT.Broker = mqttURL
	cfg.MQTT.ClientID = "broker-e2e"
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Metrics.Sinks = []factory.ModuleConfig{{Type: "nop"}}
	cfg.Simulator.Vehicles = []string{"ABC-123", "XYZ-789"}
	cfg.Simulator.Seed = 7
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	svc, err := app.New(cfg)
	require.NoError(t, err)
	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- svc.Run(runCtx) }()
	defer func() {
		stop()
		assert.NoError(t, <-done)
		assert.NoError(t, svc.Close())
	}()
	require.Eventually(t, func() bool { return svc.Addr() != nil }, 5*time.Second, 10*time.Millisecond)
	base := "http://" + svc.Addr().String()

	sim, err := simulator.New(cfg.Simulator, svc.Transport, logger.NopLogger{})
	require.NoError(t, err)
	simCtx, stopSim := context.WithCancel(ctx)
	simDone := make(chan error, 1)
	go func() { simDone <- sim.Run(simCtx) }()
	defer func() {
		stopSim()
		<-simDone
	}()

	metricsCtx, metricsCancel := context.WithTimeout(ctx, 10*time.Second)
	defer metricsCancel()
	require.NoError(t, util.WaitForMetric(metricsCtx, base+"/metrics", `broker_messages_total{kind="sensor",outcome="relayed"}`))

	for _, id := range cfg.Simulator.Vehicles {
		require.Eventually(t, func() bool {
			resp, err := http.Get(base + "/api/vehicles/" + id + "/data")
			if err != nil {
				return false
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return false
			}
			var snap model.VehicleSnapshot
			if json.NewDecoder(resp.Body).Decode(&snap) != nil {
				return false
			}
			_, indoor := snap.Float(model.SensorIndoorTemp)
			_, gps := snap.Fields[model.SensorGPS]
			return indoor && gps
		}, 10*time.Second, 100*time.Millisecond, "snapshot for %s", id)
	}
}
