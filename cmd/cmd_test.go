package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/vehicle-broker/core/broker"
	"github.com/kilianp07/vehicle-broker/core/model"
	"github.com/kilianp07/vehicle-broker/core/topics"
	"github.com/kilianp07/vehicle-broker/infra/logger"
	rstore "github.com/kilianp07/vehicle-broker/infra/redis"
)

func writeConfig(t *testing.T, addr string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "store:\n  type: redis\ntransport:\n  type: redis\nredis:\n  addr: " + addr + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgPath = ""
	asJSON = false
	historyLimit = 10
	simVehicles = nil
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "--env-file", ""))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seed(t *testing.T, addr string) {
	t.Helper()
	ctx := context.Background()
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	defer client.Close()
	st := rstore.NewStore(client)
	var cfg broker.Config
	cfg.SetDefaults()

	snap := model.NewSnapshot("ABC-123")
	snap.Timestamp = model.NewTimestamp(time.Now())
	snap.Set(model.SensorIndoorTemp, model.SensorEntry{Value: json.RawMessage(`21.5`), Timestamp: snap.Timestamp})
	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	require.NoError(t, st.SetWithTTL(ctx, topics.LatestDataKey("ABC-123"), string(raw), time.Minute))

	cl := broker.NewCommandLog(st, cfg, logger.NopLogger{})
	for i, name := range []string{"lock", "unlock"} {
		require.NoError(t, cl.Append(ctx, model.Command{
			ID:         name,
			VehicleID:  "ABC-123",
			Name:       name,
			Parameters: map[string]any{},
			Timestamp:  model.NewTimestamp(time.Unix(int64(1700000000+i), 0)),
			ReceivedAt: model.NewTimestamp(time.Unix(int64(1700000000+i), 0)),
		}))
	}
}

func TestVehiclesLs(t *testing.T) {
	srv := miniredis.RunT(t)
	seed(t, srv.Addr())
	cfg := writeConfig(t, srv.Addr())

	out, err := execute(t, "vehicles", "ls", "-c", cfg)
	require.NoError(t, err)
	fields := strings.Split(strings.TrimSpace(out), "\t")
	require.Len(t, fields, 3)
	assert.Equal(t, "ABC-123", fields[0])
	assert.Equal(t, model.SensorIndoorTemp, fields[2])
}

func TestHistoryJSON(t *testing.T) {
	srv := miniredis.RunT(t)
	seed(t, srv.Addr())
	cfg := writeConfig(t, srv.Addr())

	out, err := execute(t, "history", "ABC-123", "-c", cfg, "--json", "--limit", "1")
	require.NoError(t, err)
	var cmds []model.Command
	require.NoError(t, json.Unmarshal([]byte(out), &cmds))
	require.Len(t, cmds, 1)
	assert.Equal(t, "unlock", cmds[0].Name)
}

func TestSendPublishesCommand(t *testing.T) {
	srv := miniredis.RunT(t)
	cfg := writeConfig(t, srv.Addr())

	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	defer client.Close()
	sub := client.Subscribe(context.Background(), topics.CommandTopic("ABC-123"))
	defer sub.Close()
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	out, err := execute(t, "send", "ABC-123", "set_temperature", "target=21", "mode=eco", "-c", cfg)
	require.NoError(t, err)

	select {
	case msg := <-sub.Channel():
		var c model.Command
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &c))
		assert.Equal(t, strings.TrimSpace(out), c.ID)
		assert.Equal(t, "set_temperature", c.Name)
		assert.Equal(t, "cli", c.Source)
		assert.Equal(t, map[string]any{"target": float64(21), "mode": "eco"}, c.Parameters)
	case <-time.After(2 * time.Second):
		t.Fatal("command not published")
	}
}

func TestSendRejectsBadParameter(t *testing.T) {
	_, err := execute(t, "send", "ABC-123", "lock", "novalue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key=value")
}

func TestSimulateRejectsBadVehicle(t *testing.T) {
	t.Setenv("K_TRANSPORT__TYPE", "memory")
	t.Setenv("K_STORE__TYPE", "memory")
	_, err := execute(t, "simulate", "--vehicles", "bad:id")
	require.Error(t, err)
}
