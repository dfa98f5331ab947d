package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/vehicle-broker/test/util"
)

func TestStoreAgainstRedisContainer(t *testing.T) {
	util.RequireE2E(t)
	ctx := context.Background()
	addr, cleanup, err := util.StartRedis(ctx)
	require.NoError(t, err)
	defer cleanup()

	client := NewClient(Config{Addr: addr, DialTimeoutS: 5})
	defer func() { _ = client.Close() }()
	require.NoError(t, Ping(ctx, client))

	s := NewStore(client)
	require.NoError(t, s.SetWithTTL(ctx, "vehicle:ABC-123:latest_data", `{"vehicleId":"ABC-123"}`, time.Minute))
	v, err := s.Get(ctx, "vehicle:ABC-123:latest_data")
	require.NoError(t, err)
	assert.JSONEq(t, `{"vehicleId":"ABC-123"}`, v)
}
