package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/vehicle-broker/core/store"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client, *Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client, NewStore(client)
}

func TestStore_HashRoundTrip(t *testing.T) {
	_, _, s := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, s.SetHash(ctx, "vehicle:ABC-123:sensors", "indoorTemp", `{"value":22.5}`))
	require.NoError(t, s.SetHash(ctx, "vehicle:ABC-123:sensors", "outdoorTemp", `{"value":15.2}`))

	got, err := s.GetAllHash(ctx, "vehicle:ABC-123:sensors")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, `{"value":22.5}`, got["indoorTemp"])

	got, err = s.GetAllHash(ctx, "vehicle:NOPE:sensors")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_SetWithTTLExpires(t *testing.T) {
	mr, _, s := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, s.SetWithTTL(ctx, "vehicle:ABC-123:latest_data", "{}", 300*time.Second))
	assert.Equal(t, 300*time.Second, mr.TTL("vehicle:ABC-123:latest_data"))

	v, err := s.Get(ctx, "vehicle:ABC-123:latest_data")
	require.NoError(t, err)
	assert.Equal(t, "{}", v)

	mr.FastForward(301 * time.Second)
	_, err = s.Get(ctx, "vehicle:ABC-123:latest_data")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_ListOperations(t *testing.T) {
	_, _, s := setupTestRedis(t)
	ctx := context.Background()
	key := "vehicle:ABC-123:command_history"

	for _, c := range []string{"a", "b", "c"} {
		require.NoError(t, s.ListPrepend(ctx, key, c))
	}
	require.NoError(t, s.ListTrim(ctx, key, 2))

	n, err := s.ListLen(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := s.ListRange(ctx, key, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, got)
}

func TestStore_KeysAndDelete(t *testing.T) {
	_, _, s := setupTestRedis(t)
	ctx := context.Background()
	require.NoError(t, s.SetWithTTL(ctx, "vehicle:A:latest_data", "{}", 0))
	require.NoError(t, s.SetWithTTL(ctx, "vehicle:B:latest_data", "{}", 0))
	require.NoError(t, s.SetWithTTL(ctx, "other", "{}", 0))

	keys, err := s.KeysMatching(ctx, "vehicle:*:latest_data")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"vehicle:A:latest_data", "vehicle:B:latest_data"}, keys)

	require.NoError(t, s.Delete(ctx, keys...))
	require.NoError(t, s.Delete(ctx))
	keys, err = s.KeysMatching(ctx, "vehicle:*")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestStore_WrongTypeIsNotUnavailable(t *testing.T) {
	_, _, s := setupTestRedis(t)
	ctx := context.Background()
	require.NoError(t, s.SetWithTTL(ctx, "k", "v", 0))
	err := s.ListPrepend(ctx, "k", "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrUnavailable)
}

func TestStore_ServerDown(t *testing.T) {
	mr, _, s := setupTestRedis(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.ErrorIs(t, s.Ping(ctx), store.ErrUnavailable)
	err := s.SetHash(ctx, "k", "f", "v")
	assert.ErrorIs(t, err, store.ErrUnavailable)
}
