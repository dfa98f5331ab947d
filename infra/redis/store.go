package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/kilianp07/vehicle-broker/core/store"
)

// scanCount is the COUNT hint passed to SCAN.
const scanCount = 100

// Store implements store.KeyValueStore with a Redis client.
type Store struct {
	client *goredis.Client
}

// NewStore wraps client.
func NewStore(client *goredis.Client) *Store {
	return &Store{client: client}
}

var _ store.KeyValueStore = (*Store)(nil)

// mapErr translates go-redis errors. Server replies such as WRONGTYPE are
// returned as is; anything else means the server could not be reached.
func mapErr(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, goredis.Nil) {
		return fmt.Errorf("%s %s: %w", op, key, store.ErrNotFound)
	}
	var reply goredis.Error
	if errors.As(err, &reply) {
		return fmt.Errorf("%s %s: %w", op, key, err)
	}
	return store.Unavailable(op+" "+key, err)
}

func (s *Store) SetHash(ctx context.Context, key, field, value string) error {
	return mapErr("hset", key, s.client.HSet(ctx, key, field, value).Err())
}

func (s *Store) GetAllHash(ctx context.Context, key string) (map[string]string, error) {
	m, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, mapErr("hgetall", key, err)
	}
	return m, nil
}

func (s *Store) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return mapErr("set", key, s.client.Set(ctx, key, value, ttl).Err())
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	if err != nil {
		return "", mapErr("get", key, err)
	}
	return v, nil
}

func (s *Store) ListPrepend(ctx context.Context, key, value string) error {
	return mapErr("lpush", key, s.client.LPush(ctx, key, value).Err())
}

func (s *Store) ListTrim(ctx context.Context, key string, maxLen int64) error {
	if maxLen <= 0 {
		return mapErr("del", key, s.client.Del(ctx, key).Err())
	}
	return mapErr("ltrim", key, s.client.LTrim(ctx, key, 0, maxLen-1).Err())
}

func (s *Store) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	v, err := s.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, mapErr("lrange", key, err)
	}
	return v, nil
}

func (s *Store) ListLen(ctx context.Context, key string) (int64, error) {
	n, err := s.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, mapErr("llen", key, err)
	}
	return n, nil
}

// Keys walks the keyspace with SCAN so large databases are not blocked.
func (s *Store) KeysMatching(ctx context.Context, pattern string) ([]string, error) {
	out := []string{}
	iter := s.client.Scan(ctx, 0, pattern, scanCount).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, mapErr("scan", pattern, err)
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return mapErr("del", keys[0], s.client.Del(ctx, keys...).Err())
}

func (s *Store) Ping(ctx context.Context) error {
	return mapErr("ping", "", s.client.Ping(ctx).Err())
}

func (s *Store) Close() error {
	return s.client.Close()
}
