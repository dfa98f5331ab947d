// Package memory provides in-process implementations of the store and
// transport contracts for tests and single-node deployments.
package memory

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/vehicle-broker/core/store"
)

// ErrWrongType is returned when a key holds a value of another kind.
var ErrWrongType = errors.New("operation against a key holding the wrong kind of value")

type entry struct {
	str     string
	hash    map[string]string
	list    []string
	expires time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// Store is a mutex guarded map implementing store.KeyValueStore. Expired keys
// are removed lazily on access.
type Store struct {
	mu     sync.RWMutex
	data   map[string]*entry
	now    func() time.Time
	closed bool
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{data: map[string]*entry{}, now: time.Now}
}

// SetClock overrides the time source used for expiry.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

var _ store.KeyValueStore = (*Store)(nil)

func (s *Store) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return store.Unavailable(op, err)
	}
	if s.closed {
		return store.Unavailable(op, errors.New("store closed"))
	}
	return nil
}

// lookup returns the live entry at key. Callers hold the write lock.
func (s *Store) lookup(key string) *entry {
	e, ok := s.data[key]
	if !ok {
		return nil
	}
	if e.expired(s.now()) {
		delete(s.data, key)
		return nil
	}
	return e
}

func (s *Store) SetHash(ctx context.Context, key, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "hset"); err != nil {
		return err
	}
	e := s.lookup(key)
	if e == nil {
		e = &entry{hash: map[string]string{}}
		s.data[key] = e
	}
	if e.hash == nil {
		return fmt.Errorf("hset %s: %w", key, ErrWrongType)
	}
	e.hash[field] = value
	return nil
}

func (s *Store) GetAllHash(ctx context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "hgetall"); err != nil {
		return nil, err
	}
	out := map[string]string{}
	e := s.lookup(key)
	if e == nil {
		return out, nil
	}
	if e.hash == nil {
		return nil, fmt.Errorf("hgetall %s: %w", key, ErrWrongType)
	}
	for k, v := range e.hash {
		out[k] = v
	}
	return out, nil
}

func (s *Store) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "set"); err != nil {
		return err
	}
	e := &entry{str: value}
	if ttl > 0 {
		e.expires = s.now().Add(ttl)
	}
	s.data[key] = e
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "get"); err != nil {
		return "", err
	}
	e := s.lookup(key)
	if e == nil {
		return "", fmt.Errorf("get %s: %w", key, store.ErrNotFound)
	}
	if e.hash != nil || e.list != nil {
		return "", fmt.Errorf("get %s: %w", key, ErrWrongType)
	}
	return e.str, nil
}

// TTL returns the remaining time to live of key. ok is false for missing keys
// or keys without expiry.
func (s *Store) TTL(key string) (ttl time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(key)
	if e == nil || e.expires.IsZero() {
		return 0, false
	}
	return e.expires.Sub(s.now()), true
}

func (s *Store) ListPrepend(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "lpush"); err != nil {
		return err
	}
	e := s.lookup(key)
	if e == nil {
		e = &entry{list: []string{}}
		s.data[key] = e
	}
	if e.list == nil {
		return fmt.Errorf("lpush %s: %w", key, ErrWrongType)
	}
	e.list = append([]string{value}, e.list...)
	return nil
}

func (s *Store) ListTrim(ctx context.Context, key string, maxLen int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "ltrim"); err != nil {
		return err
	}
	e := s.lookup(key)
	if e == nil {
		return nil
	}
	if e.list == nil {
		return fmt.Errorf("ltrim %s: %w", key, ErrWrongType)
	}
	if maxLen <= 0 {
		delete(s.data, key)
		return nil
	}
	if int64(len(e.list)) > maxLen {
		e.list = append([]string(nil), e.list[:maxLen]...)
	}
	return nil
}

func (s *Store) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "lrange"); err != nil {
		return nil, err
	}
	e := s.lookup(key)
	if e == nil {
		return []string{}, nil
	}
	if e.list == nil {
		return nil, fmt.Errorf("lrange %s: %w", key, ErrWrongType)
	}
	lo, hi, ok := span(int64(len(e.list)), start, stop)
	if !ok {
		return []string{}, nil
	}
	return append([]string(nil), e.list[lo:hi]...), nil
}

func (s *Store) ListLen(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "llen"); err != nil {
		return 0, err
	}
	e := s.lookup(key)
	if e == nil {
		return 0, nil
	}
	if e.list == nil {
		return 0, fmt.Errorf("llen %s: %w", key, ErrWrongType)
	}
	return int64(len(e.list)), nil
}

// span converts inclusive Redis style indices, negative counting from the
// tail, into a half-open slice range.
func span(n, start, stop int64) (lo, hi int64, ok bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop + 1, true
}

func (s *Store) KeysMatching(ctx context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "keys"); err != nil {
		return nil, err
	}
	out := []string{}
	for k := range s.data {
		if s.lookup(k) == nil {
			continue
		}
		ok, err := path.Match(pattern, k)
		if err != nil {
			return nil, fmt.Errorf("keys %q: %w", pattern, err)
		}
		if ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "del"); err != nil {
		return err
	}
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.check(ctx, "ping")
}

// Close marks the store closed. Subsequent calls fail with
// store.ErrUnavailable.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
