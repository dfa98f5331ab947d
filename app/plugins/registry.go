// Package plugins maps the store and transport types named in the
// configuration to their constructors.
package plugins

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	goredis "github.com/go-redis/redis/v8"

	"github.com/kilianp07/vehicle-broker/config"
	"github.com/kilianp07/vehicle-broker/core/logger"
	"github.com/kilianp07/vehicle-broker/core/store"
	"github.com/kilianp07/vehicle-broker/core/transport"
	"github.com/kilianp07/vehicle-broker/infra/redis"
)

// Env carries the configuration and the connections shared between the
// store and the transport.
type Env struct {
	Config *config.Config
	Log    logger.Logger

	redis *goredis.Client
}

// NewEnv returns an Env for cfg.
func NewEnv(cfg *config.Config, log logger.Logger) *Env {
	return &Env{Config: cfg, Log: log}
}

// Redis returns the shared Redis client, creating it on first use.
func (e *Env) Redis() *goredis.Client {
	if e.redis == nil {
		e.redis = redis.NewClient(e.Config.Redis)
	}
	return e.redis
}

// Close releases the shared connections.
func (e *Env) Close() error {
	if e.redis == nil {
		return nil
	}
	if err := e.redis.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
		return err
	}
	return nil
}

// StoreFactory builds a key/value store.
type StoreFactory func(env *Env) (store.KeyValueStore, error)

// TransportFactory builds a pub/sub transport.
type TransportFactory func(env *Env) (transport.Transport, error)

var (
	Stores     = map[string]StoreFactory{}
	Transports = map[string]TransportFactory{}
)

func RegisterStore(name string, f StoreFactory)         { Stores[name] = f }
func RegisterTransport(name string, f TransportFactory) { Transports[name] = f }

// NewStore builds the store selected by env.Config.Store.Type.
func NewStore(env *Env) (store.KeyValueStore, error) {
	f, ok := Stores[env.Config.Store.Type]
	if !ok {
		return nil, fmt.Errorf("unknown store type %q (known: %s)", env.Config.Store.Type, names(Stores))
	}
	return f(env)
}

// NewTransport builds the transport selected by env.Config.Transport.Type.
func NewTransport(env *Env) (transport.Transport, error) {
	f, ok := Transports[env.Config.Transport.Type]
	if !ok {
		return nil, fmt.Errorf("unknown transport type %q (known: %s)", env.Config.Transport.Type, names(Transports))
	}
	return f(env)
}

func names[F any](m map[string]F) string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}
