package plugins

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/vehicle-broker/config"
	"github.com/kilianp07/vehicle-broker/core/store"
	"github.com/kilianp07/vehicle-broker/core/transport"
	"github.com/kilianp07/vehicle-broker/infra/memory"
	"github.com/kilianp07/vehicle-broker/infra/mqtt"
	"github.com/kilianp07/vehicle-broker/infra/redis"
)

const redisPingTimeout = 5 * time.Second

func init() {
	RegisterStore(config.StoreMemory, func(*Env) (store.KeyValueStore, error) {
		return memory.NewStore(), nil
	})
	RegisterStore(config.StoreRedis, func(env *Env) (store.KeyValueStore, error) {
		client := env.Redis()
		ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
		defer cancel()
		if err := redis.Ping(ctx, client); err != nil {
			return nil, store.Unavailable(fmt.Sprintf("ping %s", env.Config.Redis.Addr), err)
		}
		return redis.NewStore(client), nil
	})

	RegisterTransport(config.TransportMemory, func(*Env) (transport.Transport, error) {
		return memory.NewTransport(), nil
	})
	RegisterTransport(config.TransportRedis, func(env *Env) (transport.Transport, error) {
		return redis.NewTransport(env.Redis(), env.Log), nil
	})
	RegisterTransport(config.TransportMQTT, func(env *Env) (transport.Transport, error) {
		return mqtt.NewTransport(env.Config.MQTT)
	})
}
