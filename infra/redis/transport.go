package redis

import (
	"context"
	"fmt"
	"sync"

	goredis "github.com/go-redis/redis/v8"

	"github.com/kilianp07/vehicle-broker/core/logger"
	"github.com/kilianp07/vehicle-broker/core/transport"
)

// Transport implements transport.Transport with Redis PUBLISH, SUBSCRIBE and
// PSUBSCRIBE. Each subscription owns a dedicated connection and a goroutine
// that invokes the handler for every message in arrival order.
type Transport struct {
	client *goredis.Client
	log    logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	subs map[*subscription]struct{}
}

// NewTransport wraps client. Handlers receive a context cancelled by Close.
func NewTransport(client *goredis.Client, log logger.Logger) *Transport {
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		client: client,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		subs:   map[*subscription]struct{}{},
	}
}

var _ transport.Transport = (*Transport)(nil)

func (t *Transport) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := t.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (t *Transport) Subscribe(ctx context.Context, topic string, h transport.Handler) (transport.Subscription, error) {
	return t.start(ctx, t.client.Subscribe(ctx, topic), topic, h)
}

func (t *Transport) PSubscribe(ctx context.Context, pattern string, h transport.Handler) (transport.Subscription, error) {
	return t.start(ctx, t.client.PSubscribe(ctx, pattern), pattern, h)
}

func (t *Transport) start(ctx context.Context, ps *goredis.PubSub, name string, h transport.Handler) (transport.Subscription, error) {
	// Wait for the subscription confirmation so no publish is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", name, err)
	}
	sub := &subscription{t: t, ps: ps, done: make(chan struct{})}
	t.mu.Lock()
	t.subs[sub] = struct{}{}
	t.mu.Unlock()

	go func() {
		defer close(sub.done)
		for m := range ps.Channel() {
			h(t.ctx, transport.Message{Topic: m.Channel, Pattern: m.Pattern, Payload: []byte(m.Payload)})
		}
		t.log.Debugw("redis subscription closed", map[string]any{"topic": name})
	}()
	return sub, nil
}

// Close ends every subscription and waits for their handlers to return. The
// underlying client is left open.
func (t *Transport) Close() error {
	t.cancel()
	t.mu.Lock()
	subs := make([]*subscription, 0, len(t.subs))
	for s := range t.subs {
		subs = append(subs, s)
	}
	t.mu.Unlock()
	for _, s := range subs {
		_ = s.Close()
	}
	return nil
}

type subscription struct {
	t    *Transport
	ps   *goredis.PubSub
	done chan struct{}
	once sync.Once
	err  error
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.err = s.ps.Close()
		<-s.done
		s.t.mu.Lock()
		delete(s.t.subs, s)
		s.t.mu.Unlock()
	})
	return s.err
}
