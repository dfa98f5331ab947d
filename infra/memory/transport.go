package memory

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"

	"github.com/kilianp07/vehicle-broker/core/transport"
)

// ErrClosed is returned by a closed Transport.
var ErrClosed = errors.New("transport closed")

type subscriber struct {
	id      uint64
	topic   string
	pattern bool
	handler transport.Handler
}

func (s subscriber) matches(topic string) bool {
	if !s.pattern {
		return s.topic == topic
	}
	ok, _ := path.Match(s.topic, topic)
	return ok
}

// Transport delivers published messages synchronously to every matching
// subscriber, in subscription order, on the publishing goroutine.
type Transport struct {
	mu     sync.RWMutex
	subs   []subscriber
	nextID uint64
	closed bool
}

// NewTransport returns an empty Transport.
func NewTransport() *Transport { return &Transport{} }

var _ transport.Transport = (*Transport)(nil)

func (t *Transport) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return ErrClosed
	}
	matched := make([]subscriber, 0, len(t.subs))
	for _, s := range t.subs {
		if s.matches(topic) {
			matched = append(matched, s)
		}
	}
	t.mu.RUnlock()

	for _, s := range matched {
		msg := transport.Message{Topic: topic, Payload: append([]byte(nil), payload...)}
		if s.pattern {
			msg.Pattern = s.topic
		}
		s.handler(ctx, msg)
	}
	return nil
}

func (t *Transport) Subscribe(_ context.Context, topic string, h transport.Handler) (transport.Subscription, error) {
	return t.add(topic, false, h)
}

func (t *Transport) PSubscribe(_ context.Context, pattern string, h transport.Handler) (transport.Subscription, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("pattern %q: %w", pattern, err)
	}
	return t.add(pattern, true, h)
}

func (t *Transport) add(topic string, pattern bool, h transport.Handler) (transport.Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}
	t.nextID++
	t.subs = append(t.subs, subscriber{id: t.nextID, topic: topic, pattern: pattern, handler: h})
	return &subscription{t: t, id: t.nextID}, nil
}

func (t *Transport) remove(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.subs {
		if s.id == id {
			t.subs = append(t.subs[:i], t.subs[i+1:]...)
			return
		}
	}
}

// Close drops every subscription.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.subs = nil
	t.mu.Unlock()
	return nil
}

type subscription struct {
	t    *Transport
	id   uint64
	once sync.Once
}

func (s *subscription) Close() error {
	s.once.Do(func() { s.t.remove(s.id) })
	return nil
}
