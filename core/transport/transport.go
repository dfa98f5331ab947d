// Package transport defines the publish/subscribe contract the broker uses
// to receive producer traffic and relay it to consumers.
package transport

import "context"

// Message is one delivery from a subscription.
type Message struct {
	// Topic is the concrete topic the payload was published on.
	Topic string
	// Pattern is the glob pattern that matched, empty for exact subscriptions.
	Pattern string
	Payload []byte
}

// Handler processes a delivered message. Handlers must not retain Payload
// after returning unless they copy it.
type Handler func(ctx context.Context, msg Message)

// Subscription is an active subscription.
type Subscription interface {
	Close() error
}

// Transport is a topic based pub/sub bus. Topics use ':' separated segments.
// Patterns are globs; callers only rely on '*' standing for one segment.
type Transport interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string, h Handler) (Subscription, error)
	PSubscribe(ctx context.Context, pattern string, h Handler) (Subscription, error)
	Close() error
}
