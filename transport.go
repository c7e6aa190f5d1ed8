package actionsync

import (
	"context"
	"io"
)

// Transport is the publish/subscribe channel the engine talks over. Neither
// delivery nor ordering is assumed.
//
// Publish is fire-and-forget. It may block, bounded by ctx, until at least one
// subscriber is matched on the topic before its first publish, but must not
// block indefinitely.
//
// Subscribe arranges for fn to be called once per delivered message, on a
// goroutine of the transport's choosing. Samples the transport itself
// considers invalid must be dropped rather than delivered.
//
// Implementations live in the transport/memory and transport/redis packages.
type Transport interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(topic string, fn func(payload []byte)) (Subscription, error)
}

// Subscription is an active Subscribe registration. Close stops delivery; no
// callback runs after Close returns.
//
// It is an alias so that transports can satisfy Transport without importing
// this package.
type Subscription = io.Closer
