// Package redis carries the handshake protocol over Redis pub/sub channels.
package redis

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/pkg/errors"
	backend "github.com/redis/go-redis/v9"
)

const (
	// DefaultPrefix is prepended to every topic to form the channel name.
	DefaultPrefix = "actionsync:"

	// DefaultMatchPollInterval is how often the first publish on a channel
	// checks for a subscriber.
	DefaultMatchPollInterval = 20 * time.Millisecond
)

// Transport publishes and subscribes on Redis channels named prefix+topic.
type Transport struct {
	client    backend.UniversalClient
	prefix    string
	matchPoll time.Duration
	l         log15.Logger

	mu      sync.Mutex
	matched map[string]bool
}

// Option is an option function for Transport.
type Option func(t *Transport)

// WithPrefix sets the channel name prefix.
func WithPrefix(prefix string) Option {
	return func(t *Transport) {
		t.prefix = prefix
	}
}

// WithLogger configures the logger for the transport.
func WithLogger(l log15.Logger) Option {
	return func(t *Transport) {
		t.l = l
	}
}

// WithMatchPollInterval sets how often the first publish on a channel polls
// PUBSUB NUMSUB.
func WithMatchPollInterval(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.matchPoll = d
		}
	}
}

// New wraps client. The caller keeps ownership of the client and closes it
// after the transport's subscriptions are closed.
func New(client backend.UniversalClient, opts ...Option) *Transport {
	noopLogger := log15.New()
	noopLogger.SetHandler(log15.DiscardHandler())
	t := &Transport{
		client:    client,
		prefix:    DefaultPrefix,
		matchPoll: DefaultMatchPollInterval,
		l:         noopLogger,
		matched:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transport) channel(topic string) string {
	return t.prefix + topic
}

// Publish sends payload on the topic's channel. The first publish on a
// channel blocks, bounded by ctx, until Redis reports at least one
// subscriber.
func (t *Transport) Publish(ctx context.Context, topic string, payload []byte) error {
	channel := t.channel(topic)
	if err := t.waitMatched(ctx, channel); err != nil {
		return err
	}
	if err := t.client.Publish(ctx, channel, payload).Err(); err != nil {
		return errors.Wrapf(err, "redis error publishing to %s", channel)
	}
	return nil
}

func (t *Transport) waitMatched(ctx context.Context, channel string) error {
	t.mu.Lock()
	matched := t.matched[channel]
	t.mu.Unlock()
	if matched {
		return nil
	}

	ticker := time.NewTicker(t.matchPoll)
	defer ticker.Stop()
	for {
		counts, err := t.client.PubSubNumSub(ctx, channel).Result()
		if err != nil && ctx.Err() == nil {
			return errors.Wrapf(err, "redis error counting subscribers of %s", channel)
		}
		if counts[channel] > 0 {
			t.mu.Lock()
			t.matched[channel] = true
			t.mu.Unlock()
			t.l.Debug("subscriber matched", "channel", channel)
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "no subscriber matched on %s", channel)
		case <-ticker.C:
		}
	}
}

// Subscribe starts delivering the topic's messages to fn. It returns once
// Redis has confirmed the subscription.
func (t *Transport) Subscribe(topic string, fn func(payload []byte)) (io.Closer, error) {
	channel := t.channel(topic)
	ctx := context.Background()
	ps := t.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, errors.Wrapf(err, "redis error subscribing to %s", channel)
	}

	s := &subscription{
		ps:   ps,
		done: make(chan struct{}),
	}
	msgs := ps.Channel()
	go func() {
		defer close(s.done)
		for msg := range msgs {
			fn([]byte(msg.Payload))
		}
		t.l.Debug("subscription ended", "channel", channel)
	}()
	return s, nil
}

type subscription struct {
	ps        *backend.PubSub
	done      chan struct{}
	closeOnce sync.Once
	err       error
}

// Close unsubscribes and waits for the delivery goroutine to exit.
func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		s.err = s.ps.Close()
	})
	<-s.done
	return s.err
}
