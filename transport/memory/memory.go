// Package memory is an in-process publish/subscribe transport. A Network
// connects any number of named endpoints; each endpoint is the transport of
// one actor. Links between endpoints can be cut and restored, and messages can
// be dropped at random, to simulate partial connectivity and loss.
package memory

import (
	"context"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/pkg/errors"
)

const (
	// DefaultQueueSize bounds the per-subscription delivery queue.
	DefaultQueueSize = 256

	matchPollInterval = 5 * time.Millisecond
)

// ErrClosed is returned by operations on a closed endpoint or network.
var ErrClosed = errors.New("memory transport is closed")

// Link is a bidirectional connection between two endpoints.
type Link struct {
	A, B string
}

type direction struct {
	from, to string
}

// Network is a set of endpoints and the links between them. By default every
// endpoint reaches every other one.
type Network struct {
	mu        sync.Mutex
	endpoints map[string]*Endpoint
	// allowed, when non-nil, is the complete set of usable links.
	allowed map[direction]struct{}
	blocked map[direction]struct{}
	closed  bool

	lossRate  float64
	rng       *rand.Rand
	queueSize int
	l         log15.Logger
}

// Option is an option function for Network.
type Option func(n *Network)

// WithLogger configures the logger for the network.
func WithLogger(l log15.Logger) Option {
	return func(n *Network) {
		n.l = l
	}
}

// WithQueueSize bounds each subscription's delivery queue. Messages arriving
// at a full queue are dropped.
func WithQueueSize(size int) Option {
	return func(n *Network) {
		if size > 0 {
			n.queueSize = size
		}
	}
}

// WithLossRate drops each delivery with probability rate, using a random
// source seeded with seed.
func WithLossRate(rate float64, seed int64) Option {
	return func(n *Network) {
		n.lossRate = rate
		n.rng = rand.New(rand.NewSource(seed))
	}
}

// WithLinks restricts the network to the given links. Endpoints not joined by
// one of them never hear each other.
func WithLinks(links ...Link) Option {
	return func(n *Network) {
		n.allowed = make(map[direction]struct{}, 2*len(links))
		for _, link := range links {
			n.allowed[direction{link.A, link.B}] = struct{}{}
			n.allowed[direction{link.B, link.A}] = struct{}{}
		}
	}
}

// NewNetwork returns an empty network.
func NewNetwork(opts ...Option) *Network {
	noopLogger := log15.New()
	noopLogger.SetHandler(log15.DiscardHandler())
	n := &Network{
		endpoints: make(map[string]*Endpoint),
		blocked:   make(map[direction]struct{}),
		queueSize: DefaultQueueSize,
		l:         noopLogger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Endpoint returns the endpoint named name, creating it if needed.
func (n *Network) Endpoint(name string) *Endpoint {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ep, ok := n.endpoints[name]; ok {
		return ep
	}
	ep := &Endpoint{
		name:    name,
		net:     n,
		subs:    make(map[string]map[*subscription]struct{}),
		matched: make(map[string]bool),
		l:       n.l.New("endpoint", name),
	}
	n.endpoints[name] = ep
	return ep
}

// Partition cuts the link between a and b in both directions.
func (n *Network) Partition(a, b string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.blocked[direction{a, b}] = struct{}{}
	n.blocked[direction{b, a}] = struct{}{}
}

// Heal restores a link cut by Partition.
func (n *Network) Heal(a, b string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.blocked, direction{a, b})
	delete(n.blocked, direction{b, a})
}

// Close closes every endpoint on the network.
func (n *Network) Close() error {
	n.mu.Lock()
	n.closed = true
	eps := make([]*Endpoint, 0, len(n.endpoints))
	for _, ep := range n.endpoints {
		eps = append(eps, ep)
	}
	n.mu.Unlock()

	for _, ep := range eps {
		ep.Close()
	}
	return nil
}

func (n *Network) reachableLocked(from, to string) bool {
	if from == to {
		return true
	}
	d := direction{from, to}
	if _, ok := n.blocked[d]; ok {
		return false
	}
	if n.allowed != nil {
		_, ok := n.allowed[d]
		return ok
	}
	return true
}

func (n *Network) lostLocked() bool {
	return n.rng != nil && n.rng.Float64() < n.lossRate
}

// subscribedLocked reports whether any endpoint subscribes to topic.
func (n *Network) subscribedLocked(topic string) bool {
	for _, ep := range n.endpoints {
		if ep.hasSubscriber(topic) {
			return true
		}
	}
	return false
}

// Endpoint is one actor's attachment to a Network.
type Endpoint struct {
	name string
	net  *Network
	l    log15.Logger

	mu      sync.Mutex
	subs    map[string]map[*subscription]struct{}
	matched map[string]bool
	closed  bool
}

// Name returns the endpoint's name.
func (ep *Endpoint) Name() string {
	return ep.name
}

// Publish hands payload to every reachable subscription of topic. The first
// publish on a topic waits until some endpoint subscribes to it.
func (ep *Endpoint) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ep.waitMatched(ctx, topic); err != nil {
		return err
	}

	n := ep.net
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrClosed
	}
	var targets []*subscription
	for name, peer := range n.endpoints {
		if !n.reachableLocked(ep.name, name) || n.lostLocked() {
			continue
		}
		targets = append(targets, peer.subscribers(topic)...)
	}
	n.mu.Unlock()

	for _, sub := range targets {
		sub.offer(payload)
	}
	return nil
}

func (ep *Endpoint) waitMatched(ctx context.Context, topic string) error {
	ep.mu.Lock()
	closed, matched := ep.closed, ep.matched[topic]
	ep.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if matched {
		return nil
	}

	ticker := time.NewTicker(matchPollInterval)
	defer ticker.Stop()
	for {
		ep.net.mu.Lock()
		ok := ep.net.subscribedLocked(topic)
		ep.net.mu.Unlock()
		if ok {
			ep.mu.Lock()
			ep.matched[topic] = true
			ep.mu.Unlock()
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "no subscriber matched on %s", topic)
		case <-ticker.C:
		}
	}
}

// Subscribe delivers each message published on topic to fn, on a goroutine
// owned by the subscription.
func (ep *Endpoint) Subscribe(topic string, fn func(payload []byte)) (Subscription, error) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	if ep.closed {
		return nil, ErrClosed
	}
	sub := &subscription{
		ep:    ep,
		topic: topic,
		fn:    fn,
		queue: make(chan []byte, ep.net.queueSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	if ep.subs[topic] == nil {
		ep.subs[topic] = make(map[*subscription]struct{})
	}
	ep.subs[topic][sub] = struct{}{}
	go sub.run()
	return sub, nil
}

// Close closes every subscription of the endpoint. Later publishes and
// subscribes fail with ErrClosed.
func (ep *Endpoint) Close() error {
	ep.mu.Lock()
	if ep.closed {
		ep.mu.Unlock()
		return nil
	}
	ep.closed = true
	var subs []*subscription
	for _, set := range ep.subs {
		for sub := range set {
			subs = append(subs, sub)
		}
	}
	ep.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	return nil
}

func (ep *Endpoint) hasSubscriber(topic string) bool {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return len(ep.subs[topic]) > 0
}

func (ep *Endpoint) subscribers(topic string) []*subscription {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	subs := make([]*subscription, 0, len(ep.subs[topic]))
	for sub := range ep.subs[topic] {
		subs = append(subs, sub)
	}
	return subs
}

func (ep *Endpoint) remove(sub *subscription) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	delete(ep.subs[sub.topic], sub)
}

// Subscription is the handle returned by Subscribe.
type Subscription = io.Closer

type subscription struct {
	ep    *Endpoint
	topic string
	fn    func([]byte)
	queue chan []byte

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func (s *subscription) offer(payload []byte) {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	select {
	case <-s.stop:
	case s.queue <- buf:
	default:
		s.ep.l.Debug("subscription queue full, dropping message", "topic", s.topic)
	}
}

func (s *subscription) run() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case payload := <-s.queue:
			s.fn(payload)
		}
	}
}

// Close stops delivery and waits for an in-flight callback to return.
func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		s.ep.remove(s)
		close(s.stop)
	})
	<-s.done
	return nil
}
