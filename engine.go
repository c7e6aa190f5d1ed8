package actionsync

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/inconshreveable/log15"
	"github.com/ngrok/actionsync/internal/proto"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/utils/clock"
)

const (
	// DefaultBroadcastInterval is how often a wait re-publishes its gossip or
	// its notification.
	DefaultBroadcastInterval = 100 * time.Millisecond
	// DefaultPollInterval is how often consensus and handshake waits check
	// the ledger.
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultAckPollInterval is how often a notification send checks for
	// acknowledgments. Ack deadlines are usually tighter than group
	// rendezvous deadlines.
	DefaultAckPollInterval = 10 * time.Millisecond
	// DefaultLedgerRetention is how long a ledger entry that no wait owns is
	// kept after it was last touched.
	DefaultLedgerRetention = 30 * time.Second
	// DefaultInboxSize bounds the queue of inbound samples waiting for the
	// engine loop.
	DefaultInboxSize = 1024
	// DefaultDedupCacheSize bounds the number of notification ids remembered
	// for deduplication.
	DefaultDedupCacheSize = 4096

	ackPublishTimeout = time.Second
)

// Engine runs the handshake protocol for one actor. It owns the actor's
// identity and handshake ledger; every operation on the protocol goes through
// it.
type Engine struct {
	clock      clock.WithTicker
	transport  Transport
	l          log15.Logger
	metrics    *metrics
	registerer prometheus.Registerer

	ledger *ledger
	coord  *coordinator

	identityLock sync.RWMutex
	self         string

	callbackLock   sync.RWMutex
	notifyFn       func(Notification)

	broadcastInterval time.Duration
	pollInterval      time.Duration
	ackPollInterval   time.Duration
	retention         time.Duration
	inboxSize         int
	dedup             bool
	dedupCacheSize    int
	format            proto.Format
	legacyReady       bool

	// processed remembers notification ids already handed to the callback
	// along with the unix milli time they were first seen.
	processed *lru.Cache

	inbox      chan inbound
	deliveries chan *proto.Notification
	subs       []Subscription

	// ctx is canceled by Close; every goroutine the engine starts exits on it.
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// inbound is a raw sample as handed over by the transport.
type inbound struct {
	topic   string
	payload []byte
}

// Option is an option function for Engine.
// See Rob Pike's post on the topic for more information on this pattern:
// https://commandcenter.blogspot.com/2014/01/self-referential-functions-and-design.html
type Option func(e *Engine)

// WithLogger configures the logger to use for engine operations.
// By default, nothing will be logged.
func WithLogger(l log15.Logger) Option {
	return func(e *Engine) {
		e.l = l
	}
}

// WithBroadcastInterval sets the gossip and notification re-publish period.
// A non-positive value selects DefaultBroadcastInterval.
func WithBroadcastInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.broadcastInterval = d
		if e.broadcastInterval <= 0 {
			e.broadcastInterval = DefaultBroadcastInterval
		}
	}
}

// WithPollInterval sets the ledger check period of consensus and handshake
// waits. A non-positive value selects DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.pollInterval = d
		if e.pollInterval <= 0 {
			e.pollInterval = DefaultPollInterval
		}
	}
}

// WithAckPollInterval sets the acknowledgment check period of notification
// sends. A non-positive value selects DefaultAckPollInterval.
func WithAckPollInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.ackPollInterval = d
		if e.ackPollInterval <= 0 {
			e.ackPollInterval = DefaultAckPollInterval
		}
	}
}

// WithLedgerRetention sets how long entries created by gossip for tokens no
// local wait owns are kept. A non-positive value selects
// DefaultLedgerRetention.
func WithLedgerRetention(d time.Duration) Option {
	return func(e *Engine) {
		e.retention = d
		if e.retention <= 0 {
			e.retention = DefaultLedgerRetention
		}
	}
}

// WithInboxSize bounds the inbound sample queue. Samples arriving while it is
// full are dropped. A non-positive value selects DefaultInboxSize.
func WithInboxSize(n int) Option {
	return func(e *Engine) {
		e.inboxSize = n
		if e.inboxSize <= 0 {
			e.inboxSize = DefaultInboxSize
		}
	}
}

// WithNotificationDedup controls whether a notification id is handed to the
// callback at most once. It is on by default. With it off, every delivered
// copy of a re-published notification reaches the callback.
func WithNotificationDedup(on bool) Option {
	return func(e *Engine) {
		e.dedup = on
	}
}

// WithDedupCacheSize bounds how many notification ids are remembered for
// deduplication. A non-positive value selects DefaultDedupCacheSize.
func WithDedupCacheSize(n int) Option {
	return func(e *Engine) {
		e.dedupCacheSize = n
		if e.dedupCacheSize <= 0 {
			e.dedupCacheSize = DefaultDedupCacheSize
		}
	}
}

// WithWireFormat selects the encoding of published messages. Inbound samples
// are accepted in any format.
func WithWireFormat(f proto.Format) Option {
	return func(e *Engine) {
		e.format = f
	}
}

// WithLegacyReady makes the engine also read single-hop Ready messages and
// count them as liveness for the named graph.
func WithLegacyReady(on bool) Option {
	return func(e *Engine) {
		e.legacyReady = on
	}
}

// WithRegisterer registers the engine's metrics with reg.
// By default metrics are kept but not registered anywhere.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.registerer = reg
	}
}

// New constructs an engine on the given transport and subscribes to the
// protocol topics. The engine can't wait or send until SetIdentity is called,
// and inbound samples are dropped until then.
func New(t Transport, opts ...Option) (*Engine, error) {
	return newEngine(clock.RealClock{}, t, opts...)
}

func newEngine(clk clock.WithTicker, t Transport, opts ...Option) (*Engine, error) {
	if t == nil {
		return nil, errors.New("a transport is required")
	}

	noopLogger := log15.New()
	noopLogger.SetHandler(log15.DiscardHandler())
	e := &Engine{
		clock:             clk,
		transport:         t,
		l:                 noopLogger,
		metrics:           newMetrics(),
		broadcastInterval: DefaultBroadcastInterval,
		pollInterval:      DefaultPollInterval,
		ackPollInterval:   DefaultAckPollInterval,
		retention:         DefaultLedgerRetention,
		inboxSize:         DefaultInboxSize,
		dedup:             true,
		dedupCacheSize:    DefaultDedupCacheSize,
		format:            proto.FormatJSON,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.registerer != nil {
		if err := e.metrics.register(e.registerer); err != nil {
			return nil, err
		}
	}
	if e.dedup {
		cache, err := lru.New(e.dedupCacheSize)
		if err != nil {
			return nil, errors.Wrap(err, "unable to create notification dedup cache")
		}
		e.processed = cache
	}

	e.ledger = newLedger(clk.Now)
	e.coord = newCoordinator(e.l)
	e.inbox = make(chan inbound, e.inboxSize)
	e.deliveries = make(chan *proto.Notification, e.inboxSize)
	e.ctx, e.cancel = context.WithCancel(context.Background())

	topics := []string{proto.TopicHandshake, proto.TopicNotification}
	if e.legacyReady {
		topics = append(topics, proto.TopicReady)
	}
	for _, topic := range topics {
		sub, err := t.Subscribe(topic, e.enqueue(topic))
		if err != nil {
			e.cancel()
			for _, s := range e.subs {
				s.Close()
			}
			return nil, errors.Wrapf(err, "error subscribing to %s", topic)
		}
		e.subs = append(e.subs, sub)
	}

	e.wg.Add(2)
	go e.run()
	go e.deliver()
	return e, nil
}

// SetIdentity fixes the actor identity of this engine. It must be called
// before any wait, send or ack. Calling it again with the same identity is a
// no-op; a different identity is refused.
func (e *Engine) SetIdentity(actor string) error {
	if actor == "" {
		return ErrInvalidIdentity
	}
	e.identityLock.Lock()
	defer e.identityLock.Unlock()
	if e.self == actor {
		return nil
	}
	if e.self != "" {
		return errors.Wrapf(ErrIdentityReassigned, "identity is %q, refusing %q", e.self, actor)
	}
	e.self = actor
	e.l.Info("actor identity assigned", "actor", actor)
	return nil
}

// Identity returns the actor identity, or "" if it is not set yet.
func (e *Engine) Identity() string {
	e.identityLock.RLock()
	defer e.identityLock.RUnlock()
	return e.self
}

func (e *Engine) requireIdentity() (string, error) {
	if e.ctx.Err() != nil {
		return "", ErrEngineClosed
	}
	self := e.Identity()
	if self == "" {
		return "", ErrIdentityUnset
	}
	return self, nil
}

// SetNotificationCallback registers fn to receive notifications addressed to
// this actor. Until a callback is registered, inbound notifications are
// neither delivered nor acknowledged. Passing nil unregisters.
func (e *Engine) SetNotificationCallback(fn func(Notification)) {
	e.callbackLock.Lock()
	defer e.callbackLock.Unlock()
	e.notifyFn = fn
}

func (e *Engine) notificationCallback() func(Notification) {
	e.callbackLock.RLock()
	defer e.callbackLock.RUnlock()
	return e.notifyFn
}

// Close unsubscribes from the transport and stops the engine's goroutines.
// In-progress waits return false with ErrEngineClosed.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.l.Info("closing engine")
		e.cancel()
		for _, s := range e.subs {
			if cerr := s.Close(); cerr != nil && err == nil {
				err = errors.Wrap(cerr, "error closing subscription")
			}
		}
		e.wg.Wait()
	})
	return err
}

func (e *Engine) nowMs() int64 {
	return e.clock.Now().UnixMilli()
}

// enqueue returns the transport callback for topic. It only hands the sample
// to the engine loop; the ledger is never touched from transport goroutines.
func (e *Engine) enqueue(topic string) func([]byte) {
	return func(payload []byte) {
		e.metrics.received.WithLabelValues(topic).Inc()
		select {
		case e.inbox <- inbound{topic: topic, payload: payload}:
		case <-e.ctx.Done():
		default:
			e.metrics.dropped.WithLabelValues(dropInboxFull).Inc()
			e.l.Warn("inbox full, dropping sample", "topic", topic)
		}
	}
}

// run is the engine loop. It applies inbound samples to the ledger and
// garbage-collects entries for tokens that no wait owns.
func (e *Engine) run() {
	defer e.wg.Done()
	sweep := e.clock.NewTicker(e.retention)
	defer sweep.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case in := <-e.inbox:
			e.handle(in)
		case <-sweep.C():
			e.sweepLedger()
		}
	}
}

func (e *Engine) sweepLedger() {
	cutoff := e.clock.Now().Add(-e.retention)
	erased := e.ledger.sweep(cutoff, e.coord.owned)
	if len(erased) > 0 {
		e.l.Debug("swept idle ledger entries", "tokens", erased)
	}
	e.metrics.ledgerTokens.Set(float64(e.ledger.size()))
}

// publish encodes msg and hands it to the transport.
func (e *Engine) publish(ctx context.Context, topic string, msg interface{}) error {
	data, err := proto.Marshal(msg, e.format)
	if err != nil {
		return err
	}
	if err := e.transport.Publish(ctx, topic, data); err != nil {
		e.metrics.publishErrs.WithLabelValues(topic).Inc()
		return errors.Wrapf(err, "unable to publish on %s", topic)
	}
	e.metrics.published.WithLabelValues(topic).Inc()
	return nil
}
