package actionsync

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "actionsync"

// Reasons an inbound sample is dropped before reaching protocol logic.
const (
	dropMalformed    = "malformed"
	dropInboxFull    = "inbox_full"
	dropQueueFull    = "delivery_queue_full"
	dropNoIdentity   = "no_identity"
	dropSelf         = "self"
	dropNotAddressed = "not_addressed"
	dropNoCallback   = "no_callback"
	dropDuplicate    = "duplicate"
)

type metrics struct {
	waits        *prometheus.CounterVec
	waitDuration *prometheus.HistogramVec
	published    *prometheus.CounterVec
	publishErrs  *prometheus.CounterVec
	received     *prometheus.CounterVec
	dropped      *prometheus.CounterVec
	delivered    prometheus.Counter
	ledgerTokens prometheus.Gauge
}

func newMetrics() *metrics {
	return &metrics{
		waits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "waits_total",
			Help:      "Completed waits by kind and outcome.",
		}, []string{"kind", "outcome"}),
		waitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "wait_duration_seconds",
			Help:      "Time from the start of a wait until it reached a terminal state.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_published_total",
			Help:      "Messages handed to the transport, by topic.",
		}, []string{"topic"}),
		publishErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "publish_errors_total",
			Help:      "Publishes the transport rejected, by topic.",
		}, []string{"topic"}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_received_total",
			Help:      "Samples delivered by the transport, by topic.",
		}, []string{"topic"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_dropped_total",
			Help:      "Inbound samples dropped before protocol logic, by reason.",
		}, []string{"reason"}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "notifications_delivered_total",
			Help:      "Notification callback invocations.",
		}),
		ledgerTokens: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "ledger_tokens",
			Help:      "Tokens currently held in the handshake ledger.",
		}),
	}
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.waits, m.waitDuration, m.published, m.publishErrs,
		m.received, m.dropped, m.delivered, m.ledgerTokens,
	}
}

func (m *metrics) register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return errors.Wrap(err, "unable to register metrics")
		}
	}
	return nil
}
