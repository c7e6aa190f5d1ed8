package actionsync

import (
	"github.com/ngrok/actionsync/internal/proto"
)

// handle decodes one inbound sample and applies it. It runs on the engine
// loop only.
func (e *Engine) handle(in inbound) {
	switch in.topic {
	case proto.TopicHandshake:
		var msg proto.Handshake
		if e.decode(in, &msg) {
			e.onHandshake(&msg)
		}
	case proto.TopicNotification:
		var msg proto.Notification
		if e.decode(in, &msg) {
			e.onNotification(&msg)
		}
	case proto.TopicReady:
		var msg proto.Ready
		if e.decode(in, &msg) {
			e.onReady(&msg)
		}
	default:
		e.l.Warn("sample on unexpected topic", "topic", in.topic)
	}
}

func (e *Engine) decode(in inbound, obj interface{}) bool {
	if _, err := proto.Unmarshal(in.payload, obj); err != nil {
		e.metrics.dropped.WithLabelValues(dropMalformed).Inc()
		e.l.Warn("dropping malformed sample", "topic", in.topic, "err", err)
		return false
	}
	return true
}

// accept returns our identity if a message from sender should be processed.
func (e *Engine) accept(sender string) (string, bool) {
	self := e.Identity()
	if self == "" {
		e.metrics.dropped.WithLabelValues(dropNoIdentity).Inc()
		return "", false
	}
	if sender == self {
		e.metrics.dropped.WithLabelValues(dropSelf).Inc()
		return "", false
	}
	return self, true
}

// onHandshake records that we heard from msg.Actor, what msg.Actor knows of
// everyone else, and what msg.Actor relayed about third parties.
func (e *Engine) onHandshake(msg *proto.Handshake) {
	self, ok := e.accept(msg.Actor)
	if !ok {
		return
	}
	key := scopedToken(msg.Scope, msg.Token)

	e.ledger.upsert(key, pairKey{self, msg.Actor}, msg.Timestamp)
	for _, o := range msg.OtherActors {
		if o.Actor == "" || o.Actor == msg.Actor {
			continue
		}
		// msg.Actor is authoritative for its own view of o
		e.ledger.upsert(key, pairKey{msg.Actor, o.Actor}, o.Timestamp)
		if o.Actor != self {
			e.ledger.merge(key, pairKey{self, o.Actor}, o.Timestamp)
		}
	}
	for _, ob := range msg.Mesh {
		if ob.Observer == self || ob.Observer == msg.Actor || ob.Observer == ob.Observed {
			continue
		}
		e.ledger.merge(key, pairKey{ob.Observer, ob.Observed}, ob.Timestamp)
	}

	if msg.Type == proto.Unidirectional {
		e.l.Debug("received acknowledgment", "from", msg.Actor, "token", key)
	} else {
		e.l.Debug("received gossip", "from", msg.Actor, "token", key,
			"relayed", len(msg.OtherActors), "mesh", len(msg.Mesh))
	}
}

// onReady handles the legacy single-hop liveness message.
func (e *Engine) onReady(msg *proto.Ready) {
	self, ok := e.accept(msg.Actor)
	if !ok {
		return
	}
	e.ledger.upsert(scopedToken(proto.ScopeGraph, msg.Graph), pairKey{self, msg.Actor}, msg.Timestamp)
	e.l.Debug("received ready", "from", msg.Actor, "graph", msg.Graph)
}

// onNotification queues a notification addressed to us for the delivery
// goroutine, so that a slow callback never holds up ledger updates.
func (e *Engine) onNotification(msg *proto.Notification) {
	self, ok := e.accept(msg.Actor)
	if !ok {
		return
	}
	if !msg.Addressed(self) {
		e.metrics.dropped.WithLabelValues(dropNotAddressed).Inc()
		return
	}
	if e.notificationCallback() == nil {
		e.metrics.dropped.WithLabelValues(dropNoCallback).Inc()
		e.l.Debug("no notification callback registered, ignoring", "id", msg.ID)
		return
	}
	select {
	case e.deliveries <- msg:
	default:
		e.metrics.dropped.WithLabelValues(dropQueueFull).Inc()
		e.l.Warn("delivery queue full, dropping notification", "id", msg.ID)
	}
}
