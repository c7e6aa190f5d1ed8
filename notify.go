package actionsync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ngrok/actionsync/internal/proto"
)

// Waitable identifies the action a notification is about.
type Waitable struct {
	Actor  string
	Action string
	Graph  string
}

// Notification is a one-shot message reliably broadcast to a set of actors.
type Notification struct {
	// ID is assigned by SendNotification.
	ID string
	// Sender is the actor that sent the notification. It is filled in on
	// receipt.
	Sender     string
	Waitable   Waitable
	Result     string
	Parameters string
}

// notificationID builds an id from the sending actor, graph, action and send
// time. Two sends of the same action by the same actor within one
// millisecond would share an id.
func notificationID(actor, graph, action string, ms int64) string {
	return fmt.Sprintf("%s__%s__%s__%d", actor, graph, action, ms)
}

// SendNotification broadcasts n to recipients until each of them has
// acknowledged it, or until timeout elapses. It reports whether every
// recipient acknowledged. n.ID is replaced with a freshly generated id.
func (e *Engine) SendNotification(ctx context.Context, n Notification, recipients []string, timeout time.Duration) (bool, error) {
	self, err := e.requireIdentity()
	if err != nil {
		return false, err
	}
	n.ID = notificationID(self, n.Waitable.Graph, n.Waitable.Action, e.nowMs())
	peers := distinctPeers(self, recipients)
	if len(peers) == 0 {
		// an empty recipient list on the wire would address everyone
		e.l.Info("notification has no recipients, nothing to send", "id", n.ID)
		return true, nil
	}
	msg := &proto.Notification{
		ID:         n.ID,
		Actor:      self,
		Result:     n.Result,
		Parameters: n.Parameters,
		Waitable: proto.Waitable{
			Actor:  n.Waitable.Actor,
			Action: n.Waitable.Action,
			Graph:  n.Waitable.Graph,
		},
		Recipients: peers,
	}
	required := ackKeys(self, peers)
	res, err := e.runWait(ctx, waitParams{
		kind:         waitKindNotification,
		scope:        proto.ScopeHandshake,
		token:        n.ID,
		required:     required,
		timeout:      timeout,
		pollInterval: e.ackPollInterval,
		publish: func(ctx context.Context, s *waitSession) error {
			return e.publish(ctx, proto.TopicNotification, msg)
		},
	})

	acked, missing := ackedRecipients(res.stamps, self, peers)
	e.l.Info("notification send finished", "id", n.ID, "success", res.succeeded(),
		"acked", acked, "missing", missing)
	return res.succeeded(), err
}

func ackedRecipients(stamps map[pairKey]int64, self string, recipients []string) (acked, missing []string) {
	for _, r := range recipients {
		if _, ok := stamps[pairKey{self, r}]; ok {
			acked = append(acked, r)
		} else {
			missing = append(missing, r)
		}
	}
	sort.Strings(acked)
	sort.Strings(missing)
	return acked, missing
}

// deliver runs notification callbacks, one at a time, off the engine loop.
func (e *Engine) deliver() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case msg := <-e.deliveries:
			e.processNotification(msg)
		}
	}
}

// processNotification acknowledges every copy it sees, so that a lost ack is
// repaired by the sender's next re-publish, but with dedup on only hands the
// first copy of an id to the callback.
func (e *Engine) processNotification(msg *proto.Notification) {
	self := e.Identity()
	ctx, cancel := context.WithTimeout(e.ctx, ackPublishTimeout)
	err := e.ack(ctx, self, msg.ID)
	cancel()
	if err != nil {
		e.l.Warn("unable to acknowledge notification", "id", msg.ID, "err", err)
	}

	if e.processed != nil {
		if seen, _ := e.processed.ContainsOrAdd(msg.ID, e.nowMs()); seen {
			e.metrics.dropped.WithLabelValues(dropDuplicate).Inc()
			return
		}
	}

	fn := e.notificationCallback()
	if fn == nil {
		return
	}
	e.l.Info("delivering notification", "id", msg.ID, "from", msg.Actor)
	e.metrics.delivered.Inc()
	fn(Notification{
		ID:         msg.ID,
		Sender:     msg.Actor,
		Result:     msg.Result,
		Parameters: msg.Parameters,
		Waitable: Waitable{
			Actor:  msg.Waitable.Actor,
			Action: msg.Waitable.Action,
			Graph:  msg.Waitable.Graph,
		},
	})
}
