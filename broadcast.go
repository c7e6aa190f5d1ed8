package actionsync

import (
	"context"
	"sort"

	"github.com/ngrok/actionsync/internal/proto"
)

// broadcast publishes once immediately and then on every broadcast tick until
// ctx ends.
func (s *waitSession) broadcast(ctx context.Context) {
	ticker := s.e.clock.NewTicker(s.e.broadcastInterval)
	defer ticker.Stop()

	s.publishOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			if s.params.flush && s.currentState() == waitStateConsensus && s.e.ctx.Err() == nil {
				flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.e.broadcastInterval)
				s.publishOnce(flushCtx)
				cancel()
			}
			return
		case <-ticker.C():
			s.publishOnce(ctx)
		}
	}
}

func (s *waitSession) publishOnce(ctx context.Context) {
	if err := s.params.publish(ctx, s); err != nil && ctx.Err() == nil {
		s.l.Warn("broadcast failed", "err", err)
	}
}

// publishGossip is the broadcast tick of consensus and handshake waits.
func publishGossip(ctx context.Context, s *waitSession) error {
	return s.e.publish(ctx, proto.TopicHandshake, s.e.gossip(s.self, s.params.scope, s.params.token, s.key))
}

// gossip builds the liveness message self publishes for key. OtherActors
// holds every self_x stamp: what self knows of each actor's freshness. Mesh
// holds every o_x stamp self has learned from others, which carries
// knowledge across actors that never hear each other directly.
func (e *Engine) gossip(self string, scope proto.Scope, token, key string) *proto.Handshake {
	msg := &proto.Handshake{
		Type:  proto.Bidirectional,
		Actor: self,
		Token: token,
		Scope: scope,
	}
	stamps, _ := e.ledger.snapshot(key)
	for k, ts := range stamps {
		switch {
		case k.observer == k.observed:
		case k.observer == self:
			msg.OtherActors = append(msg.OtherActors, proto.ActorStamp{Actor: k.observed, Timestamp: ts})
		default:
			msg.Mesh = append(msg.Mesh, proto.Observation{Observer: k.observer, Observed: k.observed, Timestamp: ts})
		}
	}
	sort.Slice(msg.OtherActors, func(i, j int) bool {
		return msg.OtherActors[i].Actor < msg.OtherActors[j].Actor
	})
	sort.Slice(msg.Mesh, func(i, j int) bool {
		a, b := msg.Mesh[i], msg.Mesh[j]
		if a.Observer != b.Observer {
			return a.Observer < b.Observer
		}
		return a.Observed < b.Observed
	})
	msg.Timestamp = e.nowMs()
	return msg
}
