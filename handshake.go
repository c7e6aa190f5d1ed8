package actionsync

import (
	"context"
	"time"

	"github.com/ngrok/actionsync/internal/proto"
)

// WaitForConsensus blocks until every actor in others, and this actor, is
// known by all of the group to have reached graph, or until timeout elapses.
// Knowledge has to be fresh: a stamp older than timeout counts as missing.
//
// It returns false with a nil error on timeout. An error is returned if the
// wait could not start (ErrIdentityUnset, ErrDuplicateWait) or if ctx ended
// first.
func (e *Engine) WaitForConsensus(ctx context.Context, graph string, others []string, timeout time.Duration) (bool, error) {
	return e.handshakeWait(ctx, waitKindConsensus, proto.ScopeGraph, graph, others, timeout)
}

// BidirectionalHandshake is WaitForConsensus on an ad-hoc handshake token
// rather than a graph name. The two token spaces never collide.
func (e *Engine) BidirectionalHandshake(ctx context.Context, token string, others []string, timeout time.Duration) (bool, error) {
	return e.handshakeWait(ctx, waitKindHandshake, proto.ScopeHandshake, token, others, timeout)
}

func (e *Engine) handshakeWait(ctx context.Context, kind waitKind, scope proto.Scope, token string, others []string, timeout time.Duration) (bool, error) {
	self, err := e.requireIdentity()
	if err != nil {
		return false, err
	}
	res, err := e.runWait(ctx, waitParams{
		kind:         kind,
		scope:        scope,
		token:        token,
		required:     requiredKeys(self, others),
		timeout:      timeout,
		pollInterval: e.pollInterval,
		publish:      publishGossip,
		flush:        true,
	})
	return res.succeeded(), err
}

// UnidirectionalAck publishes a single acknowledgment of a handshake token.
// It does not wait for anything.
func (e *Engine) UnidirectionalAck(ctx context.Context, token string) (bool, error) {
	self, err := e.requireIdentity()
	if err != nil {
		return false, err
	}
	if err := e.ack(ctx, self, token); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) ack(ctx context.Context, self, token string) error {
	return e.publish(ctx, proto.TopicHandshake, &proto.Handshake{
		Type:      proto.Unidirectional,
		Actor:     self,
		Token:     token,
		Scope:     proto.ScopeHandshake,
		Timestamp: e.nowMs(),
	})
}
