package proto

import "github.com/pkg/errors"

// ErrMalformed is returned for samples that can't be decoded or that are
// missing required fields. Such samples are dropped by receivers.
var ErrMalformed = errors.New("malformed sample")

// ActorStamp is the sender's last known freshness timestamp of another actor.
type ActorStamp struct {
	Actor     string `json:"actor" cbor:"actor"`
	Timestamp int64  `json:"timestamp_ms" cbor:"timestamp_ms"`
}

// Observation is a relayed third-party record: Observer last saw Observed at
// Timestamp.
// Added in v1
type Observation struct {
	Observer  string `json:"observer" cbor:"observer"`
	Observed  string `json:"observed" cbor:"observed"`
	Timestamp int64  `json:"timestamp_ms" cbor:"timestamp_ms"`
}

// Handshake is published on TopicHandshake.
type Handshake struct {
	Type      HandshakeType `json:"type" cbor:"type"`
	Actor     string        `json:"actor" cbor:"actor"`
	Token     string        `json:"token" cbor:"token"`
	Scope     Scope         `json:"scope,omitempty" cbor:"scope,omitempty"`
	Timestamp int64         `json:"timestamp_ms" cbor:"timestamp_ms"`

	OtherActors []ActorStamp  `json:"other_actors,omitempty" cbor:"other_actors,omitempty"`
	Mesh        []Observation `json:"mesh,omitempty" cbor:"mesh,omitempty"`
}

// Validate checks the fields every receiver relies on.
func (h *Handshake) Validate() error {
	if h.Actor == "" {
		return errors.Wrap(ErrMalformed, "handshake without actor")
	}
	if h.Token == "" {
		return errors.Wrap(ErrMalformed, "handshake without token")
	}
	switch h.Type {
	case Unidirectional, Bidirectional:
	default:
		return errors.Wrapf(ErrMalformed, "unknown handshake type %q", h.Type)
	}
	switch h.Scope {
	case "", ScopeGraph, ScopeHandshake:
	default:
		return errors.Wrapf(ErrMalformed, "unknown handshake scope %q", h.Scope)
	}
	return nil
}

// Waitable identifies the action a notification is about.
type Waitable struct {
	Actor  string `json:"actor_name" cbor:"actor_name"`
	Action string `json:"action_name" cbor:"action_name"`
	Graph  string `json:"graph_name" cbor:"graph_name"`
}

// Notification is published on TopicNotification.
type Notification struct {
	ID         string   `json:"id" cbor:"id"`
	Actor      string   `json:"actor_name" cbor:"actor_name"`
	Result     string   `json:"result" cbor:"result"`
	Parameters string   `json:"parameters" cbor:"parameters"`
	Waitable   Waitable `json:"waitable" cbor:"waitable"`

	// Recipients lists the addressed actors. Empty means everyone.
	// Added in v1
	Recipients []string `json:"recipients,omitempty" cbor:"recipients,omitempty"`
}

// Validate checks the fields every receiver relies on.
func (n *Notification) Validate() error {
	if n.ID == "" {
		return errors.Wrap(ErrMalformed, "notification without id")
	}
	if n.Actor == "" {
		return errors.Wrap(ErrMalformed, "notification without actor")
	}
	return nil
}

// Addressed reports whether actor should process the notification.
func (n *Notification) Addressed(actor string) bool {
	if len(n.Recipients) == 0 {
		return true
	}
	for _, r := range n.Recipients {
		if r == actor {
			return true
		}
	}
	return false
}

// Ready is the legacy single-hop liveness message, superseded by Handshake.
type Ready struct {
	Actor     string `json:"actor_name" cbor:"actor_name"`
	Graph     string `json:"graph_name" cbor:"graph_name"`
	Timestamp int64  `json:"timestamp" cbor:"timestamp"`
}

// Validate checks the fields every receiver relies on.
func (r *Ready) Validate() error {
	if r.Actor == "" || r.Graph == "" {
		return errors.Wrap(ErrMalformed, "ready without actor or graph")
	}
	return nil
}
