package proto

const (
	// Version is the latest version of the wire protocol. Messages without a
	// version prefix are implicitly version 0, which had no Mesh or Scope
	// fields.
	Version = 1

	// TopicHandshake is the topic for Handshake messages.
	TopicHandshake = "ActionSyncData_Handshake"
	// TopicNotification is the topic for Notification messages.
	TopicNotification = "ActionSyncData_Notification"
	// TopicReady is the topic for legacy Ready messages.
	TopicReady = "ActionSyncData_Ready"
)

// HandshakeType distinguishes liveness gossip from explicit acknowledgments.
type HandshakeType string

const (
	// Unidirectional is a one-shot acknowledgment of a handshake token.
	Unidirectional HandshakeType = "UNIDIRECTIONAL"
	// Bidirectional is periodic liveness gossip for a group.
	Bidirectional HandshakeType = "BIDIRECTIONAL"
)

// Scope namespaces handshake tokens so that a graph name can never collide
// with an ad-hoc handshake id.
type Scope string

const (
	// ScopeGraph marks group rendezvous tokens, one per workflow graph.
	ScopeGraph Scope = "graph"
	// ScopeHandshake marks ad-hoc point-to-point and acknowledgment tokens.
	ScopeHandshake Scope = "handshake"
)
