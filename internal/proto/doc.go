// Package proto holds the messages exchanged between actionsync engines on
// the pub/sub transport, and the functions that turn them into bytes and back.
//
// Three topics are used:
//
// TopicHandshake carries liveness gossip (BIDIRECTIONAL) and explicit
// acknowledgments (UNIDIRECTIONAL). A gossip message lists what the sender
// currently knows about the freshness of other actors, which is how mesh
// knowledge spreads between actors that never hear each other directly.
//
// TopicNotification carries one-shot notifications. A sender re-publishes the
// same notification until every addressed recipient has acknowledged it on
// TopicHandshake, using the notification id as the handshake token.
//
// TopicReady carries the legacy single-hop Ready message. Engines only read
// it when configured to.
//
// Two encodings exist. The default is a JSON document whose leading
// whitespace encodes the protocol version (see encode_version.go), so that
// readers which predate versioning still parse it as plain JSON. CBOR is
// available for smaller payloads. Unmarshal detects which one it was given,
// so a group may mix both.
package proto
