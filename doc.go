// Package actionsync lets a set of named actors agree that all of them have
// reached the same point of a task graph, and reliably notify each other,
// over a best-effort publish/subscribe transport.
//
// Every actor runs an Engine. While a wait is in progress the engine gossips
// what it knows about the freshness of every other actor, and records what it
// hears in a ledger keyed by observer and observed actor. A wait for the group
// {self, o1..on} succeeds once the ledger holds a fresh stamp for self_o and
// o_self for each other actor, and o_p for every ordered pair of distinct
// others: this actor knows that everyone knows that everyone is alive.
// Knowledge is relayed, so actors that never hear each other directly still
// agree as long as the group is connected.
//
// Stamps older than the wait's timeout count as missing. A wait that times
// out returns false with a nil error and may simply be retried.
//
// Notifications are one-shot messages re-published until each recipient has
// acknowledged them. Receivers acknowledge every copy and, by default, hand
// each notification id to the callback only once.
//
// The engine does not care how messages travel. The transport/memory package
// provides an in-process network for tests and simulations, and
// transport/redis carries the protocol over Redis pub/sub.
package actionsync
