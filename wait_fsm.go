package actionsync

import "fmt"

// waitState represents a small finite state machine. It has the following transitions:
// ∅        → Waiting
// Waiting  → Consensus
// Waiting  → Timeout
// Waiting  → Canceled
//
// All states other than Waiting are terminal.
type waitState string

const (
	// Waiting is the initial state: the poller has not yet seen every
	// required key fresh.
	waitStateWaiting waitState = "waiting"
	// Consensus means every required key was present and fresh on one tick.
	waitStateConsensus waitState = "consensus"
	// Timeout means the caller's timeout elapsed first.
	waitStateTimeout waitState = "timeout"
	// Canceled means the caller's context ended first.
	waitStateCanceled waitState = "canceled"
)

var validWaitTransitions = map[waitState][]waitState{
	waitStateWaiting: {
		waitStateConsensus,
		waitStateTimeout,
		waitStateCanceled,
	},
}

func (s waitState) terminal() bool {
	return s != waitStateWaiting
}

func (s *waitState) canTransitionTo(state waitState) error {
	for _, target := range validWaitTransitions[*s] {
		if target == state {
			return nil
		}
	}
	return fmt.Errorf("unable to transition from %s to %s", *s, state)
}

func (s *waitState) transitionTo(state waitState) error {
	if err := s.canTransitionTo(state); err != nil {
		return err
	}
	*s = state
	return nil
}

// waitKind names the public operation a wait serves. It labels logs and
// metrics.
type waitKind string

const (
	waitKindConsensus    waitKind = "consensus"
	waitKindHandshake    waitKind = "handshake"
	waitKindNotification waitKind = "notification"
)
