package actionsync

import (
	"context"
	"time"
)

// poll checks the ledger on every poll tick until the wait reaches a terminal
// state. Elapsed time is compared against the timeout on each tick, so a
// timed out wait returns within one poll interval of its deadline.
func (s *waitSession) poll(ctx context.Context) (waitResult, error) {
	ticker := s.e.clock.NewTicker(s.params.pollInterval)
	defer ticker.Stop()

	var last map[pairKey]int64
	finish := func(state waitState, now time.Time) waitResult {
		s.mustTransitionTo(state)
		return waitResult{state: state, stamps: last, elapsed: now.Sub(s.start)}
	}

	for {
		select {
		case <-ctx.Done():
			return finish(waitStateCanceled, s.e.clock.Now()), ctx.Err()
		case <-ticker.C():
		}

		now := s.e.clock.Now()
		if now.Sub(s.start) >= s.params.timeout {
			return finish(waitStateTimeout, now), nil
		}
		stamps, ok := s.e.ledger.snapshot(s.key)
		if !ok {
			// nothing seen for the token yet
			continue
		}
		last = stamps
		if complete(stamps, s.params.required, now.UnixMilli(), s.params.timeout) {
			return finish(waitStateConsensus, now), nil
		}
	}
}
