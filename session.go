package actionsync

import (
	"context"
	"sync"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/ngrok/actionsync/internal/proto"
	"golang.org/x/sync/errgroup"
)

// waitParams describes one wait: which token it owns, what has to be fresh in
// the ledger for it to succeed, and what it publishes on every broadcast tick.
type waitParams struct {
	kind         waitKind
	scope        proto.Scope
	token        string
	required     keySet
	timeout      time.Duration
	pollInterval time.Duration

	// publish sends one broadcast tick's message.
	publish func(ctx context.Context, s *waitSession) error
	// flush requests one final publish after consensus is reached, so that
	// peers still waiting learn what this actor knew when it stopped.
	flush bool
}

// waitResult is what a finished wait reports back to the operation that
// started it.
type waitResult struct {
	state   waitState
	stamps  map[pairKey]int64
	elapsed time.Duration
}

func (r waitResult) succeeded() bool {
	return r.state == waitStateConsensus
}

// waitSession owns a token for the duration of one wait. It runs the
// broadcaster on its own goroutine and the poller on the caller's, and on
// close joins the broadcaster before erasing the token's ledger entry.
type waitSession struct {
	e      *Engine
	params waitParams
	self   string
	key    string
	start  time.Time
	l      log15.Logger

	stateLock sync.Mutex
	state     waitState

	group     *errgroup.Group
	stop      context.CancelFunc
	closeOnce sync.Once
}

func scopedToken(scope proto.Scope, token string) string {
	if scope == "" {
		scope = proto.ScopeHandshake
	}
	return string(scope) + "/" + token
}

// runWait claims the token of params, runs the session to a terminal state and
// releases everything it held, whichever way it ends.
func (e *Engine) runWait(ctx context.Context, params waitParams) (waitResult, error) {
	self, err := e.requireIdentity()
	if err != nil {
		return waitResult{}, err
	}
	s, err := e.openSession(self, params)
	if err != nil {
		return waitResult{}, err
	}
	defer s.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopOnClose := context.AfterFunc(e.ctx, cancel)
	defer stopOnClose()

	s.startBroadcaster(ctx)
	res, err := s.poll(ctx)
	if err != nil && e.ctx.Err() != nil {
		err = ErrEngineClosed
	}

	e.metrics.waits.WithLabelValues(string(params.kind), string(res.state)).Inc()
	e.metrics.waitDuration.WithLabelValues(string(params.kind)).Observe(res.elapsed.Seconds())
	switch res.state {
	case waitStateConsensus:
		s.l.Info("wait complete", "elapsed", res.elapsed)
	case waitStateTimeout:
		missing := missingKeys(res.stamps, params.required, e.nowMs(), params.timeout)
		s.l.Info("wait timed out", "timeout", params.timeout, "missing", len(missing))
		s.l.Debug("keys missing at timeout", "keys", missing)
	case waitStateCanceled:
		s.l.Info("wait canceled", "elapsed", res.elapsed, "err", err)
	}
	return res, err
}

func (e *Engine) openSession(self string, params waitParams) (*waitSession, error) {
	key := scopedToken(params.scope, params.token)
	if err := e.coord.claim(key, params.kind); err != nil {
		return nil, err
	}
	s := &waitSession{
		e:      e,
		params: params,
		self:   self,
		key:    key,
		start:  e.clock.Now(),
		state:  waitStateWaiting,
		l:      e.l.New("actor", self, "token", key, "kind", params.kind),
	}
	e.ledger.seed(key, self, s.start.UnixMilli())
	s.l.Info("starting wait", "timeout", params.timeout, "required", len(params.required))
	return s, nil
}

func (s *waitSession) startBroadcaster(ctx context.Context) {
	ctx, s.stop = context.WithCancel(ctx)
	s.group, ctx = errgroup.WithContext(ctx)
	s.group.Go(func() error {
		s.broadcast(ctx)
		return nil
	})
}

func (s *waitSession) currentState() waitState {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()
	return s.state
}

func (s *waitSession) mustTransitionTo(state waitState) {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()
	if err := s.state.transitionTo(state); err != nil {
		panic("BUG: " + err.Error())
	}
}

// close stops and joins the broadcaster, then erases the token's ledger entry
// and gives the token up. It is safe to call more than once.
func (s *waitSession) close() {
	s.closeOnce.Do(func() {
		if s.stop != nil {
			s.stop()
			_ = s.group.Wait()
		}
		s.e.ledger.erase(s.key)
		s.e.coord.release(s.key)
		s.e.metrics.ledgerTokens.Set(float64(s.e.ledger.size()))
	})
}
