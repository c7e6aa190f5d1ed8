package actionsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ngrok/actionsync/internal/proto"
	"github.com/ngrok/actionsync/transport/memory"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	fakeclock "k8s.io/utils/clock/testing"
)

type waitOutcome struct {
	ok  bool
	err error
}

// waitAll runs fn for every actor concurrently and collects the outcomes.
func waitAll(actors []string, fn func(actor string) (bool, error)) map[string]waitOutcome {
	var mu sync.Mutex
	var wg sync.WaitGroup
	out := make(map[string]waitOutcome, len(actors))
	for _, a := range actors {
		wg.Add(1)
		go func(a string) {
			defer wg.Done()
			ok, err := fn(a)
			mu.Lock()
			out[a] = waitOutcome{ok, err}
			mu.Unlock()
		}(a)
	}
	wg.Wait()
	return out
}

// TestConsensusEndToEnd is the happy path: two actors that hear each other
// agree on a graph, and neither keeps any state for it afterward.
func TestConsensusEndToEnd(t *testing.T) {
	ctx := testCtx(t)
	actors := []string{"A", "B"}
	_, engines := newTestNetwork(t, actors)

	outcomes := waitAll(actors, func(a string) (bool, error) {
		return engines[a].WaitForConsensus(ctx, "g1", othersOf(a, actors), 5*time.Second)
	})
	for a, o := range outcomes {
		require.NoError(t, o.err, a)
		require.True(t, o.ok, "%s did not reach consensus", a)
	}
	for a, e := range engines {
		if _, ok := e.ledger.snapshot(scopedToken(proto.ScopeGraph, "g1")); ok {
			t.Fatalf("%s still holds a ledger entry for g1", a)
		}
		require.False(t, e.coord.owned("graph/g1"))
	}
}

func TestConsensusFullMesh(t *testing.T) {
	ctx := testCtx(t)
	actors := []string{"A", "B", "C", "D"}
	_, engines := newTestNetwork(t, actors)

	outcomes := waitAll(actors, func(a string) (bool, error) {
		return engines[a].WaitForConsensus(ctx, "g", othersOf(a, actors), 5*time.Second)
	})
	for a, o := range outcomes {
		require.NoError(t, o.err, a)
		require.True(t, o.ok, "%s did not reach consensus", a)
	}
}

// TestConsensusThroughRelay checks that actors which never hear each other
// directly still agree when a third actor hears both.
func TestConsensusThroughRelay(t *testing.T) {
	ctx := testCtx(t)
	actors := []string{"A", "B", "C"}
	_, engines := newTestNetwork(t, actors, memory.WithLinks(
		memory.Link{A: "A", B: "B"},
		memory.Link{A: "B", B: "C"},
	))

	outcomes := waitAll(actors, func(a string) (bool, error) {
		return engines[a].WaitForConsensus(ctx, "g", othersOf(a, actors), 5*time.Second)
	})
	for a, o := range outcomes {
		require.NoError(t, o.err, a)
		require.True(t, o.ok, "%s did not reach consensus", a)
	}
}

func TestConsensusAloneIsImmediate(t *testing.T) {
	tr := newMockTransport()
	e := newTestEngine(t, tr, "A")

	ok, err := e.WaitForConsensus(testCtx(t), "g", nil, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestConsensusTimeoutBounds(t *testing.T) {
	_, engines := newTestNetwork(t, []string{"A"})

	timeout := 300 * time.Millisecond
	start := time.Now()
	ok, err := engines["A"].WaitForConsensus(testCtx(t), "g", []string{"ghost"}, timeout)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.False(t, ok)
	if elapsed < timeout {
		t.Fatalf("wait returned after %v, before its %v timeout", elapsed, timeout)
	}
	// one poll tick plus scheduling slack
	if elapsed > timeout+10*time.Millisecond+250*time.Millisecond {
		t.Fatalf("wait returned after %v, long after its %v timeout", elapsed, timeout)
	}
}

func TestConsensusTimeoutFakeClock(t *testing.T) {
	clk := fakeclock.NewFakeClock(time.Now())
	tr := newMockTransport()
	e, err := newEngine(clk, tr, fastOpts()...)
	require.NoError(t, err)
	defer e.Close()
	require.NoError(t, e.SetIdentity("A"))

	ctx := testCtx(t)
	done := make(chan waitOutcome, 1)
	go func() {
		ok, err := e.WaitForConsensus(ctx, "g", []string{"B"}, time.Second)
		done <- waitOutcome{ok, err}
	}()
	require.Eventually(t, func() bool { return e.coord.owned("graph/g") }, time.Second, time.Millisecond)

	for i := 0; i < 9; i++ {
		clk.Step(100 * time.Millisecond)
		time.Sleep(2 * time.Millisecond)
	}
	select {
	case o := <-done:
		t.Fatalf("wait finished before its timeout: %+v", o)
	case <-time.After(20 * time.Millisecond):
	}

	var o waitOutcome
	require.Eventually(t, func() bool {
		select {
		case o = <-done:
			return true
		default:
			clk.Step(10 * time.Millisecond)
			return false
		}
	}, time.Second, time.Millisecond)
	require.NoError(t, o.err)
	require.False(t, o.ok)

	// the wait gossiped while it ran
	require.NotEmpty(t, tr.handshakes())
	for _, h := range tr.handshakes() {
		require.Equal(t, proto.Bidirectional, h.Type)
		require.Equal(t, "A", h.Actor)
		require.Equal(t, proto.ScopeGraph, h.Scope)
	}
}

func TestConsensusAndHandshakeTokensAreSeparate(t *testing.T) {
	ctx := testCtx(t)
	actors := []string{"A", "B"}
	_, engines := newTestNetwork(t, actors)

	outcomes := waitAll([]string{"A/graph", "A/handshake", "B/graph", "B/handshake"}, func(job string) (bool, error) {
		actor, kind := job[:1], job[2:]
		if kind == "graph" {
			return engines[actor].WaitForConsensus(ctx, "x", othersOf(actor, actors), 5*time.Second)
		}
		return engines[actor].BidirectionalHandshake(ctx, "x", othersOf(actor, actors), 5*time.Second)
	})
	for job, o := range outcomes {
		require.NoError(t, o.err, job)
		require.True(t, o.ok, job)
	}
}

func TestDuplicateWait(t *testing.T) {
	tr := newMockTransport()
	e := newTestEngine(t, tr, "A")

	ctx, cancel := context.WithCancel(testCtx(t))
	done := make(chan waitOutcome, 1)
	go func() {
		ok, err := e.WaitForConsensus(ctx, "g", []string{"B"}, 10*time.Second)
		done <- waitOutcome{ok, err}
	}()
	require.Eventually(t, func() bool { return e.coord.owned("graph/g") }, time.Second, time.Millisecond)

	_, err := e.WaitForConsensus(testCtx(t), "g", []string{"B"}, time.Second)
	if errors.Cause(err) != ErrDuplicateWait {
		t.Fatalf("expected ErrDuplicateWait, got %v", err)
	}

	cancel()
	o := <-done
	require.False(t, o.ok)
	require.ErrorIs(t, o.err, context.Canceled)
	require.False(t, e.coord.owned("graph/g"))
}

func TestCloseDuringWait(t *testing.T) {
	tr := newMockTransport()
	e := newTestEngine(t, tr, "A")

	ctx := testCtx(t)
	done := make(chan waitOutcome, 1)
	go func() {
		ok, err := e.WaitForConsensus(ctx, "g", []string{"B"}, 10*time.Second)
		done <- waitOutcome{ok, err}
	}()
	require.Eventually(t, func() bool { return e.coord.owned("graph/g") }, time.Second, time.Millisecond)

	require.NoError(t, e.Close())
	o := <-done
	require.False(t, o.ok)
	require.Equal(t, ErrEngineClosed, o.err)

	_, err := e.WaitForConsensus(ctx, "g", nil, time.Second)
	require.Equal(t, ErrEngineClosed, err)
}

func TestIdentity(t *testing.T) {
	tr := newMockTransport()
	e := newTestEngine(t, tr, "")
	ctx := testCtx(t)

	_, err := e.WaitForConsensus(ctx, "g", nil, time.Second)
	require.Equal(t, ErrIdentityUnset, err)
	_, err = e.BidirectionalHandshake(ctx, "t", nil, time.Second)
	require.Equal(t, ErrIdentityUnset, err)
	_, err = e.UnidirectionalAck(ctx, "t")
	require.Equal(t, ErrIdentityUnset, err)
	_, err = e.SendNotification(ctx, Notification{}, []string{"B"}, time.Second)
	require.Equal(t, ErrIdentityUnset, err)

	require.Equal(t, ErrInvalidIdentity, e.SetIdentity(""))
	require.NoError(t, e.SetIdentity("A"))
	require.NoError(t, e.SetIdentity("A"))
	if err := e.SetIdentity("B"); errors.Cause(err) != ErrIdentityReassigned {
		t.Fatalf("expected ErrIdentityReassigned, got %v", err)
	}
	require.Equal(t, "A", e.Identity())
}

func TestNewRequiresTransport(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestMetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	tr := newMockTransport()
	e := newTestEngine(t, tr, "A", WithRegisterer(reg))

	ok, err := e.WaitForConsensus(testCtx(t), "g", nil, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, float64(1), testutil.ToFloat64(e.metrics.waits.WithLabelValues("consensus", "consensus")))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)

	// a second engine can't register the same collectors
	_, err = New(tr, WithRegisterer(reg))
	require.Error(t, err)
}

func TestPublishErrorsDoNotEndWait(t *testing.T) {
	tr := newMockTransport()
	tr.publishErr = errors.New("link down")
	e := newTestEngine(t, tr, "A")

	ok, err := e.WaitForConsensus(testCtx(t), "g", []string{"B"}, 50*time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)
	require.NotZero(t, testutil.ToFloat64(e.metrics.publishErrs.WithLabelValues(proto.TopicHandshake)))
}

func TestSweepForgetsOrphans(t *testing.T) {
	clk := fakeclock.NewFakeClock(time.Now())
	tr := newMockTransport()
	e, err := newEngine(clk, tr, append(fastOpts(), WithLedgerRetention(time.Minute))...)
	require.NoError(t, err)
	defer e.Close()
	require.NoError(t, e.SetIdentity("A"))

	tr.injectMsg(proto.TopicHandshake, &proto.Handshake{
		Type: proto.Bidirectional, Actor: "B", Token: "stray", Timestamp: 1,
	})
	require.Eventually(t, func() bool { return e.ledger.size() == 1 }, time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		clk.Step(time.Minute)
		return e.ledger.size() == 0
	}, time.Second, 5*time.Millisecond)
}
