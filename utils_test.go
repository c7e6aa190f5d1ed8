package actionsync

import (
	"context"
	"testing"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/ngrok/actionsync/transport/memory"
	"github.com/stretchr/testify/require"
)

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

func testLogger() log15.Logger {
	l := log15.New()
	l.SetHandler(log15.LvlFilterHandler(log15.LvlWarn, log15.StderrHandler))
	return l
}

// fastOpts shortens every protocol period so tests finish quickly.
func fastOpts() []Option {
	return []Option{
		WithLogger(testLogger()),
		WithBroadcastInterval(10 * time.Millisecond),
		WithPollInterval(10 * time.Millisecond),
		WithAckPollInterval(5 * time.Millisecond),
	}
}

func newTestEngine(t *testing.T, tr Transport, actor string, opts ...Option) *Engine {
	e, err := New(tr, append(fastOpts(), opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	if actor != "" {
		require.NoError(t, e.SetIdentity(actor))
	}
	return e
}

// newTestNetwork returns one engine per actor, all attached to a fresh
// in-memory network.
func newTestNetwork(t *testing.T, actors []string, netOpts ...memory.Option) (*memory.Network, map[string]*Engine) {
	n := memory.NewNetwork(netOpts...)
	t.Cleanup(func() { n.Close() })
	engines := make(map[string]*Engine, len(actors))
	for _, a := range actors {
		engines[a] = newTestEngine(t, n.Endpoint(a), a)
	}
	return n, engines
}

func othersOf(self string, actors []string) []string {
	var out []string
	for _, a := range actors {
		if a != self {
			out = append(out, a)
		}
	}
	return out
}
