package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "actionsync", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"consensus", "handshake", "listen", "ack"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"config", "redis", "prefix", "log-level", "metrics-addr"} {
		require.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
	assert.Equal(t, "c", cmd.PersistentFlags().Lookup("config").Shorthand)

	hs, _, err := cmd.Find([]string{"handshake"})
	require.NoError(t, err)
	linger := hs.Flags().Lookup("linger")
	require.NotNil(t, linger)
	assert.Equal(t, "1s", linger.DefValue)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(ErrFailed))
	assert.True(t, Reported(ErrFailed))
	assert.False(t, Reported(assert.AnError))
}

func TestParseTimeout(t *testing.T) {
	d, err := parseTimeout("1500")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), d.Milliseconds())

	_, err = parseTimeout("soon")
	require.Error(t, err)
	_, err = parseTimeout("-1")
	require.Error(t, err)
}
