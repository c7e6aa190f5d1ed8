package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ngrok/actionsync"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "actionsync.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("unable to write config: %v", err)
	}
	return path
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
redis:
  addr: redis.internal:6380
log_level: debug
engine:
  poll_interval: 250ms
  notification_dedup: false
  wire_format: cbor
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	require.Equal(t, Default().Redis.Prefix, cfg.Redis.Prefix)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 250*time.Millisecond, cfg.Engine.PollInterval)
	require.Equal(t, actionsync.DefaultBroadcastInterval, cfg.Engine.BroadcastInterval)
	require.False(t, cfg.Engine.NotificationDedup)
	require.Equal(t, "cbor", cfg.Engine.WireFormat)
	require.Len(t, cfg.EngineOptions(), 9)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "redis: [not, a, map]"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "log_level: loud"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "engine:\n  wire_format: xml"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "redis:\n  addr: \"\""))
	require.Error(t, err)
}
