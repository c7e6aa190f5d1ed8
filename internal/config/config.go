// Package config loads the YAML configuration of the actionsync command.
package config

import (
	"os"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/ngrok/actionsync"
	"github.com/ngrok/actionsync/internal/proto"
	"github.com/ngrok/actionsync/transport/redis"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration. Fields left out of the file keep their
// Default values.
type Config struct {
	Redis       Redis  `yaml:"redis"`
	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`
	Engine      Engine `yaml:"engine"`
}

// Redis configures the transport.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Engine mirrors the engine options.
type Engine struct {
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	AckPollInterval   time.Duration `yaml:"ack_poll_interval"`
	LedgerRetention   time.Duration `yaml:"ledger_retention"`
	InboxSize         int           `yaml:"inbox_size"`
	NotificationDedup bool          `yaml:"notification_dedup"`
	DedupCacheSize    int           `yaml:"dedup_cache_size"`
	WireFormat        string        `yaml:"wire_format"`
	LegacyReady       bool          `yaml:"legacy_ready"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Redis: Redis{
			Addr:   "localhost:6379",
			Prefix: redis.DefaultPrefix,
		},
		LogLevel: "info",
		Engine: Engine{
			BroadcastInterval: actionsync.DefaultBroadcastInterval,
			PollInterval:      actionsync.DefaultPollInterval,
			AckPollInterval:   actionsync.DefaultAckPollInterval,
			LedgerRetention:   actionsync.DefaultLedgerRetention,
			InboxSize:         actionsync.DefaultInboxSize,
			NotificationDedup: true,
			DedupCacheSize:    actionsync.DefaultDedupCacheSize,
			WireFormat:        proto.FormatJSON.String(),
		},
	}
}

// Load reads the file at path over Default. An empty path returns Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "unable to read config")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "unable to parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

// Validate checks the fields that are parsed further.
func (c Config) Validate() error {
	if _, err := log15.LvlFromString(c.LogLevel); err != nil {
		return errors.Wrapf(err, "log_level %q", c.LogLevel)
	}
	if _, err := proto.ParseFormat(c.Engine.WireFormat); err != nil {
		return err
	}
	if c.Redis.Addr == "" {
		return errors.New("redis.addr must be set")
	}
	return nil
}

// EngineOptions translates the engine section into engine options. The
// config must be valid.
func (c Config) EngineOptions() []actionsync.Option {
	format, _ := proto.ParseFormat(c.Engine.WireFormat)
	return []actionsync.Option{
		actionsync.WithBroadcastInterval(c.Engine.BroadcastInterval),
		actionsync.WithPollInterval(c.Engine.PollInterval),
		actionsync.WithAckPollInterval(c.Engine.AckPollInterval),
		actionsync.WithLedgerRetention(c.Engine.LedgerRetention),
		actionsync.WithInboxSize(c.Engine.InboxSize),
		actionsync.WithNotificationDedup(c.Engine.NotificationDedup),
		actionsync.WithDedupCacheSize(c.Engine.DedupCacheSize),
		actionsync.WithWireFormat(format),
		actionsync.WithLegacyReady(c.Engine.LegacyReady),
	}
}
