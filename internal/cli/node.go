package cli

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/inconshreveable/log15"
	"github.com/ngrok/actionsync"
	"github.com/ngrok/actionsync/internal/config"
	"github.com/ngrok/actionsync/transport/redis"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// node is everything a command needs to take part in the protocol as one
// actor.
type node struct {
	engine *actionsync.Engine
	client *backend.Client
	server *http.Server
	l      log15.Logger

	// metricsAddr is the address the metrics server listens on, once started.
	metricsAddr string
}

// load merges the config file with the flags that were set.
func (o *RootOptions) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("redis") {
		cfg.Redis.Addr = o.RedisAddr
	}
	if flags.Changed("prefix") {
		cfg.Redis.Prefix = o.Prefix
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.LogLevel
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = o.MetricsAddr
	}
	return cfg, cfg.Validate()
}

// start connects to redis and brings an engine up as actor.
func (o *RootOptions) start(cmd *cobra.Command, actor string) (*node, error) {
	cfg, err := o.load(cmd)
	if err != nil {
		return nil, err
	}
	lvl, _ := log15.LvlFromString(cfg.LogLevel)
	l := log15.New("actor", actor)
	l.SetHandler(log15.LvlFilterHandler(lvl, log15.StreamHandler(cmd.ErrOrStderr(), log15.LogfmtFormat())))

	client := backend.NewClient(&backend.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	tr := redis.New(client, redis.WithPrefix(cfg.Redis.Prefix), redis.WithLogger(l))

	reg := prometheus.NewRegistry()
	opts := append(cfg.EngineOptions(), actionsync.WithLogger(l), actionsync.WithRegisterer(reg))
	engine, err := actionsync.New(tr, opts...)
	if err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "unable to start engine on %s", cfg.Redis.Addr)
	}
	if err := engine.SetIdentity(actor); err != nil {
		engine.Close()
		client.Close()
		return nil, err
	}

	n := &node{engine: engine, client: client, l: l}
	if cfg.MetricsAddr != "" {
		if err := n.serve(cfg.MetricsAddr, reg); err != nil {
			n.Close()
			return nil, err
		}
	}
	return n, nil
}

func (n *node) serve(addr string, reg *prometheus.Registry) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "unable to listen for metrics")
	}
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(n.engine.Identity() + "\n"))
	})
	n.server = &http.Server{Handler: r}
	go func() {
		if err := n.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			n.l.Error("metrics server exited", "err", err)
		}
	}()
	n.metricsAddr = ln.Addr().String()
	n.l.Info("serving metrics", "addr", n.metricsAddr)
	return nil
}

// Close tears the node down in reverse order of start.
func (n *node) Close() error {
	if n.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		n.server.Shutdown(ctx)
		cancel()
	}
	err := n.engine.Close()
	if cerr := n.client.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func parseTimeout(arg string) (time.Duration, error) {
	ms, err := strconv.Atoi(arg)
	if err != nil || ms < 0 {
		return 0, errors.Errorf("timeout must be a non-negative number of milliseconds, got %q", arg)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
