// Package cli implements the actionsync command.
package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands. Flags that are set
// override the config file.
type RootOptions struct {
	ConfigPath  string
	RedisAddr   string
	Prefix      string
	LogLevel    string
	MetricsAddr string
}

// NewRootCommand creates the root command for the actionsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "actionsync",
		Short: "Rendezvous and notification between distributed actors",
		Long: `actionsync lets a set of named actors agree that all of them reached the
same point of a task graph, and reliably notify each other, over Redis
pub/sub.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.RedisAddr, "redis", "", "redis address, overrides the config file")
	cmd.PersistentFlags().StringVar(&opts.Prefix, "prefix", "", "redis channel prefix, overrides the config file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error|crit)")
	cmd.PersistentFlags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address")

	cmd.AddCommand(NewConsensusCommand(opts))
	cmd.AddCommand(NewHandshakeCommand(opts))
	cmd.AddCommand(NewListenCommand(opts))
	cmd.AddCommand(NewAckCommand(opts))

	return cmd
}
