package cli

import (
	"fmt"
	"sync"
	"time"

	"github.com/ngrok/actionsync"
	"github.com/spf13/cobra"
)

// HandshakeOptions holds flags for the handshake command.
type HandshakeOptions struct {
	*RootOptions
	Linger time.Duration
	Params string
}

// NewHandshakeCommand creates the handshake command.
func NewHandshakeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HandshakeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "handshake GRAPH ACTOR TIMEOUT_MS [OTHERS...]",
		Short: "Handshake with the other actors, then notify them",
		Long: `Run a bidirectional handshake on GRAPH with OTHERS, then send each of them a
notification and wait for their acknowledgments. Notifications from the others
are printed as they arrive. The command keeps acknowledging for --linger after
its own send finishes, so peers that are still sending can complete.`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHandshake(opts, cmd, args[0], args[1], args[2], args[3:])
		},
	}

	cmd.Flags().DurationVar(&opts.Linger, "linger", time.Second, "how long to keep acknowledging after sending")
	cmd.Flags().StringVar(&opts.Params, "params", "", "parameters carried by the notification")

	return cmd
}

func runHandshake(opts *HandshakeOptions, cmd *cobra.Command, graph, actor, timeoutArg string, others []string) error {
	timeout, err := parseTimeout(timeoutArg)
	if err != nil {
		return err
	}
	n, err := opts.start(cmd, actor)
	if err != nil {
		return err
	}
	defer n.Close()

	var mu sync.Mutex
	out := cmd.OutOrStdout()
	printf := func(format string, args ...interface{}) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, format, args...)
	}
	n.engine.SetNotificationCallback(func(note actionsync.Notification) {
		printf("Got notification from %s\n", note.Sender)
	})

	ctx := cmd.Context()
	ok, err := n.engine.BidirectionalHandshake(ctx, graph, others, timeout)
	if err != nil {
		return err
	}
	if !ok {
		printf("%s: Reached the timeout of %d ms\n", actor, timeout.Milliseconds())
		return ErrFailed
	}
	printf("%s: Successful handshake between participants reached for graph %s\n", actor, graph)

	ok, err = n.engine.SendNotification(ctx, actionsync.Notification{
		Waitable: actionsync.Waitable{
			Actor:  actor,
			Action: actor + "::notify",
			Graph:  graph,
		},
		Result:     "on_true",
		Parameters: opts.Params,
	}, others, timeout)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-time.After(opts.Linger):
	}

	if !ok {
		printf("%s: Unsuccessfully sent a notification\n", actor)
		return ErrFailed
	}
	printf("%s: Successfully sent a notification\n", actor)
	return nil
}
