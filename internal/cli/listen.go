package cli

import (
	"fmt"
	"sync"

	"github.com/ngrok/actionsync"
	"github.com/spf13/cobra"
)

// NewListenCommand creates the listen command.
func NewListenCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "listen ACTOR",
		Short: "Print notifications addressed to ACTOR until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListen(rootOpts, cmd, args[0])
		},
	}
}

func runListen(opts *RootOptions, cmd *cobra.Command, actor string) error {
	n, err := opts.start(cmd, actor)
	if err != nil {
		return err
	}
	defer n.Close()

	var mu sync.Mutex
	out := cmd.OutOrStdout()
	n.engine.SetNotificationCallback(func(note actionsync.Notification) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, "Got notification from %s\n", note.Sender)
		fmt.Fprintf(out, "    id         : %s\n", note.ID)
		fmt.Fprintf(out, "    parameters : %s\n", note.Parameters)
		fmt.Fprintf(out, "    waitable   : %s in %s\n", note.Waitable.Action, note.Waitable.Graph)
	})

	<-cmd.Context().Done()
	return nil
}
