package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewAckCommand creates the ack command.
func NewAckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ack ACTOR TOKEN",
		Short: "Publish one unidirectional acknowledgment of TOKEN as ACTOR",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := rootOpts.start(cmd, args[0])
			if err != nil {
				return err
			}
			defer n.Close()

			if _, err := n.engine.UnidirectionalAck(cmd.Context(), args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: Acknowledged %s\n", args[0], args[1])
			return nil
		},
	}
}
