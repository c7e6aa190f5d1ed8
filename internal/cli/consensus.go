package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewConsensusCommand creates the consensus command.
func NewConsensusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "consensus GRAPH ACTOR TIMEOUT_MS [OTHERS...]",
		Short: "Wait until every listed actor reached GRAPH",
		Long: `Wait until ACTOR and every one of OTHERS know that the whole group reached
GRAPH, or until TIMEOUT_MS milliseconds pass. Exits 1 on timeout.

Example:
  actionsync consensus deploy alice 5000 bob carol`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsensus(rootOpts, cmd, args[0], args[1], args[2], args[3:])
		},
	}
}

func runConsensus(opts *RootOptions, cmd *cobra.Command, graph, actor, timeoutArg string, others []string) error {
	timeout, err := parseTimeout(timeoutArg)
	if err != nil {
		return err
	}
	n, err := opts.start(cmd, actor)
	if err != nil {
		return err
	}
	defer n.Close()

	ok, err := n.engine.WaitForConsensus(cmd.Context(), graph, others, timeout)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if !ok {
		fmt.Fprintf(out, "%s: Reached the timeout of %d ms\n", actor, timeout.Milliseconds())
		return ErrFailed
	}
	fmt.Fprintf(out, "%s: Consensus reached for graph %s\n", actor, graph)
	return nil
}
