package main

import (
	"github.com/spf13/cobra"
)

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	topologyPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "scoped",
		Short: "scoped runs the scope constraint algebra for a distributed scheduler",
		Long: `scoped evaluates scope constraints (the scheduler's lattice meet over
AnyScope/TaintScope/UnionScope/NodeScope/ProcessScope/ExactScope) against a
cluster's processor registry, either as a long-running daemon or as a
one-off inspection from the command line.`,
	}

	cmd.PersistentFlags().StringVar(&opts.topologyPath, "topology", "", "path to a static cluster topology YAML file")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newInspectCommand(opts))
	cmd.AddCommand(newMeetCommand(opts))

	return cmd
}
