package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clusterscope/clusterscope/internal/builder"
	"github.com/clusterscope/clusterscope/internal/processor"
	"github.com/clusterscope/clusterscope/internal/scope"
)

type meetOptions struct {
	workerA uint64
	workerB uint64
}

func newMeetCommand(root *rootOptions) *cobra.Command {
	opts := &meetOptions{}

	cmd := &cobra.Command{
		Use:   "meet",
		Short: "constrain ProcessScope(worker-a) against ProcessScope(worker-b) and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMeet(root, opts)
		},
	}

	cmd.Flags().Uint64Var(&opts.workerA, "worker-a", 0, "first worker id")
	cmd.Flags().Uint64Var(&opts.workerB, "worker-b", 0, "second worker id")
	cmd.MarkFlagRequired("worker-a")
	cmd.MarkFlagRequired("worker-b")

	return cmd
}

func runMeet(root *rootOptions, opts *meetOptions) error {
	if root.topologyPath == "" {
		return fmt.Errorf("scoped meet: --topology is required")
	}
	topo, err := LoadTopology(root.topologyPath)
	if err != nil {
		return err
	}

	reg := processor.NewRegistry(nil)
	if err := topo.Apply(reg); err != nil {
		return err
	}

	b := builder.New(reg)
	ctx := context.Background()

	a, err := b.Keyword(ctx, builder.NamedFields{"worker": processor.WorkerId(opts.workerA)})
	if err != nil {
		return err
	}
	bb, err := b.Keyword(ctx, builder.NamedFields{"worker": processor.WorkerId(opts.workerB)})
	if err != nil {
		return err
	}

	result := scope.Constrain(a, bb)
	fmt.Println(scope.Describe(result))
	return nil
}
