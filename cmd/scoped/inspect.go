package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clusterscope/clusterscope/internal/builder"
	"github.com/clusterscope/clusterscope/internal/processor"
	"github.com/clusterscope/clusterscope/internal/scope"
)

type inspectOptions struct {
	workers    []uint64
	threads    []uint64
	useDefault bool
}

func newInspectCommand(root *rootOptions) *cobra.Command {
	opts := &inspectOptions{}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "build a scope from the given topology and print its canonical form",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(root, opts)
		},
	}

	cmd.Flags().Uint64SliceVar(&opts.workers, "worker", nil, "worker ids to scope to")
	cmd.Flags().Uint64SliceVar(&opts.threads, "thread", nil, "thread ids to scope to")
	cmd.Flags().BoolVar(&opts.useDefault, "default", false, "build DefaultScope() instead")

	return cmd
}

func runInspect(root *rootOptions, opts *inspectOptions) error {
	if root.topologyPath == "" {
		return fmt.Errorf("scoped inspect: --topology is required")
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

	var s scope.Scope
	switch {
	case opts.useDefault:
		s, err = b.Positional(ctx, builder.Default)
	case len(opts.workers) > 0 || len(opts.threads) > 0:
		fields := builder.NamedFields{}
		if len(opts.workers) == 1 {
			fields["worker"] = processor.WorkerId(opts.workers[0])
		} else if len(opts.workers) > 1 {
			fields["workers"] = toWorkerIds(opts.workers)
		}
		if len(opts.threads) == 1 {
			fields["thread"] = opts.threads[0]
		} else if len(opts.threads) > 1 {
			fields["threads"] = opts.threads
		}
		s, err = b.Keyword(ctx, fields)
	default:
		s, err = b.Positional(ctx)
	}
	if err != nil {
		return err
	}

	fmt.Println(scope.Describe(s))
	return nil
}

func toWorkerIds(ids []uint64) []processor.WorkerId {
	out := make([]processor.WorkerId, len(ids))
	for i, v := range ids {
		out[i] = processor.WorkerId(v)
	}
	return out
}
