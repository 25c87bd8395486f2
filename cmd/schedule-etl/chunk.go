package main

import (
	"github.com/spf13/cobra"

	"github.com/Sternrassler/kpi-schedule-etl/internal/runner"
	"github.com/Sternrassler/kpi-schedule-etl/pkg/etl"
)

func newChunkCmd(opts *options) *cobra.Command {
	var (
		kind     string
		prefixes []string
	)

	cmd := &cobra.Command{
		Use:   "chunk --kind <group|teacher> [--prefixes a,b,c]",
		Short: "Prints the initial iteration state for a harvest.",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseKind(kind)
			if err != nil {
				return err
			}
			state, err := etl.NewIterationState(prefixesFor(opts.cfg, k, prefixes), opts.cfg.ETL.ChunkSize)
			if err != nil {
				return err
			}
			return runner.WriteJSON(cmd.OutOrStdout(), state)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(etl.KindGroup), "Entity kind to harvest.")
	cmd.Flags().StringSliceVar(&prefixes, "prefixes", nil, "Prefixes to harvest instead of the configured ones.")
	return cmd
}
