package main

import (
	"github.com/spf13/cobra"

	"github.com/Sternrassler/kpi-schedule-etl/internal/runner"
	"github.com/Sternrassler/kpi-schedule-etl/pkg/etl"
)

const kindAll = "all"

func newRunCmd(opts *options) *cobra.Command {
	var (
		kind     string
		prefixes []string
	)

	cmd := &cobra.Command{
		Use:   "run [--kind <group|teacher|all>] [--prefixes a,b,c]",
		Short: "Harvests every chunk and prints the accumulated summaries.",
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := []etl.EntityKind{etl.KindGroup, etl.KindTeacher}
			if kind != kindAll {
				k, err := parseKind(kind)
				if err != nil {
					return err
				}
				kinds = []etl.EntityKind{k}
			}

			a, err := newApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			work := make(map[etl.EntityKind][]string, len(kinds))
			for _, k := range kinds {
				work[k] = prefixesFor(opts.cfg, k, prefixes)
			}

			summaries, err := a.runner.RunAll(cmd.Context(), work)
			if err != nil {
				return err
			}
			return runner.WriteJSON(cmd.OutOrStdout(), summaries)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", kindAll, "Entity kind to harvest.")
	cmd.Flags().StringSliceVar(&prefixes, "prefixes", nil, "Prefixes to harvest instead of the configured ones.")
	return cmd
}
