package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/kpi-schedule-etl/internal/runner"
	"github.com/Sternrassler/kpi-schedule-etl/pkg/etl"
)

func newStepCmd(opts *options) *cobra.Command {
	var (
		kind      string
		statePath string
	)

	cmd := &cobra.Command{
		Use:   "step --kind <group|teacher> [--state <file>]",
		Short: "Processes the current chunk of an iteration state and prints the step output.",
		Long: `Reads an iteration state (or the output of a previous step) from --state
or standard input, harvests the current chunk, stores its schedules and
prints the advanced state.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseKind(kind)
			if err != nil {
				return err
			}

			var in io.Reader = cmd.InOrStdin()
			if statePath != "" && statePath != "-" {
				f, err := os.Open(statePath)
				if err != nil {
					return fmt.Errorf("open state: %w", err)
				}
				defer f.Close()
				in = f
			}
			state, err := runner.ReadState(in)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.runner.Step(cmd.Context(), k, state)
			if err != nil {
				return err
			}
			return runner.WriteJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(etl.KindGroup), "Entity kind to harvest.")
	cmd.Flags().StringVar(&statePath, "state", "", "File holding the iteration state; standard input when empty or -.")
	return cmd
}
