package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/kpi-schedule-etl/internal/config"
	"github.com/Sternrassler/kpi-schedule-etl/pkg/etl"
)

// options are the values shared by every subcommand.
type options struct {
	configPath string
	cfg        config.Config
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "schedule-etl",
		Short:         "schedule-etl harvests group and lecturer timetables into a database.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv(config.EnvPrefix+"CONFIG"), "Path to a YAML config file.")

	root.AddCommand(
		newChunkCmd(opts),
		newStepCmd(opts),
		newRunCmd(opts),
		newServeCmd(opts),
	)
	return root
}

func parseKind(s string) (etl.EntityKind, error) {
	switch kind := etl.EntityKind(strings.ToLower(s)); kind {
	case etl.KindGroup, etl.KindTeacher:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown kind %q (want %s or %s)", s, etl.KindGroup, etl.KindTeacher)
	}
}

// prefixesFor returns the configured prefixes of kind unless override is set.
func prefixesFor(cfg config.Config, kind etl.EntityKind, override []string) []string {
	if len(override) > 0 {
		return override
	}
	if kind == etl.KindTeacher {
		return cfg.ETL.TeacherPrefixes
	}
	return cfg.ETL.GroupPrefixes
}
