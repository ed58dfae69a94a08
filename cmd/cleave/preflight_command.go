package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cleave/internal/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight SOURCE OUTPUT_DIR",
		Short: "Check that a run could start",
		Long: `Preflight verifies the source file, output directory permissions, free
disk space, and every external binary the configured encoder and metric
need, without starting any work.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.AttachRun(args[0], args[1]); err != nil {
				return err
			}

			results := preflight.RunAll(cfg)
			fmt.Fprintln(cmd.OutOrStdout(), renderPreflightTable(results))
			if !preflight.AllPassed(results) {
				return fmt.Errorf("preflight checks failed")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All checks passed")
			return nil
		},
	}
}
