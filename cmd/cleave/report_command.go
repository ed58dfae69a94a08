package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"cleave/internal/config"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	var (
		encoder string
		quality float64
		preset  string
	)

	cmd := &cobra.Command{
		Use:   "report OUTPUT_DIR",
		Short: "Print the report of a previous run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			flags := cmd.Flags()
			if flags.Changed("encoder") {
				cfg.Encoder.Name = encoder
			}
			if flags.Changed("quality") {
				cfg.Encoder.Quality = quality
			}
			if flags.Changed("preset") {
				cfg.Encoder.Preset = preset
			}

			outputDir, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			reportPath := filepath.Join(outputDir, "output", cfg.EncodeIdentifier()+".report.txt")
			data, err := os.ReadFile(reportPath)
			if err != nil {
				if os.IsNotExist(err) {
					return fmt.Errorf("no report at %s; run `cleave encode` first", reportPath)
				}
				return fmt.Errorf("read report: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVar(&encoder, "encoder", "", "Encoder variant the report belongs to")
	cmd.Flags().Float64Var(&quality, "quality", 0, "Encoder quality the report belongs to")
	cmd.Flags().StringVar(&preset, "preset", "", "Encoder preset the report belongs to")

	return cmd
}
