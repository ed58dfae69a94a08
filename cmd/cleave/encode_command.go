package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"cleave/internal/cachestore"
	"cleave/internal/logging"
	"cleave/internal/pipeline"
	"cleave/internal/preflight"
	"cleave/internal/progress"
	"cleave/internal/report"
)

func newEncodeCommand(ctx *commandContext) *cobra.Command {
	var (
		workers    int
		encoder    string
		quality    float64
		preset     string
		passes     int
		metric     string
		percentile float64
		noCrop     bool
		noReport   bool
		logLevel   string
		logFormat  string
	)

	cmd := &cobra.Command{
		Use:   "encode SOURCE OUTPUT_DIR",
		Short: "Re-encode a video scene by scene",
		Long: `Encode probes the source, splits it at scene boundaries, encodes and
measures every scene in parallel, and merges the results. Completed work is
cached under OUTPUT_DIR, so an interrupted or repeated run resumes where it
left off.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			flags := cmd.Flags()
			if flags.Changed("workers") {
				cfg.Workers = workers
				if cfg.Workers < 1 {
					cfg.Workers = runtime.NumCPU()
				}
			}
			if flags.Changed("encoder") {
				cfg.Encoder.Name = encoder
			}
			if flags.Changed("quality") {
				cfg.Encoder.Quality = quality
			}
			if flags.Changed("preset") {
				cfg.Encoder.Preset = preset
			}
			if flags.Changed("passes") {
				cfg.Encoder.Passes = passes
			}
			if flags.Changed("metric") {
				cfg.Metric.Name = metric
			}
			if flags.Changed("percentile") {
				cfg.Metric.Percentile = percentile
			}
			if flags.Changed("log-level") {
				cfg.Logging.Level = logLevel
			}
			if flags.Changed("log-format") {
				cfg.Logging.Format = logFormat
			}
			if noCrop {
				cfg.Crop.Enabled = false
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			if err := cfg.AttachRun(args[0], args[1]); err != nil {
				return err
			}
			if err := cfg.EnsureOutputLayout(); err != nil {
				return err
			}

			results := preflight.RunAll(cfg)
			if !preflight.AllPassed(results) {
				fmt.Fprintln(cmd.ErrOrStderr(), renderPreflightTable(results))
				return fmt.Errorf("preflight checks failed")
			}

			logger, err := logging.New(logging.Options{
				Level:    cfg.Logging.Level,
				Format:   cfg.Logging.Format,
				Writer:   cmd.ErrOrStderr(),
				FilePath: cfg.Logging.File,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			store, err := cachestore.Open(cfg.OutputDir, logger)
			if err != nil {
				return err
			}

			tools, err := pipeline.NewToolkit(cfg)
			if err != nil {
				return err
			}

			sink := progress.New(os.Stdout, logger)
			outcome, runErr := pipeline.New(cfg, store, tools, logger, sink).Run(signalCtx)
			if outcome != nil {
				out := cmd.OutOrStdout()
				report.Render(out, outcome.Summary, outcome.Rows)
				if !noReport {
					reportPath := filepath.Join(cfg.FinalDir(), cfg.EncodeIdentifier()+".report.txt")
					if err := report.WriteArtifact(reportPath, outcome.Summary, outcome.Rows); err != nil {
						logger.Warn("write report artifact", logging.Error(err))
					} else {
						fmt.Fprintf(out, "Report written to %s\n", reportPath)
					}
				}
			}
			return runErr
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 0, "Maximum concurrent scene tasks (0 = number of CPUs)")
	cmd.Flags().StringVar(&encoder, "encoder", "", "Encoder variant: x264, x265, aomenc, or drapto")
	cmd.Flags().Float64Var(&quality, "quality", 0, "Encoder quality (CRF/CQ)")
	cmd.Flags().StringVar(&preset, "preset", "", "Encoder preset")
	cmd.Flags().IntVar(&passes, "passes", 0, "Number of encoding passes")
	cmd.Flags().StringVar(&metric, "metric", "", "Quality metric: vmaf, psnr, ssim, or ssimulacra2")
	cmd.Flags().Float64Var(&percentile, "percentile", 0, "Score percentile reported per scene (0..1)")
	cmd.Flags().BoolVar(&noCrop, "no-crop", false, "Disable crop detection")
	cmd.Flags().BoolVar(&noReport, "no-report", false, "Skip writing the report file")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, or error")
	cmd.Flags().StringVar(&logFormat, "log-format", "", "Log format: console or json")

	return cmd
}

func renderPreflightTable(results []preflight.Result) string {
	rows := make([][]string, 0, len(results))
	for _, result := range results {
		status := "ok"
		if !result.Passed {
			status = "FAIL"
		}
		rows = append(rows, []string{result.Name, status, result.Detail})
	}
	return report.RenderTable(
		[]string{"Check", "Status", "Detail"},
		rows,
		nil,
	)
}
