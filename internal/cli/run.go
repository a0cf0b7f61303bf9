package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/algo-verify/report"
	"github.com/cwbudde/algo-verify/suite"
)

// RunOptions holds the run command flags.
type RunOptions struct {
	*RootOptions
	ConfigPath string
	Out        string
	Workers    int
	Seed       int64
	Timeout    time.Duration
	Endurance  bool
}

// NewRunCommand creates the run command.
func NewRunCommand(root *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:   "run [engine ...]",
		Short: "Run the full validation battery",
		Long: `Run every measurement unit against the named engines, or against all
registered engines when none are named. Reports and CSV exports are
written to the output directory when one is configured.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to a YAML suite config")
	cmd.Flags().StringVar(&opts.Out, "out", "", "output directory for reports and CSV exports")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "engines evaluated in parallel")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "stimulus RNG seed")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "per-unit wall-clock timeout")
	cmd.Flags().BoolVar(&opts.Endurance, "endurance", false, "include the endurance monitor")

	return cmd
}

func runBatch(cmd *cobra.Command, opts *RunOptions, names []string) error {
	cfg, err := suite.LoadConfig(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "config", err)
	}

	flags := cmd.Flags()
	if flags.Changed("out") {
		cfg.OutputDir = opts.Out
	}
	if flags.Changed("workers") {
		cfg.Workers = opts.Workers
	}
	if flags.Changed("seed") {
		cfg.Seed = opts.Seed
	}
	if flags.Changed("timeout") {
		cfg.UnitTimeout = suite.Duration(opts.Timeout)
	}
	if flags.Changed("endurance") {
		cfg.Endurance = opts.Endurance
	}

	s, err := suite.New(cfg, nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "config", err)
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	reports, err := s.Run(ctx, names)
	if err != nil {
		return WrapExitError(ExitCommandError, "batch", err)
	}

	if opts.Format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return err
		}
	} else {
		printSummary(cmd, reports)
	}

	if !s.Passed() {
		return NewExitError(ExitFailure, "batch failed")
	}

	return nil
}

// printSummary renders the per-engine result table.
func printSummary(cmd *cobra.Command, reports []*report.EngineReport) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ENGINE\tGRADE\tREADY\tFAILED UNITS")

	for _, rep := range reports {
		var failed []string
		for _, u := range rep.Units {
			if u.Status == "FAILED" {
				failed = append(failed, u.Unit)
			}
		}

		failedCol := "-"
		if len(failed) > 0 {
			failedCol = strings.Join(failed, ",")
		}

		fmt.Fprintf(w, "%s\t%.1f\t%v\t%s\n",
			rep.EngineName, rep.Grade, rep.ProductionReady, failedCol)
	}

	w.Flush()
}

// signalContext derives a context cancelled on SIGINT/SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}

	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
