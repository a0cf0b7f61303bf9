package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/algo-verify/endurance"
	"github.com/cwbudde/algo-verify/engine"
	"github.com/cwbudde/algo-verify/report"
)

// EnduranceOptions holds the endurance command flags.
type EnduranceOptions struct {
	*RootOptions
	Duration   time.Duration
	SampleRate float64
	BlockSize  int
}

// NewEnduranceCommand creates the endurance command.
func NewEnduranceCommand(root *RootOptions) *cobra.Command {
	opts := &EnduranceOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:           "endurance <engine>",
		Short:         "Run the long-run monitor against one engine",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEndurance(cmd, opts, args[0])
		},
	}

	cmd.Flags().DurationVar(&opts.Duration, "duration", 30*time.Second, "audio duration to process")
	cmd.Flags().Float64Var(&opts.SampleRate, "samplerate", 48000, "sample rate in Hz")
	cmd.Flags().IntVar(&opts.BlockSize, "blocksize", 512, "processing block size")

	return cmd
}

func runEndurance(cmd *cobra.Command, opts *EnduranceOptions, name string) error {
	factory := engine.Lookup(name)
	if factory == nil {
		return NewExitError(ExitCommandError, "engine not registered: "+name)
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	mon := endurance.NewMonitor(endurance.Config{
		SampleRate: opts.SampleRate,
		BlockSize:  opts.BlockSize,
		Duration:   opts.Duration,
		ForceGC:    true,
	})

	summary, _, err := mon.Run(ctx, factory)
	if err != nil {
		return WrapExitError(ExitFailure, "endurance", err)
	}

	if opts.Format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report.NewEnduranceSection(summary)); err != nil {
			return err
		}
	} else {
		printEndurance(cmd, summary)
	}

	if !summary.Passed {
		return NewExitError(ExitFailure, "endurance failed")
	}

	return nil
}

func printEndurance(cmd *cobra.Command, s endurance.Summary) {
	out := cmd.OutOrStdout()

	status := "PASSED"
	if !s.Passed {
		status = "FAILED"
	}

	fmt.Fprintf(out, "%s: %d blocks in %s\n", status, s.BlocksProcessed, s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "memory growth: %.3f MB/min\n", s.GrowthRateMBPerMin)
	fmt.Fprintf(out, "degradation:   %.1f%%\n", s.DegradationPercent)
	fmt.Fprintf(out, "level drift:   %.2f dB\n", s.LevelDriftDB)

	if s.DCOffsetBlocks > 0 || s.ClippingBlocks > 0 {
		fmt.Fprintf(out, "dc blocks: %d, clipping blocks: %d\n", s.DCOffsetBlocks, s.ClippingBlocks)
	}
	for _, reason := range s.Reasons {
		fmt.Fprintln(out, "reason:", reason)
	}
}
