package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cwbudde/algo-verify/engine"
	"github.com/cwbudde/algo-verify/report"
	"github.com/cwbudde/algo-verify/stability"
)

// StabilityOptions holds the stability command flags.
type StabilityOptions struct {
	*RootOptions
	SampleRate float64
	BlockSize  int
	Blocks     int
}

// NewStabilityCommand creates the stability command.
func NewStabilityCommand(root *RootOptions) *cobra.Command {
	opts := &StabilityOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:           "stability <engine>",
		Short:         "Sweep an engine's parameter space",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStability(cmd, opts, args[0])
		},
	}

	cmd.Flags().Float64Var(&opts.SampleRate, "samplerate", 48000, "sample rate in Hz")
	cmd.Flags().IntVar(&opts.BlockSize, "blocksize", 512, "processing block size")
	cmd.Flags().IntVar(&opts.Blocks, "blocks", 50, "reference tone blocks per combination")

	return cmd
}

func runStability(cmd *cobra.Command, opts *StabilityOptions, name string) error {
	factory := engine.Lookup(name)
	if factory == nil {
		return NewExitError(ExitCommandError, "engine not registered: "+name)
	}

	outcomes, summary, err := stability.RunSweep(factory, stability.Config{
		SampleRate: opts.SampleRate,
		BlockSize:  opts.BlockSize,
		Blocks:     opts.Blocks,
	})
	if err != nil {
		return WrapExitError(ExitFailure, "sweep", err)
	}

	if opts.Format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report.NewStabilitySection(outcomes, summary)); err != nil {
			return err
		}
	} else {
		printOutcomes(cmd, outcomes, summary)
	}

	if summary.Unstable > 0 || summary.Failed > 0 {
		return NewExitError(ExitFailure,
			fmt.Sprintf("%d of %d combinations did not pass", summary.Failed+summary.Unstable, summary.Total))
	}

	return nil
}

func printOutcomes(cmd *cobra.Command, outcomes []stability.Outcome, summary stability.Summary) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COMBINATION\tSTATUS\tLABEL\tPEAK\tREASON")

	for _, o := range outcomes {
		reason := o.Reason
		if reason == "" {
			reason = "-"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%.3f\t%s\n",
			o.Combination, o.Status, o.Label, o.Peak, reason)
	}

	w.Flush()

	fmt.Fprintf(cmd.OutOrStdout(), "\n%d combinations: %d passed, %d failed, %d unstable\n",
		summary.Total, summary.Passed, summary.Failed, summary.Unstable)
}
