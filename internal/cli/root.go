// Package cli implements the enginecheck command tree.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	// Test doubles register themselves for self-validation.
	_ "github.com/cwbudde/algo-verify/engine/enginetest"
)

// Version is stamped at build time.
var Version = "dev"

// RootOptions holds the global flags shared by every command.
type RootOptions struct {
	Verbose bool
	Format  string // "text" | "json"
}

var validFormats = []string{"text", "json"}

// NewRootCommand creates the enginecheck root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "enginecheck",
		Short: "Validate and measure audio processing engines",
		Long: `enginecheck drives registered audio engines through a battery of
measurements (frequency response, distortion, noise, impulse metrics,
stereo behavior), sweeps their parameter space for stability, and
grades the results into per-engine reports.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					"invalid format "+opts.Format+": must be text or json")
			}
			configureLogging(opts.Verbose)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")

	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewStabilityCommand(opts))
	cmd.AddCommand(NewEnduranceCommand(opts))

	return cmd
}

// configureLogging installs the default slog handler: quiet unless
// verbose is set.
func configureLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

func isValidFormat(format string) bool {
	for _, f := range validFormats {
		if f == format {
			return true
		}
	}
	return false
}
