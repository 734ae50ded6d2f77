package main

import (
	"github.com/spf13/cobra"

	"github.com/Median-Group/differential-evolution2/internal/logging"
)

type rootOptions struct {
	logLevel  string
	logFormat string
	logger    *logging.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "de",
		Short: "Differential evolution optimizer",
		Long: `de minimizes benchmark objectives over a box with DE/rand/1/bin,
optionally self-adapting F and CR per candidate.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.logger = logging.New(logging.ParseLevel(opts.logLevel), cmd.ErrOrStderr()).
				WithFormat(logging.Format(opts.logFormat))
		},
	}

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "Log format (json, text)")

	cmd.AddCommand(newRunCmd(opts), newFunctionsCmd())
	return cmd
}
