// Package cmd implements the workerctl CLI commands.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/coriolis-systems/workercore/logging"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	verbose bool
	log     logging.Logger
)

var rootCmd = &cobra.Command{
	Use:          "workerctl",
	Short:        "Inspect and self-test the worker runtime",
	Version:      Version,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logging.LevelInfo
		if verbose {
			level = logging.LevelDebug
		}
		log = logging.New(cmd.ErrOrStderr(), level)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
