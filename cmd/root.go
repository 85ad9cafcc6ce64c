// Package cmd defines and implements the CLI commands for the marketd
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "marketd",
		Short: "Web presence analysis and marketing strategy engine.",
		Long: `marketd analyzes a business's web presence and synthesizes a
marketing strategy from it. The serve command runs the full asynchronous
HTTP service; the analyze command runs a single analysis from the command
line and prints the result.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newAnalyzeCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
