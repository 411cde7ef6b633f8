// Package cli implements the jetstream command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:     "jetstream",
	Short:   "Windowed metric and statistics computation for experiments",
	Version: version,
	Long: `Jetstream computes metrics and applies statistical treatments to data
collected from running experiments. For each due analysis window it joins
enrollment records with raw usage data, aggregates per-unit metric values,
and produces bootstrapped estimates, confidence intervals, and comparisons
between experiment branches.`,
	Run: func(cmd *cobra.Command, args []string) {
		// If no subcommand is provided, print help
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(validateCmd)
}
