// Cardigan is a job scheduling and execution engine for an LLM-driven
// broadcast-transcript editing pipeline (spec §1-§9). Grounded on
// PromptKit Arena's cobra cmd/promptarena layout: a package-level rootCmd
// each subcommand file registers itself against from init().
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cardigan",
	Short: "Cardigan schedules and executes LLM-driven transcript editing jobs",
	Long: `Cardigan is a job scheduling and execution engine: it watches an input
directory for dropped transcripts, runs each one through a multi-phase
LLM editing pipeline with tier-based routing and recovery, and exposes a
control API for submission, inspection, and lifecycle management.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
