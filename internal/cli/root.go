// Package cli implements the command-line interface for overseer.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "overseer",
	Short: "Supervised execution loop for an opencode worker",
	Long: `Overseer drives an opencode worker to a bounded terminal outcome. It spawns
the worker server, streams its events into a compact evidence window, asks an
LLM reviewer whether the worker is progressing or stuck, and terminates on
completion, a reasoned abort, or iteration exhaustion.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// SetVersionInfo records build version details for the --version flag.
func SetVersionInfo(v, c, d string) {
	version, commit, date = v, c, d
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
}

// Execute runs the CLI.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func init() {
	rootCmd.AddCommand(runCmd)
}
