// Package cli implements the Rise command-line interface using Cobra.
// Each subcommand maps to a reward-engine operation (award, streak,
// challenge, serve, etc.).
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rise",
	Short: "Rise — habit and journal reward engine",
	Long: `Rise is the gamification engine behind the Rise habit app:
an XP ledger with anti-abuse limits, a journal streak with freeze/debt
grace, and monthly challenges with milestone bonuses.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
