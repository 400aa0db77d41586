// Package main implements the agentloop CLI.
//
// agentloop drives an external command-line agent through an autonomous
// iteration loop: execute, verify completion, decide whether to continue,
// repeat until the goal is achieved or a bound is hit.
//
// Usage:
//
//	# Run a goal through an external agent binary
//	agentloop run --executor-command my-agent "refactor the parser"
//
//	# With oracle verification and auto-continue
//	agentloop run --oracle --auto-continue "refactor the parser"
//
// Configuration is loaded from ~/.config/agentloop/config.yaml and
// environment variables; flags override both.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "agentloop",
	Short: "Autonomous iteration loop for command-line agents",
	Long: `agentloop wraps an external agent binary in an autonomous control loop.
Each iteration sends a prompt to the agent, verifies the output against the
goal, and decides whether to continue, wait for input, or stop.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("agentloop by Fyrsmith Labs\n")
		cmd.Printf("Version:    %s\n", version)
		cmd.Printf("Commit:     %s\n", gitCommit)
		cmd.Printf("Build Date: %s\n", buildDate)
	},
}
