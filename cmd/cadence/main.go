package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/cadence/cmd/cadence/commands"
	"github.com/teranos/cadence/logger"
)

var rootCmd = &cobra.Command{
	Use:   "cadence",
	Short: "cadence - GitOps-driven cron supervisor",
	Long: `cadence - GitOps-driven cron supervisor.

Jobs are directories in a Git repository: push a directory with a
config.yml and an execute.rb, and cadence runs it on its cron schedule
with per-execution isolation, bounded runtime, secret injection, and
durable execution history.

Available commands:
  start   - Run the scheduler against a source repository
  secrets - Manage the encrypted secrets store
  version - Print version information

Examples:
  cadence start -r git@github.com:org/jobs.git
  cadence secrets set API_KEY hunter2hunter2
  cadence secrets list`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	rootCmd.AddCommand(commands.StartCmd)
	rootCmd.AddCommand(commands.SecretsCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
