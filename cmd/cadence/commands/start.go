package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teranos/cadence/config"
	"github.com/teranos/cadence/logger"
	"github.com/teranos/cadence/scheduler"
)

// StartCmd runs the scheduler in the foreground.
var StartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the scheduler against a source repository",
	Long: `Run the scheduler in foreground mode.

The scheduler will:
- Clone or fast-forward the jobs repository into the jobs directory
- Register every valid job directory on its cron schedule
- Re-sync and reload on a fixed interval (default 15 minutes)
- Record every execution in the history file
- Run until interrupted (Ctrl+C)

Example:
  cadence start -r git@github.com:org/jobs.git
  cadence start -r https://github.com/org/jobs.git -d /srv/jobs --watch`,
	RunE: func(cmd *cobra.Command, args []string) error {
		v := config.NewViper()
		v.BindPFlag("repo_url", cmd.Flags().Lookup("repo"))
		v.BindPFlag("jobs_dir", cmd.Flags().Lookup("jobs-dir"))
		v.BindPFlag("verbose", cmd.Flags().Lookup("verbose"))
		v.BindPFlag("watch", cmd.Flags().Lookup("watch"))
		v.BindPFlag("interpreter", cmd.Flags().Lookup("interpreter"))
		v.BindPFlag("json_logs", cmd.Flags().Lookup("json-logs"))

		cfg, err := config.Load(v)
		if err != nil {
			return err
		}
		if cfg.RepoURL == "" {
			return fmt.Errorf("repository URL is required (-r/--repo)")
		}

		if err := logger.Initialize(cfg.Verbose, cfg.JSONLogs); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		sup, err := scheduler.New(scheduler.Config{
			RepoURL:      cfg.RepoURL,
			JobsDir:      cfg.JobsDir,
			HistoryFile:  cfg.HistoryFile,
			SecretsFile:  cfg.SecretsFile,
			KeyFile:      cfg.KeyFile,
			SyncInterval: cfg.SyncInterval,
			Interpreter:  cfg.Interpreter,
			Watch:        cfg.Watch,
		}, logger.Logger)
		if err != nil {
			return err
		}

		forceSync, _ := cmd.Flags().GetBool("force-sync")
		if forceSync {
			// One synchronous sync+reload, then exit
			sup.ForceSync()
			return nil
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go func() {
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			<-sigChan
			cancel()
		}()

		return sup.Run(ctx)
	},
}

func init() {
	StartCmd.Flags().StringP("repo", "r", "", "Source repository URL (required)")
	StartCmd.Flags().StringP("jobs-dir", "d", "./jobs", "Working tree directory")
	StartCmd.Flags().BoolP("verbose", "v", false, "Enable debug logging")
	StartCmd.Flags().BoolP("force-sync", "f", false, "Perform one sync+reload and exit")
	StartCmd.Flags().Bool("watch", false, "Reload when the jobs directory changes")
	StartCmd.Flags().String("interpreter", "", "Interpreter command for job scripts (default ruby)")
	StartCmd.Flags().Bool("json-logs", false, "Emit JSON log lines")
}
