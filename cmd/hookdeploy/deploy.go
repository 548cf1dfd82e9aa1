package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"hookdeploy/internal/deployment"
	"hookdeploy/internal/history"

	"github.com/spf13/cobra"
)

var deployOpts struct {
	branch    string
	repoURL   string
	noHistory bool
}

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Run one deployment in the foreground",
	Long: `Run the redeploy pipeline once, without waiting for a webhook.

Steps are printed as they finish. The command exits non-zero if the deployment failed.`,
	Example: `  hookdeploy deploy --branch main
  hookdeploy deploy --branch feature/login --repo-url https://github.com/octo/catty.git`,
	RunE: runDeploy,
}

func init() {
	f := deployCmd.Flags()
	f.StringVarP(&deployOpts.branch, "branch", "b", "main", "Branch to deploy")
	f.StringVar(&deployOpts.repoURL, "repo-url", "", "Repository to clone when the working copy is missing")
	f.BoolVar(&deployOpts.noHistory, "no-history", false, "Do not record the run in the history database")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("repo-url") {
		cfg.App.RepoURL = deployOpts.repoURL
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Structured logs go to the log file only; stdout gets the step summary.
	logger, logFileHandle, err := setupLogging(cfg.LogFile, cfg.LogLevel, cfg.Secrets(), io.Discard)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logFileHandle.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	seq := deployment.NewSequencer(cfg, deployment.WithLogger(logger))
	run := seq.Run(ctx, deployment.Request{
		Branch:     deployOpts.branch,
		Ref:        "refs/heads/" + deployOpts.branch,
		CloneURL:   cfg.App.RepoURL,
		Repository: cfg.App.RepoURL,
		Trigger:    deployment.TriggerCLI,
	})

	printRun(cmd.OutOrStdout(), run)

	if cfg.History.Enabled && !deployOpts.noHistory {
		recordCLIRun(context.WithoutCancel(ctx), cfg.History.Path, run, cmd.ErrOrStderr())
	}

	if failure := run.Failure(); failure != nil {
		return fmt.Errorf("deployment failed at %s", failure.Name)
	}
	return nil
}

func recordCLIRun(ctx context.Context, dbPath string, run *deployment.Run, errOut io.Writer) {
	hist, err := history.NewHistory(dbPath)
	if err != nil {
		fmt.Fprintf(errOut, "Warning: history not recorded: %v\n", err)
		return
	}
	defer hist.Close()

	if _, err := hist.RecordRun(ctx, run); err != nil {
		fmt.Fprintf(errOut, "Warning: history not recorded: %v\n", err)
	}
}
