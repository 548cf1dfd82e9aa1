package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"hookdeploy/internal/config"
	"hookdeploy/internal/deployment"
	"hookdeploy/internal/security"
	"hookdeploy/pkg/cmdutil"
	"hookdeploy/pkg/fileutil"
	"hookdeploy/pkg/templates"

	"github.com/spf13/cobra"
)

const systemdUnitDir = "/etc/systemd/system"

var unitOpts struct {
	install bool
	user    string
}

var unitCmd = &cobra.Command{
	Use:   "unit",
	Short: "Render the systemd unit for the application",
	Long: `Print a systemd unit that runs the application's start command.

With --install the unit is written to /etc/systemd/system/<unit>.service and
systemd is reloaded. Use it together with app.variant: service.`,
	RunE: runUnit,
}

func init() {
	defaultUser := os.Getenv("USER")
	if defaultUser == "" {
		defaultUser = "ubuntu"
	}
	unitCmd.Flags().BoolVar(&unitOpts.install, "install", false, "Write the unit and run systemctl daemon-reload")
	unitCmd.Flags().StringVar(&unitOpts.user, "user", defaultUser, "User the application runs as")
}

func renderUnit(cfg *config.Config, user string) (string, error) {
	argv, err := deployment.StartArgs(cfg.App)
	if err != nil {
		return "", err
	}

	return templates.RenderSystemdService(templates.ServiceUnit{
		Description: cfg.App.Unit + " (deployed by hookdeploy)",
		User:        user,
		WorkingDir:  cfg.App.Dir,
		ExecStart:   cmdutil.FormatCommand(argv),
		LogFile:     cfg.App.LogFile,
	})
}

func runUnit(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if err := security.ValidateUnitName(cfg.App.Unit); err != nil {
		return err
	}

	unit, err := renderUnit(cfg, unitOpts.user)
	if err != nil {
		return err
	}

	if !unitOpts.install {
		fmt.Fprint(cmd.OutOrStdout(), unit)
		return nil
	}

	path := filepath.Join(systemdUnitDir, cfg.App.Unit+".service")
	if err := fileutil.WriteFileAtomic(path, []byte(unit), security.PermPublicFile); err != nil {
		return fmt.Errorf("failed to write unit file: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	if out, err := cmdutil.RunWithTimeout(ctx, "", 30*time.Second, []string{"systemctl", "daemon-reload"}); err != nil {
		return fmt.Errorf("systemctl daemon-reload failed: %w: %s", err, out)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", colorSuccess.Sprint("Installed"), path)
	return nil
}
