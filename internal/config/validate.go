package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"hookdeploy/internal/security"
	"hookdeploy/pkg/cmdutil"
)

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Listen == "" || !strings.Contains(c.Listen, ":") {
		add("listen must be host:port, got %q", c.Listen)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		add("log_level must be one of debug, info, warn, error, got %q", c.LogLevel)
	}

	if c.App.Dir == "" {
		add("app.dir is required")
	} else if _, err := security.SanitizePath(c.App.Dir); err != nil {
		add("app.dir: %v", err)
	}
	if c.App.Port < 1 || c.App.Port > 65535 {
		add("app.port must be between 1 and 65535, got %d", c.App.Port)
	}
	if c.App.RepoURL != "" {
		if err := security.ValidateCloneURL(c.App.RepoURL); err != nil {
			add("app.repo_url: %v", err)
		}
	}

	switch c.App.Variant {
	case VariantProcess:
		if c.App.ProcessPattern == "" {
			add("app.process_pattern is required for the process variant")
		}
		if _, err := cmdutil.ParseCommandString(c.App.StartCommand); err != nil {
			add("app.start_command: %v", err)
		}
		if c.App.PIDFile == "" {
			add("app.pid_file is required for the process variant")
		}
	case VariantService:
		if err := security.ValidateUnitName(c.App.Unit); err != nil {
			add("app.unit: %v", err)
		}
	default:
		add("app.variant must be %q or %q, got %q", VariantProcess, VariantService, c.App.Variant)
	}

	if c.App.Venv == "" || filepath.IsAbs(c.App.Venv) {
		add("app.venv must be a path relative to app.dir, got %q", c.App.Venv)
	}
	if c.App.Requirements == "" {
		add("app.requirements is required")
	}
	if c.App.Python == "" {
		add("app.python is required")
	}

	if c.Webhook.Secret != "" {
		if err := security.ValidateSecret(c.Webhook.Secret); err != nil {
			add("webhook.secret: %v", err)
		}
	}
	if c.Webhook.MaxPayloadBytes <= 0 {
		add("webhook.max_payload_bytes must be positive, got %d", c.Webhook.MaxPayloadBytes)
	}
	if c.Webhook.RatePerMinute <= 0 {
		add("webhook.rate_per_minute must be positive, got %d", c.Webhook.RatePerMinute)
	}

	if c.Readiness.Attempts < 1 {
		add("readiness.attempts must be at least 1, got %d", c.Readiness.Attempts)
	}
	if c.Readiness.InitialDelay <= 0 {
		add("readiness.initial_delay must be positive, got %s", c.Readiness.InitialDelay)
	}
	if c.Readiness.MaxDelay < c.Readiness.InitialDelay {
		add("readiness.max_delay (%s) must not be lower than initial_delay (%s)", c.Readiness.MaxDelay, c.Readiness.InitialDelay)
	}
	if c.Timeouts.Command <= 0 {
		add("timeouts.command must be positive, got %s", c.Timeouts.Command)
	}
	if c.Timeouts.Install <= 0 {
		add("timeouts.install must be positive, got %s", c.Timeouts.Install)
	}

	if c.Status.Format != FormatHTML && c.Status.Format != FormatJSON {
		add("status.format must be %q or %q, got %q", FormatHTML, FormatJSON, c.Status.Format)
	}
	if c.Queue.Size < 1 {
		add("queue.size must be at least 1, got %d", c.Queue.Size)
	}
	if c.History.Enabled && c.History.Path == "" {
		add("history.path is required when history is enabled")
	}
	if c.Notify.AMQPURL != "" && c.Notify.AMQPQueue == "" {
		add("notify.amqp_queue is required when notify.amqp_url is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n%w", errors.Join(errs...))
	}
	return nil
}
