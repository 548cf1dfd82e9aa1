package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hookdeploy/internal/config"
	"hookdeploy/internal/deployment"
	"hookdeploy/internal/dispatch"
	"hookdeploy/internal/history"
	"hookdeploy/internal/notify"
	"hookdeploy/internal/server"
	"hookdeploy/pkg/templates"

	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
	drainTimeout    = 2 * time.Minute
	flushTimeout    = 2 * time.Second
)

var serveOpts struct {
	listen   string
	logFile  string
	logLevel string
	dbPath   string
	testMode bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Long: `Start the HTTP server to receive GitHub webhook requests.

POST / accepts push events and queues a redeploy. GET / shows the status page,
GET /health and GET /runs report liveness and deployment history.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveOpts.listen, "listen", "", "Address to listen on (default 0.0.0.0:8080)")
	f.StringVar(&serveOpts.logFile, "log", "", "Path to log file (default ./deployments.log)")
	f.StringVar(&serveOpts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	f.StringVar(&serveOpts.dbPath, "db", "", "Path to SQLite history database (default ./deployments.db)")
	f.BoolVar(&serveOpts.testMode, "test-mode", os.Getenv("HOOKDEPLOY_TEST_MODE") == "1", "Enable test mode (no rate limiting, no history)")
}

// applyServeFlags overrides configuration with flags given on the command line.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Listen = serveOpts.listen
	}
	if flags.Changed("log") {
		cfg.LogFile = serveOpts.logFile
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = serveOpts.logLevel
	}
	if flags.Changed("db") {
		cfg.History.Path = serveOpts.dbPath
	}
	cfg.TestMode = serveOpts.testMode
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}
	applyServeFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, logFileHandle, err := setupLogging(cfg.LogFile, cfg.LogLevel, cfg.Secrets(), os.Stdout)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logFileHandle.Close()

	logger.Info("Starting hookdeploy",
		"version", version,
		"config", path,
		"variant", cfg.App.Variant,
		"app_dir", cfg.App.Dir,
		"test_mode", cfg.TestMode)

	if cfg.Webhook.Secret == "" {
		logger.Warn("No webhook secret configured; signatures will not be verified")
	}
	for _, name := range templates.ListTemplates() {
		if src := templates.TemplateSource(name); src != templates.Embedded {
			logger.Info("Using template override", "template", name, "path", src)
		}
	}

	var hist *history.History
	if cfg.History.Enabled && !cfg.TestMode {
		logger.Info("Initializing history database", "db", cfg.History.Path)
		hist, err = history.NewHistory(cfg.History.Path)
		if err != nil {
			logger.Error("Failed to initialize history database", "error", err)
			return fmt.Errorf("failed to initialize history database: %w", err)
		}
		defer hist.Close()
	}

	sinks, err := buildNotifiers(cfg, logger)
	if err != nil {
		return err
	}
	defer sinks.close(logger)

	seq := deployment.NewSequencer(cfg, deployment.WithLogger(logger))

	queueOpts := []dispatch.Option{dispatch.WithLogger(logger)}
	if hist != nil {
		queueOpts = append(queueOpts, dispatch.WithRecorder(hist))
	}
	if len(sinks.notifiers) > 0 {
		queueOpts = append(queueOpts, dispatch.WithNotifier(sinks.notifiers))
	}
	if sinks.sentry != nil {
		queueOpts = append(queueOpts, dispatch.WithPanicHandler(sinks.sentry.CaptureRecovered))
	}
	queue := dispatch.New(seq, cfg.Queue.Size, queueOpts...)

	var reader server.HistoryReader
	if hist != nil {
		reader = hist
	}
	srv := server.NewServer(cfg, queue, reader, logger, cfg.TestMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("Server failed", "error", err)
			_ = queue.Close(context.Background())
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}

	logger.Info("Draining deployment queue", "pending", queue.Len())
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), drainTimeout)
	defer cancelDrain()
	if err := queue.Close(drainCtx); err != nil {
		logger.Error("Deployment queue did not drain", "error", err)
	}

	logger.Info("hookdeploy stopped")
	return nil
}

// notifiers holds the configured run sinks and what must be released on exit.
type notifiers struct {
	notifiers notify.Multi
	sentry    *notify.Sentry
	amqp      *notify.AMQP
}

func buildNotifiers(cfg *config.Config, logger *slog.Logger) (*notifiers, error) {
	n := &notifiers{}

	if cfg.Notify.SlackWebhookURL != "" {
		n.notifiers = append(n.notifiers, notify.NewSlack(cfg.Notify.SlackWebhookURL, cfg.AppURL()))
		logger.Info("Slack notifications enabled")
	}

	if cfg.Notify.AMQPURL != "" {
		a, err := notify.NewAMQP(cfg.Notify.AMQPURL, cfg.Notify.AMQPQueue)
		if err != nil {
			// Deployments still work without the broker.
			logger.Error("AMQP notifications disabled", "error", err)
		} else {
			n.amqp = a
			n.notifiers = append(n.notifiers, a)
			logger.Info("AMQP notifications enabled", "queue", cfg.Notify.AMQPQueue)
		}
	}

	if cfg.Notify.SentryDSN != "" {
		hub, err := notify.InitSentry(cfg.Notify.SentryDSN, cfg.Notify.Environment, "hookdeploy@"+version)
		if err != nil {
			return nil, err
		}
		n.sentry = notify.NewSentry(hub)
		n.notifiers = append(n.notifiers, n.sentry)
		logger.Info("Sentry reporting enabled", "environment", cfg.Notify.Environment)
	}

	return n, nil
}

func (n *notifiers) close(logger *slog.Logger) {
	if n.amqp != nil {
		if err := n.amqp.Close(); err != nil {
			logger.Warn("Failed to close AMQP connection", "error", err)
		}
	}
	if n.sentry != nil {
		n.sentry.Flush(flushTimeout)
	}
}
