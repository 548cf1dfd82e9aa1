package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"hookdeploy/internal/security"

	"github.com/m-mizutani/masq"
)

// setupLogging configures slog to write to console and the log file.
// Returns both the logger and the file handle (caller must close the file)
func setupLogging(logPath, level string, secrets []string, console io.Writer) (*slog.Logger, *os.File, error) {
	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, security.PermDirectory); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, security.PermLogFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return newLogger(io.MultiWriter(console, file), level, secrets), file, nil
}

// newLogger builds a JSON logger that masks config fields tagged
// masq:"secret" and any attribute containing one of secrets.
func newLogger(w io.Writer, level string, secrets []string) *slog.Logger {
	opts := []masq.Option{masq.WithTag("secret")}
	for _, s := range secrets {
		opts = append(opts, masq.WithContain(s))
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       parseLevel(level),
		ReplaceAttr: masq.New(opts...),
	})
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
