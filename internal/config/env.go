package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every hookdeploy environment variable.
const EnvPrefix = "HOOKDEPLOY_"

// LookupFunc matches the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// LoadDotEnv loads variables from the given .env files into the process
// environment. Variables that are already set are left alone, and missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from environment variables. A variable that is
// present overrides the current value even when empty.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid integer %q", key, v))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid duration %q", key, v))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid boolean %q", key, v))
				return
			}
			*dst = b
		}
	}

	str(EnvPrefix+"LISTEN", &c.Listen)
	str(EnvPrefix+"LOG_FILE", &c.LogFile)
	str(EnvPrefix+"LOG_LEVEL", &c.LogLevel)

	str(EnvPrefix+"APP_DIR", &c.App.Dir)
	num(EnvPrefix+"APP_PORT", &c.App.Port)
	str(EnvPrefix+"REPO_URL", &c.App.RepoURL)
	str(EnvPrefix+"VARIANT", &c.App.Variant)
	str(EnvPrefix+"UNIT", &c.App.Unit)
	str(EnvPrefix+"PROCESS_PATTERN", &c.App.ProcessPattern)
	str(EnvPrefix+"START_COMMAND", &c.App.StartCommand)
	str(EnvPrefix+"PID_FILE", &c.App.PIDFile)
	str(EnvPrefix+"APP_LOG_FILE", &c.App.LogFile)
	str(EnvPrefix+"VENV", &c.App.Venv)
	str(EnvPrefix+"REQUIREMENTS", &c.App.Requirements)
	str(EnvPrefix+"PYTHON", &c.App.Python)

	str(EnvPrefix+"WEBHOOK_SECRET", &c.Webhook.Secret)
	if v, ok := lookup(EnvPrefix + "MAX_PAYLOAD_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sMAX_PAYLOAD_BYTES: invalid integer %q", EnvPrefix, v))
		} else {
			c.Webhook.MaxPayloadBytes = n
		}
	}
	num(EnvPrefix+"RATE_PER_MINUTE", &c.Webhook.RatePerMinute)

	num(EnvPrefix+"READINESS_ATTEMPTS", &c.Readiness.Attempts)
	dur(EnvPrefix+"READINESS_INITIAL_DELAY", &c.Readiness.InitialDelay)
	dur(EnvPrefix+"READINESS_MAX_DELAY", &c.Readiness.MaxDelay)
	dur(EnvPrefix+"COMMAND_TIMEOUT", &c.Timeouts.Command)
	dur(EnvPrefix+"INSTALL_TIMEOUT", &c.Timeouts.Install)

	str(EnvPrefix+"STATUS_FORMAT", &c.Status.Format)
	str("ID", &c.Status.ID)
	str("PROXY", &c.Status.Proxy)

	num(EnvPrefix+"QUEUE_SIZE", &c.Queue.Size)
	flag(EnvPrefix+"HISTORY_ENABLED", &c.History.Enabled)
	str(EnvPrefix+"HISTORY_PATH", &c.History.Path)

	str(EnvPrefix+"SLACK_WEBHOOK_URL", &c.Notify.SlackWebhookURL)
	str(EnvPrefix+"AMQP_URL", &c.Notify.AMQPURL)
	str(EnvPrefix+"AMQP_QUEUE", &c.Notify.AMQPQueue)
	str(EnvPrefix+"SENTRY_DSN", &c.Notify.SentryDSN)
	str(EnvPrefix+"ENVIRONMENT", &c.Notify.Environment)

	return errors.Join(errs...)
}
