// Package config resolves the single hookdeploy configuration.
//
// Values are layered, lowest precedence first: built-in defaults, the YAML file,
// the process environment (after an optional .env file) and finally command-line
// flags, which callers apply on top of the returned Config.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the default search paths.
const FileName = "hookdeploy.yaml"

// Deployment variants.
const (
	VariantProcess = "process"
	VariantService = "service"
)

// Status page formats.
const (
	FormatHTML = "html"
	FormatJSON = "json"
)

// Config is the fully resolved configuration of one hookdeploy instance.
type Config struct {
	Listen   string `yaml:"listen"`
	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`

	App       AppConfig       `yaml:"app"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Readiness ReadinessConfig `yaml:"readiness"`
	Timeouts  TimeoutConfig   `yaml:"timeouts"`
	Status    StatusConfig    `yaml:"status"`
	Queue     QueueConfig     `yaml:"queue"`
	History   HistoryConfig   `yaml:"history"`
	Notify    NotifyConfig    `yaml:"notify"`

	// TestMode disables rate limiting and history. Only settable from flags.
	TestMode bool `yaml:"-"`
}

// AppConfig describes the application being redeployed.
type AppConfig struct {
	Dir            string `yaml:"dir"`
	Port           int    `yaml:"port"`
	RepoURL        string `yaml:"repo_url"`
	Variant        string `yaml:"variant"`
	Unit           string `yaml:"unit"`
	ProcessPattern string `yaml:"process_pattern"`
	StartCommand   string `yaml:"start_command"`
	PIDFile        string `yaml:"pid_file"`
	LogFile        string `yaml:"log_file"`
	Venv           string `yaml:"venv"`
	Requirements   string `yaml:"requirements"`
	Python         string `yaml:"python"`
}

type WebhookConfig struct {
	Secret          string `yaml:"secret" masq:"secret"`
	MaxPayloadBytes int64  `yaml:"max_payload_bytes"`
	RatePerMinute   int    `yaml:"rate_per_minute"`
}

// ReadinessConfig bounds the post-start readiness poll.
type ReadinessConfig struct {
	Attempts     int           `yaml:"attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

type TimeoutConfig struct {
	Command time.Duration `yaml:"command"`
	Install time.Duration `yaml:"install"`
}

// StatusConfig controls the status page. ID and Proxy are normally taken from
// the ID and PROXY environment variables.
type StatusConfig struct {
	Format string `yaml:"format"`
	ID     string `yaml:"id"`
	Proxy  string `yaml:"proxy"`
}

type QueueConfig struct {
	Size int `yaml:"size"`
}

type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// NotifyConfig holds the optional run notification sinks. Empty values disable a sink.
type NotifyConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url" masq:"secret"`
	AMQPURL         string `yaml:"amqp_url" masq:"secret"`
	AMQPQueue       string `yaml:"amqp_queue"`
	SentryDSN       string `yaml:"sentry_dsn" masq:"secret"`
	Environment     string `yaml:"environment"`
}

// Default returns the configuration used when nothing else is specified.
func Default() *Config {
	return &Config{
		Listen:   "0.0.0.0:8080",
		LogFile:  "./deployments.log",
		LogLevel: "info",
		App: AppConfig{
			Dir:            "/home/ubuntu/catty-app",
			Port:           8181,
			Variant:        VariantProcess,
			Unit:           "catty-app",
			ProcessPattern: "uvicorn",
			StartCommand:   "venv/bin/uvicorn app.main:app --host 0.0.0.0 --port {port}",
			PIDFile:        "/tmp/catty-app.pid",
			LogFile:        "/tmp/catty-app.log",
			Venv:           "venv",
			Requirements:   "requirements.txt",
			Python:         "python3",
		},
		Webhook: WebhookConfig{
			MaxPayloadBytes: 1 << 20,
			RatePerMinute:   30,
		},
		Readiness: ReadinessConfig{
			Attempts:     10,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
		Timeouts: TimeoutConfig{
			Command: 120 * time.Second,
			Install: 600 * time.Second,
		},
		Status: StatusConfig{
			Format: FormatHTML,
			ID:     "your-id",
			Proxy:  "course.prafdin.ru",
		},
		Queue: QueueConfig{Size: 16},
		History: HistoryConfig{
			Enabled: true,
			Path:    "./deployments.db",
		},
		Notify: NotifyConfig{
			AMQPQueue:   "hookdeploy.runs",
			Environment: "production",
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when path
// is empty) and the process environment. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	return cfg, nil
}

// AppURL is the externally reachable address of the application shown on the status page.
func (c *Config) AppURL() string {
	return fmt.Sprintf("http://app.%s.%s", c.Status.ID, c.Status.Proxy)
}

// Port returns the numeric port of the Listen address, or 0 if it has none.
func (c *Config) Port() int {
	idx := strings.LastIndex(c.Listen, ":")
	if idx < 0 {
		return 0
	}
	var port int
	if _, err := fmt.Sscanf(c.Listen[idx+1:], "%d", &port); err != nil {
		return 0
	}
	return port
}

// Secrets lists configured values that must never appear in logs or step details.
func (c *Config) Secrets() []string {
	var out []string
	for _, s := range []string{c.Webhook.Secret, c.Notify.SlackWebhookURL, c.Notify.AMQPURL, c.Notify.SentryDSN} {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
