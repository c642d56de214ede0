// Package config assembles the immutable runtime configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"fsentry/internal/logging"
	"fsentry/internal/notify"
)

var logger = logging.GetLogger().WithPrefix("config")

// Config is built once at startup and passed by reference into the
// monitor; nothing mutates it afterwards.
type Config struct {
	Root               string
	Interval           time.Duration
	ExcludeExtensions  []string
	ExcludeDirectories []string
	StatePath          string
	BackupPath         string
	HTTPAddr           string
	LogLevel           string
	LogFile            string
	Email              notify.EmailConfig
}

// Default returns the baseline configuration before env and flags
func Default() *Config {
	return &Config{
		Interval:           10 * time.Second,
		ExcludeExtensions:  []string{".tmp", ".swp"},
		ExcludeDirectories: []string{".git"},
		StatePath:          "hashes.json",
		BackupPath:         "hashes_backup.json",
		LogLevel:           "INFO",
		Email: notify.EmailConfig{
			Host:   "smtp.gmail.com",
			Port:   587,
			Policy: notify.PolicyBatch,
		},
	}
}

// Load builds a Config from defaults overlaid with the environment.
// If envFile is non-empty it must exist; otherwise a .env in the
// working directory is loaded when present.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err == nil {
		logger.Debug("Loaded .env from working directory")
	}

	cfg := Default()

	if v := os.Getenv("FSENTRY_ROOT"); v != "" {
		cfg.Root = v
	}
	if v := os.Getenv("FSENTRY_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid FSENTRY_INTERVAL %q: %w", v, err)
		}
		cfg.Interval = d
	}
	if v := os.Getenv("FSENTRY_EXCLUDE_EXT"); v != "" {
		cfg.ExcludeExtensions = splitList(v)
	}
	if v := os.Getenv("FSENTRY_EXCLUDE_DIR"); v != "" {
		cfg.ExcludeDirectories = splitList(v)
	}
	if v := os.Getenv("FSENTRY_STATE_FILE"); v != "" {
		cfg.StatePath = v
	}
	if v := os.Getenv("FSENTRY_BACKUP_FILE"); v != "" {
		cfg.BackupPath = v
	}
	if v := os.Getenv("FSENTRY_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FSENTRY_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}

	cfg.Email.Sender = os.Getenv("EMAIL_SENDER")
	cfg.Email.Password = os.Getenv("EMAIL_PASSWORD")
	cfg.Email.Receiver = os.Getenv("EMAIL_RECEIVER")
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.Host = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SMTP_PORT %q: %w", v, err)
		}
		cfg.Email.Port = port
	}
	if v := os.Getenv("FSENTRY_EMAIL_POLICY"); v != "" {
		cfg.Email.Policy = notify.EmailPolicy(v)
	}

	return cfg, nil
}

// Validate checks the configuration. Failures here are fatal: they
// terminate the process before monitoring begins.
func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("monitored root directory is required")
	}
	info, err := os.Stat(c.Root)
	if err != nil {
		return fmt.Errorf("monitored root %s is not accessible: %w", c.Root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("monitored root %s is not a directory", c.Root)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("scan interval must be positive, got %s", c.Interval)
	}
	if c.StatePath == "" || c.BackupPath == "" {
		return fmt.Errorf("state and backup file paths are required")
	}
	if c.StatePath == c.BackupPath {
		return fmt.Errorf("state and backup file paths must differ")
	}
	switch c.Email.Policy {
	case notify.PolicyBatch, notify.PolicyPerEvent:
	default:
		return fmt.Errorf("unknown email policy %q", c.Email.Policy)
	}
	return nil
}

// splitList parses a comma-separated list, trimming blanks
func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
