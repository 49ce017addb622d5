// Package config handles application configuration from environment variables
// and the targets file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath  string
	LogLevel      string
	TargetsFile   string
	CSVReportPath string
	MetricsAddr   string

	// TelegramBotToken enables the Telegram reporter when set.
	TelegramBotToken string
	AllowedUsers     []int64
	AlertChats       []int64

	FetchTimeout          time.Duration
	CheckInterval         time.Duration
	Concurrency           int
	FailureAlertThreshold int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath:     envOrDefault("DATABASE_PATH", "./data/loginwatch.db"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		TargetsFile:      envOrDefault("TARGETS_FILE", "./targets.yaml"),
		CSVReportPath:    os.Getenv("CSV_REPORT_PATH"),
		MetricsAddr:      os.Getenv("METRICS_ADDR"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	var err error
	if cfg.AllowedUsers, err = parseIDs("ALLOWED_USERS"); err != nil {
		return nil, err
	}
	if cfg.AlertChats, err = parseIDs("ALERT_CHATS"); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = parseDuration("FETCH_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.CheckInterval, err = parseDuration("CHECK_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Concurrency, err = parsePositive("CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.FailureAlertThreshold, err = parsePositive("FAILURE_ALERT_THRESHOLD", 3); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseIDs(key string) ([]int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return nil, nil
	}
	var ids []int64
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ID %q in %s: %w", s, key, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, raw)
	}
	return d, nil
}

func parsePositive(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("%s must be at least 1, got %d", key, n)
	}
	return n, nil
}
