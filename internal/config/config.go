// Package config handles application configuration from environment variables.
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
	DatabasePath string
	LogLevel     string
	HTTPAddr     string

	ModelURL     string
	ModelAPIKey  string
	ModelTimeout time.Duration
	StageTimeout time.Duration

	TrendFeeds []string
	TrendTTL   time.Duration

	RedisURL     string
	KafkaBrokers []string

	TelegramBotToken string
	OperatorChatID   int64

	JobSigningKey       string
	CalibrationInterval time.Duration
}

// Load reads configuration from environment variables and applies defaults.
// It does not enforce variables only the server needs; see RequireServer.
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath:     envOr("DATABASE_PATH", "./data/viralscope.db"),
		LogLevel:         strings.ToLower(envOr("LOG_LEVEL", "info")),
		HTTPAddr:         envOr("HTTP_ADDR", ":8080"),
		ModelURL:         strings.TrimRight(os.Getenv("MODEL_URL"), "/"),
		ModelAPIKey:      os.Getenv("MODEL_API_KEY"),
		TrendFeeds:       splitList(os.Getenv("TREND_FEEDS")),
		RedisURL:         os.Getenv("REDIS_URL"),
		KafkaBrokers:     splitList(os.Getenv("KAFKA_BROKERS")),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		JobSigningKey:    os.Getenv("JOB_SIGNING_KEY"),
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid LOG_LEVEL %q", cfg.LogLevel)
	}

	var err error
	if cfg.ModelTimeout, err = duration("MODEL_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.StageTimeout, err = duration("STAGE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.TrendTTL, err = duration("TREND_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.CalibrationInterval, err = duration("CALIBRATION_INTERVAL", 24*time.Hour); err != nil {
		return nil, err
	}

	if raw := strings.TrimSpace(os.Getenv("TELEGRAM_OPERATOR_CHAT")); raw != "" {
		cfg.OperatorChatID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_OPERATOR_CHAT %q: %w", raw, err)
		}
	}
	if cfg.TelegramBotToken != "" && cfg.OperatorChatID == 0 {
		return nil, fmt.Errorf("TELEGRAM_OPERATOR_CHAT is required when TELEGRAM_BOT_TOKEN is set")
	}

	return cfg, nil
}

// RequireServer checks the variables the HTTP server cannot start without.
func (c *Config) RequireServer() error {
	if c.ModelURL == "" {
		return fmt.Errorf("MODEL_URL is required")
	}
	return c.RequireJobKey()
}

// RequireJobKey checks that trusted-caller tokens can be signed and verified.
func (c *Config) RequireJobKey() error {
	if c.JobSigningKey == "" {
		return fmt.Errorf("JOB_SIGNING_KEY is required")
	}
	return nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func duration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", key, raw)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
