// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath      string
	LogLevel          string
	HTTPAddr          string
	SourcesFile       string
	FetchTimeout      time.Duration
	FetchConcurrency  int
	AggregateInterval time.Duration
	TelegramBotToken  string
	AllowedUsers      []int64
}

// LoadDotenv reads the given .env files into the process environment.
// Missing files are ignored and variables already set are kept.
func LoadDotenv(files ...string) {
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath: envOr("DATABASE_PATH", "./data/news.db"),
		LogLevel:     envOr("LOG_LEVEL", "info"),
		HTTPAddr:     envOr("HTTP_ADDR", ":8080"),
		SourcesFile:  envOr("SOURCES_FILE", "./sources.yaml"),
		// Telegram is optional; the bot only starts when a token is set.
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	var err error
	if cfg.FetchTimeout, err = durationEnv("FETCH_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout <= 0 {
		return nil, fmt.Errorf("FETCH_TIMEOUT must be positive")
	}
	if cfg.AggregateInterval, err = durationEnv("AGGREGATE_INTERVAL", 0); err != nil {
		return nil, err
	}
	if cfg.AggregateInterval < 0 {
		return nil, fmt.Errorf("AGGREGATE_INTERVAL cannot be negative")
	}

	cfg.FetchConcurrency = 4
	if raw := os.Getenv("FETCH_CONCURRENCY"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid FETCH_CONCURRENCY %q", raw)
		}
		cfg.FetchConcurrency = n
	}

	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			cfg.AllowedUsers = append(cfg.AllowedUsers, uid)
		}
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

// Logger returns a text logger on stderr at the configured level.
func (c *Config) Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: ParseLevel(c.LogLevel)}))
}

// ParseLevel maps a LOG_LEVEL value to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}
