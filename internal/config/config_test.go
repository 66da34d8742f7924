package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var envKeys = []string{
	"DATABASE_PATH", "LOG_LEVEL", "HTTP_ADDR", "SOURCES_FILE",
	"FETCH_TIMEOUT", "FETCH_CONCURRENCY", "AGGREGATE_INTERVAL",
	"TELEGRAM_BOT_TOKEN", "ALLOWED_USERS",
}

func defaults() *Config {
	return &Config{
		DatabasePath:     "./data/news.db",
		LogLevel:         "info",
		HTTPAddr:         ":8080",
		SourcesFile:      "./sources.yaml",
		FetchTimeout:     30 * time.Second,
		FetchConcurrency: 4,
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    func() *Config
		wantErr bool
	}{
		{
			name: "defaults applied",
			env:  map[string]string{},
			want: defaults,
		},
		{
			name: "all values set",
			env: map[string]string{
				"DATABASE_PATH":      "/tmp/news.db",
				"LOG_LEVEL":          "debug",
				"HTTP_ADDR":          "127.0.0.1:9000",
				"SOURCES_FILE":       "/etc/news/sources.yaml",
				"FETCH_TIMEOUT":      "10s",
				"FETCH_CONCURRENCY":  "8",
				"AGGREGATE_INTERVAL": "15m",
				"TELEGRAM_BOT_TOKEN": "tok",
				"ALLOWED_USERS":      "111,222,333",
			},
			want: func() *Config {
				return &Config{
					DatabasePath:      "/tmp/news.db",
					LogLevel:          "debug",
					HTTPAddr:          "127.0.0.1:9000",
					SourcesFile:       "/etc/news/sources.yaml",
					FetchTimeout:      10 * time.Second,
					FetchConcurrency:  8,
					AggregateInterval: 15 * time.Minute,
					TelegramBotToken:  "tok",
					AllowedUsers:      []int64{111, 222, 333},
				}
			},
		},
		{
			name: "allowed users with spaces",
			env:  map[string]string{"ALLOWED_USERS": " 10 , 20 , "},
			want: func() *Config {
				c := defaults()
				c.AllowedUsers = []int64{10, 20}
				return c
			},
		},
		{
			name:    "invalid user id",
			env:     map[string]string{"ALLOWED_USERS": "123,abc"},
			wantErr: true,
		},
		{
			name:    "malformed timeout",
			env:     map[string]string{"FETCH_TIMEOUT": "soon"},
			wantErr: true,
		},
		{
			name:    "zero timeout",
			env:     map[string]string{"FETCH_TIMEOUT": "0s"},
			wantErr: true,
		},
		{
			name:    "negative interval",
			env:     map[string]string{"AGGREGATE_INTERVAL": "-1m"},
			wantErr: true,
		},
		{
			name:    "zero concurrency",
			env:     map[string]string{"FETCH_CONCURRENCY": "0"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range envKeys {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want(), got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadDotenv(t *testing.T) {
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
	// godotenv does not override variables that are already set, even empty ones.
	_ = os.Unsetenv("HTTP_ADDR")
	_ = os.Unsetenv("LOG_LEVEL")
	t.Setenv("DATABASE_PATH", "/from/env.db")

	path := filepath.Join(t.TempDir(), ".env")
	content := "HTTP_ADDR=:9999\nLOG_LEVEL=warn\nDATABASE_PATH=/from/file.db\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	LoadDotenv(filepath.Join(t.TempDir(), "missing.env"), path)
	t.Cleanup(func() {
		_ = os.Unsetenv("HTTP_ADDR")
		_ = os.Unsetenv("LOG_LEVEL")
	})

	got, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(":9999", got.HTTPAddr); diff != "" {
		t.Errorf("HTTPAddr mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("warn", got.LogLevel); diff != "" {
		t.Errorf("LogLevel mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("/from/env.db", got.DatabasePath); diff != "" {
		t.Errorf("DatabasePath mismatch (-want +got):\n%s", diff)
	}
}

func TestIsUserAllowed(t *testing.T) {
	tests := []struct {
		name         string
		allowedUsers []int64
		userID       int64
		want         bool
	}{
		{
			name:         "empty list allows everyone",
			allowedUsers: nil,
			userID:       42,
			want:         true,
		},
		{
			name:         "user in list",
			allowedUsers: []int64{10, 20, 30},
			userID:       20,
			want:         true,
		},
		{
			name:         "user not in list",
			allowedUsers: []int64{10, 20, 30},
			userID:       99,
			want:         false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{AllowedUsers: tt.allowedUsers}
			got := cfg.IsUserAllowed(tt.userID)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("IsUserAllowed() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ParseLevel(tt.in)); diff != "" {
				t.Errorf("ParseLevel() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
