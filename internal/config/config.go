// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing or malformed, the process
// exits with an error. A .env file (DOTENV_FILE, default ".env") is loaded
// first when present; real environment variables take precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// WebhookActions are the actions a WEBHOOK_<ACTION> URL can be set for.
var WebhookActions = []string{
	"ENRICH_JOB", "GENERATE_PDF", "MARK_SENT", "SEND_EMAIL", "RECALCULATE_SCORES",
	"KEEP", "REFUSE", "SAVE_DRAFT", "REJECT_DRAFT",
}

// Config holds all runtime configuration for the dashboard service.
type Config struct {
	Port     string
	GRPCPort string

	SpreadsheetID   string
	SheetsEndpoint  string
	SheetsRateLimit float64
	SheetsBurst     int
	GoogleToken     string

	DatabaseURL string
	RedisURL    string

	Webhooks         map[string]string
	TriggerTimeout   time.Duration
	TriggerAttempts  int
	TriggerBackoff   time.Duration
	TriggerRateLimit int
	TriggerWorkers   int
	TriggerQueue     int

	PollFast     time.Duration
	PollSlow     time.Duration
	PatchTTL     time.Duration
	WriteTimeout time.Duration
	NoticeTTL    time.Duration
	SessionTTL   time.Duration

	CacheFile       string
	CacheMaxEntries int

	LogLevel  slog.Level
	LogFormat string
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	if err := loadDotenv(); err != nil {
		return nil, err
	}

	id := os.Getenv("SPREADSHEET_ID")
	if id == "" {
		return nil, fmt.Errorf("SPREADSHEET_ID is required")
	}

	p := parser{}
	cfg := &Config{
		Port:     stringEnv("PORT", "8090"),
		GRPCPort: stringEnv("GRPC_PORT", "9090"),

		SpreadsheetID:   id,
		SheetsEndpoint:  os.Getenv("SHEETS_ENDPOINT"),
		SheetsRateLimit: p.float("SHEETS_RPS", 1),
		SheetsBurst:     p.int("SHEETS_BURST", 5),
		GoogleToken:     os.Getenv("GOOGLE_TOKEN"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		Webhooks:         webhooks(),
		TriggerTimeout:   p.duration("TRIGGER_TIMEOUT", 30*time.Second),
		TriggerAttempts:  p.int("TRIGGER_ATTEMPTS", 1),
		TriggerBackoff:   p.duration("TRIGGER_BACKOFF", 500*time.Millisecond),
		TriggerRateLimit: p.int("TRIGGER_RPS", 5),
		TriggerWorkers:   p.int("TRIGGER_WORKERS", 2),
		TriggerQueue:     p.int("TRIGGER_QUEUE", 64),

		PollFast:     p.duration("POLL_FAST", 10*time.Second),
		PollSlow:     p.duration("POLL_SLOW", 60*time.Second),
		PatchTTL:     p.duration("PATCH_TTL", 0),
		WriteTimeout: p.duration("WRITE_TIMEOUT", 30*time.Second),
		NoticeTTL:    p.duration("NOTICE_TTL", 5*time.Second),
		SessionTTL:   p.duration("SESSION_TTL", time.Hour),

		CacheFile:       os.Getenv("CACHE_FILE"),
		CacheMaxEntries: p.int("CACHE_MAX_ENTRIES", 1024),

		LogLevel:  p.level("LOG_LEVEL", slog.LevelInfo),
		LogFormat: strings.ToLower(stringEnv("LOG_FORMAT", "text")),
	}
	if err := p.err(); err != nil {
		return nil, err
	}

	switch {
	case cfg.LogFormat != "text" && cfg.LogFormat != "json":
		return nil, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	case cfg.PollFast > cfg.PollSlow:
		return nil, fmt.Errorf("POLL_FAST (%s) must not exceed POLL_SLOW (%s)", cfg.PollFast, cfg.PollSlow)
	case cfg.TriggerAttempts < 1:
		return nil, fmt.Errorf("TRIGGER_ATTEMPTS must be at least 1")
	}
	return cfg, nil
}

// NewLogger builds the process logger from the configured level and format.
func (c *Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func loadDotenv() error {
	path := stringEnv("DOTENV_FILE", ".env")
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func webhooks() map[string]string {
	out := make(map[string]string, len(WebhookActions))
	for _, a := range WebhookActions {
		if u := strings.TrimSpace(os.Getenv("WEBHOOK_" + a)); u != "" {
			out[a] = u
		}
	}
	return out
}

func stringEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// parser collects every malformed variable so they are reported together.
type parser struct{ errs []error }

func (p *parser) err() error { return errors.Join(p.errs...) }

func (p *parser) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		p.errs = append(p.errs, fmt.Errorf("%s must be a non-negative integer, got %q", key, v))
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		p.errs = append(p.errs, fmt.Errorf("%s must be a positive number, got %q", key, v))
		return def
	}
	return f
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		p.errs = append(p.errs, fmt.Errorf("%s must be a duration like 10s, got %q", key, v))
		return def
	}
	return d
}

func (p *parser) level(key string, def slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return l
}
