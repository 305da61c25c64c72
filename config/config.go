// Package config assembles process configuration for the scanner
// binaries: compiled defaults, then an optional YAML file, then
// environment overrides. The rule-engine tunables are not here; those
// live in SQLite and are editable at runtime through the API.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds everything the binaries read at startup.
type Config struct {
	RedisURL string `yaml:"redis_url"`
	DBPath   string `yaml:"db_path"`

	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	JWTSecret  string `yaml:"jwt_secret"`
	AdminEmail string `yaml:"admin_email"`

	// Feed selects the bar source: alpaca, sim or replay.
	Feed         string `yaml:"feed"`
	ReplayFile   string `yaml:"replay_file"`
	AlpacaKey    string `yaml:"alpaca_key"`
	AlpacaSecret string `yaml:"alpaca_secret"`
	AlpacaFeed   string `yaml:"alpaca_feed"`

	KeepBars      int `yaml:"keep_bars"`
	RetentionDays int `yaml:"retention_days"`

	PushoverToken string `yaml:"pushover_token"`
	PushWorkers   int    `yaml:"push_workers"`
	WSSendBuffer  int    `yaml:"ws_send_buffer"`
	AlertWebhook  string `yaml:"alert_webhook"`

	// Per-user request budgets per minute, zero disables the throttle.
	RateRead     int `yaml:"rate_read"`
	RateTriggers int `yaml:"rate_triggers"`
	RateWrite    int `yaml:"rate_write"`
}

func defaults() *Config {
	return &Config{
		RedisURL:      "redis://localhost:6379/0",
		DBPath:        "data/scanner.db",
		HTTPAddr:      ":8000",
		MetricsAddr:   ":9100",
		Feed:          "alpaca",
		AlpacaFeed:    "iex",
		KeepBars:      180,
		RetentionDays: 30,
		PushWorkers:   2,
		WSSendBuffer:  256,
		RateRead:      120,
		RateTriggers:  240,
		RateWrite:     30,
	}
}

// Load builds the configuration. A .env file in the working directory is
// folded into the environment first, then SCANNER_CONFIG_FILE may name a
// YAML file, and individual variables override both.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path := os.Getenv("SCANNER_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
		log.Printf("[config] loaded %s", path)
	}

	applyEnvOverrides(cfg)

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	strEnv("REDIS_URL", &cfg.RedisURL)
	strEnv("SCANNER_DB_PATH", &cfg.DBPath)
	strEnv("SCANNER_HTTP_ADDR", &cfg.HTTPAddr)
	strEnv("SCANNER_METRICS_ADDR", &cfg.MetricsAddr)
	strEnv("JWT_SECRET", &cfg.JWTSecret)
	strEnv("SCANNER_ADMIN_EMAIL", &cfg.AdminEmail)
	strEnv("SCANNER_FEED", &cfg.Feed)
	strEnv("SCANNER_REPLAY_FILE", &cfg.ReplayFile)
	strEnv("ALPACA_API_KEY", &cfg.AlpacaKey)
	strEnv("ALPACA_API_SECRET", &cfg.AlpacaSecret)
	strEnv("ALPACA_DATA_FEED", &cfg.AlpacaFeed)
	strEnv("PUSHOVER_APP_TOKEN", &cfg.PushoverToken)
	strEnv("SCANNER_ALERT_WEBHOOK", &cfg.AlertWebhook)

	intEnv("SCANNER_KEEP_BARS", &cfg.KeepBars)
	intEnv("SCANNER_RETENTION_DAYS", &cfg.RetentionDays)
	intEnv("SCANNER_PUSH_WORKERS", &cfg.PushWorkers)
	intEnv("SCANNER_WS_SEND_BUFFER", &cfg.WSSendBuffer)
	intEnv("SCANNER_RATE_READ", &cfg.RateRead)
	intEnv("SCANNER_RATE_TRIGGERS", &cfg.RateTriggers)
	intEnv("SCANNER_RATE_WRITE", &cfg.RateWrite)
}

func strEnv(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func intEnv(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return
	}
	*dst = n
}
