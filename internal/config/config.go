package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

const (
	defaultSourceURL       = "https://doh.wa.gov/sites/default/files/Data/Downloadable_Wastewater.csv"
	defaultSQLitePath      = "wastewater.sqlite"
	defaultHTTPAddr        = ":8080"
	defaultPollInterval    = "6h"
	defaultFetchTimeout    = "30s"
	defaultKnownKeyCache   = 10000
	defaultTrendTopic      = "wastewater-trends"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	SourceURL   string
	SQLitePath  string
	DatabaseURL string // selects Postgres when set

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	PollInterval time.Duration
	FetchTimeout time.Duration
	RunOnce      bool

	KnownKeyCacheSize int

	// Trend notification sinks. Each is disabled when unset.
	NotifyWebhookURL string
	KafkaBrokers     []string
	KafkaTrendTopic  string
	TrendPathogens   []string
}

// Load reads configuration from environment variables, after an optional
// .env file, applying defaults where unset.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		SourceURL:        sharedcfg.EnvOrDefault("URL_WAGOV_WASTEWATER", defaultSourceURL),
		SQLitePath:       sharedcfg.EnvOrDefault("SQLITE_DB_PATH", defaultSQLitePath),
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		HTTPAddr:         sharedcfg.EnvOrDefault("HTTP_ADDR", defaultHTTPAddr),
		LogLevel:         sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		NotifyWebhookURL: strings.TrimSpace(os.Getenv("NOTIFY_WEBHOOK_URL")),
		KafkaBrokers:     sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaTrendTopic:  sharedcfg.EnvOrDefault("KAFKA_TREND_TOPIC", defaultTrendTopic),
		TrendPathogens:   sharedcfg.ParseBrokers(os.Getenv("TREND_PATHOGENS")),
	}

	var err error
	if cfg.ShutdownTimeout, err = sharedcfg.ParseShutdownTimeout(); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = parsePositiveDuration("POLL_INTERVAL", defaultPollInterval); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = parsePositiveDuration("FETCH_TIMEOUT", defaultFetchTimeout); err != nil {
		return nil, err
	}
	if cfg.RunOnce, err = parseBool("RUN_ONCE"); err != nil {
		return nil, err
	}
	if cfg.KnownKeyCacheSize, err = parseNonNegativeInt("KNOWN_KEY_CACHE_SIZE", defaultKnownKeyCache); err != nil {
		return nil, err
	}

	if err := validateURL("URL_WAGOV_WASTEWATER", cfg.SourceURL); err != nil {
		return nil, err
	}
	if cfg.NotifyWebhookURL != "" {
		if err := validateURL("NOTIFY_WEBHOOK_URL", cfg.NotifyWebhookURL); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

func parseNonNegativeInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return n, nil
}

func parseBool(key string) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func validateURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid %s: scheme must be http or https", key)
	}
	return nil
}
