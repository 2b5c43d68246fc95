// Package config loads service configuration from defaults, an optional
// YAML file, a .env file and the environment, in increasing precedence.
// Command-line flags are applied on top by the binaries.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Storage struct {
	// memory: everything in process.
	// postgres: jobs, campaigns and summaries in Postgres, trades in ClickHouse.
	// redis: jobs in Redis; the other record sets use Postgres and
	// ClickHouse when their DSNs are set and memory otherwise.
	Backend       string `yaml:"backend" env:"STORAGE_BACKEND"`
	PostgresDSN   string `yaml:"postgres_dsn" env:"POSTGRES_DSN"`
	PostgresConns int32  `yaml:"postgres_max_conns" env:"POSTGRES_MAX_CONNS"`
	ClickhouseDSN string `yaml:"clickhouse_dsn" env:"CLICKHOUSE_DSN"`
	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"REDIS_DB"`
	RedisPrefix   string `yaml:"redis_prefix" env:"REDIS_PREFIX"`
}

type Queue struct {
	Workers      int           `yaml:"workers" env:"WORKERS"`
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	StoreRetries int           `yaml:"store_retries" env:"RESULT_STORE_RETRIES"`
	Retention    time.Duration `yaml:"retention" env:"RESULT_RETENTION"`
	SweepEvery   time.Duration `yaml:"sweep_every" env:"SWEEP_INTERVAL"`
}

type Trading struct {
	ViabilityThreshold     float64       `yaml:"viability_threshold" env:"VIABILITY_THRESHOLD"`
	InitialBalance         float64       `yaml:"initial_balance" env:"INITIAL_BALANCE"`
	FailureBackoff         time.Duration `yaml:"failure_backoff" env:"FAILURE_BACKOFF"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures" env:"MAX_CONSECUTIVE_FAILURES"` // negative retries forever
	AutoStart              bool          `yaml:"auto_start" env:"AUTO_START"`
	OverrideProbability    float64       `yaml:"override_probability" env:"OVERRIDE_PROBABILITY"`
	Seed                   uint64        `yaml:"seed" env:"RANDOM_SEED"` // 0 seeds from the clock
	ProgressEvery          time.Duration `yaml:"progress_every" env:"PROGRESS_INTERVAL"`
}

type Advisory struct {
	APIKey        string        `yaml:"api_key" env:"GROQ_API_KEY"` // empty disables the advisory sources
	BaseURL       string        `yaml:"base_url" env:"ADVISORY_BASE_URL"`
	Model         string        `yaml:"model" env:"ADVISORY_MODEL"`
	Timeout       time.Duration `yaml:"timeout" env:"ADVISORY_TIMEOUT"`
	RatePerMinute float64       `yaml:"rate_per_minute" env:"ADVISORY_RATE_PER_MINUTE"`
	MaxTokens     int           `yaml:"max_tokens" env:"ADVISORY_MAX_TOKENS"`
}

type Market struct {
	IdleTTL      time.Duration `yaml:"idle_ttl" env:"TOKEN_IDLE_TTL"`
	JanitorEvery time.Duration `yaml:"janitor_every" env:"TOKEN_JANITOR_INTERVAL"`
}

type Feed struct {
	URL      string        `yaml:"url" env:"CAMPAIGN_FEED_URL"`
	File     string        `yaml:"file" env:"CAMPAIGN_FILE"`
	Interval time.Duration `yaml:"interval" env:"CAMPAIGN_FEED_INTERVAL"`
	Timeout  time.Duration `yaml:"timeout" env:"CAMPAIGN_FEED_TIMEOUT"`
	Retries  int           `yaml:"retries" env:"CAMPAIGN_FEED_RETRIES"`
	Fallback bool          `yaml:"fallback" env:"CAMPAIGN_FEED_FALLBACK"` // serve built-in campaigns when the feed fails
}

type HTTP struct {
	Addr string `yaml:"addr" env:"HTTP_ADDR"`
}

// Config is the full service configuration.
type Config struct {
	Storage  Storage  `yaml:"storage"`
	Queue    Queue    `yaml:"queue"`
	Trading  Trading  `yaml:"trading"`
	Advisory Advisory `yaml:"advisory"`
	Market   Market   `yaml:"market"`
	Feed     Feed     `yaml:"feed"`
	HTTP     HTTP     `yaml:"http"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Storage: Storage{
			Backend:       BackendMemory,
			PostgresConns: 10,
			RedisAddr:     "localhost:6379",
		},
		Queue: Queue{
			Workers:      4,
			PollInterval: 500 * time.Millisecond,
			StoreRetries: 5,
			Retention:    7 * 24 * time.Hour,
			SweepEvery:   time.Hour,
		},
		Trading: Trading{
			ViabilityThreshold:     5.0,
			InitialBalance:         10000,
			FailureBackoff:         5 * time.Second,
			MaxConsecutiveFailures: 10,
			AutoStart:              true,
			OverrideProbability:    0.05,
			ProgressEvery:          time.Second,
		},
		Advisory: Advisory{
			BaseURL:       "https://api.groq.com/openai/v1",
			Model:         "llama3-70b-8192",
			Timeout:       15 * time.Second,
			RatePerMinute: 30,
			MaxTokens:     1024,
		},
		Market: Market{
			IdleTTL:      30 * time.Minute,
			JanitorEvery: 5 * time.Minute,
		},
		Feed: Feed{
			Interval: 10 * time.Minute,
			Timeout:  30 * time.Second,
			Retries:  2,
			Fallback: true,
		},
		HTTP: HTTP{Addr: ":8080"},
	}
}

// Load builds the configuration. path and envFile are optional; a missing
// envFile is ignored, a missing path is an error.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if envFile != "" {
		// godotenv never overrides variables already set in the process.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" || c.Storage.ClickhouseDSN == "" {
			errs = append(errs, errors.New("postgres backend needs postgres_dsn and clickhouse_dsn"))
		}
	case BackendRedis:
		if c.Storage.RedisAddr == "" {
			errs = append(errs, errors.New("redis backend needs redis_addr"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}

	if c.Queue.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Queue.Workers))
	}
	if c.Queue.PollInterval <= 0 {
		errs = append(errs, errors.New("poll_interval must be positive"))
	}
	if c.Queue.SweepEvery <= 0 || c.Queue.Retention <= 0 {
		errs = append(errs, errors.New("sweep_every and retention must be positive"))
	}
	if c.Market.JanitorEvery <= 0 || c.Market.IdleTTL <= 0 {
		errs = append(errs, errors.New("janitor_every and idle_ttl must be positive"))
	}
	if (c.Feed.URL != "" || c.Feed.File != "") && c.Feed.Interval <= 0 {
		errs = append(errs, errors.New("feed interval must be positive"))
	}
	if c.Trading.InitialBalance <= 0 {
		errs = append(errs, fmt.Errorf("initial_balance must be positive, got %v", c.Trading.InitialBalance))
	}
	if c.Trading.ViabilityThreshold < 0 || c.Trading.ViabilityThreshold > 10 {
		errs = append(errs, fmt.Errorf("viability_threshold must be in [0,10], got %v", c.Trading.ViabilityThreshold))
	}
	if p := c.Trading.OverrideProbability; p < 0 || p > 1 {
		errs = append(errs, fmt.Errorf("override_probability must be in [0,1], got %v", p))
	}
	if c.Advisory.APIKey != "" && (c.Advisory.BaseURL == "" || c.Advisory.Model == "") {
		errs = append(errs, errors.New("advisory needs base_url and model"))
	}
	if c.Feed.URL != "" && c.Feed.File != "" {
		errs = append(errs, errors.New("set at most one of feed url and feed file"))
	}

	return errors.Join(errs...)
}
