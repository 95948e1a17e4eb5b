package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"BotInvest/internal/calculator"
	"BotInvest/internal/collector"
	"BotInvest/internal/screener"
)

// Config holds all application configuration.
type Config struct {
	Ledger struct {
		StartingCash string `yaml:"starting_cash"`
	} `yaml:"ledger"`
	Store struct {
		Driver string `yaml:"driver"` // json | sqlite | postgres | memory
		Path   string `yaml:"path"`
		DSN    string `yaml:"dsn"`
	} `yaml:"store"`
	Data struct {
		Source       string        `yaml:"source"` // mock | csv
		Dir          string        `yaml:"dir"`
		FallbackMock bool          `yaml:"fallback_mock"` // csv misses fall through to synthetic bars
		LookbackDays int           `yaml:"lookback_days"`
		CacheTTL     time.Duration `yaml:"cache_ttl"`
		CacheMaxCost int64         `yaml:"cache_max_cost"`
	} `yaml:"data"`
	Indicators calculator.Config `yaml:"indicators"`
	Screener   struct {
		Universe        []string `yaml:"universe"`
		screener.Config `yaml:",inline"`
	} `yaml:"screener"`
	Schedule struct {
		ScreenCron   string `yaml:"screen_cron"`
		SnapshotCron string `yaml:"snapshot_cron"`
		RunOnStart   bool   `yaml:"run_on_start"`
	} `yaml:"schedule"`
	Recorder struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"recorder"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
	Metrics struct {
		Addr      string `yaml:"addr"`
		Namespace string `yaml:"namespace"`
	} `yaml:"metrics"`
	Tracing struct {
		Enabled     bool   `yaml:"enabled"`
		ServiceName string `yaml:"service_name"`
		Pretty      bool   `yaml:"pretty"`
	} `yaml:"tracing"`
}

// Default returns a configuration that runs entirely offline: mock prices and
// a JSON ledger under data/.
func Default() *Config {
	cfg := &Config{}
	cfg.Ledger.StartingCash = "100000"
	cfg.Store.Driver = "json"
	cfg.Store.Path = "data/ledger.json"
	cfg.Data.Source = "mock"
	cfg.Data.Dir = "data/prices"
	cfg.Data.LookbackDays = 365
	cfg.Data.CacheTTL = 15 * time.Minute
	cfg.Data.CacheMaxCost = 1 << 20
	cfg.Indicators = calculator.DefaultConfig()
	cfg.Screener.Universe = append([]string(nil), collector.DefaultUniverse...)
	cfg.Screener.Config = screener.DefaultConfig()
	cfg.Schedule.ScreenCron = "0 30 8 * * 1-5"
	cfg.Schedule.SnapshotCron = "0 0 22 * * 1-5"
	cfg.Recorder.SQLitePath = "data/botinvest.db"
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Metrics.Namespace = "botinvest"
	cfg.Tracing.ServiceName = "botinvest"
	return cfg
}

// Load reads config from a YAML file over the defaults, then applies
// environment variable overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("BOTINVEST_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("BOTINVEST_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("BOTINVEST_POSTGRES_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("BOTINVEST_DATA_DIR"); v != "" {
		cfg.Data.Dir = v
		cfg.Data.Source = "csv"
	}
	if v := os.Getenv("BOTINVEST_STARTING_CASH"); v != "" {
		cfg.Ledger.StartingCash = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SCREEN_CRON"); v != "" {
		cfg.Schedule.ScreenCron = v
	}
	if v := os.Getenv("SNAPSHOT_CRON"); v != "" {
		cfg.Schedule.SnapshotCron = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("TRACING_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tracing.Enabled = b
		}
	}
	if os.Getenv("RUN_ON_START") == "true" {
		cfg.Schedule.RunOnStart = true
	}

	return cfg, nil
}

// StartingCash parses ledger.starting_cash.
func (c *Config) StartingCash() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.Ledger.StartingCash)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger.starting_cash: %w", err)
	}
	return d, nil
}

// Validate checks that all required fields are set and consistent.
func (c *Config) Validate() error {
	cash, err := c.StartingCash()
	if err != nil {
		return err
	}
	if !cash.IsPositive() {
		return fmt.Errorf("ledger.starting_cash must be positive")
	}

	switch c.Store.Driver {
	case "json", "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for driver %q", c.Store.Driver)
		}
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for driver postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("store.driver %q is not one of json, sqlite, postgres, memory", c.Store.Driver)
	}

	switch c.Data.Source {
	case "mock":
	case "csv":
		if c.Data.Dir == "" {
			return fmt.Errorf("data.dir is required for source csv")
		}
	default:
		return fmt.Errorf("data.source %q is not one of mock, csv", c.Data.Source)
	}
	if c.Data.LookbackDays <= 0 {
		return fmt.Errorf("data.lookback_days must be positive")
	}

	if err := c.Indicators.Validate(); err != nil {
		return fmt.Errorf("indicators: %w", err)
	}
	if err := c.Screener.Thresholds.Validate(); err != nil {
		return fmt.Errorf("screener.thresholds: %w", err)
	}
	if c.Screener.Workers <= 0 {
		return fmt.Errorf("screener.workers must be positive")
	}
	if len(c.Screener.Universe) == 0 {
		return fmt.Errorf("screener.universe must not be empty")
	}
	return nil
}
