package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned for any configuration that prevents a poll cycle
var ErrInvalidConfig = errors.New("invalid configuration")

// Engine identifies a managed database product
type Engine string

const (
	EngineMongoDB Engine = "mongodb"
	EnginePolarDB Engine = "polardb"
)

// Clustered reports whether instances of the engine are clusters of member nodes
func (e Engine) Clustered() bool {
	return e == EnginePolarDB
}

// Account is one set of cloud credentials to poll
type Account struct {
	Name            string   `yaml:"name"`
	AccessKeyID     string   `yaml:"access_key_id"`
	AccessKeySecret string   `yaml:"access_key_secret"`
	RegionID        string   `yaml:"region_id"`
	RoleARN         string   `yaml:"role_arn,omitempty"` // optional RAM role to assume
	Engines         []Engine `yaml:"engines,omitempty"`
}

// String never includes the secret
func (a Account) String() string {
	return fmt.Sprintf("%s (%s)", a.Name, a.RegionID)
}

// EngineConfig holds the per-engine polling settings
type EngineConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	MetricKeys []string      `yaml:"metric_keys"`
	WindowLag  time.Duration `yaml:"window_lag"`   // Distance of the window end from now
	WindowSize time.Duration `yaml:"window_width"` // Width of the queried window

	// Derived metric inputs
	ConnectionMetric string  `yaml:"connection_metric,omitempty"`
	DiskMetric       string  `yaml:"disk_metric,omitempty"`
	DiskUnitBytes    float64 `yaml:"disk_unit_bytes,omitempty"` // bytes per unit of DiskMetric
}

// Config holds the configuration for the exporter
type Config struct {
	Accounts []Account               `yaml:"accounts"`
	Engines  map[Engine]*EngineConfig `yaml:"engines"`
	Capacity CapacityTable            `yaml:"capacity"`

	// Poll cycle settings
	Interval           time.Duration `yaml:"interval"` // 0 = cycle on scrape
	ScrapeCacheTTL     time.Duration `yaml:"scrape_cache_ttl"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	AccountConcurrency int           `yaml:"account_concurrency"`
	RequestConcurrency int           `yaml:"request_concurrency"` // outstanding calls per account

	// Operation settings
	HTTPPort int    `yaml:"http_port"`
	LogLevel string `yaml:"log_level"`

	// Logger log instance, nop when nil
	Logger *zap.Logger `yaml:"-"`
}

// DefaultEngines returns the engine settings used when the config file omits them
func DefaultEngines() map[Engine]*EngineConfig {
	return map[Engine]*EngineConfig{
		EngineMongoDB: {
			Endpoint:         "mongodb.aliyuncs.com",
			MetricKeys:       []string{"CpuUsage", "MemoryUsage", "IOPSUsage", "DiskUsage", "MongoDB_Connections"},
			WindowLag:        5 * time.Minute,
			WindowSize:       5 * time.Minute,
			ConnectionMetric: "MongoDB_Connections",
		},
		EnginePolarDB: {
			Endpoint:         "polardb.aliyuncs.com",
			MetricKeys:       []string{"PolarDBDiskUsage", "PolarDBConnections", "PolarDBCPU", "PolarDBReplicaLag"},
			WindowLag:        0,
			WindowSize:       30 * time.Second,
			ConnectionMetric: "mean_active_session",
			DiskMetric:       "storage_used",
			DiskUnitBytes:    1,
		},
	}
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Engines:            DefaultEngines(),
		Capacity:           DefaultCapacityTable,
		Interval:           60 * time.Second,
		ScrapeCacheTTL:     60 * time.Second,
		RequestTimeout:     10 * time.Second,
		AccountConcurrency: 4,
		RequestConcurrency: 1,
		HTTPPort:           9527,
		LogLevel:           "info",
		Logger:             zap.NewNop(),
	}
}

// Load reads a YAML config file on top of DefaultConfig. A .env file next to
// the process is loaded first so ${VAR} references can resolve secrets.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	return Parse(raw)
}

// Parse decodes YAML config data, expanding environment variables
func Parse(raw []byte) (*Config, error) {
	cfg := DefaultConfig()
	defaults := cfg.Engines
	cfg.Engines = nil
	cfg.Capacity = nil

	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	// Engine sections override defaults field by field
	for engine, override := range cfg.Engines {
		base, ok := defaults[engine]
		if !ok {
			return nil, fmt.Errorf("%w: unknown engine %q", ErrInvalidConfig, engine)
		}
		if override != nil {
			mergeEngine(base, override)
		}
	}
	cfg.Engines = defaults
	cfg.Capacity = DefaultCapacityTable.Merge(cfg.Capacity)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mergeEngine(base, override *EngineConfig) {
	if override.Endpoint != "" {
		base.Endpoint = override.Endpoint
	}
	if len(override.MetricKeys) > 0 {
		base.MetricKeys = override.MetricKeys
	}
	if override.WindowLag != 0 {
		base.WindowLag = override.WindowLag
	}
	if override.WindowSize != 0 {
		base.WindowSize = override.WindowSize
	}
	if override.ConnectionMetric != "" {
		base.ConnectionMetric = override.ConnectionMetric
	}
	if override.DiskMetric != "" {
		base.DiskMetric = override.DiskMetric
	}
	if override.DiskUnitBytes != 0 {
		base.DiskUnitBytes = override.DiskUnitBytes
	}
}

// Validate checks the configuration, wrapping every failure in ErrInvalidConfig
func (c *Config) Validate() error {
	if len(c.Accounts) == 0 {
		return fmt.Errorf("%w: no accounts configured", ErrInvalidConfig)
	}

	names := make(map[string]bool, len(c.Accounts))
	for i, a := range c.Accounts {
		required := map[string]string{
			"name":              a.Name,
			"access_key_id":     a.AccessKeyID,
			"access_key_secret": a.AccessKeySecret,
			"region_id":         a.RegionID,
		}
		for field, value := range required {
			if value == "" {
				return fmt.Errorf("%w: account %d: %s is required", ErrInvalidConfig, i, field)
			}
		}
		if names[a.Name] {
			return fmt.Errorf("%w: duplicate account name %q", ErrInvalidConfig, a.Name)
		}
		names[a.Name] = true

		for _, e := range a.Engines {
			if _, ok := c.Engines[e]; !ok {
				return fmt.Errorf("%w: account %s: unknown engine %q", ErrInvalidConfig, a.Name, e)
			}
		}
	}

	for engine, ec := range c.Engines {
		if ec.Endpoint == "" {
			return fmt.Errorf("%w: engine %s: endpoint is required", ErrInvalidConfig, engine)
		}
		if ec.WindowSize <= 0 || ec.WindowLag < 0 {
			return fmt.Errorf("%w: engine %s: window must be positive", ErrInvalidConfig, engine)
		}
		if ec.DiskMetric != "" && ec.DiskUnitBytes <= 0 {
			return fmt.Errorf("%w: engine %s: disk_unit_bytes must be positive", ErrInvalidConfig, engine)
		}
	}

	if err := c.Capacity.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.Interval < 0 || c.ScrapeCacheTTL < 0 {
		return fmt.Errorf("%w: interval and scrape_cache_ttl must not be negative", ErrInvalidConfig)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request_timeout must be positive", ErrInvalidConfig)
	}
	if c.AccountConcurrency < 1 || c.RequestConcurrency < 1 {
		return fmt.Errorf("%w: concurrency limits must be at least 1", ErrInvalidConfig)
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("%w: http_port out of range", ErrInvalidConfig)
	}

	return nil
}

// EnginesFor returns the engines polled for an account, in a stable order
func (c *Config) EnginesFor(a Account) []Engine {
	if len(a.Engines) > 0 {
		return a.Engines
	}
	var engines []Engine
	for _, e := range []Engine{EngineMongoDB, EnginePolarDB} {
		if _, ok := c.Engines[e]; ok {
			engines = append(engines, e)
		}
	}
	return engines
}

// GetLogger gets logger instance
func (c *Config) GetLogger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// NewLogger builds a production logger at the configured level
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("%w: log_level: %v", ErrInvalidConfig, err)
	}

	zcfg := zap.NewProductionConfig()
	if lvl.Level() == zap.DebugLevel {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = lvl

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
