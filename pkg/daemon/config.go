package daemon

import (
	"time"

	"github.com/fraser-isbester/aliyun-db-exporter/pkg/config"
)

// daemonConfig implements the Config interface
type daemonConfig struct {
	interval       time.Duration
	scrapeCacheTTL time.Duration
	httpPort       int
	metricsEnabled bool
	accounts       int
}

// NewDaemonConfig creates a new daemon configuration
func NewDaemonConfig(cfg *config.Config, daemonCfg *DaemonConfig) Config {
	return &daemonConfig{
		interval:       daemonCfg.Interval,
		scrapeCacheTTL: daemonCfg.ScrapeCacheTTL,
		httpPort:       daemonCfg.HTTPPort,
		metricsEnabled: daemonCfg.EnableMetrics,
		accounts:       len(cfg.Accounts),
	}
}

// GetInterval returns the poll interval, 0 when cycles are scrape-driven
func (c *daemonConfig) GetInterval() time.Duration {
	return c.interval
}

// GetScrapeCacheTTL returns how long a scrape-driven snapshot is served
func (c *daemonConfig) GetScrapeCacheTTL() time.Duration {
	return c.scrapeCacheTTL
}

// GetHTTPPort returns the HTTP server port
func (c *daemonConfig) GetHTTPPort() int {
	return c.httpPort
}

// GetAccountCount returns the number of polled accounts
func (c *daemonConfig) GetAccountCount() int {
	return c.accounts
}

// IsMetricsEnabled returns whether self-metrics are exposed
func (c *daemonConfig) IsMetricsEnabled() bool {
	return c.metricsEnabled
}

// validateConfig validates daemon configuration
func validateConfig(cfg *config.Config, daemonCfg *DaemonConfig) error {
	if cfg == nil || daemonCfg == nil {
		return NewDaemonError("validate", "config", ErrInvalidConfig)
	}

	if len(cfg.Accounts) == 0 {
		return NewDaemonError("validate", "config", ErrInvalidConfig)
	}

	if daemonCfg.Interval < 0 {
		return NewDaemonError("validate", "config", ErrInvalidConfig)
	}

	if daemonCfg.Interval == 0 && daemonCfg.ScrapeCacheTTL <= 0 {
		return NewDaemonError("validate", "config", ErrInvalidConfig)
	}

	if daemonCfg.HTTPPort < 1 || daemonCfg.HTTPPort > 65535 {
		return NewDaemonError("validate", "config", ErrInvalidConfig)
	}

	return nil
}
