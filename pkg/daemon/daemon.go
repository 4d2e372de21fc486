package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/fraser-isbester/aliyun-db-exporter/pkg/collector"
	"github.com/fraser-isbester/aliyun-db-exporter/pkg/config"
	"github.com/fraser-isbester/aliyun-db-exporter/pkg/snapshot"
)

// Daemon serves the latest snapshot and keeps it current, either on a fixed
// interval or when a scrape finds it stale
type Daemon struct {
	config        Config
	runner        CycleRunner
	registry      *snapshot.Registry
	source        snapshot.Source
	httpServer    HTTPServerInterface
	signalHandler SignalHandler
	logger        *zap.Logger
	startTime     time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// DaemonConfig holds daemon-specific configuration
type DaemonConfig struct {
	Interval       time.Duration // How often to poll, 0 to poll on scrape
	ScrapeCacheTTL time.Duration // How long a scrape-driven snapshot is served
	HTTPPort       int           // Port for health checks and metrics
	EnableMetrics  bool          // Whether to expose the exporter's own metrics
}

// NewDaemon creates a daemon polling the accounts of cfg through the OpenAPI client
func NewDaemon(cfg *config.Config, daemonCfg *DaemonConfig) (*Daemon, error) {
	if err := validateConfig(cfg, daemonCfg); err != nil {
		return nil, err
	}

	builder := collector.NewBuilder(cfg, collector.NewClientFactory(cfg), cfg.GetLogger())
	return newDaemon(cfg, daemonCfg, builder, NewOSSignalHandler(cfg.GetLogger())), nil
}

func newDaemon(cfg *config.Config, daemonCfg *DaemonConfig, builder Builder, signalHandler SignalHandler) *Daemon {
	ctx, cancel := context.WithCancel(context.Background())
	logger := cfg.GetLogger()

	daemonConfig := NewDaemonConfig(cfg, daemonCfg)
	registry := snapshot.NewRegistry()
	gatherer := prometheus.NewRegistry()

	var metricsReporter MetricsReporter
	if daemonConfig.IsMetricsEnabled() {
		metricsReporter = NewPrometheusMetricsReporter(gatherer)
	} else {
		metricsReporter = NewSimpleMetricsReporter()
	}

	runner := NewSnapshotRunner(builder, registry, metricsReporter, logger)

	var source snapshot.Source = registry
	if daemonConfig.GetInterval() == 0 {
		source = newScrapeSource(ctx, runner, registry, daemonConfig.GetScrapeCacheTTL(), logger)
	}
	gatherer.MustRegister(snapshot.NewCollector(source))

	d := &Daemon{
		config:        daemonConfig,
		runner:        runner,
		registry:      registry,
		source:        source,
		signalHandler: signalHandler,
		logger:        logger,
		startTime:     time.Now(),
		ctx:           ctx,
		cancel:        cancel,
	}
	d.httpServer = NewHTTPServer(daemonConfig.GetHTTPPort(), d, gatherer, logger)
	return d
}

// Start runs the daemon until a shutdown signal arrives
func (d *Daemon) Start() error {
	d.logger.Info("Starting Aliyun DB exporter",
		zap.Duration("interval", d.config.GetInterval()),
		zap.Int("accounts", d.config.GetAccountCount()),
		zap.Int("http_port", d.config.GetHTTPPort()))

	d.wg.Add(1)
	go d.startHTTPServer()

	d.wg.Add(1)
	if d.config.GetInterval() > 0 {
		go d.pollLoop()
	} else {
		go d.warmUp()
	}

	<-d.signalHandler.WaitForShutdown()

	d.Stop()
	d.wg.Wait()

	d.logger.Info("Daemon stopped gracefully")
	return nil
}

// Stop gracefully stops the daemon
func (d *Daemon) Stop() {
	d.logger.Info("Initiating graceful shutdown")
	d.cancel()
}

// pollLoop runs a poll cycle at start and on every tick
func (d *Daemon) pollLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.GetInterval())
	defer ticker.Stop()

	d.runCycle()

	for {
		select {
		case <-ticker.C:
			d.runCycle()
		case <-d.ctx.Done():
			d.logger.Info("Poll loop stopped")
			return
		}
	}
}

// warmUp publishes a first snapshot in scrape mode so readiness does not wait
// for the first scrape. It shares its cycle with scrapes arriving meanwhile.
func (d *Daemon) warmUp() {
	defer d.wg.Done()
	d.source.Current()
}

func (d *Daemon) runCycle() {
	if err := d.runner.RunCycle(d.ctx); err != nil {
		if IsRecoverable(err) {
			d.logger.Warn("Poll cycle did not publish", zap.Error(err))
			return
		}
		d.logger.Error("Poll cycle failed", zap.Error(err))
	}
}

// startHTTPServer serves until the daemon is stopped
func (d *Daemon) startHTTPServer() {
	defer d.wg.Done()

	go func() {
		if err := d.httpServer.Start(); err != nil {
			d.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	<-d.ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := d.httpServer.Shutdown(shutdownCtx); err != nil {
		d.logger.Error("HTTP server shutdown error", zap.Error(err))
	}
}

// Ready reports whether a snapshot has been published
func (d *Daemon) Ready() bool {
	return !d.registry.Current().CollectedAt.IsZero()
}

// GetStatus returns the current daemon status
func (d *Daemon) GetStatus() *DaemonStatus {
	snap := d.registry.Current()

	status := &DaemonStatus{
		Accounts:       d.config.GetAccountCount(),
		Interval:       d.config.GetInterval().String(),
		ScrapeCacheTTL: d.config.GetScrapeCacheTTL().String(),
		HTTPPort:       d.config.GetHTTPPort(),
		Running:        d.ctx.Err() == nil,
		StartTime:      d.startTime,
		Samples:        snap.Len(),
		Instances:      snap.Instances,
		Errors:         snap.Diagnostics(),
	}
	if !snap.CollectedAt.IsZero() {
		status.LastCycle = snap.CollectedAt
		status.LastCycleDuration = snap.Duration.String()
		if interval := d.config.GetInterval(); interval > 0 {
			status.NextCycle = snap.CollectedAt.Add(interval)
		}
	}
	return status
}

// DaemonStatus represents the current status of the daemon
type DaemonStatus struct {
	Accounts          int            `json:"accounts"`
	Interval          string         `json:"interval"`
	ScrapeCacheTTL    string         `json:"scrape_cache_ttl"`
	HTTPPort          int            `json:"http_port"`
	Running           bool           `json:"running"`
	StartTime         time.Time      `json:"start_time"`
	LastCycle         time.Time      `json:"last_cycle,omitempty"`
	LastCycleDuration string         `json:"last_cycle_duration,omitempty"`
	NextCycle         time.Time      `json:"next_cycle,omitempty"`
	Samples           int            `json:"samples"`
	Instances         int            `json:"instances"`
	Errors            map[string]int `json:"errors"`
}
