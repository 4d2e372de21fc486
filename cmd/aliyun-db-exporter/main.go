package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fraser-isbester/aliyun-db-exporter/pkg/collector"
	"github.com/fraser-isbester/aliyun-db-exporter/pkg/config"
	"github.com/fraser-isbester/aliyun-db-exporter/pkg/daemon"
	"github.com/fraser-isbester/aliyun-db-exporter/pkg/rules"
)

var (
	configPath         string
	logLevel           string
	accounts           []string
	interval           time.Duration
	scrapeCacheTTL     time.Duration
	requestTimeout     time.Duration
	accountConcurrency int
	requestConcurrency int
	httpPort           int
	enableMetrics      bool
	output             string
)

var rootCmd = &cobra.Command{
	Use:   "aliyun-db-exporter",
	Short: "Prometheus exporter for Alibaba Cloud MongoDB and PolarDB metrics",
	Long: `aliyun-db-exporter polls the ApsaraDB for MongoDB and PolarDB monitoring APIs
of one or more Alibaba Cloud accounts and exposes instance metrics, topology and
connection/disk saturation ratios as Prometheus gauges.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the exporter and serve /metrics",
	RunE:  runServe,
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run a single poll cycle and print the snapshot",
	RunE:  runCollect,
}

var capacityCmd = &cobra.Command{
	Use:   "capacity",
	Short: "Print the capacity table and report suspicious entries",
	RunE:  runCapacity,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "aliyun-db-exporter.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the config file")
	rootCmd.PersistentFlags().StringSliceVar(&accounts, "account", []string{}, "Account name(s) to poll (polls all if not specified)")
	rootCmd.PersistentFlags().DurationVar(&requestTimeout, "request-timeout", 0, "Timeout of a single API call")
	rootCmd.PersistentFlags().IntVar(&accountConcurrency, "account-concurrency", 0, "Accounts polled concurrently")
	rootCmd.PersistentFlags().IntVar(&requestConcurrency, "request-concurrency", 0, "Outstanding API calls per account")

	serveCmd.Flags().DurationVar(&interval, "interval", 0, "Poll interval; 0 polls when a scrape finds the snapshot stale")
	serveCmd.Flags().DurationVar(&scrapeCacheTTL, "scrape-cache-ttl", 0, "How long a scrape-driven snapshot is served")
	serveCmd.Flags().IntVar(&httpPort, "http-port", 0, "Port for /metrics, health and status endpoints")
	serveCmd.Flags().BoolVar(&enableMetrics, "enable-metrics", true, "Expose the exporter's own metrics")

	collectCmd.Flags().StringVar(&output, "output", "table", "Output format (table, json, prometheus)")
	capacityCmd.Flags().StringVar(&output, "output", "table", "Output format (table, json)")

	rootCmd.AddCommand(serveCmd, collectCmd, capacityCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func logf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format, args...)
}

// loadConfig reads the config file and applies the flags that were set
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("request-timeout") {
		cfg.RequestTimeout = requestTimeout
	}
	if flags.Changed("account-concurrency") {
		cfg.AccountConcurrency = accountConcurrency
	}
	if flags.Changed("request-concurrency") {
		cfg.RequestConcurrency = requestConcurrency
	}
	if flags.Changed("interval") {
		cfg.Interval = interval
	}
	if flags.Changed("scrape-cache-ttl") {
		cfg.ScrapeCacheTTL = scrapeCacheTTL
	}
	if flags.Changed("http-port") {
		cfg.HTTPPort = httpPort
	}

	if len(accounts) > 0 {
		var selected []config.Account
		for _, a := range cfg.Accounts {
			if slices.Contains(accounts, a.Name) {
				selected = append(selected, a)
			}
		}
		if len(selected) == 0 {
			return nil, fmt.Errorf("%w: no configured account matches %v", config.ErrInvalidConfig, accounts)
		}
		cfg.Accounts = selected
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	cfg.Logger = logger

	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := cfg.GetLogger()
	defer func() { _ = logger.Sync() }()

	for _, warning := range rules.CheckCapacityTable(cfg.Capacity) {
		logger.Warn("Suspicious capacity entry", zap.String("warning", warning))
	}

	d, err := daemon.NewDaemon(cfg, &daemon.DaemonConfig{
		Interval:       cfg.Interval,
		ScrapeCacheTTL: cfg.ScrapeCacheTTL,
		HTTPPort:       cfg.HTTPPort,
		EnableMetrics:  enableMetrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	return d.Start()
}

func runCollect(cmd *cobra.Command, args []string) error {
	if output != "table" && output != "json" && output != "prometheus" {
		return fmt.Errorf("invalid output format: %s (must be 'table', 'json' or 'prometheus')", output)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := cfg.GetLogger()
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logf("Polling %d account(s)...\n", len(cfg.Accounts))
	builder := collector.NewBuilder(cfg, collector.NewClientFactory(cfg), logger)
	snap := builder.Build(ctx)
	if ctx.Err() != nil {
		return fmt.Errorf("poll cycle interrupted: %w", ctx.Err())
	}

	logf("Instances: %d, Samples: %d, Errors: %d, Duration: %v\n",
		snap.Instances, snap.Len(), snap.Errors(), snap.Duration.Round(time.Millisecond))

	if err := writeSnapshot(os.Stdout, output, snap); err != nil {
		return err
	}

	if snap.Errors() > 0 {
		return errors.New("some metrics could not be collected")
	}
	return nil
}

func runCapacity(cmd *cobra.Command, args []string) error {
	if output != "table" && output != "json" {
		return fmt.Errorf("invalid output format: %s (must be 'table' or 'json')", output)
	}

	cfg := config.DefaultConfig()
	if cmd.Flags().Changed("config") {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}

	warnings := rules.CheckCapacityTable(cfg.Capacity)
	if err := writeCapacity(os.Stdout, output, cfg.Capacity, warnings); err != nil {
		return err
	}

	for _, warning := range warnings {
		logf("Warning: %s\n", warning)
	}
	return nil
}
