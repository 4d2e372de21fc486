package daemon

import (
	"context"
	"time"

	"github.com/fraser-isbester/aliyun-db-exporter/pkg/snapshot"
)

// Builder runs one poll cycle and returns its snapshot
type Builder interface {
	Build(ctx context.Context) *snapshot.Snapshot
}

// HTTPServerInterface defines the interface for HTTP health/metrics server
type HTTPServerInterface interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// MetricsReporter records the exporter's own metrics
type MetricsReporter interface {
	RecordCycleDuration(duration time.Duration)
	RecordCycleCompletion()
	RecordError(kind string, count int)
	RecordSnapshot(samples, instances int)
}

// SignalHandler defines the interface for handling OS signals
type SignalHandler interface {
	WaitForShutdown() <-chan struct{}
}

// CycleRunner runs a poll cycle and publishes its snapshot
type CycleRunner interface {
	RunCycle(ctx context.Context) error
}

// Config provides read-only access to daemon configuration
type Config interface {
	GetInterval() time.Duration
	GetScrapeCacheTTL() time.Duration
	GetHTTPPort() int
	GetAccountCount() int
	IsMetricsEnabled() bool
}
