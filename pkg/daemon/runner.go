package daemon

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/fraser-isbester/aliyun-db-exporter/pkg/snapshot"
)

// snapshotRunner implements CycleRunner by publishing every completed snapshot
type snapshotRunner struct {
	builder  Builder
	registry *snapshot.Registry
	metrics  MetricsReporter
	logger   *zap.Logger
}

// NewSnapshotRunner creates a new cycle runner
func NewSnapshotRunner(builder Builder, registry *snapshot.Registry, metrics MetricsReporter, logger *zap.Logger) CycleRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &snapshotRunner{
		builder:  builder,
		registry: registry,
		metrics:  metrics,
		logger:   logger,
	}
}

// RunCycle builds a snapshot and publishes it. A cycle cancelled before it
// finishes is discarded and the previous snapshot stays current.
func (r *snapshotRunner) RunCycle(ctx context.Context) (err error) {
	start := time.Now()

	// Always record, even on panic
	defer func() {
		r.metrics.RecordCycleDuration(time.Since(start))
		r.metrics.RecordCycleCompletion()

		if rec := recover(); rec != nil {
			r.metrics.RecordError("panic", 1)
			r.logger.Error("Recovered from panic in poll cycle", zap.Any("panic", rec))
			err = NewDaemonError("run_cycle", "running", fmt.Errorf("%w: %v", ErrCyclePanicked, rec))
		}
	}()

	r.logger.Debug("Starting poll cycle")

	snap := r.builder.Build(ctx)
	if ctx.Err() != nil {
		return NewDaemonError("run_cycle", "running", fmt.Errorf("%w: %w", ErrCycleCancelled, ctx.Err()))
	}

	r.registry.Publish(snap)

	diagnostics := snap.Diagnostics()
	kinds := make([]string, 0, len(diagnostics))
	for kind := range diagnostics {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		r.metrics.RecordError(kind, diagnostics[kind])
	}
	r.metrics.RecordSnapshot(snap.Len(), snap.Instances)

	r.logger.Info("Published snapshot",
		zap.Int("samples", snap.Len()),
		zap.Int("instances", snap.Instances),
		zap.Int("errors", snap.Errors()),
		zap.Duration("duration", snap.Duration))
	return nil
}
