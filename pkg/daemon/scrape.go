package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fraser-isbester/aliyun-db-exporter/pkg/snapshot"
)

// scrapeSource serves the published snapshot and runs a cycle first when it
// is older than the cache TTL. Concurrent scrapes share one cycle.
type scrapeSource struct {
	ctx      context.Context
	runner   CycleRunner
	registry *snapshot.Registry
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time

	group singleflight.Group
}

func newScrapeSource(ctx context.Context, runner CycleRunner, registry *snapshot.Registry, ttl time.Duration, logger *zap.Logger) *scrapeSource {
	return &scrapeSource{
		ctx:      ctx,
		runner:   runner,
		registry: registry,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// Current implements snapshot.Source
func (s *scrapeSource) Current() *snapshot.Snapshot {
	if snap := s.registry.Current(); s.fresh(snap) {
		return snap
	}

	_, err, shared := s.group.Do("cycle", func() (any, error) {
		if s.fresh(s.registry.Current()) {
			return nil, nil
		}
		return nil, s.runner.RunCycle(s.ctx)
	})
	if err != nil {
		s.logger.Warn("Scrape-triggered poll cycle failed", zap.Bool("shared", shared), zap.Error(err))
	}

	return s.registry.Current()
}

func (s *scrapeSource) fresh(snap *snapshot.Snapshot) bool {
	if snap.CollectedAt.IsZero() {
		return false
	}
	return s.now().Sub(snap.CollectedAt) < s.ttl
}
