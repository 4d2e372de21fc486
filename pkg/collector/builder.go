package collector

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fraser-isbester/aliyun-db-exporter/pkg/aliyun"
	"github.com/fraser-isbester/aliyun-db-exporter/pkg/config"
	"github.com/fraser-isbester/aliyun-db-exporter/pkg/rules"
	"github.com/fraser-isbester/aliyun-db-exporter/pkg/snapshot"
)

// ClientFactory creates the API client bound to one account
type ClientFactory func(config.Account) (aliyun.API, error)

// NewClientFactory returns a factory creating OpenAPI clients from cfg
func NewClientFactory(cfg *config.Config) ClientFactory {
	return func(account config.Account) (aliyun.API, error) {
		client, err := aliyun.NewClient(account, cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// Builder runs poll cycles and assembles their snapshots
type Builder struct {
	config    *config.Config
	newClient ClientFactory
	rules     *rules.Engine
	logger    *zap.Logger
	now       func() time.Time
}

// NewBuilder creates a new snapshot builder
func NewBuilder(cfg *config.Config, newClient ClientFactory, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		config:    cfg,
		newClient: newClient,
		rules:     rules.NewEngine(cfg),
		logger:    logger,
		now:       time.Now,
	}
}

// Build runs one poll cycle over every configured account. Failures are
// logged and counted in the snapshot diagnostics; a snapshot is always
// returned, possibly without samples. Accounts not yet started when ctx is
// cancelled are skipped.
func (b *Builder) Build(ctx context.Context) *snapshot.Snapshot {
	started := b.now()
	acc := snapshot.NewAccumulator(started)

	var g errgroup.Group
	g.SetLimit(b.config.AccountConcurrency)
	for _, account := range b.config.Accounts {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			b.collectAccount(ctx, account, started, acc)
			return nil
		})
	}
	_ = g.Wait()

	snap := acc.Snapshot(b.now())
	b.logger.Debug("Poll cycle finished",
		zap.Int("samples", snap.Len()),
		zap.Int("instances", snap.Instances),
		zap.Int("errors", snap.Errors()),
		zap.Duration("duration", snap.Duration))
	return snap
}

// collectAccount enumerates and fetches every engine of one account
func (b *Builder) collectAccount(ctx context.Context, account config.Account, started time.Time, acc *snapshot.Accumulator) {
	engines := b.config.EnginesFor(account)

	api, err := b.newClient(account)
	if err != nil {
		for _, engine := range engines {
			b.fail(acc, &aliyun.EnumerationError{Account: account.Name, Engine: engine, Err: err},
				zap.String("account", account.Name), zap.String("engine", string(engine)))
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(b.config.RequestConcurrency)
	defer func() { _ = g.Wait() }()

	for _, engine := range engines {
		if ctx.Err() != nil {
			return
		}

		topologies, skipped, err := aliyun.Enumerate(ctx, api, account, engine)
		if err != nil {
			if ctx.Err() == nil {
				b.fail(acc, err, zap.String("account", account.Name), zap.String("engine", string(engine)))
			}
			continue
		}
		for _, err := range skipped {
			b.fail(acc, err, zap.String("account", account.Name), zap.String("engine", string(engine)))
		}
		acc.AddInstances(len(topologies))

		b.logger.Debug("Enumerated instances",
			zap.String("account", account.Name),
			zap.String("engine", string(engine)),
			zap.Int("instances", len(topologies)))

		window := aliyun.WindowFor(started, b.config.Engines[engine])
		for _, t := range topologies {
			if ctx.Err() != nil {
				return
			}
			b.collectTopology(ctx, &g, api, t, window, acc)
		}
	}
}

// collectTopology adds the meta and storage samples of an instance and
// schedules one fetch per node and metric key
func (b *Builder) collectTopology(ctx context.Context, g *errgroup.Group, api aliyun.API, t *aliyun.Topology, window aliyun.Window, acc *snapshot.Accumulator) {
	if t.HasStorageUsed {
		b.addValue(acc, t, aliyun.Node{Class: t.Class}, storageFamily, storageMetric, t.StorageUsedBytes)
	}

	keys := b.config.Engines[t.Engine].MetricKeys
	for _, node := range t.Nodes {
		b.addMeta(acc, t, node)

		for _, key := range keys {
			family, ok := FamilyFor(t.Engine, key)
			if !ok {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			g.Go(func() error {
				b.collectMetric(ctx, api, t, node, key, family, window, acc)
				return nil
			})
		}
	}
}

// collectMetric fetches and normalizes one metric key of a node
func (b *Builder) collectMetric(ctx context.Context, api aliyun.API, t *aliyun.Topology, node aliyun.Node, key string, family Family, window aliyun.Window, acc *snapshot.Accumulator) {
	if ctx.Err() != nil {
		return
	}

	fields := []zap.Field{
		zap.String("account", t.Account),
		zap.String("engine", string(t.Engine)),
		zap.String("instance_id", t.ID),
		zap.String("node_id", node.ID),
		zap.String("metric_key", key),
	}

	resp, err := aliyun.Fetch(ctx, api, t.Engine, node.ID, key, window)
	if err != nil {
		if ctx.Err() == nil {
			b.fail(acc, err, fields...)
		}
		return
	}

	values, skipped, err := normalize(t.Engine, key, resp)
	if err != nil {
		b.fail(acc, err, fields...)
		return
	}
	for _, err := range skipped {
		b.fail(acc, err, fields...)
	}

	for name, value := range values {
		b.addValue(acc, t, node, family, name, value)
	}
}

// normalize extracts the values of a response keyed by metric name. Single
// instance engines report the requested key; clustered engines report named
// sub-metrics and the items they could not parse.
func normalize(engine config.Engine, key string, resp aliyun.Response) (map[string]float64, []error, error) {
	if engine.Clustered() {
		return aliyun.NormalizeMulti(resp)
	}
	value, err := aliyun.Normalize(resp)
	if err != nil {
		return nil, nil, err
	}
	return map[string]float64{key: value}, nil, nil
}

// addValue adds a metric sample and the ratio derived from it, if any
func (b *Builder) addValue(acc *snapshot.Accumulator, t *aliyun.Topology, node aliyun.Node, family Family, metric string, value float64) {
	acc.Add(b.sample(t, node.ID, family, metric, value))

	derived, ok := b.rules.Derive(t.Engine, metric, value, node.Class)
	if !ok {
		return
	}
	acc.Add(b.sample(t, node.ID, derivedFamilies[derived.Name], derived.Source, derived.Value))
}

func (b *Builder) sample(t *aliyun.Topology, nodeID string, family Family, metric string, value float64) snapshot.Sample {
	return snapshot.Sample{
		Family:       FamilyName(t.Engine, family),
		Help:         family.Help,
		Account:      t.Account,
		InstanceID:   t.ID,
		InstanceDesc: t.Description,
		NodeID:       nodeID,
		MetricName:   metric,
		Value:        value,
	}
}

// addMeta adds the topology sample of a node
func (b *Builder) addMeta(acc *snapshot.Accumulator, t *aliyun.Topology, node aliyun.Node) {
	var maxConnections, maxStorage string
	if c, ok := b.config.Capacity.Lookup(node.Class); ok {
		maxConnections = strconv.Itoa(c.MaxConnections)
		maxStorage = strconv.FormatFloat(c.MaxStorageGB, 'f', -1, 64)
	}

	acc.Add(snapshot.Sample{
		Family:       FamilyName(t.Engine, metaFamily),
		Help:         metaFamily.Help,
		Account:      t.Account,
		InstanceID:   t.ID,
		InstanceDesc: t.Description,
		NodeID:       node.ID,
		Value:        1,
		Meta: map[string]string{
			"instance_class":    t.Class,
			"node_role":         node.Role,
			"node_class":        node.Class,
			"status":            t.Status,
			"db_type":           t.DBType,
			"db_version":        t.DBVersion,
			"zone_id":           node.ZoneID,
			"region_id":         node.RegionID,
			"resource_group_id": t.ResourceGroupID,
			"max_connections":   maxConnections,
			"max_storage_gb":    maxStorage,
		},
	})
}

// fail logs a recovered failure and counts it by kind
func (b *Builder) fail(acc *snapshot.Accumulator, err error, fields ...zap.Field) {
	kind := aliyun.Kind(err)
	acc.Record(kind)

	fields = append(fields,
		zap.String("kind", kind),
		zap.String("cause", aliyun.Classify(err)),
		zap.Error(err))
	var malformedErr *aliyun.MalformedResponseError
	if errors.As(err, &malformedErr) {
		fields = append(fields, zap.String("path", malformedErr.Path))
	}
	b.logger.Warn("Poll cycle step failed", fields...)
}
