package collector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap/zaptest"

	"github.com/fraser-isbester/aliyun-db-exporter/pkg/aliyun"
	"github.com/fraser-isbester/aliyun-db-exporter/pkg/aliyun/mocks"
	"github.com/fraser-isbester/aliyun-db-exporter/pkg/config"
	"github.com/fraser-isbester/aliyun-db-exporter/pkg/snapshot"
)

func testConfig(accounts ...config.Account) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Accounts = accounts
	cfg.RequestConcurrency = 2
	return cfg
}

func testAccount(name string, engines ...config.Engine) config.Account {
	return config.Account{
		Name:            name,
		AccessKeyID:     "ak",
		AccessKeySecret: "sk",
		RegionID:        "cn-hangzhou",
		Engines:         engines,
	}
}

func factoryFor(apis map[string]aliyun.API) ClientFactory {
	return func(a config.Account) (aliyun.API, error) {
		api, ok := apis[a.Name]
		if !ok {
			return nil, errors.New("no credentials")
		}
		return api, nil
	}
}

func instancePerf(value string) aliyun.Response {
	return aliyun.Response{
		"PerformanceKeys": map[string]any{
			"PerformanceKey": []any{map[string]any{
				"PerformanceValues": map[string]any{
					"PerformanceValue": []any{map[string]any{"Date": "2024-01-01T00:00:00Z", "Value": value}},
				},
			}},
		},
	}
}

func nodePerf(values map[string]string) aliyun.Response {
	var items []any
	for name, value := range values {
		items = append(items, map[string]any{
			"MetricName": name,
			"Points": map[string]any{
				"PerformanceItemValue": []any{map[string]any{"Value": value}},
			},
		})
	}
	return aliyun.Response{"PerformanceKeys": map[string]any{"PerformanceItem": items}}
}

func ddsInstances(ids ...string) aliyun.Response {
	var instances []any
	for _, id := range ids {
		instances = append(instances, map[string]any{
			"DBInstanceId":     id,
			"DBInstanceClass":  "dds.mongo.mid",
			"DBInstanceStatus": "Running",
			"DBInstanceType":   "replicate",
		})
	}
	return aliyun.Response{"DBInstances": map[string]any{"DBInstance": instances}}
}

func polarClusters() aliyun.Response {
	return aliyun.Response{"Items": map[string]any{"DBCluster": []any{
		map[string]any{
			"DBClusterId":          "pc-1",
			"DBClusterDescription": "billing",
			"DBNodeClass":          "polar.mysql.x4.large",
			"StorageUsed":          float64(2560 * config.BytesPerGB),
			"DBNodes": map[string]any{"DBNode": []any{
				map[string]any{"DBNodeId": "pi-w", "DBNodeRole": "Writer"},
				map[string]any{"DBNodeId": "pi-r", "DBNodeRole": "Reader", "DBNodeClass": "polar.mysql.x4.xlarge"},
			}},
		},
	}}}
}

// index returns the samples of a snapshot keyed by family and node
func index(snap *snapshot.Snapshot) map[string]snapshot.Sample {
	out := make(map[string]snapshot.Sample)
	for _, s := range snap.Samples() {
		out[s.Family+"/"+s.NodeID+"/"+s.MetricName] = s
	}
	return out
}

func TestBuildMongoDB(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mocks.NewMockAPI(ctrl)

	api.EXPECT().ListInstances(gomock.Any()).Return(ddsInstances("dds-bp123"), nil)
	api.EXPECT().GetPerformance(gomock.Any(), config.EngineMongoDB, "dds-bp123", gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ config.Engine, _, key string, _ aliyun.Window) (aliyun.Response, error) {
			switch key {
			case "MongoDB_Connections":
				return instancePerf("125"), nil
			case "IOPSUsage":
				return nil, errors.New("Throttling.User")
			default:
				return instancePerf("40"), nil
			}
		}).Times(5)

	cfg := testConfig(testAccount("prod", config.EngineMongoDB))
	b := NewBuilder(cfg, factoryFor(map[string]aliyun.API{"prod": api}), zaptest.NewLogger(t))

	snap := b.Build(context.Background())
	samples := index(snap)

	assert.Equal(t, 1, snap.Instances)
	assert.Equal(t, map[string]int{aliyun.KindFetch: 1}, snap.Diagnostics())
	assert.Len(t, samples, 6, "meta, four metrics and one ratio")

	cpu := samples["aliyun_mongodb_cpu_usage/dds-bp123/CpuUsage"]
	assert.Equal(t, 40.0, cpu.Value)
	assert.Equal(t, "prod", cpu.Account)
	assert.Equal(t, "dds-bp123", cpu.InstanceDesc, "description falls back to the id")

	assert.Equal(t, 125.0, samples["aliyun_mongodb_connections_usage/dds-bp123/MongoDB_Connections"].Value)
	assert.InDelta(t, 0.25, samples["aliyun_mongodb_connection_saturation/dds-bp123/MongoDB_Connections"].Value, 1e-12)
	assert.NotContains(t, samples, "aliyun_mongodb_iops_usage/dds-bp123/IOPSUsage")

	meta, ok := samples["aliyun_mongodb_meta/dds-bp123/"]
	require.True(t, ok)
	assert.Equal(t, 1.0, meta.Value)
	assert.Equal(t, "replicate", meta.Meta["node_role"])
	assert.Equal(t, "500", meta.Meta["max_connections"])
}

func TestBuildPolarDB(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mocks.NewMockAPI(ctrl)

	api.EXPECT().ListClusters(gomock.Any()).Return(polarClusters(), nil)
	api.EXPECT().GetPerformance(gomock.Any(), config.EnginePolarDB, gomock.Any(), "PolarDBConnections", gomock.Any()).
		Return(nodePerf(map[string]string{"mean_active_session": "2500", "mean_total_session": "3000"}), nil).Times(2)
	api.EXPECT().GetPerformance(gomock.Any(), config.EnginePolarDB, "pi-w", "PolarDBCPU", gomock.Any()).
		Return(nodePerf(map[string]string{"mean_cpu_ratio": "12.5"}), nil)
	api.EXPECT().GetPerformance(gomock.Any(), config.EnginePolarDB, "pi-r", "PolarDBCPU", gomock.Any()).
		Return(aliyun.Response{"RequestId": "r-1"}, nil)

	cfg := testConfig(testAccount("prod", config.EnginePolarDB))
	cfg.Engines[config.EnginePolarDB].MetricKeys = []string{"PolarDBConnections", "PolarDBCPU"}
	b := NewBuilder(cfg, factoryFor(map[string]aliyun.API{"prod": api}), zaptest.NewLogger(t))

	snap := b.Build(context.Background())
	samples := index(snap)

	assert.Equal(t, 1, snap.Instances)
	assert.Equal(t, map[string]int{aliyun.KindMalformed: 1}, snap.Diagnostics())

	assert.Equal(t, 2500.0, samples["aliyun_polardb_connections/pi-w/mean_active_session"].Value)
	assert.Equal(t, 3000.0, samples["aliyun_polardb_connections/pi-r/mean_total_session"].Value)
	assert.Equal(t, 12.5, samples["aliyun_polardb_cpu_usage/pi-w/mean_cpu_ratio"].Value)
	assert.NotContains(t, samples, "aliyun_polardb_cpu_usage/pi-r/mean_cpu_ratio")

	// writer inherits the cluster class, reader has its own
	assert.InDelta(t, 0.5, samples["aliyun_polardb_connection_saturation/pi-w/mean_active_session"].Value, 1e-12)
	assert.InDelta(t, 0.25, samples["aliyun_polardb_connection_saturation/pi-r/mean_active_session"].Value, 1e-12)

	storage := samples["aliyun_polardb_storage_used_bytes//storage_used"]
	assert.Equal(t, float64(2560*config.BytesPerGB), storage.Value)
	assert.Equal(t, "billing", storage.InstanceDesc)
	assert.InDelta(t, 0.25, samples["aliyun_polardb_disk_saturation//storage_used"].Value, 1e-12)

	writer := samples["aliyun_polardb_meta/pi-w/"]
	assert.Equal(t, "Writer", writer.Meta["node_role"])
	assert.Equal(t, "polar.mysql.x4.large", writer.Meta["node_class"])
	assert.Equal(t, "5000", writer.Meta["max_connections"])
	assert.Equal(t, "10240", writer.Meta["max_storage_gb"])
	assert.Equal(t, "polar.mysql.x4.xlarge", samples["aliyun_polardb_meta/pi-r/"].Meta["node_class"])
}

func TestBuildCountsSkippedPerformanceItems(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mocks.NewMockAPI(ctrl)

	api.EXPECT().ListClusters(gomock.Any()).Return(polarClusters(), nil)
	api.EXPECT().GetPerformance(gomock.Any(), config.EnginePolarDB, "pi-w", "PolarDBConnections", gomock.Any()).
		Return(nodePerf(map[string]string{"mean_active_session": "10", "mean_total_session": "abc"}), nil)
	api.EXPECT().GetPerformance(gomock.Any(), config.EnginePolarDB, "pi-r", "PolarDBConnections", gomock.Any()).
		Return(nodePerf(map[string]string{"mean_active_session": "20", "mean_total_session": "30"}), nil)

	cfg := testConfig(testAccount("prod", config.EnginePolarDB))
	cfg.Engines[config.EnginePolarDB].MetricKeys = []string{"PolarDBConnections"}
	b := NewBuilder(cfg, factoryFor(map[string]aliyun.API{"prod": api}), zaptest.NewLogger(t))

	snap := b.Build(context.Background())
	samples := index(snap)

	assert.Equal(t, map[string]int{aliyun.KindMalformed: 1}, snap.Diagnostics())
	assert.Equal(t, 10.0, samples["aliyun_polardb_connections/pi-w/mean_active_session"].Value)
	assert.NotContains(t, samples, "aliyun_polardb_connections/pi-w/mean_total_session")
	assert.Equal(t, 30.0, samples["aliyun_polardb_connections/pi-r/mean_total_session"].Value)
}

func TestBuildCountsClustersWithoutNodes(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mocks.NewMockAPI(ctrl)

	clusters := polarClusters()
	items := clusters["Items"].(map[string]any)
	items["DBCluster"] = append(items["DBCluster"].([]any), map[string]any{
		"DBClusterId": "pc-broken",
		"DBNodes":     "oops",
	})
	api.EXPECT().ListClusters(gomock.Any()).Return(clusters, nil)

	cfg := testConfig(testAccount("prod", config.EnginePolarDB))
	cfg.Engines[config.EnginePolarDB].MetricKeys = nil
	b := NewBuilder(cfg, factoryFor(map[string]aliyun.API{"prod": api}), zaptest.NewLogger(t))

	snap := b.Build(context.Background())

	assert.Equal(t, 1, snap.Instances)
	assert.Equal(t, map[string]int{aliyun.KindMalformed: 1}, snap.Diagnostics())
	assert.NotEmpty(t, snap.Samples())
	for _, s := range snap.Samples() {
		assert.Equal(t, "pc-1", s.InstanceID)
	}
}

func TestBuildIsolatesFailedAccounts(t *testing.T) {
	ctrl := gomock.NewController(t)
	healthy := mocks.NewMockAPI(ctrl)
	denied := mocks.NewMockAPI(ctrl)

	healthy.EXPECT().ListInstances(gomock.Any()).Return(ddsInstances("dds-1"), nil)
	healthy.EXPECT().GetPerformance(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(instancePerf("1"), nil).Times(5)
	denied.EXPECT().ListInstances(gomock.Any()).Return(nil, errors.New("InvalidAccessKeyId.NotFound"))

	cfg := testConfig(
		testAccount("healthy", config.EngineMongoDB),
		testAccount("denied", config.EngineMongoDB),
		testAccount("unconfigured", config.EngineMongoDB),
	)
	apis := map[string]aliyun.API{"healthy": healthy, "denied": denied}
	b := NewBuilder(cfg, factoryFor(apis), zaptest.NewLogger(t))

	snap := b.Build(context.Background())

	assert.Equal(t, map[string]int{aliyun.KindEnumeration: 2}, snap.Diagnostics())
	assert.Equal(t, 1, snap.Instances)
	for _, s := range snap.Samples() {
		assert.Equal(t, "healthy", s.Account)
	}
}

func TestBuildDropsUnmappedKeys(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mocks.NewMockAPI(ctrl)

	api.EXPECT().ListInstances(gomock.Any()).Return(ddsInstances("dds-1"), nil)
	api.EXPECT().GetPerformance(gomock.Any(), gomock.Any(), "dds-1", "CpuUsage", gomock.Any()).Return(instancePerf("3"), nil)

	cfg := testConfig(testAccount("prod", config.EngineMongoDB))
	cfg.Engines[config.EngineMongoDB].MetricKeys = []string{"CpuUsage", "QPS"}
	b := NewBuilder(cfg, factoryFor(map[string]aliyun.API{"prod": api}), zaptest.NewLogger(t))

	snap := b.Build(context.Background())
	assert.Empty(t, snap.Diagnostics())
	assert.Equal(t, 2, snap.Len())
}

func TestBuildIsIdempotent(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mocks.NewMockAPI(ctrl)

	api.EXPECT().ListInstances(gomock.Any()).Return(ddsInstances("dds-1", "dds-2"), nil).Times(2)
	api.EXPECT().GetPerformance(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(instancePerf("7"), nil).Times(20)

	cfg := testConfig(testAccount("prod", config.EngineMongoDB))
	cfg.RequestConcurrency = 4
	b := NewBuilder(cfg, factoryFor(map[string]aliyun.API{"prod": api}), zaptest.NewLogger(t))

	first := b.Build(context.Background())
	second := b.Build(context.Background())

	assert.Equal(t, first.Samples(), second.Samples())
	assert.Equal(t, 2, second.Instances)
}

func TestBuildEmptyAccount(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mocks.NewMockAPI(ctrl)

	api.EXPECT().ListInstances(gomock.Any()).Return(aliyun.Response{"DBInstances": map[string]any{"DBInstance": []any{}}}, nil)
	api.EXPECT().ListClusters(gomock.Any()).Return(aliyun.Response{"Items": map[string]any{"DBCluster": []any{}}}, nil)

	cfg := testConfig(testAccount("prod"))
	snap := NewBuilder(cfg, factoryFor(map[string]aliyun.API{"prod": api}), nil).Build(context.Background())

	assert.Equal(t, 0, snap.Len())
	assert.Empty(t, snap.Diagnostics())
}

func TestBuildCancelled(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mocks.NewMockAPI(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := testConfig(testAccount("prod", config.EngineMongoDB))
	snap := NewBuilder(cfg, factoryFor(map[string]aliyun.API{"prod": api}), zaptest.NewLogger(t)).Build(ctx)

	require.NotNil(t, snap)
	assert.Equal(t, 0, snap.Len())
}

func TestFamilies(t *testing.T) {
	cfg := config.DefaultConfig()
	for engine, ec := range cfg.Engines {
		for _, key := range ec.MetricKeys {
			_, ok := FamilyFor(engine, key)
			assert.True(t, ok, "%s %s has no family", engine, key)
		}
	}

	assert.Equal(t, "aliyun_polardb_replica_lag", FamilyName(config.EnginePolarDB, Families[config.EnginePolarDB]["PolarDBReplicaLag"]))
	assert.Equal(t, "aliyun_mongodb_meta", FamilyName(config.EngineMongoDB, metaFamily))
}
