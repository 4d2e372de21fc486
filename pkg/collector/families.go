package collector

import (
	"github.com/fraser-isbester/aliyun-db-exporter/pkg/config"
	"github.com/fraser-isbester/aliyun-db-exporter/pkg/rules"
)

const namespace = "aliyun"

// Family is a gauge family without its namespace and engine prefix
type Family struct {
	Name string
	Help string
}

// Families maps the provider metric keys of each engine to their gauge family.
// Keys without an entry are not fetched.
var Families = map[config.Engine]map[string]Family{
	config.EngineMongoDB: {
		"CpuUsage":            {Name: "cpu_usage", Help: "CPU usage percentage of the instance."},
		"MemoryUsage":         {Name: "memory_usage", Help: "Memory usage percentage of the instance."},
		"IOPSUsage":           {Name: "iops_usage", Help: "IOPS usage percentage of the instance."},
		"DiskUsage":           {Name: "disk_usage", Help: "Disk usage percentage of the instance."},
		"MongoDB_Connections": {Name: "connections_usage", Help: "Current connections of the instance."},
	},
	config.EnginePolarDB: {
		"PolarDBCPU":         {Name: "cpu_usage", Help: "CPU usage of the cluster node."},
		"PolarDBDiskUsage":   {Name: "disk_usage", Help: "Disk usage of the cluster node."},
		"PolarDBConnections": {Name: "connections", Help: "Sessions of the cluster node."},
		"PolarDBReplicaLag":  {Name: "replica_lag", Help: "Replication lag of the cluster node in seconds."},
	},
}

var (
	storageFamily = Family{Name: "storage_used_bytes", Help: "Storage used by the cluster in bytes."}
	metaFamily    = Family{Name: "meta", Help: "Topology of every enumerated node, always 1."}

	derivedFamilies = map[string]Family{
		rules.ConnectionSaturation: {Name: rules.ConnectionSaturation, Help: "Connections as a ratio of the class connection limit."},
		rules.DiskSaturation:       {Name: rules.DiskSaturation, Help: "Used storage as a ratio of the class storage limit."},
	}
)

// storageMetric is the metric_name of the cluster-level storage sample
const storageMetric = "storage_used"

// FamilyName returns the fully qualified gauge name of a family
func FamilyName(engine config.Engine, f Family) string {
	return namespace + "_" + string(engine) + "_" + f.Name
}

// FamilyFor returns the family of a provider metric key
func FamilyFor(engine config.Engine, key string) (Family, bool) {
	f, ok := Families[engine][key]
	return f, ok
}
