package aliyun

import (
	"context"
	"fmt"

	"github.com/fraser-isbester/aliyun-db-exporter/pkg/config"
)

// Node is a single database process: a DDS instance or a PolarDB cluster member
type Node struct {
	ID       string
	Role     string
	Class    string
	ZoneID   string
	RegionID string
}

// Topology holds information about a database instance or cluster
type Topology struct {
	Account         string
	Engine          config.Engine
	ID              string
	Description     string
	Class           string
	Status          string
	DBType          string
	DBVersion       string
	ZoneID          string
	RegionID        string
	ResourceGroupID string
	CreateTime      string

	// StorageUsedBytes is reported for PolarDB clusters only
	StorageUsedBytes float64
	HasStorageUsed   bool

	Nodes []Node
}

// Enumerate lists the instances (DDS) or clusters (PolarDB) of an account.
// A failed listing is returned as an *EnumerationError. Entries that cannot be
// expanded into nodes are left out and reported in skipped, one
// *MalformedResponseError each.
func Enumerate(ctx context.Context, api API, account config.Account, engine config.Engine) (topologies []*Topology, skipped []error, err error) {
	var resp Response
	switch engine {
	case config.EngineMongoDB:
		resp, err = api.ListInstances(ctx)
	case config.EnginePolarDB:
		resp, err = api.ListClusters(ctx)
	default:
		err = fmt.Errorf("unsupported engine %q", engine)
	}
	if err != nil {
		return nil, nil, &EnumerationError{Account: account.Name, Engine: engine, Err: err}
	}

	if engine == config.EngineMongoDB {
		topologies, skipped, err = parseInstances(account, resp)
	} else {
		topologies, skipped, err = parseClusters(account, resp)
	}
	if err != nil {
		return nil, nil, &EnumerationError{Account: account.Name, Engine: engine, Err: err}
	}
	return dedupe(topologies), skipped, nil
}

// parseInstances converts DBInstances.DBInstance entries; each instance is its own single node
func parseInstances(account config.Account, resp Response) ([]*Topology, []error, error) {
	entries, err := collection(resp, "DBInstances", "DBInstance")
	if err != nil {
		return nil, nil, err
	}

	topologies := make([]*Topology, 0, len(entries))
	var skipped []error
	for i, raw := range entries {
		path := fmt.Sprintf("DBInstances.DBInstance[%d]", i)
		inst, ok := raw.(map[string]any)
		if !ok {
			skipped = append(skipped, malformed(path, "not an object"))
			continue
		}
		id := str(inst, "DBInstanceId")
		if id == "" {
			skipped = append(skipped, malformed(path+".DBInstanceId", "missing"))
			continue
		}

		t := &Topology{
			Account:         account.Name,
			Engine:          config.EngineMongoDB,
			ID:              id,
			Description:     describe(str(inst, "DBInstanceDescription"), id),
			Class:           str(inst, "DBInstanceClass"),
			Status:          str(inst, "DBInstanceStatus"),
			DBType:          str(inst, "Engine"),
			DBVersion:       str(inst, "EngineVersion"),
			ZoneID:          str(inst, "ZoneId"),
			RegionID:        str(inst, "RegionId"),
			ResourceGroupID: str(inst, "ResourceGroupId"),
			CreateTime:      str(inst, "CreationTime"),
		}
		t.Nodes = []Node{{
			ID:       id,
			Role:     str(inst, "DBInstanceType"),
			Class:    t.Class,
			ZoneID:   t.ZoneID,
			RegionID: t.RegionID,
		}}
		topologies = append(topologies, t)
	}
	return topologies, skipped, nil
}

// parseClusters converts Items.DBCluster entries and expands their DBNodes.
// A cluster without any usable node is skipped.
func parseClusters(account config.Account, resp Response) ([]*Topology, []error, error) {
	entries, err := collection(resp, "Items", "DBCluster")
	if err != nil {
		return nil, nil, err
	}

	topologies := make([]*Topology, 0, len(entries))
	var skipped []error
	for i, raw := range entries {
		path := fmt.Sprintf("Items.DBCluster[%d]", i)
		cluster, ok := raw.(map[string]any)
		if !ok {
			skipped = append(skipped, malformed(path, "not an object"))
			continue
		}
		id := str(cluster, "DBClusterId")
		if id == "" {
			skipped = append(skipped, malformed(path+".DBClusterId", "missing"))
			continue
		}

		t := &Topology{
			Account:         account.Name,
			Engine:          config.EnginePolarDB,
			ID:              id,
			Description:     describe(str(cluster, "DBClusterDescription"), id),
			Class:           str(cluster, "DBNodeClass"),
			Status:          str(cluster, "DBClusterStatus"),
			DBType:          str(cluster, "DBType"),
			DBVersion:       str(cluster, "DBVersion"),
			ZoneID:          str(cluster, "ZoneId"),
			RegionID:        str(cluster, "RegionId"),
			ResourceGroupID: str(cluster, "ResourceGroupId"),
			CreateTime:      str(cluster, "CreateTime"),
		}
		if v, ok := cluster["StorageUsed"]; ok {
			if used, err := toFloat(v); err == nil {
				t.StorageUsedBytes = used
				t.HasStorageUsed = true
			}
		}

		nodes, err := collection(cluster, "DBNodes", "DBNode")
		if err != nil {
			skipped = append(skipped, prefixed(path, err))
			continue
		}
		for j, rawNode := range nodes {
			nodePath := fmt.Sprintf("%s.DBNodes.DBNode[%d]", path, j)
			node, ok := rawNode.(map[string]any)
			if !ok {
				skipped = append(skipped, malformed(nodePath, "not an object"))
				continue
			}
			nodeID := str(node, "DBNodeId")
			if nodeID == "" {
				skipped = append(skipped, malformed(nodePath+".DBNodeId", "missing"))
				continue
			}
			t.Nodes = append(t.Nodes, Node{
				ID:       nodeID,
				Role:     str(node, "DBNodeRole"),
				Class:    describe(str(node, "DBNodeClass"), t.Class),
				ZoneID:   describe(str(node, "ZoneId"), t.ZoneID),
				RegionID: describe(str(node, "RegionId"), t.RegionID),
			})
		}
		if len(t.Nodes) == 0 {
			skipped = append(skipped, malformed(path+".DBNodes.DBNode", "cluster %s has no nodes", id))
			continue
		}
		topologies = append(topologies, t)
	}
	return topologies, skipped, nil
}

// collection returns the array at obj[outer][inner]. An absent outer key is an
// error; an absent or null inner array means the account owns nothing.
func collection(obj map[string]any, outer, inner string) ([]any, error) {
	raw, ok := obj[outer]
	if !ok || raw == nil {
		return nil, malformed(outer, "missing")
	}
	wrapper, ok := raw.(map[string]any)
	if !ok {
		return nil, malformed(outer, "not an object")
	}
	items, ok := wrapper[inner]
	if !ok || items == nil {
		return nil, nil
	}
	arr, ok := items.([]any)
	if !ok {
		return nil, malformed(outer+"."+inner, "not an array")
	}
	return arr, nil
}

func dedupe(topologies []*Topology) []*Topology {
	seen := make(map[string]bool, len(topologies))
	unique := topologies[:0]
	for _, t := range topologies {
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		unique = append(unique, t)
	}
	return unique
}

func str(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func describe(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
