package config

import (
	"fmt"
	"sort"
	"strings"
)

// BytesPerGB is the storage unit of the capacity table.
const BytesPerGB = 1 << 30

// Capacity represents the provisioned resource limits of an instance or node class
type Capacity struct {
	SKU            string  `yaml:"-"`
	MaxConnections int     `yaml:"max_connections"`
	MaxStorageGB   float64 `yaml:"max_storage_gb"`
}

// MaxStorageBytes returns the storage limit in bytes
func (c Capacity) MaxStorageBytes() float64 {
	return c.MaxStorageGB * BytesPerGB
}

// Family returns the class family of the SKU with the size suffix removed,
// e.g. "polar.mysql.x4" for "polar.mysql.x4.large".
func (c Capacity) Family() string {
	i := strings.LastIndex(c.SKU, ".")
	if i <= 0 {
		return c.SKU
	}
	return c.SKU[:i]
}

// CapacityTable maps a SKU string to its capacity limits
type CapacityTable map[string]Capacity

// DefaultCapacityTable holds the built-in capacity limits.
//
// The PolarDB entries are kept exactly as operators maintained them. Several
// classes list 1200 connections where the vendor sizing guide suggests 10000
// or 64000; rules.CheckCapacityTable reports them at startup so the values can
// be confirmed or overridden in the config file.
var DefaultCapacityTable = CapacityTable{
	// PolarDB for MySQL
	"polar.mysql.x2.medium":  {MaxConnections: 1200, MaxStorageGB: 5120},  // 2C4G
	"polar.mysql.x4.medium":  {MaxConnections: 1200, MaxStorageGB: 5120},  // 2C8G
	"polar.mysql.x4.large":   {MaxConnections: 5000, MaxStorageGB: 10240}, // 4C16G
	"polar.mysql.x4.xlarge":  {MaxConnections: 10000, MaxStorageGB: 10240},
	"polar.mysql.x8.xlarge":  {MaxConnections: 1200, MaxStorageGB: 30720},
	"polar.mysql.x8.2xlarge": {MaxConnections: 1200, MaxStorageGB: 51200},
	"polar.mysql.x8.4xlarge": {MaxConnections: 1200, MaxStorageGB: 51200},

	// ApsaraDB for MongoDB replica set
	"dds.mongo.mid":      {MaxConnections: 500},  // 1C2G
	"dds.mongo.standard": {MaxConnections: 1000}, // 2C4G
	"dds.mongo.large":    {MaxConnections: 3000}, // 4C8G
	"dds.mongo.xlarge":   {MaxConnections: 5000}, // 8C16G
	"dds.mongo.2xlarge":  {MaxConnections: 8000}, // 8C32G
	"dds.mongo.4xlarge":  {MaxConnections: 16000},
}

// Lookup returns the capacity of a SKU. A miss returns the zero Capacity and false.
func (t CapacityTable) Lookup(sku string) (Capacity, bool) {
	c, ok := t[sku]
	if !ok {
		return Capacity{}, false
	}
	c.SKU = sku
	return c, true
}

// Merge returns a new table with the entries of other added to, or replacing, those of t
func (t CapacityTable) Merge(other CapacityTable) CapacityTable {
	merged := make(CapacityTable, len(t)+len(other))
	for sku, c := range t {
		merged[sku] = c
	}
	for sku, c := range other {
		merged[sku] = c
	}
	return merged
}

// SKUs returns the table's SKUs in sorted order
func (t CapacityTable) SKUs() []string {
	skus := make([]string, 0, len(t))
	for sku := range t {
		skus = append(skus, sku)
	}
	sort.Strings(skus)
	return skus
}

// Validate rejects negative limits
func (t CapacityTable) Validate() error {
	for _, sku := range t.SKUs() {
		c := t[sku]
		if c.MaxConnections < 0 || c.MaxStorageGB < 0 {
			return fmt.Errorf("capacity for %s has negative limits", sku)
		}
	}
	return nil
}
