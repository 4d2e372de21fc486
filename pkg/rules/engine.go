package rules

import (
	"math"

	"github.com/fraser-isbester/aliyun-db-exporter/pkg/config"
)

// Derived metric names
const (
	ConnectionSaturation = "connection_saturation"
	DiskSaturation       = "disk_saturation"
)

// Derived is a saturation ratio computed from one normalized value
type Derived struct {
	Name   string
	Source string // metric the ratio was computed from
	Value  float64
}

// Rule maps a source metric to a saturation ratio against one capacity limit
type Rule struct {
	Metric  string
	Derived string
	// Unit converts the source value into the capacity limit's unit
	Unit  float64
	Limit func(config.Capacity) float64
}

// Engine is the derived metrics rules engine
type Engine struct {
	capacity config.CapacityTable
	rules    map[config.Engine]map[string]Rule
}

// NewEngine builds the rule table of every configured engine
func NewEngine(cfg *config.Config) *Engine {
	e := &Engine{
		capacity: cfg.Capacity,
		rules:    make(map[config.Engine]map[string]Rule, len(cfg.Engines)),
	}

	for engine, ec := range cfg.Engines {
		table := make(map[string]Rule)
		if ec.ConnectionMetric != "" {
			table[ec.ConnectionMetric] = Rule{
				Metric:  ec.ConnectionMetric,
				Derived: ConnectionSaturation,
				Unit:    1,
				Limit:   func(c config.Capacity) float64 { return float64(c.MaxConnections) },
			}
		}
		if ec.DiskMetric != "" {
			table[ec.DiskMetric] = Rule{
				Metric:  ec.DiskMetric,
				Derived: DiskSaturation,
				Unit:    ec.DiskUnitBytes,
				Limit:   config.Capacity.MaxStorageBytes,
			}
		}
		e.rules[engine] = table
	}

	return e
}

// Derive computes the saturation ratio for a metric value of an instance
// class. It returns false when no rule applies, the SKU is unknown, the
// limit is zero or the ratio is not finite.
func (e *Engine) Derive(engine config.Engine, metric string, value float64, sku string) (Derived, bool) {
	rule, ok := e.rules[engine][metric]
	if !ok {
		return Derived{}, false
	}

	capacity, ok := e.capacity.Lookup(sku)
	if !ok {
		return Derived{}, false
	}

	limit := rule.Limit(capacity)
	if limit <= 0 {
		return Derived{}, false
	}

	ratio := value * rule.Unit / limit
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return Derived{}, false
	}

	return Derived{Name: rule.Derived, Source: metric, Value: ratio}, true
}
