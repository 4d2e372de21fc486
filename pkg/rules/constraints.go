package rules

import (
	"fmt"
	"strings"

	"github.com/fraser-isbester/aliyun-db-exporter/pkg/config"
)

// sizeRank orders the class size suffixes shared by DDS and PolarDB SKUs
var sizeRank = map[string]int{
	"small":    1,
	"mid":      2,
	"medium":   2,
	"standard": 3,
	"large":    4,
	"xlarge":   5,
	"2xlarge":  6,
	"4xlarge":  7,
	"8xlarge":  8,
}

// CheckCapacityTable reports entries whose connection limit is lower than that
// of a smaller class of the same product. A smaller class is one of the same
// family with a lower size rank, or one with less storage.
func CheckCapacityTable(table config.CapacityTable) []string {
	var warnings []string

	skus := table.SKUs()
	for _, sku := range skus {
		c, _ := table.Lookup(sku)
		for _, other := range skus {
			if other == sku || product(other) != product(sku) {
				continue
			}
			o, _ := table.Lookup(other)
			if !larger(c, o) || c.MaxConnections >= o.MaxConnections {
				continue
			}
			warnings = append(warnings,
				fmt.Sprintf("%s allows %d connections, fewer than the smaller class %s (%d). Confirm the capacity table.",
					sku, c.MaxConnections, other, o.MaxConnections))
			break
		}
	}

	return warnings
}

// larger reports whether a is a bigger class than b
func larger(a, b config.Capacity) bool {
	if a.Family() == b.Family() {
		ra, okA := sizeRank[size(a.SKU)]
		rb, okB := sizeRank[size(b.SKU)]
		if okA && okB && ra != rb {
			return ra > rb
		}
	}
	return a.MaxStorageGB > b.MaxStorageGB
}

// product returns the first two components of a SKU, e.g. "polar.mysql"
func product(sku string) string {
	parts := strings.SplitN(sku, ".", 3)
	if len(parts) < 2 {
		return sku
	}
	return parts[0] + "." + parts[1]
}

func size(sku string) string {
	return sku[strings.LastIndex(sku, ".")+1:]
}
