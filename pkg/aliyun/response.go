package aliyun

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Normalize extracts the most recent value of the first performance key of a
// DescribeDBInstancePerformance response:
//
//	PerformanceKeys.PerformanceKey[0].PerformanceValues.PerformanceValue[0].Value
func Normalize(resp Response) (float64, error) {
	keys, err := list(resp, "PerformanceKeys", "PerformanceKey")
	if err != nil {
		return 0, err
	}
	first, ok := keys[0].(map[string]any)
	if !ok {
		return 0, malformed("PerformanceKeys.PerformanceKey[0]", "not an object")
	}

	points, err := list(first, "PerformanceValues", "PerformanceValue")
	if err != nil {
		return 0, prefixed("PerformanceKeys.PerformanceKey[0]", err)
	}
	return pointValue("PerformanceKeys.PerformanceKey[0].PerformanceValues.PerformanceValue[0]", points[0])
}

// NormalizeMulti extracts every named sub-metric of a DescribeDBNodePerformance
// response, keyed by MetricName:
//
//	PerformanceKeys.PerformanceItem[*].Points.PerformanceItemValue[0].Value
//
// Items that cannot be parsed are left out of values and reported in skipped,
// one *MalformedResponseError each. err is set only when the item list itself
// is absent.
func NormalizeMulti(resp Response) (values map[string]float64, skipped []error, err error) {
	items, err := list(resp, "PerformanceKeys", "PerformanceItem")
	if err != nil {
		return nil, nil, err
	}

	values = make(map[string]float64, len(items))
	for i, raw := range items {
		name, value, err := parseItem(fmt.Sprintf("PerformanceKeys.PerformanceItem[%d]", i), raw)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		if _, dup := values[name]; !dup {
			values[name] = value
		}
	}
	return values, skipped, nil
}

func parseItem(path string, raw any) (string, float64, error) {
	item, ok := raw.(map[string]any)
	if !ok {
		return "", 0, malformed(path, "not an object")
	}
	name, ok := item["MetricName"].(string)
	if !ok || name == "" {
		return "", 0, malformed(path+".MetricName", "missing")
	}

	points, err := list(item, "Points", "PerformanceItemValue")
	if err != nil {
		return "", 0, prefixed(path, err)
	}
	value, err := pointValue(path+".Points.PerformanceItemValue[0]", points[0])
	if err != nil {
		return "", 0, err
	}
	return name, value, nil
}

// list walks nested objects along keys and returns the non-empty array at the end
func list(obj map[string]any, keys ...string) ([]any, error) {
	var cur any = obj
	for i, key := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, malformed(strings.Join(keys[:i], "."), "not an object")
		}
		if cur, ok = m[key]; !ok || cur == nil {
			return nil, malformed(strings.Join(keys[:i+1], "."), "missing")
		}
	}

	path := strings.Join(keys, ".")
	arr, ok := cur.([]any)
	if !ok {
		return nil, malformed(path, "not an array")
	}
	if len(arr) == 0 {
		return nil, malformed(path, "empty")
	}
	return arr, nil
}

func pointValue(path string, raw any) (float64, error) {
	point, ok := raw.(map[string]any)
	if !ok {
		return 0, malformed(path, "not an object")
	}
	v, ok := point["Value"]
	if !ok {
		return 0, malformed(path+".Value", "missing")
	}

	value, err := toFloat(v)
	if err != nil {
		return 0, malformed(path+".Value", "%v", err)
	}
	return value, nil
}

func toFloat(v any) (float64, error) {
	var f float64
	switch x := v.(type) {
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("non-numeric value %q", x)
		}
		f = parsed
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("non-numeric value %q", x)
		}
		f = parsed
	case float64:
		f = x
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value %v", f)
	}
	return f, nil
}

func prefixed(prefix string, err error) error {
	if m, ok := err.(*MalformedResponseError); ok {
		return &MalformedResponseError{Path: prefix + "." + m.Path, Reason: m.Reason}
	}
	return err
}
