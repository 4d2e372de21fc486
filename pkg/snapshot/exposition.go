package snapshot

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Source supplies the snapshot to expose
type Source interface {
	Current() *Snapshot
}

// SourceFunc adapts a function to Source
type SourceFunc func() *Snapshot

// Current calls f
func (f SourceFunc) Current() *Snapshot {
	return f()
}

// Collector exposes the samples of the current snapshot as Prometheus gauges.
// The set of families changes between cycles, so it is an unchecked collector
// and describes nothing.
type Collector struct {
	source Source
}

// NewCollector creates a collector reading from source
func NewCollector(source Source) *Collector {
	return &Collector{source: source}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.source.Current()
	if snap == nil {
		return
	}

	descs := make(map[string]*prometheus.Desc)
	for _, s := range snap.samples {
		desc, ok := descs[s.Family]
		if !ok {
			help := s.Help
			if help == "" {
				help = s.Family
			}
			desc = prometheus.NewDesc(s.Family, help, s.LabelNames(), nil)
			descs[s.Family] = desc
		}

		m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, s.Value, s.LabelValues()...)
		if err != nil {
			ch <- prometheus.NewInvalidMetric(desc, err)
			continue
		}
		ch <- m
	}
}

// WriteText renders a snapshot in the Prometheus text exposition format
func WriteText(w io.Writer, snap *Snapshot) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollector(SourceFunc(func() *Snapshot { return snap }))); err != nil {
		return fmt.Errorf("failed to register snapshot collector: %w", err)
	}

	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather snapshot: %w", err)
	}

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
