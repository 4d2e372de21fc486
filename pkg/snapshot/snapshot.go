package snapshot

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// SampleLabels are the labels of every metric and derived gauge
var SampleLabels = []string{"account", "instance_id", "instance_desc", "node_id", "metric_name"}

// MetaLabels are the labels of the per-node topology gauges
var MetaLabels = []string{
	"account", "instance_id", "instance_desc", "node_id",
	"instance_class", "node_role", "node_class", "status", "db_type", "db_version",
	"zone_id", "region_id", "resource_group_id", "max_connections", "max_storage_gb",
}

// Sample is one normalized gauge value
type Sample struct {
	Family       string // fully qualified gauge name
	Help         string
	Account      string
	InstanceID   string
	InstanceDesc string
	NodeID       string
	MetricName   string
	Value        float64

	// Meta holds the topology labels of a meta sample; nil for metric samples
	Meta map[string]string
}

// IsMeta reports whether the sample is a topology meta sample
func (s Sample) IsMeta() bool {
	return s.Meta != nil
}

// LabelNames returns the label names of the sample's family
func (s Sample) LabelNames() []string {
	if s.IsMeta() {
		return MetaLabels
	}
	return SampleLabels
}

// LabelValues returns the label values in LabelNames order
func (s Sample) LabelValues() []string {
	if !s.IsMeta() {
		return []string{s.Account, s.InstanceID, s.InstanceDesc, s.NodeID, s.MetricName}
	}

	values := []string{s.Account, s.InstanceID, s.InstanceDesc, s.NodeID}
	for _, name := range MetaLabels[4:] {
		values = append(values, s.Meta[name])
	}
	return values
}

func (s Sample) key() string {
	return s.Family + "\xff" + strings.Join(s.LabelValues(), "\xff")
}

// Snapshot is the immutable result of one poll cycle
type Snapshot struct {
	samples     []Sample
	diagnostics map[string]int // recovered failures by kind

	CollectedAt time.Time
	Duration    time.Duration
	Instances   int
}

// Empty returns a snapshot without samples
func Empty() *Snapshot {
	return &Snapshot{diagnostics: map[string]int{}}
}

// Samples returns a copy of the snapshot's samples
func (s *Snapshot) Samples() []Sample {
	out := make([]Sample, len(s.samples))
	copy(out, s.samples)
	return out
}

// Diagnostics returns a copy of the recovered failure counts by kind
func (s *Snapshot) Diagnostics() map[string]int {
	return copyCounts(s.diagnostics)
}

// Len returns the number of samples
func (s *Snapshot) Len() int {
	return len(s.samples)
}

// Errors returns the total number of recovered failures
func (s *Snapshot) Errors() int {
	total := 0
	for _, n := range s.diagnostics {
		total += n
	}
	return total
}

// Accumulator collects the samples of one in-flight poll cycle. It is safe
// for concurrent use and is owned by a single cycle.
type Accumulator struct {
	mu          sync.Mutex
	started     time.Time
	samples     []Sample
	seen        map[string]struct{}
	instances   int
	diagnostics map[string]int
}

// NewAccumulator starts a cycle at the given time
func NewAccumulator(started time.Time) *Accumulator {
	return &Accumulator{
		started:     started,
		seen:        make(map[string]struct{}),
		diagnostics: make(map[string]int),
	}
}

// Add appends a sample. A sample with the same family and labels as an
// earlier one is dropped and false is returned.
func (a *Accumulator) Add(s Sample) bool {
	key := s.key()

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, dup := a.seen[key]; dup {
		return false
	}
	a.seen[key] = struct{}{}
	a.samples = append(a.samples, s)
	return true
}

// AddInstances counts enumerated instances
func (a *Accumulator) AddInstances(n int) {
	a.mu.Lock()
	a.instances += n
	a.mu.Unlock()
}

// Record counts one recovered failure of the given kind
func (a *Accumulator) Record(kind string) {
	a.mu.Lock()
	a.diagnostics[kind]++
	a.mu.Unlock()
}

// Snapshot freezes the accumulated samples, ordered by family and labels
func (a *Accumulator) Snapshot(finished time.Time) *Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	samples := make([]Sample, len(a.samples))
	copy(samples, a.samples)
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].key() < samples[j].key()
	})

	return &Snapshot{
		samples:     samples,
		diagnostics: copyCounts(a.diagnostics),
		CollectedAt: finished,
		Duration:    finished.Sub(a.started),
		Instances:   a.instances,
	}
}

func copyCounts(counts map[string]int) map[string]int {
	out := make(map[string]int, len(counts))
	for kind, n := range counts {
		out[kind] = n
	}
	return out
}
