package snapshot

import "sync/atomic"

// Registry holds the most recently published snapshot. Publishing swaps a
// single pointer, so readers see either the old or the new snapshot.
type Registry struct {
	current atomic.Pointer[Snapshot]
}

// NewRegistry creates a registry holding an empty snapshot
func NewRegistry() *Registry {
	r := &Registry{}
	r.current.Store(Empty())
	return r
}

// Publish replaces the current snapshot. Nil is ignored.
func (r *Registry) Publish(s *Snapshot) {
	if s == nil {
		return
	}
	r.current.Store(s)
}

// Current returns the latest published snapshot
func (r *Registry) Current() *Snapshot {
	return r.current.Load()
}
