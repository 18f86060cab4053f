// Package registry tracks the switches currently owned by one controller.
//
// An entry exists exactly while the transport reports the switch connected to
// this controller. Entries are added on connect and removed on disconnect or
// after a successful outward migration. Registration order is preserved and
// is the order switches are offered for migration.
package registry

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/pilot-net/sdn-balance/pkg/types"
)

// Entry is one registered switch.
type Entry struct {
	Switch        types.SwitchID
	RegisteredAt  time.Time
	Seq           uint64
	LastRequestAt *time.Time // set when a stats request is issued
}

// Registry is a concurrency-safe, registration-ordered set of switches.
type Registry struct {
	mu      sync.Mutex
	entries map[types.SwitchID]*Entry
	nextSeq uint64
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		entries: make(map[types.SwitchID]*Entry),
	}
}

// Add registers sw. Returns false if it was already registered, in which case
// its position is unchanged.
func (r *Registry) Add(sw types.SwitchID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[sw]; exists {
		return false
	}
	r.nextSeq++
	r.entries[sw] = &Entry{
		Switch:       sw,
		RegisteredAt: time.Now(),
		Seq:          r.nextSeq,
	}
	return true
}

// Remove unregisters sw. Returns false if it was not registered.
func (r *Registry) Remove(sw types.SwitchID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[sw]; !exists {
		return false
	}
	delete(r.entries, sw)
	return true
}

// Has reports whether sw is registered.
func (r *Registry) Has(sw types.SwitchID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[sw]
	return ok
}

// MarkRequested records that a stats request was sent to sw at t.
// Returns false if sw is not registered.
func (r *Registry) MarkRequested(sw types.SwitchID, t time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[sw]
	if !ok {
		return false
	}
	e.LastRequestAt = &t
	return true
}

// LastRequest returns when the last stats request was sent to sw.
// ok is false when sw is not registered or no request was recorded.
func (r *Registry) LastRequest(sw types.SwitchID) (t time.Time, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.entries[sw]
	if !exists || e.LastRequestAt == nil {
		return time.Time{}, false
	}
	return *e.LastRequestAt, true
}

// Oldest returns the earliest-registered switch.
func (r *Registry) Oldest() (types.SwitchID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var oldest *Entry
	for _, e := range r.entries {
		if oldest == nil || e.Seq < oldest.Seq {
			oldest = e
		}
	}
	if oldest == nil {
		return "", false
	}
	return oldest.Switch, true
}

// List returns registered switches in registration order.
func (r *Registry) List() []types.SwitchID {
	entries := r.Entries()
	out := make([]types.SwitchID, len(entries))
	for i, e := range entries {
		out[i] = e.Switch
	}
	return out
}

// Entries returns copies of all entries in registration order.
func (r *Registry) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		c := *e
		if e.LastRequestAt != nil {
			t := *e.LastRequestAt
			c.LastRequestAt = &t
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b Entry) int { return cmp.Compare(a.Seq, b.Seq) })
	return out
}

// Len returns the number of registered switches.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
