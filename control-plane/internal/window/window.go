// Package window holds the coordinator's aggregation window: the latest
// snapshot from each controller, accumulated until every expected controller
// has reported.
//
// A Window is not safe for concurrent use; the service serializes access.
package window

import (
	"slices"
	"time"

	"github.com/pilot-net/sdn-balance/pkg/types"
)

// Entry is one controller's slot in the window.
type Entry struct {
	Snapshot  types.MetricSnapshot
	ArrivedAt time.Time
}

// Window maps controller identity to its most recent snapshot, keeping the
// order in which controllers first reported.
type Window struct {
	entries []Entry
	index   map[types.ControllerID]int
}

// New returns an empty window.
func New() *Window {
	return &Window{index: make(map[types.ControllerID]int)}
}

// Upsert stores s as the latest snapshot for its controller. A controller
// that already has a slot keeps its position; the snapshot and arrival time
// are replaced. It reports whether an existing slot was replaced.
func (w *Window) Upsert(s types.MetricSnapshot, at time.Time) bool {
	e := Entry{Snapshot: s.Clone(), ArrivedAt: at}
	if i, ok := w.index[s.Controller]; ok {
		w.entries[i] = e
		return true
	}
	w.index[s.Controller] = len(w.entries)
	w.entries = append(w.entries, e)
	return false
}

// Has reports whether id has a slot.
func (w *Window) Has(id types.ControllerID) bool {
	_, ok := w.index[id]
	return ok
}

// Covers reports whether every controller in expected has a slot.
func (w *Window) Covers(expected []types.ControllerID) bool {
	for _, id := range expected {
		if !w.Has(id) {
			return false
		}
	}
	return true
}

// Missing returns the controllers in expected without a slot, in the order
// given.
func (w *Window) Missing(expected []types.ControllerID) []types.ControllerID {
	var out []types.ControllerID
	for _, id := range expected {
		if !w.Has(id) {
			out = append(out, id)
		}
	}
	return out
}

// Snapshots returns copies of the window's snapshots in first-arrival order.
func (w *Window) Snapshots() []types.MetricSnapshot {
	out := make([]types.MetricSnapshot, len(w.entries))
	for i, e := range w.entries {
		out[i] = e.Snapshot.Clone()
	}
	return out
}

// Oldest returns the earliest arrival time in the window.
func (w *Window) Oldest() (time.Time, bool) {
	if len(w.entries) == 0 {
		return time.Time{}, false
	}
	oldest := w.entries[0].ArrivedAt
	for _, e := range w.entries[1:] {
		if e.ArrivedAt.Before(oldest) {
			oldest = e.ArrivedAt
		}
	}
	return oldest, true
}

// PruneBefore drops entries that arrived before cutoff and returns the
// controllers dropped. Remaining entries keep their relative order.
func (w *Window) PruneBefore(cutoff time.Time) []types.ControllerID {
	var dropped []types.ControllerID
	w.entries = slices.DeleteFunc(w.entries, func(e Entry) bool {
		if e.ArrivedAt.Before(cutoff) {
			dropped = append(dropped, e.Snapshot.Controller)
			return true
		}
		return false
	})
	if len(dropped) > 0 {
		w.reindex()
	}
	return dropped
}

// Len returns the number of controllers in the window.
func (w *Window) Len() int {
	return len(w.entries)
}

// Clear empties the window.
func (w *Window) Clear() {
	w.entries = nil
	clear(w.index)
}

func (w *Window) reindex() {
	clear(w.index)
	for i, e := range w.entries {
		w.index[e.Snapshot.Controller] = i
	}
}
