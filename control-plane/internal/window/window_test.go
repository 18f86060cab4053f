package window

import (
	"testing"
	"time"

	"github.com/pilot-net/sdn-balance/pkg/types"
)

func snap(id string, load int) types.MetricSnapshot {
	return types.MetricSnapshot{
		Controller:        types.ControllerID(id),
		TotalLoad:         load,
		ConnectedSwitches: []types.SwitchID{types.SwitchID("s-" + id)},
	}
}

func ids(snaps []types.MetricSnapshot) []types.ControllerID {
	out := make([]types.ControllerID, len(snaps))
	for i, s := range snaps {
		out[i] = s.Controller
	}
	return out
}

func TestUpsert_KeepsFirstArrivalPosition(t *testing.T) {
	w := New()
	now := time.Now()

	w.Upsert(snap("A", 1), now)
	w.Upsert(snap("B", 2), now)
	if replaced := w.Upsert(snap("A", 99), now.Add(time.Second)); !replaced {
		t.Error("expected second A to replace the first")
	}

	got := w.Snapshots()
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Controller != "A" || got[0].TotalLoad != 99 {
		t.Errorf("expected A with latest load first, got %+v", got[0])
	}
	if got[1].Controller != "B" {
		t.Errorf("expected B second, got %s", got[1].Controller)
	}
}

func TestUpsert_CopiesSnapshot(t *testing.T) {
	w := New()
	s := snap("A", 1)
	w.Upsert(s, time.Now())

	s.ConnectedSwitches[0] = "mutated"
	if got := w.Snapshots()[0].ConnectedSwitches[0]; got != "s-A" {
		t.Errorf("window entry changed with caller's slice: %s", got)
	}

	out := w.Snapshots()
	out[0].ConnectedSwitches[0] = "mutated"
	if got := w.Snapshots()[0].ConnectedSwitches[0]; got != "s-A" {
		t.Errorf("window entry changed through Snapshots result: %s", got)
	}
}

func TestCoversAndMissing(t *testing.T) {
	expected := []types.ControllerID{"A", "B", "C"}
	w := New()
	now := time.Now()

	w.Upsert(snap("A", 1), now)
	w.Upsert(snap("B", 1), now)
	if w.Covers(expected) {
		t.Error("window without C must not cover expected")
	}
	if m := w.Missing(expected); len(m) != 1 || m[0] != "C" {
		t.Errorf("expected C missing, got %v", m)
	}

	// An unexpected controller does not make up for a missing one
	w.Upsert(snap("X", 1), now)
	if w.Covers(expected) {
		t.Error("unexpected controller must not complete the window")
	}

	w.Upsert(snap("C", 1), now)
	if !w.Covers(expected) {
		t.Error("expected superset to cover")
	}
	if m := w.Missing(expected); len(m) != 0 {
		t.Errorf("expected nothing missing, got %v", m)
	}
}

func TestOldest(t *testing.T) {
	w := New()
	if _, ok := w.Oldest(); ok {
		t.Error("empty window has no oldest entry")
	}

	base := time.Now()
	w.Upsert(snap("A", 1), base.Add(2*time.Second))
	w.Upsert(snap("B", 1), base)
	oldest, ok := w.Oldest()
	if !ok || !oldest.Equal(base) {
		t.Errorf("expected %v, got %v", base, oldest)
	}
}

func TestPruneBefore(t *testing.T) {
	w := New()
	base := time.Now()
	w.Upsert(snap("A", 1), base)
	w.Upsert(snap("B", 1), base.Add(10*time.Second))
	w.Upsert(snap("C", 1), base.Add(time.Second))

	dropped := w.PruneBefore(base.Add(5 * time.Second))
	if len(dropped) != 2 || dropped[0] != "A" || dropped[1] != "C" {
		t.Errorf("expected A and C dropped, got %v", dropped)
	}
	if got := ids(w.Snapshots()); len(got) != 1 || got[0] != "B" {
		t.Errorf("expected only B left, got %v", got)
	}

	// Index stays consistent: re-upserting a pruned controller appends it
	w.Upsert(snap("A", 5), base.Add(11*time.Second))
	if got := ids(w.Snapshots()); len(got) != 2 || got[1] != "A" {
		t.Errorf("expected [B A], got %v", got)
	}
	if replaced := w.Upsert(snap("B", 7), base.Add(12*time.Second)); !replaced {
		t.Error("expected B to be replaced in place")
	}
}

func TestClear(t *testing.T) {
	w := New()
	w.Upsert(snap("A", 1), time.Now())
	w.Clear()
	if w.Len() != 0 || w.Has("A") {
		t.Error("expected empty window after Clear")
	}
	if replaced := w.Upsert(snap("A", 1), time.Now()); replaced {
		t.Error("expected fresh slot after Clear")
	}
}
