package store

import (
	"testing"
	"time"

	"github.com/pilot-net/sdn-balance/pkg/types"
)

func TestSnapshotRows(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	snaps := []types.MetricSnapshot{
		{
			Controller:        "1",
			TotalSwitches:     2,
			TotalLoad:         40,
			AvgLatencyMs:      12.5,
			ConnectedSwitches: []types.SwitchID{"s1", "s2"},
			Timestamp:         ts,
		},
		{Controller: "2"},
	}

	rows := snapshotRows("ev-1", true, snaps)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	for _, row := range rows {
		if len(row) != len(snapshotColumns) {
			t.Fatalf("row has %d values for %d columns", len(row), len(snapshotColumns))
		}
	}

	first := rows[0]
	if first[0] != "ev-1" || first[1] != true || first[2] != "1" {
		t.Errorf("unexpected leading values: %v", first[:3])
	}
	switches, ok := first[6].([]string)
	if !ok || len(switches) != 2 || switches[1] != "s2" {
		t.Errorf("expected switches as text array, got %#v", first[6])
	}
	if first[7] != ts {
		t.Errorf("expected reported_at %v, got %v", ts, first[7])
	}

	// Missing timestamp falls back to now; empty switch list stays non-nil
	second := rows[1]
	if reported, ok := second[7].(time.Time); !ok || reported.IsZero() {
		t.Errorf("expected fallback timestamp, got %v", second[7])
	}
	if switches, ok := second[6].([]string); !ok || switches == nil {
		t.Errorf("expected empty text array, got %#v", second[6])
	}
}

func TestNilIfEmpty(t *testing.T) {
	if nilIfEmpty("") != nil {
		t.Error("expected nil for empty string")
	}
	if nilIfEmpty("boom") != "boom" {
		t.Error("expected value passed through")
	}
}

func TestSwitchConversions(t *testing.T) {
	ids := switchIDs(switchStrings([]types.SwitchID{"a", "b"}))
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("unexpected round trip: %v", ids)
	}
}
