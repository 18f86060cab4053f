package types

import (
	"encoding/json"
	"testing"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue("a", "b")
	q.Push("c")

	if q.Len() != 3 {
		t.Fatalf("expected 3 items, got %d", q.Len())
	}

	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.Pop()
		if !ok {
			t.Fatalf("expected %q, queue was empty", want)
		}
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}

	if _, ok := q.Pop(); ok {
		t.Error("expected empty queue")
	}

	// Reuse after draining
	q.Push("d")
	if v, _ := q.Peek(); v != "d" {
		t.Errorf("expected head d, got %q", v)
	}
	if items := q.Items(); len(items) != 1 || items[0] != "d" {
		t.Errorf("unexpected items: %v", items)
	}
}

func TestMetricSnapshot_Validate(t *testing.T) {
	tests := []struct {
		name    string
		snap    MetricSnapshot
		wantErr bool
	}{
		{"valid", MetricSnapshot{Controller: "1", TotalLoad: 10, AvgLatencyMs: 4.2}, false},
		{"missing controller", MetricSnapshot{TotalLoad: 10}, true},
		{"negative load", MetricSnapshot{Controller: "1", TotalLoad: -1}, true},
		{"negative latency", MetricSnapshot{Controller: "1", AvgLatencyMs: -3}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.snap.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMetricSnapshot_Clone(t *testing.T) {
	orig := MetricSnapshot{Controller: "1", ConnectedSwitches: []SwitchID{"s1", "s2"}}
	c := orig.Clone()
	c.ConnectedSwitches[0] = "s9"

	if orig.ConnectedSwitches[0] != "s1" {
		t.Error("clone shares the switch list with the original")
	}
}

func TestMigrationDirective_Validate(t *testing.T) {
	d := NewMigrationDirective("1", "2", "s1")
	if d.ID == "" {
		t.Error("expected generated ID")
	}
	if err := d.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	self := NewMigrationDirective("1", "1", "s1")
	if err := self.Validate(); err == nil {
		t.Error("expected error for directive to self")
	}
}

func TestMigrationDirective_UnknownFieldsIgnored(t *testing.T) {
	payload := `{"from":"1","to":"2","switch_id":"s3","priority":"high"}`

	var d MigrationDirective
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.From != "1" || d.To != "2" || d.Switch != "s3" {
		t.Errorf("unexpected directive: %+v", d)
	}
}

func TestTopologyView_Clone(t *testing.T) {
	v := TopologyView{
		Controllers: []ControllerView{{Controller: "1", ConnectedSwitches: []SwitchID{"s1"}}},
		Pending:     []MigrationDirective{{From: "1", To: "2", Switch: "s1"}},
	}
	c := v.Clone()
	c.Controllers[0].ConnectedSwitches[0] = "s2"
	c.Pending[0].Switch = "s2"

	if v.Controllers[0].ConnectedSwitches[0] != "s1" || v.Pending[0].Switch != "s1" {
		t.Error("clone shares state with the original")
	}
}
