package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pilot-net/sdn-balance/pkg/types"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.SnapshotReceived("1")
	m.SnapshotReceived("1")
	m.SnapshotReceived("2")
	m.MalformedMessage("controller-reports")
	m.Evaluated(false)
	m.Evaluated(true)
	m.Evaluated(true)

	d := types.MigrationDirective{From: "1", To: "2", Switch: "s1"}
	m.DirectiveDispatched(d)
	m.DirectiveFailed(d)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"snapshots from 1", testutil.ToFloat64(m.snapshotsReceived.WithLabelValues("1")), 2},
		{"snapshots from 2", testutil.ToFloat64(m.snapshotsReceived.WithLabelValues("2")), 1},
		{"malformed", testutil.ToFloat64(m.malformedMessages.WithLabelValues("controller-reports")), 1},
		{"full evaluations", testutil.ToFloat64(m.evaluations.WithLabelValues("full")), 1},
		{"partial evaluations", testutil.ToFloat64(m.evaluations.WithLabelValues("partial")), 2},
		{"dispatched", testutil.ToFloat64(m.directives.WithLabelValues("1", "dispatched")), 1},
		{"failed", testutil.ToFloat64(m.directives.WithLabelValues("1", "failed")), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestMetrics_ControllerGauges(t *testing.T) {
	m := New()
	s := types.MetricSnapshot{Controller: "1", TotalLoad: 120, AvgLatencyMs: 400, ConnectedSwitches: []types.SwitchID{"a", "b"}}

	m.ControllerObserved(s, true)
	if got := testutil.ToFloat64(m.controllerOverload.WithLabelValues("1")); got != 1 {
		t.Errorf("expected overloaded flag 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.controllerLoad.WithLabelValues("1")); got != 120 {
		t.Errorf("expected load 120, got %v", got)
	}
	if got := testutil.ToFloat64(m.controllerSwitches.WithLabelValues("1")); got != 2 {
		t.Errorf("expected 2 switches, got %v", got)
	}

	s.TotalLoad = 10
	m.ControllerObserved(s, false)
	if got := testutil.ToFloat64(m.controllerOverload.WithLabelValues("1")); got != 0 {
		t.Errorf("expected overloaded flag cleared, got %v", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.SnapshotReceived("1")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `sdnlb_snapshots_received_total{controller="1"} 1`) {
		t.Errorf("exposition missing snapshot counter:\n%s", rec.Body.String())
	}
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.SnapshotReceived("1")
	if got := testutil.ToFloat64(b.snapshotsReceived.WithLabelValues("1")); got != 0 {
		t.Errorf("registries share state: %v", got)
	}
}

type mockPinger struct {
	err   error
	calls atomic.Int32
}

func (p *mockPinger) Ping(ctx context.Context) error {
	p.calls.Add(1)
	return p.err
}

func TestCollector_Health(t *testing.T) {
	db := &mockPinger{}
	cache := &mockPinger{err: errors.New("connection refused")}
	c := NewCollector(map[string]Pinger{"database": db, "cache": cache, "unused": nil})

	h := c.Health(context.Background())
	if h.Status != "degraded" {
		t.Errorf("expected degraded with unreachable cache, got %s", h.Status)
	}
	if len(h.Dependencies) != 2 {
		t.Fatalf("expected 2 dependencies, got %+v", h.Dependencies)
	}
	// Sorted by name
	if h.Dependencies[0].Name != "cache" || h.Dependencies[0].Status != "unreachable" {
		t.Errorf("unexpected cache health: %+v", h.Dependencies[0])
	}
	if h.Dependencies[1].Name != "database" || h.Dependencies[1].Status != "healthy" {
		t.Errorf("unexpected database health: %+v", h.Dependencies[1])
	}
	if h.Process.Goroutines <= 0 {
		t.Error("expected goroutine count")
	}

	// Cached: dependencies are not pinged again
	c.Health(context.Background())
	if db.calls.Load() != 1 {
		t.Errorf("expected cached health, database pinged %d times", db.calls.Load())
	}
}

func TestCollector_NoDependencies(t *testing.T) {
	h := NewCollector(nil).Health(context.Background())
	if h.Dependencies == nil || len(h.Dependencies) != 0 {
		t.Errorf("expected empty dependency list, got %v", h.Dependencies)
	}
}

func TestCollector_Stats(t *testing.T) {
	c := NewCollector(nil)
	c.AddStats("bus_queue", func(ctx context.Context) (any, error) { return int64(7), nil })
	c.AddStats("schema", func(ctx context.Context) (any, error) { return nil, errors.New("relation missing") })

	h := c.Health(context.Background())
	if h.Stats["bus_queue"] != int64(7) {
		t.Errorf("expected queue depth 7, got %v", h.Stats["bus_queue"])
	}
	failed, ok := h.Stats["schema"].(map[string]string)
	if !ok || failed["error"] != "relation missing" {
		t.Errorf("expected schema error entry, got %v", h.Stats["schema"])
	}
	if h.Status != "healthy" {
		t.Errorf("a failing statistic should not degrade health, got %s", h.Status)
	}
}
