package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/pilot-net/sdn-balance/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockRunner returns canned output for any command line containing a
// registered substring and records every call.
type MockRunner struct {
	mu      sync.Mutex
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

func NewMockRunner() *MockRunner {
	return &MockRunner{outputs: make(map[string]string), errs: make(map[string]error)}
}

func (m *MockRunner) Set(cmd, out string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs[cmd] = out
}

func (m *MockRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	line := commandLine(name, args)
	m.calls = append(m.calls, line)
	for cmd, err := range m.errs {
		if strings.Contains(line, cmd) {
			return "", err
		}
	}
	for cmd, out := range m.outputs {
		if strings.Contains(line, cmd) {
			return out, nil
		}
	}
	return "", nil
}

func (m *MockRunner) Close() error { return nil }

func (m *MockRunner) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

const dumpFlowsOutput = `OFPST_FLOW reply (OF1.3) (xid=0x2):
 cookie=0x0, duration=10.000s, table=0, n_packets=500, n_bytes=49000, idle_timeout=20, priority=1,tcp,in_port="s1-eth1",nw_src=10.0.0.1,nw_dst=10.0.0.2,tp_src=34567,tp_dst=80 actions=output:"s1-eth2"
 cookie=0x0, duration=4.000s, table=0, n_packets=8, n_bytes=784, priority=1,icmp,nw_src=10.0.0.3,nw_dst=10.0.0.2 actions=output:"s1-eth2"
 cookie=0x0, duration=60.500s, table=0, n_packets=12, n_bytes=1100, priority=0 actions=CONTROLLER:65535
`

func TestParseFlows(t *testing.T) {
	flows := ParseFlows("s1", dumpFlowsOutput)
	if len(flows) != 3 {
		t.Fatalf("expected 3 flows, got %d", len(flows))
	}

	f := flows[0]
	if f.Switch != "s1" || f.SrcIP != "10.0.0.1" || f.DstIP != "10.0.0.2" {
		t.Errorf("unexpected addresses: %+v", f)
	}
	if f.IPProto != 6 || f.SrcPort != 34567 || f.DstPort != 80 || f.Priority != 1 {
		t.Errorf("unexpected match fields: %+v", f)
	}
	if f.PacketCount != 500 || f.ByteCount != 49000 || f.DurationSec != 10 {
		t.Errorf("unexpected counters: %+v", f)
	}
	if f.PacketsPerSec != 50 || f.BytesPerSec != 4900 {
		t.Errorf("unexpected rates: %+v", f)
	}

	if flows[1].IPProto != 1 {
		t.Errorf("expected icmp proto, got %d", flows[1].IPProto)
	}

	miss := flows[2]
	if miss.DstIP != "" || miss.Priority != 0 {
		t.Errorf("unexpected table-miss flow: %+v", miss)
	}
	if flows[0].FlowID == flows[1].FlowID || miss.FlowID == "" {
		t.Errorf("flow ids should be distinct and non-empty: %q %q %q", flows[0].FlowID, flows[1].FlowID, miss.FlowID)
	}
}

func TestParseFlows_Empty(t *testing.T) {
	if flows := ParseFlows("s1", "OFPST_FLOW reply (OF1.3) (xid=0x2):\n"); len(flows) != 0 {
		t.Errorf("expected no flows, got %d", len(flows))
	}
}

const controllerCSV = `aaaa-1,tcp:127.0.0.1:6653,true
bbbb-2,tcp:127.0.0.1:6654,true
cccc-3,tcp:127.0.0.1:6653,false
dddd-4,"tcp:127.0.0.1:6653",true
`

const bridgeCSV = `s1,aaaa-1
s2,bbbb-2
s3,cccc-3
s4,dddd-4 bbbb-2
s5,
`

func TestParseOwnedBridges(t *testing.T) {
	owned, err := ParseOwnedBridges(bridgeCSV, controllerCSV, "tcp:127.0.0.1:6653")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// s3 has a record for us but is not connected
	want := []types.SwitchID{"s1", "s4"}
	if len(owned) != len(want) || owned[0] != want[0] || owned[1] != want[1] {
		t.Errorf("expected %v, got %v", want, owned)
	}
}

func TestDiff(t *testing.T) {
	events := diff([]types.SwitchID{"s1", "s2"}, []types.SwitchID{"s2", "s3"})
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %v", events)
	}
	if events[0] != (Event{Kind: SwitchConnected, Switch: "s3"}) {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[1] != (Event{Kind: SwitchDisconnected, Switch: "s1"}) {
		t.Errorf("unexpected second event: %+v", events[1])
	}
}

func TestOVS_PollStats(t *testing.T) {
	runner := NewMockRunner()
	runner.Set("dump-flows s1", dumpFlowsOutput)

	o := NewOVS(OVSConfig{OpenFlowTarget: "tcp:127.0.0.1:6653"}, runner, testLogger())
	reply, err := o.PollStats(context.Background(), "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reply.Flows) != 3 || reply.Switch != "s1" {
		t.Errorf("unexpected reply: %+v", reply)
	}

	calls := runner.Calls()
	if len(calls) != 1 || calls[0] != "ovs-ofctl -O OpenFlow13 dump-flows s1" {
		t.Errorf("unexpected calls: %v", calls)
	}
}

func TestOVS_PollStats_RequestedAtExcludesRateLimitWait(t *testing.T) {
	runner := NewMockRunner()
	runner.Set("dump-flows", dumpFlowsOutput)

	o := NewOVS(OVSConfig{}, runner, testLogger())
	o.limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 1)
	ctx := context.Background()

	if _, err := o.PollStats(ctx, "s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The second poll waits for a token before it is sent
	start := time.Now()
	reply, err := o.PollStats(ctx, "s2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if waited := reply.RequestedAt.Sub(start); waited < 50*time.Millisecond {
		t.Errorf("expected RequestedAt after the limiter wait, waited %v", waited)
	}
	if reply.ReceivedAt.Before(reply.RequestedAt) {
		t.Errorf("reply received before it was requested: %+v", reply)
	}
}

func TestOVS_ReassignController(t *testing.T) {
	runner := NewMockRunner()
	o := NewOVS(OVSConfig{}, runner, testLogger())

	if err := o.ReassignController(context.Background(), "s2", "tcp:127.0.0.1:6655"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := runner.Calls()
	if len(calls) != 1 || calls[0] != "ovs-vsctl set-controller s2 tcp:127.0.0.1:6655" {
		t.Errorf("unexpected calls: %v", calls)
	}

	runner.errs["set-controller"] = errors.New("exit status 1")
	err := o.ReassignController(context.Background(), "s2", "tcp:127.0.0.1:6655")
	if !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
}

func TestOVS_Watch(t *testing.T) {
	runner := NewMockRunner()
	runner.Set("list Controller", controllerCSV)
	runner.Set("list Bridge", "s1,aaaa-1\n")

	o := NewOVS(OVSConfig{
		OpenFlowTarget:    "tcp:127.0.0.1:6653",
		WatchInterval:     10 * time.Millisecond,
		CommandsPerMinute: 60000,
	}, runner, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events := make(chan Event, 16)
	go o.Watch(ctx, func(ev Event) { events <- ev })

	expect := func(want Event) {
		t.Helper()
		select {
		case ev := <-events:
			if ev != want {
				t.Errorf("expected %+v, got %+v", want, ev)
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for %+v", want)
		}
	}

	expect(Event{Kind: SwitchConnected, Switch: "s1"})

	// s1 moves away, s4 arrives
	runner.Set("list Bridge", "s1,bbbb-2\ns4,dddd-4\n")
	expect(Event{Kind: SwitchConnected, Switch: "s4"})
	expect(Event{Kind: SwitchDisconnected, Switch: "s1"})
}

func TestCommandLine(t *testing.T) {
	got := commandLine("ovs-vsctl", []string{"set-controller", "s1", "tcp:1.2.3.4:6653", "it's"})
	want := `ovs-vsctl set-controller s1 tcp:1.2.3.4:6653 'it'\''s'`
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}
