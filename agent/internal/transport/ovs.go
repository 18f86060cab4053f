package transport

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pilot-net/sdn-balance/pkg/types"
)

// OVSConfig configures the Open vSwitch transport.
type OVSConfig struct {
	// OpenFlowTarget is this controller's own target, e.g. tcp:127.0.0.1:6653.
	// A bridge belongs to this controller while it is connected to this target.
	OpenFlowTarget string

	OpenFlowVersion   string        // default OpenFlow13
	OfctlPath         string        // default ovs-ofctl
	VsctlPath         string        // default ovs-vsctl
	WatchInterval     time.Duration // default 5s
	CommandsPerMinute int           // default 600
}

// OVS implements Transport for Open vSwitch bridges.
type OVS struct {
	cfg     OVSConfig
	runner  Runner
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewOVS creates an Open vSwitch transport that executes through runner.
func NewOVS(cfg OVSConfig, runner Runner, logger *slog.Logger) *OVS {
	if cfg.OpenFlowVersion == "" {
		cfg.OpenFlowVersion = "OpenFlow13"
	}
	if cfg.OfctlPath == "" {
		cfg.OfctlPath = "ovs-ofctl"
	}
	if cfg.VsctlPath == "" {
		cfg.VsctlPath = "ovs-vsctl"
	}
	if cfg.WatchInterval <= 0 {
		cfg.WatchInterval = 5 * time.Second
	}
	if cfg.CommandsPerMinute <= 0 {
		cfg.CommandsPerMinute = 600
	}

	// Burst covers one poll of every switch in a round
	return &OVS{
		cfg:     cfg,
		runner:  runner,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.CommandsPerMinute)/60.0), 32),
		logger:  logger.With("component", "transport", "kind", "ovs"),
	}
}

func (o *OVS) run(ctx context.Context, name string, args ...string) (string, error) {
	out, _, err := o.runAdmitted(ctx, name, args...)
	return out, err
}

// runAdmitted runs the command once the rate limiter admits it and also
// returns the admission time.
func (o *OVS) runAdmitted(ctx context.Context, name string, args ...string) (string, time.Time, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return "", time.Time{}, fmt.Errorf("%w: rate limit: %v", ErrTransport, err)
	}
	admitted := time.Now()
	out, err := o.runner.Run(ctx, name, args...)
	if err != nil {
		return out, admitted, fmt.Errorf("%w: %s %s: %v", ErrTransport, name, strings.Join(args, " "), err)
	}
	return out, admitted, nil
}

// PollStats dumps the bridge's flow table.
func (o *OVS) PollStats(ctx context.Context, sw types.SwitchID) (*StatsReply, error) {
	out, requested, err := o.runAdmitted(ctx, o.cfg.OfctlPath, "-O", o.cfg.OpenFlowVersion, "dump-flows", string(sw))
	if err != nil {
		return nil, err
	}
	return &StatsReply{
		Switch:      sw,
		Flows:       ParseFlows(sw, out),
		RequestedAt: requested,
		ReceivedAt:  time.Now(),
	}, nil
}

// ReassignController points the bridge at target.
func (o *OVS) ReassignController(ctx context.Context, sw types.SwitchID, target string) error {
	_, err := o.run(ctx, o.cfg.VsctlPath, "set-controller", string(sw), target)
	if err != nil {
		return err
	}
	o.logger.Info("controller reassigned", "switch", sw, "target", target)
	return nil
}

// Watch polls OVSDB every WatchInterval and emits the difference between the
// bridges connected to this controller now and at the previous poll.
func (o *OVS) Watch(ctx context.Context, emit func(Event)) error {
	ticker := time.NewTicker(o.cfg.WatchInterval)
	defer ticker.Stop()

	var current []types.SwitchID
	poll := func() {
		owned, err := o.ownedBridges(ctx)
		if err != nil {
			if ctx.Err() == nil {
				o.logger.Warn("failed to list bridges", "error", err)
			}
			return
		}
		for _, ev := range diff(current, owned) {
			emit(ev)
		}
		current = owned
	}

	// Run immediately on start
	poll()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			poll()
		}
	}
}

// ownedBridges lists bridges with a connected controller record whose target
// is this controller's own target.
func (o *OVS) ownedBridges(ctx context.Context) ([]types.SwitchID, error) {
	ctlOut, err := o.run(ctx, o.cfg.VsctlPath,
		"--format=csv", "--data=bare", "--no-headings",
		"--columns=_uuid,target,is_connected", "list", "Controller")
	if err != nil {
		return nil, err
	}
	brOut, err := o.run(ctx, o.cfg.VsctlPath,
		"--format=csv", "--data=bare", "--no-headings",
		"--columns=name,controller", "list", "Bridge")
	if err != nil {
		return nil, err
	}
	return ParseOwnedBridges(brOut, ctlOut, o.cfg.OpenFlowTarget)
}

// Close releases the command runner.
func (o *OVS) Close() error {
	return o.runner.Close()
}

// diff returns connect events for switches in next but not prev and
// disconnect events for the reverse.
func diff(prev, next []types.SwitchID) []Event {
	var events []Event
	for _, sw := range next {
		if !slices.Contains(prev, sw) {
			events = append(events, Event{Kind: SwitchConnected, Switch: sw})
		}
	}
	for _, sw := range prev {
		if !slices.Contains(next, sw) {
			events = append(events, Event{Kind: SwitchDisconnected, Switch: sw})
		}
	}
	return events
}

// =============================================================================
// PARSING
// =============================================================================

// ParseOwnedBridges joins `list Bridge` and `list Controller` CSV output and
// returns the bridges, sorted by name, that hold a connected controller record
// for target.
func ParseOwnedBridges(bridgeCSV, controllerCSV, target string) ([]types.SwitchID, error) {
	ctlRows, err := readCSV(controllerCSV)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing controller table: %v", ErrTransport, err)
	}
	mine := make(map[string]bool)
	for _, row := range ctlRows {
		if len(row) < 3 {
			continue
		}
		if row[1] == target && row[2] == "true" {
			mine[row[0]] = true
		}
	}

	brRows, err := readCSV(bridgeCSV)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing bridge table: %v", ErrTransport, err)
	}
	var owned []types.SwitchID
	for _, row := range brRows {
		if len(row) < 2 {
			continue
		}
		// A bridge may have several controller records, space separated
		for _, uuid := range strings.Fields(row[1]) {
			if mine[uuid] {
				owned = append(owned, types.SwitchID(row[0]))
				break
			}
		}
	}
	slices.Sort(owned)
	return owned, nil
}

func readCSV(s string) ([][]string, error) {
	r := csv.NewReader(strings.NewReader(s))
	r.FieldsPerRecord = -1
	return r.ReadAll()
}

var ipProtocols = map[string]int{
	"icmp":  1,
	"tcp":   6,
	"udp":   17,
	"sctp":  132,
	"icmp6": 58,
	"tcp6":  6,
	"udp6":  17,
}

// ParseFlows parses `ovs-ofctl dump-flows` output. Header and blank lines are
// skipped; every flow entry becomes one sample.
func ParseFlows(sw types.SwitchID, out string) []types.FlowSample {
	var flows []types.FlowSample
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "cookie=") {
			continue
		}
		if i := strings.Index(line, " actions="); i >= 0 {
			line = line[:i]
		}

		f := types.FlowSample{Switch: sw}
		var match []string
		for _, field := range strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' }) {
			key, value, hasValue := strings.Cut(field, "=")
			if !hasValue {
				if proto, ok := ipProtocols[key]; ok {
					f.IPProto = proto
				}
				match = append(match, key)
				continue
			}
			switch key {
			case "cookie", "idle_age", "hard_age", "idle_timeout", "hard_timeout", "reset_counts":
			case "table":
				match = append(match, field)
			case "duration":
				f.DurationSec, _ = strconv.ParseFloat(strings.TrimSuffix(value, "s"), 64)
			case "n_packets":
				f.PacketCount, _ = strconv.ParseUint(value, 10, 64)
			case "n_bytes":
				f.ByteCount, _ = strconv.ParseUint(value, 10, 64)
			case "priority":
				f.Priority, _ = strconv.Atoi(value)
				match = append(match, field)
			case "nw_src", "ipv6_src":
				f.SrcIP = value
				match = append(match, field)
			case "nw_dst", "ipv6_dst":
				f.DstIP = value
				match = append(match, field)
			case "nw_proto", "ip_proto":
				f.IPProto, _ = strconv.Atoi(value)
				match = append(match, field)
			case "tp_src", "tcp_src", "udp_src", "sctp_src":
				f.SrcPort, _ = strconv.Atoi(value)
				match = append(match, field)
			case "tp_dst", "tcp_dst", "udp_dst", "sctp_dst":
				f.DstPort, _ = strconv.Atoi(value)
				match = append(match, field)
			default:
				match = append(match, field)
			}
		}

		if f.DurationSec > 0 {
			f.PacketsPerSec = float64(f.PacketCount) / f.DurationSec
			f.BytesPerSec = float64(f.ByteCount) / f.DurationSec
		}
		f.FlowID = strings.Join(match, ",")
		flows = append(flows, f)
	}
	return flows
}
