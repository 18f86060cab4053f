// Package types defines the core domain types shared between agents and the
// coordination service.
//
// # Design Principles
//
//  1. Simplicity: types represent the domain model directly
//  2. Serialization: everything that crosses the bus is JSON with field names;
//     unknown fields are ignored on decode so either side can grow the payload
//  3. Immutability: a MetricSnapshot is never mutated after it is published;
//     consumers that need to change a switch list work on a Clone
//  4. Validation: types include Validate() methods for business rule enforcement
package types

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// IDENTITIES
// =============================================================================

// ControllerID identifies one controller instance. The set of identities
// expected to report is fixed configuration for the life of the process.
type ControllerID string

// SwitchID identifies a managed switch, unique across the coordination domain.
type SwitchID string

// =============================================================================
// METRIC SNAPSHOT
// =============================================================================

// MetricSnapshot is one controller's measurement for a single monitor round.
//
// AvgLatencyMs is the mean of the per-switch latencies that could be measured
// in the round, or 0 when none could. TotalSwitches counts the switches that
// replied in the round. ConnectedSwitches is the owning registry's content in
// registration order, oldest first.
type MetricSnapshot struct {
	Controller        ControllerID `json:"controller_id"`
	TotalSwitches     int          `json:"total_switches"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	TotalLoad         int          `json:"total_load"`
	ConnectedSwitches []SwitchID   `json:"connected_switches"`
	Timestamp         time.Time    `json:"timestamp"`
}

// Validate checks the snapshot for values no agent would produce.
func (s *MetricSnapshot) Validate() error {
	if s.Controller == "" {
		return fmt.Errorf("controller_id is required")
	}
	if s.TotalSwitches < 0 {
		return fmt.Errorf("total_switches must be non-negative, got %d", s.TotalSwitches)
	}
	if s.TotalLoad < 0 {
		return fmt.Errorf("total_load must be non-negative, got %d", s.TotalLoad)
	}
	if s.AvgLatencyMs < 0 {
		return fmt.Errorf("avg_latency_ms must be non-negative, got %f", s.AvgLatencyMs)
	}
	return nil
}

// Clone returns a deep copy so the switch list can be changed without
// touching the original.
func (s MetricSnapshot) Clone() MetricSnapshot {
	s.ConnectedSwitches = slices.Clone(s.ConnectedSwitches)
	return s
}

// =============================================================================
// MIGRATION DIRECTIVE
// =============================================================================

// MigrationDirective instructs controller From to hand Switch over to To.
//
// Directives are delivered at least once. ID is for tracing and history only;
// correctness never depends on it.
type MigrationDirective struct {
	ID       string       `json:"id,omitempty"`
	From     ControllerID `json:"from"`
	To       ControllerID `json:"to"`
	Switch   SwitchID     `json:"switch_id"`
	IssuedAt time.Time    `json:"issued_at"`
}

// NewMigrationDirective creates a directive with a fresh ID.
func NewMigrationDirective(from, to ControllerID, sw SwitchID) MigrationDirective {
	return MigrationDirective{
		ID:       uuid.New().String(),
		From:     from,
		To:       to,
		Switch:   sw,
		IssuedAt: time.Now(),
	}
}

// Validate checks that the directive names two distinct controllers.
func (d *MigrationDirective) Validate() error {
	if d.From == "" {
		return fmt.Errorf("from is required")
	}
	if d.To == "" {
		return fmt.Errorf("to is required")
	}
	if d.From == d.To {
		return fmt.Errorf("from and to must differ, both are %q", d.From)
	}
	return nil
}

// =============================================================================
// MITIGATION
// =============================================================================

// MitigationState gates snapshot publication on an agent.
type MitigationState string

const (
	// MitigationNormal - traffic looks legitimate, snapshots are published
	MitigationNormal MitigationState = "normal"
	// MitigationSuspectedAttack - attack suspected, snapshots are suppressed
	MitigationSuspectedAttack MitigationState = "suspected_attack"
)

// =============================================================================
// SAMPLES
// =============================================================================

// FlowSample is one flow entry read from a switch during a monitor round.
// It is the unit the anomaly classifier labels.
type FlowSample struct {
	Switch        SwitchID `json:"switch_id"`
	FlowID        string   `json:"flow_id"`
	SrcIP         string   `json:"ip_src,omitempty"`
	DstIP         string   `json:"ip_dst,omitempty"`
	IPProto       int      `json:"ip_proto"`
	SrcPort       int      `json:"tp_src"`
	DstPort       int      `json:"tp_dst"`
	Priority      int      `json:"priority"`
	DurationSec   float64  `json:"flow_duration_sec"`
	PacketCount   uint64   `json:"packet_count"`
	ByteCount     uint64   `json:"byte_count"`
	PacketsPerSec float64  `json:"packet_count_per_second"`
	BytesPerSec   float64  `json:"byte_count_per_second"`
}

// SwitchSample is the per-switch result of one stats poll. Samples live only
// until the round is aggregated into a MetricSnapshot.
type SwitchSample struct {
	Switch     SwitchID
	Load       int
	LatencyMs  *float64 // nil when no request timestamp was recorded
	Flows      []FlowSample
	ReceivedAt time.Time
}

// =============================================================================
// TOPOLOGY VIEW
// =============================================================================

// ControllerView is one controller's row in the coordinator's topology view.
type ControllerView struct {
	Controller        ControllerID `json:"controller_id"`
	TotalLoad         int          `json:"total_load"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	Overloaded        bool         `json:"overloaded"`
	ConnectedSwitches []SwitchID   `json:"connected_switches"`
	ReportedAt        time.Time    `json:"reported_at"`
}

// TopologyView is the read-only export of the coordinator's view of switch
// ownership, including migrations dispatched but not yet confirmed.
type TopologyView struct {
	GeneratedAt time.Time            `json:"generated_at"`
	Partial     bool                 `json:"partial"`
	Controllers []ControllerView     `json:"controllers"`
	Pending     []MigrationDirective `json:"pending"`
}

// Clone returns a deep copy of the view.
func (v TopologyView) Clone() TopologyView {
	out := v
	out.Controllers = make([]ControllerView, len(v.Controllers))
	for i, c := range v.Controllers {
		c.ConnectedSwitches = slices.Clone(c.ConnectedSwitches)
		out.Controllers[i] = c
	}
	out.Pending = slices.Clone(v.Pending)
	return out
}

// =============================================================================
// MIGRATION HISTORY
// =============================================================================

// MigrationStatus is the coordinator-side outcome of dispatching a directive.
// Whether the agent applied it is not tracked.
type MigrationStatus string

const (
	MigrationDispatched    MigrationStatus = "dispatched"
	MigrationPublishFailed MigrationStatus = "publish_failed"
)

// MigrationRecord is one dispatched (or failed) directive in the history.
type MigrationRecord struct {
	ID           int64           `json:"id"`
	EvaluationID string          `json:"evaluation_id"`
	DirectiveID  string          `json:"directive_id"`
	From         ControllerID    `json:"from"`
	To           ControllerID    `json:"to"`
	Switch       SwitchID        `json:"switch_id"`
	Status       MigrationStatus `json:"status"`
	Error        string          `json:"error,omitempty"`
	Partial      bool            `json:"partial"`
	CreatedAt    time.Time       `json:"created_at"`
}
