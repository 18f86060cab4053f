// Package planner decides which switches move between controllers.
//
// Planning is a pure function of the window contents and thresholds:
// identical input always yields the identical plan. Controllers are paired
// first come, first served through a FIFO queue, never by load magnitude.
package planner

import (
	"github.com/pilot-net/sdn-balance/pkg/types"
)

// Thresholds are the overload limits. Both must be exceeded.
type Thresholds struct {
	Load      int
	LatencyMs float64
}

// Move is one planned switch handover.
type Move struct {
	From   types.ControllerID
	To     types.ControllerID
	Switch types.SwitchID
}

// Plan is the result of one evaluation.
type Plan struct {
	// Moves in the order the overloaded controllers appear in the window.
	Moves []Move

	// Overloaded lists every overloaded controller in window order.
	Overloaded []types.ControllerID

	// Unaddressed are overloaded controllers left without a peer because the
	// underloaded queue ran out.
	Unaddressed []types.ControllerID

	// NoSwitches are overloaded controllers that reported no switches. Each
	// still consumed the peer it was paired with.
	NoSwitches []types.ControllerID
}

// Directives converts the plan's moves into migration directives. Each call
// assigns fresh directive ids.
func (p Plan) Directives() []types.MigrationDirective {
	out := make([]types.MigrationDirective, len(p.Moves))
	for i, m := range p.Moves {
		out[i] = types.NewMigrationDirective(m.From, m.To, m.Switch)
	}
	return out
}

// IsOverloaded reports whether s exceeds both thresholds. Exceeding only one
// is never enough.
func IsOverloaded(s types.MetricSnapshot, th Thresholds) bool {
	return s.AvgLatencyMs > th.LatencyMs && s.TotalLoad > th.Load
}

// Classify splits snapshots into overloaded and the rest, preserving order.
func Classify(snaps []types.MetricSnapshot, th Thresholds) (overloaded, rest []types.MetricSnapshot) {
	for _, s := range snaps {
		if IsOverloaded(s, th) {
			overloaded = append(overloaded, s)
		} else {
			rest = append(rest, s)
		}
	}
	return overloaded, rest
}

// Evaluate builds the migration plan for a window given in first-arrival
// order. Each overloaded controller hands its front switch to the controller
// at the head of the underloaded queue; at most one switch moves per
// overloaded controller. The peer is taken before the switch list is checked,
// so an overloaded controller with no switches still uses one up.
func Evaluate(snaps []types.MetricSnapshot, th Thresholds) Plan {
	overloaded, rest := Classify(snaps, th)

	peers := types.NewQueue[types.ControllerID]()
	for _, s := range rest {
		peers.Push(s.Controller)
	}

	var plan Plan
	for _, s := range overloaded {
		plan.Overloaded = append(plan.Overloaded, s.Controller)

		to, ok := peers.Pop()
		if !ok {
			plan.Unaddressed = append(plan.Unaddressed, s.Controller)
			continue
		}

		// The peer is spent even when there is nothing to hand over
		switches := types.NewQueue(s.ConnectedSwitches...)
		sw, ok := switches.Pop()
		if !ok {
			plan.NoSwitches = append(plan.NoSwitches, s.Controller)
			continue
		}

		plan.Moves = append(plan.Moves, Move{From: s.Controller, To: to, Switch: sw})
	}
	return plan
}
