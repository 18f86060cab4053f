// Package mitigation tracks whether a controller suspects it is under attack.
//
// The state is re-evaluated once per monitor round from the classifier's
// labels for that round's flows. There is no hysteresis: every evaluation
// sets the state outright.
//
//	normal ──(legitimate < 80%)──> suspected_attack
//	suspected_attack ──(legitimate ≥ 80%)──> normal
package mitigation

import (
	"fmt"
	"sync"
	"time"

	"github.com/pilot-net/sdn-balance/agent/internal/classifier"
	"github.com/pilot-net/sdn-balance/pkg/types"
)

// LegitimateThreshold is the minimum fraction of legitimate flows for a round
// to count as normal.
const LegitimateThreshold = 0.80

// Verdict is the outcome of one evaluation.
type Verdict struct {
	State              types.MitigationState `json:"state"`
	LegitimateFraction float64               `json:"legitimate_fraction"`
	Flows              int                   `json:"flows"`
	AttackFlows        int                   `json:"attack_flows"`
	Victim             string                `json:"victim,omitempty"` // most attacked destination
	EvaluatedAt        time.Time             `json:"evaluated_at"`
}

// Evaluate computes a verdict from a batch and its labels.
func Evaluate(samples []types.FlowSample, labels []classifier.Label) (Verdict, error) {
	if len(samples) == 0 {
		return Verdict{}, fmt.Errorf("empty batch")
	}
	if len(labels) != len(samples) {
		return Verdict{}, fmt.Errorf("got %d labels for %d samples", len(labels), len(samples))
	}

	v := Verdict{Flows: len(samples), EvaluatedAt: time.Now()}
	targets := make(map[string]int)
	for i, l := range labels {
		if l != classifier.Attack {
			continue
		}
		v.AttackFlows++
		if dst := samples[i].DstIP; dst != "" {
			targets[dst]++
		}
	}

	v.LegitimateFraction = float64(v.Flows-v.AttackFlows) / float64(v.Flows)
	if v.LegitimateFraction >= LegitimateThreshold {
		v.State = types.MitigationNormal
	} else {
		v.State = types.MitigationSuspectedAttack
		v.Victim = dominant(targets)
	}
	return v, nil
}

// dominant returns the key with the highest count, ties broken by the
// lexicographically smallest key.
func dominant(counts map[string]int) string {
	best, bestN := "", 0
	for k, n := range counts {
		if n > bestN || (n == bestN && k < best) {
			best, bestN = k, n
		}
	}
	return best
}

// Transition describes a state change.
type Transition struct {
	From    types.MitigationState
	To      types.MitigationState
	Verdict Verdict
}

// Tracker holds the current mitigation state. Initial state is normal.
type Tracker struct {
	mu          sync.Mutex
	state       types.MitigationState
	last        *Verdict
	transitions int
}

// NewTracker creates a tracker in the normal state.
func NewTracker() *Tracker {
	return &Tracker{state: types.MitigationNormal}
}

// Apply records v and moves to v.State. The returned transition is nil when
// the state did not change.
func (t *Tracker) Apply(v Verdict) *Transition {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.last = &v
	if v.State == t.state {
		return nil
	}

	tr := &Transition{From: t.state, To: v.State, Verdict: v}
	t.state = v.State
	t.transitions++
	return tr
}

// State returns the current state.
func (t *Tracker) State() types.MitigationState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Last returns the most recent verdict.
func (t *Tracker) Last() (Verdict, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return Verdict{}, false
	}
	return *t.last, true
}

// Transitions returns how many state changes have occurred.
func (t *Tracker) Transitions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transitions
}
