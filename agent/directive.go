package agent

import (
	"context"
	"fmt"

	"github.com/pilot-net/sdn-balance/agent/internal/mitigation"
	"github.com/pilot-net/sdn-balance/pkg/bus"
	"github.com/pilot-net/sdn-balance/pkg/types"
)

// Outcome is what OnDirective did with a directive.
type Outcome string

const (
	OutcomeMigrated        Outcome = "migrated"
	OutcomeNotAddressed    Outcome = "not_addressed"    // directive is for another controller
	OutcomeNothingToMove   Outcome = "nothing_to_move"  // registry is empty
	OutcomeAlreadyMigrated Outcome = "already_migrated" // named switch is not registered
	OutcomeFailed          Outcome = "failed"
)

// OnDirective executes a migration directive addressed to this controller.
//
// The named switch is moved if it is still registered; a directive naming a
// switch that is no longer registered has already taken effect and is
// ignored, which makes redelivery harmless. A directive naming no switch
// moves the oldest registered one. The switch stays registered if the
// transport refuses the reassignment.
func (a *Agent) OnDirective(ctx context.Context, d types.MigrationDirective) (Outcome, error) {
	log := a.logger.With("directive", d.ID, "from", d.From, "to", d.To, "switch", d.Switch)

	if d.From != a.id {
		log.Info("ignoring directive for another controller")
		return OutcomeNotAddressed, nil
	}
	if a.registry.Len() == 0 {
		log.Info("nothing to migrate")
		return OutcomeNothingToMove, nil
	}

	sw := d.Switch
	if sw == "" {
		oldest, ok := a.registry.Oldest()
		if !ok {
			log.Info("nothing to migrate")
			return OutcomeNothingToMove, nil
		}
		sw = oldest
	} else if !a.registry.Has(sw) {
		log.Info("switch not registered, directive already applied")
		return OutcomeAlreadyMigrated, nil
	}

	target, ok := a.cfg.Peers[string(d.To)]
	if !ok {
		a.stats.migrationFailed.Add(1)
		log.Error("no OpenFlow target configured for peer")
		return OutcomeFailed, fmt.Errorf("no OpenFlow target for controller %s", d.To)
	}

	if err := a.transport.ReassignController(ctx, sw, target); err != nil {
		a.stats.migrationFailed.Add(1)
		log.Error("migration failed, switch stays registered", "target", target, "error", err)
		return OutcomeFailed, fmt.Errorf("reassigning %s to %s: %w", sw, d.To, err)
	}

	a.registry.Remove(sw)
	a.stats.migrated.Add(1)
	log.Info("switch migrated", "migrated_switch", sw, "target", target, "registered", a.registry.Len())
	return OutcomeMigrated, nil
}

// handleDirective is the bus handler for this controller's directive channel.
func (a *Agent) handleDirective(ctx context.Context, payload []byte) error {
	d, err := bus.DecodeDirective(payload)
	if err != nil {
		a.logger.Warn("dropping malformed directive", "error", err)
		return err
	}
	_, err = a.OnDirective(ctx, d)
	return err
}

// ClassifyTraffic re-evaluates the mitigation state from a batch of flow
// samples and returns the state afterwards. An empty batch or a classifier
// failure leaves the state unchanged.
func (a *Agent) ClassifyTraffic(ctx context.Context, batch []types.FlowSample) types.MitigationState {
	if len(batch) == 0 {
		a.logger.Debug("no flows to classify, mitigation state unchanged")
		return a.mitigation.State()
	}

	labels, err := a.classifier.Classify(ctx, batch)
	if err != nil {
		a.logger.Warn("classification failed, mitigation state unchanged", "error", err)
		return a.mitigation.State()
	}

	verdict, err := mitigation.Evaluate(batch, labels)
	if err != nil {
		a.logger.Warn("classification unusable, mitigation state unchanged", "error", err)
		return a.mitigation.State()
	}

	if tr := a.mitigation.Apply(verdict); tr != nil {
		if tr.To == types.MitigationSuspectedAttack {
			a.logger.Warn("attack suspected, suppressing reports",
				"victim", verdict.Victim,
				"legitimate_fraction", verdict.LegitimateFraction,
				"attack_flows", verdict.AttackFlows,
				"flows", verdict.Flows)
		} else {
			a.logger.Info("traffic back to normal, resuming reports",
				"legitimate_fraction", verdict.LegitimateFraction,
				"flows", verdict.Flows)
		}
	}
	return verdict.State
}
