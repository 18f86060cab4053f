package agent

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pilot-net/sdn-balance/pkg/bus"
	"github.com/pilot-net/sdn-balance/pkg/types"
)

// RoundResult describes one monitor round.
type RoundResult struct {
	Snapshot  types.MetricSnapshot
	State     types.MitigationState
	Published bool
}

// RunMonitorRound polls every registered switch, aggregates the replies into a
// snapshot, re-evaluates the mitigation state from the round's flows and
// publishes the snapshot unless an attack is suspected.
func (a *Agent) RunMonitorRound(ctx context.Context) RoundResult {
	a.stats.rounds.Add(1)

	pollCtx, cancel := context.WithTimeout(ctx, a.cfg.Monitor.RoundTimeout)
	samples := a.pollAll(pollCtx, a.registry.List())
	cancel()

	snap := aggregate(a.id, samples, a.registry.List(), time.Now())

	var flows []types.FlowSample
	for _, s := range samples {
		for _, f := range s.Flows {
			if f.DstIP != "" {
				flows = append(flows, f)
			}
		}
	}
	state := a.ClassifyTraffic(ctx, flows)

	result := RoundResult{Snapshot: snap, State: state}

	if state == types.MitigationSuspectedAttack {
		a.stats.suppressed.Add(1)
		a.logger.Debug("snapshot suppressed during mitigation", "total_load", snap.TotalLoad)
		return result
	}

	data, err := bus.Encode(snap)
	if err == nil {
		err = a.bus.Publish(ctx, bus.ChannelReports, data)
	}
	if err != nil {
		// Dropped, never retried; the coordinator waits for the next round
		a.stats.dropped.Add(1)
		a.logger.Warn("snapshot dropped", "error", err)
		return result
	}

	a.stats.published.Add(1)
	result.Published = true
	a.logger.Debug("snapshot published",
		"total_switches", snap.TotalSwitches,
		"total_load", snap.TotalLoad,
		"avg_latency_ms", snap.AvgLatencyMs)
	return result
}

// pollAll requests stats from every switch concurrently. A switch is left out
// when its poll fails, when its reply misses the deadline, or when it is no
// longer registered by the time the reply arrives.
func (a *Agent) pollAll(ctx context.Context, switches []types.SwitchID) []types.SwitchSample {
	var (
		mu      sync.Mutex
		samples = make([]types.SwitchSample, 0, len(switches))
		g       errgroup.Group
	)
	g.SetLimit(a.cfg.Monitor.PollConcurrency)

	for _, sw := range switches {
		g.Go(func() error {
			if !a.registry.MarkRequested(sw, time.Now()) {
				return nil
			}

			reply, err := a.transport.PollStats(ctx, sw)
			if err != nil {
				a.logger.Warn("stats poll failed", "switch", sw, "error", err)
				return nil
			}
			if ctx.Err() != nil {
				a.logger.Debug("stats reply after round deadline", "switch", sw)
				return nil
			}
			if !a.registry.Has(sw) {
				a.logger.Debug("switch left during round", "switch", sw)
				return nil
			}
			// Time spent queued behind the transport's rate limiter is not
			// switch latency
			if !reply.RequestedAt.IsZero() {
				a.registry.MarkRequested(sw, reply.RequestedAt)
			}

			sample := types.SwitchSample{
				Switch:     sw,
				Load:       len(reply.Flows),
				Flows:      reply.Flows,
				ReceivedAt: reply.ReceivedAt,
			}
			if sample.ReceivedAt.IsZero() {
				sample.ReceivedAt = time.Now()
			}
			if requested, ok := a.registry.LastRequest(sw); ok {
				ms := float64(sample.ReceivedAt.Sub(requested).Microseconds()) / 1000
				if ms < 0 {
					ms = 0
				}
				sample.LatencyMs = &ms
			}

			mu.Lock()
			samples = append(samples, sample)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	return samples
}

// aggregate folds a round's samples into a snapshot. Latency is averaged
// over samples that have one; it is 0 when none do.
func aggregate(id types.ControllerID, samples []types.SwitchSample, connected []types.SwitchID, ts time.Time) types.MetricSnapshot {
	snap := types.MetricSnapshot{
		Controller:        id,
		TotalSwitches:     len(samples),
		ConnectedSwitches: connected,
		Timestamp:         ts,
	}
	if snap.ConnectedSwitches == nil {
		snap.ConnectedSwitches = []types.SwitchID{}
	}

	var latencySum float64
	var measured int
	for _, s := range samples {
		snap.TotalLoad += s.Load
		if s.LatencyMs != nil {
			latencySum += *s.LatencyMs
			measured++
		}
	}
	if measured > 0 {
		snap.AvgLatencyMs = latencySum / float64(measured)
	}
	return snap
}
