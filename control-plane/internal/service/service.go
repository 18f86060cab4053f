// Package service implements the coordination service.
//
// The service collects one MetricSnapshot per controller into an aggregation
// window. Once every expected controller has reported, it plans migrations,
// publishes a directive to each overloaded controller it can relieve, and
// clears the window.
//
// # Concurrency
//
// Report delivery is serialized by the bus consumer, but the window worker
// and the HTTP API call in from other goroutines, so all window and view
// access goes through one mutex. At most one evaluation runs at a time.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pilot-net/sdn-balance/control-plane/internal/config"
	"github.com/pilot-net/sdn-balance/control-plane/internal/planner"
	"github.com/pilot-net/sdn-balance/control-plane/internal/window"
	"github.com/pilot-net/sdn-balance/pkg/bus"
	"github.com/pilot-net/sdn-balance/pkg/types"
)

// Publisher sends directives to agents.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// HistoryStore persists evaluated windows and dispatched directives.
type HistoryStore interface {
	RecordSnapshots(ctx context.Context, evaluationID string, partial bool, snaps []types.MetricSnapshot) error
	RecordMigration(ctx context.Context, rec types.MigrationRecord) error
}

// TopologyCache shares the latest topology view with other readers.
type TopologyCache interface {
	StoreTopology(ctx context.Context, view types.TopologyView) error
}

// Recorder receives service metrics.
type Recorder interface {
	SnapshotReceived(id types.ControllerID)
	MalformedMessage(channel string)
	Evaluated(partial bool)
	ControllerObserved(s types.MetricSnapshot, overloaded bool)
	DirectiveDispatched(d types.MigrationDirective)
	DirectiveFailed(d types.MigrationDirective)
}

// Config holds the service's coordination parameters.
type Config struct {
	Expected      []types.ControllerID
	Thresholds    planner.Thresholds
	MonitorPeriod time.Duration
	WindowTimeout time.Duration
}

// Deps are the service's collaborators. Store, Cache and Metrics are
// optional.
type Deps struct {
	Bus     Publisher
	Store   HistoryStore
	Cache   TopologyCache
	Metrics Recorder
}

// Evaluation describes one evaluated window.
type Evaluation struct {
	ID         string
	Partial    bool
	Missing    []types.ControllerID
	Plan       planner.Plan
	Dispatched []types.MigrationDirective
	Failed     []types.MigrationDirective
}

// Service is the coordination service.
type Service struct {
	cfg      Config
	expected map[types.ControllerID]bool
	bus      Publisher
	store    HistoryStore
	cache    TopologyCache
	metrics  Recorder
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	window *window.Window
	view   types.TopologyView
}

// New creates a coordination service.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Service, error) {
	if deps.Bus == nil {
		return nil, fmt.Errorf("bus is required")
	}
	if len(cfg.Expected) == 0 {
		return nil, fmt.Errorf("expected controllers must not be empty")
	}
	if cfg.MonitorPeriod <= 0 {
		return nil, fmt.Errorf("monitor period must be positive")
	}

	s := &Service{
		cfg:      cfg,
		expected: make(map[types.ControllerID]bool, len(cfg.Expected)),
		bus:      deps.Bus,
		store:    deps.Store,
		cache:    deps.Cache,
		metrics:  deps.Metrics,
		logger:   logger.With("component", "coordinator"),
		now:      time.Now,
		window:   window.New(),
	}
	if s.metrics == nil {
		s.metrics = nopRecorder{}
	}
	for _, id := range cfg.Expected {
		s.expected[id] = true
	}
	return s, nil
}

// Config returns the service's coordination parameters.
func (s *Service) Config() Config {
	return s.cfg
}

// OnSnapshot adds a snapshot to the window and evaluates the window once it
// covers every expected controller. It returns the evaluation, or nil if the
// window is still incomplete.
func (s *Service) OnSnapshot(ctx context.Context, snap types.MetricSnapshot) *Evaluation {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.metrics.SnapshotReceived(snap.Controller)

	if !s.expected[snap.Controller] {
		s.logger.Warn("snapshot from unexpected controller", "controller", snap.Controller)
	}

	if s.cfg.WindowTimeout > 0 {
		s.pruneLocked(now)
	}

	replaced := s.window.Upsert(snap, now)
	s.logger.Debug("snapshot received",
		"controller", snap.Controller,
		"total_load", snap.TotalLoad,
		"avg_latency_ms", snap.AvgLatencyMs,
		"switches", len(snap.ConnectedSwitches),
		"replaced", replaced,
		"window", s.window.Len())

	if !s.window.Covers(s.cfg.Expected) {
		return nil
	}
	return s.evaluateLocked(ctx, false, nil)
}

// EvaluatePartial evaluates an incomplete window whose oldest entry has
// waited longer than the window timeout. Entries older than one monitor
// period beyond the timeout are dropped first and never evaluated. It
// returns nil when partial evaluation is disabled or not yet due.
func (s *Service) EvaluatePartial(ctx context.Context) *Evaluation {
	if s.cfg.WindowTimeout <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.pruneLocked(now)

	oldest, ok := s.window.Oldest()
	if !ok {
		return nil
	}
	if s.window.Covers(s.cfg.Expected) {
		return s.evaluateLocked(ctx, false, nil)
	}
	if now.Sub(oldest) <= s.cfg.WindowTimeout {
		return nil
	}

	missing := s.window.Missing(s.cfg.Expected)
	s.logger.Warn("evaluating incomplete window",
		"missing", missing,
		"present", s.window.Len(),
		"waited", now.Sub(oldest).Round(time.Millisecond))
	return s.evaluateLocked(ctx, true, missing)
}

// pruneLocked drops window entries too old to be evaluated.
func (s *Service) pruneLocked(now time.Time) {
	cutoff := now.Add(-(s.cfg.MonitorPeriod + s.cfg.WindowTimeout))
	if dropped := s.window.PruneBefore(cutoff); len(dropped) > 0 {
		s.logger.Warn("dropped stale snapshots from window", "controllers", dropped)
	}
}

// evaluateLocked plans and dispatches migrations for the current window,
// rebuilds the topology view from it and clears it.
func (s *Service) evaluateLocked(ctx context.Context, partial bool, missing []types.ControllerID) *Evaluation {
	snaps := s.window.Snapshots()
	s.window.Clear()

	plan := planner.Evaluate(snaps, s.cfg.Thresholds)
	ev := &Evaluation{
		ID:      uuid.New().String(),
		Partial: partial,
		Missing: missing,
		Plan:    plan,
	}

	s.metrics.Evaluated(partial)
	s.rebuildViewLocked(snaps, partial)

	if len(plan.Unaddressed) > 0 {
		s.logger.Info("no underloaded controller left for overloaded controllers", "controllers", plan.Unaddressed)
	}
	if len(plan.NoSwitches) > 0 {
		s.logger.Info("overloaded controllers reported no switches", "controllers", plan.NoSwitches)
	}

	s.dispatchLocked(ctx, ev, plan.Directives())

	s.logger.Info("window evaluated",
		"evaluation", ev.ID,
		"partial", partial,
		"controllers", len(snaps),
		"overloaded", len(plan.Overloaded),
		"dispatched", len(ev.Dispatched),
		"failed", len(ev.Failed))

	s.persist(ctx, ev, snaps)
	return ev
}

// dispatchLocked publishes each directive to the overloaded controller's
// channel. A published directive is applied to the view right away; a
// failed publish leaves the view alone.
func (s *Service) dispatchLocked(ctx context.Context, ev *Evaluation, directives []types.MigrationDirective) {
	for _, d := range directives {
		log := s.logger.With("directive", d.ID, "from", d.From, "to", d.To, "switch", d.Switch)

		data, err := bus.Encode(d)
		if err == nil {
			err = s.bus.Publish(ctx, bus.DirectiveChannel(d.From), data)
		}
		if err != nil {
			log.Error("failed to publish directive", "error", err)
			s.metrics.DirectiveFailed(d)
			ev.Failed = append(ev.Failed, d)
			continue
		}

		s.moveSwitchLocked(d)
		s.metrics.DirectiveDispatched(d)
		ev.Dispatched = append(ev.Dispatched, d)
		log.Info("migration directive dispatched")
	}
}

func (s *Service) rebuildViewLocked(snaps []types.MetricSnapshot, partial bool) {
	view := types.TopologyView{
		GeneratedAt: s.now(),
		Partial:     partial,
		Controllers: make([]types.ControllerView, 0, len(snaps)),
	}
	for _, snap := range snaps {
		overloaded := planner.IsOverloaded(snap, s.cfg.Thresholds)
		s.metrics.ControllerObserved(snap, overloaded)
		view.Controllers = append(view.Controllers, types.ControllerView{
			Controller:        snap.Controller,
			TotalLoad:         snap.TotalLoad,
			AvgLatencyMs:      snap.AvgLatencyMs,
			Overloaded:        overloaded,
			ConnectedSwitches: slices.Clone(snap.ConnectedSwitches),
			ReportedAt:        snap.Timestamp,
		})
	}
	s.view = view
}

// moveSwitchLocked applies a dispatched directive to the view without
// waiting for the agent. The next full window replaces the view.
func (s *Service) moveSwitchLocked(d types.MigrationDirective) {
	for i := range s.view.Controllers {
		c := &s.view.Controllers[i]
		switch c.Controller {
		case d.From:
			c.ConnectedSwitches = slices.DeleteFunc(c.ConnectedSwitches, func(sw types.SwitchID) bool {
				return sw == d.Switch
			})
		case d.To:
			if !slices.Contains(c.ConnectedSwitches, d.Switch) {
				c.ConnectedSwitches = append(c.ConnectedSwitches, d.Switch)
			}
		}
	}
	s.view.Pending = append(s.view.Pending, d)
}

// persist writes history and the cached view. Failures are logged only.
func (s *Service) persist(ctx context.Context, ev *Evaluation, snaps []types.MetricSnapshot) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), config.StoreWriteTimeout)
	defer cancel()

	if s.cache != nil {
		if err := s.cache.StoreTopology(ctx, s.view.Clone()); err != nil {
			s.logger.Warn("failed to cache topology", "error", err)
		}
	}

	if s.store == nil {
		return
	}
	if err := s.store.RecordSnapshots(ctx, ev.ID, ev.Partial, snaps); err != nil {
		s.logger.Warn("failed to record snapshots", "evaluation", ev.ID, "error", err)
	}
	record := func(d types.MigrationDirective, status types.MigrationStatus, reason string) {
		rec := types.MigrationRecord{
			EvaluationID: ev.ID,
			DirectiveID:  d.ID,
			From:         d.From,
			To:           d.To,
			Switch:       d.Switch,
			Status:       status,
			Error:        reason,
			Partial:      ev.Partial,
			CreatedAt:    d.IssuedAt,
		}
		if err := s.store.RecordMigration(ctx, rec); err != nil {
			s.logger.Warn("failed to record migration", "directive", d.ID, "error", err)
		}
	}
	for _, d := range ev.Dispatched {
		record(d, types.MigrationDispatched, "")
	}
	for _, d := range ev.Failed {
		record(d, types.MigrationPublishFailed, "publish failed")
	}
}

// Topology returns a copy of the current topology view. Changing the copy
// never affects the service.
func (s *Service) Topology() types.TopologyView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.Clone()
}

// WindowStatus reports which expected controllers are still awaited.
type WindowStatus struct {
	Present []types.ControllerID `json:"present"`
	Missing []types.ControllerID `json:"missing"`
}

// Window returns the current window's progress.
func (s *Service) Window() WindowStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := WindowStatus{Missing: s.window.Missing(s.cfg.Expected)}
	for _, snap := range s.window.Snapshots() {
		st.Present = append(st.Present, snap.Controller)
	}
	return st
}

type nopRecorder struct{}

func (nopRecorder) SnapshotReceived(types.ControllerID) {}
func (nopRecorder) MalformedMessage(string) {}
func (nopRecorder) Evaluated(bool) {}
func (nopRecorder) ControllerObserved(types.MetricSnapshot, bool) {}
func (nopRecorder) DirectiveDispatched(types.MigrationDirective) {}
func (nopRecorder) DirectiveFailed(types.MigrationDirective) {}
