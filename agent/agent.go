// Package agent provides the controller agent.
//
// One agent runs beside each SDN controller. It owns the registry of switches
// connected to that controller, measures them every monitor period, reports a
// MetricSnapshot to the coordination service and hands switches over to peer
// controllers when directed to.
//
// # Agent Lifecycle
//
//  1. Load configuration
//  2. Connect bus, transport and classifier
//  3. Start the transport watcher (fills the registry)
//  4. Start the directive consumer
//  5. Start the monitor loop (first round immediately)
//  6. Run until shutdown signal, then release connections
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pilot-net/sdn-balance/agent/internal/classifier"
	"github.com/pilot-net/sdn-balance/agent/internal/config"
	"github.com/pilot-net/sdn-balance/agent/internal/mitigation"
	"github.com/pilot-net/sdn-balance/agent/internal/registry"
	"github.com/pilot-net/sdn-balance/agent/internal/transport"
	"github.com/pilot-net/sdn-balance/pkg/bus"
	"github.com/pilot-net/sdn-balance/pkg/secrets"
	"github.com/pilot-net/sdn-balance/pkg/types"
)

// Version is set at build time.
var Version = "dev"

// Deps are the collaborators an agent drives.
type Deps struct {
	Bus        bus.Bus
	Transport  transport.Transport
	Classifier classifier.Classifier
}

// Agent is the controller agent.
type Agent struct {
	cfg        *config.Config
	id         types.ControllerID
	bus        bus.Bus
	transport  transport.Transport
	classifier classifier.Classifier
	registry   *registry.Registry
	mitigation *mitigation.Tracker
	logger     *slog.Logger

	startTime time.Time
	stats     counters
	closeOnce sync.Once
	closeErr  error
}

type counters struct {
	rounds          atomic.Uint64
	published       atomic.Uint64
	suppressed      atomic.Uint64
	dropped         atomic.Uint64
	migrated        atomic.Uint64
	migrationFailed atomic.Uint64
}

// New creates an agent around already-connected collaborators.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Agent, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	if deps.Bus == nil || deps.Transport == nil || deps.Classifier == nil {
		return nil, fmt.Errorf("bus, transport and classifier are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Agent{
		cfg:        cfg,
		id:         types.ControllerID(cfg.Controller.ID),
		bus:        deps.Bus,
		transport:  deps.Transport,
		classifier: deps.Classifier,
		registry:   registry.New(),
		mitigation: mitigation.NewTracker(),
		logger:     logger.With("component", "agent", "controller", cfg.Controller.ID),
		startTime:  time.Now(),
	}, nil
}

// Connect builds the collaborators described by cfg and returns an agent
// that owns them. Anything acquired before a failure is released.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *Agent, err error) {
	resolver, err := secrets.NewFromConfig(cfg.Secrets, logger)
	if err != nil {
		return nil, fmt.Errorf("secrets: %w", err)
	}

	var deps Deps
	defer func() {
		if err == nil {
			return
		}
		if deps.Bus != nil {
			deps.Bus.Close()
		}
		if deps.Transport != nil {
			deps.Transport.Close()
		}
	}()

	busCfg := cfg.Bus
	if busCfg.Password, err = resolver.Resolve(ctx, busCfg.Password); err != nil {
		return nil, fmt.Errorf("bus password: %w", err)
	}
	if deps.Bus, err = bus.New(busCfg, logger); err != nil {
		return nil, fmt.Errorf("bus: %w", err)
	}

	runner, err := newRunner(ctx, cfg.Transport, resolver)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	deps.Transport = transport.NewOVS(transport.OVSConfig{
		OpenFlowTarget:    cfg.Controller.OpenFlowTarget,
		OpenFlowVersion:   cfg.Transport.OpenFlowVersion,
		OfctlPath:         cfg.Transport.OfctlPath,
		VsctlPath:         cfg.Transport.VsctlPath,
		WatchInterval:     cfg.Transport.WatchInterval,
		CommandsPerMinute: cfg.Transport.CommandsPerMinute,
	}, runner, logger)

	switch cfg.Classifier.Mode {
	case "http":
		deps.Classifier = classifier.NewHTTPClassifier(classifier.HTTPConfig{
			URL:          cfg.Classifier.URL,
			ControllerID: types.ControllerID(cfg.Controller.ID),
			Timeout:      cfg.Classifier.Timeout,
		})
	default:
		deps.Classifier = classifier.NewThresholdClassifier(cfg.Classifier.PacketRateThreshold)
	}

	return New(cfg, deps, logger)
}

func newRunner(ctx context.Context, cfg config.TransportConfig, resolver *secrets.Resolver) (transport.Runner, error) {
	if cfg.Mode != "ssh" {
		return transport.LocalRunner{}, nil
	}

	sshCfg := transport.SSHConfig{
		Host:     cfg.SSH.Host,
		Port:     cfg.SSH.Port,
		Username: cfg.SSH.Username,
		Timeout:  cfg.SSH.Timeout,
	}
	if cfg.SSH.PrivateKey != "" {
		key, err := resolver.Resolve(ctx, cfg.SSH.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("ssh private key: %w", err)
		}
		sshCfg.PrivateKey = []byte(key)
	}
	if cfg.SSH.Password != "" {
		pw, err := resolver.Resolve(ctx, cfg.SSH.Password)
		if err != nil {
			return nil, fmt.Errorf("ssh password: %w", err)
		}
		sshCfg.Password = pw
	}
	return transport.NewSSHRunner(sshCfg)
}

// ID returns the controller this agent serves.
func (a *Agent) ID() types.ControllerID {
	return a.id
}

// Run starts the agent and blocks until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("starting agent",
		"version", Version,
		"openflow_target", a.cfg.Controller.OpenFlowTarget,
		"peers", len(a.cfg.Peers),
		"monitor_period", a.cfg.Monitor.Period)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.transport.Watch(gctx, a.handleEvent)
	})

	g.Go(func() error {
		return a.runDirectiveConsumer(gctx)
	})

	g.Go(func() error {
		return a.runMonitor(gctx)
	})

	err := g.Wait()
	a.logger.Info("agent stopped", "status", a.Status())
	return err
}

// Close releases the bus and transport. It is safe to call more than once.
func (a *Agent) Close() error {
	a.closeOnce.Do(func() {
		a.closeErr = errors.Join(a.bus.Close(), a.transport.Close())
	})
	return a.closeErr
}

// OnSwitchConnected registers sw. Repeated calls are no-ops.
func (a *Agent) OnSwitchConnected(sw types.SwitchID) {
	if a.registry.Add(sw) {
		a.logger.Info("switch connected", "switch", sw, "registered", a.registry.Len())
	}
}

// OnSwitchDisconnected unregisters sw. Repeated calls are no-ops.
func (a *Agent) OnSwitchDisconnected(sw types.SwitchID) {
	if a.registry.Remove(sw) {
		a.logger.Info("switch disconnected", "switch", sw, "registered", a.registry.Len())
	}
}

func (a *Agent) handleEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.SwitchConnected:
		a.OnSwitchConnected(ev.Switch)
	case transport.SwitchDisconnected:
		a.OnSwitchDisconnected(ev.Switch)
	}
}

// runMonitor runs monitor rounds every period. Cancellation is observed only
// between rounds; a round in progress completes under its own deadline.
func (a *Agent) runMonitor(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Monitor.Period)
	defer ticker.Stop()

	roundCtx := context.WithoutCancel(ctx)

	// Run immediately on start
	a.RunMonitorRound(roundCtx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.RunMonitorRound(roundCtx)
		}
	}
}

// runDirectiveConsumer consumes this controller's directive channel,
// reconnecting after a monitor period if the consumer fails.
func (a *Agent) runDirectiveConsumer(ctx context.Context) error {
	channel := bus.DirectiveChannel(a.id)
	for {
		err := a.bus.Consume(ctx, channel, a.handleDirective)
		if ctx.Err() != nil {
			return nil
		}
		a.logger.Warn("directive consumer stopped, retrying", "channel", channel, "error", err, "retry_in", a.cfg.Monitor.Period)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(a.cfg.Monitor.Period):
		}
	}
}

// Status is a point-in-time view of the agent for operators.
type Status struct {
	Controller      types.ControllerID    `json:"controller_id"`
	Switches        []types.SwitchID      `json:"switches"`
	State           types.MitigationState `json:"mitigation_state"`
	LastVerdict     *mitigation.Verdict   `json:"last_verdict,omitempty"`
	Rounds          uint64                `json:"rounds"`
	Published       uint64                `json:"snapshots_published"`
	Suppressed      uint64                `json:"snapshots_suppressed"`
	Dropped         uint64                `json:"snapshots_dropped"`
	Migrated        uint64                `json:"migrations_done"`
	MigrationFailed uint64                `json:"migrations_failed"`
	Uptime          time.Duration         `json:"uptime"`
}

// Status returns current counters and state.
func (a *Agent) Status() Status {
	s := Status{
		Controller:      a.id,
		Switches:        a.registry.List(),
		State:           a.mitigation.State(),
		Rounds:          a.stats.rounds.Load(),
		Published:       a.stats.published.Load(),
		Suppressed:      a.stats.suppressed.Load(),
		Dropped:         a.stats.dropped.Load(),
		Migrated:        a.stats.migrated.Load(),
		MigrationFailed: a.stats.migrationFailed.Load(),
		Uptime:          time.Since(a.startTime),
	}
	if v, ok := a.mitigation.Last(); ok {
		s.LastVerdict = &v
	}
	return s
}
