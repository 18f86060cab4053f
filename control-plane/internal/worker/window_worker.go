// Package worker provides background workers for the coordination service.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pilot-net/sdn-balance/control-plane/internal/service"
)

// PartialEvaluator evaluates a window that has waited too long for its
// missing controllers.
type PartialEvaluator interface {
	EvaluatePartial(ctx context.Context) *service.Evaluation
}

// WindowWorkerConfig holds configuration for the window worker.
type WindowWorkerConfig struct {
	// Interval between window checks. Normally the monitor period.
	Interval time.Duration

	// Timeout after which an incomplete window is evaluated. Zero disables
	// the worker.
	Timeout time.Duration
}

// WindowWorker evaluates incomplete windows once their timeout has passed, so
// an unreachable controller cannot stall load balancing for the others.
type WindowWorker struct {
	evaluator PartialEvaluator
	config    WindowWorkerConfig
	logger    *slog.Logger
	stopCh    chan struct{}
	stopOnce  sync.Once
	done      chan struct{}

	mu       sync.Mutex
	checks   int
	partials int
}

// NewWindowWorker creates a new window worker.
func NewWindowWorker(evaluator PartialEvaluator, config WindowWorkerConfig, logger *slog.Logger) *WindowWorker {
	return &WindowWorker{
		evaluator: evaluator,
		config:    config,
		logger:    logger.With("component", "window_worker"),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Enabled reports whether the worker has anything to do.
func (w *WindowWorker) Enabled() bool {
	return w.config.Timeout > 0 && w.config.Interval > 0
}

// Start begins the window worker in a goroutine. A disabled worker returns
// immediately.
func (w *WindowWorker) Start(ctx context.Context) {
	if !w.Enabled() {
		w.logger.Info("partial window evaluation disabled")
		close(w.done)
		return
	}
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to exit.
func (w *WindowWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.done
}

func (w *WindowWorker) run(ctx context.Context) {
	defer close(w.done)

	w.logger.Info("window worker started",
		"interval", w.config.Interval,
		"timeout", w.config.Timeout,
	)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("window worker stopped (context cancelled)")
			return
		case <-w.stopCh:
			w.logger.Info("window worker stopped")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *WindowWorker) runOnce(ctx context.Context) {
	ev := w.evaluator.EvaluatePartial(ctx)

	w.mu.Lock()
	w.checks++
	if ev != nil && ev.Partial {
		w.partials++
	}
	w.mu.Unlock()

	if ev != nil {
		w.logger.Debug("window check evaluated",
			"evaluation", ev.ID,
			"partial", ev.Partial,
			"missing", ev.Missing,
			"dispatched", len(ev.Dispatched),
		)
	}
}

// WindowWorkerStats counts the worker's activity.
type WindowWorkerStats struct {
	Checks   int `json:"checks"`
	Partials int `json:"partial_evaluations"`
}

// Stats returns the worker's counters.
func (w *WindowWorker) Stats() WindowWorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WindowWorkerStats{Checks: w.checks, Partials: w.partials}
}
