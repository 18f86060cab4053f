package buffer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pilot-net/sdn-balance/control-plane/internal/config"
)

// Flusher drains a HistoryBuffer into the history store.
type Flusher struct {
	buffer   *HistoryBuffer
	sink     Sink
	logger   *slog.Logger
	interval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu      sync.Mutex
	written int64
	failed  int64
}

// NewFlusher creates a new buffer flusher. A non-positive interval uses
// DefaultFlushInterval.
func NewFlusher(buffer *HistoryBuffer, sink Sink, interval time.Duration, logger *slog.Logger) *Flusher {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &Flusher{
		buffer:   buffer,
		sink:     sink,
		logger:   logger.With("component", "buffer_flusher"),
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background flushing loop.
func (f *Flusher) Start() {
	f.wg.Add(1)
	go f.run()
	f.logger.Info("buffer flusher started", "interval", f.interval)
}

// Stop stops the flusher after a final flush.
func (f *Flusher) Stop() {
	f.stopOnce.Do(func() { close(f.stopCh) })
	f.wg.Wait()
	f.logger.Info("buffer flusher stopped")
}

func (f *Flusher) run() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stopCh:
			// Final flush before stopping
			f.Flush(context.Background())
			return
		case <-ticker.C:
			f.Flush(context.Background())
		}
	}
}

// Flush writes everything currently queued, in order. Writes that fail are
// logged and discarded.
func (f *Flusher) Flush(ctx context.Context) {
	writes := f.buffer.take()
	if len(writes) == 0 {
		return
	}

	start := time.Now()
	var written, failed int64
	for _, w := range writes {
		if err := f.write(ctx, w); err != nil {
			failed++
			f.logger.Error("failed to write history",
				"evaluation", w.evaluationID,
				"error", err,
			)
			continue
		}
		written++
	}

	f.mu.Lock()
	f.written += written
	f.failed += failed
	f.mu.Unlock()

	f.logger.Debug("flushed history",
		"written", written,
		"failed", failed,
		"remaining", f.buffer.Len(),
		"duration", time.Since(start),
	)
}

func (f *Flusher) write(ctx context.Context, w write) error {
	ctx, cancel := context.WithTimeout(ctx, config.StoreWriteTimeout)
	defer cancel()

	if w.migration != nil {
		return f.sink.RecordMigration(ctx, *w.migration)
	}
	return f.sink.RecordSnapshots(ctx, w.evaluationID, w.partial, w.snaps)
}

// FlusherStats reports flusher activity.
type FlusherStats struct {
	Written int64 `json:"written"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
	Pending int   `json:"pending"`
}

// Stats returns flusher statistics.
func (f *Flusher) Stats() FlusherStats {
	f.mu.Lock()
	st := FlusherStats{Written: f.written, Failed: f.failed}
	f.mu.Unlock()

	st.Dropped = f.buffer.Dropped()
	st.Pending = f.buffer.Len()
	return st
}
