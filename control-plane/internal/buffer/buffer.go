// Package buffer provides an in-memory write-behind buffer for evaluation
// history. This decouples evaluation from database writes so a slow history
// store never holds up snapshot ingestion or directive dispatch.
package buffer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/pilot-net/sdn-balance/pkg/types"
)

const (
	// DefaultCapacity bounds the number of buffered writes. One evaluation
	// enqueues one snapshot batch plus one record per directive.
	DefaultCapacity = 10000

	// DefaultFlushInterval is how often buffered writes are flushed.
	DefaultFlushInterval = 2 * time.Second
)

// ErrFull is returned when the buffer is at capacity. The write is dropped.
var ErrFull = errors.New("history buffer full")

// Sink is the history store buffered writes are flushed to.
type Sink interface {
	RecordSnapshots(ctx context.Context, evaluationID string, partial bool, snaps []types.MetricSnapshot) error
	RecordMigration(ctx context.Context, rec types.MigrationRecord) error
}

// write is one buffered call. Exactly one of snaps or migration is set.
type write struct {
	evaluationID string
	partial      bool
	snaps        []types.MetricSnapshot
	migration    *types.MigrationRecord
}

// HistoryBuffer queues history writes in arrival order.
type HistoryBuffer struct {
	capacity int
	logger   *slog.Logger

	mu      sync.Mutex
	pending []write
	dropped int64
}

// NewHistoryBuffer creates a buffer holding at most capacity writes. A
// non-positive capacity uses DefaultCapacity.
func NewHistoryBuffer(capacity int, logger *slog.Logger) *HistoryBuffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &HistoryBuffer{
		capacity: capacity,
		logger:   logger.With("component", "history_buffer"),
	}
}

// RecordSnapshots queues an evaluation's snapshots.
func (b *HistoryBuffer) RecordSnapshots(ctx context.Context, evaluationID string, partial bool, snaps []types.MetricSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	copied := make([]types.MetricSnapshot, len(snaps))
	for i, s := range snaps {
		copied[i] = s.Clone()
	}
	return b.push(write{evaluationID: evaluationID, partial: partial, snaps: copied})
}

// RecordMigration queues a migration record.
func (b *HistoryBuffer) RecordMigration(ctx context.Context, rec types.MigrationRecord) error {
	return b.push(write{evaluationID: rec.EvaluationID, partial: rec.Partial, migration: &rec})
}

func (b *HistoryBuffer) push(w write) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pending) >= b.capacity {
		b.dropped++
		return ErrFull
	}
	b.pending = append(b.pending, w)
	return nil
}

// take removes and returns everything queued.
func (b *HistoryBuffer) take() []write {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.pending
	b.pending = nil
	return out
}

// Len returns the number of queued writes.
func (b *HistoryBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Dropped returns the number of writes rejected because the buffer was full.
func (b *HistoryBuffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
