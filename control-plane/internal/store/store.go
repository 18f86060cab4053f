// Package store provides database access for the coordination service.
//
// # Design
//
// The store keeps history only: the snapshots of every evaluated window and
// every directive dispatched from it. Coordination never reads it back, so a
// missing or failing database only costs history. Raw SQL with pgx.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pilot-net/sdn-balance/pkg/types"
)

// Store provides database operations.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new store with the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewStoreFromURL creates a new store by connecting to the given database URL.
func NewStoreFromURL(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping tests database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Pool returns the underlying connection pool for migrations.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// PoolStats is a summary of connection pool usage.
type PoolStats struct {
	TotalConnections    int32 `json:"total_connections"`
	IdleConnections     int32 `json:"idle_connections"`
	AcquiredConnections int32 `json:"acquired_connections"`
	MaxConnections      int32 `json:"max_connections"`
}

// GetPoolStats returns connection pool statistics without a query.
func (s *Store) GetPoolStats() PoolStats {
	st := s.pool.Stat()
	return PoolStats{
		TotalConnections:    st.TotalConns(),
		IdleConnections:     st.IdleConns(),
		AcquiredConnections: st.AcquiredConns(),
		MaxConnections:      st.MaxConns(),
	}
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

var snapshotColumns = []string{
	"evaluation_id", "partial", "controller_id", "total_switches",
	"total_load", "avg_latency_ms", "connected_switches", "reported_at",
}

// RecordSnapshots stores the snapshots of one evaluated window.
func (s *Store) RecordSnapshots(ctx context.Context, evaluationID string, partial bool, snaps []types.MetricSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"controller_snapshots"},
		snapshotColumns,
		pgx.CopyFromRows(snapshotRows(evaluationID, partial, snaps)),
	)
	if err != nil {
		return fmt.Errorf("recording snapshots: %w", err)
	}
	return nil
}

func snapshotRows(evaluationID string, partial bool, snaps []types.MetricSnapshot) [][]any {
	rows := make([][]any, len(snaps))
	for i, snap := range snaps {
		reported := snap.Timestamp
		if reported.IsZero() {
			reported = time.Now()
		}
		rows[i] = []any{
			evaluationID,
			partial,
			string(snap.Controller),
			snap.TotalSwitches,
			snap.TotalLoad,
			snap.AvgLatencyMs,
			switchStrings(snap.ConnectedSwitches),
			reported,
		}
	}
	return rows
}

// ListSnapshots returns a controller's most recent evaluated snapshots,
// newest first.
func (s *Store) ListSnapshots(ctx context.Context, controller types.ControllerID, limit int) ([]types.MetricSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT controller_id, total_switches, total_load, avg_latency_ms,
		       connected_switches, reported_at
		FROM controller_snapshots
		WHERE controller_id = $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT $2
	`, string(controller), limit)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	snaps := []types.MetricSnapshot{}
	for rows.Next() {
		var (
			snap     types.MetricSnapshot
			id       string
			switches []string
		)
		if err := rows.Scan(&id, &snap.TotalSwitches, &snap.TotalLoad, &snap.AvgLatencyMs, &switches, &snap.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snap.Controller = types.ControllerID(id)
		snap.ConnectedSwitches = switchIDs(switches)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// =============================================================================
// MIGRATIONS
// =============================================================================

// RecordMigration stores one dispatched or failed directive.
func (s *Store) RecordMigration(ctx context.Context, rec types.MigrationRecord) error {
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO migration_history
			(evaluation_id, directive_id, from_controller, to_controller, switch_id, status, error, partial, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		rec.EvaluationID, rec.DirectiveID, string(rec.From), string(rec.To), string(rec.Switch),
		string(rec.Status), nilIfEmpty(rec.Error), rec.Partial, created,
	)
	if err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}
	return nil
}

// ListMigrations returns the most recent migrations, newest first.
func (s *Store) ListMigrations(ctx context.Context, limit int) ([]types.MigrationRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, evaluation_id::text, directive_id::text, from_controller, to_controller,
		       switch_id, status, COALESCE(error, ''), partial, created_at
		FROM migration_history
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying migrations: %w", err)
	}
	defer rows.Close()

	history := []types.MigrationRecord{}
	for rows.Next() {
		var (
			rec                  types.MigrationRecord
			from, to, sw, status string
		)
		if err := rows.Scan(&rec.ID, &rec.EvaluationID, &rec.DirectiveID, &from, &to,
			&sw, &status, &rec.Error, &rec.Partial, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning migration: %w", err)
		}
		rec.From = types.ControllerID(from)
		rec.To = types.ControllerID(to)
		rec.Switch = types.SwitchID(sw)
		rec.Status = types.MigrationStatus(status)
		history = append(history, rec)
	}
	return history, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func switchStrings(ids []types.SwitchID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func switchIDs(ss []string) []types.SwitchID {
	out := make([]types.SwitchID, len(ss))
	for i, s := range ss {
		out[i] = types.SwitchID(s)
	}
	return out
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
