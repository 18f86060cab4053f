// Package testutil provides testing utilities and fixtures for the
// coordination service.
//
// # Usage
//
// Fixtures use functional options for customization:
//
//	s := testutil.FixtureSnapshot("1")
//	s := testutil.FixtureSnapshot("1", func(s *types.MetricSnapshot) {
//		s.TotalLoad = 120
//		s.AvgLatencyMs = 400
//	})
package testutil

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pilot-net/sdn-balance/pkg/types"
)

// NewTestLogger returns a logger that discards all output.
func NewTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =============================================================================
// SNAPSHOT FIXTURES
// =============================================================================

// FixtureSnapshot creates a normally loaded snapshot for controller id with
// two switches named after it. Use overrides to customize specific fields.
func FixtureSnapshot(id types.ControllerID, overrides ...func(*types.MetricSnapshot)) types.MetricSnapshot {
	s := types.MetricSnapshot{
		Controller:    id,
		TotalSwitches: 2,
		AvgLatencyMs:  20,
		TotalLoad:     10,
		ConnectedSwitches: []types.SwitchID{
			types.SwitchID(fmt.Sprintf("s%s-1", id)),
			types.SwitchID(fmt.Sprintf("s%s-2", id)),
		},
		Timestamp: time.Now(),
	}

	for _, override := range overrides {
		override(&s)
	}

	return s
}

// FixtureSnapshotOverloaded creates a snapshot above the default thresholds
// (load 50, latency 300ms).
func FixtureSnapshotOverloaded(id types.ControllerID, overrides ...func(*types.MetricSnapshot)) types.MetricSnapshot {
	return FixtureSnapshot(id, append([]func(*types.MetricSnapshot){
		func(s *types.MetricSnapshot) {
			s.TotalLoad = 120
			s.AvgLatencyMs = 400
		},
	}, overrides...)...)
}

// =============================================================================
// DIRECTIVE FIXTURES
// =============================================================================

// FixtureDirective creates a directive moving the first fixture switch of
// from to to.
func FixtureDirective(from, to types.ControllerID, overrides ...func(*types.MigrationDirective)) types.MigrationDirective {
	d := types.MigrationDirective{
		ID:       uuid.New().String(),
		From:     from,
		To:       to,
		Switch:   types.SwitchID(fmt.Sprintf("s%s-1", from)),
		IssuedAt: time.Now(),
	}

	for _, override := range overrides {
		override(&d)
	}

	return d
}

// FixtureMigrationRecord creates a dispatched migration record.
func FixtureMigrationRecord(overrides ...func(*types.MigrationRecord)) types.MigrationRecord {
	d := FixtureDirective("1", "2")
	rec := types.MigrationRecord{
		ID:           1,
		EvaluationID: uuid.New().String(),
		DirectiveID:  d.ID,
		From:         d.From,
		To:           d.To,
		Switch:       d.Switch,
		Status:       types.MigrationDispatched,
		CreatedAt:    d.IssuedAt,
	}

	for _, override := range overrides {
		override(&rec)
	}

	return rec
}

// =============================================================================
// TOPOLOGY FIXTURES
// =============================================================================

// FixtureTopology creates a view with one row per controller, built from
// FixtureSnapshot defaults.
func FixtureTopology(ids ...types.ControllerID) types.TopologyView {
	view := types.TopologyView{
		GeneratedAt: time.Now(),
		Controllers: []types.ControllerView{},
	}
	for _, id := range ids {
		s := FixtureSnapshot(id)
		view.Controllers = append(view.Controllers, types.ControllerView{
			Controller:        s.Controller,
			TotalLoad:         s.TotalLoad,
			AvgLatencyMs:      s.AvgLatencyMs,
			ConnectedSwitches: s.ConnectedSwitches,
			ReportedAt:        s.Timestamp,
		})
	}
	return view
}
