package migrate

import (
	"errors"
	"strings"
	"testing"
	"testing/fstest"
	"time"
)

func TestParseFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion int
		wantName    string
		wantErr     bool
	}{
		{"001_history.sql", 1, "history", false},
		{"012_name_with_underscores.sql", 12, "name_with_underscores", false},
		{"history.sql", 0, "", true},
		{"abc_history.sql", 0, "", true},
		{"000_zero.sql", 0, "", true},
		{"001_.sql", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, err := parseFilename(tt.filename)
			if tt.wantErr {
				if !errors.Is(err, errFilename) {
					t.Errorf("expected filename error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if version != tt.wantVersion || name != tt.wantName {
				t.Errorf("got (%d, %s), want (%d, %s)", version, name, tt.wantVersion, tt.wantName)
			}
		})
	}
}

func TestLoadMigrations_Embedded(t *testing.T) {
	migrations, err := loadMigrations(migrationsFS)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(migrations) == 0 || migrations[0].version != 1 {
		t.Fatalf("expected migrations starting at 001, got %v", migrations)
	}

	var all strings.Builder
	for _, m := range migrations {
		all.WriteString(m.sql)
	}
	for _, table := range []string{"controller_snapshots", "migration_history"} {
		if !strings.Contains(all.String(), "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("no migration creates %s", table)
		}
	}
}

func TestLoadMigrations_Ordering(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/010_later.sql":  {Data: []byte("SELECT 10;")},
		"migrations/002_second.sql": {Data: []byte("SELECT 2;")},
		"migrations/001_first.sql":  {Data: []byte("SELECT 1;")},
		"migrations/README.md":      {Data: []byte("ignored")},
	}

	migrations, err := loadMigrations(fsys)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got []string
	for _, m := range migrations {
		got = append(got, m.String())
	}
	want := []string{"001_first", "002_second", "010_later"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestLoadMigrations_Rejects(t *testing.T) {
	tests := []struct {
		name string
		fsys fstest.MapFS
	}{
		{"duplicate version", fstest.MapFS{
			"migrations/001_a.sql": {Data: []byte("SELECT 1;")},
			"migrations/001_b.sql": {Data: []byte("SELECT 1;")},
		}},
		{"empty file", fstest.MapFS{
			"migrations/001_a.sql": {Data: []byte("  \n")},
		}},
		{"bad name", fstest.MapFS{
			"migrations/first.sql": {Data: []byte("SELECT 1;")},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loadMigrations(tt.fsys); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestPendingMigrations(t *testing.T) {
	available := []migration{{version: 1, name: "a"}, {version: 2, name: "b"}, {version: 3, name: "c"}}
	applied := []Record{{Version: 1, Name: "a", AppliedAt: time.Now()}, {Version: 3, Name: "c", AppliedAt: time.Now()}}

	pending := pendingMigrations(available, applied)
	if len(pending) != 1 || pending[0].version != 2 {
		t.Errorf("expected only 002 pending, got %v", pending)
	}

	status := &Status{Applied: applied}
	if status.Version() != 3 {
		t.Errorf("expected version 3, got %d", status.Version())
	}
	if (&Status{}).Version() != 0 {
		t.Error("expected version 0 with nothing applied")
	}
}
