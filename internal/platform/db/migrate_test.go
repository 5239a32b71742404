package db

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeMigrations(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, sql := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(sql), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestLoadMigrations_ParsesAndSorts(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"003_pharmacy_diagnostics.sql": "CREATE TABLE prescription (id UUID PRIMARY KEY);",
		"001_core.sql":                 "CREATE TABLE patient (id UUID PRIMARY KEY);",
		"002_billing.sql":              "CREATE TABLE invoice (id UUID PRIMARY KEY);",
	})

	m := NewMigrator(nil, dir)
	migrations, err := m.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}

	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	wantOrder := []int{1, 2, 3}
	for i, want := range wantOrder {
		if migrations[i].Version != want {
			t.Errorf("position %d: expected version %d, got %d", i, want, migrations[i].Version)
		}
	}
	if migrations[0].Name != "001_core.sql" {
		t.Errorf("expected 001_core.sql first, got %s", migrations[0].Name)
	}
	if migrations[0].SQL != "CREATE TABLE patient (id UUID PRIMARY KEY);" {
		t.Errorf("unexpected sql content: %s", migrations[0].SQL)
	}
}

func TestLoadMigrations_SkipsNonMigrationFiles(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"001_core.sql":   "CREATE TABLE patient (id UUID PRIMARY KEY);",
		"README.md":      "notes",
		"seed.sql":       "INSERT INTO patient DEFAULT VALUES;",
		"notanumber.sql": "SELECT 1;",
	})
	if err := os.Mkdir(filepath.Join(dir, "archive"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	m := NewMigrator(nil, dir)
	migrations, err := m.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}

	if len(migrations) != 1 {
		t.Fatalf("expected only the numbered sql file, got %d entries", len(migrations))
	}
	if migrations[0].Name != "001_core.sql" {
		t.Errorf("unexpected migration: %s", migrations[0].Name)
	}
}

func TestLoadMigrations_EmptyDir(t *testing.T) {
	m := NewMigrator(nil, t.TempDir())
	migrations, err := m.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("expected no migrations, got %d", len(migrations))
	}
}

func TestLoadMigrations_MissingDir(t *testing.T) {
	m := NewMigrator(nil, filepath.Join(t.TempDir(), "does-not-exist"))
	if _, err := m.LoadMigrations(); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestLoadMigrations_DuplicateVersionsKeptInOrder(t *testing.T) {
	// Two files sharing a version prefix both load; apply order between them
	// is stable by version, and the tracking table's primary key rejects the
	// second at apply time.
	dir := writeMigrations(t, map[string]string{
		"002_billing.sql":   "CREATE TABLE invoice (id UUID PRIMARY KEY);",
		"002_inventory.sql": "CREATE TABLE inventory_item (id UUID PRIMARY KEY);",
	})

	m := NewMigrator(nil, dir)
	migrations, err := m.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected both files loaded, got %d", len(migrations))
	}
	for _, mig := range migrations {
		if mig.Version != 2 {
			t.Errorf("expected version 2, got %d (%s)", mig.Version, mig.Name)
		}
	}
}

func TestMigrationStatus_PendingHasNoTimestamp(t *testing.T) {
	applied := map[int]time.Time{1: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
	migrations := []Migration{
		{Version: 1, Name: "001_core.sql"},
		{Version: 2, Name: "002_billing.sql"},
	}

	var statuses []MigrationStatus
	for _, mig := range migrations {
		st := MigrationStatus{Version: mig.Version, Name: mig.Name}
		if at, ok := applied[mig.Version]; ok {
			st.Applied = true
			st.AppliedAt = &at
		}
		statuses = append(statuses, st)
	}

	if !statuses[0].Applied || statuses[0].AppliedAt == nil {
		t.Error("expected version 1 to be applied with a timestamp")
	}
	if statuses[1].Applied || statuses[1].AppliedAt != nil {
		t.Error("expected version 2 to be pending without a timestamp")
	}
}

func TestNewMigrator(t *testing.T) {
	m := NewMigrator(nil, "migrations")
	if m.dir != "migrations" {
		t.Errorf("expected dir to be retained, got %s", m.dir)
	}
}
