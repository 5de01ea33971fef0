package migrations

import (
	"errors"
	"strings"
	"testing"
)

func TestLoad_Embedded(t *testing.T) {
	tests := []struct {
		dir      string
		versions []string
		stmts    []int
	}{
		{"postgres", []string{"001_position_results", "002_execution_records", "003_position_entry_notional"}, []int{2, 2, 1}},
		{"clickhouse", []string{"001_candles", "002_strategy_aggregates"}, []int{1, 1}},
	}

	for _, tt := range tests {
		fsys := PostgresFS
		if tt.dir == "clickhouse" {
			fsys = ClickhouseFS
		}
		got, err := Load(fsys, tt.dir)
		if err != nil {
			t.Fatalf("Load(%s): %v", tt.dir, err)
		}
		if len(got) != len(tt.versions) {
			t.Fatalf("%s: expected %d migrations, got %d", tt.dir, len(tt.versions), len(got))
		}
		for i, m := range got {
			if m.Version != tt.versions[i] {
				t.Errorf("%s[%d].Version = %q, want %q", tt.dir, i, m.Version, tt.versions[i])
			}
			if len(m.Statements) != tt.stmts[i] {
				t.Errorf("%s: %s has %d statements, want %d", tt.dir, m.Version, len(m.Statements), tt.stmts[i])
			}
			if !strings.HasPrefix(m.Statements[0], "CREATE") {
				t.Errorf("%s: comment lines not stripped: %.20q", m.Version, m.Statements[0])
			}
		}
	}
}

func TestPending(t *testing.T) {
	all := []Migration{{Version: "001"}, {Version: "002"}, {Version: "003"}}
	got := pending(all, versionSet([]string{"002"}))
	if len(got) != 2 || got[0].Version != "001" || got[1].Version != "003" {
		t.Errorf("pending = %+v, want 001 and 003", got)
	}
	if got := pending(all, versionSet([]string{"001", "002", "003"})); len(got) != 0 {
		t.Errorf("expected nothing pending, got %+v", got)
	}
}

func TestSplitStatements(t *testing.T) {
	in := "-- header\nCREATE TABLE a (x Int64);\n\nCREATE TABLE b (y Int64);\n"
	got, err := splitStatements(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(got), got)
	}
	if got[1] != "CREATE TABLE b (y Int64)" {
		t.Errorf("unexpected second statement: %q", got[1])
	}
}

func TestSplitStatements_Literals(t *testing.T) {
	got, err := splitStatements("INSERT INTO t VALUES ('a;b', 'it''s');SELECT 1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(got), got)
	}
	if got[0] != "INSERT INTO t VALUES ('a;b', 'it''s')" {
		t.Errorf("literal split: %q", got[0])
	}

	// a quoted line starting with -- is data, not a comment
	got, err = splitStatements("SELECT '\n-- kept\n'")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || !strings.Contains(got[0], "-- kept") {
		t.Errorf("quoted comment dropped: %q", got)
	}

	if _, err := splitStatements("SELECT 'open"); !errors.Is(err, ErrUnterminatedLiteral) {
		t.Errorf("expected ErrUnterminatedLiteral, got %v", err)
	}
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default:@localhost:9000/backtest")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if db != "backtest" {
		t.Errorf("db = %q, want backtest", db)
	}
	if _, err := databaseFromDSN("clickhouse://localhost:9000"); err == nil {
		t.Error("expected error for DSN without database")
	}
}
