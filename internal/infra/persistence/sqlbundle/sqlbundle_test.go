package sqlbundle

import (
	"strings"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	stmts := SplitStatements(SQLite())
	if len(stmts) == 0 {
		t.Fatal("expected sqlite DDL to produce statements")
	}
	for _, stmt := range stmts {
		if strings.HasPrefix(strings.TrimSpace(stmt), "--") {
			t.Fatalf("statement unexpectedly starts with comment: %q", stmt)
		}
		if !strings.HasSuffix(strings.TrimSpace(stmt), ";") {
			t.Fatalf("statement missing semicolon terminator: %q", stmt)
		}
	}
}

func TestBundlesDeclareEveryTable(t *testing.T) {
	tables := []string{
		"registry", "materials", "components", "component_groups", "temporal_distributions",
		"timesteps", "sources", "composition_profiles", "group_assignments",
		"composition_snapshots", "weight_fractions",
	}
	for name, ddl := range map[string]string{"sqlite": SQLite(), "postgres": Postgres()} {
		for _, table := range tables {
			if !strings.Contains(ddl, "CREATE TABLE IF NOT EXISTS "+table+" (") {
				t.Fatalf("%s DDL missing table %s", name, table)
			}
		}
	}
}

func TestSplitStatementsSkipsCommentsAndKeepsTail(t *testing.T) {
	stmts := SplitStatements("-- header\nCREATE TABLE a (id TEXT);\n\nCREATE INDEX b ON a(id)")
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
	}
	if stmts[1] != "CREATE INDEX b ON a(id)" {
		t.Fatalf("unexpected tail statement %q", stmts[1])
	}
}
