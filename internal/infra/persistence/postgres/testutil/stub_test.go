package testutil

import (
	"context"
	"database/sql/driver"
	"strings"
	"testing"

	"materialcore/internal/infra/persistence/sqlbundle"
)

func TestStubDBUpsertsAndDeletesRows(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	if err := conn.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	upsert := "INSERT INTO materials(id,payload) VALUES($1,$2) ON CONFLICT(id) DO UPDATE SET payload=excluded.payload"
	for _, payload := range []string{`{"name":"a"}`, `{"name":"b"}`} {
		if _, err := conn.ExecContext(ctx, upsert, []driver.NamedValue{{Value: "mat-1"}, {Value: payload}}); err != nil {
			t.Fatalf("ExecContext upsert: %v", err)
		}
	}
	if got := conn.Count("materials"); got != 1 {
		t.Fatalf("expected upsert to keep a single row, got %d", got)
	}
	row, ok := conn.Row("materials", "mat-1")
	if !ok || row["payload"] != `{"name":"b"}` {
		t.Fatalf("expected latest payload, got %v", row)
	}

	rows, err := conn.QueryContext(ctx, "SELECT payload FROM materials", nil)
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	dest := make([]driver.Value, 1)
	if err := rows.Next(dest); err != nil {
		t.Fatalf("Next: %v", err)
	}
	_ = rows.Close()
	if dest[0] != `{"name":"b"}` {
		t.Fatalf("unexpected row values: %v", dest)
	}

	if _, err := conn.ExecContext(ctx, "DELETE FROM materials WHERE id=$1", []driver.NamedValue{{Value: "mat-1"}}); err != nil {
		t.Fatalf("ExecContext delete: %v", err)
	}
	if got := conn.Count("materials"); got != 0 {
		t.Fatalf("expected row deleted, got %d", got)
	}
}

func TestStubDBFailsConfiguredTables(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	conn.FailTables = map[string]bool{"weight_fractions": true}
	_, err := conn.ExecContext(ctx, "INSERT INTO weight_fractions(id,payload) VALUES($1,$2)", []driver.NamedValue{{Value: "f"}, {Value: "{}"}})
	if err == nil {
		t.Fatal("expected configured table failure")
	}
}

func migrated(t *testing.T) *StubConn {
	t.Helper()
	_, conn := NewStubDB()
	for _, stmt := range sqlbundle.SplitStatements(sqlbundle.Postgres()) {
		if _, err := conn.ExecContext(context.Background(), stmt, nil); err != nil {
			t.Fatalf("ddl %q: %v", stmt, err)
		}
	}
	return conn
}

func exec(conn *StubConn, query string, values ...any) error {
	args := make([]driver.NamedValue, len(values))
	for i, v := range values {
		args[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	_, err := conn.ExecContext(context.Background(), query, args)
	return err
}

func TestStubLearnsCompositionConstraints(t *testing.T) {
	conn := migrated(t)
	cases := map[string]string{
		"composition_profiles":  "composition_profiles_standard_idx",
		"group_assignments":     "group_assignments_profile_id_group_id_key",
		"composition_snapshots": "composition_snapshots_assignment_id_timestep_id_key",
		"weight_fractions":      "weight_fractions_snapshot_id_component_id_key",
	}
	for table, want := range cases {
		if got := conn.Constraints(table); len(got) != 1 || got[0] != want {
			t.Fatalf("%s constraints = %v, want [%s]", table, got, want)
		}
	}
}

func TestStubEnforcesUniqueKeys(t *testing.T) {
	conn := migrated(t)
	assignments := "INSERT INTO group_assignments(id,profile_id,group_id,reference_component_id,payload) VALUES($1,$2,$3,$4,$5) ON CONFLICT(id) DO UPDATE SET payload=excluded.payload"
	if err := exec(conn, assignments, "a1", "p1", "g1", "c1", "{}"); err != nil {
		t.Fatalf("first assignment: %v", err)
	}
	if err := exec(conn, assignments, "a1", "p1", "g1", "c2", "{}"); err != nil {
		t.Fatalf("upserting the same row must not collide with itself: %v", err)
	}
	err := exec(conn, assignments, "a2", "p1", "g1", "c1", "{}")
	if err == nil || !strings.Contains(err.Error(), "group_assignments_profile_id_group_id_key") {
		t.Fatalf("expected (profile, group) violation, got %v", err)
	}
	if err := exec(conn, assignments, "a3", "p2", "g1", "c1", "{}"); err != nil {
		t.Fatalf("other profile may use the same group: %v", err)
	}

	snapshots := "INSERT INTO composition_snapshots(id,assignment_id,timestep_id,version,payload) VALUES($1,$2,$3,$4,$5)"
	if err := exec(conn, snapshots, "s1", "a1", "t1", int64(1), "{}"); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if err := exec(conn, snapshots, "s2", "a1", "t1", int64(1), "{}"); err == nil {
		t.Fatal("expected (assignment, timestep) violation")
	}

	fractions := "INSERT INTO weight_fractions(id,snapshot_id,component_id,average,standard_deviation,payload) VALUES($1,$2,$3,$4,$5,$6)"
	if err := exec(conn, fractions, "f1", "s1", "c1", 0.5, 0.0, "{}"); err != nil {
		t.Fatalf("fraction: %v", err)
	}
	if err := exec(conn, fractions, "f2", "s1", "c1", 0.5, 0.0, "{}"); err == nil {
		t.Fatal("expected (snapshot, component) violation")
	}
	if err := exec(conn, fractions, "f3", "s1", "c2", 1.5, 0.0, "{}"); err == nil || !strings.Contains(err.Error(), "check constraint") {
		t.Fatalf("expected average range violation, got %v", err)
	}
}

func TestStubStandardProfileIndexIsPartial(t *testing.T) {
	conn := migrated(t)
	profiles := "INSERT INTO composition_profiles(id,material_id,is_standard,payload) VALUES($1,$2,$3,$4)"
	if err := exec(conn, profiles, "p1", "m1", true, "{}"); err != nil {
		t.Fatalf("standard profile: %v", err)
	}
	for _, id := range []string{"p2", "p3"} {
		if err := exec(conn, profiles, id, "m1", false, "{}"); err != nil {
			t.Fatalf("custom profile %s: %v", id, err)
		}
	}
	if err := exec(conn, profiles, "p4", "m1", true, "{}"); err == nil {
		t.Fatal("expected second standard profile to be rejected")
	}
	if err := exec(conn, profiles, "p5", "m2", true, "{}"); err != nil {
		t.Fatalf("standard profile of another material: %v", err)
	}
}

func TestStubRejectsUnknownColumnsAndRollsBack(t *testing.T) {
	conn := migrated(t)
	if err := exec(conn, "INSERT INTO materials(id,name) VALUES($1,$2)", "m1", "Maize"); err == nil {
		t.Fatal("expected unknown column error")
	}

	tx, err := conn.BeginTx(context.Background(), driver.TxOptions{})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := exec(conn, "INSERT INTO materials(id,payload) VALUES($1,$2)", "m1", "{}"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if got := conn.Count("materials"); got != 0 {
		t.Fatalf("rollback must discard rows, got %d", got)
	}

	registry := "INSERT INTO registry(id,payload) VALUES($1,$2) ON CONFLICT(id) DO NOTHING"
	if err := exec(conn, registry, int64(1), "first"); err != nil {
		t.Fatalf("registry: %v", err)
	}
	if err := exec(conn, registry, int64(1), "second"); err != nil {
		t.Fatalf("registry again: %v", err)
	}
	if conn.Count("registry") != 1 || conn.Tables["registry"][0]["payload"] != "first" {
		t.Fatalf("DO NOTHING must keep the first registry row, got %v", conn.Tables["registry"])
	}
}
