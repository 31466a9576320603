package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"materialcore/pkg/domain"
)

func createTree(t *testing.T, store *Store) (materialID, fractionID string) {
	t.Helper()
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		g, err := tx.CreateComponentGroup(domain.ComponentGroup{Name: "Total Material"})
		if err != nil {
			return err
		}
		c, err := tx.CreateComponent(domain.Component{Name: "Fresh Matter"})
		if err != nil {
			return err
		}
		d, err := tx.CreateDistribution(domain.TemporalDistribution{Name: "Average"})
		if err != nil {
			return err
		}
		step, err := tx.CreateTimestep(domain.Timestep{Name: "Average", DistributionID: d.ID})
		if err != nil {
			return err
		}
		if _, err := tx.InitRegistry(domain.Registry{DefaultOwner: "admin", DefaultGroupID: g.ID, DefaultComponentID: c.ID, DefaultDistributionID: d.ID, DefaultTimestepID: step.ID}); err != nil {
			return err
		}
		m, err := tx.CreateMaterial(domain.Material{Name: "Maize"})
		if err != nil {
			return err
		}
		p, err := tx.CreateProfile(domain.CompositionProfile{MaterialID: m.ID, IsStandard: true})
		if err != nil {
			return err
		}
		a, err := tx.CreateAssignment(domain.ComponentGroupAssignment{ProfileID: p.ID, GroupID: g.ID, ReferenceComponentID: c.ID, ComponentIDs: []string{c.ID}, DistributionIDs: []string{d.ID}})
		if err != nil {
			return err
		}
		s, err := tx.CreateSnapshot(domain.CompositionSnapshot{AssignmentID: a.ID, TimestepID: step.ID})
		if err != nil {
			return err
		}
		f, err := tx.CreateWeightFraction(domain.WeightFraction{SnapshotID: s.ID, ComponentID: c.ID, Average: 1})
		if err != nil {
			return err
		}
		materialID, fractionID = m.ID, f.ID
		return nil
	})
	if err != nil {
		t.Fatalf("create tree: %v", err)
	}
	return materialID, fractionID
}

func countRows(t *testing.T, store *Store, table string) int {
	t.Helper()
	var n int
	if err := store.DB().QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	materialID, fractionID := createTree(t, store)
	for table, want := range map[string]int{
		"registry":              1,
		"materials":             1,
		"composition_profiles":  1,
		"group_assignments":     1,
		"composition_snapshots": 1,
		"weight_fractions":      1,
		"timesteps":             1,
	} {
		if got := countRows(t, store, table); got != want {
			t.Fatalf("%s: expected %d rows, got %d", table, want, got)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	err = reloaded.View(context.Background(), func(view domain.TransactionView) error {
		reg, ok := view.Registry()
		if !ok || reg.DefaultOwner != "admin" {
			t.Fatalf("expected registry reloaded, got %+v", reg)
		}
		m, ok := view.FindMaterial(materialID)
		if !ok || len(m.ProfileIDs) != 1 {
			t.Fatalf("expected material with profile, got %+v", m)
		}
		f, ok := view.FindWeightFraction(fractionID)
		if !ok || f.Average != 1 {
			t.Fatalf("expected fraction reloaded, got %+v", f)
		}
		snap, _ := view.FindSnapshot(f.SnapshotID)
		if snap.Version != 2 {
			t.Fatalf("expected snapshot version 2, got %d", snap.Version)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestSQLiteStoreMirrorsDeletes(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	_, fractionID := createTree(t, store)

	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return tx.DeleteWeightFraction(fractionID)
	})
	if err != nil {
		t.Fatalf("delete fraction: %v", err)
	}
	if got := countRows(t, store, "weight_fractions"); got != 0 {
		t.Fatalf("expected fraction row deleted, got %d", got)
	}
}

func TestSQLiteStoreRejectedTransactionWritesNothing(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	boom := errors.New("boom")
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateComponent(domain.Component{Name: "Ash"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if got := countRows(t, store, "components"); got != 0 {
		t.Fatalf("expected no rows, got %d", got)
	}
}

func TestSQLiteSchemaEnforcesOneStandardProfile(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	materialID, _ := createTree(t, store)

	_, err = store.DB().Exec("INSERT INTO composition_profiles(id, material_id, is_standard, payload) VALUES('dup', ?, 1, '{}')", materialID)
	if err == nil {
		t.Fatalf("expected partial unique index to reject a second standard profile")
	}
	if _, err := store.DB().Exec("INSERT INTO composition_profiles(id, material_id, is_standard, payload) VALUES('copy', ?, 0, '{}')", materialID); err != nil {
		t.Fatalf("non-standard profile: %v", err)
	}
}

func TestSQLiteStoreDefaultPath(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	store, err := NewStore("", nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if store.Path() != defaultPath {
		t.Fatalf("expected default path, got %s", store.Path())
	}
}
