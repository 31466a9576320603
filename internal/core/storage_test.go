package core

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"materialcore/internal/infra/persistence/sqlite"
)

func TestOpenPersistentStoreDefaultsToSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.db")
	store, closeFn, err := OpenPersistentStore(context.Background(), StorageConfig{SQLitePath: path}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeFn() })

	s, ok := store.(*sqlite.Store)
	require.True(t, ok, "expected *sqlite.Store, got %T", store)
	require.Equal(t, path, s.Path())
	require.Equal(t, []string{"composition_balance", "reference_component"}, store.RulesEngine().Rules())
}

func TestOpenPersistentStoreMemory(t *testing.T) {
	store, closeFn, err := OpenPersistentStore(context.Background(), StorageConfig{Driver: StorageMemory}, NewRulesEngine())
	require.NoError(t, err)
	require.NoError(t, closeFn())
	_, ok := store.(*MemoryStore)
	require.True(t, ok, "expected *MemoryStore, got %T", store)
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	_, _, err := OpenPersistentStore(context.Background(), StorageConfig{Driver: "etcd"}, nil)
	require.ErrorContains(t, err, "unknown storage driver")
}

func TestSQLiteBackedServiceSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	store, closeFn, err := OpenPersistentStore(ctx, StorageConfig{Driver: StorageSQLite, SQLitePath: path}, nil)
	require.NoError(t, err)
	svc := NewService(store)
	f := newFixture(t, svc)
	_, err = svc.AddComponent(ctx, f.biochem.ID, f.a.ID)
	require.NoError(t, err)
	_, err = svc.AddComponent(ctx, f.biochem.ID, f.b.ID)
	require.NoError(t, err)
	f.commitShares(t, f.biochem.ID, map[string]float64{f.a.ID: 0.6, f.b.ID: 0.4})
	require.NoError(t, closeFn())

	reopened, closeAgain, err := OpenPersistentStore(ctx, StorageConfig{Driver: StorageSQLite, SQLitePath: path}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeAgain() })
	svc2 := NewService(reopened)

	reg, err := svc2.GetOrInitialize(ctx)
	require.NoError(t, err)
	require.Equal(t, f.reg.DefaultGroupID, reg.DefaultGroupID, "registry must be reloaded rather than recreated")
	require.Equal(t, f.reg.DefaultTimestepID, reg.DefaultTimestepID)

	snaps, err := svc2.Snapshots(ctx, f.biochem.ID)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	require.InDelta(t, 0.6, snaps[0].Shares[f.a.ID].Average, 1e-12)
	require.InDelta(t, 0.4, snaps[0].Shares[f.b.ID].Average, 1e-12)
	require.Equal(t, int64(5), snaps[0].Snapshot.Version)
}
