package core

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"materialcore/pkg/domain"
)

func newBiochemFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := newFixture(t, NewInMemoryService(nil))
	_, err := f.svc.AddComponent(ctx, f.biochem.ID, f.a.ID)
	require.NoError(t, err)
	_, err = f.svc.AddComponent(ctx, f.biochem.ID, f.b.ID)
	require.NoError(t, err)
	return f
}

func TestEditHandleLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newBiochemFixture(t)
	avg := f.averageSnapshotID(t, f.biochem.ID)

	h, err := f.svc.BeginEdit(ctx, avg)
	require.NoError(t, err)
	require.Equal(t, EditProposed, h.State())
	require.Equal(t, f.biochem.ID, h.AssignmentID)
	require.Len(t, h.Shares(), 2)
	require.Zero(t, h.Sum())

	require.ErrorIs(t, h.SetShare(f.a.ID, 1.2, 0), domain.ErrOutOfRange)
	require.ErrorIs(t, h.SetShare(f.a.ID, 0.5, -0.1), domain.ErrOutOfRange)
	require.Zero(t, h.Sum(), "rejected input must not touch the working copy")

	unassigned, _, err := f.svc.CreateComponent(ctx, "Lipids", "")
	require.NoError(t, err)
	require.ErrorIs(t, h.SetShare(unassigned.ID, 0.1, 0), domain.ErrNotFound)

	require.NoError(t, h.SetShare(f.a.ID, 0.6, 0.05))
	require.NoError(t, h.SetShare(f.b.ID, 0.4, 0.02))
	require.InDelta(t, 1.0, h.Sum(), 1e-12)

	before := h.Version()
	_, err = f.svc.CommitEdit(ctx, h)
	require.NoError(t, err)
	require.Equal(t, EditCommitted, h.State())
	require.Equal(t, before+2, h.Version())

	require.ErrorIs(t, h.SetShare(f.a.ID, 0.5, 0), ErrEditClosed)
	_, err = f.svc.CommitEdit(ctx, h)
	require.ErrorIs(t, err, ErrEditClosed)

	snaps, err := f.svc.Snapshots(ctx, f.biochem.ID)
	require.NoError(t, err)
	require.Equal(t, 0.05, snaps[0].Shares[f.a.ID].StandardDeviation)
}

func TestEditMarkForDeletion(t *testing.T) {
	ctx := context.Background()
	f := newBiochemFixture(t)
	f.commitShares(t, f.biochem.ID, map[string]float64{f.a.ID: 0.6, f.b.ID: 0.4})
	avg := f.averageSnapshotID(t, f.biochem.ID)

	h, err := f.svc.BeginEdit(ctx, avg)
	require.NoError(t, err)
	require.NoError(t, h.MarkForDeletion(f.b.ID))
	require.InDelta(t, 0.6, h.Sum(), 1e-12)
	_, err = f.svc.CommitEdit(ctx, h)
	require.ErrorIs(t, err, domain.ErrUnbalancedComposition)
	require.Equal(t, EditRejected, h.State())

	h, err = f.svc.BeginEdit(ctx, avg)
	require.NoError(t, err)
	require.NoError(t, h.MarkForDeletion(f.b.ID))
	require.NoError(t, h.SetShare(f.a.ID, 1, 0))
	_, err = f.svc.CommitEdit(ctx, h)
	require.NoError(t, err)

	shares := sharesOf(t, f.svc, f.biochem.ID)[f.reg.DefaultTimestepID]
	require.Equal(t, map[string]float64{f.a.ID: 1}, shares)

	// component stays assigned, so a share can be recreated
	h, err = f.svc.BeginEdit(ctx, avg)
	require.NoError(t, err)
	require.NoError(t, h.SetShare(f.a.ID, 0.7, 0))
	require.NoError(t, h.SetShare(f.b.ID, 0.3, 0))
	_, err = f.svc.CommitEdit(ctx, h)
	require.NoError(t, err)
	require.Len(t, sharesOf(t, f.svc, f.biochem.ID)[f.reg.DefaultTimestepID], 2)

	require.ErrorIs(t, h.MarkForDeletion(f.a.ID), ErrEditClosed)
}

func TestCommitEditDetectsConflict(t *testing.T) {
	ctx := context.Background()
	f := newBiochemFixture(t)
	avg := f.averageSnapshotID(t, f.biochem.ID)

	first, err := f.svc.BeginEdit(ctx, avg)
	require.NoError(t, err)
	second, err := f.svc.BeginEdit(ctx, avg)
	require.NoError(t, err)

	require.NoError(t, first.SetShare(f.a.ID, 0.6, 0))
	require.NoError(t, first.SetShare(f.b.ID, 0.4, 0))
	_, err = f.svc.CommitEdit(ctx, first)
	require.NoError(t, err)

	require.NoError(t, second.SetShare(f.a.ID, 0.5, 0))
	require.NoError(t, second.SetShare(f.b.ID, 0.5, 0))
	_, err = f.svc.CommitEdit(ctx, second)
	require.ErrorIs(t, err, domain.ErrConflict)
	require.True(t, domain.IsRetryable(err))
	require.Equal(t, EditRejected, second.State())

	require.Equal(t, 0.6, sharesOf(t, f.svc, f.biochem.ID)[f.reg.DefaultTimestepID][f.a.ID])
}

func TestEditWithRetryReappliesAfterConflict(t *testing.T) {
	ctx := context.Background()
	f := newBiochemFixture(t)
	avg := f.averageSnapshotID(t, f.biochem.ID)

	attempts := 0
	_, err := f.svc.EditWithRetry(ctx, avg, 3, func(h *EditHandle) error {
		attempts++
		if attempts == 1 {
			// a competing writer commits between read and commit
			require.NoError(t, f.tryShares(avg, map[string]float64{f.a.ID: 0.2, f.b.ID: 0.8}))
		}
		if err := h.SetShare(f.a.ID, 0.6, 0); err != nil {
			return err
		}
		return h.SetShare(f.b.ID, 0.4, 0)
	})
	require.NoError(t, err)
	require.Equal(t, 2, attempts)
	require.Equal(t, 0.6, sharesOf(t, f.svc, f.biochem.ID)[f.reg.DefaultTimestepID][f.a.ID])

	boom := errors.New("boom")
	_, err = f.svc.EditWithRetry(ctx, avg, 3, func(*EditHandle) error { return boom })
	require.ErrorIs(t, err, boom)

	_, err = f.svc.EditWithRetry(ctx, avg, 0, func(h *EditHandle) error {
		return h.SetShare(f.a.ID, 0.9, 0)
	})
	require.ErrorIs(t, err, domain.ErrUnbalancedComposition)
}

func TestConcurrentEditsStayBalanced(t *testing.T) {
	ctx := context.Background()
	f := newBiochemFixture(t)
	avg := f.averageSnapshotID(t, f.biochem.ID)

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			share := float64(i+1) / 10
			_, errs[i] = f.svc.EditWithRetry(ctx, avg, 100, func(h *EditHandle) error {
				if err := h.SetShare(f.a.ID, share, 0); err != nil {
					return err
				}
				return h.SetShare(f.b.ID, 1-share, 0)
			})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	var sum float64
	for _, v := range sharesOf(t, f.svc, f.biochem.ID)[f.reg.DefaultTimestepID] {
		sum += v
	}
	require.InDelta(t, 1.0, sum, domain.BalanceTolerance)
}

func TestCommitEditBalanceProperty(t *testing.T) {
	f := newBiochemFixture(t)
	avg := f.averageSnapshotID(t, f.biochem.ID)

	rapid.Check(t, func(rt *rapid.T) {
		a := rapid.Float64Range(0, 1).Draw(rt, "a")
		b := rapid.Float64Range(0, 1).Draw(rt, "b")
		err := f.tryShares(avg, map[string]float64{f.a.ID: a, f.b.ID: b})
		balanced := math.Abs(a+b-1) <= domain.BalanceTolerance
		if balanced && err != nil {
			rt.Fatalf("balanced shares %v + %v rejected: %v", a, b, err)
		}
		if !balanced && !errors.Is(err, domain.ErrUnbalancedComposition) {
			rt.Fatalf("unbalanced shares %v + %v: got %v", a, b, err)
		}

		err = f.tryShares(avg, map[string]float64{f.a.ID: a, f.b.ID: 1 - a})
		if err != nil {
			rt.Fatalf("complementary shares %v rejected: %v", a, err)
		}
	})
}
