package core

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// fixture is a material with a standard profile, a Biochemical group assigned
// relative to the base component, two extra components and a monthly distribution.
type fixture struct {
	svc      *Service
	reg      Registry
	material Material
	profile  CompositionProfile
	base     ComponentGroupAssignment
	group    ComponentGroup
	biochem  ComponentGroupAssignment
	a, b     Component
	monthly  TemporalDistribution
}

func newFixture(t *testing.T, svc *Service) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{svc: svc}

	var err error
	f.reg, err = svc.GetOrInitialize(ctx)
	require.NoError(t, err)

	f.material, f.profile, _, err = svc.CreateMaterial(ctx, Material{Name: "Maize silage"})
	require.NoError(t, err)
	f.base, err = svc.AssignmentForGroup(ctx, f.profile.ID, f.reg.DefaultGroupID)
	require.NoError(t, err)

	f.group, _, err = svc.CreateComponentGroup(ctx, "Biochemical Composition", "")
	require.NoError(t, err)
	f.biochem, _, err = svc.AddComponentGroup(ctx, f.profile.ID, f.group.ID, f.reg.DefaultComponentID)
	require.NoError(t, err)

	f.a, _, err = svc.CreateComponent(ctx, "Carbohydrates", "")
	require.NoError(t, err)
	f.b, _, err = svc.CreateComponent(ctx, "Proteins", "")
	require.NoError(t, err)

	months := make([]string, 12)
	for i := range months {
		months[i] = fmt.Sprintf("Month %02d", i+1)
	}
	f.monthly, _, err = svc.CreateDistribution(ctx, "Months of the year", "", months)
	require.NoError(t, err)
	return f
}

// averageSnapshotID returns the id of the assignment's average snapshot.
func (f *fixture) averageSnapshotID(t *testing.T, assignmentID string) string {
	t.Helper()
	snaps, err := f.svc.Snapshots(context.Background(), assignmentID)
	require.NoError(t, err)
	for _, s := range snaps {
		if s.Snapshot.TimestepID == f.reg.DefaultTimestepID {
			return s.Snapshot.ID
		}
	}
	t.Fatalf("assignment %s has no average snapshot", assignmentID)
	return ""
}

// commitShares edits the average snapshot of an assignment.
func (f *fixture) commitShares(t *testing.T, assignmentID string, shares map[string]float64) {
	t.Helper()
	require.NoError(t, f.tryShares(f.averageSnapshotID(t, assignmentID), shares))
}

// tryShares edits one snapshot and returns the commit error.
func (f *fixture) tryShares(snapshotID string, shares map[string]float64) error {
	ctx := context.Background()
	h, err := f.svc.BeginEdit(ctx, snapshotID)
	if err != nil {
		return err
	}
	for cid, avg := range shares {
		if err := h.SetShare(cid, avg, 0); err != nil {
			return err
		}
	}
	_, err = f.svc.CommitEdit(ctx, h)
	return err
}

func sharesOf(t *testing.T, svc *Service, assignmentID string) map[string]map[string]float64 {
	t.Helper()
	snaps, err := svc.Snapshots(context.Background(), assignmentID)
	require.NoError(t, err)
	out := make(map[string]map[string]float64, len(snaps))
	for _, s := range snaps {
		row := make(map[string]float64, len(s.Shares))
		for cid, wf := range s.Shares {
			row[cid] = wf.Average
		}
		out[s.Snapshot.TimestepID] = row
	}
	return out
}

type captureLogger struct{ calls []string }

func (c *captureLogger) Debug(msg string, _ ...any) { c.calls = append(c.calls, "d:"+msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.calls = append(c.calls, "i:"+msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.calls = append(c.calls, "w:"+msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.calls = append(c.calls, "e:"+msg) }
