package core

import (
	"materialcore/pkg/domain"
)

// reader is the lookup subset shared by transactions and read-only views.
type reader interface {
	FindComponent(id string) (Component, bool)
	FindDistribution(id string) (TemporalDistribution, bool)
	FindTimestep(id string) (Timestep, bool)
	FindProfile(id string) (CompositionProfile, bool)
	FindAssignment(id string) (ComponentGroupAssignment, bool)
	FindSnapshot(id string) (CompositionSnapshot, bool)
	FindWeightFraction(id string) (WeightFraction, bool)
}

// Explicit construction paths. Seeding factories are only invoked by the
// operation that needs them; duplication uses the raw copy path instead.

// newStandardProfile creates the standard profile of a material together with
// its base group assignment.
func newStandardProfile(tx domain.Transaction, reg Registry, materialID, owner string) (CompositionProfile, error) {
	profile, err := tx.CreateProfile(CompositionProfile{
		MaterialID: materialID,
		Owner:      owner,
		IsStandard: true,
	})
	if err != nil {
		return CompositionProfile{}, err
	}
	if _, err := newAssignment(tx, reg, profile.ID, reg.DefaultGroupID, reg.DefaultComponentID, owner); err != nil {
		return CompositionProfile{}, err
	}
	return profile, nil
}

// newAssignment creates an assignment with the registry default distribution
// attached and one snapshot per default timestep. The base group starts with
// the default component at a share of one; other groups start empty.
func newAssignment(tx domain.Transaction, reg Registry, profileID, groupID, referenceID, owner string) (ComponentGroupAssignment, error) {
	base := groupID == reg.DefaultGroupID
	var components []string
	if base {
		referenceID = reg.DefaultComponentID
		components = []string{reg.DefaultComponentID}
	}
	assignment, err := tx.CreateAssignment(ComponentGroupAssignment{
		ProfileID:            profileID,
		GroupID:              groupID,
		ReferenceComponentID: referenceID,
		Owner:                owner,
		ComponentIDs:         components,
		DistributionIDs:      []string{reg.DefaultDistributionID},
	})
	if err != nil {
		return ComponentGroupAssignment{}, err
	}
	dist, ok := tx.FindDistribution(reg.DefaultDistributionID)
	if !ok {
		return ComponentGroupAssignment{}, domain.NotFound(EntityDistribution, reg.DefaultDistributionID)
	}
	for _, stepID := range dist.TimestepIDs {
		snapshot, err := tx.CreateSnapshot(CompositionSnapshot{AssignmentID: assignment.ID, TimestepID: stepID})
		if err != nil {
			return ComponentGroupAssignment{}, err
		}
		for _, cid := range components {
			share := 0.0
			if base {
				share = 1
			}
			if _, err := tx.CreateWeightFraction(WeightFraction{SnapshotID: snapshot.ID, ComponentID: cid, Average: share}); err != nil {
				return ComponentGroupAssignment{}, err
			}
		}
	}
	current, _ := tx.FindAssignment(assignment.ID)
	return current, nil
}

// snapshotCopy is a detached copy of one snapshot and its fractions.
type snapshotCopy struct {
	snapshot  CompositionSnapshot
	fractions []WeightFraction
}

// assignmentCopy is a detached copy of one assignment subtree.
type assignmentCopy struct {
	assignment ComponentGroupAssignment
	snapshots  []snapshotCopy
}

func (c assignmentCopy) fractionCount() int {
	n := 0
	for _, s := range c.snapshots {
		n += len(s.fractions)
	}
	return n
}

// readAssignmentTree collects an assignment subtree from a view, preserving
// snapshot and fraction order.
func readAssignmentTree(view reader, assignmentID string) (assignmentCopy, error) {
	a, ok := view.FindAssignment(assignmentID)
	if !ok {
		return assignmentCopy{}, domain.NotFound(EntityAssignment, assignmentID)
	}
	out := assignmentCopy{assignment: a}
	for _, sid := range a.SnapshotIDs {
		snapshot, ok := view.FindSnapshot(sid)
		if !ok {
			return assignmentCopy{}, domain.NotFound(EntitySnapshot, sid)
		}
		sc := snapshotCopy{snapshot: snapshot}
		for _, fid := range snapshot.FractionIDs {
			f, ok := view.FindWeightFraction(fid)
			if !ok {
				return assignmentCopy{}, domain.NotFound(EntityWeightFraction, fid)
			}
			sc.fractions = append(sc.fractions, f)
		}
		out.snapshots = append(out.snapshots, sc)
	}
	return out, nil
}

// rawCopyAssignment writes src under profileID without invoking any seeding:
// distributions, snapshots and fractions are copied verbatim, sources by reference.
func rawCopyAssignment(tx domain.Transaction, src assignmentCopy, profileID, owner string) (ComponentGroupAssignment, error) {
	created, err := tx.CreateAssignment(ComponentGroupAssignment{
		ProfileID:            profileID,
		GroupID:              src.assignment.GroupID,
		ReferenceComponentID: src.assignment.ReferenceComponentID,
		Owner:                owner,
		ComponentIDs:         src.assignment.ComponentIDs,
		DistributionIDs:      src.assignment.DistributionIDs,
		SourceIDs:            src.assignment.SourceIDs,
	})
	if err != nil {
		return ComponentGroupAssignment{}, err
	}
	for _, sc := range src.snapshots {
		snapshot, err := tx.CreateSnapshot(CompositionSnapshot{AssignmentID: created.ID, TimestepID: sc.snapshot.TimestepID})
		if err != nil {
			return ComponentGroupAssignment{}, err
		}
		for _, f := range sc.fractions {
			if _, err := tx.CreateWeightFraction(WeightFraction{
				SnapshotID:        snapshot.ID,
				ComponentID:       f.ComponentID,
				Average:           f.Average,
				StandardDeviation: f.StandardDeviation,
			}); err != nil {
				return ComponentGroupAssignment{}, err
			}
		}
	}
	current, _ := tx.FindAssignment(created.ID)
	return current, nil
}

// deleteSnapshotTree removes a snapshot and all of its fractions.
func deleteSnapshotTree(tx domain.Transaction, snapshotID string) error {
	snapshot, ok := tx.FindSnapshot(snapshotID)
	if !ok {
		return domain.NotFound(EntitySnapshot, snapshotID)
	}
	for _, fid := range snapshot.FractionIDs {
		if err := tx.DeleteWeightFraction(fid); err != nil {
			return err
		}
	}
	return tx.DeleteSnapshot(snapshotID)
}

// deleteAssignmentTree removes an assignment with its snapshots and fractions.
func deleteAssignmentTree(tx domain.Transaction, assignmentID string) error {
	a, ok := tx.FindAssignment(assignmentID)
	if !ok {
		return domain.NotFound(EntityAssignment, assignmentID)
	}
	for _, sid := range a.SnapshotIDs {
		if err := deleteSnapshotTree(tx, sid); err != nil {
			return err
		}
	}
	return tx.DeleteAssignment(assignmentID)
}

// deleteProfileTree removes a profile and every assignment subtree under it.
// Assignments are removed newest first so the base group goes last.
func deleteProfileTree(tx domain.Transaction, profileID string) error {
	profile, ok := tx.FindProfile(profileID)
	if !ok {
		return domain.NotFound(EntityProfile, profileID)
	}
	for i := len(profile.AssignmentIDs) - 1; i >= 0; i-- {
		if err := deleteAssignmentTree(tx, profile.AssignmentIDs[i]); err != nil {
			return err
		}
	}
	return tx.DeleteProfile(profileID)
}

// averageSnapshot returns the assignment's snapshot at the registry default timestep.
func averageSnapshot(view reader, reg Registry, a ComponentGroupAssignment) (CompositionSnapshot, bool) {
	for _, sid := range a.SnapshotIDs {
		s, ok := view.FindSnapshot(sid)
		if ok && s.TimestepID == reg.DefaultTimestepID {
			return s, true
		}
	}
	return CompositionSnapshot{}, false
}

// baseAssignment returns the profile's assignment for the registry default group.
func baseAssignment(view reader, reg Registry, profile CompositionProfile) (ComponentGroupAssignment, bool) {
	return assignmentForGroup(view, profile, reg.DefaultGroupID)
}

func assignmentForGroup(view reader, profile CompositionProfile, groupID string) (ComponentGroupAssignment, bool) {
	for _, aid := range profile.AssignmentIDs {
		a, ok := view.FindAssignment(aid)
		if ok && a.GroupID == groupID {
			return a, true
		}
	}
	return ComponentGroupAssignment{}, false
}
