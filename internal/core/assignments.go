package core

import (
	"context"

	"materialcore/pkg/domain"
)

func findAssignment(tx domain.Transaction, id string) (ComponentGroupAssignment, error) {
	a, ok := tx.FindAssignment(id)
	if !ok {
		return ComponentGroupAssignment{}, domain.NotFound(EntityAssignment, id)
	}
	return a, nil
}

// AddTemporalDistribution attaches a distribution to an assignment and creates
// one snapshot per timestep, seeded with the shares of the average snapshot.
// Attaching an already attached distribution is a no-op.
func (s *Service) AddTemporalDistribution(ctx context.Context, assignmentID, distributionID string) (Result, error) {
	reg, err := s.GetOrInitialize(ctx)
	if err != nil {
		return Result{}, err
	}
	return s.run(ctx, "add_temporal_distribution", func(tx domain.Transaction) (string, error) {
		a, err := findAssignment(tx, assignmentID)
		if err != nil {
			return assignmentID, err
		}
		dist, ok := tx.FindDistribution(distributionID)
		if !ok {
			return assignmentID, domain.NotFound(EntityDistribution, distributionID)
		}
		if a.HasDistribution(distributionID) {
			return assignmentID, nil
		}
		var seed []WeightFraction
		if avg, ok := averageSnapshot(tx, reg, a); ok {
			for _, fid := range avg.FractionIDs {
				if f, ok := tx.FindWeightFraction(fid); ok {
					seed = append(seed, f)
				}
			}
		}
		existing := make(map[string]struct{}, len(a.SnapshotIDs))
		for _, sid := range a.SnapshotIDs {
			if snap, ok := tx.FindSnapshot(sid); ok {
				existing[snap.TimestepID] = struct{}{}
			}
		}
		if _, err := tx.UpdateAssignment(assignmentID, func(a *ComponentGroupAssignment) error {
			a.DistributionIDs = append(a.DistributionIDs, distributionID)
			return nil
		}); err != nil {
			return assignmentID, err
		}
		for _, stepID := range dist.TimestepIDs {
			if _, ok := existing[stepID]; ok {
				continue
			}
			snapshot, err := tx.CreateSnapshot(CompositionSnapshot{AssignmentID: assignmentID, TimestepID: stepID})
			if err != nil {
				return assignmentID, err
			}
			for _, f := range seed {
				if _, err := tx.CreateWeightFraction(WeightFraction{
					SnapshotID:        snapshot.ID,
					ComponentID:       f.ComponentID,
					Average:           f.Average,
					StandardDeviation: f.StandardDeviation,
				}); err != nil {
					return assignmentID, err
				}
			}
		}
		return assignmentID, nil
	})
}

// RemoveTemporalDistribution detaches a distribution and deletes the snapshots
// keyed by its timesteps. The registry default distribution cannot be removed.
// Detaching a distribution that is not attached is a no-op.
func (s *Service) RemoveTemporalDistribution(ctx context.Context, assignmentID, distributionID string) (Result, error) {
	reg, err := s.GetOrInitialize(ctx)
	if err != nil {
		return Result{}, err
	}
	return s.run(ctx, "remove_temporal_distribution", func(tx domain.Transaction) (string, error) {
		if distributionID == reg.DefaultDistributionID {
			return assignmentID, &domain.Error{Kind: domain.KindCannotRemoveDefaultDistribution, Entity: EntityDistribution, ID: distributionID, Field: "distribution"}
		}
		a, err := findAssignment(tx, assignmentID)
		if err != nil {
			return assignmentID, err
		}
		if !a.HasDistribution(distributionID) {
			return assignmentID, nil
		}
		for _, sid := range a.SnapshotIDs {
			snap, ok := tx.FindSnapshot(sid)
			if !ok {
				continue
			}
			step, ok := tx.FindTimestep(snap.TimestepID)
			if !ok || step.DistributionID != distributionID {
				continue
			}
			if err := deleteSnapshotTree(tx, sid); err != nil {
				return assignmentID, err
			}
		}
		_, err = tx.UpdateAssignment(assignmentID, func(a *ComponentGroupAssignment) error {
			kept := a.DistributionIDs[:0:0]
			for _, id := range a.DistributionIDs {
				if id != distributionID {
					kept = append(kept, id)
				}
			}
			a.DistributionIDs = kept
			return nil
		})
		return assignmentID, err
	})
}

// AddComponent assigns a component and appends a zero share to every snapshot
// of the assignment. A zero share never changes a snapshot's sum.
func (s *Service) AddComponent(ctx context.Context, assignmentID, componentID string) (Result, error) {
	return s.run(ctx, "add_component", func(tx domain.Transaction) (string, error) {
		a, err := findAssignment(tx, assignmentID)
		if err != nil {
			return assignmentID, err
		}
		if _, ok := tx.FindComponent(componentID); !ok {
			return assignmentID, domain.NotFound(EntityComponent, componentID)
		}
		if a.HasComponent(componentID) {
			return assignmentID, nil
		}
		if _, err := tx.UpdateAssignment(assignmentID, func(a *ComponentGroupAssignment) error {
			a.ComponentIDs = append(a.ComponentIDs, componentID)
			return nil
		}); err != nil {
			return assignmentID, err
		}
		for _, sid := range a.SnapshotIDs {
			if _, err := tx.CreateWeightFraction(WeightFraction{SnapshotID: sid, ComponentID: componentID}); err != nil {
				return assignmentID, err
			}
		}
		return assignmentID, nil
	})
}

// RemoveComponent unassigns a component and deletes its share from every
// snapshot. Snapshots left empty are deleted except the average snapshot. A
// base group component still referenced by another group cannot be removed.
func (s *Service) RemoveComponent(ctx context.Context, assignmentID, componentID string) (Result, error) {
	reg, err := s.GetOrInitialize(ctx)
	if err != nil {
		return Result{}, err
	}
	return s.run(ctx, "remove_component", func(tx domain.Transaction) (string, error) {
		a, err := findAssignment(tx, assignmentID)
		if err != nil {
			return assignmentID, err
		}
		if !a.HasComponent(componentID) {
			return assignmentID, &domain.Error{Kind: domain.KindNotFound, Entity: EntityComponent, ID: componentID, Detail: "component not assigned"}
		}
		if a.GroupID == reg.DefaultGroupID {
			profile, ok := tx.FindProfile(a.ProfileID)
			if !ok {
				return assignmentID, domain.NotFound(EntityProfile, a.ProfileID)
			}
			for _, aid := range profile.AssignmentIDs {
				other, ok := tx.FindAssignment(aid)
				if ok && aid != a.ID && other.ReferenceComponentID == componentID {
					return assignmentID, &domain.Error{
						Kind:   domain.KindInvalidReferenceComponent,
						Entity: EntityComponent,
						ID:     componentID,
						Field:  "reference_component",
						Detail: "referenced by assignment " + other.ID,
					}
				}
			}
		}
		for _, sid := range a.SnapshotIDs {
			snap, ok := tx.FindSnapshot(sid)
			if !ok {
				continue
			}
			for _, fid := range snap.FractionIDs {
				f, ok := tx.FindWeightFraction(fid)
				if !ok || f.ComponentID != componentID {
					continue
				}
				if err := tx.DeleteWeightFraction(fid); err != nil {
					return assignmentID, err
				}
			}
			snap, _ = tx.FindSnapshot(sid)
			if len(snap.FractionIDs) == 0 && snap.TimestepID != reg.DefaultTimestepID {
				if err := tx.DeleteSnapshot(sid); err != nil {
					return assignmentID, err
				}
			}
		}
		_, err = tx.UpdateAssignment(assignmentID, func(a *ComponentGroupAssignment) error {
			kept := a.ComponentIDs[:0:0]
			for _, id := range a.ComponentIDs {
				if id != componentID {
					kept = append(kept, id)
				}
			}
			a.ComponentIDs = kept
			return nil
		})
		return assignmentID, err
	})
}

// LinkSource cites a bibliography source on an assignment.
func (s *Service) LinkSource(ctx context.Context, assignmentID, sourceID string) (Result, error) {
	return s.run(ctx, "link_source", func(tx domain.Transaction) (string, error) {
		a, err := findAssignment(tx, assignmentID)
		if err != nil {
			return assignmentID, err
		}
		if _, ok := tx.FindSource(sourceID); !ok {
			return assignmentID, domain.NotFound(EntitySource, sourceID)
		}
		for _, id := range a.SourceIDs {
			if id == sourceID {
				return assignmentID, nil
			}
		}
		_, err = tx.UpdateAssignment(assignmentID, func(a *ComponentGroupAssignment) error {
			a.SourceIDs = append(a.SourceIDs, sourceID)
			return nil
		})
		return assignmentID, err
	})
}

// UnlinkSource removes a citation from an assignment.
func (s *Service) UnlinkSource(ctx context.Context, assignmentID, sourceID string) (Result, error) {
	return s.run(ctx, "unlink_source", func(tx domain.Transaction) (string, error) {
		if _, err := findAssignment(tx, assignmentID); err != nil {
			return assignmentID, err
		}
		_, err := tx.UpdateAssignment(assignmentID, func(a *ComponentGroupAssignment) error {
			kept := a.SourceIDs[:0:0]
			for _, id := range a.SourceIDs {
				if id != sourceID {
					kept = append(kept, id)
				}
			}
			a.SourceIDs = kept
			return nil
		})
		return assignmentID, err
	})
}

// Assignment returns an assignment by id.
func (s *Service) Assignment(ctx context.Context, id string) (ComponentGroupAssignment, error) {
	var out ComponentGroupAssignment
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		a, ok := view.FindAssignment(id)
		if !ok {
			return domain.NotFound(EntityAssignment, id)
		}
		out = a
		return nil
	})
	return out, err
}

// AssignmentForGroup returns the profile's assignment of groupID.
func (s *Service) AssignmentForGroup(ctx context.Context, profileID, groupID string) (ComponentGroupAssignment, error) {
	var out ComponentGroupAssignment
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		p, ok := view.FindProfile(profileID)
		if !ok {
			return domain.NotFound(EntityProfile, profileID)
		}
		a, ok := assignmentForGroup(view, p, groupID)
		if !ok {
			return &domain.Error{Kind: domain.KindNotFound, Entity: EntityAssignment, Field: "group", Detail: "group " + groupID + " not assigned"}
		}
		out = a
		return nil
	})
	return out, err
}

// Snapshots returns the assignment's snapshots with their fractions keyed by component id.
func (s *Service) Snapshots(ctx context.Context, assignmentID string) ([]SnapshotShares, error) {
	var out []SnapshotShares
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		tree, err := readAssignmentTree(view, assignmentID)
		if err != nil {
			return err
		}
		for _, sc := range tree.snapshots {
			shares := make(map[string]WeightFraction, len(sc.fractions))
			for _, f := range sc.fractions {
				shares[f.ComponentID] = f
			}
			out = append(out, SnapshotShares{Snapshot: sc.snapshot, Shares: shares})
		}
		return nil
	})
	return out, err
}

// SnapshotShares pairs a snapshot with its fractions keyed by component id.
type SnapshotShares struct {
	Snapshot CompositionSnapshot
	Shares   map[string]WeightFraction
}
