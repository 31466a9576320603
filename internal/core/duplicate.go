package core

import (
	"context"
	"fmt"

	"materialcore/pkg/domain"
)

// Duplicate deep-copies a profile under a new owner as a non-standard profile
// of the same material. The source is read from a point-in-time view without
// holding the write lock; the copy is written and verified in one transaction
// so a partial profile is never visible. A blank owner falls back to the
// registry default owner.
func (s *Service) Duplicate(ctx context.Context, sourceProfileID, newOwner string, overrides ProfileOverrides) (CompositionProfile, Result, error) {
	reg, err := s.GetOrInitialize(ctx)
	if err != nil {
		return CompositionProfile{}, Result{}, err
	}
	var created CompositionProfile
	res, err := s.instrument(ctx, "duplicate_profile", func(ctx context.Context) (string, Result, error) {
		source, trees, err := s.readProfile(ctx, sourceProfileID)
		if err != nil {
			return sourceProfileID, Result{}, err
		}
		owner := s.ownerOr(reg, newOwner)
		res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if _, ok := tx.FindMaterial(source.MaterialID); !ok {
				return domain.NotFound(EntityMaterial, source.MaterialID)
			}
			profile := CompositionProfile{
				MaterialID:  source.MaterialID,
				Owner:       owner,
				DisplayName: source.DisplayName,
				Description: source.Description,
			}
			overrides.apply(&profile)
			p, err := tx.CreateProfile(profile)
			if err != nil {
				return err
			}
			for _, tree := range trees {
				if _, err := rawCopyAssignment(tx, tree, p.ID, owner); err != nil {
					return fmt.Errorf("copy assignment %s: %w", tree.assignment.ID, err)
				}
			}
			if err := verifyCopy(tx, p.ID, trees); err != nil {
				return err
			}
			created, _ = tx.FindProfile(p.ID)
			return nil
		})
		return created.ID, res, err
	})
	if err != nil {
		return CompositionProfile{}, res, err
	}
	return created, res, nil
}

func (s *Service) readProfile(ctx context.Context, profileID string) (CompositionProfile, []assignmentCopy, error) {
	var (
		profile CompositionProfile
		trees   []assignmentCopy
	)
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		p, ok := view.FindProfile(profileID)
		if !ok {
			return domain.NotFound(EntityProfile, profileID)
		}
		profile = p
		for _, aid := range p.AssignmentIDs {
			tree, err := readAssignmentTree(view, aid)
			if err != nil {
				return err
			}
			trees = append(trees, tree)
		}
		return nil
	})
	return profile, trees, err
}

// verifyCopy checks that the written profile mirrors the source subtree.
func verifyCopy(tx domain.Transaction, profileID string, trees []assignmentCopy) error {
	p, ok := tx.FindProfile(profileID)
	if !ok {
		return domain.NotFound(EntityProfile, profileID)
	}
	if len(p.AssignmentIDs) != len(trees) {
		return fmt.Errorf("duplicate profile %s: %d assignments copied, want %d", profileID, len(p.AssignmentIDs), len(trees))
	}
	for i, aid := range p.AssignmentIDs {
		copied, err := readAssignmentTree(tx, aid)
		if err != nil {
			return err
		}
		want := trees[i]
		if copied.assignment.GroupID != want.assignment.GroupID || len(copied.snapshots) != len(want.snapshots) || copied.fractionCount() != want.fractionCount() {
			return fmt.Errorf("duplicate profile %s: assignment %s does not mirror %s", profileID, aid, want.assignment.ID)
		}
	}
	return nil
}
