package core

import (
	"context"
	"fmt"
	"strings"

	"materialcore/pkg/domain"
)

// ProfileOverrides carries optional descriptive fields for a profile.
type ProfileOverrides struct {
	DisplayName *string
	Description *string
}

func (o ProfileOverrides) apply(p *CompositionProfile) {
	if o.DisplayName != nil {
		p.DisplayName = *o.DisplayName
	}
	if o.Description != nil {
		p.Description = *o.Description
	}
}

func (s *Service) ownerOr(reg Registry, owner string) string {
	if strings.TrimSpace(owner) == "" {
		return reg.DefaultOwner
	}
	return owner
}

// CreateMaterial persists a material together with its standard profile and
// base group assignment.
func (s *Service) CreateMaterial(ctx context.Context, material Material) (Material, CompositionProfile, Result, error) {
	reg, err := s.GetOrInitialize(ctx)
	if err != nil {
		return Material{}, CompositionProfile{}, Result{}, err
	}
	var (
		created Material
		profile CompositionProfile
	)
	res, err := s.run(ctx, "create_material", func(tx domain.Transaction) (string, error) {
		if err := requireName(EntityMaterial, material.Name); err != nil {
			return "", err
		}
		material.Owner = s.ownerOr(reg, material.Owner)
		var err error
		created, err = tx.CreateMaterial(material)
		if err != nil {
			return "", err
		}
		profile, err = newStandardProfile(tx, reg, created.ID, created.Owner)
		if err != nil {
			return created.ID, err
		}
		created, _ = tx.FindMaterial(created.ID)
		profile, _ = tx.FindProfile(profile.ID)
		return created.ID, nil
	})
	if err != nil {
		return Material{}, CompositionProfile{}, res, err
	}
	return created, profile, res, nil
}

// DeleteMaterial removes a material and every profile subtree it owns.
func (s *Service) DeleteMaterial(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_material", func(tx domain.Transaction) (string, error) {
		material, ok := tx.FindMaterial(id)
		if !ok {
			return id, domain.NotFound(EntityMaterial, id)
		}
		for _, pid := range material.ProfileIDs {
			if err := deleteProfileTree(tx, pid); err != nil {
				return id, err
			}
		}
		return id, tx.DeleteMaterial(id)
	})
}

// CreateStandardProfile creates the standard profile for a material that has none.
func (s *Service) CreateStandardProfile(ctx context.Context, materialID, owner string) (CompositionProfile, Result, error) {
	reg, err := s.GetOrInitialize(ctx)
	if err != nil {
		return CompositionProfile{}, Result{}, err
	}
	var created CompositionProfile
	res, err := s.run(ctx, "create_standard_profile", func(tx domain.Transaction) (string, error) {
		material, ok := tx.FindMaterial(materialID)
		if !ok {
			return "", domain.NotFound(EntityMaterial, materialID)
		}
		for _, pid := range material.ProfileIDs {
			if p, ok := tx.FindProfile(pid); ok && p.IsStandard {
				return pid, &domain.Error{Kind: domain.KindDuplicateStandardProfile, Entity: EntityMaterial, ID: materialID}
			}
		}
		var err error
		created, err = newStandardProfile(tx, reg, materialID, s.ownerOr(reg, owner))
		if err != nil {
			return "", err
		}
		created, _ = tx.FindProfile(created.ID)
		return created.ID, nil
	})
	return created, res, err
}

// UpdateProfile applies descriptive overrides to a profile.
func (s *Service) UpdateProfile(ctx context.Context, id string, overrides ProfileOverrides) (CompositionProfile, Result, error) {
	var updated CompositionProfile
	res, err := s.run(ctx, "update_profile", func(tx domain.Transaction) (string, error) {
		var err error
		updated, err = tx.UpdateProfile(id, func(p *CompositionProfile) error {
			overrides.apply(p)
			return nil
		})
		return id, err
	})
	return updated, res, err
}

// DeleteProfile removes a non-standard profile and its subtree.
func (s *Service) DeleteProfile(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_profile", func(tx domain.Transaction) (string, error) {
		profile, ok := tx.FindProfile(id)
		if !ok {
			return id, domain.NotFound(EntityProfile, id)
		}
		if profile.IsStandard {
			return id, &domain.Error{Kind: domain.KindCannotRemoveStandardProfile, Entity: EntityProfile, ID: id}
		}
		return id, deleteProfileTree(tx, id)
	})
}

// AddComponentGroup assigns a component group to a profile. The reference
// component must already be assigned to the profile's base group.
func (s *Service) AddComponentGroup(ctx context.Context, profileID, groupID, referenceComponentID string) (ComponentGroupAssignment, Result, error) {
	reg, err := s.GetOrInitialize(ctx)
	if err != nil {
		return ComponentGroupAssignment{}, Result{}, err
	}
	var created ComponentGroupAssignment
	res, err := s.run(ctx, "add_component_group", func(tx domain.Transaction) (string, error) {
		profile, ok := tx.FindProfile(profileID)
		if !ok {
			return "", domain.NotFound(EntityProfile, profileID)
		}
		if _, ok := tx.FindComponentGroup(groupID); !ok {
			return "", domain.NotFound(EntityComponentGroup, groupID)
		}
		if existing, ok := assignmentForGroup(tx, profile, groupID); ok {
			return existing.ID, &domain.Error{Kind: domain.KindDuplicateGroupAssignment, Entity: EntityComponentGroup, ID: groupID, Field: "group"}
		}
		base, ok := baseAssignment(tx, reg, profile)
		if !ok || !base.HasComponent(referenceComponentID) {
			return "", &domain.Error{
				Kind:   domain.KindInvalidReferenceComponent,
				Entity: EntityComponent,
				ID:     referenceComponentID,
				Field:  "reference_component",
				Detail: "not assigned to the base group of this profile",
			}
		}
		var err error
		created, err = newAssignment(tx, reg, profileID, groupID, referenceComponentID, profile.Owner)
		return created.ID, err
	})
	return created, res, err
}

// RemoveComponentGroup removes a non-base group assignment with its snapshots and fractions.
func (s *Service) RemoveComponentGroup(ctx context.Context, profileID, groupID string) (Result, error) {
	reg, err := s.GetOrInitialize(ctx)
	if err != nil {
		return Result{}, err
	}
	return s.run(ctx, "remove_component_group", func(tx domain.Transaction) (string, error) {
		if groupID == reg.DefaultGroupID {
			return "", &domain.Error{Kind: domain.KindCannotRemoveBaseGroup, Entity: EntityComponentGroup, ID: groupID, Field: "group"}
		}
		profile, ok := tx.FindProfile(profileID)
		if !ok {
			return "", domain.NotFound(EntityProfile, profileID)
		}
		assignment, ok := assignmentForGroup(tx, profile, groupID)
		if !ok {
			return "", &domain.Error{Kind: domain.KindNotFound, Entity: EntityAssignment, Field: "group", Detail: fmt.Sprintf("group %s not assigned to profile %s", groupID, profileID)}
		}
		return assignment.ID, deleteAssignmentTree(tx, assignment.ID)
	})
}

// Profile returns a profile by id.
func (s *Service) Profile(ctx context.Context, id string) (CompositionProfile, error) {
	var out CompositionProfile
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		p, ok := view.FindProfile(id)
		if !ok {
			return domain.NotFound(EntityProfile, id)
		}
		out = p
		return nil
	})
	return out, err
}
