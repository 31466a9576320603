package core

import (
	"context"
	"strings"

	"materialcore/pkg/domain"
)

func requireName(entity EntityType, name string) error {
	if strings.TrimSpace(name) == "" {
		return &domain.Error{Kind: domain.KindOutOfRange, Entity: entity, Field: "name", Detail: "name is required"}
	}
	return nil
}

// CreateComponent persists a component reference record.
func (s *Service) CreateComponent(ctx context.Context, name, owner string) (Component, Result, error) {
	var created Component
	res, err := s.run(ctx, "create_component", func(tx domain.Transaction) (string, error) {
		if err := requireName(EntityComponent, name); err != nil {
			return "", err
		}
		var err error
		created, err = tx.CreateComponent(Component{Name: name, Owner: owner})
		return created.ID, err
	})
	return created, res, err
}

// CreateComponentGroup persists a named component group.
func (s *Service) CreateComponentGroup(ctx context.Context, name, owner string) (ComponentGroup, Result, error) {
	var created ComponentGroup
	res, err := s.run(ctx, "create_component_group", func(tx domain.Transaction) (string, error) {
		if err := requireName(EntityComponentGroup, name); err != nil {
			return "", err
		}
		var err error
		created, err = tx.CreateComponentGroup(ComponentGroup{Name: name, Owner: owner})
		return created.ID, err
	})
	return created, res, err
}

// CreateDistribution persists a temporal distribution with one timestep per
// name, in the given order.
func (s *Service) CreateDistribution(ctx context.Context, name, owner string, timesteps []string) (TemporalDistribution, Result, error) {
	var created TemporalDistribution
	res, err := s.run(ctx, "create_distribution", func(tx domain.Transaction) (string, error) {
		if err := requireName(EntityDistribution, name); err != nil {
			return "", err
		}
		dist, err := tx.CreateDistribution(TemporalDistribution{Name: name, Owner: owner})
		if err != nil {
			return "", err
		}
		for i, step := range timesteps {
			if err := requireName(EntityTimestep, step); err != nil {
				return dist.ID, err
			}
			if _, err := tx.CreateTimestep(Timestep{Name: step, DistributionID: dist.ID, Order: i}); err != nil {
				return dist.ID, err
			}
		}
		created, _ = tx.FindDistribution(dist.ID)
		return dist.ID, nil
	})
	return created, res, err
}

// CreateSource persists a bibliography reference that assignments can cite.
func (s *Service) CreateSource(ctx context.Context, title, owner string) (Source, Result, error) {
	var created Source
	res, err := s.run(ctx, "create_source", func(tx domain.Transaction) (string, error) {
		if strings.TrimSpace(title) == "" {
			return "", &domain.Error{Kind: domain.KindOutOfRange, Entity: EntitySource, Field: "title", Detail: "title is required"}
		}
		var err error
		created, err = tx.CreateSource(Source{Title: title, Owner: owner})
		return created.ID, err
	})
	return created, res, err
}

// View runs fn against a consistent read-only view of the store.
func (s *Service) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	return s.store.View(ctx, fn)
}
