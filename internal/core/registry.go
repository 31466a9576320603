package core

import (
	"context"

	"materialcore/pkg/domain"
)

// Names of the records created on first registry access.
const (
	DefaultGroupName        = "Total Material"
	DefaultComponentName    = "Fresh Matter"
	DefaultDistributionName = "Average"
	DefaultTimestepName     = "Average"
)

// GetOrInitialize returns the registry of defaults, creating the default
// group, component, distribution and timestep on first use. Concurrent callers
// in the process share one initialization; the store keeps an existing
// registry when another writer got there first.
func (s *Service) GetOrInitialize(ctx context.Context) (Registry, error) {
	if reg, ok := s.cachedRegistry(); ok {
		return reg, nil
	}
	v, err, _ := s.registryOnce.Do("registry", func() (any, error) {
		if reg, ok := s.cachedRegistry(); ok {
			return reg, nil
		}
		// The result is shared with every waiter; detach it from this caller.
		reg, err := s.initRegistry(context.WithoutCancel(ctx))
		if err != nil {
			return Registry{}, err
		}
		s.registryMu.Lock()
		s.registry = &reg
		s.registryMu.Unlock()
		return reg, nil
	})
	if err != nil {
		return Registry{}, err
	}
	return v.(Registry), nil
}

func (s *Service) cachedRegistry() (Registry, bool) {
	s.registryMu.RLock()
	defer s.registryMu.RUnlock()
	if s.registry == nil {
		return Registry{}, false
	}
	return *s.registry, true
}

func (s *Service) initRegistry(ctx context.Context) (Registry, error) {
	var existing Registry
	var found bool
	if err := s.store.View(ctx, func(view domain.TransactionView) error {
		existing, found = view.Registry()
		return nil
	}); err != nil {
		return Registry{}, err
	}
	if found {
		return existing, nil
	}

	owner, err := s.owners(ctx, s.defaultOwner)
	if err != nil || owner == "" {
		detail := "default owner cannot be resolved"
		if err != nil {
			detail += ": " + err.Error()
		}
		s.logger.Error("registry bootstrap failed", "owner", s.defaultOwner, "error", detail)
		return Registry{}, &domain.Error{Kind: domain.KindBootstrap, Entity: EntityRegistry, Field: "default_owner", Detail: detail}
	}

	var reg Registry
	_, err = s.run(ctx, "initialize_registry", func(tx domain.Transaction) (string, error) {
		if current, ok := tx.Registry(); ok {
			reg = current
			return "", nil
		}
		group, err := tx.CreateComponentGroup(ComponentGroup{Name: DefaultGroupName, Owner: owner})
		if err != nil {
			return "", err
		}
		component, err := tx.CreateComponent(Component{Name: DefaultComponentName, Owner: owner})
		if err != nil {
			return "", err
		}
		dist, err := tx.CreateDistribution(TemporalDistribution{Name: DefaultDistributionName, Owner: owner})
		if err != nil {
			return "", err
		}
		step, err := tx.CreateTimestep(Timestep{Name: DefaultTimestepName, DistributionID: dist.ID})
		if err != nil {
			return "", err
		}
		reg, err = tx.InitRegistry(Registry{
			DefaultOwner:          owner,
			DefaultGroupID:        group.ID,
			DefaultComponentID:    component.ID,
			DefaultDistributionID: dist.ID,
			DefaultTimestepID:     step.ID,
		})
		return "", err
	})
	if err != nil {
		return Registry{}, err
	}
	return reg, nil
}
