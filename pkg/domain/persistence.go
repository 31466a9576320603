package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Implementations enforce the uniqueness
// invariants and maintain parent child-id lists.
type Transaction interface {
	Snapshot() TransactionView

	Registry() (Registry, bool)
	// InitRegistry stores r unless a registry already exists, returning the stored value.
	InitRegistry(r Registry) (Registry, error)

	CreateMaterial(Material) (Material, error)
	UpdateMaterial(id string, mutator func(*Material) error) (Material, error)
	DeleteMaterial(id string) error
	CreateComponent(Component) (Component, error)
	CreateComponentGroup(ComponentGroup) (ComponentGroup, error)
	CreateDistribution(TemporalDistribution) (TemporalDistribution, error)
	CreateTimestep(Timestep) (Timestep, error)
	CreateSource(Source) (Source, error)

	CreateProfile(CompositionProfile) (CompositionProfile, error)
	UpdateProfile(id string, mutator func(*CompositionProfile) error) (CompositionProfile, error)
	DeleteProfile(id string) error
	CreateAssignment(ComponentGroupAssignment) (ComponentGroupAssignment, error)
	UpdateAssignment(id string, mutator func(*ComponentGroupAssignment) error) (ComponentGroupAssignment, error)
	DeleteAssignment(id string) error
	CreateSnapshot(CompositionSnapshot) (CompositionSnapshot, error)
	DeleteSnapshot(id string) error
	CreateWeightFraction(WeightFraction) (WeightFraction, error)
	UpdateWeightFraction(id string, mutator func(*WeightFraction) error) (WeightFraction, error)
	DeleteWeightFraction(id string) error

	FindMaterial(id string) (Material, bool)
	FindComponent(id string) (Component, bool)
	FindComponentGroup(id string) (ComponentGroup, bool)
	FindDistribution(id string) (TemporalDistribution, bool)
	FindTimestep(id string) (Timestep, bool)
	FindSource(id string) (Source, bool)
	FindProfile(id string) (CompositionProfile, bool)
	FindAssignment(id string) (ComponentGroupAssignment, bool)
	FindSnapshot(id string) (CompositionSnapshot, bool)
	FindWeightFraction(id string) (WeightFraction, bool)
}

// TransactionView provides read-only access to snapshot data for rules and readers.
type TransactionView interface {
	Registry() (Registry, bool)
	ListMaterials() []Material
	ListComponents() []Component
	ListComponentGroups() []ComponentGroup
	ListDistributions() []TemporalDistribution
	ListProfiles() []CompositionProfile
	ListAssignments() []ComponentGroupAssignment
	FindMaterial(id string) (Material, bool)
	FindComponent(id string) (Component, bool)
	FindComponentGroup(id string) (ComponentGroup, bool)
	FindDistribution(id string) (TemporalDistribution, bool)
	FindTimestep(id string) (Timestep, bool)
	FindSource(id string) (Source, bool)
	FindProfile(id string) (CompositionProfile, bool)
	FindAssignment(id string) (ComponentGroupAssignment, bool)
	FindSnapshot(id string) (CompositionSnapshot, bool)
	FindWeightFraction(id string) (WeightFraction, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	RulesEngine() *RulesEngine
}
