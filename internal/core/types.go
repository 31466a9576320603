package core

import (
	"materialcore/internal/infra/persistence/memory"
	"materialcore/pkg/domain"
)

type (
	EntityType               = domain.EntityType
	Severity                 = domain.Severity
	Base                     = domain.Base
	Registry                 = domain.Registry
	Material                 = domain.Material
	MaterialType             = domain.MaterialType
	Component                = domain.Component
	ComponentGroup           = domain.ComponentGroup
	TemporalDistribution     = domain.TemporalDistribution
	Timestep                 = domain.Timestep
	Source                   = domain.Source
	CompositionProfile       = domain.CompositionProfile
	ComponentGroupAssignment = domain.ComponentGroupAssignment
	CompositionSnapshot      = domain.CompositionSnapshot
	WeightFraction           = domain.WeightFraction
	Change                   = domain.Change
	Action                   = domain.Action
	Violation                = domain.Violation
	Result                   = domain.Result
	RuleViolationError       = domain.RuleViolationError
	Rule                     = domain.Rule
	RuleView                 = domain.RuleView
	RulesEngine              = domain.RulesEngine
	MemoryStore              = memory.Store
)

const (
	EntityRegistry       = domain.EntityRegistry
	EntityMaterial       = domain.EntityMaterial
	EntityComponent      = domain.EntityComponent
	EntityComponentGroup = domain.EntityComponentGroup
	EntityDistribution   = domain.EntityDistribution
	EntityTimestep       = domain.EntityTimestep
	EntitySource         = domain.EntitySource
	EntityProfile        = domain.EntityProfile
	EntityAssignment     = domain.EntityAssignment
	EntitySnapshot       = domain.EntitySnapshot
	EntityWeightFraction = domain.EntityWeightFraction
)

const (
	MaterialTypeMaterial = domain.MaterialTypeMaterial
	MaterialTypeSample   = domain.MaterialTypeSample
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// NewRulesEngine constructs an empty rules engine.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }

// NewMemoryStore constructs the in-memory transactional store.
func NewMemoryStore(engine *RulesEngine) *MemoryStore { return memory.NewStore(engine) }
