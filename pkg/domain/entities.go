// Package domain defines the persistent entities, error values, and rule
// evaluation primitives of the material composition engine.
package domain

import "time"

// EntityType identifies the type of record stored in the catalog.
type EntityType string

// Supported entity type identifiers used in Change records and persistence relations.
const (
	// EntityRegistry identifies the singleton registry of defaults.
	EntityRegistry EntityType = "registry"
	// EntityMaterial identifies a material or sample record.
	EntityMaterial EntityType = "material"
	// EntityComponent identifies a material component reference record.
	EntityComponent EntityType = "component"
	// EntityComponentGroup identifies a named component group.
	EntityComponentGroup EntityType = "component_group"
	// EntityDistribution identifies a temporal distribution.
	EntityDistribution EntityType = "temporal_distribution"
	// EntityTimestep identifies a single point of a temporal distribution.
	EntityTimestep EntityType = "timestep"
	// EntitySource identifies a bibliography source referenced by assignments.
	EntitySource EntityType = "source"
	// EntityProfile identifies a composition profile (customization).
	EntityProfile EntityType = "composition_profile"
	// EntityAssignment identifies a component group assignment.
	EntityAssignment EntityType = "group_assignment"
	// EntitySnapshot identifies a composition snapshot.
	EntitySnapshot EntityType = "composition_snapshot"
	// EntityWeightFraction identifies a weight fraction share.
	EntityWeightFraction EntityType = "weight_fraction"
)

// MaterialType distinguishes raw materials from samples.
type MaterialType string

// Canonical material types.
const (
	MaterialTypeMaterial MaterialType = "material"
	MaterialTypeSample   MaterialType = "sample"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// BalanceTolerance is the maximum distance from 1.0 a snapshot's summed averages may have.
const BalanceTolerance = 1e-7

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Registry holds the process-wide defaults every other record falls back to.
type Registry struct {
	DefaultOwner          string    `json:"default_owner"`
	DefaultGroupID        string    `json:"default_group_id"`
	DefaultComponentID    string    `json:"default_component_id"`
	DefaultDistributionID string    `json:"default_distribution_id"`
	DefaultTimestepID     string    `json:"default_timestep_id"`
	CreatedAt             time.Time `json:"created_at"`
}

// IsZero reports whether the registry has not been initialized.
func (r Registry) IsZero() bool {
	return r.DefaultGroupID == "" && r.DefaultComponentID == "" && r.DefaultDistributionID == ""
}

// Material is the root object whose composition is modeled.
type Material struct {
	Base
	Name       string       `json:"name"`
	Type       MaterialType `json:"type"`
	Owner      string       `json:"owner"`
	ProfileIDs []string     `json:"profile_ids"`
}

// Component is a named constituent a material can decompose into.
type Component struct {
	Base
	Name  string `json:"name"`
	Owner string `json:"owner"`
}

// ComponentGroup names a partition of a composition such as "Carbon Fractions".
type ComponentGroup struct {
	Base
	Name  string `json:"name"`
	Owner string `json:"owner"`
}

// TemporalDistribution is a named ordered sequence of timesteps.
type TemporalDistribution struct {
	Base
	Name        string   `json:"name"`
	Owner       string   `json:"owner"`
	TimestepIDs []string `json:"timestep_ids"`
}

// Timestep is one point of a temporal distribution.
type Timestep struct {
	Base
	Name           string `json:"name"`
	DistributionID string `json:"distribution_id"`
	Order          int    `json:"order"`
}

// Source is a bibliography entry linked to assignments by reference.
type Source struct {
	Base
	Title string `json:"title"`
	Owner string `json:"owner"`
}

// CompositionProfile is one customization of a material's composition.
type CompositionProfile struct {
	Base
	MaterialID    string   `json:"material_id"`
	Owner         string   `json:"owner"`
	IsStandard    bool     `json:"is_standard"`
	DisplayName   string   `json:"display_name"`
	Description   string   `json:"description"`
	AssignmentIDs []string `json:"assignment_ids"`
}

// ComponentGroupAssignment binds a component group to a profile.
type ComponentGroupAssignment struct {
	Base
	ProfileID            string   `json:"profile_id"`
	GroupID              string   `json:"group_id"`
	ReferenceComponentID string   `json:"reference_component_id"`
	Owner                string   `json:"owner"`
	ComponentIDs         []string `json:"component_ids"`
	DistributionIDs      []string `json:"distribution_ids"`
	SnapshotIDs          []string `json:"snapshot_ids"`
	SourceIDs            []string `json:"source_ids"`
}

// HasComponent reports whether the component is assigned.
func (a ComponentGroupAssignment) HasComponent(id string) bool {
	return containsID(a.ComponentIDs, id)
}

// HasDistribution reports whether the distribution is attached.
func (a ComponentGroupAssignment) HasDistribution(id string) bool {
	return containsID(a.DistributionIDs, id)
}

// CompositionSnapshot is the set of shares of one assignment at one timestep.
type CompositionSnapshot struct {
	Base
	AssignmentID string   `json:"assignment_id"`
	TimestepID   string   `json:"timestep_id"`
	FractionIDs  []string `json:"fraction_ids"`
	// Version increases whenever the snapshot's fractions change.
	Version int64 `json:"version"`
}

// WeightFraction is one component's share inside a snapshot.
type WeightFraction struct {
	Base
	SnapshotID        string  `json:"snapshot_id"`
	ComponentID       string  `json:"component_id"`
	Average           float64 `json:"average"`
	StandardDeviation float64 `json:"standard_deviation"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in the audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
	// Kind optionally maps the violation onto a caller-facing error kind.
	Kind ErrorKind
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Rule + ": " + v.Message
		}
	}
	return "transaction blocked by rules"
}

// Unwrap exposes the first blocking violation that carries an error kind so
// callers can match it with errors.Is.
func (e RuleViolationError) Unwrap() error {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock && v.Kind != "" {
			field := ""
			if v.Kind == KindUnbalancedComposition {
				field = "average"
			}
			return &Error{Kind: v.Kind, Entity: v.Entity, ID: v.EntityID, Field: field, Detail: v.Message}
		}
	}
	return nil
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
