package core

import (
	"context"
	"fmt"
	"math"

	"materialcore/pkg/domain"
)

// NewDefaultRulesEngine builds a rules engine with the built-in composition policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewCompositionBalanceRule())
	engine.Register(NewReferenceComponentRule())
	return engine
}

// compositionBalanceRule blocks transactions that edit fraction averages and
// leave the owning snapshot away from a total of one. Structural changes that
// only create or delete fractions are left to the orchestrating operation.
type compositionBalanceRule struct{}

// NewCompositionBalanceRule constructs the snapshot sum rule.
func NewCompositionBalanceRule() Rule {
	return compositionBalanceRule{}
}

func (compositionBalanceRule) Name() string { return "composition_balance" }

func (r compositionBalanceRule) Evaluate(_ context.Context, view domain.RuleView, changes []Change) (Result, error) {
	touched := make(map[string]struct{})
	var order []string
	for _, change := range changes {
		if change.Entity != EntityWeightFraction || change.Action != ActionUpdate {
			continue
		}
		fraction, ok := change.After.(WeightFraction)
		if !ok {
			continue
		}
		if _, seen := touched[fraction.SnapshotID]; seen {
			continue
		}
		touched[fraction.SnapshotID] = struct{}{}
		order = append(order, fraction.SnapshotID)
	}

	var res Result
	for _, id := range order {
		snapshot, ok := view.FindSnapshot(id)
		if !ok {
			continue
		}
		sum := snapshotSum(view, snapshot)
		if math.Abs(sum-1) > domain.BalanceTolerance {
			res.Violations = append(res.Violations, Violation{
				Rule:     r.Name(),
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("shares sum to %.10g, want 1", sum),
				Entity:   EntitySnapshot,
				EntityID: id,
				Kind:     domain.KindUnbalancedComposition,
			})
		}
	}
	return res, nil
}

func snapshotSum(view domain.TransactionView, snapshot CompositionSnapshot) float64 {
	var sum float64
	for _, fid := range snapshot.FractionIDs {
		if f, ok := view.FindWeightFraction(fid); ok {
			sum += f.Average
		}
	}
	return sum
}

// referenceComponentRule requires every non-base assignment to express its
// shares relative to a component assigned to the profile's base group.
type referenceComponentRule struct{}

// NewReferenceComponentRule constructs the reference component rule.
func NewReferenceComponentRule() Rule {
	return referenceComponentRule{}
}

func (referenceComponentRule) Name() string { return "reference_component" }

func (r referenceComponentRule) Evaluate(_ context.Context, view domain.RuleView, changes []Change) (Result, error) {
	reg, ok := view.Registry()
	if !ok {
		return Result{}, nil
	}
	profiles := make(map[string]struct{})
	var order []string
	for _, change := range changes {
		if change.Entity != EntityAssignment || change.Action == ActionDelete {
			continue
		}
		a, ok := change.After.(ComponentGroupAssignment)
		if !ok {
			continue
		}
		if _, seen := profiles[a.ProfileID]; seen {
			continue
		}
		profiles[a.ProfileID] = struct{}{}
		order = append(order, a.ProfileID)
	}

	var res Result
	for _, pid := range order {
		profile, ok := view.FindProfile(pid)
		if !ok {
			continue
		}
		assignments := make([]ComponentGroupAssignment, 0, len(profile.AssignmentIDs))
		var base *ComponentGroupAssignment
		for _, aid := range profile.AssignmentIDs {
			a, ok := view.FindAssignment(aid)
			if !ok {
				continue
			}
			assignments = append(assignments, a)
			if a.GroupID == reg.DefaultGroupID {
				base = &assignments[len(assignments)-1]
			}
		}
		if base == nil {
			continue
		}
		for _, a := range assignments {
			if a.GroupID == reg.DefaultGroupID || base.HasComponent(a.ReferenceComponentID) {
				continue
			}
			res.Violations = append(res.Violations, Violation{
				Rule:     r.Name(),
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("reference component %s is not assigned to the base group", a.ReferenceComponentID),
				Entity:   EntityAssignment,
				EntityID: a.ID,
				Kind:     domain.KindInvalidReferenceComponent,
			})
		}
	}
	return res, nil
}
