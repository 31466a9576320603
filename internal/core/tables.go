package core

import (
	"context"

	"materialcore/pkg/domain"
	"materialcore/pkg/percent"
)

// TableRow holds one component's formatted percentages.
type TableRow struct {
	ComponentID string   `json:"component_id"`
	Component   string   `json:"component"`
	Values      []string `json:"values"`
}

// Table is a read-only projection of an assignment's shares.
type Table struct {
	Title   string     `json:"title"`
	Columns []string   `json:"columns"`
	Rows    []TableRow `json:"rows"`
}

// GroupTables bundles the tables of one assignment.
type GroupTables struct {
	AssignmentID  string  `json:"assignment_id"`
	Group         string  `json:"group"`
	FractionsOf   string  `json:"fractions_of"`
	Averages      Table   `json:"averages"`
	Distributions []Table `json:"distributions"`
}

// ProfileTables bundles every table of a profile.
type ProfileTables struct {
	ProfileID   string        `json:"profile_id"`
	MaterialID  string        `json:"material_id"`
	Material    string        `json:"material"`
	Owner       string        `json:"owner"`
	DisplayName string        `json:"display_name"`
	Groups      []GroupTables `json:"groups"`
}

func componentName(view reader, id string) string {
	if c, ok := view.FindComponent(id); ok {
		return c.Name
	}
	return id
}

// AveragesTable renders the average snapshot of an assignment, one row per
// component with its average and standard deviation as percentages.
func (s *Service) AveragesTable(ctx context.Context, assignmentID string) (Table, error) {
	reg, err := s.GetOrInitialize(ctx)
	if err != nil {
		return Table{}, err
	}
	var out Table
	err = s.store.View(ctx, func(view domain.TransactionView) error {
		a, ok := view.FindAssignment(assignmentID)
		if !ok {
			return domain.NotFound(EntityAssignment, assignmentID)
		}
		out = averagesTable(view, reg, a)
		return nil
	})
	return out, err
}

func averagesTable(view reader, reg Registry, a ComponentGroupAssignment) Table {
	t := Table{Title: "Average", Columns: []string{"Average", "Standard deviation"}}
	snap, ok := averageSnapshot(view, reg, a)
	if !ok {
		return t
	}
	for _, fid := range snap.FractionIDs {
		f, ok := view.FindWeightFraction(fid)
		if !ok {
			continue
		}
		t.Rows = append(t.Rows, TableRow{
			ComponentID: f.ComponentID,
			Component:   componentName(view, f.ComponentID),
			Values:      []string{percent.Format(f.Average), percent.Format(f.StandardDeviation)},
		})
	}
	return t
}

// DistributionTable renders one row per assigned component and one column per
// timestep of the distribution. Cells without a snapshot or share are blank.
func (s *Service) DistributionTable(ctx context.Context, assignmentID, distributionID string) (Table, error) {
	var out Table
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		a, ok := view.FindAssignment(assignmentID)
		if !ok {
			return domain.NotFound(EntityAssignment, assignmentID)
		}
		if !a.HasDistribution(distributionID) {
			return &domain.Error{Kind: domain.KindNotFound, Entity: EntityDistribution, ID: distributionID, Detail: "distribution not attached"}
		}
		t, err := distributionTable(view, a, distributionID)
		out = t
		return err
	})
	return out, err
}

func distributionTable(view reader, a ComponentGroupAssignment, distributionID string) (Table, error) {
	dist, ok := view.FindDistribution(distributionID)
	if !ok {
		return Table{}, domain.NotFound(EntityDistribution, distributionID)
	}
	byStep := make(map[string]map[string]WeightFraction, len(a.SnapshotIDs))
	for _, sid := range a.SnapshotIDs {
		snap, ok := view.FindSnapshot(sid)
		if !ok {
			continue
		}
		shares := make(map[string]WeightFraction, len(snap.FractionIDs))
		for _, fid := range snap.FractionIDs {
			if f, ok := view.FindWeightFraction(fid); ok {
				shares[f.ComponentID] = f
			}
		}
		byStep[snap.TimestepID] = shares
	}

	t := Table{Title: dist.Name}
	for _, stepID := range dist.TimestepIDs {
		name := stepID
		if step, ok := view.FindTimestep(stepID); ok {
			name = step.Name
		}
		t.Columns = append(t.Columns, name)
	}
	for _, cid := range a.ComponentIDs {
		row := TableRow{ComponentID: cid, Component: componentName(view, cid), Values: make([]string, len(dist.TimestepIDs))}
		for i, stepID := range dist.TimestepIDs {
			if f, ok := byStep[stepID][cid]; ok {
				row.Values[i] = percent.Format(f.Average)
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// ProfileTables renders every assignment of a profile in creation order, with
// the averages table and one table per attached non-default distribution.
func (s *Service) ProfileTables(ctx context.Context, profileID string) (ProfileTables, error) {
	reg, err := s.GetOrInitialize(ctx)
	if err != nil {
		return ProfileTables{}, err
	}
	var out ProfileTables
	err = s.store.View(ctx, func(view domain.TransactionView) error {
		p, ok := view.FindProfile(profileID)
		if !ok {
			return domain.NotFound(EntityProfile, profileID)
		}
		out = ProfileTables{ProfileID: p.ID, MaterialID: p.MaterialID, Owner: p.Owner, DisplayName: p.DisplayName}
		if m, ok := view.FindMaterial(p.MaterialID); ok {
			out.Material = m.Name
		}
		for _, aid := range p.AssignmentIDs {
			a, ok := view.FindAssignment(aid)
			if !ok {
				return domain.NotFound(EntityAssignment, aid)
			}
			g := GroupTables{
				AssignmentID: a.ID,
				Group:        a.GroupID,
				FractionsOf:  componentName(view, a.ReferenceComponentID),
				Averages:     averagesTable(view, reg, a),
			}
			if group, ok := view.FindComponentGroup(a.GroupID); ok {
				g.Group = group.Name
			}
			for _, did := range a.DistributionIDs {
				if did == reg.DefaultDistributionID {
					continue
				}
				t, err := distributionTable(view, a, did)
				if err != nil {
					return err
				}
				g.Distributions = append(g.Distributions, t)
			}
			out.Groups = append(out.Groups, g)
		}
		return nil
	})
	return out, err
}
