// Package sqlstate maps the composition store onto relational tables. The
// SQLite and Postgres stores share it and differ only in their Dialect.
package sqlstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"materialcore/internal/infra/persistence/memory"
	"materialcore/internal/infra/persistence/sqlbundle"
	"materialcore/pkg/domain"
)

// Dialect captures the differences between supported SQL engines.
type Dialect struct {
	Name string
	DDL  func() string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
}

// SQLite uses positional question-mark parameters.
var SQLite = Dialect{
	Name:        "sqlite",
	DDL:         sqlbundle.SQLite,
	Placeholder: func(int) string { return "?" },
}

// Postgres uses numbered dollar parameters.
var Postgres = Dialect{
	Name:        "postgres",
	DDL:         sqlbundle.Postgres,
	Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
}

// Migrate executes the dialect DDL bundle.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	for _, stmt := range sqlbundle.SplitStatements(d.DDL()) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute %s ddl: %w", d.Name, err)
		}
	}
	return nil
}

type table struct {
	name    string
	columns []string
	// row returns the primary key followed by values for columns.
	row func(v any) (string, []any, error)
}

func payloadOf(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func simpleRow[T any](id func(T) string) func(any) (string, []any, error) {
	return func(v any) (string, []any, error) {
		rec, ok := v.(T)
		if !ok {
			return "", nil, fmt.Errorf("unexpected payload %T", v)
		}
		payload, err := payloadOf(rec)
		if err != nil {
			return "", nil, err
		}
		return id(rec), []any{payload}, nil
	}
}

var tables = map[domain.EntityType]table{
	domain.EntityMaterial: {
		name: "materials", columns: []string{"payload"},
		row: simpleRow(func(m domain.Material) string { return m.ID }),
	},
	domain.EntityComponent: {
		name: "components", columns: []string{"payload"},
		row: simpleRow(func(c domain.Component) string { return c.ID }),
	},
	domain.EntityComponentGroup: {
		name: "component_groups", columns: []string{"payload"},
		row: simpleRow(func(g domain.ComponentGroup) string { return g.ID }),
	},
	domain.EntityDistribution: {
		name: "temporal_distributions", columns: []string{"payload"},
		row: simpleRow(func(d domain.TemporalDistribution) string { return d.ID }),
	},
	domain.EntitySource: {
		name: "sources", columns: []string{"payload"},
		row: simpleRow(func(s domain.Source) string { return s.ID }),
	},
	domain.EntityTimestep: {
		name: "timesteps", columns: []string{"distribution_id", "payload"},
		row: func(v any) (string, []any, error) {
			t, ok := v.(domain.Timestep)
			if !ok {
				return "", nil, fmt.Errorf("unexpected payload %T", v)
			}
			payload, err := payloadOf(t)
			return t.ID, []any{t.DistributionID, payload}, err
		},
	},
	domain.EntityProfile: {
		name: "composition_profiles", columns: []string{"material_id", "is_standard", "payload"},
		row: func(v any) (string, []any, error) {
			p, ok := v.(domain.CompositionProfile)
			if !ok {
				return "", nil, fmt.Errorf("unexpected payload %T", v)
			}
			payload, err := payloadOf(p)
			return p.ID, []any{p.MaterialID, p.IsStandard, payload}, err
		},
	},
	domain.EntityAssignment: {
		name: "group_assignments", columns: []string{"profile_id", "group_id", "reference_component_id", "payload"},
		row: func(v any) (string, []any, error) {
			a, ok := v.(domain.ComponentGroupAssignment)
			if !ok {
				return "", nil, fmt.Errorf("unexpected payload %T", v)
			}
			payload, err := payloadOf(a)
			return a.ID, []any{a.ProfileID, a.GroupID, a.ReferenceComponentID, payload}, err
		},
	},
	domain.EntitySnapshot: {
		name: "composition_snapshots", columns: []string{"assignment_id", "timestep_id", "version", "payload"},
		row: func(v any) (string, []any, error) {
			s, ok := v.(domain.CompositionSnapshot)
			if !ok {
				return "", nil, fmt.Errorf("unexpected payload %T", v)
			}
			payload, err := payloadOf(s)
			return s.ID, []any{s.AssignmentID, s.TimestepID, s.Version, payload}, err
		},
	},
	domain.EntityWeightFraction: {
		name: "weight_fractions", columns: []string{"snapshot_id", "component_id", "average", "standard_deviation", "payload"},
		row: func(v any) (string, []any, error) {
			f, ok := v.(domain.WeightFraction)
			if !ok {
				return "", nil, fmt.Errorf("unexpected payload %T", v)
			}
			payload, err := payloadOf(f)
			return f.ID, []any{f.SnapshotID, f.ComponentID, f.Average, f.StandardDeviation, payload}, err
		},
	},
}

func upsertSQL(d Dialect, t table) string {
	cols := append([]string{"id"}, t.columns...)
	marks := make([]string, len(cols))
	for i := range cols {
		marks[i] = d.Placeholder(i + 1)
	}
	sets := make([]string, len(t.columns))
	for i, c := range t.columns {
		sets[i] = c + "=excluded." + c
	}
	return fmt.Sprintf("INSERT INTO %s(%s) VALUES(%s) ON CONFLICT(id) DO UPDATE SET %s",
		t.name, strings.Join(cols, ","), strings.Join(marks, ","), strings.Join(sets, ","))
}

// Apply writes the changes of one committed memory transaction inside a
// single SQL transaction. Changes are replayed in order.
func Apply(ctx context.Context, db *sql.DB, d Dialect, changes []domain.Change) error {
	if len(changes) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, change := range changes {
		if err := applyChange(ctx, tx, d, change); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

func applyChange(ctx context.Context, tx *sql.Tx, d Dialect, change domain.Change) error {
	if change.Entity == domain.EntityRegistry {
		payload, err := payloadOf(change.After)
		if err != nil {
			return fmt.Errorf("encode registry: %w", err)
		}
		stmt := fmt.Sprintf("INSERT INTO registry(id,payload) VALUES(%s,%s) ON CONFLICT(id) DO NOTHING", d.Placeholder(1), d.Placeholder(2))
		if _, err := tx.ExecContext(ctx, stmt, 1, payload); err != nil {
			return domain.StorageFailure(domain.EntityRegistry, "", fmt.Errorf("upsert registry: %w", err))
		}
		return nil
	}
	t, ok := tables[change.Entity]
	if !ok {
		return fmt.Errorf("no table for entity %s", change.Entity)
	}
	if change.Action == domain.ActionDelete {
		id, _, err := t.row(change.Before)
		if err != nil {
			return fmt.Errorf("%s: %w", t.name, err)
		}
		stmt := fmt.Sprintf("DELETE FROM %s WHERE id=%s", t.name, d.Placeholder(1))
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return domain.StorageFailure(change.Entity, id, fmt.Errorf("delete %s %s: %w", t.name, id, err))
		}
		return nil
	}
	id, values, err := t.row(change.After)
	if err != nil {
		return fmt.Errorf("%s: %w", t.name, err)
	}
	args := append([]any{id}, values...)
	if _, err := tx.ExecContext(ctx, upsertSQL(d, t), args...); err != nil {
		return domain.StorageFailure(change.Entity, id, fmt.Errorf("upsert %s %s: %w", t.name, id, err))
	}
	return nil
}

func loadTable[T any](ctx context.Context, db *sql.DB, name string, into map[string]T, id func(T) string) error {
	rows, err := db.QueryContext(ctx, "SELECT payload FROM "+name)
	if err != nil {
		return fmt.Errorf("select %s: %w", name, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return fmt.Errorf("scan %s: %w", name, err)
		}
		var rec T
		if err := json.Unmarshal(payload, &rec); err != nil {
			return fmt.Errorf("decode %s: %w", name, err)
		}
		into[id(rec)] = rec
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", name, err)
	}
	return nil
}

// Load reads every table into a memory snapshot.
func Load(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	snapshot := memory.Snapshot{
		Materials:     map[string]domain.Material{},
		Components:    map[string]domain.Component{},
		Groups:        map[string]domain.ComponentGroup{},
		Distributions: map[string]domain.TemporalDistribution{},
		Timesteps:     map[string]domain.Timestep{},
		Sources:       map[string]domain.Source{},
		Profiles:      map[string]domain.CompositionProfile{},
		Assignments:   map[string]domain.ComponentGroupAssignment{},
		Snapshots:     map[string]domain.CompositionSnapshot{},
		Fractions:     map[string]domain.WeightFraction{},
	}
	var payload []byte
	err := db.QueryRowContext(ctx, "SELECT payload FROM registry WHERE id = 1").Scan(&payload)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return memory.Snapshot{}, fmt.Errorf("select registry: %w", err)
	default:
		var reg domain.Registry
		if err := json.Unmarshal(payload, &reg); err != nil {
			return memory.Snapshot{}, fmt.Errorf("decode registry: %w", err)
		}
		snapshot.Registry = &reg
	}

	loaders := []func() error{
		func() error {
			return loadTable(ctx, db, "materials", snapshot.Materials, func(v domain.Material) string { return v.ID })
		},
		func() error {
			return loadTable(ctx, db, "components", snapshot.Components, func(v domain.Component) string { return v.ID })
		},
		func() error {
			return loadTable(ctx, db, "component_groups", snapshot.Groups, func(v domain.ComponentGroup) string { return v.ID })
		},
		func() error {
			return loadTable(ctx, db, "temporal_distributions", snapshot.Distributions, func(v domain.TemporalDistribution) string { return v.ID })
		},
		func() error {
			return loadTable(ctx, db, "timesteps", snapshot.Timesteps, func(v domain.Timestep) string { return v.ID })
		},
		func() error {
			return loadTable(ctx, db, "sources", snapshot.Sources, func(v domain.Source) string { return v.ID })
		},
		func() error {
			return loadTable(ctx, db, "composition_profiles", snapshot.Profiles, func(v domain.CompositionProfile) string { return v.ID })
		},
		func() error {
			return loadTable(ctx, db, "group_assignments", snapshot.Assignments, func(v domain.ComponentGroupAssignment) string { return v.ID })
		},
		func() error {
			return loadTable(ctx, db, "composition_snapshots", snapshot.Snapshots, func(v domain.CompositionSnapshot) string { return v.ID })
		},
		func() error {
			return loadTable(ctx, db, "weight_fractions", snapshot.Fractions, func(v domain.WeightFraction) string { return v.ID })
		},
	}
	for _, load := range loaders {
		if err := load(); err != nil {
			return memory.Snapshot{}, err
		}
	}
	return snapshot, nil
}

// Hook returns a memory commit hook that mirrors changes into db.
func Hook(db *sql.DB, d Dialect) memory.CommitHook {
	return func(ctx context.Context, changes []domain.Change) error {
		return Apply(ctx, db, d, changes)
	}
}
