package memory

import (
	"sort"

	"materialcore/pkg/domain"
)

// helper to record and append change entries.
func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// Registry returns the registry singleton visible to the transaction.
func (tx *transaction) Registry() (Registry, bool) {
	if tx.state.registry == nil {
		return Registry{}, false
	}
	return *tx.state.registry, true
}

// InitRegistry stores the registry unless one already exists. An existing
// registry is returned unchanged so concurrent initializers converge.
func (tx *transaction) InitRegistry(r Registry) (Registry, error) {
	if tx.state.registry != nil {
		return *tx.state.registry, nil
	}
	if r.DefaultGroupID == "" || r.DefaultComponentID == "" || r.DefaultDistributionID == "" || r.DefaultTimestepID == "" {
		return Registry{}, &domain.Error{Kind: domain.KindBootstrap, Entity: domain.EntityRegistry, Detail: "incomplete defaults"}
	}
	if _, ok := tx.state.groups[r.DefaultGroupID]; !ok {
		return Registry{}, domain.NotFound(domain.EntityComponentGroup, r.DefaultGroupID)
	}
	if _, ok := tx.state.components[r.DefaultComponentID]; !ok {
		return Registry{}, domain.NotFound(domain.EntityComponent, r.DefaultComponentID)
	}
	if _, ok := tx.state.timesteps[r.DefaultTimestepID]; !ok {
		return Registry{}, domain.NotFound(domain.EntityTimestep, r.DefaultTimestepID)
	}
	r.CreatedAt = tx.now
	stored := r
	tx.state.registry = &stored
	tx.recordChange(Change{Entity: domain.EntityRegistry, Action: domain.ActionCreate, After: r})
	return r, nil
}

func (tx *transaction) FindMaterial(id string) (Material, bool) { return findMaterial(&tx.state, id) }

func (tx *transaction) FindComponent(id string) (Component, bool) {
	c, ok := tx.state.components[id]
	return c, ok
}

func (tx *transaction) FindComponentGroup(id string) (ComponentGroup, bool) {
	g, ok := tx.state.groups[id]
	return g, ok
}

func (tx *transaction) FindDistribution(id string) (TemporalDistribution, bool) {
	return findDistribution(&tx.state, id)
}

func (tx *transaction) FindTimestep(id string) (Timestep, bool) {
	t, ok := tx.state.timesteps[id]
	return t, ok
}

func (tx *transaction) FindSource(id string) (Source, bool) {
	s, ok := tx.state.sources[id]
	return s, ok
}

func (tx *transaction) FindProfile(id string) (CompositionProfile, bool) {
	return findProfile(&tx.state, id)
}

func (tx *transaction) FindAssignment(id string) (ComponentGroupAssignment, bool) {
	return findAssignment(&tx.state, id)
}

func (tx *transaction) FindSnapshot(id string) (CompositionSnapshot, bool) {
	return findSnapshot(&tx.state, id)
}

func (tx *transaction) FindWeightFraction(id string) (WeightFraction, bool) {
	f, ok := tx.state.fractions[id]
	return f, ok
}

// CreateMaterial stores a new material. Profile ids are maintained by the store.
func (tx *transaction) CreateMaterial(m Material) (Material, error) {
	if m.ID == "" {
		m.ID = tx.store.newID()
	}
	if _, exists := tx.state.materials[m.ID]; exists {
		return Material{}, domain.AlreadyExists(domain.EntityMaterial, m.ID, "")
	}
	if m.Type == "" {
		m.Type = domain.MaterialTypeMaterial
	}
	m.ProfileIDs = nil
	m.CreatedAt = tx.now
	m.UpdatedAt = tx.now
	tx.state.materials[m.ID] = cloneMaterial(m)
	tx.recordChange(Change{Entity: domain.EntityMaterial, Action: domain.ActionCreate, After: cloneMaterial(m)})
	return cloneMaterial(m), nil
}

// UpdateMaterial mutates a material using the provided mutator function.
func (tx *transaction) UpdateMaterial(id string, mutator func(*Material) error) (Material, error) {
	current, ok := tx.state.materials[id]
	if !ok {
		return Material{}, domain.NotFound(domain.EntityMaterial, id)
	}
	before := cloneMaterial(current)
	working := cloneMaterial(current)
	if err := mutator(&working); err != nil {
		return Material{}, err
	}
	working.ID = id
	working.ProfileIDs = before.ProfileIDs
	working.CreatedAt = before.CreatedAt
	working.UpdatedAt = tx.now
	tx.state.materials[id] = cloneMaterial(working)
	tx.recordChange(Change{Entity: domain.EntityMaterial, Action: domain.ActionUpdate, Before: before, After: cloneMaterial(working)})
	return cloneMaterial(working), nil
}

// DeleteMaterial removes a material without profiles.
func (tx *transaction) DeleteMaterial(id string) error {
	current, ok := tx.state.materials[id]
	if !ok {
		return domain.NotFound(domain.EntityMaterial, id)
	}
	if len(current.ProfileIDs) > 0 {
		return domain.AlreadyExists(domain.EntityMaterial, id, "material still has composition profiles")
	}
	delete(tx.state.materials, id)
	tx.recordChange(Change{Entity: domain.EntityMaterial, Action: domain.ActionDelete, Before: cloneMaterial(current)})
	return nil
}

// CreateComponent stores a new component.
func (tx *transaction) CreateComponent(c Component) (Component, error) {
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	if _, exists := tx.state.components[c.ID]; exists {
		return Component{}, domain.AlreadyExists(domain.EntityComponent, c.ID, "")
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.components[c.ID] = c
	tx.recordChange(Change{Entity: domain.EntityComponent, Action: domain.ActionCreate, After: c})
	return c, nil
}

// CreateComponentGroup stores a new component group.
func (tx *transaction) CreateComponentGroup(g ComponentGroup) (ComponentGroup, error) {
	if g.ID == "" {
		g.ID = tx.store.newID()
	}
	if _, exists := tx.state.groups[g.ID]; exists {
		return ComponentGroup{}, domain.AlreadyExists(domain.EntityComponentGroup, g.ID, "")
	}
	g.CreatedAt = tx.now
	g.UpdatedAt = tx.now
	tx.state.groups[g.ID] = g
	tx.recordChange(Change{Entity: domain.EntityComponentGroup, Action: domain.ActionCreate, After: g})
	return g, nil
}

// CreateDistribution stores a new temporal distribution without timesteps.
func (tx *transaction) CreateDistribution(d TemporalDistribution) (TemporalDistribution, error) {
	if d.ID == "" {
		d.ID = tx.store.newID()
	}
	if _, exists := tx.state.distributions[d.ID]; exists {
		return TemporalDistribution{}, domain.AlreadyExists(domain.EntityDistribution, d.ID, "")
	}
	d.TimestepIDs = nil
	d.CreatedAt = tx.now
	d.UpdatedAt = tx.now
	tx.state.distributions[d.ID] = cloneDistribution(d)
	tx.recordChange(Change{Entity: domain.EntityDistribution, Action: domain.ActionCreate, After: cloneDistribution(d)})
	return cloneDistribution(d), nil
}

// CreateTimestep stores a timestep and appends it to its distribution in order.
func (tx *transaction) CreateTimestep(t Timestep) (Timestep, error) {
	if t.ID == "" {
		t.ID = tx.store.newID()
	}
	if _, exists := tx.state.timesteps[t.ID]; exists {
		return Timestep{}, domain.AlreadyExists(domain.EntityTimestep, t.ID, "")
	}
	dist, ok := tx.state.distributions[t.DistributionID]
	if !ok {
		return Timestep{}, domain.NotFound(domain.EntityDistribution, t.DistributionID)
	}
	t.CreatedAt = tx.now
	t.UpdatedAt = tx.now
	tx.state.timesteps[t.ID] = t

	before := cloneDistribution(dist)
	dist.TimestepIDs = append(cloneStrings(dist.TimestepIDs), t.ID)
	sort.SliceStable(dist.TimestepIDs, func(i, j int) bool {
		return tx.state.timesteps[dist.TimestepIDs[i]].Order < tx.state.timesteps[dist.TimestepIDs[j]].Order
	})
	dist.UpdatedAt = tx.now
	tx.state.distributions[dist.ID] = dist
	tx.recordChange(Change{Entity: domain.EntityTimestep, Action: domain.ActionCreate, After: t})
	tx.recordChange(Change{Entity: domain.EntityDistribution, Action: domain.ActionUpdate, Before: before, After: cloneDistribution(dist)})
	return t, nil
}

// CreateSource stores a bibliography source reference.
func (tx *transaction) CreateSource(s Source) (Source, error) {
	if s.ID == "" {
		s.ID = tx.store.newID()
	}
	if _, exists := tx.state.sources[s.ID]; exists {
		return Source{}, domain.AlreadyExists(domain.EntitySource, s.ID, "")
	}
	s.CreatedAt = tx.now
	s.UpdatedAt = tx.now
	tx.state.sources[s.ID] = s
	tx.recordChange(Change{Entity: domain.EntitySource, Action: domain.ActionCreate, After: s})
	return s, nil
}

// CreateProfile stores a profile under its material, enforcing a single standard profile.
func (tx *transaction) CreateProfile(p CompositionProfile) (CompositionProfile, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.profiles[p.ID]; exists {
		return CompositionProfile{}, domain.AlreadyExists(domain.EntityProfile, p.ID, "")
	}
	material, ok := tx.state.materials[p.MaterialID]
	if !ok {
		return CompositionProfile{}, domain.NotFound(domain.EntityMaterial, p.MaterialID)
	}
	if p.IsStandard {
		for _, pid := range material.ProfileIDs {
			if tx.state.profiles[pid].IsStandard {
				return CompositionProfile{}, &domain.Error{Kind: domain.KindDuplicateStandardProfile, Entity: domain.EntityMaterial, ID: material.ID}
			}
		}
	}
	p.AssignmentIDs = nil
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.profiles[p.ID] = cloneProfile(p)
	tx.recordChange(Change{Entity: domain.EntityProfile, Action: domain.ActionCreate, After: cloneProfile(p)})

	before := cloneMaterial(material)
	material.ProfileIDs = append(cloneStrings(material.ProfileIDs), p.ID)
	tx.putMaterial(before, material)
	return cloneProfile(p), nil
}

// UpdateProfile mutates descriptive profile fields. Ownership of the material,
// the standard flag and assignment ids are preserved.
func (tx *transaction) UpdateProfile(id string, mutator func(*CompositionProfile) error) (CompositionProfile, error) {
	current, ok := tx.state.profiles[id]
	if !ok {
		return CompositionProfile{}, domain.NotFound(domain.EntityProfile, id)
	}
	before := cloneProfile(current)
	working := cloneProfile(current)
	if err := mutator(&working); err != nil {
		return CompositionProfile{}, err
	}
	working.ID = id
	working.MaterialID = before.MaterialID
	working.IsStandard = before.IsStandard
	working.AssignmentIDs = before.AssignmentIDs
	working.CreatedAt = before.CreatedAt
	working.UpdatedAt = tx.now
	tx.state.profiles[id] = cloneProfile(working)
	tx.recordChange(Change{Entity: domain.EntityProfile, Action: domain.ActionUpdate, Before: before, After: cloneProfile(working)})
	return cloneProfile(working), nil
}

// DeleteProfile removes a profile without assignments.
func (tx *transaction) DeleteProfile(id string) error {
	current, ok := tx.state.profiles[id]
	if !ok {
		return domain.NotFound(domain.EntityProfile, id)
	}
	if len(current.AssignmentIDs) > 0 {
		return domain.AlreadyExists(domain.EntityProfile, id, "profile still has group assignments")
	}
	delete(tx.state.profiles, id)
	tx.recordChange(Change{Entity: domain.EntityProfile, Action: domain.ActionDelete, Before: cloneProfile(current)})
	if material, ok := tx.state.materials[current.MaterialID]; ok {
		before := cloneMaterial(material)
		material.ProfileIDs = removeString(material.ProfileIDs, id)
		tx.putMaterial(before, material)
	}
	return nil
}

// CreateAssignment binds a group to a profile; one assignment per (profile, group).
func (tx *transaction) CreateAssignment(a ComponentGroupAssignment) (ComponentGroupAssignment, error) {
	if a.ID == "" {
		a.ID = tx.store.newID()
	}
	if _, exists := tx.state.assignments[a.ID]; exists {
		return ComponentGroupAssignment{}, domain.AlreadyExists(domain.EntityAssignment, a.ID, "")
	}
	profile, ok := tx.state.profiles[a.ProfileID]
	if !ok {
		return ComponentGroupAssignment{}, domain.NotFound(domain.EntityProfile, a.ProfileID)
	}
	if _, ok := tx.state.groups[a.GroupID]; !ok {
		return ComponentGroupAssignment{}, domain.NotFound(domain.EntityComponentGroup, a.GroupID)
	}
	if _, ok := tx.state.components[a.ReferenceComponentID]; !ok {
		return ComponentGroupAssignment{}, domain.NotFound(domain.EntityComponent, a.ReferenceComponentID)
	}
	for _, aid := range profile.AssignmentIDs {
		if tx.state.assignments[aid].GroupID == a.GroupID {
			return ComponentGroupAssignment{}, &domain.Error{Kind: domain.KindDuplicateGroupAssignment, Entity: domain.EntityComponentGroup, ID: a.GroupID, Field: "group"}
		}
	}
	for _, cid := range a.ComponentIDs {
		if _, ok := tx.state.components[cid]; !ok {
			return ComponentGroupAssignment{}, domain.NotFound(domain.EntityComponent, cid)
		}
	}
	for _, did := range a.DistributionIDs {
		if _, ok := tx.state.distributions[did]; !ok {
			return ComponentGroupAssignment{}, domain.NotFound(domain.EntityDistribution, did)
		}
	}
	a.ComponentIDs = dedupeStrings(a.ComponentIDs)
	a.DistributionIDs = dedupeStrings(a.DistributionIDs)
	a.SourceIDs = dedupeStrings(a.SourceIDs)
	a.SnapshotIDs = nil
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	tx.state.assignments[a.ID] = cloneAssignment(a)
	tx.recordChange(Change{Entity: domain.EntityAssignment, Action: domain.ActionCreate, After: cloneAssignment(a)})

	before := cloneProfile(profile)
	profile.AssignmentIDs = append(cloneStrings(profile.AssignmentIDs), a.ID)
	profile.UpdatedAt = tx.now
	tx.state.profiles[profile.ID] = profile
	tx.recordChange(Change{Entity: domain.EntityProfile, Action: domain.ActionUpdate, Before: before, After: cloneProfile(profile)})
	return cloneAssignment(a), nil
}

// UpdateAssignment mutates an assignment. Profile, group and snapshot ids are preserved.
func (tx *transaction) UpdateAssignment(id string, mutator func(*ComponentGroupAssignment) error) (ComponentGroupAssignment, error) {
	current, ok := tx.state.assignments[id]
	if !ok {
		return ComponentGroupAssignment{}, domain.NotFound(domain.EntityAssignment, id)
	}
	before := cloneAssignment(current)
	working := cloneAssignment(current)
	if err := mutator(&working); err != nil {
		return ComponentGroupAssignment{}, err
	}
	if _, ok := tx.state.components[working.ReferenceComponentID]; !ok {
		return ComponentGroupAssignment{}, domain.NotFound(domain.EntityComponent, working.ReferenceComponentID)
	}
	working.ID = id
	working.ProfileID = before.ProfileID
	working.GroupID = before.GroupID
	working.SnapshotIDs = before.SnapshotIDs
	working.ComponentIDs = dedupeStrings(working.ComponentIDs)
	working.DistributionIDs = dedupeStrings(working.DistributionIDs)
	working.SourceIDs = dedupeStrings(working.SourceIDs)
	working.CreatedAt = before.CreatedAt
	working.UpdatedAt = tx.now
	tx.state.assignments[id] = cloneAssignment(working)
	tx.recordChange(Change{Entity: domain.EntityAssignment, Action: domain.ActionUpdate, Before: before, After: cloneAssignment(working)})
	return cloneAssignment(working), nil
}

// DeleteAssignment removes an assignment without snapshots.
func (tx *transaction) DeleteAssignment(id string) error {
	current, ok := tx.state.assignments[id]
	if !ok {
		return domain.NotFound(domain.EntityAssignment, id)
	}
	if len(current.SnapshotIDs) > 0 {
		return domain.AlreadyExists(domain.EntityAssignment, id, "assignment still has snapshots")
	}
	delete(tx.state.assignments, id)
	tx.recordChange(Change{Entity: domain.EntityAssignment, Action: domain.ActionDelete, Before: cloneAssignment(current)})
	if profile, ok := tx.state.profiles[current.ProfileID]; ok {
		before := cloneProfile(profile)
		profile.AssignmentIDs = removeString(profile.AssignmentIDs, id)
		profile.UpdatedAt = tx.now
		tx.state.profiles[profile.ID] = profile
		tx.recordChange(Change{Entity: domain.EntityProfile, Action: domain.ActionUpdate, Before: before, After: cloneProfile(profile)})
	}
	return nil
}

// CreateSnapshot stores a snapshot; one per (assignment, timestep).
func (tx *transaction) CreateSnapshot(s CompositionSnapshot) (CompositionSnapshot, error) {
	if s.ID == "" {
		s.ID = tx.store.newID()
	}
	if _, exists := tx.state.snapshots[s.ID]; exists {
		return CompositionSnapshot{}, domain.AlreadyExists(domain.EntitySnapshot, s.ID, "")
	}
	assignment, ok := tx.state.assignments[s.AssignmentID]
	if !ok {
		return CompositionSnapshot{}, domain.NotFound(domain.EntityAssignment, s.AssignmentID)
	}
	if _, ok := tx.state.timesteps[s.TimestepID]; !ok {
		return CompositionSnapshot{}, domain.NotFound(domain.EntityTimestep, s.TimestepID)
	}
	for _, sid := range assignment.SnapshotIDs {
		if tx.state.snapshots[sid].TimestepID == s.TimestepID {
			return CompositionSnapshot{}, domain.AlreadyExists(domain.EntitySnapshot, sid, "assignment already has a snapshot for timestep "+s.TimestepID)
		}
	}
	s.FractionIDs = nil
	s.Version = 1
	s.CreatedAt = tx.now
	s.UpdatedAt = tx.now
	tx.state.snapshots[s.ID] = cloneSnapshot(s)
	tx.recordChange(Change{Entity: domain.EntitySnapshot, Action: domain.ActionCreate, After: cloneSnapshot(s)})

	before := cloneAssignment(assignment)
	assignment.SnapshotIDs = append(cloneStrings(assignment.SnapshotIDs), s.ID)
	assignment.UpdatedAt = tx.now
	tx.state.assignments[assignment.ID] = assignment
	tx.recordChange(Change{Entity: domain.EntityAssignment, Action: domain.ActionUpdate, Before: before, After: cloneAssignment(assignment)})
	return cloneSnapshot(s), nil
}

// DeleteSnapshot removes a snapshot without fractions.
func (tx *transaction) DeleteSnapshot(id string) error {
	current, ok := tx.state.snapshots[id]
	if !ok {
		return domain.NotFound(domain.EntitySnapshot, id)
	}
	if len(current.FractionIDs) > 0 {
		return domain.AlreadyExists(domain.EntitySnapshot, id, "snapshot still has weight fractions")
	}
	delete(tx.state.snapshots, id)
	tx.recordChange(Change{Entity: domain.EntitySnapshot, Action: domain.ActionDelete, Before: cloneSnapshot(current)})
	if assignment, ok := tx.state.assignments[current.AssignmentID]; ok {
		before := cloneAssignment(assignment)
		assignment.SnapshotIDs = removeString(assignment.SnapshotIDs, id)
		assignment.UpdatedAt = tx.now
		tx.state.assignments[assignment.ID] = assignment
		tx.recordChange(Change{Entity: domain.EntityAssignment, Action: domain.ActionUpdate, Before: before, After: cloneAssignment(assignment)})
	}
	return nil
}

func validateShare(f WeightFraction) error {
	if f.Average < 0 || f.Average > 1 || f.Average != f.Average {
		return domain.OutOfRange("average", f.Average, 0, 1)
	}
	if f.StandardDeviation < 0 || f.StandardDeviation > 1 || f.StandardDeviation != f.StandardDeviation {
		return domain.OutOfRange("standard_deviation", f.StandardDeviation, 0, 1)
	}
	return nil
}

// CreateWeightFraction stores a share; one per (snapshot, component).
func (tx *transaction) CreateWeightFraction(f WeightFraction) (WeightFraction, error) {
	if f.ID == "" {
		f.ID = tx.store.newID()
	}
	if _, exists := tx.state.fractions[f.ID]; exists {
		return WeightFraction{}, domain.AlreadyExists(domain.EntityWeightFraction, f.ID, "")
	}
	snapshot, ok := tx.state.snapshots[f.SnapshotID]
	if !ok {
		return WeightFraction{}, domain.NotFound(domain.EntitySnapshot, f.SnapshotID)
	}
	if _, ok := tx.state.components[f.ComponentID]; !ok {
		return WeightFraction{}, domain.NotFound(domain.EntityComponent, f.ComponentID)
	}
	if err := validateShare(f); err != nil {
		return WeightFraction{}, err
	}
	for _, fid := range snapshot.FractionIDs {
		if tx.state.fractions[fid].ComponentID == f.ComponentID {
			return WeightFraction{}, domain.AlreadyExists(domain.EntityWeightFraction, fid, "snapshot already has a share for component "+f.ComponentID)
		}
	}
	f.CreatedAt = tx.now
	f.UpdatedAt = tx.now
	tx.state.fractions[f.ID] = f
	tx.recordChange(Change{Entity: domain.EntityWeightFraction, Action: domain.ActionCreate, After: f})
	tx.touchSnapshot(snapshot.ID, func(s *CompositionSnapshot) {
		s.FractionIDs = append(s.FractionIDs, f.ID)
	})
	return f, nil
}

// UpdateWeightFraction mutates the share values of a fraction.
func (tx *transaction) UpdateWeightFraction(id string, mutator func(*WeightFraction) error) (WeightFraction, error) {
	current, ok := tx.state.fractions[id]
	if !ok {
		return WeightFraction{}, domain.NotFound(domain.EntityWeightFraction, id)
	}
	working := current
	if err := mutator(&working); err != nil {
		return WeightFraction{}, err
	}
	working.ID = id
	working.SnapshotID = current.SnapshotID
	working.ComponentID = current.ComponentID
	working.CreatedAt = current.CreatedAt
	working.UpdatedAt = tx.now
	if err := validateShare(working); err != nil {
		return WeightFraction{}, err
	}
	tx.state.fractions[id] = working
	tx.recordChange(Change{Entity: domain.EntityWeightFraction, Action: domain.ActionUpdate, Before: current, After: working})
	tx.touchSnapshot(current.SnapshotID, nil)
	return working, nil
}

// DeleteWeightFraction removes a share from its snapshot.
func (tx *transaction) DeleteWeightFraction(id string) error {
	current, ok := tx.state.fractions[id]
	if !ok {
		return domain.NotFound(domain.EntityWeightFraction, id)
	}
	delete(tx.state.fractions, id)
	tx.recordChange(Change{Entity: domain.EntityWeightFraction, Action: domain.ActionDelete, Before: current})
	tx.touchSnapshot(current.SnapshotID, func(s *CompositionSnapshot) {
		s.FractionIDs = removeString(s.FractionIDs, id)
	})
	return nil
}

// touchSnapshot bumps the snapshot version after its fractions changed.
func (tx *transaction) touchSnapshot(id string, mutate func(*CompositionSnapshot)) {
	snapshot, ok := tx.state.snapshots[id]
	if !ok {
		return
	}
	before := cloneSnapshot(snapshot)
	snapshot = cloneSnapshot(snapshot)
	if mutate != nil {
		mutate(&snapshot)
	}
	snapshot.Version++
	snapshot.UpdatedAt = tx.now
	tx.state.snapshots[id] = snapshot
	tx.recordChange(Change{Entity: domain.EntitySnapshot, Action: domain.ActionUpdate, Before: before, After: cloneSnapshot(snapshot)})
}

func (tx *transaction) putMaterial(before, after Material) {
	after.UpdatedAt = tx.now
	tx.state.materials[after.ID] = cloneMaterial(after)
	tx.recordChange(Change{Entity: domain.EntityMaterial, Action: domain.ActionUpdate, Before: before, After: cloneMaterial(after)})
}
