// Package memory provides an in-memory implementation of the composition
// persistence store used for tests, ephemeral environments and as the
// transactional core of the SQL-backed stores.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"materialcore/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Registry aliases domain.Registry.
	Registry = domain.Registry
	// Material aliases domain.Material.
	Material = domain.Material
	// Component aliases domain.Component.
	Component = domain.Component
	// ComponentGroup aliases domain.ComponentGroup.
	ComponentGroup = domain.ComponentGroup
	// TemporalDistribution aliases domain.TemporalDistribution.
	TemporalDistribution = domain.TemporalDistribution
	// Timestep aliases domain.Timestep.
	Timestep = domain.Timestep
	// Source aliases domain.Source.
	Source = domain.Source
	// CompositionProfile aliases domain.CompositionProfile.
	CompositionProfile = domain.CompositionProfile
	// ComponentGroupAssignment aliases domain.ComponentGroupAssignment.
	ComponentGroupAssignment = domain.ComponentGroupAssignment
	// CompositionSnapshot aliases domain.CompositionSnapshot.
	CompositionSnapshot = domain.CompositionSnapshot
	// WeightFraction aliases domain.WeightFraction.
	WeightFraction = domain.WeightFraction
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

// CommitHook runs after rules pass and before the transactional state becomes
// visible. Returning an error aborts the transaction.
type CommitHook func(ctx context.Context, changes []Change) error

type memoryState struct {
	registry      *Registry
	materials     map[string]Material
	components    map[string]Component
	groups        map[string]ComponentGroup
	distributions map[string]TemporalDistribution
	timesteps     map[string]Timestep
	sources       map[string]Source
	profiles      map[string]CompositionProfile
	assignments   map[string]ComponentGroupAssignment
	snapshots     map[string]CompositionSnapshot
	fractions     map[string]WeightFraction
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Registry      *Registry                           `json:"registry,omitempty"`
	Materials     map[string]Material                 `json:"materials"`
	Components    map[string]Component                `json:"components"`
	Groups        map[string]ComponentGroup           `json:"groups"`
	Distributions map[string]TemporalDistribution     `json:"distributions"`
	Timesteps     map[string]Timestep                 `json:"timesteps"`
	Sources       map[string]Source                   `json:"sources"`
	Profiles      map[string]CompositionProfile       `json:"profiles"`
	Assignments   map[string]ComponentGroupAssignment `json:"assignments"`
	Snapshots     map[string]CompositionSnapshot      `json:"snapshots"`
	Fractions     map[string]WeightFraction           `json:"fractions"`
}

func newMemoryState() memoryState {
	return memoryState{
		materials:     make(map[string]Material),
		components:    make(map[string]Component),
		groups:        make(map[string]ComponentGroup),
		distributions: make(map[string]TemporalDistribution),
		timesteps:     make(map[string]Timestep),
		sources:       make(map[string]Source),
		profiles:      make(map[string]CompositionProfile),
		assignments:   make(map[string]ComponentGroupAssignment),
		snapshots:     make(map[string]CompositionSnapshot),
		fractions:     make(map[string]WeightFraction),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	cloned := state.clone()
	return Snapshot{
		Registry:      cloned.registry,
		Materials:     cloned.materials,
		Components:    cloned.components,
		Groups:        cloned.groups,
		Distributions: cloned.distributions,
		Timesteps:     cloned.timesteps,
		Sources:       cloned.sources,
		Profiles:      cloned.profiles,
		Assignments:   cloned.assignments,
		Snapshots:     cloned.snapshots,
		Fractions:     cloned.fractions,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := memoryState{
		registry:      s.Registry,
		materials:     s.Materials,
		components:    s.Components,
		groups:        s.Groups,
		distributions: s.Distributions,
		timesteps:     s.Timesteps,
		sources:       s.Sources,
		profiles:      s.Profiles,
		assignments:   s.Assignments,
		snapshots:     s.Snapshots,
		fractions:     s.Fractions,
	}
	return state.clone()
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	if s.registry != nil {
		r := *s.registry
		cloned.registry = &r
	}
	for k, v := range s.materials {
		cloned.materials[k] = cloneMaterial(v)
	}
	for k, v := range s.components {
		cloned.components[k] = v
	}
	for k, v := range s.groups {
		cloned.groups[k] = v
	}
	for k, v := range s.distributions {
		cloned.distributions[k] = cloneDistribution(v)
	}
	for k, v := range s.timesteps {
		cloned.timesteps[k] = v
	}
	for k, v := range s.sources {
		cloned.sources[k] = v
	}
	for k, v := range s.profiles {
		cloned.profiles[k] = cloneProfile(v)
	}
	for k, v := range s.assignments {
		cloned.assignments[k] = cloneAssignment(v)
	}
	for k, v := range s.snapshots {
		cloned.snapshots[k] = cloneSnapshot(v)
	}
	for k, v := range s.fractions {
		cloned.fractions[k] = v
	}
	return cloned
}

func cloneStrings(values []string) []string {
	return append([]string(nil), values...)
}

func cloneMaterial(m Material) Material {
	cp := m
	cp.ProfileIDs = cloneStrings(m.ProfileIDs)
	return cp
}

func cloneDistribution(d TemporalDistribution) TemporalDistribution {
	cp := d
	cp.TimestepIDs = cloneStrings(d.TimestepIDs)
	return cp
}

func cloneProfile(p CompositionProfile) CompositionProfile {
	cp := p
	cp.AssignmentIDs = cloneStrings(p.AssignmentIDs)
	return cp
}

func cloneAssignment(a ComponentGroupAssignment) ComponentGroupAssignment {
	cp := a
	cp.ComponentIDs = cloneStrings(a.ComponentIDs)
	cp.DistributionIDs = cloneStrings(a.DistributionIDs)
	cp.SnapshotIDs = cloneStrings(a.SnapshotIDs)
	cp.SourceIDs = cloneStrings(a.SourceIDs)
	return cp
}

func cloneSnapshot(s CompositionSnapshot) CompositionSnapshot {
	cp := s
	cp.FractionIDs = cloneStrings(s.FractionIDs)
	return cp
}

func removeString(values []string, id string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Store provides an in-memory transactional store for the composition domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
	hooks  []CommitHook
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	return uuid.NewString()
}

// OnCommit registers a hook executed inside every successful transaction.
func (s *Store) OnCommit(hook CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the time provider.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// RunInTransaction executes fn within a transactional copy of the store state.
// Rules and commit hooks run before the copy replaces the committed state, so
// any failure leaves the store untouched.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	for _, hook := range s.hooks {
		if err := hook(ctx, tx.changes); err != nil {
			if _, ok := domain.KindOf(err); ok {
				return result, err
			}
			return result, domain.StorageFailure("", "", err)
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()

	view := newTransactionView(&snapshot)
	return fn(view)
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func sortedValues[T any](m map[string]T, base func(T) domain.Base, clone func(T) T) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, clone(v))
	}
	sort.Slice(out, func(i, j int) bool {
		bi, bj := base(out[i]), base(out[j])
		if !bi.CreatedAt.Equal(bj.CreatedAt) {
			return bi.CreatedAt.Before(bj.CreatedAt)
		}
		return bi.ID < bj.ID
	})
	return out
}

func identity[T any](v T) T { return v }

// Registry returns the registry singleton if initialized.
func (v transactionView) Registry() (Registry, bool) {
	if v.state.registry == nil {
		return Registry{}, false
	}
	return *v.state.registry, true
}

// ListMaterials returns all materials ordered by creation.
func (v transactionView) ListMaterials() []Material {
	return sortedValues(v.state.materials, func(m Material) domain.Base { return m.Base }, cloneMaterial)
}

// ListComponents returns all components ordered by creation.
func (v transactionView) ListComponents() []Component {
	return sortedValues(v.state.components, func(c Component) domain.Base { return c.Base }, identity[Component])
}

// ListComponentGroups returns all component groups ordered by creation.
func (v transactionView) ListComponentGroups() []ComponentGroup {
	return sortedValues(v.state.groups, func(g ComponentGroup) domain.Base { return g.Base }, identity[ComponentGroup])
}

// ListDistributions returns all temporal distributions ordered by creation.
func (v transactionView) ListDistributions() []TemporalDistribution {
	return sortedValues(v.state.distributions, func(d TemporalDistribution) domain.Base { return d.Base }, cloneDistribution)
}

// ListProfiles returns all composition profiles ordered by creation.
func (v transactionView) ListProfiles() []CompositionProfile {
	return sortedValues(v.state.profiles, func(p CompositionProfile) domain.Base { return p.Base }, cloneProfile)
}

// ListAssignments returns all group assignments ordered by creation.
func (v transactionView) ListAssignments() []ComponentGroupAssignment {
	return sortedValues(v.state.assignments, func(a ComponentGroupAssignment) domain.Base { return a.Base }, cloneAssignment)
}

func (v transactionView) FindMaterial(id string) (Material, bool) {
	return findMaterial(v.state, id)
}

func (v transactionView) FindComponent(id string) (Component, bool) {
	c, ok := v.state.components[id]
	return c, ok
}

func (v transactionView) FindComponentGroup(id string) (ComponentGroup, bool) {
	g, ok := v.state.groups[id]
	return g, ok
}

func (v transactionView) FindDistribution(id string) (TemporalDistribution, bool) {
	return findDistribution(v.state, id)
}

func (v transactionView) FindTimestep(id string) (Timestep, bool) {
	t, ok := v.state.timesteps[id]
	return t, ok
}

func (v transactionView) FindSource(id string) (Source, bool) {
	s, ok := v.state.sources[id]
	return s, ok
}

func (v transactionView) FindProfile(id string) (CompositionProfile, bool) {
	return findProfile(v.state, id)
}

func (v transactionView) FindAssignment(id string) (ComponentGroupAssignment, bool) {
	return findAssignment(v.state, id)
}

func (v transactionView) FindSnapshot(id string) (CompositionSnapshot, bool) {
	return findSnapshot(v.state, id)
}

func (v transactionView) FindWeightFraction(id string) (WeightFraction, bool) {
	f, ok := v.state.fractions[id]
	return f, ok
}

func findMaterial(state *memoryState, id string) (Material, bool) {
	m, ok := state.materials[id]
	if !ok {
		return Material{}, false
	}
	return cloneMaterial(m), true
}

func findDistribution(state *memoryState, id string) (TemporalDistribution, bool) {
	d, ok := state.distributions[id]
	if !ok {
		return TemporalDistribution{}, false
	}
	return cloneDistribution(d), true
}

func findProfile(state *memoryState, id string) (CompositionProfile, bool) {
	p, ok := state.profiles[id]
	if !ok {
		return CompositionProfile{}, false
	}
	return cloneProfile(p), true
}

func findAssignment(state *memoryState, id string) (ComponentGroupAssignment, bool) {
	a, ok := state.assignments[id]
	if !ok {
		return ComponentGroupAssignment{}, false
	}
	return cloneAssignment(a), true
}

func findSnapshot(state *memoryState, id string) (CompositionSnapshot, bool) {
	s, ok := state.snapshots[id]
	if !ok {
		return CompositionSnapshot{}, false
	}
	return cloneSnapshot(s), true
}
