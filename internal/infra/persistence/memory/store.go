// Package memory provides an in-memory implementation of the colony
// persistence store used for tests, ephemeral environments, and as the
// transactional core of the snapshotting SQL backends.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"pedigreecore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Organism aliases domain.Organism for in-memory persistence operations.
	Organism = domain.Organism
	// PublicOrganism aliases domain.PublicOrganism.
	PublicOrganism = domain.PublicOrganism
	// BreedingUnit aliases domain.BreedingUnit.
	BreedingUnit = domain.BreedingUnit
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

type memoryState struct {
	organisms map[string]Organism
	public    map[string]PublicOrganism
	breeding  map[string]BreedingUnit
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Organisms       map[string]Organism       `json:"organisms"`
	PublicOrganisms map[string]PublicOrganism `json:"public_organisms"`
	Breeding        map[string]BreedingUnit   `json:"breeding"`
}

func newMemoryState() memoryState {
	return memoryState{
		organisms: make(map[string]Organism),
		public:    make(map[string]PublicOrganism),
		breeding:  make(map[string]BreedingUnit),
	}
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		organisms: make(map[string]Organism, len(s.organisms)),
		public:    make(map[string]PublicOrganism, len(s.public)),
		breeding:  make(map[string]BreedingUnit, len(s.breeding)),
	}
	for k, v := range s.organisms {
		out.organisms[k] = cloneOrganism(v)
	}
	for k, v := range s.public {
		out.public[k] = clonePublic(v)
	}
	for k, v := range s.breeding {
		out.breeding[k] = cloneBreeding(v)
	}
	return out
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	c := state.clone()
	return Snapshot{Organisms: c.organisms, PublicOrganisms: c.public, Breeding: c.breeding}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	return memoryState{organisms: s.Organisms, public: s.PublicOrganisms, breeding: s.Breeding}.clone()
}

// migrateSnapshot repairs snapshots written by older builds: nil buckets are
// allocated and records stored without an id take the id of their map key.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Organisms == nil {
		snapshot.Organisms = make(map[string]Organism)
	}
	if snapshot.PublicOrganisms == nil {
		snapshot.PublicOrganisms = make(map[string]PublicOrganism)
	}
	if snapshot.Breeding == nil {
		snapshot.Breeding = make(map[string]BreedingUnit)
	}
	for id, o := range snapshot.Organisms {
		if o.ID == "" {
			o.ID = id
			snapshot.Organisms[id] = o
		}
	}
	for id, p := range snapshot.PublicOrganisms {
		if p.ID == "" {
			p.ID = id
			snapshot.PublicOrganisms[id] = p
		}
	}
	for id, b := range snapshot.Breeding {
		if b.ID == "" {
			b.ID = id
			snapshot.Breeding[id] = b
		}
		b.FemaleIDs = dedupeStrings(b.FemaleIDs)
		b.MaleIDs = dedupeStrings(b.MaleIDs)
		snapshot.Breeding[id] = b
	}
	return snapshot
}

func cloneOrganism(o Organism) Organism {
	cp := o
	if o.SireID != nil {
		v := *o.SireID
		cp.SireID = &v
	}
	if o.DamID != nil {
		v := *o.DamID
		cp.DamID = &v
	}
	if o.InbreedingCoefficient != nil {
		v := *o.InbreedingCoefficient
		cp.InbreedingCoefficient = &v
	}
	return cp
}

func clonePublic(p PublicOrganism) PublicOrganism {
	cp := p
	if p.InbreedingCoefficient != nil {
		v := *p.InbreedingCoefficient
		cp.InbreedingCoefficient = &v
	}
	return cp
}

func cloneBreeding(b BreedingUnit) BreedingUnit {
	cp := b
	cp.FemaleIDs = append([]string(nil), b.FemaleIDs...)
	cp.MaleIDs = append([]string(nil), b.MaleIDs...)
	return cp
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Store provides an in-memory transactional store for the colony domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
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
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// SetNowFunc overrides the clock used to stamp records.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) ListOrganisms() []Organism {
	return sortedOrganisms(v.state.organisms)
}

func (v transactionView) FindOrganism(id string) (Organism, bool) {
	o, ok := v.state.organisms[id]
	if !ok {
		return Organism{}, false
	}
	return cloneOrganism(o), true
}

func (v transactionView) FindPublicOrganism(id string) (PublicOrganism, bool) {
	p, ok := v.state.public[id]
	if !ok {
		return PublicOrganism{}, false
	}
	return clonePublic(p), true
}

func (v transactionView) ListBreedingUnits() []BreedingUnit {
	return sortedBreeding(v.state.breeding)
}

func (v transactionView) FindBreedingUnit(id string) (BreedingUnit, bool) {
	b, ok := v.state.breeding[id]
	if !ok {
		return BreedingUnit{}, false
	}
	return cloneBreeding(b), true
}

// RunInTransaction executes fn within a transactional copy of the store state.
// Rules are evaluated against the mutated copy; blocking violations discard it.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(newTransactionView(&snapshot))
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindOrganism exposes organism lookup within the transaction scope.
func (tx *transaction) FindOrganism(id string) (Organism, bool) {
	return transactionView{state: &tx.state}.FindOrganism(id)
}

// FindPublicOrganism exposes mirror lookup within the transaction scope.
func (tx *transaction) FindPublicOrganism(id string) (PublicOrganism, bool) {
	return transactionView{state: &tx.state}.FindPublicOrganism(id)
}

// CreateOrganism stores a new organism within the transaction.
func (tx *transaction) CreateOrganism(o Organism) (Organism, error) {
	if o.ID == "" {
		o.ID = tx.store.newID()
	}
	if _, exists := tx.state.organisms[o.ID]; exists {
		return Organism{}, fmt.Errorf("organism %q already exists", o.ID)
	}
	o.CreatedAt = tx.now
	o.UpdatedAt = tx.now
	tx.state.organisms[o.ID] = cloneOrganism(o)
	tx.recordChange(Change{Entity: domain.EntityOrganism, Action: domain.ActionCreate, After: cloneOrganism(o)})
	return cloneOrganism(o), nil
}

// UpdateOrganism mutates an organism using the provided mutator function.
func (tx *transaction) UpdateOrganism(id string, mutator func(*Organism) error) (Organism, error) {
	current, ok := tx.state.organisms[id]
	if !ok {
		return Organism{}, fmt.Errorf("organism %q not found", id)
	}
	before := cloneOrganism(current)
	if err := mutator(&current); err != nil {
		return Organism{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.organisms[id] = cloneOrganism(current)
	tx.recordChange(Change{Entity: domain.EntityOrganism, Action: domain.ActionUpdate, Before: before, After: cloneOrganism(current)})
	return cloneOrganism(current), nil
}

// DeleteOrganism removes an organism. Organisms still referenced by a
// breeding unit cannot be deleted; the mirror record goes with the organism.
func (tx *transaction) DeleteOrganism(id string) error {
	current, ok := tx.state.organisms[id]
	if !ok {
		return fmt.Errorf("organism %q not found", id)
	}
	for _, unit := range tx.state.breeding {
		if containsString(unit.FemaleIDs, id) || containsString(unit.MaleIDs, id) {
			return fmt.Errorf("organism %q still referenced by breeding unit %q", id, unit.ID)
		}
	}
	delete(tx.state.organisms, id)
	tx.recordChange(Change{Entity: domain.EntityOrganism, Action: domain.ActionDelete, Before: cloneOrganism(current)})
	if mirror, ok := tx.state.public[id]; ok {
		delete(tx.state.public, id)
		tx.recordChange(Change{Entity: domain.EntityPublicOrganism, Action: domain.ActionDelete, Before: clonePublic(mirror)})
	}
	return nil
}

// CreatePublicOrganism stores the mirror of an existing organism.
func (tx *transaction) CreatePublicOrganism(p PublicOrganism) (PublicOrganism, error) {
	if p.ID == "" {
		return PublicOrganism{}, fmt.Errorf("public organism requires the id of its organism")
	}
	if _, ok := tx.state.organisms[p.ID]; !ok {
		return PublicOrganism{}, fmt.Errorf("organism %q not found", p.ID)
	}
	if _, exists := tx.state.public[p.ID]; exists {
		return PublicOrganism{}, fmt.Errorf("public organism %q already exists", p.ID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.public[p.ID] = clonePublic(p)
	tx.recordChange(Change{Entity: domain.EntityPublicOrganism, Action: domain.ActionCreate, After: clonePublic(p)})
	return clonePublic(p), nil
}

// UpdatePublicOrganism mutates a mirror record.
func (tx *transaction) UpdatePublicOrganism(id string, mutator func(*PublicOrganism) error) (PublicOrganism, error) {
	current, ok := tx.state.public[id]
	if !ok {
		return PublicOrganism{}, fmt.Errorf("public organism %q not found", id)
	}
	before := clonePublic(current)
	if err := mutator(&current); err != nil {
		return PublicOrganism{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.public[id] = clonePublic(current)
	tx.recordChange(Change{Entity: domain.EntityPublicOrganism, Action: domain.ActionUpdate, Before: before, After: clonePublic(current)})
	return clonePublic(current), nil
}

// DeletePublicOrganism removes a mirror record.
func (tx *transaction) DeletePublicOrganism(id string) error {
	current, ok := tx.state.public[id]
	if !ok {
		return fmt.Errorf("public organism %q not found", id)
	}
	delete(tx.state.public, id)
	tx.recordChange(Change{Entity: domain.EntityPublicOrganism, Action: domain.ActionDelete, Before: clonePublic(current)})
	return nil
}

// CreateBreedingUnit stores a breeding configuration.
func (tx *transaction) CreateBreedingUnit(b BreedingUnit) (BreedingUnit, error) {
	if b.ID == "" {
		b.ID = tx.store.newID()
	}
	if _, exists := tx.state.breeding[b.ID]; exists {
		return BreedingUnit{}, fmt.Errorf("breeding unit %q already exists", b.ID)
	}
	b.FemaleIDs = dedupeStrings(b.FemaleIDs)
	b.MaleIDs = dedupeStrings(b.MaleIDs)
	b.CreatedAt = tx.now
	b.UpdatedAt = tx.now
	tx.state.breeding[b.ID] = cloneBreeding(b)
	tx.recordChange(Change{Entity: domain.EntityBreeding, Action: domain.ActionCreate, After: cloneBreeding(b)})
	return cloneBreeding(b), nil
}

// UpdateBreedingUnit mutates a breeding unit.
func (tx *transaction) UpdateBreedingUnit(id string, mutator func(*BreedingUnit) error) (BreedingUnit, error) {
	current, ok := tx.state.breeding[id]
	if !ok {
		return BreedingUnit{}, fmt.Errorf("breeding unit %q not found", id)
	}
	before := cloneBreeding(current)
	if err := mutator(&current); err != nil {
		return BreedingUnit{}, err
	}
	current.ID = id
	current.FemaleIDs = dedupeStrings(current.FemaleIDs)
	current.MaleIDs = dedupeStrings(current.MaleIDs)
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.breeding[id] = cloneBreeding(current)
	tx.recordChange(Change{Entity: domain.EntityBreeding, Action: domain.ActionUpdate, Before: before, After: cloneBreeding(current)})
	return cloneBreeding(current), nil
}

// DeleteBreedingUnit removes a breeding unit.
func (tx *transaction) DeleteBreedingUnit(id string) error {
	current, ok := tx.state.breeding[id]
	if !ok {
		return fmt.Errorf("breeding unit %q not found", id)
	}
	delete(tx.state.breeding, id)
	tx.recordChange(Change{Entity: domain.EntityBreeding, Action: domain.ActionDelete, Before: cloneBreeding(current)})
	return nil
}

// Read helpers ---------------------------------------------------------------

// GetOrganism retrieves an organism by ID from committed state.
func (s *Store) GetOrganism(id string) (Organism, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.state.organisms[id]
	if !ok {
		return Organism{}, false
	}
	return cloneOrganism(o), true
}

// ListOrganisms returns all organisms from committed state ordered by id.
func (s *Store) ListOrganisms() []Organism {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedOrganisms(s.state.organisms)
}

// GetPublicOrganism retrieves a mirror record by organism ID.
func (s *Store) GetPublicOrganism(id string) (PublicOrganism, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.public[id]
	if !ok {
		return PublicOrganism{}, false
	}
	return clonePublic(p), true
}

// ListPublicOrganisms returns all mirror records ordered by id.
func (s *Store) ListPublicOrganisms() []PublicOrganism {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PublicOrganism, 0, len(s.state.public))
	for _, p := range s.state.public {
		out = append(out, clonePublic(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetBreedingUnit retrieves a breeding unit by ID.
func (s *Store) GetBreedingUnit(id string) (BreedingUnit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.state.breeding[id]
	if !ok {
		return BreedingUnit{}, false
	}
	return cloneBreeding(b), true
}

// ListBreedingUnits returns all breeding units ordered by id.
func (s *Store) ListBreedingUnits() []BreedingUnit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedBreeding(s.state.breeding)
}

func sortedOrganisms(in map[string]Organism) []Organism {
	out := make([]Organism, 0, len(in))
	for _, o := range in {
		out = append(out, cloneOrganism(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedBreeding(in map[string]BreedingUnit) []BreedingUnit {
	out := make([]BreedingUnit, 0, len(in))
	for _, b := range in {
		out = append(out, cloneBreeding(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func containsString(values []string, id string) bool {
	for _, v := range values {
		if v == id {
			return true
		}
	}
	return false
}
