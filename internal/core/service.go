package core

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"pedigreecore/internal/pedigree"
	"pedigreecore/internal/recompute"
	"pedigreecore/internal/recordsource"
	"pedigreecore/pkg/domain"
)

// Service exposes coefficient queries and transactional record operations
// over a persistent store.
type Service struct {
	store           PersistentStore
	fetcher         pedigree.Fetcher
	calc            *pedigree.Calculator
	individualDepth int
	pairingDepth    int
	log             logrus.FieldLogger
	metrics         MetricsRecorder
	newID           func() string
}

// Option configures a Service.
type Option func(*Service)

// WithFetcher replaces the record source used by coefficient queries. The
// default reads committed organisms from the store. A fetcher with a
// Forget(id) method is told about every organism the service changes.
func WithFetcher(f pedigree.Fetcher) Option {
	return func(s *Service) {
		if f != nil {
			s.fetcher = f
		}
	}
}

// WithLogger sets the logger; the default discards output.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics records one observation per operation.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) { s.metrics = m }
}

// WithDepths sets the defaults used when a query passes depth 0. The two
// defaults are independent; non-positive values keep the built-in default.
func WithDepths(individual, pairing int) Option {
	return func(s *Service) {
		if individual > 0 {
			s.individualDepth = individual
		}
		if pairing > 0 {
			s.pairingDepth = pairing
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	s := &Service{
		store:           store,
		fetcher:         recordsource.Store(store),
		individualDepth: pedigree.DefaultIndividualDepth,
		pairingDepth:    pedigree.DefaultPairingDepth,
		log:             discard,
		newID:           uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.calc = pedigree.NewCalculator(s.fetcher)
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// Calculator returns the engine bound to the service's record source.
func (s *Service) Calculator() *pedigree.Calculator {
	return s.calc
}

// Depths returns the effective default depth bounds.
func (s *Service) Depths() (individual, pairing int) {
	return s.individualDepth, s.pairingDepth
}

// ErrNotFound indicates the requested record does not exist.
type ErrNotFound struct {
	Entity domain.EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// IndividualResult is the single-individual query response.
type IndividualResult struct {
	ID                    string  `json:"id"`
	InbreedingCoefficient float64 `json:"inbreedingCoefficient"`
}

// PairingResult is the hypothetical-mating query response.
type PairingResult struct {
	SireID                string  `json:"sireId"`
	DamID                 string  `json:"damId"`
	InbreedingCoefficient float64 `json:"inbreedingCoefficient"`
}

// BreedingUnitEvaluation lists the pairing coefficient of every male x female
// combination in a breeding unit.
type BreedingUnitEvaluation struct {
	UnitID   string          `json:"unitId"`
	Depth    int             `json:"depth"`
	Pairings []PairingResult `json:"pairings"`
}

func (s *Service) observe(ctx context.Context, operation string, started time.Time, err error) {
	if s.metrics != nil {
		s.metrics.Observe(ctx, operation, err == nil, time.Since(started))
	}
	if err != nil {
		s.log.WithField("operation", operation).WithError(err).Debug("operation failed")
	}
}

func resolveDepth(depth, fallback int) int {
	if depth == 0 {
		return fallback
	}
	return depth
}

// Inbreeding returns the coefficient of id. Depth 0 selects the configured
// individual default. Unknown ids report 0.
func (s *Service) Inbreeding(ctx context.Context, id string, depth int) (result IndividualResult, err error) {
	started := time.Now()
	defer func() { s.observe(ctx, "inbreeding", started, err) }()
	result.ID = id
	result.InbreedingCoefficient, err = s.calc.Individual(ctx, id, resolveDepth(depth, s.individualDepth))
	return result, err
}

// Pairing returns the coefficient an offspring of sireID and damID would
// have. Depth 0 selects the configured pairing default.
func (s *Service) Pairing(ctx context.Context, sireID, damID string, depth int) (result PairingResult, err error) {
	started := time.Now()
	defer func() { s.observe(ctx, "pairing", started, err) }()
	result.SireID, result.DamID = sireID, damID
	result.InbreedingCoefficient, err = s.calc.Pairing(ctx, sireID, damID, resolveDepth(depth, s.pairingDepth))
	return result, err
}

// Explain returns the per-ancestor breakdown of a pairing coefficient.
func (s *Service) Explain(ctx context.Context, sireID, damID string, depth int) (b pedigree.Breakdown, err error) {
	started := time.Now()
	defer func() { s.observe(ctx, "explain", started, err) }()
	return s.calc.Explain(ctx, sireID, damID, resolveDepth(depth, s.pairingDepth))
}

// EvaluateBreedingUnit computes the pairing coefficient of every male x
// female combination of a breeding unit.
func (s *Service) EvaluateBreedingUnit(ctx context.Context, id string, depth int) (eval BreedingUnitEvaluation, err error) {
	started := time.Now()
	defer func() { s.observe(ctx, "evaluate_breeding_unit", started, err) }()
	unit, ok := s.store.GetBreedingUnit(id)
	if !ok {
		return eval, ErrNotFound{Entity: domain.EntityBreeding, ID: id}
	}
	eval = BreedingUnitEvaluation{UnitID: id, Depth: resolveDepth(depth, s.pairingDepth), Pairings: []PairingResult{}}
	for _, male := range unit.MaleIDs {
		for _, female := range unit.FemaleIDs {
			coi, err := s.calc.Pairing(ctx, male, female, eval.Depth)
			if err != nil {
				return eval, fmt.Errorf("pairing %s x %s: %w", male, female, err)
			}
			eval.Pairings = append(eval.Pairings, PairingResult{SireID: male, DamID: female, InbreedingCoefficient: coi})
		}
	}
	return eval, nil
}

// WriteCoefficient stores value on the organism and, when one exists, on its
// public mirror, in one transaction. It reports whether a mirror was updated.
func (s *Service) WriteCoefficient(ctx context.Context, id string, value float64) (mirrored bool, err error) {
	started := time.Now()
	defer func() { s.observe(ctx, "write_coefficient", started, err) }()
	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		mirrored = false
		if _, ok := tx.FindOrganism(id); !ok {
			return ErrNotFound{Entity: domain.EntityOrganism, ID: id}
		}
		if _, err := tx.UpdateOrganism(id, func(o *Organism) error {
			o.InbreedingCoefficient = &value
			return nil
		}); err != nil {
			return err
		}
		if _, ok := tx.FindPublicOrganism(id); !ok {
			return nil
		}
		if _, err := tx.UpdatePublicOrganism(id, func(p *PublicOrganism) error {
			p.InbreedingCoefficient = &value
			return nil
		}); err != nil {
			return err
		}
		mirrored = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return mirrored, nil
}

// Population returns every stored organism as a recompute subject carrying
// its cached coefficient.
func (s *Service) Population(ctx context.Context) (out []recompute.Subject, err error) {
	started := time.Now()
	defer func() { s.observe(ctx, "population", started, err) }()
	err = s.store.View(ctx, func(v TransactionView) error {
		organisms := v.ListOrganisms()
		out = make([]recompute.Subject, 0, len(organisms))
		for _, org := range organisms {
			out = append(out, recompute.Subject{Record: recordsource.ToRecord(org), Current: org.InbreedingCoefficient})
		}
		return nil
	})
	return out, err
}

// CreateOrganism persists a new organism.
func (s *Service) CreateOrganism(ctx context.Context, organism Organism) (Organism, Result, error) {
	var created Organism
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateOrganism(organism)
		return err
	})
	if err == nil {
		s.forget(created.ID)
	}
	return created, res, err
}

// UpdateOrganism mutates an organism using the provided mutator.
func (s *Service) UpdateOrganism(ctx context.Context, id string, mutator func(*Organism) error) (Organism, Result, error) {
	var updated Organism
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, ok := tx.FindOrganism(id); !ok {
			return ErrNotFound{Entity: domain.EntityOrganism, ID: id}
		}
		var err error
		updated, err = tx.UpdateOrganism(id, mutator)
		return err
	})
	if err == nil {
		s.forget(id)
	}
	return updated, res, err
}

// DeleteOrganism removes an organism record and its public mirror.
func (s *Service) DeleteOrganism(ctx context.Context, id string) (Result, error) {
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, ok := tx.FindOrganism(id); !ok {
			return ErrNotFound{Entity: domain.EntityOrganism, ID: id}
		}
		return tx.DeleteOrganism(id)
	})
	if err == nil {
		s.forget(id)
	}
	return res, err
}

// PublishOrganism creates the public mirror of an existing organism.
func (s *Service) PublishOrganism(ctx context.Context, id string) (PublicOrganism, Result, error) {
	var created PublicOrganism
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		org, ok := tx.FindOrganism(id)
		if !ok {
			return ErrNotFound{Entity: domain.EntityOrganism, ID: id}
		}
		var err error
		created, err = tx.CreatePublicOrganism(mirrorOf(org))
		return err
	})
	return created, res, err
}

// CreateBreedingUnit persists a breeding unit. Lineage and pairing rules run
// against it before commit.
func (s *Service) CreateBreedingUnit(ctx context.Context, unit BreedingUnit) (BreedingUnit, Result, error) {
	var created BreedingUnit
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateBreedingUnit(unit)
		return err
	})
	return created, res, err
}

// Dataset is a batch of records to import.
type Dataset struct {
	Organisms     []Organism     `json:"organisms"`
	BreedingUnits []BreedingUnit `json:"breeding_units"`
}

// ImportSummary counts the records an import created.
type ImportSummary struct {
	Organisms       int `json:"organisms"`
	PublicOrganisms int `json:"public_organisms"`
	BreedingUnits   int `json:"breeding_units"`
}

// Import creates every record of ds in a single transaction. Organisms
// without an id are assigned one; organisms flagged public also get a mirror.
// Parents may appear after their offspring in ds.
func (s *Service) Import(ctx context.Context, ds Dataset) (summary ImportSummary, res Result, err error) {
	started := time.Now()
	defer func() { s.observe(ctx, "import", started, err) }()
	var created []string
	res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		summary, created = ImportSummary{}, created[:0]
		for _, org := range ds.Organisms {
			if org.ID == "" {
				org.ID = s.newID()
			}
			stored, err := tx.CreateOrganism(org)
			if err != nil {
				return fmt.Errorf("import organism %s: %w", org.ID, err)
			}
			created = append(created, stored.ID)
			summary.Organisms++
			if !stored.Public {
				continue
			}
			if _, err := tx.CreatePublicOrganism(mirrorOf(stored)); err != nil {
				return fmt.Errorf("import public organism %s: %w", stored.ID, err)
			}
			summary.PublicOrganisms++
		}
		for _, unit := range ds.BreedingUnits {
			if unit.ID == "" {
				unit.ID = s.newID()
			}
			if _, err := tx.CreateBreedingUnit(unit); err != nil {
				return fmt.Errorf("import breeding unit %s: %w", unit.ID, err)
			}
			summary.BreedingUnits++
		}
		return nil
	})
	if err != nil {
		return ImportSummary{}, res, err
	}
	for _, id := range created {
		s.forget(id)
	}
	s.log.WithFields(logrus.Fields{
		"organisms":        summary.Organisms,
		"public_organisms": summary.PublicOrganisms,
		"breeding_units":   summary.BreedingUnits,
		"warnings":         len(res.Violations),
	}).Info("import committed")
	return summary, res, nil
}

func mirrorOf(org Organism) PublicOrganism {
	p := PublicOrganism{Name: org.Name, Species: org.Species}
	p.ID = org.ID
	if org.InbreedingCoefficient != nil {
		v := *org.InbreedingCoefficient
		p.InbreedingCoefficient = &v
	}
	return p
}

type forgetter interface {
	Forget(id string)
}

func (s *Service) forget(id string) {
	if f, ok := s.fetcher.(forgetter); ok {
		f.Forget(id)
	}
}
