package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateOrganism(Organism) (Organism, error)
	UpdateOrganism(id string, mutator func(*Organism) error) (Organism, error)
	DeleteOrganism(id string) error
	CreatePublicOrganism(PublicOrganism) (PublicOrganism, error)
	UpdatePublicOrganism(id string, mutator func(*PublicOrganism) error) (PublicOrganism, error)
	DeletePublicOrganism(id string) error
	CreateBreedingUnit(BreedingUnit) (BreedingUnit, error)
	UpdateBreedingUnit(id string, mutator func(*BreedingUnit) error) (BreedingUnit, error)
	DeleteBreedingUnit(id string) error
	FindOrganism(id string) (Organism, bool)
	FindPublicOrganism(id string) (PublicOrganism, bool)
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	RuleView
	FindPublicOrganism(id string) (PublicOrganism, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetOrganism(id string) (Organism, bool)
	ListOrganisms() []Organism
	GetPublicOrganism(id string) (PublicOrganism, bool)
	ListPublicOrganisms() []PublicOrganism
	GetBreedingUnit(id string) (BreedingUnit, bool)
	ListBreedingUnits() []BreedingUnit
}
