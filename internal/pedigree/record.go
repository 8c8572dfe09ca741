// Package pedigree computes Wright's coefficient of inbreeding from parent
// linkage supplied by an external record source.
//
// The engine is deliberately storage agnostic: it only sees Record values
// returned by a Fetcher. Absent ids, unresolved lookups and dangling parent
// references truncate the pedigree instead of producing errors; only errors
// raised by the Fetcher itself (or context cancellation) propagate.
package pedigree

import "context"

// Record is the canonical parent linkage for one individual. Empty SireID or
// DamID means the parent is unknown.
type Record struct {
	ID     string `json:"id"`
	SireID string `json:"sire_id,omitempty"`
	DamID  string `json:"dam_id,omitempty"`
	Name   string `json:"name,omitempty"`
}

// Fetcher resolves an id to its Record. ok is false when the id is unknown;
// err is reserved for failures of the source itself.
type Fetcher interface {
	Lookup(ctx context.Context, id string) (rec Record, ok bool, err error)
}

// FetchFunc adapts a function to the Fetcher interface.
type FetchFunc func(ctx context.Context, id string) (Record, bool, error)

// Lookup calls f.
func (f FetchFunc) Lookup(ctx context.Context, id string) (Record, bool, error) {
	return f(ctx, id)
}

// Population is an in-memory Fetcher keyed by id.
type Population map[string]Record

// NewPopulation indexes records by id. Later duplicates replace earlier ones.
func NewPopulation(records ...Record) Population {
	p := make(Population, len(records))
	for _, rec := range records {
		p[rec.ID] = rec
	}
	return p
}

// Lookup returns the record stored under id.
func (p Population) Lookup(_ context.Context, id string) (Record, bool, error) {
	rec, ok := p[id]
	return rec, ok, nil
}
