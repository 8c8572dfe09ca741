// Package recordsource adapts colony persistence to the pedigree engine's
// Fetcher contract and layers caching and throttling on top of any Fetcher.
package recordsource

import (
	"context"

	"pedigreecore/internal/pedigree"
	"pedigreecore/pkg/domain"
)

// FindFunc resolves an organism by id. Both domain.PersistentStore.GetOrganism
// and domain.RuleView.FindOrganism satisfy it.
type FindFunc func(id string) (domain.Organism, bool)

// Organisms returns a Fetcher backed by find. Parent aliases have already been
// folded into SireID/DamID when the organism was decoded, so the record is
// built from the canonical fields only.
func Organisms(find FindFunc) pedigree.Fetcher {
	return pedigree.FetchFunc(func(ctx context.Context, id string) (pedigree.Record, bool, error) {
		if err := ctx.Err(); err != nil {
			return pedigree.Record{}, false, err
		}
		org, ok := find(id)
		if !ok {
			return pedigree.Record{}, false, nil
		}
		return ToRecord(org), true, nil
	})
}

// ToRecord converts an organism into the engine's canonical record.
func ToRecord(org domain.Organism) pedigree.Record {
	sire, dam := org.Parents()
	return pedigree.Record{ID: org.ID, SireID: sire, DamID: dam, Name: org.Name}
}

// Store returns a Fetcher reading committed organisms from store.
func Store(store domain.PersistentStore) pedigree.Fetcher {
	return Organisms(store.GetOrganism)
}

// Layered wraps inner with a lookup limiter and then an LRU cache, so cache
// hits never wait on the limiter. A non-positive perSecond disables the
// limiter and a non-positive cacheSize disables the cache.
func Layered(inner pedigree.Fetcher, cacheSize int, perSecond float64) (pedigree.Fetcher, error) {
	f := NewThrottled(inner, perSecond)
	if cacheSize <= 0 {
		return f, nil
	}
	return NewCached(f, cacheSize)
}
