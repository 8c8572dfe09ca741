package recordsource

import (
	"context"

	"golang.org/x/time/rate"

	"pedigreecore/internal/pedigree"
)

// Throttled bounds the rate of lookups reaching the inner Fetcher.
type Throttled struct {
	inner   pedigree.Fetcher
	limiter *rate.Limiter
}

// NewThrottled allows perSecond lookups per second with a burst of one.
// A non-positive rate disables throttling and returns inner unchanged.
func NewThrottled(inner pedigree.Fetcher, perSecond float64) pedigree.Fetcher {
	if perSecond <= 0 {
		return inner
	}
	return &Throttled{inner: inner, limiter: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

// Lookup waits for a limiter token, then delegates.
func (t *Throttled) Lookup(ctx context.Context, id string) (pedigree.Record, bool, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return pedigree.Record{}, false, err
	}
	return t.inner.Lookup(ctx, id)
}
