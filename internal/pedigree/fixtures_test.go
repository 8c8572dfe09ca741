package pedigree

import (
	"context"
	"fmt"
	"math"
	"sync"
)

func rec(id, sire, dam string) Record {
	return Record{ID: id, SireID: sire, DamID: dam, Name: "name-" + id}
}

// literalPopulation is the two-founder full-sibling scenario:
// S x D -> A, B; A x B -> X.
func literalPopulation() Population {
	return NewPopulation(
		rec("S", "", ""),
		rec("D", "", ""),
		rec("A", "S", "D"),
		rec("B", "S", "D"),
		rec("X", "A", "B"),
	)
}

// countingFetcher records how many times each id was looked up.
type countingFetcher struct {
	mu    sync.Mutex
	inner Fetcher
	calls map[string]int
}

func newCountingFetcher(inner Fetcher) *countingFetcher {
	return &countingFetcher{inner: inner, calls: make(map[string]int)}
}

func (c *countingFetcher) Lookup(ctx context.Context, id string) (Record, bool, error) {
	c.mu.Lock()
	c.calls[id]++
	c.mu.Unlock()
	return c.inner.Lookup(ctx, id)
}

func (c *countingFetcher) count(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[id]
}

// fullSibLine breeds full siblings for the given number of generations:
// a0 and b0 are founders, and a<g> and b<g> are both offspring of
// a<g-1> x b<g-1>.
func fullSibLine(generations int) Population {
	pop := NewPopulation(rec("a0", "", ""), rec("b0", "", ""))
	for g := 1; g <= generations; g++ {
		sire, dam := fmt.Sprintf("a%d", g-1), fmt.Sprintf("b%d", g-1)
		pop[fmt.Sprintf("a%d", g)] = rec(fmt.Sprintf("a%d", g), sire, dam)
		pop[fmt.Sprintf("b%d", g)] = rec(fmt.Sprintf("b%d", g), sire, dam)
	}
	return pop
}

// enumeratedPercentage applies Wright's formula pair by pair over the
// explicit path lists.
func enumeratedPercentage(sire, dam *Node) float64 {
	var total float64
	for _, anc := range FindCommonAncestors(sire, dam) {
		for _, sp := range Paths(sire, anc.ID) {
			for _, dp := range Paths(dam, anc.ID) {
				total += math.Pow(0.5, float64(len(sp)-1+len(dp)-1+1))
			}
		}
	}
	return total * 100
}

// countdownCtx reports cancellation once Err has been called more than
// allowed times.
type countdownCtx struct {
	context.Context
	allowed int
}

func (c *countdownCtx) Err() error {
	if c.allowed <= 0 {
		return context.Canceled
	}
	c.allowed--
	return nil
}
