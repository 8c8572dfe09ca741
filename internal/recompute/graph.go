// Package recompute drives population-wide inbreeding coefficient refreshes.
// Individuals are processed one at a time in parent-before-child order; a
// per-item timeout isolates pathological pedigrees and failures never abort
// the run.
package recompute

import "pedigreecore/internal/pedigree"

// Graph is the parent→child graph of a population. Only parents that resolve
// within the population contribute edges.
type Graph struct {
	ids      []string
	children map[string][]string
	inDegree map[string]int
	edges    int
}

// Ordering is the processing order computed by Graph.Order. Order[:Sorted]
// is a valid topological prefix; Fallback lists the individuals appended
// after it because their in-degree never reached zero.
type Ordering struct {
	Order    []string
	Sorted   int
	Fallback []string
}

// Flagged reports whether any individual had to be ordered by fallback.
func (o Ordering) Flagged() bool { return len(o.Fallback) > 0 }

// BuildGraph indexes population by id, keeping the first record of any
// duplicated id, and records one edge per distinct in-population parent.
func BuildGraph(population []pedigree.Record) *Graph {
	g := &Graph{
		children: make(map[string][]string),
		inDegree: make(map[string]int, len(population)),
	}
	var records []pedigree.Record
	for _, rec := range population {
		if rec.ID == "" {
			continue
		}
		if _, dup := g.inDegree[rec.ID]; dup {
			continue
		}
		g.inDegree[rec.ID] = 0
		g.ids = append(g.ids, rec.ID)
		records = append(records, rec)
	}
	for _, rec := range records {
		for _, parent := range distinctParents(rec) {
			if _, ok := g.inDegree[parent]; !ok {
				continue
			}
			g.children[parent] = append(g.children[parent], rec.ID)
			g.inDegree[rec.ID]++
			g.edges++
		}
	}
	return g
}

func distinctParents(rec pedigree.Record) []string {
	switch {
	case rec.SireID == "" && rec.DamID == "":
		return nil
	case rec.SireID == "":
		return []string{rec.DamID}
	case rec.DamID == "" || rec.DamID == rec.SireID:
		return []string{rec.SireID}
	default:
		return []string{rec.SireID, rec.DamID}
	}
}

// Len returns the number of distinct individuals.
func (g *Graph) Len() int { return len(g.ids) }

// EdgeCount returns the number of parent→child edges.
func (g *Graph) EdgeCount() int { return g.edges }

// Children returns the in-population offspring of id in population order.
func (g *Graph) Children(id string) []string {
	return append([]string(nil), g.children[id]...)
}

// Order runs Kahn's algorithm. Founders are seeded in population order and
// children are enqueued in the order their edges were discovered, so the
// result is deterministic for a given population. Individuals caught in a
// cycle are appended in population order and reported in Fallback.
func (g *Graph) Order() Ordering {
	inDegree := make(map[string]int, len(g.inDegree))
	for id, d := range g.inDegree {
		inDegree[id] = d
	}

	queue := make([]string, 0, len(g.ids))
	for _, id := range g.ids {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(g.ids))
	placed := make(map[string]struct{}, len(g.ids))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		placed[id] = struct{}{}
		for _, child := range g.children[id] {
			inDegree[child]--
			if inDegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	out := Ordering{Sorted: len(order)}
	for _, id := range g.ids {
		if _, ok := placed[id]; ok {
			continue
		}
		order = append(order, id)
		out.Fallback = append(out.Fallback, id)
	}
	out.Order = order
	return out
}
