package pedigree

import "context"

// Paths enumerates every path of ids from root down to target, both ends
// included. A branch stops at its first match: occurrences of target further
// below a matching node are not visited. Repeated ancestors on different
// branches each contribute their own path.
func Paths(root *Node, target string) [][]string {
	if root == nil {
		return nil
	}
	if root.ID == target {
		return [][]string{{target}}
	}
	var out [][]string
	for _, child := range [2]*Node{root.Sire, root.Dam} {
		for _, tail := range Paths(child, target) {
			path := make([]string, 0, len(tail)+1)
			path = append(path, root.ID)
			out = append(out, append(path, tail...))
		}
	}
	return out
}

// PathSum aggregates the paths Paths would return without materializing
// them. Weight is the sum of (1/2)^(len(path)-1) over every path.
type PathSum struct {
	Count  int
	Weight float64
}

// ctxCheckInterval is the number of nodes SumPaths visits between
// cancellation checks.
const ctxCheckInterval = 256

// SumPaths walks root once and returns the count and generation weight of
// the paths from root to target, following the same first-match rule as
// Paths. It stops with ctx's error when ctx is done.
func SumPaths(ctx context.Context, root *Node, target string) (PathSum, error) {
	if err := ctx.Err(); err != nil {
		return PathSum{}, err
	}
	visits := 0
	var walk func(n *Node) (PathSum, error)
	walk = func(n *Node) (PathSum, error) {
		if n == nil {
			return PathSum{}, nil
		}
		if n.ID == target {
			return PathSum{Count: 1, Weight: 1}, nil
		}
		visits++
		if visits%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return PathSum{}, err
			}
		}
		sire, err := walk(n.Sire)
		if err != nil {
			return PathSum{}, err
		}
		dam, err := walk(n.Dam)
		if err != nil {
			return PathSum{}, err
		}
		return PathSum{Count: sire.Count + dam.Count, Weight: (sire.Weight + dam.Weight) / 2}, nil
	}
	return walk(root)
}
