package pedigree

import (
	"context"
	"fmt"
)

// Node is one position in an unrolled pedigree tree. The same id may appear
// at several positions; every position is a distinct inheritance path.
type Node struct {
	ID   string
	Name string
	Sire *Node
	Dam  *Node
	// Inbreeding is the node's own coefficient as a fraction. It is always
	// zero today; persisted coefficients are not read back into the tree.
	Inbreeding float64
}

// BuildTree materializes the ancestry of id down to depth generations,
// counting id itself as the first. It returns nil when id is empty, depth is
// exhausted, or the record cannot be found.
//
// visited holds the ids on the current root-to-node path. An id that is
// already on the path yields a terminal node without a lookup, which stops
// self-referencing records from recursing forever while still letting the id
// take part in ancestor matching. Entries are removed again on the way out, so
// sibling branches may revisit the same ancestor. A nil map is allowed.
func BuildTree(ctx context.Context, id string, f Fetcher, depth int, visited map[string]struct{}) (*Node, error) {
	if id == "" || depth <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, onPath := visited[id]; onPath {
		return &Node{ID: id}, nil
	}

	rec, ok, err := f.Lookup(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", id, err)
	}
	if !ok {
		return nil, nil
	}

	if visited == nil {
		visited = make(map[string]struct{})
	}
	visited[id] = struct{}{}
	defer delete(visited, id)

	node := &Node{ID: id, Name: rec.Name}
	if node.Sire, err = BuildTree(ctx, rec.SireID, f, depth-1, visited); err != nil {
		return nil, err
	}
	if node.Dam, err = BuildTree(ctx, rec.DamID, f, depth-1, visited); err != nil {
		return nil, err
	}
	return node, nil
}

// Flatten returns every node reachable from root, root first, then the sire
// subtree, then the dam subtree.
func Flatten(root *Node) []*Node {
	var out []*Node
	var walk func(*Node)
	walk = func(n *Node) {
		if n == nil {
			return
		}
		out = append(out, n)
		walk(n.Sire)
		walk(n.Dam)
	}
	walk(root)
	return out
}

// Depth returns the number of generations present below and including root.
func (n *Node) Depth() int {
	if n == nil {
		return 0
	}
	return 1 + max(n.Sire.Depth(), n.Dam.Depth())
}
