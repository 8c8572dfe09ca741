package pedigree

// CommonAncestor is an individual present on both sides of a pedigree.
type CommonAncestor struct {
	ID         string  `json:"id"`
	Name       string  `json:"name,omitempty"`
	Inbreeding float64 `json:"inbreeding"`
}

// FindCommonAncestors returns one entry per id that occurs in both subtrees,
// in sire-side pre-order. When an id repeats within the sire side, the first
// occurrence supplies the entry. Either subtree being nil yields nil.
func FindCommonAncestors(sire, dam *Node) []CommonAncestor {
	if sire == nil || dam == nil {
		return nil
	}
	damIDs := make(map[string]struct{})
	for _, n := range Flatten(dam) {
		damIDs[n.ID] = struct{}{}
	}

	var out []CommonAncestor
	seen := make(map[string]struct{})
	for _, n := range Flatten(sire) {
		if _, shared := damIDs[n.ID]; !shared {
			continue
		}
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		out = append(out, CommonAncestor{ID: n.ID, Name: n.Name, Inbreeding: n.Inbreeding})
	}
	return out
}
