package pedigree

import (
	"context"
	"errors"
	"math"
)

// Default depth bounds for the two query shapes. They are independent
// settings and are not normalized against each other.
const (
	DefaultIndividualDepth = 50
	DefaultPairingDepth    = 5
)

// Rounding precision, in decimal places, of the returned percentages.
const (
	IndividualPrecision = 2
	PairingPrecision    = 4
)

// ErrDepth is returned for negative depth bounds.
var ErrDepth = errors.New("pedigree: depth bound must not be negative")

// Contribution is the share of the coefficient owed to one common ancestor.
type Contribution struct {
	Ancestor  CommonAncestor `json:"ancestor"`
	SirePaths int            `json:"sire_paths"`
	DamPaths  int            `json:"dam_paths"`
	// Fraction is the unrounded contribution as a fraction of one.
	Fraction float64 `json:"fraction"`
}

// Breakdown explains a coefficient through its per-ancestor contributions.
type Breakdown struct {
	SireID        string         `json:"sire_id"`
	DamID         string         `json:"dam_id"`
	Depth         int            `json:"depth"`
	Contributions []Contribution `json:"contributions"`
	// Percentage is the unrounded sum of all contributions times 100.
	Percentage float64 `json:"percentage"`
}

// Calculator applies Wright's formula to pedigrees read through a Fetcher.
// It holds no per-call state and is safe for concurrent use when the Fetcher is.
type Calculator struct {
	fetcher Fetcher
}

// NewCalculator returns a Calculator reading records from f.
func NewCalculator(f Fetcher) *Calculator {
	return &Calculator{fetcher: f}
}

// Individual returns the coefficient of inbreeding of id as a percentage
// rounded to two decimals. A missing id, a missing record, a missing parent
// lineage or the absence of shared ancestors all give 0.
func (c *Calculator) Individual(ctx context.Context, id string, depth int) (float64, error) {
	if depth < 0 {
		return 0, ErrDepth
	}
	root, err := BuildTree(ctx, id, c.fetcher, depth, nil)
	if err != nil || root == nil || root.Sire == nil || root.Dam == nil {
		return 0, err
	}
	contributions, err := contributionsOf(ctx, root.Sire, root.Dam, root.ID)
	if err != nil {
		return 0, err
	}
	return Round(sumPercentage(contributions), IndividualPrecision), nil
}

// Pairing returns the coefficient an offspring of sireID and damID would
// have, as a percentage rounded to four decimals. Each parent's tree is
// built independently to depth generations.
func (c *Calculator) Pairing(ctx context.Context, sireID, damID string, depth int) (float64, error) {
	b, err := c.Explain(ctx, sireID, damID, depth)
	if err != nil {
		return 0, err
	}
	return Round(b.Percentage, PairingPrecision), nil
}

// Explain computes the pairing coefficient of sireID and damID and reports
// how each common ancestor contributes to it.
func (c *Calculator) Explain(ctx context.Context, sireID, damID string, depth int) (Breakdown, error) {
	b := Breakdown{SireID: sireID, DamID: damID, Depth: depth}
	if depth < 0 {
		return b, ErrDepth
	}
	if sireID == "" || damID == "" {
		return b, nil
	}
	sire, err := BuildTree(ctx, sireID, c.fetcher, depth, nil)
	if err != nil {
		return b, err
	}
	dam, err := BuildTree(ctx, damID, c.fetcher, depth, nil)
	if err != nil {
		return b, err
	}
	if sire == nil || dam == nil {
		return b, nil
	}
	if b.Contributions, err = contributionsOf(ctx, sire, dam, ""); err != nil {
		return b, err
	}
	b.Percentage = sumPercentage(b.Contributions)
	return b, nil
}

// contributionsOf evaluates Wright's formula for every ancestor shared by
// the two subtrees. exclude names an id that may never count as its own
// ancestor.
//
// A path of k ids spans k-1 generations, so a (sire path, dam path) pair
// contributes (1/2)^(n1+n2+1) * (1+F) with n1 = len(sirePath)-1 and
// n2 = len(damPath)-1. Summed over all pairs this factors into
// (1/2) * W(sire) * W(dam) * (1+F), where W is the PathSum weight of a side,
// so each ancestor costs one walk per subtree.
func contributionsOf(ctx context.Context, sire, dam *Node, exclude string) ([]Contribution, error) {
	var out []Contribution
	for _, anc := range FindCommonAncestors(sire, dam) {
		if anc.ID == exclude {
			continue
		}
		sirePaths, err := SumPaths(ctx, sire, anc.ID)
		if err != nil {
			return nil, err
		}
		damPaths, err := SumPaths(ctx, dam, anc.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, Contribution{
			Ancestor:  anc,
			SirePaths: sirePaths.Count,
			DamPaths:  damPaths.Count,
			Fraction:  0.5 * sirePaths.Weight * damPaths.Weight * (1 + anc.Inbreeding),
		})
	}
	return out, nil
}

func sumPercentage(contributions []Contribution) float64 {
	var total float64
	for _, c := range contributions {
		total += c.Fraction
	}
	return total * 100
}

// Round rounds v half away from zero to the given number of decimal places.
func Round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
