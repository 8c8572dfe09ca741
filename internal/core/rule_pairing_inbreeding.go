package core

import (
	"context"
	"fmt"

	"pedigreecore/internal/pedigree"
	"pedigreecore/internal/recordsource"
	"pedigreecore/pkg/domain"
)

const pairingRuleName = "pairing_inbreeding"

// PairingInbreedingRule warns when a created or updated breeding unit pairs
// a male and a female whose offspring coefficient would exceed threshold
// percent. Pedigrees are read from the transaction view, so parents created
// in the same transaction are visible.
func PairingInbreedingRule(threshold float64, depth int) domain.Rule {
	if depth <= 0 {
		depth = pedigree.DefaultPairingDepth
	}
	return pairingInbreedingRule{threshold: threshold, depth: depth}
}

type pairingInbreedingRule struct {
	threshold float64
	depth     int
}

func (pairingInbreedingRule) Name() string { return pairingRuleName }

func (r pairingInbreedingRule) Evaluate(ctx context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	var calc *pedigree.Calculator
	for _, change := range changes {
		if change.Entity != domain.EntityBreeding || change.After == nil {
			continue
		}
		unit, ok := change.After.(domain.BreedingUnit)
		if !ok {
			continue
		}
		if calc == nil {
			calc = pedigree.NewCalculator(recordsource.Organisms(view.FindOrganism))
		}
		for _, male := range unit.MaleIDs {
			for _, female := range unit.FemaleIDs {
				if male == "" || female == "" || male == female {
					continue
				}
				coi, err := calc.Pairing(ctx, male, female, r.depth)
				if err != nil {
					return domain.Result{}, fmt.Errorf("%s: pairing %s x %s: %w", pairingRuleName, male, female, err)
				}
				if coi <= r.threshold {
					continue
				}
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     pairingRuleName,
					Severity: domain.SeverityWarn,
					Message: fmt.Sprintf("breeding unit %s pairs %s x %s with coefficient %.4f%% above %.4f%%",
						unit.ID, male, female, coi, r.threshold),
					Entity:   domain.EntityBreeding,
					EntityID: unit.ID,
				})
			}
		}
	}
	return res, nil
}
