package core

import (
	"context"
	"fmt"

	"pedigreecore/pkg/domain"
)

const lineageRuleName = "lineage_integrity"

// LineageIntegrityRule enforces parent/offspring and breeding lineage constraints.
// Only organisms touched by the transaction are checked. Unresolved parents
// are legal pedigree truncation and only warn.
func LineageIntegrityRule() domain.Rule {
	return lineageIntegrityRule{}
}

type lineageIntegrityRule struct{}

func (lineageIntegrityRule) Name() string { return lineageRuleName }

func (lineageIntegrityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	deleted := make(map[string]struct{})
	checked := make(map[string]struct{})

	for _, change := range changes {
		switch change.Entity {
		case domain.EntityOrganism:
			if change.Action == domain.ActionDelete {
				if before, ok := change.Before.(domain.Organism); ok {
					deleted[before.ID] = struct{}{}
				}
				continue
			}
			child, ok := change.After.(domain.Organism)
			if !ok {
				continue
			}
			if _, done := checked[child.ID]; done {
				continue
			}
			checked[child.ID] = struct{}{}
			// The stored copy reflects later changes in the same transaction.
			if current, found := view.FindOrganism(child.ID); found {
				evaluateParents(&res, current, view)
			}
		case domain.EntityBreeding:
			if change.After == nil {
				continue
			}
			breeding, ok := change.After.(domain.BreedingUnit)
			if !ok {
				continue
			}
			evaluateBreedingUnit(&res, breeding, view)
		}
	}

	if len(deleted) > 0 {
		for _, org := range view.ListOrganisms() {
			sire, dam := org.Parents()
			for _, parentID := range []string{sire, dam} {
				if _, gone := deleted[parentID]; gone {
					res.Violations = append(res.Violations, lineageWarning(org.ID,
						fmt.Sprintf("organism %s references deleted parent %s", org.ID, parentID)))
				}
			}
		}
	}

	return res, nil
}

func evaluateParents(res *domain.Result, child domain.Organism, view domain.RuleView) {
	sire, dam := child.Parents()
	if sire != "" && sire == dam {
		// Self-fertilization; legal but worth surfacing.
		res.Violations = append(res.Violations, lineageWarning(child.ID,
			fmt.Sprintf("organism %s lists %s as both sire and dam", child.ID, sire)))
	}
	for _, link := range []struct{ role, id string }{{"sire", sire}, {"dam", dam}} {
		if link.id == "" {
			continue
		}
		if link.id == child.ID {
			res.Violations = append(res.Violations, lineageViolation(child.ID,
				fmt.Sprintf("organism %s references itself as %s", child.ID, link.role)))
			continue
		}
		parent, ok := view.FindOrganism(link.id)
		if !ok {
			res.Violations = append(res.Violations, lineageWarning(child.ID,
				fmt.Sprintf("organism %s references missing %s %s", child.ID, link.role, link.id)))
			continue
		}
		if parent.Species != child.Species {
			res.Violations = append(res.Violations, lineageViolation(child.ID,
				fmt.Sprintf("organism %s %s %s has mismatched species", child.ID, link.role, link.id)))
		}
		if child.Line != "" && parent.Line != "" && child.Line != parent.Line {
			res.Violations = append(res.Violations, lineageViolation(child.ID,
				fmt.Sprintf("organism %s %s %s has mismatched line", child.ID, link.role, link.id)))
		}
	}
}

func lineageViolation(entityID, message string) domain.Violation {
	return domain.Violation{
		Rule:     lineageRuleName,
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   domain.EntityOrganism,
		EntityID: entityID,
	}
}

func lineageWarning(entityID, message string) domain.Violation {
	v := lineageViolation(entityID, message)
	v.Severity = domain.SeverityWarn
	return v
}

func breedingViolation(unitID, message string) domain.Violation {
	return domain.Violation{
		Rule:     lineageRuleName,
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   domain.EntityBreeding,
		EntityID: unitID,
	}
}

func evaluateBreedingUnit(res *domain.Result, breeding domain.BreedingUnit, view domain.RuleView) {
	seen := make(map[string]string)
	var speciesRef string

	checkOrganism := func(role, organismID string) {
		if organismID == "" {
			return
		}
		if prevRole, exists := seen[organismID]; exists {
			res.Violations = append(res.Violations, breedingViolation(breeding.ID,
				fmt.Sprintf("breeding unit %s reuses organism %s as both %s and %s", breeding.ID, organismID, prevRole, role)))
			return
		}
		seen[organismID] = role

		organism, ok := view.FindOrganism(organismID)
		if !ok {
			res.Violations = append(res.Violations, breedingViolation(breeding.ID,
				fmt.Sprintf("breeding unit %s references missing organism %s", breeding.ID, organismID)))
			return
		}
		if speciesRef == "" {
			speciesRef = organism.Species
		} else if organism.Species != speciesRef {
			res.Violations = append(res.Violations, breedingViolation(breeding.ID,
				fmt.Sprintf("breeding unit %s mixes species %s and %s", breeding.ID, speciesRef, organism.Species)))
		}
	}

	for _, id := range breeding.FemaleIDs {
		checkOrganism("female", id)
	}
	for _, id := range breeding.MaleIDs {
		checkOrganism("male", id)
	}
}
