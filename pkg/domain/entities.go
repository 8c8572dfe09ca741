// Package domain defines the persistent colony records, value types, and
// rule evaluation primitives used by pedigreecore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityOrganism identifies an individual organism record.
	EntityOrganism EntityType = "organism"
	// EntityPublicOrganism identifies the denormalized public mirror of an organism.
	EntityPublicOrganism EntityType = "public_organism"
	// EntityBreeding identifies a breeding unit record.
	EntityBreeding EntityType = "breeding_unit"
)

// LifecycleStage represents the canonical organism lifecycle states.
type LifecycleStage string

// Canonical organism lifecycle stages.
const (
	StagePlanned  LifecycleStage = "planned"
	StageJuvenile LifecycleStage = "juvenile"
	StageAdult    LifecycleStage = "adult"
	StageRetired  LifecycleStage = "retired"
	StageDeceased LifecycleStage = "deceased"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Organism represents an individual animal tracked by the system. SireID and
// DamID are the canonical parent links; legacy encodings are normalized when
// the record is decoded (see organism_json.go).
type Organism struct {
	Base
	Name                  string         `json:"name"`
	Species               string         `json:"species"`
	Line                  string         `json:"line,omitempty"`
	SireID                *string        `json:"sire_id"`
	DamID                 *string        `json:"dam_id"`
	Stage                 LifecycleStage `json:"stage,omitempty"`
	Public                bool           `json:"public,omitempty"`
	InbreedingCoefficient *float64       `json:"inbreeding_coefficient"`
}

// Parents returns the resolved sire and dam identifiers. Missing links are
// returned as empty strings.
func (o Organism) Parents() (sire, dam string) {
	if o.SireID != nil {
		sire = *o.SireID
	}
	if o.DamID != nil {
		dam = *o.DamID
	}
	return sire, dam
}

// PublicOrganism is the denormalized listing of an organism shown outside the
// colony. It carries a copy of the cached inbreeding coefficient.
type PublicOrganism struct {
	Base
	Name                  string   `json:"name"`
	Species               string   `json:"species"`
	InbreedingCoefficient *float64 `json:"inbreeding_coefficient"`
}

// BreedingUnit tracks configured pairings or groups intended for reproduction.
type BreedingUnit struct {
	Base
	Name      string   `json:"name"`
	Strategy  string   `json:"strategy"`
	FemaleIDs []string `json:"female_ids"`
	MaleIDs   []string `json:"male_ids"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string     `json:"rule"`
	Severity Severity   `json:"severity"`
	Message  string     `json:"message"`
	Entity   EntityType `json:"entity"`
	EntityID string     `json:"entity_id"`
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking reports whether any violation blocks the transaction.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
