package core

import (
	"pedigreecore/internal/pedigree"
	"pedigreecore/pkg/domain"
)

// DefaultPairingWarnThreshold is the pairing coefficient, in percent, above
// which a breeding unit draws a warning. It matches a first-cousin mating.
const DefaultPairingWarnThreshold = 6.25

// PairingPolicy parameterizes the pairing inbreeding rule.
type PairingPolicy struct {
	// WarnThreshold disables the rule when not positive.
	WarnThreshold float64
	Depth         int
}

// DefaultPairingPolicy returns the built-in pairing policy.
func DefaultPairingPolicy() PairingPolicy {
	return PairingPolicy{WarnThreshold: DefaultPairingWarnThreshold, Depth: pedigree.DefaultPairingDepth}
}

// NewRulesEngine constructs an empty engine instance.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	return NewPolicyRulesEngine(DefaultPairingPolicy())
}

// NewPolicyRulesEngine builds the built-in policy set with a custom pairing policy.
func NewPolicyRulesEngine(policy PairingPolicy) *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(LineageIntegrityRule())
	if policy.WarnThreshold > 0 {
		engine.Register(PairingInbreedingRule(policy.WarnThreshold, policy.Depth))
	}
	return engine
}
