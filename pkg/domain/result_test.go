package domain

import (
	"context"
	"errors"
	"testing"
)

func TestResultMergeAndBlocking(t *testing.T) {
	var res Result
	res.Merge(Result{})
	if len(res.Violations) != 0 || res.HasBlocking() {
		t.Fatalf("empty merge should stay empty")
	}
	res.Merge(Result{Violations: []Violation{{Rule: "r", Severity: SeverityWarn}}})
	if res.HasBlocking() {
		t.Fatalf("warn must not block")
	}
	res.Merge(Result{Violations: []Violation{{Rule: "r", Severity: SeverityBlock}}})
	if !res.HasBlocking() || len(res.Violations) != 2 {
		t.Fatalf("expected blocking result with two violations, got %+v", res)
	}
	if (RuleViolationError{Result: res}).Error() == "" {
		t.Fatalf("expected error message")
	}
}

type staticRule struct {
	name string
	res  Result
	err  error
}

func (r staticRule) Name() string { return r.name }

func (r staticRule) Evaluate(context.Context, RuleView, []Change) (Result, error) {
	return r.res, r.err
}

func TestRulesEngineEvaluate(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(staticRule{name: "a", res: Result{Violations: []Violation{{Rule: "a"}}}})
	engine.Register(staticRule{name: "b", res: Result{Violations: []Violation{{Rule: "b"}}}})
	if names := engine.Rules(); len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("unexpected rule names %v", names)
	}
	res, err := engine.Evaluate(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 2 {
		t.Fatalf("expected merged violations, got %d", len(res.Violations))
	}

	boom := errors.New("boom")
	engine.Register(staticRule{name: "c", err: boom})
	if _, err := engine.Evaluate(context.Background(), nil, nil); !errors.Is(err, boom) {
		t.Fatalf("expected rule error, got %v", err)
	}
}

func TestOrganismParentsHandlesMissingLinks(t *testing.T) {
	sire := "s"
	if s, d := (Organism{SireID: &sire}).Parents(); s != "s" || d != "" {
		t.Fatalf("unexpected parents %q %q", s, d)
	}
	if s, d := (Organism{}).Parents(); s != "" || d != "" {
		t.Fatalf("founder should have no parents")
	}
}
