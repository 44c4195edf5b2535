package domain

import (
	"context"
	"errors"
	"testing"
)

func TestRuleViolationErrorNamesFirstBlockingRule(t *testing.T) {
	cases := []struct {
		name       string
		violations []Violation
		blocking   bool
		want       string
	}{
		{"empty", nil, false, "save blocked by rules"},
		{"warn only", []Violation{{Rule: "cage_capacity", Severity: SeverityWarn}}, false, "save blocked by rules"},
		{"mixed", []Violation{
			{Rule: "cage_capacity", Severity: SeverityWarn, Message: "2-A-1 over capacity"},
			{Rule: "lineage_integrity", Severity: SeverityBlock, Message: "M1 is its own father"},
			{Rule: "later", Severity: SeverityBlock, Message: "ignored"},
		}, true, "save blocked by rule lineage_integrity: M1 is its own father"},
	}
	for _, tc := range cases {
		res := Result{Violations: tc.violations}
		if res.HasBlocking() != tc.blocking {
			t.Fatalf("%s: HasBlocking=%v", tc.name, res.HasBlocking())
		}
		if got := (RuleViolationError{Result: res}).Error(); got != tc.want {
			t.Fatalf("%s: got %q want %q", tc.name, got, tc.want)
		}
	}
}

// rule is a configurable Rule for engine tests.
type rule struct {
	name string
	out  []Violation
	err  error
	seen *[]string
}

func (r rule) Name() string { return r.name }

func (r rule) Evaluate(_ context.Context, snap *Snapshot) (Result, error) {
	if r.seen != nil {
		*r.seen = append(*r.seen, r.name)
	}
	if snap == nil {
		return Result{}, errors.New("nil snapshot")
	}
	return Result{Violations: r.out}, r.err
}

func TestRulesEngineMergesInRegistrationOrder(t *testing.T) {
	var seen []string
	engine := NewRulesEngine()
	engine.Register(rule{name: "first", seen: &seen, out: []Violation{{Rule: "first", Severity: SeverityWarn, RecordID: "A1"}}})
	engine.Register(rule{name: "quiet", seen: &seen})
	engine.Register(rule{name: "second", seen: &seen, out: []Violation{{Rule: "second", Severity: SeverityLog}}})
	snap := NewSnapshot()
	res, err := engine.Evaluate(context.Background(), &snap)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(seen) != 3 || len(res.Violations) != 2 || res.Violations[0].RecordID != "A1" || res.Violations[1].Rule != "second" {
		t.Fatalf("unexpected evaluation seen=%v result=%+v", seen, res)
	}
}

func TestRulesEngineStopsAtFailingRule(t *testing.T) {
	boom := errors.New("boom")
	var seen []string
	engine := NewRulesEngine()
	engine.Register(rule{name: "broken", err: boom, seen: &seen})
	engine.Register(rule{name: "never", seen: &seen})
	snap := NewSnapshot()
	_, err := engine.Evaluate(context.Background(), &snap)
	if !errors.Is(err, boom) || err.Error() != "rule broken: boom" {
		t.Fatalf("expected wrapped rule error, got %v", err)
	}
	if len(seen) != 1 {
		t.Fatalf("evaluation continued past failure: %v", seen)
	}
}
