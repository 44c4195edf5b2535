package core

import (
	"context"
	"mousedb/pkg/domain"
	"strings"
	"testing"
)

func TestLineageIntegrityRule(t *testing.T) {
	dad := rec(0, "DAD", "2-A-1", domain.SexMale)
	mom := rec(1, "MOM", "2-A-1", domain.SexFemale)
	ok := rec(2, "OK", "2-A-2", domain.SexMale)
	ok.ParentFather, ok.ParentMother = domain.StringPtr("DAD"), domain.StringPtr("MOM")
	pending := rec(3, "PEND", "2-A-2", domain.SexMale)
	pending.ParentFather, pending.ParentMother = domain.StringPtr(domain.PendingParent), domain.StringPtr(domain.PendingParent)
	self := rec(4, "SELF", "2-A-3", domain.SexMale)
	self.ParentFather = domain.StringPtr("SELF")
	same := rec(5, "SAME", "2-A-3", domain.SexMale)
	same.ParentFather, same.ParentMother = domain.StringPtr("DAD"), domain.StringPtr("DAD")
	missing := rec(6, "MISS", "2-A-4", domain.SexMale)
	missing.ParentMother = domain.StringPtr("GHOST")
	swapped := rec(7, "SWAP", "2-A-4", domain.SexMale)
	swapped.ParentFather = domain.StringPtr("MOM")

	snap := domain.NewSnapshot(dad, mom, ok, pending, self, same, missing, swapped)
	res, err := LineageIntegrityRule().Evaluate(context.Background(), &snap)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	want := map[string]string{
		"SELF": "itself",
		"SAME": "both father and mother",
		"MISS": "missing mother GHOST",
		"SWAP": "has sex",
	}
	if len(res.Violations) != len(want) {
		t.Fatalf("expected %d violations, got %+v", len(want), res.Violations)
	}
	for _, v := range res.Violations {
		frag, ok := want[v.RecordID]
		if !ok || !strings.Contains(v.Message, frag) {
			t.Fatalf("unexpected violation %+v", v)
		}
		if v.Severity != domain.SeverityWarn || v.Rule != "lineage_integrity" {
			t.Fatalf("unexpected severity or rule %+v", v)
		}
	}
	if res.HasBlocking() {
		t.Fatalf("lineage rule must not block")
	}
}

func TestCageCapacityRule(t *testing.T) {
	var records []domain.MouseRecord
	for i := 0; i < 7; i++ {
		r := rec(i, string(rune('a'+i)), "2-A-1", domain.SexMale)
		r.Category = domain.CategoryStrainA
		records = append(records, r)
	}
	for i := 7; i < 14; i++ {
		r := rec(i, string(rune('a'+i)), domain.LocationMemorial, domain.SexMale)
		r.Category = domain.CategoryMemorial
		records = append(records, r)
	}
	snap := domain.NewSnapshot(records...)

	res, err := NewCageCapacityRule(DefaultCageCapacity).Evaluate(context.Background(), &snap)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 1 || !strings.Contains(res.Violations[0].Message, "2-A-1 over capacity: 7/5") {
		t.Fatalf("expected one capacity warning, got %+v", res.Violations)
	}

	res, _ = NewCageCapacityRule(0).Evaluate(context.Background(), &snap)
	if len(res.Violations) != 0 {
		t.Fatalf("zero capacity should disable the rule")
	}
}

func TestDefaultRulesEngine(t *testing.T) {
	snap := colonyFixture()
	res, err := NewDefaultRulesEngine().Evaluate(context.Background(), &snap)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 0 {
		t.Fatalf("clean colony produced violations: %+v", res.Violations)
	}
}
