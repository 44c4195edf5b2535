package core

import (
	"mousedb/pkg/domain"
	"testing"
)

func TestDiffOfIdenticalSnapshotsIsEmpty(t *testing.T) {
	snap := colonyFixture()
	same := snap.Clone()
	cs := Diff(&snap, &same, nil)
	if len(cs.Added) != 0 || len(cs.Changed) != 0 || len(cs.ManualReview) != 0 || !cs.Empty() {
		t.Fatalf("expected empty change set, got %+v", cs)
	}
	if HasChanges(&snap, &same, nil) {
		t.Fatalf("HasChanges reported a difference for identical snapshots")
	}
}

func TestDiffBreedDateAndRelocation(t *testing.T) {
	baseline := colonyFixture()
	working := baseline.Clone()
	x, _ := working.FindByID("B1")
	if _, err := working.Update(x.Key, func(r *domain.MouseRecord) error {
		r.BreedDate = daysAgo(3)
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	cs := Diff(&baseline, &working, nil)
	if got := ids(cs.Changed); len(got) != 1 || got[0] != "B1" {
		t.Fatalf("expected B1 changed, got %v", got)
	}
	if len(cs.Added) != 0 || len(cs.ManualReview) != 0 {
		t.Fatalf("breed date edit must not be added or reviewed: %+v", cs)
	}

	if _, err := working.Update(x.Key, func(r *domain.MouseRecord) error {
		r.CurrentLocation = "2-A-0001"
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	cs = Diff(&baseline, &working, nil)
	if got := ids(cs.ManualReview); len(got) != 1 || got[0] != "B1" {
		t.Fatalf("expected B1 in manual review, got %v", got)
	}
	if got := ids(cs.Changed); len(got) != 1 {
		t.Fatalf("manual review must be a subset of changed, got %v", got)
	}
}

func TestDiffAddedAndFieldSubset(t *testing.T) {
	baseline := colonyFixture()
	working := baseline.Clone()
	working.Put(rec(9, "NEW", domain.LocationWaitingRoom, domain.SexMale))
	k1, _ := working.FindByID("K1")
	if _, err := working.Update(k1.Key, func(r *domain.MouseRecord) error {
		r.Toe = "toe9"
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	cs := Diff(&baseline, &working, nil)
	if got := ids(cs.Added); len(got) != 1 || got[0] != "NEW" {
		t.Fatalf("unexpected added %v", got)
	}
	if got := ids(cs.Changed); len(got) != 1 || got[0] != "K1" {
		t.Fatalf("unexpected changed %v", got)
	}

	only := Diff(&baseline, &working, []domain.Field{domain.FieldGenotype})
	if len(only.Changed) != 0 || len(only.Added) != 1 {
		t.Fatalf("field subset ignored: %+v", only)
	}
	if !HasChanges(&baseline, &working, []domain.Field{domain.FieldGenotype}) {
		t.Fatalf("added record must count as a change")
	}
}

func TestDiffIgnoresDerivedFields(t *testing.T) {
	baseline := colonyFixture()
	working := baseline.Clone()
	for _, key := range working.Keys() {
		if _, err := working.Update(key, func(r *domain.MouseRecord) error {
			r.Age = &domain.Span{Days: 999}
			r.OriginalCage = "elsewhere"
			return nil
		}); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	if HasChanges(&baseline, &working, nil) {
		t.Fatalf("derived or persisted fields must not be watched")
	}
}
