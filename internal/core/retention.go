package core

import (
	"fmt"
	"mousedb/pkg/domain"
	"sort"

	"cloud.google.com/go/civil"
)

// ParentMatch selects how "is a parent of a living record" is decided.
type ParentMatch string

const (
	// ParentMatchIndependent checks each parent link of living records on its own.
	ParentMatchIndependent ParentMatch = "independent"
	// ParentMatchJoint compares against the concatenated father+mother key of
	// living records, as older colony files were cleaned.
	ParentMatchJoint ParentMatch = "joint"
)

// ParseParentMatch maps configuration text to a ParentMatch mode.
func ParseParentMatch(raw string) (ParentMatch, error) {
	switch ParentMatch(raw) {
	case "", ParentMatchIndependent:
		return ParentMatchIndependent, nil
	case ParentMatchJoint:
		return ParentMatchJoint, nil
	}
	return "", fmt.Errorf("unknown parent match mode %q", raw)
}

// DefaultMaxAgeDays is the age beyond which archived records may be purged.
const DefaultMaxAgeDays = 365

// RetentionPolicy decides which Memorial records are dropped at export.
type RetentionPolicy struct {
	MaxAgeDays  int
	ParentMatch ParentMatch
}

// DefaultRetentionPolicy returns the 365-day policy with independent parent matching.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{MaxAgeDays: DefaultMaxAgeDays, ParentMatch: ParentMatchIndependent}
}

// RetentionReport is the outcome of Apply. Ambiguous lists Memorial IDs
// whose fate depends on the parent match mode.
type RetentionReport struct {
	Kept      domain.Snapshot
	Dropped   []string
	Ambiguous []string
}

// PrepareForWrite normalizes a snapshot before retention: condemned records
// are archived, backup records lose their breed date and breeding records
// without one start breeding today. Derived day counts are recomputed.
func PrepareForWrite(snapshot *domain.Snapshot, today civil.Date) error {
	for _, key := range snapshot.Keys() {
		if _, err := snapshot.Update(key, func(r *domain.MouseRecord) error {
			if r.Category == domain.CategoryDeathRow || r.CurrentLocation == domain.LocationDeathRow {
				r.CurrentLocation = domain.LocationMemorial
				r.Category = domain.CategoryMemorial
			}
			switch {
			case r.Category == domain.CategoryBackup:
				r.BreedDate = nil
			case r.Category.IsBreeding() && r.BreedDate == nil:
				r.BreedDate = domain.DatePtr(today)
			}
			deriveSpans(r, today)
			return nil
		}); err != nil {
			return fmt.Errorf("prepare record key %d: %w", key, err)
		}
	}
	return nil
}

// deriveSpans recomputes age and breeding days relative to today.
func deriveSpans(r *domain.MouseRecord, today civil.Date) {
	r.Age = DaysSince(r.BirthDate, today)
	r.BreedDays = nil
	if r.Category.IsBreeding() {
		r.BreedDays = DaysSince(r.BreedDate, today)
	}
}

// lineage is the first-pass summary of the living colony.
type lineage struct {
	living       map[string]struct{}
	parents      map[string]struct{}
	jointParents map[string]struct{}
}

func summarize(records []domain.MouseRecord) lineage {
	l := lineage{
		living:       make(map[string]struct{}),
		parents:      make(map[string]struct{}),
		jointParents: make(map[string]struct{}),
	}
	for _, rec := range records {
		if rec.Category == domain.CategoryMemorial {
			continue
		}
		l.living[rec.ID] = struct{}{}
		for _, p := range rec.Parents() {
			l.parents[p] = struct{}{}
		}
		l.jointParents[deref(rec.ParentFather)+deref(rec.ParentMother)] = struct{}{}
	}
	return l
}

func (l lineage) hasLivingParent(rec domain.MouseRecord) bool {
	for _, p := range rec.Parents() {
		if _, ok := l.living[p]; ok {
			return true
		}
	}
	return false
}

func (l lineage) isParent(id string, mode ParentMatch) bool {
	set := l.parents
	if mode == ParentMatchJoint {
		set = l.jointParents
	}
	_, ok := set[id]
	return ok
}

func (p RetentionPolicy) ancient(rec domain.MouseRecord, today civil.Date) bool {
	age := DaysSince(rec.BirthDate, today)
	return age != nil && !age.Future && age.Days > p.MaxAgeDays
}

func (p RetentionPolicy) drop(rec domain.MouseRecord, l lineage, today civil.Date, mode ParentMatch) bool {
	return rec.Category == domain.CategoryMemorial &&
		p.ancient(rec, today) &&
		!l.hasLivingParent(rec) &&
		!l.isParent(rec.ID, mode)
}

// Apply runs the two-pass retention over snapshot. Archived records that
// are ancient, have no living parent and parent no living record are
// dropped; every kept record has its persisted cage synchronized to its
// live location. The input snapshot is not modified.
func (p RetentionPolicy) Apply(snapshot *domain.Snapshot, today civil.Date) RetentionReport {
	mode := p.ParentMatch
	if mode == "" {
		mode = ParentMatchIndependent
	}
	other := ParentMatchJoint
	if mode == ParentMatchJoint {
		other = ParentMatchIndependent
	}

	records := snapshot.Records()
	l := summarize(records)

	report := RetentionReport{Kept: domain.NewSnapshot()}
	for _, rec := range records {
		dropped := p.drop(rec, l, today, mode)
		if rec.Category == domain.CategoryMemorial && dropped != p.drop(rec, l, today, other) {
			report.Ambiguous = append(report.Ambiguous, rec.ID)
		}
		if dropped {
			report.Dropped = append(report.Dropped, rec.ID)
			continue
		}
		rec.OriginalCage = rec.CurrentLocation
		report.Kept.Put(rec)
	}
	sort.Strings(report.Dropped)
	sort.Strings(report.Ambiguous)
	return report
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
