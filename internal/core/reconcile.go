package core

import "mousedb/pkg/domain"

// Diff compares working against baseline on the watched fields. Records
// whose ID is unknown to the baseline are Added; records differing in any
// watched field are Changed, and those whose live location differs from the
// persisted cage are also queued for ManualReview. A nil fields slice means
// DefaultWatchedFields.
func Diff(baseline, working *domain.Snapshot, fields []domain.Field) domain.ChangeSet {
	if fields == nil {
		fields = domain.DefaultWatchedFields
	}
	base := indexByID(baseline)
	var out domain.ChangeSet
	for _, rec := range working.Records() {
		prev, ok := base[rec.ID]
		if !ok {
			out.Added = append(out.Added, rec)
			continue
		}
		if !differs(prev, rec, fields) {
			continue
		}
		out.Changed = append(out.Changed, rec)
		if rec.Relocated() {
			out.ManualReview = append(out.ManualReview, rec)
		}
	}
	return out
}

// HasChanges reports whether Diff would return a non-empty change set,
// stopping at the first difference.
func HasChanges(baseline, working *domain.Snapshot, fields []domain.Field) bool {
	if fields == nil {
		fields = domain.DefaultWatchedFields
	}
	base := indexByID(baseline)
	for _, rec := range working.Records() {
		prev, ok := base[rec.ID]
		if !ok || differs(prev, rec, fields) {
			return true
		}
	}
	return false
}

func differs(a, b domain.MouseRecord, fields []domain.Field) bool {
	for _, f := range fields {
		if !f.Equal(a, b) {
			return true
		}
	}
	return false
}

func indexByID(s *domain.Snapshot) map[string]domain.MouseRecord {
	out := make(map[string]domain.MouseRecord, s.Len())
	for _, rec := range s.Records() {
		if rec.ID != "" {
			out[rec.ID] = rec
		}
	}
	return out
}
