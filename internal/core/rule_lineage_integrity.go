package core

import (
	"context"
	"fmt"
	"mousedb/pkg/domain"
)

// LineageIntegrityRule warns about parent links that cannot be right:
// self references, identical parents, unknown parents and parents whose
// sex contradicts their role. Pending links are ignored.
func LineageIntegrityRule() domain.Rule {
	return lineageIntegrityRule{}
}

type lineageIntegrityRule struct{}

func (lineageIntegrityRule) Name() string { return "lineage_integrity" }

func (lineageIntegrityRule) Evaluate(_ context.Context, snapshot *domain.Snapshot) (domain.Result, error) {
	res := domain.Result{}

	records := snapshot.Records()
	index := make(map[string]domain.MouseRecord, len(records))
	for _, rec := range records {
		if rec.ID != "" {
			index[rec.ID] = rec
		}
	}

	for _, child := range records {
		links := []struct {
			role string
			id   *string
			sex  domain.Sex
		}{
			{"father", child.ParentFather, domain.SexMale},
			{"mother", child.ParentMother, domain.SexFemale},
		}
		if f, m := deref(child.ParentFather), deref(child.ParentMother); f != "" && f != domain.PendingParent && f == m {
			res.Violations = append(res.Violations, lineageViolation(child.ID, fmt.Sprintf("record %s lists %s as both father and mother", child.ID, f)))
			continue
		}
		for _, link := range links {
			parentID := deref(link.id)
			if parentID == "" || parentID == domain.PendingParent {
				continue
			}
			if parentID == child.ID {
				res.Violations = append(res.Violations, lineageViolation(child.ID, fmt.Sprintf("record %s references itself as %s", child.ID, link.role)))
				continue
			}
			parent, ok := index[parentID]
			if !ok {
				res.Violations = append(res.Violations, lineageViolation(child.ID, fmt.Sprintf("record %s references missing %s %s", child.ID, link.role, parentID)))
				continue
			}
			if parent.Sex != domain.SexUnknown && parent.Sex != link.sex {
				res.Violations = append(res.Violations, lineageViolation(child.ID, fmt.Sprintf("record %s %s %s has sex %s", child.ID, link.role, parentID, parent.Sex)))
			}
		}
	}
	return res, nil
}

func lineageViolation(recordID, message string) domain.Violation {
	return domain.Violation{
		Rule:     "lineage_integrity",
		Severity: domain.SeverityWarn,
		Message:  message,
		RecordID: recordID,
	}
}
