package core

import (
	"fmt"
	"mousedb/pkg/domain"

	"cloud.google.com/go/civil"
)

// ChangelogReport summarizes a changelog replay. Exceptions name the
// entries that could not be applied.
type ChangelogReport struct {
	Added      int      `json:"added"`
	Updated    int      `json:"updated"`
	Exceptions []string `json:"exceptions,omitempty"`
}

// Applied returns the number of entries applied.
func (r ChangelogReport) Applied() int { return r.Added + r.Updated }

// ApplyChangelog replays an archived change set onto working. Added records
// are inserted with a persisted cage of Waiting Room unless their ID already
// exists; Changed records overwrite the watched fields of the record with
// the same ID and adopt the logged location as their persisted cage.
func ApplyChangelog(working *domain.Snapshot, changes domain.ChangeSet, classifier Classifier, today civil.Date) (ChangelogReport, error) {
	var report ChangelogReport
	ids := working.IDs()
	for _, rec := range changes.Added {
		if rec.ID == "" {
			report.Exceptions = append(report.Exceptions, "added entry without id (not added)")
			continue
		}
		if _, exists := ids[rec.ID]; exists {
			report.Exceptions = append(report.Exceptions, fmt.Sprintf("ID: %s, already exists in database (not added)", rec.ID))
			continue
		}
		rec.Key = working.NextKey()
		if rec.CurrentLocation == "" {
			rec.CurrentLocation = domain.LocationWaitingRoom
		}
		rec.OriginalCage = domain.LocationWaitingRoom
		rec.Category = classifier.Classify(rec.CurrentLocation)
		deriveSpans(&rec, today)
		working.Put(rec)
		ids[rec.ID] = struct{}{}
		report.Added++
	}
	for _, logged := range changes.Changed {
		target, ok := working.FindByID(logged.ID)
		if !ok || logged.ID == "" {
			report.Exceptions = append(report.Exceptions, fmt.Sprintf("ID: %s, not found in current data", logged.ID))
			continue
		}
		if _, err := working.Update(target.Key, func(r *domain.MouseRecord) error {
			for _, f := range domain.DefaultWatchedFields {
				f.Copy(r, logged)
			}
			if r.CurrentLocation == "" {
				r.CurrentLocation = target.CurrentLocation
			}
			r.OriginalCage = r.CurrentLocation
			r.Category = classifier.Classify(r.CurrentLocation)
			deriveSpans(r, today)
			return nil
		}); err != nil {
			return report, fmt.Errorf("apply change to %s: %w", logged.ID, err)
		}
		report.Updated++
	}
	return report, nil
}
