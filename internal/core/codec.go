package core

import (
	"encoding/json"
	"fmt"
	"math"
	"mousedb/pkg/domain"
	"sort"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
)

// Column names shared with the tabular import/export collaborators.
const (
	ColumnID        = "ID"
	ColumnCage      = "cage"
	ColumnSex       = "sex"
	ColumnToe       = "toe"
	ColumnGenotype  = "genotype"
	ColumnBirthDate = "birthDate"
	ColumnAge       = "age"
	ColumnBreedDate = "breedDate"
	ColumnBreedDays = "breedDays"
	ColumnParentF   = "parentF"
	ColumnParentM   = "parentM"
)

// ExportColumns is the fixed column order of exported rows.
var ExportColumns = []string{
	ColumnID, ColumnCage, ColumnSex, ColumnToe, ColumnGenotype, ColumnBirthDate,
	ColumnAge, ColumnBreedDate, ColumnBreedDays, ColumnParentF, ColumnParentM,
}

// FutureMarker is written in place of a day count for dates after today.
const FutureMarker = "future"

// Row is one raw table row exchanged with the import/export collaborators.
type Row map[string]any

// ImportResult is the normalized snapshot of an import together with the
// identifiers issued during it. Reissued lists duplicate source IDs that
// were replaced.
type ImportResult struct {
	Snapshot domain.Snapshot
	Issued   []string
	Reissued []string
}

// Import normalizes raw rows into a snapshot keyed by row index: locations
// are classified, dates parsed, derived day counts computed and blank or
// duplicate IDs issued. Fully blank rows are skipped.
func Import(rows []Row, today civil.Date, classifier Classifier, issuer *Issuer) (ImportResult, error) {
	var res ImportResult
	snapshot := domain.NewSnapshot()
	seen := make(map[string]struct{}, len(rows))
	for i, row := range rows {
		if blankRow(row) {
			continue
		}
		rec, err := recordFromRow(row, classifier)
		if err != nil {
			return ImportResult{}, fmt.Errorf("row %d: %w", i, err)
		}
		rec.Key = domain.Key(i)
		if rec.ID != "" {
			if _, dup := seen[rec.ID]; dup {
				res.Reissued = append(res.Reissued, rec.ID)
				rec.ID = ""
			} else {
				seen[rec.ID] = struct{}{}
			}
		}
		deriveSpans(&rec, today)
		snapshot.Put(rec)
	}
	issued, err := issuer.IssueMissing(&snapshot)
	if err != nil {
		return ImportResult{}, err
	}
	res.Snapshot = snapshot
	res.Issued = issued
	return res, nil
}

func recordFromRow(row Row, classifier Classifier) (domain.MouseRecord, error) {
	cage := cellString(row[ColumnCage])
	if cage == "" {
		return domain.MouseRecord{}, domain.EntryError{Field: domain.FieldLocation, Reason: "cage is required"}
	}
	sex, _ := domain.ParseSex(cellString(row[ColumnSex]))
	rec := domain.MouseRecord{
		ID:              cellString(row[ColumnID]),
		OriginalCage:    cage,
		CurrentLocation: cage,
		Sex:             sex,
		Toe:             cellString(row[ColumnToe]),
		Genotype:        cellString(row[ColumnGenotype]),
		BirthDate:       ToDate(row[ColumnBirthDate]),
		BreedDate:       ToDate(row[ColumnBreedDate]),
		ParentFather:    optionalCell(row[ColumnParentF]),
		ParentMother:    optionalCell(row[ColumnParentM]),
		Category:        classifier.Classify(cage),
	}
	if rec.ID == "-" {
		rec.ID = ""
	}
	return rec, nil
}

// cellString renders a cell as text. Integral numbers lose their decimal
// part so numeric IDs and cage numbers survive spreadsheet round trips.
func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return strconv.FormatFloat(x, 'f', 0, 64)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case fmt.Stringer:
		return strings.TrimSpace(x.String())
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

func optionalCell(v any) *string {
	s := cellString(v)
	if s == "" || s == "-" {
		return nil
	}
	return &s
}

func blankRow(row Row) bool {
	for _, v := range row {
		if cellString(v) != "" {
			return false
		}
	}
	return true
}

// Export prepares a copy of snapshot for writing: it refuses while any
// record waits for placement, then archives condemned records, applies the
// retention policy and renders the kept records sorted by cage. The input
// snapshot is never modified.
func Export(snapshot *domain.Snapshot, today civil.Date, policy RetentionPolicy) ([]Row, RetentionReport, error) {
	if waiting := waitingIDs(snapshot); len(waiting) > 0 {
		return nil, RetentionReport{}, domain.PreconditionFailedError{
			Op:     "export",
			Reason: "records in the waiting room have not been placed",
			IDs:    waiting,
		}
	}
	work := snapshot.Clone()
	if err := PrepareForWrite(&work, today); err != nil {
		return nil, RetentionReport{}, err
	}
	report := policy.Apply(&work, today)
	sorted := report.Kept.SortedByCage()
	rows := make([]Row, 0, len(sorted))
	for _, rec := range sorted {
		rows = append(rows, RecordRow(rec))
	}
	return rows, report, nil
}

func waitingIDs(snapshot *domain.Snapshot) []string {
	var ids []string
	for _, rec := range snapshot.Records() {
		if rec.CurrentLocation == domain.LocationWaitingRoom {
			ids = append(ids, rec.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// RecordRow renders a record with the export columns. Dates use the
// yy-mm-dd form and absent values become empty strings.
func RecordRow(rec domain.MouseRecord) Row {
	return Row{
		ColumnID:        rec.ID,
		ColumnCage:      rec.OriginalCage,
		ColumnSex:       rec.Sex.String(),
		ColumnToe:       rec.Toe,
		ColumnGenotype:  rec.Genotype,
		ColumnBirthDate: FormatDate(rec.BirthDate),
		ColumnAge:       spanCell(rec.Age),
		ColumnBreedDate: FormatDate(rec.BreedDate),
		ColumnBreedDays: spanCell(rec.BreedDays),
		ColumnParentF:   deref(rec.ParentFather),
		ColumnParentM:   deref(rec.ParentMother),
	}
}

func spanCell(s *domain.Span) any {
	switch {
	case s == nil:
		return ""
	case s.Future:
		return FutureMarker
	default:
		return s.Days
	}
}
