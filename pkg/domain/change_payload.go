package domain

import "cloud.google.com/go/civil"

// Field names a watched attribute compared during reconciliation.
type Field string

// Watched fields. The string values match the spreadsheet column names so
// audit tables and changelog files stay readable.
const (
	FieldLocation     Field = "nuCA"
	FieldSex          Field = "sex"
	FieldToe          Field = "toe"
	FieldGenotype     Field = "genotype"
	FieldBirthDate    Field = "birthDate"
	FieldBreedDate    Field = "breedDate"
	FieldParentFather Field = "parentF"
	FieldParentMother Field = "parentM"
)

// DefaultWatchedFields is the fixed list compared by the reconciliation engine.
var DefaultWatchedFields = []Field{
	FieldLocation,
	FieldSex,
	FieldToe,
	FieldGenotype,
	FieldBirthDate,
	FieldBreedDate,
	FieldParentFather,
	FieldParentMother,
}

// Equal reports whether the field holds the same value on both records.
func (f Field) Equal(a, b MouseRecord) bool {
	switch f {
	case FieldLocation:
		return a.CurrentLocation == b.CurrentLocation
	case FieldSex:
		return a.Sex == b.Sex
	case FieldToe:
		return a.Toe == b.Toe
	case FieldGenotype:
		return a.Genotype == b.Genotype
	case FieldBirthDate:
		return equalDate(a.BirthDate, b.BirthDate)
	case FieldBreedDate:
		return equalDate(a.BreedDate, b.BreedDate)
	case FieldParentFather:
		return equalString(a.ParentFather, b.ParentFather)
	case FieldParentMother:
		return equalString(a.ParentMother, b.ParentMother)
	default:
		return true
	}
}

// Copy assigns the field value of src onto dst.
func (f Field) Copy(dst *MouseRecord, src MouseRecord) {
	switch f {
	case FieldLocation:
		dst.CurrentLocation = src.CurrentLocation
	case FieldSex:
		dst.Sex = src.Sex
	case FieldToe:
		dst.Toe = src.Toe
	case FieldGenotype:
		dst.Genotype = src.Genotype
	case FieldBirthDate:
		dst.BirthDate = cloneDate(src.BirthDate)
	case FieldBreedDate:
		dst.BreedDate = cloneDate(src.BreedDate)
	case FieldParentFather:
		dst.ParentFather = cloneString(src.ParentFather)
	case FieldParentMother:
		dst.ParentMother = cloneString(src.ParentMother)
	}
}

func equalDate(a, b *civil.Date) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ChangeSet classifies the differences between a baseline and a working
// snapshot. ManualReview is a subset of Changed.
type ChangeSet struct {
	Added        []MouseRecord `json:"added"`
	Changed      []MouseRecord `json:"changed"`
	ManualReview []MouseRecord `json:"manual_review"`
}

// Empty reports whether nothing was added or changed.
func (c ChangeSet) Empty() bool {
	return len(c.Added) == 0 && len(c.Changed) == 0
}
