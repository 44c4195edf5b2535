// Package domain defines the colony records, snapshots, change sets and rule
// evaluation primitives shared by the mousedb engine and its collaborators.
package domain

import (
	"strings"

	"cloud.google.com/go/civil"
)

// Sex identifies the biological sex of an animal.
type Sex string

const (
	// SexUnknown is the zero value used when an import row carries no usable sex marker.
	SexUnknown Sex = ""
	SexMale    Sex = "♂"
	SexFemale  Sex = "♀"
)

// ParseSex maps the spellings accepted by the import collaborator to a Sex.
func ParseSex(raw string) (Sex, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "♂", "m", "male":
		return SexMale, true
	case "♀", "f", "female":
		return SexFemale, true
	default:
		return SexUnknown, false
	}
}

// String returns the canonical spreadsheet spelling.
func (s Sex) String() string { return string(s) }

// Category captures the lifecycle bucket derived from a record's location.
type Category string

// Lifecycle categories. StrainA and StrainB are the two strain areas; every
// other regular cage falls into Backup.
const (
	CategoryBackup      Category = "BACKUP"
	CategoryStrainA     Category = "STRAIN_A"
	CategoryStrainB     Category = "STRAIN_B"
	CategoryWaitingRoom Category = "Waiting Room"
	CategoryDeathRow    Category = "Death Row"
	CategoryMemorial    Category = "Memorial"
)

// IsRegular reports whether animals of the category live in a physical cage.
func (c Category) IsRegular() bool {
	switch c {
	case CategoryBackup, CategoryStrainA, CategoryStrainB:
		return true
	}
	return false
}

// IsBreeding reports whether the category tracks breeding dates.
func (c Category) IsBreeding() bool {
	return c == CategoryStrainA || c == CategoryStrainB
}

// Reserved location labels that are not physical cages.
const (
	LocationWaitingRoom = "Waiting Room"
	LocationDeathRow    = "Death Row"
	LocationMemorial    = "Memorial"
)

// PendingParent marks a lineage link that has been requested but not resolved.
const PendingParent = "Pending"

// Key is the stable snapshot key of a record (original row index or a
// freshly allocated one for new entries).
type Key int

// Span is a day count relative to a reference date. Future is set when the
// source date lies after the reference date; Days is then zero.
type Span struct {
	Days   int  `json:"days"`
	Future bool `json:"future,omitempty"`
}

// MouseRecord is one animal of the colony.
type MouseRecord struct {
	Key             Key         `json:"key"`
	ID              string      `json:"id"`
	OriginalCage    string      `json:"original_cage"`
	CurrentLocation string      `json:"current_location"`
	Sex             Sex         `json:"sex"`
	Toe             string      `json:"toe"`
	Genotype        string      `json:"genotype"`
	BirthDate       *civil.Date `json:"birth_date"`
	BreedDate       *civil.Date `json:"breed_date"`
	Age             *Span       `json:"age,omitempty"`
	BreedDays       *Span       `json:"breed_days,omitempty"`
	ParentFather    *string     `json:"parent_father"`
	ParentMother    *string     `json:"parent_mother"`
	Category        Category    `json:"category"`
}

// Clone returns a deep copy of the record so callers never share optional fields.
func (r MouseRecord) Clone() MouseRecord {
	cp := r
	cp.BirthDate = cloneDate(r.BirthDate)
	cp.BreedDate = cloneDate(r.BreedDate)
	if r.Age != nil {
		age := *r.Age
		cp.Age = &age
	}
	if r.BreedDays != nil {
		days := *r.BreedDays
		cp.BreedDays = &days
	}
	cp.ParentFather = cloneString(r.ParentFather)
	cp.ParentMother = cloneString(r.ParentMother)
	return cp
}

// Parents returns the resolved parent IDs, skipping absent and pending links.
func (r MouseRecord) Parents() []string {
	out := make([]string, 0, 2)
	for _, p := range []*string{r.ParentFather, r.ParentMother} {
		if p == nil || *p == "" || *p == PendingParent {
			continue
		}
		out = append(out, *p)
	}
	return out
}

// Relocated reports whether the live location differs from the persisted cage.
func (r MouseRecord) Relocated() bool {
	return r.CurrentLocation != r.OriginalCage
}

func cloneDate(d *civil.Date) *civil.Date {
	if d == nil {
		return nil
	}
	cp := *d
	return &cp
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

// StringPtr is a convenience for optional string fields.
func StringPtr(s string) *string { return &s }

// DatePtr is a convenience for optional date fields.
func DatePtr(d civil.Date) *civil.Date { return &d }
