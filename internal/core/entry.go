package core

import (
	"mousedb/pkg/domain"
	"strings"

	"cloud.google.com/go/civil"
)

const toeMarker = "toe"

// EntryDraft carries the user input for a new animal.
type EntryDraft struct {
	Sex          domain.Sex
	Toe          string
	Genotype     string
	BirthDate    *civil.Date
	ParentFather *string
	ParentMother *string
}

// Edit replaces the editable fields of an existing record. Identity and
// location never change through an edit. Nil parent pointers keep the
// current links; empty strings clear them.
type Edit struct {
	Sex          domain.Sex
	Toe          string
	Genotype     string
	BirthDate    *civil.Date
	BreedDate    *civil.Date
	ParentFather *string
	ParentMother *string
}

// NormalizeToe prefixes bare toe numbers with the toe marker.
func NormalizeToe(toe string) string {
	toe = strings.TrimSpace(toe)
	if toe == "" || strings.HasPrefix(toe, toeMarker) {
		return toe
	}
	return toeMarker + toe
}

func validateCore(sex domain.Sex, toe, genotype string, birth *civil.Date) error {
	switch {
	case sex != domain.SexMale && sex != domain.SexFemale:
		return domain.EntryError{Field: domain.FieldSex, Reason: "sex must be male or female"}
	case strings.TrimSpace(toe) == "":
		return domain.EntryError{Field: domain.FieldToe, Reason: "toe is required"}
	case strings.TrimSpace(genotype) == "":
		return domain.EntryError{Field: domain.FieldGenotype, Reason: "genotype is required"}
	case birth == nil:
		return domain.EntryError{Field: domain.FieldBirthDate, Reason: "birth date is required"}
	}
	return nil
}

// NewEntry builds a waiting-room record from draft and issues its ID
// against existing. The returned record has no snapshot key yet.
func NewEntry(draft EntryDraft, issuer *Issuer, existing map[string]struct{}, today civil.Date) (domain.MouseRecord, error) {
	if err := validateCore(draft.Sex, draft.Toe, draft.Genotype, draft.BirthDate); err != nil {
		return domain.MouseRecord{}, err
	}
	rec := domain.MouseRecord{
		OriginalCage:    domain.LocationWaitingRoom,
		CurrentLocation: domain.LocationWaitingRoom,
		Sex:             draft.Sex,
		Toe:             NormalizeToe(draft.Toe),
		Genotype:        strings.TrimSpace(draft.Genotype),
		BirthDate:       draft.BirthDate,
		ParentFather:    draft.ParentFather,
		ParentMother:    draft.ParentMother,
		Category:        domain.CategoryWaitingRoom,
	}
	rec = rec.Clone()
	rec.ID = issuer.IssueID(rec, existing)
	deriveSpans(&rec, today)
	return rec, nil
}

// EditRecord applies edit to the record carrying id and recomputes its
// derived day counts.
func EditRecord(snapshot *domain.Snapshot, id string, edit Edit, today civil.Date) (domain.MouseRecord, error) {
	if err := validateCore(edit.Sex, edit.Toe, edit.Genotype, edit.BirthDate); err != nil {
		return domain.MouseRecord{}, err
	}
	rec, ok := snapshot.FindByID(id)
	if !ok {
		return domain.MouseRecord{}, domain.ErrNotFound{ID: id}
	}
	return snapshot.Update(rec.Key, func(r *domain.MouseRecord) error {
		r.Sex = edit.Sex
		r.Toe = NormalizeToe(edit.Toe)
		r.Genotype = strings.TrimSpace(edit.Genotype)
		r.BirthDate = edit.BirthDate
		r.BreedDate = edit.BreedDate
		if edit.ParentFather != nil {
			r.ParentFather = optionalLink(*edit.ParentFather)
		}
		if edit.ParentMother != nil {
			r.ParentMother = optionalLink(*edit.ParentMother)
		}
		deriveSpans(r, today)
		return nil
	})
}

func optionalLink(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
