package core

import (
	"math/rand/v2"
	"mousedb/pkg/domain"
	"testing"

	"cloud.google.com/go/civil"
)

var testToday = civil.Date{Year: 2024, Month: 3, Day: 9}

// constRand always draws the same value (clamped into range).
type constRand int

func (c constRand) IntN(n int) int {
	if int(c) >= n {
		return n - 1
	}
	return int(c)
}

func seededRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func daysAgo(n int) *civil.Date {
	d := testToday.AddDays(-n)
	return &d
}

func rec(key int, id, cage string, sex domain.Sex) domain.MouseRecord {
	return domain.MouseRecord{
		Key:             domain.Key(key),
		ID:              id,
		OriginalCage:    cage,
		CurrentLocation: cage,
		Sex:             sex,
		Toe:             "toe1",
		Genotype:        "CMV-CRE",
		BirthDate:       daysAgo(60),
	}
}

// colonyFixture covers every category:
//
//	A1, A2  strain A cage 2-A-0001
//	B1      strain B cage 8-A-0003
//	K1      backup cage 1-B-7
//	W1      waiting room
//	D1      death row, persisted in 2-A-0001
//	M1      memorial
func colonyFixture() domain.Snapshot {
	d1 := rec(5, "D1", domain.LocationDeathRow, domain.SexMale)
	d1.OriginalCage = "2-A-0001"
	return domain.NewSnapshot(
		rec(0, "A1", "2-A-0001", domain.SexFemale),
		rec(1, "A2", "2-A-0001", domain.SexMale),
		rec(2, "B1", "8-A-0003", domain.SexFemale),
		rec(3, "K1", "1-B-7", domain.SexMale),
		rec(4, "W1", domain.LocationWaitingRoom, domain.SexFemale),
		d1,
		rec(6, "M1", domain.LocationMemorial, domain.SexMale),
	)
}

func mustBoard(t *testing.T, snap *domain.Snapshot, view domain.Category) *Board {
	t.Helper()
	b, err := NewBoard(snap, DefaultClassifier(), view)
	if err != nil {
		t.Fatalf("new board: %v", err)
	}
	return b
}

func ids(records []domain.MouseRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
