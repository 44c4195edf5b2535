package core

import "mousedb/pkg/domain"

// DefaultSeniorAgeDays is the age above which animals count as seniors.
const DefaultSeniorAgeDays = 300

// GenotypeCount is the population of one genotype within a category.
// Males and Females count animals up to the senior age; Seniors counts the
// older ones regardless of sex.
type GenotypeCount struct {
	Genotype string `json:"genotype"`
	Males    int    `json:"males"`
	Females  int    `json:"females"`
	Seniors  int    `json:"seniors"`
}

// GenotypeCounts tallies records of the given category per genotype, in
// order of first appearance. Records without a known age count as young.
func GenotypeCounts(snapshot *domain.Snapshot, category domain.Category, seniorAgeDays int) []GenotypeCount {
	var out []GenotypeCount
	index := make(map[string]int)
	for _, rec := range snapshot.Records() {
		if rec.Category != category {
			continue
		}
		i, ok := index[rec.Genotype]
		if !ok {
			i = len(out)
			index[rec.Genotype] = i
			out = append(out, GenotypeCount{Genotype: rec.Genotype})
		}
		switch {
		case rec.Age != nil && !rec.Age.Future && rec.Age.Days > seniorAgeDays:
			out[i].Seniors++
		case rec.Sex == domain.SexMale:
			out[i].Males++
		case rec.Sex == domain.SexFemale:
			out[i].Females++
		}
	}
	return out
}
