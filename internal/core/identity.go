package core

import (
	"fmt"
	"math/rand/v2"
	"mousedb/pkg/domain"
	"strconv"
	"strings"
)

// IDLength is the length of every issued identifier.
const IDLength = 16

// IssuerConfig holds the lookup tables used to build structured identifiers.
type IssuerConfig struct {
	// Genotypes maps known genotype strings to a single digit 1-7.
	Genotypes map[string]int
	// StrainCagePrefixes are the single-digit cage prefixes of strain-area
	// cages. Random cage codes avoid the 100,000-wide band of each prefix.
	StrainCagePrefixes []string
}

// DefaultIssuerConfig returns the colony's genotype table and strain cage prefixes.
func DefaultIssuerConfig() IssuerConfig {
	return IssuerConfig{
		Genotypes: map[string]int{
			"hom-PP2A":          1,
			"PP2A(w/-)":         2,
			"PP2A(f/w)":         3,
			"NEX-CRE-PP2A(f/w)": 4,
			"CMV-CRE":           5,
			"NEX-CRE":           6,
			"CMV-CRE-PP2A(f/w)": 7,
		},
		StrainCagePrefixes: []string{"2", "8"},
	}
}

// Issuer generates 16-digit animal identifiers of the form
// genotype(1) birthdate(6) toe(2) sex(1) cage(6).
type Issuer struct {
	genotypes map[string]int
	prefixes  []string
	rng       domain.Rand
}

// NewIssuer constructs an issuer. A nil rng falls back to the process-wide
// generator of math/rand/v2.
func NewIssuer(cfg IssuerConfig, rng domain.Rand) *Issuer {
	if rng == nil {
		rng = globalRand{}
	}
	prefixes := make([]string, 0, len(cfg.StrainCagePrefixes))
	for _, p := range cfg.StrainCagePrefixes {
		if len(p) == 1 && p[0] >= '1' && p[0] <= '9' {
			prefixes = append(prefixes, p)
		}
	}
	genotypes := make(map[string]int, len(cfg.Genotypes))
	for k, v := range cfg.Genotypes {
		if v >= 0 && v <= 9 {
			genotypes[k] = v
		}
	}
	return &Issuer{genotypes: genotypes, prefixes: prefixes, rng: rng}
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// IssueID returns an identifier for rec that is not present in existing.
// The structured code is tried first; on collision fully random 16-digit
// codes are drawn until one is free.
func (i *Issuer) IssueID(rec domain.MouseRecord, existing map[string]struct{}) string {
	id := i.StructuredID(rec)
	for {
		if _, taken := existing[id]; !taken {
			return id
		}
		id = i.RandomID()
	}
}

// StructuredID builds the informative identifier without a collision check.
func (i *Issuer) StructuredID(rec domain.MouseRecord) string {
	var b strings.Builder
	b.Grow(IDLength)
	b.WriteString(i.GenotypeCode(rec.Genotype))
	b.WriteString(BirthDateCode(rec))
	b.WriteString(i.ToeCode(rec.Toe))
	b.WriteString(i.SexCode(rec.Sex))
	b.WriteString(i.CageCode(rec.CurrentLocation))
	return b.String()
}

// RandomID returns an unstructured 16-digit numeric identifier.
func (i *Issuer) RandomID() string {
	buf := make([]byte, IDLength)
	for n := range buf {
		buf[n] = byte('0' + i.rng.IntN(10))
	}
	return string(buf)
}

// GenotypeCode returns the table digit for known genotypes and 8 or 9 otherwise.
func (i *Issuer) GenotypeCode(genotype string) string {
	if d, ok := i.genotypes[genotype]; ok {
		return fmt.Sprintf("%d", d)
	}
	return fmt.Sprintf("%d", i.between(8, 9))
}

// BirthDateCode renders the birth date as YYMMDD, or 000000 when unknown.
func BirthDateCode(rec domain.MouseRecord) string {
	if rec.BirthDate == nil {
		return "000000"
	}
	d := rec.BirthDate
	return fmt.Sprintf("%02d%02d%02d", d.Year%100, int(d.Month), d.Day)
}

// ToeCode extracts the number following the "toe" marker, zero padded to two
// digits. Missing markers and numbers outside 1-89 map to the reserved 90-99
// range, so a real toe clip never collides with the unknown-toe band.
func (i *Issuer) ToeCode(toe string) string {
	idx := strings.Index(toe, "toe")
	if idx < 0 {
		return i.reservedToe()
	}
	digits := leadingDigits(strings.TrimSpace(toe[idx+len("toe"):]))
	if len(digits) == 0 || len(digits) > 2 {
		return i.reservedToe()
	}
	n, _ := strconv.Atoi(digits)
	if n < 1 || n > 89 {
		return i.reservedToe()
	}
	return fmt.Sprintf("%02d", n)
}

func (i *Issuer) reservedToe() string {
	return fmt.Sprintf("%d", i.between(90, 99))
}

// SexCode returns an odd digit for males and an even digit otherwise.
func (i *Issuer) SexCode(sex domain.Sex) string {
	if sex == domain.SexMale {
		return fmt.Sprintf("%d", 2*i.rng.IntN(5)+1)
	}
	return fmt.Sprintf("%d", 2*i.rng.IntN(5))
}

// CageCode encodes strain-area cages as prefix, area digit and a four-digit
// suffix; any other location gets a random code outside the strain bands.
func (i *Issuer) CageCode(cage string) string {
	for _, area := range []struct {
		marker   string
		min, max int
	}{
		{"-A-", 1, 5},
		{"-B-", 6, 9},
	} {
		idx := strings.Index(cage, area.marker)
		if idx < 0 {
			continue
		}
		prefix := strings.ReplaceAll(cage[:idx], "-", "")
		if !i.isStrainPrefix(prefix) {
			break
		}
		suffix := i.normalizedSuffix(cage[idx+len(area.marker):], 4)
		return fmt.Sprintf("%s%d%s", prefix, i.between(area.min, area.max), suffix)
	}
	return i.rollCageCode()
}

func (i *Issuer) isStrainPrefix(p string) bool {
	for _, known := range i.prefixes {
		if p == known {
			return true
		}
	}
	return false
}

// normalizedSuffix keeps the rightmost width digits of s, left pads with
// zeros, then replaces the leading run of zeros with random nonzero digits.
func (i *Issuer) normalizedSuffix(s string, width int) string {
	digits := onlyDigits(s)
	if len(digits) > width {
		digits = digits[len(digits)-width:]
	} else {
		digits = strings.Repeat("0", width-len(digits)) + digits
	}
	out := []byte(digits)
	for n := range out {
		if out[n] != '0' {
			break
		}
		out[n] = byte('0' + i.between(1, 9))
	}
	return string(out)
}

// maxCageRolls bounds rollCageCode when the strain prefixes cover most or
// all of the leading digits.
const maxCageRolls = 64

// rollCageCode draws a 6-digit number, re-rolling while it falls inside a
// band reserved for strain-area codes. When every leading digit 1-9 is
// reserved, or the draws keep landing in reserved bands, the code falls back
// to a leading zero, which no strain prefix can claim.
func (i *Issuer) rollCageCode() string {
	for range maxCageRolls {
		n := i.between(100000, 999999)
		if !i.inReservedBand(n) {
			return fmt.Sprintf("%06d", n)
		}
	}
	return fmt.Sprintf("%06d", i.between(10000, 99999))
}

func (i *Issuer) inReservedBand(n int) bool {
	lead := byte('0' + n/100000)
	for _, p := range i.prefixes {
		if p[0] == lead {
			return true
		}
	}
	return false
}

// between returns a uniformly random integer in [lo, hi].
func (i *Issuer) between(lo, hi int) int {
	return lo + i.rng.IntN(hi-lo+1)
}

// IssueMissing assigns identifiers to every record with a blank ID. Each
// issued identifier joins the existing set, so one call never issues the
// same identifier twice.
func (i *Issuer) IssueMissing(snapshot *domain.Snapshot) ([]string, error) {
	existing := snapshot.IDs()
	var issued []string
	for _, key := range snapshot.Keys() {
		rec, _ := snapshot.Get(key)
		if rec.ID != "" {
			continue
		}
		id := i.IssueID(rec, existing)
		existing[id] = struct{}{}
		if _, err := snapshot.Update(key, func(r *domain.MouseRecord) error {
			r.ID = id
			return nil
		}); err != nil {
			return issued, fmt.Errorf("assign id to key %d: %w", key, err)
		}
		issued = append(issued, id)
	}
	return issued, nil
}

func leadingDigits(s string) string {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:end]
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
