package core

import (
	"mousedb/pkg/domain"
	"strings"
)

// Default strain-area cage prefixes.
const (
	DefaultStrainAPrefix = "2-A-"
	DefaultStrainBPrefix = "8-A-"
)

// Classifier maps location strings to lifecycle categories.
type Classifier struct {
	StrainAPrefix string
	StrainBPrefix string
}

// DefaultClassifier returns the classifier for the standard strain areas.
func DefaultClassifier() Classifier {
	return Classifier{StrainAPrefix: DefaultStrainAPrefix, StrainBPrefix: DefaultStrainBPrefix}
}

// Classify returns the category of a location: reserved labels match
// exactly, strain areas match by prefix, everything else is Backup.
func (c Classifier) Classify(location string) domain.Category {
	switch location {
	case domain.LocationMemorial:
		return domain.CategoryMemorial
	case domain.LocationDeathRow:
		return domain.CategoryDeathRow
	case domain.LocationWaitingRoom:
		return domain.CategoryWaitingRoom
	}
	if c.StrainAPrefix != "" && strings.HasPrefix(location, c.StrainAPrefix) {
		return domain.CategoryStrainA
	}
	if c.StrainBPrefix != "" && strings.HasPrefix(location, c.StrainBPrefix) {
		return domain.CategoryStrainB
	}
	return domain.CategoryBackup
}

// StrainPrefix returns the cage prefix reserved for a strain category.
func (c Classifier) StrainPrefix(cat domain.Category) (string, bool) {
	switch cat {
	case domain.CategoryStrainA:
		return c.StrainAPrefix, c.StrainAPrefix != ""
	case domain.CategoryStrainB:
		return c.StrainBPrefix, c.StrainBPrefix != ""
	}
	return "", false
}

// HasStrainPrefix reports whether label starts with any strain-area prefix.
func (c Classifier) HasStrainPrefix(label string) bool {
	return c.Classify(label).IsBreeding()
}

// IsReservedLocation reports whether a location is one of the non-cage holding areas.
func IsReservedLocation(location string) bool {
	switch location {
	case domain.LocationWaitingRoom, domain.LocationDeathRow, domain.LocationMemorial:
		return true
	}
	return false
}
