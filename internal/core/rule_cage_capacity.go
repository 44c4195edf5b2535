package core

import (
	"context"
	"fmt"
	"mousedb/pkg/domain"
	"sort"
)

// DefaultCageCapacity is the number of animals a standard cage holds.
const DefaultCageCapacity = 5

// NewCageCapacityRule returns a rule warning about regular cages holding
// more than capacity animals. A capacity below one disables the rule.
func NewCageCapacityRule(capacity int) domain.Rule {
	return cageCapacityRule{capacity: capacity}
}

type cageCapacityRule struct {
	capacity int
}

func (cageCapacityRule) Name() string { return "cage_capacity" }

func (r cageCapacityRule) Evaluate(_ context.Context, snapshot *domain.Snapshot) (domain.Result, error) {
	res := domain.Result{}
	if r.capacity < 1 {
		return res, nil
	}
	occupancy := make(map[string]int)
	for _, rec := range snapshot.Records() {
		if rec.Category.IsRegular() {
			occupancy[rec.CurrentLocation]++
		}
	}
	cages := make([]string, 0, len(occupancy))
	for cage := range occupancy {
		cages = append(cages, cage)
	}
	sort.Strings(cages)
	for _, cage := range cages {
		if count := occupancy[cage]; count > r.capacity {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "cage_capacity",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("cage %s over capacity: %d/%d occupants", cage, count, r.capacity),
			})
		}
	}
	return res, nil
}
