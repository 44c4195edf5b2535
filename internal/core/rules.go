package core

import "mousedb/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in policy set
// evaluated before every save.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(LineageIntegrityRule())
	engine.Register(NewCageCapacityRule(DefaultCageCapacity))
	return engine
}
