package stochastic

import "fmt"

// Sector describes one production domain to the builder. Implementations
// declare variables and constraints; they never see the assembled program.
//
// First-stage declarations are scenario-independent. The builder invokes
// the second-stage callbacks once per scenario and weights each scenario's
// objective contribution by its probability.
type Sector interface {
	// FirstStageVariables returns the decisions committed before the
	// realized scenario is known.
	FirstStageVariables() []Var

	// FirstStageConstraints returns constraints over first-stage variables
	// only, such as a shared capacity limit.
	FirstStageConstraints() []Constraint

	// SecondStageVariables returns the recourse decisions for one scenario.
	SecondStageVariables(sc Scenario) []Var

	// SecondStageConstraints returns the constraints coupling first-stage
	// decisions to one scenario's recourse, such as flow balances.
	SecondStageConstraints(sc Scenario) []Constraint

	// ObjectiveTerms returns one scenario's profit expression, unweighted.
	ObjectiveTerms(sc Scenario) *LinearExpr
}

// Build assembles the deterministic equivalent of a two-stage stochastic
// program: first-stage declarations once, second-stage declarations
// replicated per scenario, and the objective
//
//	maximize sum over scenarios of probability * profit
//
// The scenario set is validated before the sector is consulted, so an
// invalid set never triggers any model assembly.
func Build(sector Sector, scenarios ScenarioSet) (*Program, error) {
	if err := scenarios.Validate(); err != nil {
		return nil, err
	}

	p := NewProgram()
	for _, v := range sector.FirstStageVariables() {
		if err := p.AddVariable(v); err != nil {
			return nil, err
		}
	}
	for _, c := range sector.FirstStageConstraints() {
		if err := p.AddConstraint(c); err != nil {
			return nil, err
		}
	}

	for _, sc := range scenarios {
		for _, v := range sector.SecondStageVariables(sc) {
			if err := p.AddVariable(v); err != nil {
				return nil, err
			}
		}
		for _, c := range sector.SecondStageConstraints(sc) {
			if err := p.AddConstraint(c); err != nil {
				return nil, err
			}
		}
		p.objective.AddScaled(sector.ObjectiveTerms(sc), sc.Probability)
	}

	for v := range p.objective.Terms() {
		if _, ok := p.index[v]; !ok {
			return nil, &InternalError{Reason: fmt.Sprintf("objective references undeclared variable %s", v)}
		}
	}
	return p, nil
}
