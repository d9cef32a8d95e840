package stochastic

import (
	"fmt"
	"math"
)

// ProbabilityTolerance bounds how far scenario probabilities may drift from
// summing to one before the set is rejected.
const ProbabilityTolerance = 1e-3

// Scenario is one possible future: a name, an occurrence probability, and a
// yield-change fraction per production unit. Units absent from YieldChanges
// see a zero change.
type Scenario struct {
	Name         string             `json:"name" yaml:"name"`
	Probability  float64            `json:"probability" yaml:"probability"`
	YieldChanges map[string]float64 `json:"yield_changes" yaml:"yield_changes"`
}

// YieldChange returns the yield-change fraction for unit, zero when the
// unit has no entry.
func (s Scenario) YieldChange(unit string) float64 {
	return s.YieldChanges[unit]
}

// ScenarioSet is the finite set of futures a program hedges across.
type ScenarioSet []Scenario

// Validate checks the structural rules for a scenario set: at least one
// scenario, unique non-empty names, each probability within [0, 1], and
// probabilities summing to one within ProbabilityTolerance.
func (set ScenarioSet) Validate() error {
	if len(set) == 0 {
		return &ValidationError{Field: "scenarios", Reason: "at least one scenario is required"}
	}
	seen := make(map[string]struct{}, len(set))
	for i, sc := range set {
		field := fmt.Sprintf("scenarios[%d]", i)
		if sc.Name == "" {
			return &ValidationError{Field: field + ".name", Reason: "scenario name must not be empty"}
		}
		if _, dup := seen[sc.Name]; dup {
			return &ValidationError{Field: field + ".name", Reason: fmt.Sprintf("duplicate scenario name %q", sc.Name)}
		}
		seen[sc.Name] = struct{}{}
		if math.IsNaN(sc.Probability) || sc.Probability < 0 || sc.Probability > 1 {
			return &ValidationError{
				Field:  field + ".probability",
				Reason: fmt.Sprintf("probability %v is outside [0, 1]", sc.Probability),
			}
		}
	}
	if total := set.TotalProbability(); math.Abs(total-1) > ProbabilityTolerance {
		return &ValidationError{
			Field:  "scenarios",
			Reason: fmt.Sprintf("probabilities sum to %v, expected 1 within %v", total, ProbabilityTolerance),
		}
	}
	return nil
}

// TotalProbability sums the scenario probabilities.
func (set ScenarioSet) TotalProbability() float64 {
	var total float64
	for _, sc := range set {
		total += sc.Probability
	}
	return total
}
