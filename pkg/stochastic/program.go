// Package stochastic assembles two-stage stochastic linear programs into
// their deterministic equivalent: a single flat program whose objective is
// the probability-weighted sum of per-scenario profits.
//
// A domain describes itself through the Sector interface. Build replicates
// the second-stage declarations once per scenario and returns a Program
// ready for a solver backend.
package stochastic

import "fmt"

// Stage identifies when a decision variable commits relative to scenario
// realization.
type Stage int

const (
	// StageFirst variables are fixed before the realized scenario is known
	// and are shared across all scenarios.
	StageFirst Stage = iota + 1
	// StageSecond variables are recourse decisions made per scenario.
	StageSecond
)

func (s Stage) String() string {
	switch s {
	case StageFirst:
		return "first"
	case StageSecond:
		return "second"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Var is the structured identity of a decision variable. Identity is the
// whole tuple: the same unit and channel name distinct variables in
// distinct scenarios.
type Var struct {
	Stage    Stage
	Scenario string
	Unit     string
	Channel  string
}

// FirstStage builds a stage-one variable shared across scenarios.
func FirstStage(unit, channel string) Var {
	return Var{Stage: StageFirst, Unit: unit, Channel: channel}
}

// SecondStage builds a recourse variable bound to a single scenario.
func SecondStage(scenario, unit, channel string) Var {
	return Var{Stage: StageSecond, Scenario: scenario, Unit: unit, Channel: channel}
}

func (v Var) String() string {
	if v.Stage == StageFirst {
		return fmt.Sprintf("%s[%s]", v.Channel, v.Unit)
	}
	return fmt.Sprintf("%s[%s@%s]", v.Channel, v.Unit, v.Scenario)
}

// LinearExpr is a linear combination of decision variables plus a constant
// offset. The zero value is not usable; construct with NewExpr.
type LinearExpr struct {
	terms    map[Var]float64
	constant float64
}

// NewExpr returns an empty expression.
func NewExpr() *LinearExpr {
	return &LinearExpr{terms: make(map[Var]float64)}
}

// Add accumulates coeff onto the coefficient of v and returns the
// expression for chaining.
func (e *LinearExpr) Add(v Var, coeff float64) *LinearExpr {
	e.terms[v] += coeff
	return e
}

// AddConst accumulates a constant offset.
func (e *LinearExpr) AddConst(c float64) *LinearExpr {
	e.constant += c
	return e
}

// AddScaled accumulates scale*other onto e.
func (e *LinearExpr) AddScaled(other *LinearExpr, scale float64) *LinearExpr {
	for v, coeff := range other.terms {
		e.terms[v] += scale * coeff
	}
	e.constant += scale * other.constant
	return e
}

// Coeff returns the coefficient of v, zero when absent.
func (e *LinearExpr) Coeff(v Var) float64 { return e.terms[v] }

// Constant returns the constant offset.
func (e *LinearExpr) Constant() float64 { return e.constant }

// Terms exposes the coefficient map. Callers must treat it as read-only.
func (e *LinearExpr) Terms() map[Var]float64 { return e.terms }

// Len returns the number of variables with a recorded coefficient.
func (e *LinearExpr) Len() int { return len(e.terms) }

// Sense is the comparison direction of a constraint.
type Sense int

const (
	LessEq Sense = iota
	GreaterEq
	Equal
)

func (s Sense) String() string {
	switch s {
	case LessEq:
		return "<="
	case GreaterEq:
		return ">="
	case Equal:
		return "=="
	default:
		return fmt.Sprintf("Sense(%d)", int(s))
	}
}

// Constraint relates a linear expression to a bound. Names must be unique
// within a program; sectors qualify them with unit and scenario names.
type Constraint struct {
	Name  string
	Expr  *LinearExpr
	Sense Sense
	RHS   float64
}

// NewConstraint builds a constraint, folding any constant offset in expr
// into the bound.
func NewConstraint(name string, expr *LinearExpr, sense Sense, rhs float64) Constraint {
	if expr.constant != 0 {
		rhs -= expr.constant
		expr.constant = 0
	}
	return Constraint{Name: name, Expr: expr, Sense: sense, RHS: rhs}
}

// Program is a deterministic-equivalent linear program: a flat variable
// registry, a constraint list, and an objective to maximize. Variables keep
// insertion order, which fixes the column order handed to the solver and
// makes repeated solves of the same input identical.
type Program struct {
	vars        []Var
	index       map[Var]int
	constraints []Constraint
	names       map[string]struct{}
	objective   *LinearExpr
}

// NewProgram returns an empty program.
func NewProgram() *Program {
	return &Program{
		index:     make(map[Var]int),
		names:     make(map[string]struct{}),
		objective: NewExpr(),
	}
}

// AddVariable registers a decision variable. Declaring the same identity
// twice is a modeling defect.
func (p *Program) AddVariable(v Var) error {
	if _, ok := p.index[v]; ok {
		return &InternalError{Reason: fmt.Sprintf("variable %s declared twice", v)}
	}
	p.index[v] = len(p.vars)
	p.vars = append(p.vars, v)
	return nil
}

// AddConstraint registers a constraint. Every referenced variable must
// already be declared, and the expression must carry at least one term so
// the solver never sees an all-zero row.
func (p *Program) AddConstraint(c Constraint) error {
	if _, ok := p.names[c.Name]; ok {
		return &InternalError{Reason: fmt.Sprintf("constraint %q declared twice", c.Name)}
	}
	if c.Expr.Len() == 0 {
		return &InternalError{Reason: fmt.Sprintf("constraint %q has no terms", c.Name)}
	}
	for v := range c.Expr.Terms() {
		if _, ok := p.index[v]; !ok {
			return &InternalError{Reason: fmt.Sprintf("constraint %q references undeclared variable %s", c.Name, v)}
		}
	}
	p.names[c.Name] = struct{}{}
	p.constraints = append(p.constraints, c)
	return nil
}

// Vars returns the variables in column order.
func (p *Program) Vars() []Var { return p.vars }

// VarIndex returns the column index of v.
func (p *Program) VarIndex(v Var) (int, bool) {
	i, ok := p.index[v]
	return i, ok
}

// NumVars returns the number of declared variables.
func (p *Program) NumVars() int { return len(p.vars) }

// Constraints returns the constraints in declaration order.
func (p *Program) Constraints() []Constraint { return p.constraints }

// NumConstraints returns the number of declared constraints.
func (p *Program) NumConstraints() int { return len(p.constraints) }

// Objective returns the live maximization objective.
func (p *Program) Objective() *LinearExpr { return p.objective }
