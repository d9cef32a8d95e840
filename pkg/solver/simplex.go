// Package solver runs assembled programs through gonum's dense simplex
// method and maps its verdicts onto the failure taxonomy.
package solver

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/terminal-bench/stochopt/pkg/stochastic"
)

// DefaultTolerance is the simplex convergence tolerance used when Options
// leaves it unset.
const DefaultTolerance = 1e-9

// negligible is the magnitude below which a negative solution value is
// treated as simplex round-off and clamped to zero.
const negligible = 1e-7

// Options tunes a single solve.
type Options struct {
	// Tolerance overrides DefaultTolerance when positive.
	Tolerance float64
}

// Solution is an optimal assignment: one value per declared variable and
// the maximized objective value.
type Solution struct {
	Objective float64
	Values    map[stochastic.Var]float64
}

// Solve runs the dense simplex method over p, treating every variable as
// non-negative. Infeasible and unbounded programs surface as
// stochastic.ErrInfeasible and stochastic.ErrUnbounded; any other backend
// failure becomes a *stochastic.SolverError.
//
// The simplex iteration itself cannot be interrupted, so cancellation is
// observed before the solve starts and again while waiting for the result.
// An abandoned iteration finishes in the background and is discarded.
func Solve(ctx context.Context, p *stochastic.Program, opts Options) (*Solution, error) {
	if err := ctx.Err(); err != nil {
		return nil, &stochastic.SolverError{Reason: "solve aborted before start", Err: err}
	}

	tol := opts.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}

	n := p.NumVars()
	if n == 0 {
		return nil, &stochastic.SolverError{Reason: "program declares no variables"}
	}

	// Standard form minimizes, so negate the maximization objective.
	c := make([]float64, n)
	for v, coeff := range p.Objective().Terms() {
		i, ok := p.VarIndex(v)
		if !ok {
			return nil, &stochastic.InternalError{Reason: fmt.Sprintf("objective references undeclared variable %s", v)}
		}
		c[i] = -coeff
	}

	ineq, ineqRHS, eq, eqRHS := partition(p)

	// lp.Convert treats every variable as free, so each variable carries an
	// explicit -x <= 0 row to pin it non-negative.
	rows := len(ineq) + n
	g := mat.NewDense(rows, n, nil)
	h := make([]float64, rows)
	for r, row := range ineq {
		for i, coeff := range row {
			if coeff != 0 {
				g.Set(r, i, coeff)
			}
		}
		h[r] = ineqRHS[r]
	}
	for i := 0; i < n; i++ {
		g.Set(len(ineq)+i, i, -1)
	}

	var a mat.Matrix
	var b []float64
	if len(eq) > 0 {
		dense := mat.NewDense(len(eq), n, nil)
		for r, row := range eq {
			for i, coeff := range row {
				if coeff != 0 {
					dense.Set(r, i, coeff)
				}
			}
		}
		a = dense
		b = eqRHS
	}

	cStd, aStd, bStd := lp.Convert(c, g, h, a, b)

	type outcome struct {
		opt float64
		x   []float64
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		opt, x, err := lp.Simplex(cStd, aStd, bStd, tol, nil)
		done <- outcome{opt: opt, x: x, err: err}
	}()

	var res outcome
	select {
	case <-ctx.Done():
		return nil, &stochastic.SolverError{Reason: "solve aborted", Err: ctx.Err()}
	case res = <-done:
	}

	switch {
	case errors.Is(res.err, lp.ErrInfeasible):
		return nil, stochastic.ErrInfeasible
	case errors.Is(res.err, lp.ErrUnbounded):
		return nil, stochastic.ErrUnbounded
	case res.err != nil:
		return nil, &stochastic.SolverError{Reason: "simplex failed", Err: res.err}
	}

	if len(res.x) < 2*n {
		return nil, &stochastic.SolverError{Reason: fmt.Sprintf("simplex returned %d columns for %d variables", len(res.x), n)}
	}

	// Convert splits each free variable into positive and negative parts;
	// the original value is their difference.
	values := make(map[stochastic.Var]float64, n)
	for i, v := range p.Vars() {
		val := res.x[i] - res.x[n+i]
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, &stochastic.SolverError{Reason: fmt.Sprintf("non-finite value for variable %s", v)}
		}
		if val < 0 && val > -negligible {
			val = 0
		}
		values[v] = val
	}

	objective := -res.opt
	if math.IsNaN(objective) || math.IsInf(objective, 0) {
		return nil, &stochastic.SolverError{Reason: "non-finite objective value"}
	}

	return &Solution{Objective: objective, Values: values}, nil
}

// partition flattens constraints into dense inequality rows in <= form and
// equality rows. GreaterEq rows are negated into LessEq form.
func partition(p *stochastic.Program) (ineq [][]float64, ineqRHS []float64, eq [][]float64, eqRHS []float64) {
	n := p.NumVars()
	for _, con := range p.Constraints() {
		row := make([]float64, n)
		for v, coeff := range con.Expr.Terms() {
			i, _ := p.VarIndex(v)
			row[i] = coeff
		}
		switch con.Sense {
		case stochastic.GreaterEq:
			for i := range row {
				row[i] = -row[i]
			}
			ineq = append(ineq, row)
			ineqRHS = append(ineqRHS, -con.RHS)
		case stochastic.Equal:
			eq = append(eq, row)
			eqRHS = append(eqRHS, con.RHS)
		default:
			ineq = append(ineq, row)
			ineqRHS = append(ineqRHS, con.RHS)
		}
	}
	return ineq, ineqRHS, eq, eqRHS
}
