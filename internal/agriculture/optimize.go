package agriculture

import (
	"context"

	"github.com/terminal-bench/stochopt/pkg/solver"
	"github.com/terminal-bench/stochopt/pkg/stochastic"
)

// Options tunes a single optimization run.
type Options struct {
	// Tolerance is passed through to the simplex backend; zero selects the
	// solver default.
	Tolerance float64
}

// Optimize validates a planning request, assembles its deterministic
// equivalent, solves it, and synthesizes the business results.
//
// Failures are typed: *stochastic.ValidationError for rejected input,
// stochastic.ErrInfeasible and stochastic.ErrUnbounded for unsolvable
// models, *stochastic.SolverError for backend failures including an expired
// context, and *stochastic.InternalError for defects caught during assembly
// or synthesis.
func Optimize(ctx context.Context, in *Input, opts Options) (*PlanResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	prog, err := stochastic.Build(newSector(in), in.Scenarios)
	if err != nil {
		return nil, err
	}
	sol, err := solver.Solve(ctx, prog, solver.Options{Tolerance: opts.Tolerance})
	if err != nil {
		return nil, err
	}
	return synthesize(in, sol)
}
