package calibration

import (
	"fmt"
	"math"

	"github.com/bcdannyboy/rangeaccrual/models"
	"gonum.org/v1/gonum/optimize"
)

// stallIterations is how many simplex moves without improvement end the search.
const stallIterations = 100

// nelderMead minimises the scalar sum of squared residuals. Points where the
// bond formula degenerates score +Inf so the simplex walks away from them.
func nelderMead(o objective, x0 []float64, maxIter int, tol float64) ([]float64, int, error) {
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			v, err := o.sumSquares(x)
			if err != nil || math.IsNaN(v) {
				return math.Inf(1)
			}
			return v
		},
	}
	settings := &optimize.Settings{
		MajorIterations: maxIter,
		Converger: &optimize.FunctionConverge{
			Absolute:   tol * tol,
			Relative:   tol,
			Iterations: stallIterations,
		},
	}

	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if err != nil {
		if result == nil || result.X == nil {
			return nil, 0, fmt.Errorf("nelder-mead: %v: %w", err, models.ErrNonConvergence)
		}
		return result.X, result.Stats.MajorIterations, fmt.Errorf("nelder-mead: %v: %w", err, models.ErrNonConvergence)
	}

	switch result.Status {
	case optimize.IterationLimit, optimize.FunctionEvaluationLimit, optimize.RuntimeLimit, optimize.Failure, optimize.NotTerminated:
		return result.X, result.Stats.MajorIterations,
			fmt.Errorf("nelder-mead stopped with %v after %d iterations: %w", result.Status, result.Stats.MajorIterations, models.ErrNonConvergence)
	}
	return result.X, result.Stats.MajorIterations, nil
}
