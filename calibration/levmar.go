package calibration

import (
	"fmt"
	"math"

	"github.com/bcdannyboy/rangeaccrual/models"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	initialDamping = 1e-3
	minDamping     = 1e-12
	maxDamping     = 1e16
	// stopDamping is the largest damping under which a short step or a
	// flat cost still counts as convergence. Above it the step is short
	// because of the damping, not because the solver reached a minimum.
	stopDamping = 1e3
	// scaleFloor bounds each Marquardt scale below by this fraction of the
	// largest one, so a parameter the curve barely sees cannot take a huge
	// step at moderate damping.
	scaleFloor = 1e-4
	// costFloor is a sum of squares indistinguishable from an exact fit.
	costFloor = 1e-28
)

// residualFunc writes the residual vector at x into dst.
type residualFunc func(dst, x []float64) error

// levenbergMarquardt minimises |r(x)|^2 over m residuals with a damped
// Gauss-Newton step
//
//	(J'J + lambda D) delta = -J'r,  D_ii = max(J'J_ii, scaleFloor max_j J'J_jj)
//
// using a central-difference Jacobian. It converges when the gradient
// falls below tol max(1, cost), or when the relative step or the relative
// cost reduction falls below tol while lambda <= stopDamping. A step that
// only gets accepted under heavier damping is reported as a stall.
func levenbergMarquardt(res residualFunc, m int, x0 []float64, maxIter int, tol float64, log *zap.Logger) ([]float64, int, error) {
	n := len(x0)

	x := append([]float64(nil), x0...)
	r := make([]float64, m)
	if err := res(r, x); err != nil {
		return nil, 0, fmt.Errorf("residuals at start point: %w", err)
	}
	cost := floats.Dot(r, r)

	var evalErr error
	f := func(y, p []float64) {
		if err := res(y, p); err != nil && evalErr == nil {
			evalErr = err
		}
	}

	jac := mat.NewDense(m, n, nil)
	trial := make([]float64, n)
	rTrial := make([]float64, m)
	lambda := initialDamping

	for iter := 1; iter <= maxIter; iter++ {
		if cost <= costFloor {
			return x, iter - 1, nil
		}

		evalErr = nil
		fd.Jacobian(jac, f, x, &fd.JacobianSettings{Formula: fd.Central})
		if evalErr != nil {
			return x, iter, fmt.Errorf("jacobian at iteration %d: %w", iter, evalErr)
		}

		var jtj mat.SymDense
		jtj.SymOuterK(1, jac.T())
		var grad mat.VecDense
		grad.MulVec(jac.T(), mat.NewVecDense(m, r))
		if mat.Norm(&grad, math.Inf(1)) <= tol*math.Max(1, cost) {
			return x, iter, nil
		}

		scale := make([]float64, n)
		for i := range scale {
			scale[i] = jtj.At(i, i)
		}
		floor := math.Max(scaleFloor*floats.Max(scale), 1e-12)
		for i := range scale {
			scale[i] = math.Max(scale[i], floor)
		}

		accepted := false
		for !accepted {
			if lambda > maxDamping {
				return x, iter, fmt.Errorf("damping exhausted at iteration %d with cost %g: %w", iter, cost, models.ErrNonConvergence)
			}

			a := mat.NewSymDense(n, nil)
			a.CopySym(&jtj)
			for i := 0; i < n; i++ {
				a.SetSym(i, i, jtj.At(i, i)+lambda*scale[i])
			}

			var chol mat.Cholesky
			if !chol.Factorize(a) {
				lambda *= 10
				continue
			}
			var step mat.VecDense
			if err := chol.SolveVecTo(&step, &grad); err != nil {
				lambda *= 10
				continue
			}
			for i := range trial {
				trial[i] = x[i] - step.AtVec(i)
			}

			if err := res(rTrial, trial); err != nil {
				lambda *= 10
				continue
			}
			newCost := floats.Dot(rTrial, rTrial)
			if math.IsNaN(newCost) || newCost >= cost {
				lambda *= 10
				continue
			}

			accepted = true
			damping := lambda
			stepNorm := mat.Norm(&step, 2)
			reduction := cost - newCost
			copy(x, trial)
			copy(r, rTrial)
			cost = newCost
			lambda = math.Max(lambda/10, minDamping)

			log.Debug("levenberg-marquardt step",
				zap.Int("iteration", iter),
				zap.Float64("cost", cost),
				zap.Float64("step", stepNorm),
				zap.Float64("lambda", damping),
			)

			if stepNorm <= tol*(floats.Norm(x, 2)+tol) || reduction <= tol*(cost+reduction) {
				if damping <= stopDamping {
					return x, iter, nil
				}
				return x, iter, fmt.Errorf("stalled at iteration %d with damping %g and cost %g: %w", iter, damping, cost, models.ErrNonConvergence)
			}
		}
	}
	return x, maxIter, fmt.Errorf("no convergence after %d iterations, cost %g: %w", maxIter, cost, models.ErrNonConvergence)
}
