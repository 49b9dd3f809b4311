package calibration

import (
	"fmt"
	"math"
	"strings"

	"github.com/bcdannyboy/rangeaccrual/curve"
	"github.com/bcdannyboy/rangeaccrual/models"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

const (
	DefaultMaxIterations = 500
	DefaultTolerance     = 1e-10
)

// Method selects the solver used to fit the curve.
type Method int

const (
	// MethodLevenbergMarquardt solves the least-squares problem on the
	// per-maturity residual vector.
	MethodLevenbergMarquardt Method = iota
	// MethodNelderMead minimises the scalar sum of squares with a simplex.
	MethodNelderMead
)

func (m Method) String() string {
	switch m {
	case MethodLevenbergMarquardt:
		return "levenberg-marquardt"
	case MethodNelderMead:
		return "nelder-mead"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lm", "levenberg-marquardt":
		return MethodLevenbergMarquardt, nil
	case "nm", "nelder-mead":
		return MethodNelderMead, nil
	}
	return 0, fmt.Errorf("unknown calibration method %q: %w", s, models.ErrInvalidParameter)
}

// Bounds box the global search. Only used when Engine.GlobalSearch is set.
type Bounds struct {
	Lower models.ModelParameters
	Upper models.ModelParameters
}

func DefaultBounds() Bounds {
	return Bounds{
		Lower: models.ModelParameters{MeanReversion: 0.01, LongTermMean: -0.02, Volatility: 1e-4, InitialRate: -0.02},
		Upper: models.ModelParameters{MeanReversion: 3, LongTermMean: 0.15, Volatility: 0.1, InitialRate: 0.15},
	}
}

func (b Bounds) validate() error {
	if b.Lower.MeanReversion <= 0 {
		return fmt.Errorf("lower mean reversion bound must be positive: %w", models.ErrInvalidParameter)
	}
	lo, hi := toVector(b.Lower), toVector(b.Upper)
	for i := range lo {
		if !(lo[i] < hi[i]) {
			return fmt.Errorf("bound %d is empty [%g, %g]: %w", i, lo[i], hi[i], models.ErrInvalidParameter)
		}
	}
	return nil
}

// Engine fits Vasicek parameters to a stripped zero-coupon curve by
// minimising sum_i (DF_i - P(0, T_i))^2 over (log k, theta, log sigma, r0).
// Fitted volatilities are therefore strictly positive.
type Engine struct {
	Method        Method
	MaxIterations int     // <= 0 uses DefaultMaxIterations
	Tolerance     float64 // <= 0 uses DefaultTolerance

	// GlobalSearch replaces the caller's guess by the best point a
	// differential evolution finds inside Bounds before the local solve.
	GlobalSearch bool
	Bounds       Bounds
	Seed         uint64

	Logger *zap.Logger
}

// Result is a fitted parameter set and how well it reprices the curve.
type Result struct {
	Params       models.ModelParameters `json:"params"`
	ResidualNorm float64                `json:"residual_norm"`
	Residuals    []float64              `json:"residuals"`
	Iterations   int                    `json:"iterations"`
	Method       string                 `json:"method"`
}

func NewEngine() *Engine {
	return &Engine{
		Method:        MethodLevenbergMarquardt,
		MaxIterations: DefaultMaxIterations,
		Tolerance:     DefaultTolerance,
		Bounds:        DefaultBounds(),
	}
}

func (e *Engine) maxIterations() int {
	if e.MaxIterations > 0 {
		return e.MaxIterations
	}
	return DefaultMaxIterations
}

func (e *Engine) tolerance() float64 {
	if e.Tolerance > 0 {
		return e.Tolerance
	}
	return DefaultTolerance
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// Calibrate fits the model to c starting from guess. When the solver stops
// without converging the error wraps models.ErrNonConvergence and the
// returned Result holds the last iterate; retrying from another guess is
// left to the caller.
func (e *Engine) Calibrate(c curve.Curve, guess models.ModelParameters) (Result, error) {
	if len(c.Points) == 0 {
		return Result{}, fmt.Errorf("nothing to calibrate against: %w", models.ErrMalformedCurve)
	}
	if err := guess.Validate(); err != nil {
		return Result{}, fmt.Errorf("initial guess: %w", err)
	}
	obj := newObjective(c)

	start := guess
	start.Volatility = math.Max(start.Volatility, startVolatility)
	x0 := toVector(start)
	if e.GlobalSearch {
		var err error
		if x0, err = e.globalSearch(obj); err != nil {
			return Result{}, err
		}
		e.logger().Info("global search start point", zap.Stringer("params", fromVector(x0)))
	}

	var (
		x     []float64
		iters int
		err   error
	)
	switch e.Method {
	case MethodLevenbergMarquardt:
		x, iters, err = levenbergMarquardt(obj.residuals, len(obj.maturities), x0, e.maxIterations(), e.tolerance(), e.logger())
	case MethodNelderMead:
		x, iters, err = nelderMead(obj, x0, e.maxIterations(), e.tolerance())
	default:
		return Result{}, fmt.Errorf("unknown calibration method %d: %w", int(e.Method), models.ErrInvalidParameter)
	}
	if x == nil {
		return Result{}, err
	}

	res := Result{
		Params:     fromVector(x),
		Residuals:  make([]float64, len(obj.maturities)),
		Iterations: iters,
		Method:     e.Method.String(),
	}
	if rerr := obj.residuals(res.Residuals, x); rerr != nil {
		return Result{}, rerr
	}
	res.ResidualNorm = floats.Norm(res.Residuals, 2)

	if err != nil {
		e.logger().Warn("calibration did not converge",
			zap.String("method", res.Method),
			zap.Int("iterations", iters),
			zap.Float64("residual_norm", res.ResidualNorm),
			zap.Error(err),
		)
		return res, err
	}
	e.logger().Info("calibration converged",
		zap.String("method", res.Method),
		zap.Int("iterations", iters),
		zap.Stringer("params", res.Params),
		zap.Float64("residual_norm", res.ResidualNorm),
	)
	return res, nil
}

// objective holds the market discount factors the model has to reprice.
type objective struct {
	maturities []float64
	market     []float64
}

func newObjective(c curve.Curve) objective {
	return objective{maturities: c.Maturities(), market: c.DiscountFactors()}
}

func (o objective) residuals(dst, x []float64) error {
	k, sigma := math.Exp(x[0]), math.Exp(x[2])
	for i, T := range o.maturities {
		p, err := models.ZCBondPriceAt(k, x[1], sigma, x[3], 0, T)
		if err != nil {
			return err
		}
		dst[i] = o.market[i] - p
	}
	return nil
}

func (o objective) sumSquares(x []float64) (float64, error) {
	r := make([]float64, len(o.maturities))
	if err := o.residuals(r, x); err != nil {
		return 0, err
	}
	s := 0.0
	for _, v := range r {
		s += v * v
	}
	return s, nil
}

const (
	// minVolatility stands in for a zero sigma in solver coordinates.
	minVolatility = 1e-8
	// startVolatility is the smallest sigma a local solve starts from. The
	// fit is flat in log sigma near zero, so a smaller start leaves the
	// solver on the zero-volatility fit.
	startVolatility = 1e-3
)

func toVector(p models.ModelParameters) []float64 {
	return []float64{math.Log(p.MeanReversion), p.LongTermMean, math.Log(math.Max(p.Volatility, minVolatility)), p.InitialRate}
}

// fromVector undoes the log transforms on k and sigma.
func fromVector(x []float64) models.ModelParameters {
	return models.ModelParameters{
		MeanReversion: math.Exp(x[0]),
		LongTermMean:  x[1],
		Volatility:    math.Exp(x[2]),
		InitialRate:   x[3],
	}
}
