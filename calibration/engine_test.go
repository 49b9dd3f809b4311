package calibration

import (
	"math"
	"testing"

	"github.com/bcdannyboy/rangeaccrual/curve"
	"github.com/bcdannyboy/rangeaccrual/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var truth = models.ModelParameters{MeanReversion: 0.3, LongTermMean: 0.045, Volatility: 0.012, InitialRate: 0.02}

// modelCurve builds the curve the model itself implies at the usual pillars.
func modelCurve(t *testing.T, p models.ModelParameters) curve.Curve {
	t.Helper()
	maturities := []float64{0.25, 0.5, 0.75, 1, 2, 3, 4, 5, 7, 10, 15, 20}
	points, err := models.ModelCurve(p, maturities)
	require.NoError(t, err)
	var c curve.Curve
	for _, pt := range points {
		c.Points = append(c.Points, curve.ZCPoint{Maturity: pt.Maturity, Rate: pt.Rate, DiscountFactor: pt.Price})
	}
	return c
}

// bootstrappedCurve strips deposits and annual par swaps priced off the model.
func bootstrappedCurve(t *testing.T, p models.ModelParameters, years int) curve.Curve {
	t.Helper()
	var quotes []curve.MarketPoint
	var annuity float64
	for _, m := range []float64{0.25, 0.5, 0.75, 1} {
		df, err := models.ZCBondPrice(p, 0, m)
		require.NoError(t, err)
		quotes = append(quotes, curve.MarketPoint{Maturity: m, Rate: (1/df - 1) / m})
		annuity = df
	}
	for y := 2; y <= years; y++ {
		df, err := models.ZCBondPrice(p, 0, float64(y))
		require.NoError(t, err)
		annuity += df
		quotes = append(quotes, curve.MarketPoint{Maturity: float64(y), Rate: (1 - df) / annuity})
	}
	c, err := curve.NewBootstrapper().Bootstrap(quotes)
	require.NoError(t, err)
	return c
}

func perturbed() models.ModelParameters {
	return models.ModelParameters{MeanReversion: 0.5, LongTermMean: 0.035, Volatility: 0.02, InitialRate: 0.025}
}

func TestCalibrateFromTruthStaysPut(t *testing.T) {
	res, err := NewEngine().Calibrate(modelCurve(t, truth), truth)
	require.NoError(t, err)

	assert.InDelta(t, truth.MeanReversion, res.Params.MeanReversion, 1e-9)
	assert.InDelta(t, truth.LongTermMean, res.Params.LongTermMean, 1e-9)
	assert.InDelta(t, truth.Volatility, res.Params.Volatility, 1e-9)
	assert.InDelta(t, truth.InitialRate, res.Params.InitialRate, 1e-9)
	assert.Less(t, res.ResidualNorm, 1e-12)
	assert.Equal(t, "levenberg-marquardt", res.Method)
	assert.Len(t, res.Residuals, 12)
}

func TestCalibrateBootstrappedFromTruth(t *testing.T) {
	res, err := NewEngine().Calibrate(bootstrappedCurve(t, truth, 20), truth)
	require.NoError(t, err)

	assert.InDelta(t, truth.MeanReversion, res.Params.MeanReversion, 1e-9)
	assert.InDelta(t, truth.LongTermMean, res.Params.LongTermMean, 1e-9)
	assert.InDelta(t, truth.Volatility, res.Params.Volatility, 1e-9)
	assert.InDelta(t, truth.InitialRate, res.Params.InitialRate, 1e-9)
	assert.Less(t, res.ResidualNorm, 1e-12)
}

func TestCalibrateRecoversBootstrappedCurve(t *testing.T) {
	c := bootstrappedCurve(t, truth, 20)

	for name, guess := range map[string]models.ModelParameters{
		"perturbed":       perturbed(),
		"zero volatility": {MeanReversion: 0.5, LongTermMean: 0.035, Volatility: 0, InitialRate: 0.025},
	} {
		t.Run(name, func(t *testing.T) {
			res, err := NewEngine().Calibrate(c, guess)
			require.NoError(t, err)
			assert.Greater(t, res.Iterations, 0)
			assert.Less(t, res.ResidualNorm, 1e-10)

			assert.InDelta(t, truth.MeanReversion, res.Params.MeanReversion, 1e-6)
			assert.InDelta(t, truth.LongTermMean, res.Params.LongTermMean, 1e-6)
			assert.InDelta(t, truth.Volatility, res.Params.Volatility, 1e-6)
			assert.InDelta(t, truth.InitialRate, res.Params.InitialRate, 1e-6)

			for _, pt := range c.Points {
				df, err := models.ZCBondPrice(res.Params, 0, pt.Maturity)
				require.NoError(t, err)
				assert.InDelta(t, pt.DiscountFactor, df, 1e-9, "maturity %g", pt.Maturity)
			}
		})
	}
}

func TestCalibrateIterationCap(t *testing.T) {
	e := NewEngine()
	e.MaxIterations = 1

	res, err := e.Calibrate(modelCurve(t, truth), perturbed())
	require.ErrorIs(t, err, models.ErrNonConvergence)
	assert.Equal(t, 1, res.Iterations)
	assert.Greater(t, res.ResidualNorm, 0.0)
	assert.NoError(t, res.Params.Validate())
}

func TestCalibrateNelderMead(t *testing.T) {
	e := NewEngine()
	e.Method = MethodNelderMead
	e.MaxIterations = 1000

	res, err := e.Calibrate(modelCurve(t, truth), truth)
	require.NoError(t, err)
	assert.Equal(t, "nelder-mead", res.Method)
	assert.InDelta(t, truth.MeanReversion, res.Params.MeanReversion, 1e-3)
	assert.InDelta(t, truth.LongTermMean, res.Params.LongTermMean, 1e-3)
	assert.InDelta(t, truth.InitialRate, res.Params.InitialRate, 1e-3)
	assert.Less(t, res.ResidualNorm, 1e-8)
}

func TestCalibrateGlobalSearch(t *testing.T) {
	e := NewEngine()
	e.GlobalSearch = true
	e.Seed = 7
	e.MaxIterations = 500

	bad := models.ModelParameters{MeanReversion: 2.5, LongTermMean: 0.1, Volatility: 0.09, InitialRate: 0.12}
	res, err := e.Calibrate(modelCurve(t, truth), bad)
	if err != nil {
		require.ErrorIs(t, err, models.ErrNonConvergence)
	}
	assert.False(t, math.IsNaN(res.ResidualNorm))
	assert.Less(t, res.ResidualNorm, 1e-3)
	assert.NoError(t, res.Params.Validate())
}

func TestCalibrateRejectsBadInput(t *testing.T) {
	e := NewEngine()

	_, err := e.Calibrate(curve.Curve{}, truth)
	assert.ErrorIs(t, err, models.ErrMalformedCurve)

	_, err = e.Calibrate(modelCurve(t, truth), models.ModelParameters{MeanReversion: -1, Volatility: 0.01})
	assert.ErrorIs(t, err, models.ErrInvalidParameter)

	e.GlobalSearch = true
	e.Bounds = Bounds{Lower: truth, Upper: truth}
	_, err = e.Calibrate(modelCurve(t, truth), truth)
	assert.ErrorIs(t, err, models.ErrInvalidParameter)

	e = NewEngine()
	e.Method = Method(9)
	_, err = e.Calibrate(modelCurve(t, truth), truth)
	assert.ErrorIs(t, err, models.ErrInvalidParameter)
}

func TestParseMethod(t *testing.T) {
	for in, want := range map[string]Method{
		"":                    MethodLevenbergMarquardt,
		"lm":                  MethodLevenbergMarquardt,
		"Levenberg-Marquardt": MethodLevenbergMarquardt,
		"nelder-mead":         MethodNelderMead,
		" nm ":                MethodNelderMead,
	} {
		got, err := ParseMethod(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMethod("bfgs")
	assert.ErrorIs(t, err, models.ErrInvalidParameter)
}

func TestVectorRoundTrip(t *testing.T) {
	x := toVector(truth)
	assert.InDelta(t, math.Log(0.3), x[0], 1e-15)
	assert.InDelta(t, math.Log(0.012), x[2], 1e-15)
	got := fromVector(x)
	assert.InDelta(t, truth.MeanReversion, got.MeanReversion, 1e-15)
	assert.InDelta(t, truth.Volatility, got.Volatility, 1e-15)

	flat := truth
	flat.Volatility = 0
	assert.Equal(t, math.Log(minVolatility), toVector(flat)[2])
	assert.Greater(t, fromVector(toVector(flat)).Volatility, 0.0)

	u := fromUnit([]float64{-0.5, 0, 0.5, 2}, []float64{0, 0, 0, 0}, []float64{2, 2, 2, 2})
	assert.Equal(t, []float64{0, 0, 1, 2}, u)
}

// kinked is a one-dimensional residual whose central difference sees a
// slope at origin while every step longer than width raises the cost.
func kinked(origin, width float64) residualFunc {
	return func(dst, x []float64) error {
		d := x[0] - origin
		switch {
		case d >= 0:
			dst[0] = 1 + 2*d
		default:
			dst[0] = 1 - d - 2*math.Min(-d, width)
		}
		return nil
	}
}

func TestLevenbergMarquardtStalls(t *testing.T) {
	for name, width := range map[string]float64{
		"tiny descent under heavy damping": 1e-13,
		"no descent at all":                0,
	} {
		t.Run(name, func(t *testing.T) {
			x, iters, err := levenbergMarquardt(kinked(0.5, width), 1, []float64{0.5}, 100, DefaultTolerance, zap.NewNop())
			require.ErrorIs(t, err, models.ErrNonConvergence)
			require.Len(t, x, 1)
			assert.InDelta(t, 0.5, x[0], 1e-12)
			assert.Equal(t, 1, iters)
		})
	}
}
