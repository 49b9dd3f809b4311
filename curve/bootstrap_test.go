package curve

import (
	"math"
	"testing"

	"github.com/bcdannyboy/rangeaccrual/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func flatQuotes(x float64, swapYears ...int) []MarketPoint {
	quotes := []MarketPoint{
		{Maturity: 1.0 / 12, Label: "1M", Rate: x},
		{Maturity: 0.25, Label: "3M", Rate: x},
		{Maturity: 0.5, Label: "6M", Rate: x},
		{Maturity: 1, Label: "1Y", Rate: x},
	}
	for _, y := range swapYears {
		quotes = append(quotes, MarketPoint{Maturity: float64(y), Rate: x})
	}
	return quotes
}

func TestBootstrapFlatCurveKeepsRate(t *testing.T) {
	const x = 0.03
	c, err := NewBootstrapper().Bootstrap(flatQuotes(x, 2, 3, 4, 5, 6, 7, 8, 9, 10))
	require.NoError(t, err)
	require.Len(t, c.Points, 13)
	assert.Empty(t, c.Warnings)

	for _, p := range c.Points {
		assert.InDelta(t, x, p.Rate, 1e-12, "maturity %g", p.Maturity)
	}
	for _, p := range c.Points[3:] {
		assert.InDelta(t, math.Pow(1+x, -p.Maturity), p.DiscountFactor, 1e-12)
	}
	assert.InDelta(t, 1/(1+0.25*x), c.Points[1].DiscountFactor, 1e-15)
}

func TestBootstrapSwapsStartingAtOneYear(t *testing.T) {
	const x = 0.02
	quotes := []MarketPoint{
		{Maturity: 1.0 / 12, Rate: x},
		{Maturity: 0.25, Rate: x},
		{Maturity: 0.5, Rate: x},
		{Maturity: 0.75, Rate: x},
		{Maturity: 1, Rate: x},
		{Maturity: 2, Rate: x},
	}
	c, err := NewBootstrapper().Bootstrap(quotes)
	require.NoError(t, err)
	assert.InDelta(t, 1/(1+x), c.Points[4].DiscountFactor, 1e-15)
	assert.InDelta(t, math.Pow(1+x, -2), c.Points[5].DiscountFactor, 1e-15)
}

func TestBootstrapFillsMissingYears(t *testing.T) {
	const x = 0.025
	full, err := NewBootstrapper().Bootstrap(flatQuotes(x, 2, 3, 4, 5, 6, 7, 8, 9, 10))
	require.NoError(t, err)
	sparse, err := NewBootstrapper().Bootstrap(flatQuotes(x, 2, 5, 10))
	require.NoError(t, err)

	require.Len(t, sparse.Points, 7)
	for _, p := range sparse.Points {
		df, err := full.DiscountFactor(p.Maturity)
		require.NoError(t, err)
		assert.InDelta(t, df, p.DiscountFactor, 1e-12)
	}
}

func TestBootstrapSeedsOneYearFromLastDeposit(t *testing.T) {
	quotes := []MarketPoint{
		{Maturity: 1.0 / 12, Rate: 0.020},
		{Maturity: 0.25, Rate: 0.022},
		{Maturity: 0.5, Rate: 0.025},
		{Maturity: 0.75, Rate: 0.028},
		{Maturity: 2, Rate: 0.032},
		{Maturity: 4, Rate: 0.036},
	}
	c, err := NewBootstrapper().Bootstrap(quotes)
	require.NoError(t, err)
	require.Len(t, c.Points, 6)

	annuity := 1 / 1.028
	df2 := (1 - 0.032*annuity) / 1.032
	assert.InDelta(t, df2, c.Points[4].DiscountFactor, 1e-15)

	annuity += df2
	df3 := (1 - 0.034*annuity) / 1.034
	annuity += df3
	assert.InDelta(t, (1-0.036*annuity)/1.036, c.Points[5].DiscountFactor, 1e-15)
}

func TestBootstrapRecoversModelCurve(t *testing.T) {
	p := models.ModelParameters{MeanReversion: 0.3, LongTermMean: 0.045, Volatility: 0.01, InitialRate: 0.025}
	quotes, want := modelQuotes(t, p, 15)

	c, err := NewBootstrapper().Bootstrap(quotes)
	require.NoError(t, err)
	assert.True(t, floats.EqualApprox(want, c.DiscountFactors(), 1e-12))
}

func TestBootstrapMalformedInput(t *testing.T) {
	tests := []struct {
		name   string
		quotes []MarketPoint
	}{
		{"too few", flatQuotes(0.03)[:3]},
		{"unordered", []MarketPoint{{0.5, "", 0.01}, {0.25, "", 0.01}, {0.75, "", 0.01}, {1, "", 0.01}}},
		{"zero maturity", []MarketPoint{{0, "", 0.01}, {0.25, "", 0.01}, {0.75, "", 0.01}, {1, "", 0.01}}},
		{"nan rate", []MarketPoint{{0.1, "", math.NaN()}, {0.25, "", 0.01}, {0.75, "", 0.01}, {1, "", 0.01}}},
		{"off-grid swap", append(flatQuotes(0.03), MarketPoint{Maturity: 2.5, Rate: 0.03})},
		{"negative discount factor", append(flatQuotes(0.03), MarketPoint{Maturity: 2, Rate: 1.5})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBootstrapper().Bootstrap(tt.quotes)
			assert.ErrorIs(t, err, models.ErrMalformedCurve)
		})
	}
}

func TestBootstrapWarnsOnNonMonotonicDiscountFactors(t *testing.T) {
	quotes := flatQuotes(0.03, 2, 3)
	quotes[5].Rate = -0.02

	c, err := NewBootstrapper().Bootstrap(quotes)
	require.NoError(t, err)
	require.Len(t, c.Warnings, 1)
	assert.Contains(t, c.Warnings[0], "at 3y")

	strict := &Bootstrapper{Strict: true}
	_, err = strict.Bootstrap(quotes)
	assert.ErrorIs(t, err, models.ErrMalformedCurve)
}

func TestShift(t *testing.T) {
	quotes := flatQuotes(0.03, 2)
	shifted := Shift(quotes, 0.01)
	for i := range quotes {
		assert.InDelta(t, 0.04, shifted[i].Rate, 1e-15)
		assert.Equal(t, quotes[i].Maturity, shifted[i].Maturity)
		assert.Equal(t, 0.03, quotes[i].Rate)
	}

	base, err := NewBootstrapper().Bootstrap(quotes)
	require.NoError(t, err)
	up, err := NewBootstrapper().Bootstrap(shifted)
	require.NoError(t, err)
	for i := range base.Points {
		assert.Less(t, up.Points[i].DiscountFactor, base.Points[i].DiscountFactor)
	}
}

// modelQuotes prices deposits and annual par swaps off the Vasicek curve.
func modelQuotes(t *testing.T, p models.ModelParameters, years int) ([]MarketPoint, []float64) {
	t.Helper()
	var quotes []MarketPoint
	var dfs []float64
	for _, m := range []float64{0.25, 0.5, 0.75, 1} {
		df, err := models.ZCBondPrice(p, 0, m)
		require.NoError(t, err)
		quotes = append(quotes, MarketPoint{Maturity: m, Rate: (1/df - 1) / m})
		dfs = append(dfs, df)
	}
	annuity := dfs[3]
	for y := 2; y <= years; y++ {
		df, err := models.ZCBondPrice(p, 0, float64(y))
		require.NoError(t, err)
		annuity += df
		quotes = append(quotes, MarketPoint{Maturity: float64(y), Rate: (1 - df) / annuity})
		dfs = append(dfs, df)
	}
	return quotes, dfs
}
