package curve

import (
	"fmt"
	"math"
	"sort"

	"github.com/bcdannyboy/rangeaccrual/models"
)

func (c Curve) Maturities() []float64 {
	out := make([]float64, len(c.Points))
	for i, p := range c.Points {
		out[i] = p.Maturity
	}
	return out
}

func (c Curve) DiscountFactors() []float64 {
	out := make([]float64, len(c.Points))
	for i, p := range c.Points {
		out[i] = p.DiscountFactor
	}
	return out
}

func (c Curve) Rates() []float64 {
	out := make([]float64, len(c.Points))
	for i, p := range c.Points {
		out[i] = p.Rate
	}
	return out
}

// DiscountFactor interpolates log-linearly between pillars, with (0, 1) as
// the implicit first node, and extrapolates the last forward rate flat.
func (c Curve) DiscountFactor(T float64) (float64, error) {
	if math.IsNaN(T) || T < 0 {
		return 0, fmt.Errorf("maturity %g: %w", T, models.ErrInvalidParameter)
	}
	if len(c.Points) == 0 {
		return 0, fmt.Errorf("empty curve: %w", models.ErrMalformedCurve)
	}
	if T == 0 {
		return 1, nil
	}

	times := c.Maturities()
	idx := sort.SearchFloat64s(times, T)
	if idx < len(times) && times[idx] == T {
		return c.Points[idx].DiscountFactor, nil
	}
	if idx == len(times) {
		idx--
	}

	t1, df1 := 0.0, 1.0
	if idx > 0 {
		t1, df1 = times[idx-1], c.Points[idx-1].DiscountFactor
	}
	t2, df2 := times[idx], c.Points[idx].DiscountFactor

	forward := math.Log(df1/df2) / (t2 - t1)
	return df1 * math.Exp(-forward*(T-t1)), nil
}

// ZeroRate is the annually compounded zero rate implied at T.
func (c Curve) ZeroRate(T float64) (float64, error) {
	df, err := c.DiscountFactor(T)
	if err != nil {
		return 0, err
	}
	return models.ZCRate(df, T)
}
