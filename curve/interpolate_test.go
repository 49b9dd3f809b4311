package curve

import (
	"math"
	"testing"

	"github.com/bcdannyboy/rangeaccrual/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscountFactorInterpolation(t *testing.T) {
	c := Curve{Points: []ZCPoint{
		{Maturity: 1, DiscountFactor: math.Exp(-0.02)},
		{Maturity: 3, DiscountFactor: math.Exp(-0.02 - 2*0.03)},
	}}

	tests := []struct {
		T    float64
		want float64
	}{
		{0, 1},
		{0.5, math.Exp(-0.01)},
		{1, math.Exp(-0.02)},
		{2, math.Exp(-0.05)},
		{3, math.Exp(-0.08)},
		{4, math.Exp(-0.11)},
	}
	for _, tt := range tests {
		got, err := c.DiscountFactor(tt.T)
		require.NoError(t, err)
		assert.InDelta(t, tt.want, got, 1e-14, "T=%g", tt.T)
	}

	_, err := c.DiscountFactor(-1)
	assert.ErrorIs(t, err, models.ErrInvalidParameter)
	_, err = Curve{}.DiscountFactor(1)
	assert.ErrorIs(t, err, models.ErrMalformedCurve)
}

func TestZeroRate(t *testing.T) {
	c := Curve{Points: []ZCPoint{{Maturity: 2, DiscountFactor: math.Pow(1.04, -2)}}}
	r, err := c.ZeroRate(2)
	require.NoError(t, err)
	assert.InDelta(t, 0.04, r, 1e-12)

	r, err = c.ZeroRate(1)
	require.NoError(t, err)
	assert.InDelta(t, 0.04, r, 1e-12)
}
