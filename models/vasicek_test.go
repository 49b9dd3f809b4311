package models

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelParametersValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  ModelParameters
		wantErr bool
	}{
		{"valid", ModelParameters{0.5, 0.04, 0.015, 0.02}, false},
		{"zero sigma", ModelParameters{0.5, 0.04, 0, 0.02}, false},
		{"zero k", ModelParameters{0, 0.04, 0.015, 0.02}, true},
		{"negative k", ModelParameters{-0.1, 0.04, 0.015, 0.02}, true},
		{"negative sigma", ModelParameters{0.5, 0.04, -0.01, 0.02}, true},
		{"nan theta", ModelParameters{0.5, math.NaN(), 0.01, 0.02}, true},
		{"inf r0", ModelParameters{0.5, 0.04, 0.01, math.Inf(1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidParameter)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestZCBondPriceAtZeroMaturityIsPar(t *testing.T) {
	for _, p := range []ModelParameters{
		{0.5, 0.04, 0.015, 0.02},
		{0.1, 0.05, 0.02, 0.03},
		{3, -0.01, 0.2, 0.1},
	} {
		for _, tNow := range []float64{0, 1.5, 10} {
			price, err := ZCBondPriceAt(p.MeanReversion, p.LongTermMean, p.Volatility, p.InitialRate, tNow, tNow)
			require.NoError(t, err)
			assert.Equal(t, 1.0, price)
		}
	}
}

func TestZCBondPriceMatchesClosedForm(t *testing.T) {
	k, theta, sigma, r, T := 0.1, 0.05, 0.02, 0.03, 5.0

	b := (1 - math.Exp(-k*T)) / k
	a := math.Exp((theta-sigma*sigma/(2*k*k))*(b-T) - sigma*sigma/(4*k)*b*b)
	want := a * math.Exp(-b*r)

	got, err := ZCBondPriceAt(k, theta, sigma, r, 0, T)
	require.NoError(t, err)
	assert.InDelta(t, want, got, 1e-14)
	assert.Less(t, got, 1.0)
}

func TestZCBondPriceOnlyDependsOnTimeToMaturity(t *testing.T) {
	p := ModelParameters{0.3, 0.045, 0.01, 0.025}
	a, err := ZCBondPrice(p, 0, 4)
	require.NoError(t, err)
	b, err := ZCBondPrice(p, 2, 6)
	require.NoError(t, err)
	assert.InDelta(t, a, b, 1e-15)
}

func TestZCBondPriceGuards(t *testing.T) {
	_, err := ZCBondPriceAt(0, 0.04, 0.01, 0.02, 0, 1)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = ZCBondPriceAt(1e-12, 0.04, 0.01, 0.02, 0, 1)
	assert.ErrorIs(t, err, ErrNumericalDegeneracy)

	_, err = ZCBondPriceAt(0.5, 0.04, 0.01, 0.02, 2, 1)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestZCBondDelta(t *testing.T) {
	p := ModelParameters{0.1, 0.05, 0.02, 0.03}
	price, err := ZCBondPrice(p, 0, 5)
	require.NoError(t, err)
	b, err := ZCBondDuration(p.MeanReversion, 0, 5)
	require.NoError(t, err)

	delta, err := ZCBondDelta(p, 0, 5)
	require.NoError(t, err)
	assert.InDelta(t, -b*price, delta, 1e-15)
}

func TestZCRate(t *testing.T) {
	rate, err := ZCRate(1/math.Pow(1.03, 7), 7)
	require.NoError(t, err)
	assert.InDelta(t, 0.03, rate, 1e-12)

	_, err = ZCRate(0.9, 0)
	assert.True(t, errors.Is(err, ErrInvalidParameter))
	_, err = ZCRate(-1, 1)
	assert.True(t, errors.Is(err, ErrInvalidParameter))
}

func TestModelCurve(t *testing.T) {
	p := ModelParameters{0.5, 0.04, 0.015, 0.02}
	points, err := ModelCurve(p, []float64{0, 1, 5, 30})
	require.NoError(t, err)
	require.Len(t, points, 4)

	assert.Equal(t, 1.0, points[0].Price)
	assert.Zero(t, points[0].Rate)
	for i := 1; i < len(points); i++ {
		assert.Less(t, points[i].Price, points[i-1].Price)
		assert.Greater(t, points[i].Rate, 0.0)
	}
	// the long end tends towards theta - sigma^2/(2k^2) in continuous terms
	assert.InDelta(t, math.Expm1(p.LongTermMean-p.Volatility*p.Volatility/(2*p.MeanReversion*p.MeanReversion)), points[3].Rate, 3e-3)
}
