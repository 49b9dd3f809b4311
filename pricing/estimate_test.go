package pricing

import (
	"math"
	"testing"

	"github.com/bcdannyboy/rangeaccrual/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/distuv"
)

func TestSummarizeCriticalValue(t *testing.T) {
	samples := []float64{1, 2, 3, 4, 5, 6, 7, 8}

	est, err := summarize(samples, DefaultConfidenceLevel)
	require.NoError(t, err)
	assert.InDelta(t, 4.5, est.Price, 1e-15)
	assert.InDelta(t, math.Sqrt(6)/math.Sqrt(8), est.StdErr, 1e-15)
	assert.InDelta(t, 1.96*est.StdErr, est.HalfWidth(), 1e-12)
	assert.InDelta(t, est.Price-1.96*est.StdErr, est.Low, 1e-12)

	wide, err := summarize(samples, 0.99)
	require.NoError(t, err)
	assert.InDelta(t, distuv.UnitNormal.Quantile(0.995)*wide.StdErr, wide.HalfWidth(), 1e-12)
	assert.Greater(t, wide.HalfWidth(), est.HalfWidth())
}

func TestSummarizeRejectsDegenerateSamples(t *testing.T) {
	_, err := summarize(nil, DefaultConfidenceLevel)
	assert.ErrorIs(t, err, models.ErrInvalidParameter)

	_, err = summarize([]float64{1, math.NaN()}, DefaultConfidenceLevel)
	assert.ErrorIs(t, err, models.ErrNumericalDegeneracy)

	one, err := summarize([]float64{3}, DefaultConfidenceLevel)
	require.NoError(t, err)
	assert.Equal(t, 3.0, one.Price)
	assert.Zero(t, one.HalfWidth())
}
