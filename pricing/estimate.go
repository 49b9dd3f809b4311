package pricing

import (
	"fmt"
	"math"

	"github.com/bcdannyboy/rangeaccrual/models"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// PriceEstimate is a Monte Carlo price with its normal-approximation
// confidence interval.
type PriceEstimate struct {
	Price           float64 `json:"price"`
	Low             float64 `json:"low"`
	High            float64 `json:"high"`
	StdDev          float64 `json:"std_dev"`
	StdErr          float64 `json:"std_err"`
	AccrualFraction float64 `json:"accrual_fraction"` // mean share of steps spent in range
	NumSimulations  int     `json:"num_simulations"`
	ConfidenceLevel float64 `json:"confidence_level"`
}

func (e PriceEstimate) HalfWidth() float64 {
	return (e.High - e.Low) / 2
}

func (e PriceEstimate) Contains(x float64) bool {
	return e.Low <= x && x <= e.High
}

func (e PriceEstimate) String() string {
	return fmt.Sprintf("%.6f [%.6f, %.6f] (%d paths, %.0f%%)", e.Price, e.Low, e.High, e.NumSimulations, 100*e.ConfidenceLevel)
}

// z95 is the conventional two-sided 95% normal quantile.
const z95 = 1.96

// criticalValue is the two-sided normal quantile for level, quoted as 1.96
// at the default 95%.
func criticalValue(level float64) float64 {
	if level == DefaultConfidenceLevel {
		return z95
	}
	return distuv.UnitNormal.Quantile(0.5 + level/2)
}

// summarize computes mean ± z stderr over the discounted payoffs.
func summarize(samples []float64, level float64) (PriceEstimate, error) {
	n := len(samples)
	if n == 0 {
		return PriceEstimate{}, fmt.Errorf("no samples: %w", models.ErrInvalidParameter)
	}
	for i, s := range samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return PriceEstimate{}, fmt.Errorf("path %d produced a non-finite payoff: %w", i, models.ErrNumericalDegeneracy)
		}
	}

	var mean, std float64
	if n == 1 {
		mean = samples[0]
	} else {
		mean, std = stat.MeanStdDev(samples, nil)
	}
	stderr := stat.StdErr(std, float64(n))
	z := criticalValue(level)

	return PriceEstimate{
		Price:           mean,
		Low:             mean - z*stderr,
		High:            mean + z*stderr,
		StdDev:          std,
		StdErr:          stderr,
		NumSimulations:  n,
		ConfidenceLevel: level,
	}, nil
}
