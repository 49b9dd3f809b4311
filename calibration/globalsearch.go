package calibration

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/MaxHalford/eaopt"
	"github.com/bcdannyboy/rangeaccrual/models"
)

const (
	searchAgents       = 40
	searchGenerations  = 150
	searchCrossover    = 0.5
	searchDifferential = 0.8
)

// globalSearch runs a differential evolution over the unit cube mapped onto
// Bounds (log-scaled for k) and returns the best point in solver coordinates.
func (e *Engine) globalSearch(o objective) ([]float64, error) {
	b := e.Bounds
	if b == (Bounds{}) {
		b = DefaultBounds()
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	lo, hi := toVector(b.Lower), toVector(b.Upper)

	seed := e.Seed
	if seed == 0 {
		seed = models.RandomSeed()
	}
	rng := rand.New(rand.NewSource(int64(seed)))

	de, err := eaopt.NewDiffEvo(searchAgents, searchGenerations, 0, 1, searchCrossover, searchDifferential, false, rng)
	if err != nil {
		return nil, fmt.Errorf("differential evolution: %w", err)
	}

	f := func(u []float64) float64 {
		v, err := o.sumSquares(fromUnit(u, lo, hi))
		if err != nil || math.IsNaN(v) {
			return math.Inf(1)
		}
		return v
	}
	best, _, err := de.Minimize(f, uint(len(lo)))
	if err != nil {
		return nil, fmt.Errorf("differential evolution: %w", err)
	}
	return fromUnit(best, lo, hi), nil
}

func fromUnit(u, lo, hi []float64) []float64 {
	x := make([]float64, len(u))
	for i, v := range u {
		v = math.Min(math.Max(v, 0), 1)
		x[i] = lo[i] + v*(hi[i]-lo[i])
	}
	return x
}
