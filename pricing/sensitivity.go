package pricing

import (
	"fmt"

	"github.com/bcdannyboy/rangeaccrual/models"
	"gonum.org/v1/gonum/diff/fd"
)

// PriceFunc prices an instrument as a function of the initial short rate.
type PriceFunc func(r0 float64) (float64, error)

// Sensitivity holds bump-and-reprice rate sensitivities.
type Sensitivity struct {
	Price       float64 `json:"price"`
	FirstOrder  float64 `json:"first_order"`
	SecondOrder float64 `json:"second_order"`
	Bump        float64 `json:"bump"`
}

// FirstOrder is the central difference (f(r0+eps) - f(r0-eps)) / 2eps.
func FirstOrder(f PriceFunc, r0, eps float64) (float64, error) {
	return derivative(f, r0, eps, fd.Central)
}

// SecondOrder is the central difference (f(r0+eps) - 2f(r0) + f(r0-eps)) / eps^2.
//
// With a Monte Carlo f the sampling error of each price is amplified by
// 1/eps^2; eps has to be large against the price noise (or f must use common
// random numbers, see MonteCarloPriceFunc) for the estimate to mean anything.
func SecondOrder(f PriceFunc, r0, eps float64) (float64, error) {
	return derivative(f, r0, eps, fd.Central2nd)
}

// Sensitivities computes the price and both sensitivities from three
// evaluations of f.
func Sensitivities(f PriceFunc, r0, eps float64) (Sensitivity, error) {
	mf := memoize(f)
	price, err := mf(r0)
	if err != nil {
		return Sensitivity{}, err
	}
	first, err := FirstOrder(mf, r0, eps)
	if err != nil {
		return Sensitivity{}, err
	}
	second, err := SecondOrder(mf, r0, eps)
	if err != nil {
		return Sensitivity{}, err
	}
	return Sensitivity{
		Price:       price,
		FirstOrder:  first,
		SecondOrder: second,
		Bump:        eps,
	}, nil
}

func derivative(f PriceFunc, r0, eps float64, formula fd.Formula) (float64, error) {
	if !(eps > 0) {
		return 0, fmt.Errorf("bump must be positive, got %g: %w", eps, models.ErrInvalidParameter)
	}

	var firstErr error
	g := func(r float64) float64 {
		v, err := f(r)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return v
	}
	d := fd.Derivative(g, r0, &fd.Settings{Formula: formula, Step: eps})
	if firstErr != nil {
		return 0, firstErr
	}
	return d, nil
}

func memoize(f PriceFunc) PriceFunc {
	cache := make(map[float64]float64)
	return func(r float64) (float64, error) {
		if v, ok := cache[r]; ok {
			return v, nil
		}
		v, err := f(r)
		if err != nil {
			return 0, err
		}
		cache[r] = v
		return v, nil
	}
}

// MonteCarloPriceFunc reprices the range accrual at a bumped initial rate.
// Every call reuses one seed so bumped prices share their random draws.
func MonteCarloPriceFunc(m *MonteCarloPricer, p models.ModelParameters, cfg SimulationConfig) PriceFunc {
	if cfg.Seed == 0 {
		cfg.Seed = models.RandomSeed()
	}
	return func(r0 float64) (float64, error) {
		est, err := m.Price(p.WithInitialRate(r0), cfg)
		if err != nil {
			return 0, err
		}
		return est.Price, nil
	}
}

// BondPriceFunc is the closed-form zero-coupon price P(t,T) as a function of r_t.
func BondPriceFunc(p models.ModelParameters, t, T float64) PriceFunc {
	return func(r float64) (float64, error) {
		return models.ZCBondPrice(p.WithInitialRate(r), t, T)
	}
}
