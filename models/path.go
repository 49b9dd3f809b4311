package models

import (
	"fmt"
	"math"
)

// PathSimulator advances the Vasicek short rate with the exact
// Ornstein-Uhlenbeck transition over a fixed step size and tracks the
// quantities a range accrual needs.
type PathSimulator struct {
	Params     ModelParameters
	Steps      int
	Dt         float64
	RangeLower float64
	RangeUpper float64

	decay float64 // exp(-k dt)
	drift float64 // theta (1 - exp(-k dt))
	std   float64 // sigma sqrt((1 - exp(-2k dt)) / 2k)
}

// PathResult is what one simulated path contributes to the estimator.
type PathResult struct {
	Integral float64 // left Riemann sum of r, already multiplied by dt
	InRange  int     // steps whose post-update rate lies in [RangeLower, RangeUpper]
	Terminal float64
}

func NewPathSimulator(p ModelParameters, steps int, dt, lower, upper float64) (*PathSimulator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if steps < 1 {
		return nil, fmt.Errorf("steps must be at least 1, got %d: %w", steps, ErrInvalidParameter)
	}
	if !(dt > 0) || math.IsInf(dt, 0) {
		return nil, fmt.Errorf("step size must be positive, got %g: %w", dt, ErrInvalidParameter)
	}
	if math.IsNaN(lower) || math.IsNaN(upper) || lower > upper {
		return nil, fmt.Errorf("range [%g, %g] is empty: %w", lower, upper, ErrInvalidParameter)
	}

	k := p.MeanReversion
	return &PathSimulator{
		Params:     p,
		Steps:      steps,
		Dt:         dt,
		RangeLower: lower,
		RangeUpper: upper,
		decay:      math.Exp(-k * dt),
		drift:      -p.LongTermMean * math.Expm1(-k*dt),
		std:        p.Volatility * math.Sqrt(-math.Expm1(-2*k*dt)/(2*k)),
	}, nil
}

// Simulate runs one path, consuming exactly Steps draws from z. When rates
// has length Steps+1 the visited short rates are written into it.
func (s *PathSimulator) Simulate(z NormalSource, rates []float64) PathResult {
	r := s.Params.InitialRate
	record := len(rates) == s.Steps+1
	if record {
		rates[0] = r
	}

	var sum float64
	inRange := 0
	for j := 0; j < s.Steps; j++ {
		sum += r
		r = r*s.decay + s.drift + s.std*z.Next()
		if s.RangeLower <= r && r <= s.RangeUpper {
			inRange++
		}
		if record {
			rates[j+1] = r
		}
	}

	return PathResult{
		Integral: sum * s.Dt,
		InRange:  inRange,
		Terminal: r,
	}
}

// DeterministicPath is the sigma = 0 path r_j = theta + (r0 - theta) exp(-k j dt).
func DeterministicPath(p ModelParameters, steps int, dt float64) []float64 {
	rates := make([]float64, steps+1)
	for j := range rates {
		rates[j] = p.LongTermMean + (p.InitialRate-p.LongTermMean)*math.Exp(-p.MeanReversion*float64(j)*dt)
	}
	return rates
}
