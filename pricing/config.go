package pricing

import (
	"fmt"
	"math"
	"strings"

	"github.com/bcdannyboy/rangeaccrual/models"
)

// DefaultConfidenceLevel is used when SimulationConfig.ConfidenceLevel is zero.
const DefaultConfidenceLevel = 0.95

// DiscountMode selects how a path's rate integral becomes a discount factor.
type DiscountMode int

const (
	// DiscountCorrected discounts with exp(-sum(r_j) dt).
	DiscountCorrected DiscountMode = iota
	// DiscountLegacySquaredDt reproduces exp(-sum(r_j) dt * dt), which
	// applies the step size twice. Kept only to compare against old figures.
	DiscountLegacySquaredDt
)

func (m DiscountMode) String() string {
	switch m {
	case DiscountCorrected:
		return "corrected"
	case DiscountLegacySquaredDt:
		return "legacy-squared-dt"
	default:
		return fmt.Sprintf("DiscountMode(%d)", int(m))
	}
}

func ParseDiscountMode(s string) (DiscountMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "corrected":
		return DiscountCorrected, nil
	case "legacy", "legacy-squared-dt":
		return DiscountLegacySquaredDt, nil
	}
	return 0, fmt.Errorf("unknown discount mode %q: %w", s, models.ErrInvalidParameter)
}

// SimulationConfig describes one range accrual and how to simulate it.
type SimulationConfig struct {
	NumSimulations  int          `json:"num_simulations"`
	NumSteps        int          `json:"num_steps"`
	Horizon         float64      `json:"horizon"`        // N
	ValuationTime   float64      `json:"valuation_time"` // t
	RangeLower      float64      `json:"range_lower"`    // K1
	RangeUpper      float64      `json:"range_upper"`    // K2
	Notional        float64      `json:"notional"`       // P
	Seed            uint64       `json:"seed,omitempty"` // 0 draws a fresh seed per call
	DiscountMode    DiscountMode `json:"discount_mode"`
	ConfidenceLevel float64      `json:"confidence_level"`
}

func (c SimulationConfig) Validate() error {
	if c.NumSimulations < 1 {
		return fmt.Errorf("number of simulations must be at least 1, got %d: %w", c.NumSimulations, models.ErrInvalidParameter)
	}
	if c.NumSteps < 1 {
		return fmt.Errorf("number of steps must be at least 1, got %d: %w", c.NumSteps, models.ErrInvalidParameter)
	}
	for name, v := range map[string]float64{
		"horizon":        c.Horizon,
		"valuation time": c.ValuationTime,
		"range lower":    c.RangeLower,
		"range upper":    c.RangeUpper,
		"notional":       c.Notional,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s is not finite: %w", name, models.ErrInvalidParameter)
		}
	}
	if c.Horizon <= c.ValuationTime {
		return fmt.Errorf("horizon %g must be after valuation time %g: %w", c.Horizon, c.ValuationTime, models.ErrInvalidParameter)
	}
	if c.RangeLower > c.RangeUpper {
		return fmt.Errorf("range lower %g above range upper %g: %w", c.RangeLower, c.RangeUpper, models.ErrInvalidParameter)
	}
	if c.DiscountMode != DiscountCorrected && c.DiscountMode != DiscountLegacySquaredDt {
		return fmt.Errorf("unknown discount mode %d: %w", int(c.DiscountMode), models.ErrInvalidParameter)
	}
	if c.ConfidenceLevel != 0 && !(c.ConfidenceLevel > 0 && c.ConfidenceLevel < 1) {
		return fmt.Errorf("confidence level must lie in (0, 1), got %g: %w", c.ConfidenceLevel, models.ErrInvalidParameter)
	}
	return nil
}

// StepSize is dt = (N - t) / numSteps.
func (c SimulationConfig) StepSize() float64 {
	return (c.Horizon - c.ValuationTime) / float64(c.NumSteps)
}

func (c SimulationConfig) confidenceLevel() float64 {
	if c.ConfidenceLevel == 0 {
		return DefaultConfidenceLevel
	}
	return c.ConfidenceLevel
}

// discountedPayoff turns one path into its present value: the accrual
// P dt #inRange discounted along the path.
func (c SimulationConfig) discountedPayoff(res models.PathResult, dt float64) float64 {
	payoff := c.Notional * dt * float64(res.InRange)
	exponent := res.Integral
	if c.DiscountMode == DiscountLegacySquaredDt {
		exponent *= dt
	}
	return math.Exp(-exponent) * payoff
}
