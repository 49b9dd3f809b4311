package curve

import (
	"fmt"
	"math"

	"github.com/bcdannyboy/rangeaccrual/models"
	"go.uber.org/zap"
)

// DefaultDepositCount is how many leading quotes are money-market deposits.
const DefaultDepositCount = 4

// yearTolerance decides whether a maturity falls on a whole year.
const yearTolerance = 1e-6

// MarketPoint is one quoted row of the market curve.
type MarketPoint struct {
	Maturity float64 `json:"maturity"` // years
	Label    string  `json:"label,omitempty"`
	Rate     float64 `json:"rate"`
}

// ZCPoint is one stripped zero-coupon pillar.
type ZCPoint struct {
	Maturity       float64 `json:"maturity"`
	Rate           float64 `json:"rate"`
	DiscountFactor float64 `json:"discount_factor"`
}

// Curve is a stripped zero-coupon curve ordered by maturity.
type Curve struct {
	Points   []ZCPoint `json:"points"`
	Warnings []string  `json:"warnings,omitempty"`
}

// Bootstrapper strips deposits and annual par swaps into zero-coupon
// discount factors.
type Bootstrapper struct {
	DepositCount int  // <= 0 uses DefaultDepositCount
	Strict       bool // turn data-quality warnings into ErrMalformedCurve

	Logger *zap.Logger
}

func NewBootstrapper() *Bootstrapper {
	return &Bootstrapper{DepositCount: DefaultDepositCount}
}

func (b *Bootstrapper) depositCount() int {
	if b.DepositCount > 0 {
		return b.DepositCount
	}
	return DefaultDepositCount
}

func (b *Bootstrapper) logger() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}

// Bootstrap strips quotes, which must be ordered by increasing maturity.
//
// Deposits use simple interest, DF = 1/(1 + T r), and keep their quoted rate
// as the zero rate. Swaps pay annually:
//
//	DF_n = (1 - r_n A_{n-1}) / (1 + r_n),  A_n = A_{n-1} + DF_n
//
// with the annuity A seeded by deposits maturing on whole years. When no
// deposit falls on 1Y and the first swap is longer, the 1Y term is
// 1/(1 + r) at the last deposit rate. Their zero rate is DF^(-1/T) - 1.
// Missing whole years between swap pillars are filled with linearly
// interpolated par rates so the annuity stays on an annual grid; only the
// quoted pillars are returned.
func (b *Bootstrapper) Bootstrap(quotes []MarketPoint) (Curve, error) {
	nDep := b.depositCount()
	if len(quotes) < nDep {
		return Curve{}, fmt.Errorf("need at least %d quotes, got %d: %w", nDep, len(quotes), models.ErrMalformedCurve)
	}
	if err := checkQuotes(quotes); err != nil {
		return Curve{}, err
	}

	points := make([]ZCPoint, 0, len(quotes))
	annuity := 0.0
	lastYear := 0
	lastRate := math.NaN()
	lastDeposit := math.NaN()

	for _, q := range quotes[:nDep] {
		df := 1 / (1 + q.Maturity*q.Rate)
		if !(df > 0) {
			return Curve{}, fmt.Errorf("deposit %s at %gy has non-positive discount factor: %w", label(q), q.Maturity, models.ErrMalformedCurve)
		}
		points = append(points, ZCPoint{Maturity: q.Maturity, Rate: q.Rate, DiscountFactor: df})
		lastDeposit = q.Rate
		if y, ok := wholeYear(q.Maturity); ok && y == lastYear+1 {
			annuity += df
			lastYear, lastRate = y, q.Rate
		}
	}

	for _, q := range quotes[nDep:] {
		y, ok := wholeYear(q.Maturity)
		if !ok {
			return Curve{}, fmt.Errorf("swap %s at %gy is not on an annual grid: %w", label(q), q.Maturity, models.ErrMalformedCurve)
		}

		if lastYear == 0 && y > 1 && !math.IsNaN(lastDeposit) {
			df := 1 / (1 + lastDeposit)
			if !(df > 0) {
				return Curve{}, fmt.Errorf("1y pillar from last deposit has non-positive discount factor: %w", models.ErrMalformedCurve)
			}
			annuity += df
			lastYear, lastRate = 1, lastDeposit
			b.logger().Debug("filled missing swap pillar", zap.Int("year", 1), zap.Float64("par_rate", lastDeposit))
		}

		anchorYear, anchorRate := lastYear, lastRate
		if math.IsNaN(anchorRate) {
			anchorRate = q.Rate
		}
		for gap := lastYear + 1; gap < y; gap++ {
			rate := anchorRate + (q.Rate-anchorRate)*float64(gap-anchorYear)/float64(y-anchorYear)
			df := (1 - rate*annuity) / (1 + rate)
			if !(df > 0) {
				return Curve{}, fmt.Errorf("interpolated pillar %dy has non-positive discount factor: %w", gap, models.ErrMalformedCurve)
			}
			annuity += df
			b.logger().Debug("filled missing swap pillar", zap.Int("year", gap), zap.Float64("par_rate", rate))
		}

		df := (1 - q.Rate*annuity) / (1 + q.Rate)
		if !(df > 0) {
			return Curve{}, fmt.Errorf("swap %s at %gy has non-positive discount factor: %w", label(q), q.Maturity, models.ErrMalformedCurve)
		}
		annuity += df
		lastYear, lastRate = y, q.Rate

		zr, err := models.ZCRate(df, q.Maturity)
		if err != nil {
			return Curve{}, err
		}
		points = append(points, ZCPoint{Maturity: q.Maturity, Rate: zr, DiscountFactor: df})
	}

	c := Curve{Points: points}
	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1], points[i]
		if cur.DiscountFactor >= prev.DiscountFactor {
			w := fmt.Sprintf("discount factor %.8f at %gy is not below %.8f at %gy", cur.DiscountFactor, cur.Maturity, prev.DiscountFactor, prev.Maturity)
			c.Warnings = append(c.Warnings, w)
			b.logger().Warn("curve is not arbitrage free", zap.String("detail", w))
		}
	}
	if b.Strict && len(c.Warnings) > 0 {
		return Curve{}, fmt.Errorf("%d non-monotonic discount factors, first: %s: %w", len(c.Warnings), c.Warnings[0], models.ErrMalformedCurve)
	}
	return c, nil
}

func checkQuotes(quotes []MarketPoint) error {
	prev := 0.0
	for i, q := range quotes {
		if math.IsNaN(q.Rate) || math.IsInf(q.Rate, 0) {
			return fmt.Errorf("quote %d (%s) has a non-finite rate: %w", i, label(q), models.ErrMalformedCurve)
		}
		if !(q.Maturity > prev) || math.IsInf(q.Maturity, 0) {
			return fmt.Errorf("quote %d (%s) maturity %g does not follow %g: %w", i, label(q), q.Maturity, prev, models.ErrMalformedCurve)
		}
		prev = q.Maturity
	}
	return nil
}

func wholeYear(maturity float64) (int, bool) {
	y := math.Round(maturity)
	return int(y), y >= 1 && math.Abs(maturity-y) < yearTolerance
}

func label(q MarketPoint) string {
	if q.Label != "" {
		return q.Label
	}
	return fmt.Sprintf("%gY", q.Maturity)
}

// Shift moves every quoted rate by delta (0.01 is +100bp).
func Shift(quotes []MarketPoint, delta float64) []MarketPoint {
	shifted := make([]MarketPoint, len(quotes))
	for i, q := range quotes {
		q.Rate += delta
		shifted[i] = q
	}
	return shifted
}
