package models

import (
	"fmt"
	"math"
)

// minMeanReversion is the smallest mean-reversion speed the affine bond
// formula accepts before B(t,T) = (1-exp(-k tau))/k loses its precision.
const minMeanReversion = 1e-8

// ModelParameters holds the Vasicek short-rate dynamics
// dr = k(theta - r)dt + sigma dW.
type ModelParameters struct {
	MeanReversion float64 `json:"mean_reversion"` // k
	LongTermMean  float64 `json:"long_term_mean"` // theta
	Volatility    float64 `json:"volatility"`     // sigma
	InitialRate   float64 `json:"initial_rate"`   // r0
}

func NewModelParameters(k, theta, sigma, r0 float64) (ModelParameters, error) {
	p := ModelParameters{
		MeanReversion: k,
		LongTermMean:  theta,
		Volatility:    sigma,
		InitialRate:   r0,
	}
	if err := p.Validate(); err != nil {
		return ModelParameters{}, err
	}
	return p, nil
}

// Validate checks k > 0, sigma >= 0 and that every field is finite.
func (p ModelParameters) Validate() error {
	for name, v := range map[string]float64{
		"mean reversion": p.MeanReversion,
		"long term mean": p.LongTermMean,
		"volatility":     p.Volatility,
		"initial rate":   p.InitialRate,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s is not finite: %w", name, ErrInvalidParameter)
		}
	}
	if p.MeanReversion <= 0 {
		return fmt.Errorf("mean reversion must be positive, got %g: %w", p.MeanReversion, ErrInvalidParameter)
	}
	if p.Volatility < 0 {
		return fmt.Errorf("volatility must be non-negative, got %g: %w", p.Volatility, ErrInvalidParameter)
	}
	return nil
}

// WithInitialRate returns a copy of p starting from r0.
func (p ModelParameters) WithInitialRate(r0 float64) ModelParameters {
	p.InitialRate = r0
	return p
}

func (p ModelParameters) String() string {
	return fmt.Sprintf("k=%.6f theta=%.6f sigma=%.6f r0=%.6f", p.MeanReversion, p.LongTermMean, p.Volatility, p.InitialRate)
}

// ZCBondDuration returns B(t,T) = (1 - exp(-k(T-t))) / k.
func ZCBondDuration(k, t, T float64) (float64, error) {
	if err := checkBondInputs(k, t, T); err != nil {
		return 0, err
	}
	return -math.Expm1(-k*(T-t)) / k, nil
}

// ZCBondPriceAt prices a zero-coupon bond paying 1 at T, seen from t with
// short rate r:
//
//	P(t,T) = A(t,T) exp(-B(t,T) r)
//	A(t,T) = exp((theta - sigma^2/(2k^2))(B - (T-t)) - sigma^2/(4k) B^2)
func ZCBondPriceAt(k, theta, sigma, r, t, T float64) (float64, error) {
	if err := checkBondInputs(k, t, T); err != nil {
		return 0, err
	}
	tau := T - t
	if tau == 0 {
		return 1, nil
	}

	b := -math.Expm1(-k*tau) / k
	s2 := sigma * sigma
	a := math.Exp((theta-s2/(2*k*k))*(b-tau) - s2/(4*k)*b*b)

	price := a * math.Exp(-b*r)
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("bond price overflow for k=%g tau=%g: %w", k, tau, ErrNumericalDegeneracy)
	}
	return price, nil
}

// ZCBondPrice prices the bond from p's own initial rate.
func ZCBondPrice(p ModelParameters, t, T float64) (float64, error) {
	return ZCBondPriceAt(p.MeanReversion, p.LongTermMean, p.Volatility, p.InitialRate, t, T)
}

// ZCBondDelta is the analytic derivative dP/dr = -B(t,T) P(t,T).
func ZCBondDelta(p ModelParameters, t, T float64) (float64, error) {
	price, err := ZCBondPrice(p, t, T)
	if err != nil {
		return 0, err
	}
	b, err := ZCBondDuration(p.MeanReversion, t, T)
	if err != nil {
		return 0, err
	}
	return -b * price, nil
}

// ZCRate converts a discount factor into an annually compounded zero rate.
func ZCRate(discountFactor, tau float64) (float64, error) {
	if tau <= 0 {
		return 0, fmt.Errorf("maturity must be positive, got %g: %w", tau, ErrInvalidParameter)
	}
	if discountFactor <= 0 || math.IsNaN(discountFactor) {
		return 0, fmt.Errorf("discount factor must be positive, got %g: %w", discountFactor, ErrInvalidParameter)
	}
	return math.Pow(discountFactor, -1/tau) - 1, nil
}

// ModelPoint is one maturity on a model-implied zero-coupon curve.
type ModelPoint struct {
	Maturity float64 `json:"maturity"`
	Price    float64 `json:"price"`
	Rate     float64 `json:"rate"`
}

// ModelCurve evaluates the model zero-coupon curve seen from time 0.
// Rates are left at zero for the zero maturity.
func ModelCurve(p ModelParameters, maturities []float64) ([]ModelPoint, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	points := make([]ModelPoint, 0, len(maturities))
	for _, T := range maturities {
		price, err := ZCBondPrice(p, 0, T)
		if err != nil {
			return nil, err
		}
		pt := ModelPoint{Maturity: T, Price: price}
		if T > 0 {
			if pt.Rate, err = ZCRate(price, T); err != nil {
				return nil, err
			}
		}
		points = append(points, pt)
	}
	return points, nil
}

func checkBondInputs(k, t, T float64) error {
	if math.IsNaN(k) || k <= 0 {
		return fmt.Errorf("mean reversion must be positive, got %g: %w", k, ErrInvalidParameter)
	}
	if k < minMeanReversion {
		return fmt.Errorf("mean reversion %g below %g: %w", k, minMeanReversion, ErrNumericalDegeneracy)
	}
	if math.IsNaN(t) || math.IsNaN(T) || T < t {
		return fmt.Errorf("maturity %g before valuation time %g: %w", T, t, ErrInvalidParameter)
	}
	return nil
}
