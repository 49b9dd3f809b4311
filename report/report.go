package report

import (
	"fmt"
	"io"
	"time"

	"github.com/bcdannyboy/rangeaccrual/calibration"
	"github.com/bcdannyboy/rangeaccrual/curve"
	"github.com/bcdannyboy/rangeaccrual/models"
	"github.com/bcdannyboy/rangeaccrual/pricing"
	"github.com/shopspring/decimal"
	"github.com/xhhuango/json"
)

// places is the rounding applied to monetary amounts.
const places = 6

// Inputs gathers everything one pricing run produced.
type Inputs struct {
	Params      models.ModelParameters
	Calibration *calibration.Result // nil when the model was given literally
	Simulation  pricing.SimulationConfig
	Estimate    pricing.PriceEstimate
	Sensitivity *pricing.Sensitivity
	Market      curve.Curve
	Shifted     *curve.Curve
	ShiftBP     float64
	Sweep       []pricing.PriceEstimate
	GeneratedAt time.Time
}

type Report struct {
	GeneratedAt time.Time              `json:"generated_at"`
	Model       models.ModelParameters `json:"model"`
	Calibration *CalibrationSummary    `json:"calibration,omitempty"`
	Contract    Contract               `json:"contract"`
	Price       Price                  `json:"price"`
	Sensitivity *Sensitivity           `json:"sensitivity,omitempty"`
	Curve       []CurveRow             `json:"curve"`
	ShiftBP     float64                `json:"shift_bp,omitempty"`
	Sweep       []SweepRow             `json:"sweep,omitempty"`
	Warnings    []string               `json:"warnings,omitempty"`
}

type CalibrationSummary struct {
	Method       string  `json:"method"`
	Iterations   int     `json:"iterations"`
	ResidualNorm float64 `json:"residual_norm"`
}

type Contract struct {
	Notional       decimal.Decimal `json:"notional"`
	RangeLower     float64         `json:"range_lower"`
	RangeUpper     float64         `json:"range_upper"`
	Horizon        float64         `json:"horizon"`
	ValuationTime  float64         `json:"valuation_time"`
	NumSteps       int             `json:"num_steps"`
	NumSimulations int             `json:"num_simulations"`
	DiscountMode   string          `json:"discount_mode"`
	Seed           uint64          `json:"seed,omitempty"`
}

type Price struct {
	Value           decimal.Decimal `json:"value"`
	Low             decimal.Decimal `json:"low"`
	High            decimal.Decimal `json:"high"`
	StdErr          decimal.Decimal `json:"std_err"`
	ConfidenceLevel float64         `json:"confidence_level"`
	AccrualFraction float64         `json:"accrual_fraction"`
}

type Sensitivity struct {
	FirstOrder  decimal.Decimal `json:"first_order"`
	SecondOrder decimal.Decimal `json:"second_order"`
	Bump        float64         `json:"bump"`
}

type CurveRow struct {
	Maturity       float64  `json:"maturity"`
	MarketRate     float64  `json:"market_rate"`
	DiscountFactor float64  `json:"discount_factor"`
	ModelRate      float64  `json:"model_rate"`
	ModelDF        float64  `json:"model_discount_factor"`
	ShiftedRate    *float64 `json:"shifted_rate,omitempty"`
}

type SweepRow struct {
	NumSimulations int             `json:"num_simulations"`
	Price          decimal.Decimal `json:"price"`
	HalfWidth      decimal.Decimal `json:"half_width"`
}

func money(x float64) decimal.Decimal {
	return decimal.NewFromFloat(x).Round(places)
}

// Build assembles the report. The model curve is evaluated at every market
// pillar so the calibration fit can be read off directly.
func Build(in Inputs) (Report, error) {
	if in.GeneratedAt.IsZero() {
		in.GeneratedAt = time.Now().UTC()
	}
	r := Report{
		GeneratedAt: in.GeneratedAt,
		Model:       in.Params,
		Contract: Contract{
			Notional:       money(in.Simulation.Notional),
			RangeLower:     in.Simulation.RangeLower,
			RangeUpper:     in.Simulation.RangeUpper,
			Horizon:        in.Simulation.Horizon,
			ValuationTime:  in.Simulation.ValuationTime,
			NumSteps:       in.Simulation.NumSteps,
			NumSimulations: in.Simulation.NumSimulations,
			DiscountMode:   in.Simulation.DiscountMode.String(),
			Seed:           in.Simulation.Seed,
		},
		Price: Price{
			Value:           money(in.Estimate.Price),
			Low:             money(in.Estimate.Low),
			High:            money(in.Estimate.High),
			StdErr:          money(in.Estimate.StdErr),
			ConfidenceLevel: in.Estimate.ConfidenceLevel,
			AccrualFraction: in.Estimate.AccrualFraction,
		},
		ShiftBP:  in.ShiftBP,
		Warnings: in.Market.Warnings,
	}

	if in.Calibration != nil {
		r.Calibration = &CalibrationSummary{
			Method:       in.Calibration.Method,
			Iterations:   in.Calibration.Iterations,
			ResidualNorm: in.Calibration.ResidualNorm,
		}
	}
	if in.Sensitivity != nil {
		r.Sensitivity = &Sensitivity{
			FirstOrder:  money(in.Sensitivity.FirstOrder),
			SecondOrder: money(in.Sensitivity.SecondOrder),
			Bump:        in.Sensitivity.Bump,
		}
	}

	model, err := models.ModelCurve(in.Params, in.Market.Maturities())
	if err != nil {
		return Report{}, fmt.Errorf("model curve: %w", err)
	}
	for i, pt := range in.Market.Points {
		row := CurveRow{
			Maturity:       pt.Maturity,
			MarketRate:     pt.Rate,
			DiscountFactor: pt.DiscountFactor,
			ModelRate:      model[i].Rate,
			ModelDF:        model[i].Price,
		}
		if in.Shifted != nil {
			zr, err := in.Shifted.ZeroRate(pt.Maturity)
			if err != nil {
				return Report{}, fmt.Errorf("shifted curve at %gy: %w", pt.Maturity, err)
			}
			row.ShiftedRate = &zr
		}
		r.Curve = append(r.Curve, row)
	}

	for _, est := range in.Sweep {
		r.Sweep = append(r.Sweep, SweepRow{
			NumSimulations: est.NumSimulations,
			Price:          money(est.Price),
			HalfWidth:      money(est.HalfWidth()),
		})
	}
	return r, nil
}

func (r Report) WriteJSON(w io.Writer) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
