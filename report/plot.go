package report

import (
	"fmt"
	"image/color"
	"math"

	"github.com/bcdannyboy/rangeaccrual/curve"
	"github.com/bcdannyboy/rangeaccrual/models"
	"github.com/bcdannyboy/rangeaccrual/pricing"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var (
	marketColor  = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	modelColor   = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	shiftedColor = color.RGBA{R: 44, G: 160, B: 44, A: 255}
)

const (
	plotWidth  = 8 * vg.Inch
	plotHeight = 5 * vg.Inch
	modelGrid  = 120
)

// PlotZCRates draws the stripped market zero rates against the model curve.
// The image format follows the file extension.
func PlotZCRates(path string, market curve.Curve, p models.ModelParameters) error {
	return plotAgainstModel(path, market, p, "Zero-coupon rates", "rate", func(pt models.ModelPoint) float64 { return pt.Rate }, func(z curve.ZCPoint) float64 { return z.Rate })
}

// PlotDiscountFactors draws market discount factors against model bond prices.
func PlotDiscountFactors(path string, market curve.Curve, p models.ModelParameters) error {
	return plotAgainstModel(path, market, p, "Discount factors", "P(0,T)", func(pt models.ModelPoint) float64 { return pt.Price }, func(z curve.ZCPoint) float64 { return z.DiscountFactor })
}

func plotAgainstModel(path string, market curve.Curve, p models.ModelParameters, title, ylabel string, modelY func(models.ModelPoint) float64, marketY func(curve.ZCPoint) float64) error {
	if len(market.Points) == 0 {
		return fmt.Errorf("nothing to plot: %w", models.ErrMalformedCurve)
	}
	last := market.Points[len(market.Points)-1].Maturity
	grid := make([]float64, modelGrid)
	for i := range grid {
		grid[i] = last * float64(i+1) / modelGrid
	}
	model, err := models.ModelCurve(p, grid)
	if err != nil {
		return err
	}

	pl := newPlot(title, ylabel)

	modelXYs := make(plotter.XYs, len(model))
	for i, pt := range model {
		modelXYs[i] = plotter.XY{X: pt.Maturity, Y: modelY(pt)}
	}
	modelLine, err := plotter.NewLine(modelXYs)
	if err != nil {
		return fmt.Errorf("model line: %w", err)
	}
	modelLine.Color = modelColor
	modelLine.Width = vg.Points(1.5)

	marketXYs := make(plotter.XYs, len(market.Points))
	for i, z := range market.Points {
		marketXYs[i] = plotter.XY{X: z.Maturity, Y: marketY(z)}
	}
	marketLine, marketPoints, err := linePoints(marketXYs, marketColor)
	if err != nil {
		return err
	}

	pl.Add(modelLine, marketLine, marketPoints)
	pl.Legend.Add("model", modelLine)
	pl.Legend.Add("market", marketLine, marketPoints)
	return save(pl, path)
}

// PlotShift draws a stripped curve and its parallel-shifted counterpart.
func PlotShift(path string, base, shifted curve.Curve) error {
	if len(base.Points) == 0 || len(shifted.Points) == 0 {
		return fmt.Errorf("nothing to plot: %w", models.ErrMalformedCurve)
	}
	pl := newPlot("Zero-coupon rates, shifted", "rate")

	for _, c := range []struct {
		name  string
		curve curve.Curve
		color color.Color
	}{
		{"ZC rate", base, marketColor},
		{"ZC rate shifted", shifted, shiftedColor},
	} {
		xys := make(plotter.XYs, len(c.curve.Points))
		for i, z := range c.curve.Points {
			xys[i] = plotter.XY{X: z.Maturity, Y: z.Rate}
		}
		line, points, err := linePoints(xys, c.color)
		if err != nil {
			return err
		}
		pl.Add(line, points)
		pl.Legend.Add(c.name, line, points)
	}
	return save(pl, path)
}

// PlotConvergence draws sweep prices with their confidence bands against the
// number of paths on a log axis.
func PlotConvergence(path string, sweep []pricing.PriceEstimate) error {
	if len(sweep) == 0 {
		return fmt.Errorf("empty sweep: %w", models.ErrInvalidParameter)
	}
	pl := newPlot("Monte Carlo convergence", "price")
	pl.X.Label.Text = "paths"
	pl.X.Scale = plot.LogScale{}
	pl.X.Tick.Marker = plot.LogTicks{Prec: -1}

	mid := make(plotter.XYs, len(sweep))
	lo := make(plotter.XYs, len(sweep))
	hi := make(plotter.XYs, len(sweep))
	for i, est := range sweep {
		x := math.Max(float64(est.NumSimulations), 1)
		mid[i] = plotter.XY{X: x, Y: est.Price}
		lo[i] = plotter.XY{X: x, Y: est.Low}
		hi[i] = plotter.XY{X: x, Y: est.High}
	}
	line, points, err := linePoints(mid, marketColor)
	if err != nil {
		return err
	}
	pl.Add(line, points)
	pl.Legend.Add("price", line, points)

	for _, band := range []plotter.XYs{lo, hi} {
		l, err := plotter.NewLine(band)
		if err != nil {
			return fmt.Errorf("confidence band: %w", err)
		}
		l.Color = modelColor
		l.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		pl.Add(l)
	}
	return save(pl, path)
}

func newPlot(title, ylabel string) *plot.Plot {
	pl := plot.New()
	pl.Title.Text = title
	pl.X.Label.Text = "maturity (years)"
	pl.Y.Label.Text = ylabel
	pl.Legend.Top = true
	pl.Add(plotter.NewGrid())
	return pl
}

func linePoints(xys plotter.XYs, c color.Color) (*plotter.Line, *plotter.Scatter, error) {
	line, err := plotter.NewLine(xys)
	if err != nil {
		return nil, nil, fmt.Errorf("line: %w", err)
	}
	line.Color = c
	points, err := plotter.NewScatter(xys)
	if err != nil {
		return nil, nil, fmt.Errorf("scatter: %w", err)
	}
	points.Color = c
	return line, points, nil
}

func save(pl *plot.Plot, path string) error {
	if err := pl.Save(plotWidth, plotHeight, path); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", path, err)
	}
	return nil
}
