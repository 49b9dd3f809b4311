package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/bcdannyboy/rangeaccrual/calibration"
	"github.com/bcdannyboy/rangeaccrual/config"
	"github.com/bcdannyboy/rangeaccrual/curve"
	"github.com/bcdannyboy/rangeaccrual/logging"
	"github.com/bcdannyboy/rangeaccrual/marketdata"
	"github.com/bcdannyboy/rangeaccrual/models"
	"github.com/bcdannyboy/rangeaccrual/notify"
	"github.com/bcdannyboy/rangeaccrual/pricing"
	"github.com/bcdannyboy/rangeaccrual/report"
	mpb "github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"
	"go.uber.org/zap"
)

const fetchTimeout = 30 * time.Second

type options struct {
	skipCalibration bool
	sweep           bool
}

func main() {
	configPath := flag.String("config", "", "optional config file (yaml, toml or json)")
	curvePath := flag.String("curve", "", "market curve file (.csv or .json), overrides curve.path")
	out := flag.String("out", "", "report path, overrides output.report")
	plots := flag.String("plots", "", "directory for PNG charts, overrides output.plots_dir")
	skipCalibration := flag.Bool("skip-calibration", false, "price with the configured model parameters as given")
	sweep := flag.Bool("sweep", false, "run the convergence sweep over simulation.sweep_sizes")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}
	if *curvePath != "" {
		cfg.Curve.Path, cfg.Curve.URL = *curvePath, ""
	}
	if *out != "" {
		cfg.Output.Report = *out
	}
	if *plots != "" {
		cfg.Output.PlotsDir = *plots
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Error building logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, options{skipCalibration: *skipCalibration, sweep: *sweep}, logger); err != nil {
		logger.Error("range accrual run failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, opts options, logger *zap.Logger) error {
	var (
		notifier *notify.Slack
		notifyTS string
	)
	if cfg.Notify.SlackToken != "" {
		n, err := notify.NewSlack(cfg.Notify.SlackToken, cfg.Notify.SlackChannel)
		if err != nil {
			return err
		}
		notifier = n
		if notifyTS, err = notifier.Start(ctx, "Pricing range accrual..."); err != nil {
			logger.Warn("slack notification failed", zap.Error(err))
		}
	}

	quotes, err := loadQuotes(ctx, cfg)
	if err != nil {
		return err
	}
	logger.Info("market curve loaded", zap.Int("quotes", len(quotes)))

	bootstrapper := cfg.Bootstrapper(logger)
	market, err := bootstrapper.Bootstrap(quotes)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	shifted, err := bootstrapper.Bootstrap(curve.Shift(quotes, cfg.Curve.ShiftBP/10000))
	if err != nil {
		return fmt.Errorf("bootstrap shifted curve: %w", err)
	}

	fmt.Printf("Zero-coupon curve (%d pillars, shifted %+.0fbp):\n", len(market.Points), cfg.Curve.ShiftBP)
	for i, pt := range market.Points {
		fmt.Printf("  %6.2fy  DF %.6f  ZC %7.4f%%  shifted %7.4f%%\n", pt.Maturity, pt.DiscountFactor, 100*pt.Rate, 100*shifted.Points[i].Rate)
	}

	params := cfg.Params()
	var calib *calibration.Result
	if !opts.skipCalibration {
		engine, err := cfg.CalibrationEngine(logger)
		if err != nil {
			return err
		}
		res, err := engine.Calibrate(market, params)
		if err != nil {
			if errors.Is(err, models.ErrNonConvergence) {
				fmt.Printf("Calibration stopped after %d iterations at %s (residual %.3e)\n", res.Iterations, res.Params, res.ResidualNorm)
			}
			return fmt.Errorf("calibrate: %w", err)
		}
		calib = &res
		params = res.Params
		fmt.Printf("Calibrated %s in %d iterations (%s), residual %.3e\n", params, res.Iterations, res.Method, res.ResidualNorm)
	}

	sim, err := cfg.SimulationConfig()
	if err != nil {
		return err
	}
	if sim.Seed == 0 {
		sim.Seed = models.RandomSeed()
	}

	pricer := cfg.Pricer(logger)
	estimate, err := priceWithProgress(pricer, params, sim)
	if err != nil {
		return fmt.Errorf("price: %w", err)
	}
	fmt.Printf("Range accrual [%g, %g] on %g over %gy: %s\n", sim.RangeLower, sim.RangeUpper, sim.Notional, sim.Horizon, estimate)
	fmt.Printf("Time in range: %.2f%%\n", 100*estimate.AccrualFraction)

	sens, err := pricing.Sensitivities(pricing.MonteCarloPriceFunc(pricer, params, sim), params.InitialRate, cfg.Sensitivity.Bump)
	if err != nil {
		return fmt.Errorf("sensitivities: %w", err)
	}
	fmt.Printf("dPrice/dr0: %.6f  d2Price/dr0^2: %.6f  (bump %g)\n", sens.FirstOrder, sens.SecondOrder, sens.Bump)

	var sweep []pricing.PriceEstimate
	if opts.sweep {
		sweep, err = pricer.ConvergenceSweep(params, sim, cfg.Simulation.SweepSizes)
		if err != nil {
			return err
		}
		for _, est := range sweep {
			fmt.Printf("  %8d paths: %.6f ± %.6f\n", est.NumSimulations, est.Price, est.HalfWidth())
		}
	}

	rep, err := report.Build(report.Inputs{
		Params:      params,
		Calibration: calib,
		Simulation:  sim,
		Estimate:    estimate,
		Sensitivity: &sens,
		Market:      market,
		Shifted:     &shifted,
		ShiftBP:     cfg.Curve.ShiftBP,
		Sweep:       sweep,
	})
	if err != nil {
		return err
	}
	if err := writeReport(cfg.Output.Report, rep); err != nil {
		return err
	}
	logger.Info("report written", zap.String("path", cfg.Output.Report))

	if notifier != nil {
		if err := notifier.Finish(ctx, notifyTS, rep); err != nil {
			logger.Warn("slack notification failed", zap.Error(err))
		}
	}

	if dir := cfg.Output.PlotsDir; dir != "" {
		if err := writePlots(dir, market, shifted, params, sweep); err != nil {
			return err
		}
		logger.Info("plots written", zap.String("dir", dir))
	}
	return nil
}

func loadQuotes(ctx context.Context, cfg config.Config) (marketdata.Quotes, error) {
	rd := marketdata.Reader{Percent: cfg.Curve.Percent}
	if cfg.Curve.URL != "" {
		ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
		defer cancel()
		return rd.Fetch(ctx, &http.Client{Timeout: fetchTimeout}, cfg.Curve.URL)
	}
	return rd.Load(cfg.Curve.Path)
}

func priceWithProgress(pricer *pricing.MonteCarloPricer, params models.ModelParameters, sim pricing.SimulationConfig) (pricing.PriceEstimate, error) {
	p := mpb.New(mpb.WithWidth(64))
	bar := p.AddBar(int64(sim.NumSimulations),
		mpb.PrependDecorators(
			decor.Name("Paths"),
			decor.Percentage(decor.WCSyncSpace),
		),
		mpb.AppendDecorators(
			decor.CountersNoUnit("(%d / %d)", decor.WCSyncSpace),
		),
	)

	withBar := *pricer
	withBar.Progress = func(paths int) { bar.IncrBy(paths) }
	estimate, err := withBar.Price(params, sim)
	if err != nil {
		bar.Abort(false)
	}
	p.Wait()
	return estimate, err
}

func writeReport(path string, rep report.Report) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := rep.WriteJSON(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writePlots(dir string, market, shifted curve.Curve, params models.ModelParameters, sweep []pricing.PriceEstimate) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create plots directory: %w", err)
	}
	if err := report.PlotZCRates(filepath.Join(dir, "zc_rates.png"), market, params); err != nil {
		return err
	}
	if err := report.PlotDiscountFactors(filepath.Join(dir, "discount_factors.png"), market, params); err != nil {
		return err
	}
	if err := report.PlotShift(filepath.Join(dir, "zc_shift.png"), market, shifted); err != nil {
		return err
	}
	if len(sweep) > 0 {
		return report.PlotConvergence(filepath.Join(dir, "convergence.png"), sweep)
	}
	return nil
}
