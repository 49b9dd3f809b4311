package pricing

import (
	"fmt"
	"runtime"

	"github.com/bcdannyboy/rangeaccrual/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// blockSize is the number of paths sharing one random stream. Streams are
// keyed by block index, so an estimate only depends on the seed and not on
// how many workers ran it.
const blockSize = 1024

// MonteCarloPricer prices range accruals by simulating Vasicek paths in
// parallel blocks.
type MonteCarloPricer struct {
	Workers int // <= 0 uses GOMAXPROCS

	// Progress, when set, is called from worker goroutines with the number
	// of paths each finished block contained.
	Progress func(paths int)

	Logger *zap.Logger
}

func NewMonteCarloPricer(workers int) *MonteCarloPricer {
	return &MonteCarloPricer{Workers: workers}
}

func (m *MonteCarloPricer) workers() int {
	if m.Workers > 0 {
		return m.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (m *MonteCarloPricer) logger() *zap.Logger {
	if m.Logger == nil {
		return zap.NewNop()
	}
	return m.Logger
}

// Price estimates E[exp(-int r dt) P dt #{steps in [K1,K2]}] under p.
func (m *MonteCarloPricer) Price(p models.ModelParameters, cfg SimulationConfig) (PriceEstimate, error) {
	if err := cfg.Validate(); err != nil {
		return PriceEstimate{}, err
	}
	dt := cfg.StepSize()
	sim, err := models.NewPathSimulator(p, cfg.NumSteps, dt, cfg.RangeLower, cfg.RangeUpper)
	if err != nil {
		return PriceEstimate{}, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = models.RandomSeed()
	}

	n := cfg.NumSimulations
	payoffs := make([]float64, n)
	inRange := make([]int, n)
	numBlocks := (n + blockSize - 1) / blockSize

	var g errgroup.Group
	g.SetLimit(m.workers())
	for b := 0; b < numBlocks; b++ {
		g.Go(func() error {
			start := b * blockSize
			end := min(start+blockSize, n)

			gen := models.AcquireGenerator(models.StreamSeed(seed, b))
			defer models.ReleaseGenerator(gen)

			for i := start; i < end; i++ {
				res := sim.Simulate(gen, nil)
				payoffs[i] = cfg.discountedPayoff(res, dt)
				inRange[i] = res.InRange
			}
			if m.Progress != nil {
				m.Progress(end - start)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return PriceEstimate{}, fmt.Errorf("simulate paths: %w", err)
	}

	est, err := summarize(payoffs, cfg.confidenceLevel())
	if err != nil {
		return PriceEstimate{}, err
	}
	total := 0
	for _, c := range inRange {
		total += c
	}
	est.AccrualFraction = float64(total) / float64(n*cfg.NumSteps)

	m.logger().Debug("range accrual priced",
		zap.Stringer("params", p),
		zap.Int("paths", n),
		zap.Int("steps", cfg.NumSteps),
		zap.Uint64("seed", seed),
		zap.Stringer("discount", cfg.DiscountMode),
		zap.Float64("price", est.Price),
		zap.Float64("half_width", est.HalfWidth()),
	)
	return est, nil
}

// ConvergenceSweep prices the same contract for each simulation count in
// sizes. All runs share one seed so the smaller runs are prefixes of the
// larger ones.
func (m *MonteCarloPricer) ConvergenceSweep(p models.ModelParameters, cfg SimulationConfig, sizes []int) ([]PriceEstimate, error) {
	if cfg.Seed == 0 {
		cfg.Seed = models.RandomSeed()
	}
	estimates := make([]PriceEstimate, 0, len(sizes))
	for _, size := range sizes {
		run := cfg
		run.NumSimulations = size
		est, err := m.Price(p, run)
		if err != nil {
			return nil, fmt.Errorf("sweep at %d paths: %w", size, err)
		}
		estimates = append(estimates, est)
	}
	return estimates, nil
}
