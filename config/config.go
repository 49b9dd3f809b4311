package config

import (
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"strings"

	"github.com/bcdannyboy/rangeaccrual/calibration"
	"github.com/bcdannyboy/rangeaccrual/curve"
	"github.com/bcdannyboy/rangeaccrual/models"
	"github.com/bcdannyboy/rangeaccrual/pricing"
	"github.com/joho/godotenv"
	"github.com/shirou/gopsutil/cpu"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix namespaces environment overrides, e.g. RANGEACCRUAL_SIMULATION_SEED.
const EnvPrefix = "RANGEACCRUAL"

type Config struct {
	Model       ModelConfig       `mapstructure:"model"`
	Simulation  SimulationConfig  `mapstructure:"simulation"`
	Sensitivity SensitivityConfig `mapstructure:"sensitivity"`
	Calibration CalibrationConfig `mapstructure:"calibration"`
	Curve       CurveConfig       `mapstructure:"curve"`
	Output      OutputConfig      `mapstructure:"output"`
	Log         LogConfig         `mapstructure:"log"`
	Notify      NotifyConfig      `mapstructure:"notify"`
}

// ModelConfig is the calibration starting point, or the model itself when
// calibration is skipped.
type ModelConfig struct {
	MeanReversion float64 `mapstructure:"mean_reversion"`
	LongTermMean  float64 `mapstructure:"long_term_mean"`
	Volatility    float64 `mapstructure:"volatility"`
	InitialRate   float64 `mapstructure:"initial_rate"`
}

type SimulationConfig struct {
	NumSimulations  int     `mapstructure:"num_simulations"`
	NumSteps        int     `mapstructure:"num_steps"`
	Horizon         float64 `mapstructure:"horizon"`
	ValuationTime   float64 `mapstructure:"valuation_time"`
	RangeLower      float64 `mapstructure:"range_lower"`
	RangeUpper      float64 `mapstructure:"range_upper"`
	Notional        float64 `mapstructure:"notional"`
	Seed            uint64  `mapstructure:"seed"`
	DiscountMode    string  `mapstructure:"discount_mode"`
	ConfidenceLevel float64 `mapstructure:"confidence_level"`
	Workers         int     `mapstructure:"workers"`
	SweepSizes      []int   `mapstructure:"sweep_sizes"`
}

type SensitivityConfig struct {
	Bump float64 `mapstructure:"bump"`
}

type CalibrationConfig struct {
	Method        string  `mapstructure:"method"`
	MaxIterations int     `mapstructure:"max_iterations"`
	Tolerance     float64 `mapstructure:"tolerance"`
	GlobalSearch  bool    `mapstructure:"global_search"`
	Seed          uint64  `mapstructure:"seed"`
}

type CurveConfig struct {
	Path         string  `mapstructure:"path"`
	URL          string  `mapstructure:"url"`
	Percent      bool    `mapstructure:"percent"`
	DepositCount int     `mapstructure:"deposit_count"`
	Strict       bool    `mapstructure:"strict"`
	ShiftBP      float64 `mapstructure:"shift_bp"`
}

type OutputConfig struct {
	Report   string `mapstructure:"report"`
	PlotsDir string `mapstructure:"plots_dir"`
}

// NotifyConfig enables the Slack run summary when both fields are set.
type NotifyConfig struct {
	SlackToken   string `mapstructure:"slack_token"`
	SlackChannel string `mapstructure:"slack_channel"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model.mean_reversion", 0.5)
	v.SetDefault("model.long_term_mean", 0.04)
	v.SetDefault("model.volatility", 0.015)
	v.SetDefault("model.initial_rate", 0.02)

	v.SetDefault("simulation.num_simulations", 10000)
	v.SetDefault("simulation.num_steps", 100)
	v.SetDefault("simulation.horizon", 10.0)
	v.SetDefault("simulation.valuation_time", 0.0)
	v.SetDefault("simulation.range_lower", 0.01)
	v.SetDefault("simulation.range_upper", 0.05)
	v.SetDefault("simulation.notional", 10.0)
	v.SetDefault("simulation.seed", 0)
	v.SetDefault("simulation.discount_mode", pricing.DiscountCorrected.String())
	v.SetDefault("simulation.confidence_level", pricing.DefaultConfidenceLevel)
	v.SetDefault("simulation.workers", 0)
	v.SetDefault("simulation.sweep_sizes", []int{1000, 10000, 100000})

	v.SetDefault("sensitivity.bump", 1e-4)

	v.SetDefault("calibration.method", calibration.MethodLevenbergMarquardt.String())
	v.SetDefault("calibration.max_iterations", calibration.DefaultMaxIterations)
	v.SetDefault("calibration.tolerance", calibration.DefaultTolerance)
	v.SetDefault("calibration.global_search", false)
	v.SetDefault("calibration.seed", 0)

	v.SetDefault("curve.path", "curve.csv")
	v.SetDefault("curve.url", "")
	v.SetDefault("curve.percent", false)
	v.SetDefault("curve.deposit_count", curve.DefaultDepositCount)
	v.SetDefault("curve.strict", false)
	v.SetDefault("curve.shift_bp", 100.0)

	v.SetDefault("output.report", "report.json")
	v.SetDefault("output.plots_dir", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("notify.slack_token", "")
	v.SetDefault("notify.slack_channel", "")
}

// Load reads .env (if present), then the optional config file at path, then
// RANGEACCRUAL_* environment variables, in increasing precedence over the
// built-in defaults.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Simulation.Workers <= 0 {
		cfg.Simulation.Workers = DefaultWorkers()
	}
	return cfg, cfg.Validate()
}

// DefaultWorkers is the number of logical CPUs.
func DefaultWorkers() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.GOMAXPROCS(0)
}

func (c Config) Validate() error {
	if err := c.Params().Validate(); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	sim, err := c.SimulationConfig()
	if err != nil {
		return err
	}
	if err := sim.Validate(); err != nil {
		return fmt.Errorf("simulation: %w", err)
	}
	if !(c.Sensitivity.Bump > 0) {
		return fmt.Errorf("sensitivity bump must be positive: %w", models.ErrInvalidParameter)
	}
	if _, err := calibration.ParseMethod(c.Calibration.Method); err != nil {
		return fmt.Errorf("calibration: %w", err)
	}
	for _, n := range c.Simulation.SweepSizes {
		if n <= 0 {
			return fmt.Errorf("sweep size %d must be positive: %w", n, models.ErrInvalidParameter)
		}
	}
	return nil
}

func (c Config) Params() models.ModelParameters {
	return models.ModelParameters{
		MeanReversion: c.Model.MeanReversion,
		LongTermMean:  c.Model.LongTermMean,
		Volatility:    c.Model.Volatility,
		InitialRate:   c.Model.InitialRate,
	}
}

func (c Config) SimulationConfig() (pricing.SimulationConfig, error) {
	mode, err := pricing.ParseDiscountMode(c.Simulation.DiscountMode)
	if err != nil {
		return pricing.SimulationConfig{}, fmt.Errorf("simulation: %w", err)
	}
	return pricing.SimulationConfig{
		NumSimulations:  c.Simulation.NumSimulations,
		NumSteps:        c.Simulation.NumSteps,
		Horizon:         c.Simulation.Horizon,
		ValuationTime:   c.Simulation.ValuationTime,
		RangeLower:      c.Simulation.RangeLower,
		RangeUpper:      c.Simulation.RangeUpper,
		Notional:        c.Simulation.Notional,
		Seed:            c.Simulation.Seed,
		DiscountMode:    mode,
		ConfidenceLevel: c.Simulation.ConfidenceLevel,
	}, nil
}

func (c Config) CalibrationEngine(logger *zap.Logger) (*calibration.Engine, error) {
	method, err := calibration.ParseMethod(c.Calibration.Method)
	if err != nil {
		return nil, err
	}
	e := calibration.NewEngine()
	e.Method = method
	e.MaxIterations = c.Calibration.MaxIterations
	e.Tolerance = c.Calibration.Tolerance
	e.GlobalSearch = c.Calibration.GlobalSearch
	e.Seed = c.Calibration.Seed
	e.Logger = logger
	return e, nil
}

func (c Config) Bootstrapper(logger *zap.Logger) *curve.Bootstrapper {
	b := curve.NewBootstrapper()
	b.DepositCount = c.Curve.DepositCount
	b.Strict = c.Curve.Strict
	b.Logger = logger
	return b
}

func (c Config) Pricer(logger *zap.Logger) *pricing.MonteCarloPricer {
	m := pricing.NewMonteCarloPricer(c.Simulation.Workers)
	m.Logger = logger
	return m
}
