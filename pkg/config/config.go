package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"

	"github.com/itohio/adcbench/pkg/calib"
	"github.com/itohio/adcbench/pkg/lut"
	"github.com/itohio/adcbench/pkg/poly"
)

// EnvPrefix prefixes environment overrides. Nested keys use "__", e.g.
// ADCBENCH_LOOP__INTERVAL=500ms or ADCBENCH_TABLE__INDEX_MODE=raw.
const EnvPrefix = "ADCBENCH_"

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Source kinds.
const (
	SourceSerial = "serial"
	SourceMock   = "mock"
)

// Output formats of the benchmark loop.
const (
	OutputText = "text"
	OutputJSON = "json"
)

// Config represents the application configuration.
type Config struct {
	Source      SourceConfig      `yaml:"source"`
	ADC         ADCConfig         `yaml:"adc"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Polynomial  PolynomialConfig  `yaml:"polynomial"`
	Table       TableConfig       `yaml:"table"`
	Loop        LoopConfig        `yaml:"loop"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Status      StatusConfig      `yaml:"status"`
	Mock        MockConfig        `yaml:"mock"`
	Log         LogConfig         `yaml:"log"`
}

// SourceConfig selects where raw readings come from.
type SourceConfig struct {
	Kind     string `yaml:"kind"` // serial or mock
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// ADCConfig describes the converter.
type ADCConfig struct {
	RawMax     int `yaml:"raw_max"`    // Full-scale reading, 4095 for 12 bits
	VRefMV     int `yaml:"vref_mv"`    // Full-scale voltage in millivolts
	Oversample int `yaml:"oversample"` // Readings averaged per sample
}

// CalibrationConfig selects the raw to millivolt conversion.
type CalibrationConfig struct {
	Scheme   string             `yaml:"scheme"`   // none, linear or points
	Fallback string             `yaml:"fallback"` // used when the scheme is unavailable
	Points   []CalibrationPoint `yaml:"points"`
}

// CalibrationPoint represents a single measured calibration point.
type CalibrationPoint struct {
	Raw        int `yaml:"raw"`
	Millivolts int `yaml:"mv"`
}

// PolynomialConfig holds the sensor curve V = f(%).
type PolynomialConfig struct {
	Coefficients []float64 `yaml:"coefficients"` // c0 first
	Iterations   int       `yaml:"iterations"`
}

// TableConfig describes the lookup table.
type TableConfig struct {
	File      string `yaml:"file"`       // YAML or C header; empty generates from the polynomial
	IndexMode string `yaml:"index_mode"` // raw or mv
	Scale     int    `yaml:"scale"`      // 1 or 10
}

// LoopConfig controls the benchmark loop.
type LoopConfig struct {
	Interval  time.Duration `yaml:"interval"`
	MaxCycles int           `yaml:"max_cycles"` // 0 runs until interrupted
	Parallel  bool          `yaml:"parallel"`
	Output    string        `yaml:"output"` // text or json
}

// MetricsConfig enables Prometheus instrumentation.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// StatusConfig configures the HTTP status endpoint.
type StatusConfig struct {
	Addr string `yaml:"addr"` // empty disables the endpoint
}

// MockConfig contains mock source configuration.
type MockConfig struct {
	Steps      int           `yaml:"steps"`       // Readings per sweep
	Noise      int           `yaml:"noise"`       // Peak noise (raw counts)
	FaultAfter int           `yaml:"fault_after"` // Inject a hardware fault after N readings
	Delay      time.Duration `yaml:"delay"`       // Simulated conversion time
	Seed       uint64        `yaml:"seed"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			Kind:     SourceSerial,
			Port:     "/dev/ttyUSB0",
			BaudRate: 115200,
		},
		ADC: ADCConfig{
			RawMax:     4095,
			VRefMV:     3300,
			Oversample: 1,
		},
		Calibration: CalibrationConfig{
			Scheme:   string(calib.SchemeLinear),
			Fallback: string(calib.SchemeLinear),
		},
		Polynomial: PolynomialConfig{
			Coefficients: append([]float64(nil), poly.DefaultCoefficients[:]...),
			Iterations:   poly.DefaultIterations,
		},
		Table: TableConfig{
			IndexMode: "mv",
			Scale:     10,
		},
		Loop: LoopConfig{
			Interval: 200 * time.Millisecond,
			Output:   OutputText,
		},
		Mock: MockConfig{
			Steps: 200,
			Noise: 8,
			Seed:  1,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file, then applies ADCBENCH_
// environment overrides. If the file doesn't exist or fields are missing,
// default values are used.
func Load(filename string) (*Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if filename != "" {
		if _, err := os.Stat(filename); err == nil {
			if err := k.Load(file.Provider(filename), kyaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	// Lists replace the defaults instead of merging element-wise.
	if k.Exists("polynomial.coefficients") {
		cfg.Polynomial.Coefficients = nil
	}
	if k.Exists("calibration.points") {
		cfg.Calibration.Points = nil
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// envKey maps ADCBENCH_TABLE__INDEX_MODE to table.index_mode.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Source.Kind == "" {
		c.Source.Kind = def.Source.Kind
	}
	if c.Source.Port == "" {
		c.Source.Port = def.Source.Port
	}
	if c.Source.BaudRate == 0 {
		c.Source.BaudRate = def.Source.BaudRate
	}

	if c.ADC.RawMax == 0 {
		c.ADC.RawMax = def.ADC.RawMax
	}
	if c.ADC.VRefMV == 0 {
		c.ADC.VRefMV = def.ADC.VRefMV
	}
	if c.ADC.Oversample == 0 {
		c.ADC.Oversample = def.ADC.Oversample
	}

	if c.Calibration.Scheme == "" {
		c.Calibration.Scheme = def.Calibration.Scheme
	}

	if len(c.Polynomial.Coefficients) == 0 {
		c.Polynomial.Coefficients = def.Polynomial.Coefficients
	}
	if c.Polynomial.Iterations == 0 {
		c.Polynomial.Iterations = def.Polynomial.Iterations
	}

	if c.Table.IndexMode == "" {
		c.Table.IndexMode = def.Table.IndexMode
	}
	if c.Table.Scale == 0 {
		c.Table.Scale = def.Table.Scale
	}

	if c.Loop.Interval == 0 {
		c.Loop.Interval = def.Loop.Interval
	}
	if c.Loop.Output == "" {
		c.Loop.Output = def.Loop.Output
	}

	if c.Mock.Steps == 0 {
		c.Mock.Steps = def.Mock.Steps
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}

// Validate checks values that ensureDefaults cannot repair.
func (c *Config) Validate() error {
	var errs []error

	switch c.Source.Kind {
	case SourceSerial, SourceMock:
	default:
		errs = append(errs, fmt.Errorf("source.kind: unknown kind %q", c.Source.Kind))
	}

	if c.ADC.RawMax <= 0 || c.ADC.VRefMV <= 0 {
		errs = append(errs, errors.New("adc: raw_max and vref_mv must be positive"))
	}
	if c.ADC.Oversample < 1 {
		errs = append(errs, errors.New("adc.oversample: must be at least 1"))
	}

	if _, err := c.CalibrationParams(); err != nil {
		errs = append(errs, err)
	}

	if len(c.Polynomial.Coefficients) != poly.Degree+1 {
		errs = append(errs, fmt.Errorf("polynomial.coefficients: expected %d, got %d", poly.Degree+1, len(c.Polynomial.Coefficients)))
	}
	if c.Polynomial.Iterations < 1 {
		errs = append(errs, errors.New("polynomial.iterations: must be at least 1"))
	}

	if _, err := lut.ParseIndexMode(c.Table.IndexMode); err != nil {
		errs = append(errs, fmt.Errorf("table.index_mode: %w", err))
	}
	if !lut.Scale(c.Table.Scale).Valid() {
		errs = append(errs, fmt.Errorf("table.scale: must be 1 or 10, got %d", c.Table.Scale))
	}

	if c.Loop.Interval < 0 {
		errs = append(errs, errors.New("loop.interval: must not be negative"))
	}
	if c.Loop.MaxCycles < 0 {
		errs = append(errs, errors.New("loop.max_cycles: must not be negative"))
	}
	switch c.Loop.Output {
	case OutputText, OutputJSON:
	default:
		errs = append(errs, fmt.Errorf("loop.output: unknown format %q", c.Loop.Output))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// CalibrationParams converts the calibration section for calib.Probe.
func (c *Config) CalibrationParams() (calib.Params, error) {
	scheme, err := calib.ParseScheme(c.Calibration.Scheme)
	if err != nil {
		return calib.Params{}, fmt.Errorf("calibration.scheme: %w", err)
	}
	fallback, err := calib.ParseScheme(c.Calibration.Fallback)
	if err != nil {
		return calib.Params{}, fmt.Errorf("calibration.fallback: %w", err)
	}

	points := make([]calib.Point, len(c.Calibration.Points))
	for i, p := range c.Calibration.Points {
		points[i] = calib.Point{Raw: p.Raw, Millivolts: p.Millivolts}
	}

	return calib.Params{
		Scheme:   scheme,
		Fallback: fallback,
		RawMax:   c.ADC.RawMax,
		VRefMV:   c.ADC.VRefMV,
		Points:   points,
	}, nil
}

// IsDefaultPolynomial reports whether the reference curve and budget are in use.
func (c *Config) IsDefaultPolynomial() bool {
	if c.Polynomial.Iterations != poly.DefaultIterations {
		return false
	}
	if len(c.Polynomial.Coefficients) != len(poly.DefaultCoefficients) {
		return false
	}
	for i, v := range c.Polynomial.Coefficients {
		if v != poly.DefaultCoefficients[i] {
			return false
		}
	}
	return true
}
