package main

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/adcbench/pkg/adc"
	"github.com/itohio/adcbench/pkg/bench"
	"github.com/itohio/adcbench/pkg/config"
	"github.com/itohio/adcbench/pkg/lut"
	"github.com/itohio/adcbench/pkg/poly"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append(args, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "--log-level", "error"))
	err := cmd.Execute()
	return out.String(), err
}

func TestRun_MockJSON(t *testing.T) {
	t.Setenv("ADCBENCH_LOOP__INTERVAL", "1ms")

	out, err := execute(t, "run", "--mock", "--count", "3", "--json")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)

	for i, line := range lines {
		var res bench.Result
		require.NoError(t, json.Unmarshal([]byte(line), &res))
		assert.Equal(t, i+1, res.Cycle)
		assert.True(t, res.Calibrated())
		assert.GreaterOrEqual(t, res.PolyPercent, 0.0)
		assert.LessOrEqual(t, res.PolyPercent, 100.0)
		assert.GreaterOrEqual(t, res.LUTPercent, 0.0)
		assert.LessOrEqual(t, res.LUTPercent, 100.0)
	}
}

func TestRun_MockText(t *testing.T) {
	t.Setenv("ADCBENCH_LOOP__INTERVAL", "1ms")
	t.Setenv("ADCBENCH_CALIBRATION__SCHEME", "none")
	t.Setenv("ADCBENCH_CALIBRATION__FALLBACK", "none")

	out, err := execute(t, "run", "--mock", "-n", "2", "--parallel")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "raw="), line)
		assert.Contains(t, line, "mv= n/a")
		assert.Contains(t, line, "poly=0.0%")
		assert.Contains(t, line, "| LUT=")
	}
}

func TestRun_HardwareFault(t *testing.T) {
	t.Setenv("ADCBENCH_LOOP__INTERVAL", "1ms")
	t.Setenv("ADCBENCH_MOCK__FAULT_AFTER", "2")

	out, err := execute(t, "run", "--mock", "--json")
	require.Error(t, err)
	assert.ErrorIs(t, err, adc.ErrHardwareFault)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2)
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("ADCBENCH_TABLE__SCALE", "3")

	_, err := execute(t, "run", "--mock", "--count", "1")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestTableGenerate_Header(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lookuptable.h")

	_, err := execute(t, "table", "generate", "--out", path)
	require.NoError(t, err)

	table, err := lut.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3301, table.Len())
	assert.Equal(t, lut.IndexMillivolts, table.IndexMode())
	assert.Equal(t, lut.ScaleTenths, table.Scale())

	want := int(math.Round(poly.Default().PercentFromMillivolts(1650) * 10))
	assert.Equal(t, want, table.Value(1650))
}

func TestTableGenerate_RawYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.yaml")

	_, err := execute(t, "table", "generate", "-o", path, "--index-mode", "raw", "--scale", "1")
	require.NoError(t, err)

	table, err := lut.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4096, table.Len())
	assert.Equal(t, lut.IndexRaw, table.IndexMode())
	assert.Equal(t, lut.ScaleWhole, table.Scale())
}

func TestTableGenerate_Stdout(t *testing.T) {
	out, err := execute(t, "table", "generate", "--format", "header")
	require.NoError(t, err)
	assert.Contains(t, out, "#define LUT_SIZE 3301")
	assert.Contains(t, out, "lookup_table[LUT_SIZE]")
}

func TestTableGenerate_UnknownFormat(t *testing.T) {
	_, err := execute(t, "table", "generate", "--format", "csv")
	assert.Error(t, err)
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adcbench.yaml")

	_, err := execute(t, "config", "init", path)
	require.NoError(t, err)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	def := config.Default()
	assert.Equal(t, def.Source, cfg.Source)
	assert.Equal(t, def.ADC, cfg.ADC)
	assert.Equal(t, def.Table, cfg.Table)
	assert.Equal(t, def.Loop, cfg.Loop)
	assert.True(t, cfg.IsDefaultPolynomial())

	_, err = execute(t, "config", "init", path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("source:\n  kind: mock\n"), 0644))
	_, err = execute(t, "config", "init", path, "--force")
	require.NoError(t, err)

	cfg, err = config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.SourceSerial, cfg.Source.Kind)
}

func TestBuildPolynomial(t *testing.T) {
	cfg := config.Default()
	p, err := buildPolynomial(cfg)
	require.NoError(t, err)
	assert.Equal(t, poly.DefaultCoefficients[:], p.Coefficients())

	cfg.Polynomial.Coefficients = []float64{3, -0.01, 0, 0, 0, 0}
	_, err = buildPolynomial(cfg)
	assert.ErrorIs(t, err, poly.ErrNotMonotonic)

	cfg.Polynomial.Coefficients = []float64{0, 0.033, 0, 0, 0, 0}
	p, err = buildPolynomial(cfg)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, p.PercentFromMillivolts(1650), 1e-6)
}

func TestBuildCalibrator_FallsBack(t *testing.T) {
	cfg := config.Default()
	cfg.Calibration.Scheme = "points"
	cfg.Calibration.Fallback = "linear"
	cfg.Calibration.Points = []config.CalibrationPoint{{Raw: 0, Millivolts: 0}}

	cal, err := buildCalibrator(cfg, logrus.New())
	require.NoError(t, err)

	mv, err := cal.Millivolts(4095)
	require.NoError(t, err)
	assert.Equal(t, 3300, mv)
}

func TestBuildTable_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.yaml")
	src, err := lut.New([]int{0, 500, 1000}, lut.ScaleTenths, lut.IndexRaw)
	require.NoError(t, err)
	require.NoError(t, src.Save(path))

	cfg := config.Default()
	cfg.Table.File = path

	table, err := buildTable(cfg, poly.Default(), logrus.New())
	require.NoError(t, err)
	assert.Equal(t, 3, table.Len())
	assert.Equal(t, 50.0, table.PercentFromSample(1, adc.Unavailable))
}
