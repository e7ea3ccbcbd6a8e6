package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/itohio/adcbench/pkg/adc"
	"github.com/itohio/adcbench/pkg/bench"
	"github.com/itohio/adcbench/pkg/calib"
	"github.com/itohio/adcbench/pkg/config"
	"github.com/itohio/adcbench/pkg/lut"
	"github.com/itohio/adcbench/pkg/metrics"
	"github.com/itohio/adcbench/pkg/poly"
	"github.com/itohio/adcbench/pkg/status"
)

type runFlags struct {
	mock     bool
	port     string
	count    int
	json     bool
	parallel bool
	status   string
}

// NewRunCommand creates the benchmark loop command.
func NewRunCommand() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sample the ADC and compare both estimators every cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			applyRunFlags(cmd, cfg, flags)
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runBenchmark(ctx, cfg, cmd.OutOrStdout(), logrus.StandardLogger())
		},
	}

	f := cmd.Flags()
	f.BoolVar(&flags.mock, "mock", false, "use the simulated source instead of the serial port")
	f.StringVarP(&flags.port, "port", "p", "", "serial port override (e.g. COM3 or /dev/ttyACM0)")
	f.IntVarP(&flags.count, "count", "n", 0, "stop after this many cycles (0 runs until interrupted)")
	f.BoolVar(&flags.json, "json", false, "print one JSON object per cycle")
	f.BoolVar(&flags.parallel, "parallel", false, "evaluate both estimators concurrently")
	f.StringVar(&flags.status, "status-addr", "", "serve status and metrics on this address (e.g. :9100)")

	return cmd
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config, flags runFlags) {
	if flags.mock {
		cfg.Source.Kind = config.SourceMock
	}
	if flags.port != "" {
		cfg.Source.Port = flags.port
	}
	if cmd.Flags().Changed("count") {
		cfg.Loop.MaxCycles = flags.count
	}
	if flags.json {
		cfg.Loop.Output = config.OutputJSON
	}
	if flags.parallel {
		cfg.Loop.Parallel = true
	}
	if flags.status != "" {
		cfg.Status.Addr = flags.status
	}
}

// runBenchmark wires the configured components and runs the loop until ctx
// is cancelled, the cycle limit is reached or the source fails.
func runBenchmark(ctx context.Context, cfg *config.Config, out io.Writer, log logrus.FieldLogger) error {
	p, err := buildPolynomial(cfg)
	if err != nil {
		return err
	}

	table, err := buildTable(cfg, p, log)
	if err != nil {
		return err
	}

	cal, err := buildCalibrator(cfg, log)
	if err != nil {
		return err
	}

	src := buildSource(cfg, log)
	if err := src.Open(); err != nil {
		return err
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.WithError(err).Warn("failed to close source")
		}
	}()

	sampler := adc.NewSampler(src, cal,
		adc.WithOversample(cfg.ADC.Oversample),
		adc.WithSamplerRawMax(cfg.ADC.RawMax),
		adc.WithSamplerLogger(log),
	)

	opts := []bench.Option{
		bench.WithLogger(log),
		bench.WithInterval(cfg.Loop.Interval),
		bench.WithMaxCycles(cfg.Loop.MaxCycles),
		bench.WithParallel(cfg.Loop.Parallel),
		bench.WithSinks(buildSink(cfg, out)),
	}

	var mgr *metrics.Manager
	if cfg.Metrics.Enabled || cfg.Status.Addr != "" {
		mgr = metrics.NewManager()
		opts = append(opts, bench.WithRecorder(mgr))
	}

	runner := bench.NewRunner(sampler, p, table, opts...)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverDone := make(chan struct{})
	if cfg.Status.Addr != "" {
		srv := status.New(cfg.Status.Addr, runner,
			status.WithMetrics(mgr.Handler()),
			status.WithLogger(log),
		)
		go func() {
			defer close(serverDone)
			if err := srv.Run(runCtx); err != nil {
				log.WithError(err).Error("status server failed")
			}
		}()
	} else {
		close(serverDone)
	}

	err = runner.Run(runCtx)
	cancel()
	<-serverDone

	logSummary(log, runner.Summary())
	if err != nil {
		return fmt.Errorf("benchmark %s: %w", runner.ID(), err)
	}
	return nil
}

func logSummary(log logrus.FieldLogger, s bench.Summary) {
	if s.Cycles == 0 {
		return
	}
	log.WithFields(logrus.Fields{
		"run_id":       s.RunID,
		"cycles":       s.Cycles,
		"uncalibrated": s.Uncalibrated,
		"poly_mean":    s.Poly.Mean,
		"poly_max":     s.Poly.Max,
		"lut_mean":     s.LUT.Mean,
		"lut_max":      s.LUT.Max,
		"winner":       s.Winner(),
	}).Info("benchmark summary")
}

// buildPolynomial constructs the estimator. Substituted coefficients or
// iteration budgets must keep the inverse ordered over the ADC range.
func buildPolynomial(cfg *config.Config) (*poly.Polynomial, error) {
	p, err := poly.New(cfg.Polynomial.Coefficients, poly.WithIterations(cfg.Polynomial.Iterations))
	if err != nil {
		return nil, err
	}
	if !cfg.IsDefaultPolynomial() {
		if err := p.VerifyMonotonic(); err != nil {
			return nil, fmt.Errorf("polynomial rejected: %w", err)
		}
	}
	return p, nil
}

// buildTable loads the configured table file, or generates one from p.
func buildTable(cfg *config.Config, p *poly.Polynomial, log logrus.FieldLogger) (*lut.Table, error) {
	if cfg.Table.File != "" {
		t, err := lut.Load(cfg.Table.File)
		if err != nil {
			return nil, err
		}
		log.WithFields(logrus.Fields{
			"file":       cfg.Table.File,
			"size":       t.Len(),
			"index_mode": t.IndexMode(),
			"scale":      t.Scale(),
		}).Info("lookup table loaded")
		return t, nil
	}

	mode, err := lut.ParseIndexMode(cfg.Table.IndexMode)
	if err != nil {
		return nil, err
	}
	t, err := lut.FromPolynomial(p, mode, lut.Scale(cfg.Table.Scale), cfg.ADC.VRefMV, cfg.ADC.RawMax)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"size":       t.Len(),
		"index_mode": t.IndexMode(),
		"scale":      t.Scale(),
	}).Debug("lookup table generated")
	return t, nil
}

// buildCalibrator probes the configured scheme once. Degraded calibration is
// reported here and never again.
func buildCalibrator(cfg *config.Config, log logrus.FieldLogger) (calib.Calibrator, error) {
	params, err := cfg.CalibrationParams()
	if err != nil {
		return nil, err
	}

	cal, err := calib.Probe(params)
	if err != nil {
		if !errors.Is(err, calib.ErrUnavailable) {
			return nil, err
		}
		log.WithError(err).WithFields(logrus.Fields{
			"scheme":   params.Scheme,
			"fallback": params.Fallback,
		}).Warn("calibration scheme unavailable")
	}
	return cal, nil
}

func buildSource(cfg *config.Config, log logrus.FieldLogger) adc.Source {
	if cfg.Source.Kind == config.SourceMock {
		log.Info("using simulated ADC source")
		return adc.NewMock(adc.MockConfig{
			RawMax:     cfg.ADC.RawMax,
			Steps:      cfg.Mock.Steps,
			Noise:      cfg.Mock.Noise,
			FaultAfter: cfg.Mock.FaultAfter,
			Delay:      cfg.Mock.Delay,
			Seed:       cfg.Mock.Seed,
		})
	}

	return adc.NewSerial(cfg.Source.Port,
		adc.WithBaudRate(cfg.Source.BaudRate),
		adc.WithRawMax(cfg.ADC.RawMax),
		adc.WithLogger(log),
	)
}

func buildSink(cfg *config.Config, out io.Writer) bench.Sink {
	if cfg.Loop.Output == config.OutputJSON {
		return bench.NewJSONSink(out)
	}
	return bench.NewConsoleSink(out, out == os.Stdout && !color.NoColor)
}
