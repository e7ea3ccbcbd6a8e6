package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/itohio/adcbench/pkg/adc"
	"github.com/itohio/adcbench/pkg/config"
)

var (
	logLevel   = ""
	configPath = "adcbench.yaml"
)

func setupLogger(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(lvl)
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.StampMilli,
		})
	}

	return nil
}

// loadConfig reads the config file and lets --log-level win over log.level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := setupLogger(cfg.Log.Level); err != nil {
		return nil, err
	}
	return cfg, nil
}

func handleCmdError(err error) {
	switch {
	case errors.Is(err, adc.ErrHardwareFault):
		fmt.Fprintln(os.Stderr, "\nError: ADC hardware fault")
		fmt.Fprintln(os.Stderr, "  - Check that the board is connected and streaming")
		fmt.Fprintln(os.Stderr, "  - Or run with --mock to use the simulated source")
	case errors.Is(err, config.ErrInvalidConfig):
		fmt.Fprintf(os.Stderr, "\nError: invalid configuration in %s\n", configPath)
	}
}

func main() {
	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

// NewCommand creates the root command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adcbench",
		Short: "adcbench compares a polynomial and a lookup table for ADC percentage conversion",
		Long: `adcbench samples an ADC channel, converts every reading to a percentage
with a quintic sensor polynomial (inverted by bisection) and with a lookup
table, and reports the result and the time each method took.`,
		SilenceUsage: true,
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "", "log level (trace, debug, info, warn, error), overrides log.level")
	globalFlags.StringVarP(&configPath, "config", "c", "adcbench.yaml", "config file path")

	cmd.AddCommand(
		NewRunCommand(),
		NewTableCommand(),
		NewConfigCommand(),
		NewPortsCommand(),
	)

	return cmd
}
