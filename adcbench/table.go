package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/itohio/adcbench/pkg/config"
)

const (
	formatYAML   = "yaml"
	formatHeader = "header"
)

// NewTableCommand groups lookup table subcommands.
func NewTableCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Work with lookup tables",
	}

	cmd.AddCommand(NewTableGenerateCommand())

	return cmd
}

// NewTableGenerateCommand precomputes a lookup table from the polynomial.
func NewTableGenerateCommand() *cobra.Command {
	var (
		out       string
		format    string
		indexMode string
		scale     int
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a lookup table from the configured polynomial",
		Long: `Generate a lookup table by evaluating the polynomial estimator at every
index. Millivolt-indexed tables have one entry per millivolt up to adc.vref_mv;
raw-indexed tables have one entry per raw reading up to adc.raw_max.

The table is written as YAML or as a C header compatible with the firmware.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("index-mode") {
				cfg.Table.IndexMode = indexMode
			}
			if cmd.Flags().Changed("scale") {
				cfg.Table.Scale = scale
			}
			cfg.Table.File = ""
			if err := cfg.Validate(); err != nil {
				return err
			}

			if format == "" {
				format = formatFor(out)
			}
			return generateTable(cfg, out, format, cmd.OutOrStdout(), logrus.StandardLogger())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&out, "out", "o", "-", "output file, - for stdout")
	f.StringVarP(&format, "format", "f", "", "output format (yaml or header); defaults to the output file extension")
	f.StringVar(&indexMode, "index-mode", "mv", "table index (raw or mv), overrides table.index_mode")
	f.IntVar(&scale, "scale", 10, "value scale (1 or 10), overrides table.scale")

	return cmd
}

func formatFor(out string) string {
	if filepath.Ext(out) == ".h" {
		return formatHeader
	}
	return formatYAML
}

func generateTable(cfg *config.Config, out, format string, stdout io.Writer, log logrus.FieldLogger) error {
	if format != formatYAML && format != formatHeader {
		return fmt.Errorf("unknown table format %q", format)
	}

	p, err := buildPolynomial(cfg)
	if err != nil {
		return err
	}
	t, err := buildTable(cfg, p, log)
	if err != nil {
		return err
	}

	w := stdout
	var file *os.File
	if out != "-" {
		file, err = os.Create(out)
		if err != nil {
			return fmt.Errorf("failed to create table file: %w", err)
		}
		defer file.Close()
		w = file
	}

	if format == formatHeader {
		err = t.WriteHeader(w)
	} else {
		err = t.WriteYAML(w)
	}
	if err != nil {
		return err
	}
	if file == nil {
		return nil
	}

	if err := file.Close(); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"file":   out,
		"format": format,
		"size":   t.Len(),
	}).Info("lookup table written")
	return nil
}
