package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/itohio/adcbench/pkg/adc"
)

// NewPortsCommand lists serial ports.
func NewPortsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List available serial ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ports, err := adc.Ports()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(ports) == 0 {
				fmt.Fprintln(out, "no serial ports found")
				return nil
			}
			for _, p := range ports {
				fmt.Fprintln(out, p.Name)
			}
			return nil
		},
	}
}
