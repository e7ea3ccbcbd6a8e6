//go:build tinygo

package main

import "machine"

const (
	// Sampling configuration
	SAMPLE_INTERVAL_MS = 10 // One-shot conversion period in milliseconds

	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // ADC resolution in bits (12-bit = 0-4095)

	// ADC pin
	PIN_ADC = machine.A1

	// Serial configuration
	// Format "unix_micros,raw\n" is at most ~22 bytes per line.
	// 100 lines/sec * 22 bytes = 2,200 bytes/sec, well within 115200 8N1.
	UART_BAUD_RATE = 115200
)
