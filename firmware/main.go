//go:build tinygo

//go:generate tinygo flash -target=xiao

// Command firmware streams one-shot ADC readings over the serial port in the
// "unix_micros,raw" line format read by adcbench.
package main

import (
	"machine"
	"time"
)

var (
	adc  machine.ADC
	uart = machine.UART0
)

func main() {
	PIN_ADC.Configure(machine.PinConfig{Mode: machine.PinInput})

	adc = machine.ADC{Pin: PIN_ADC}
	adc.Configure(machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	})

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	next := time.Now()
	for {
		now := time.Now()
		if now.Before(next) {
			time.Sleep(next.Sub(now))
			continue
		}
		next = next.Add(SAMPLE_INTERVAL_MS * time.Millisecond)

		writeReading(now, readRaw())
	}
}

// readRaw performs one conversion. machine.ADC.Get scales every reading to
// 16 bits, so shift back to the configured resolution.
func readRaw() uint16 {
	return adc.Get() >> (16 - ADC_RESOLUTION)
}

func writeReading(now time.Time, raw uint16) {
	// Output format: "unix_micros,raw\n"
	// Example: "1234567890123,2048\n"
	print(now.UnixNano() / 1000)
	print(",")
	print(raw)
	print("\n")
}
