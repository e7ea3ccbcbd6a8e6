package adc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate matches the firmware UART setting.
	DefaultBaudRate = 115200
	// DefaultBufferSize is the default size of the readings buffer.
	DefaultBufferSize = 16
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list serial ports")
	}

	result := make([]Port, 0, len(names))
	for _, name := range names {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

type reading struct {
	Timestamp time.Time
	Raw       int
}

type openFunc func(name string, mode *serial.Mode) (io.ReadWriteCloser, error)

func openSerial(name string, mode *serial.Mode) (io.ReadWriteCloser, error) {
	return serial.Open(name, mode)
}

// Serial reads raw samples streamed by the firmware over a serial port.
// Each line has the form "unix_micros,raw".
type Serial struct {
	port     string
	baudRate int
	bufSize  int
	rawMax   int
	log      logrus.FieldLogger
	open     openFunc

	mu       sync.Mutex
	conn     io.ReadWriteCloser
	readings chan reading
	cancel   context.CancelFunc
	err      error
}

// SerialOption configures a Serial source.
type SerialOption func(*Serial)

// WithBaudRate sets the baud rate.
func WithBaudRate(baud int) SerialOption {
	return func(s *Serial) {
		if baud > 0 {
			s.baudRate = baud
		}
	}
}

// WithBufferSize sets how many readings are buffered ahead of the consumer.
func WithBufferSize(n int) SerialOption {
	return func(s *Serial) {
		if n > 0 {
			s.bufSize = n
		}
	}
}

// WithRawMax sets the largest accepted raw value.
func WithRawMax(max int) SerialOption {
	return func(s *Serial) {
		if max > 0 {
			s.rawMax = max
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) SerialOption {
	return func(s *Serial) {
		if l != nil {
			s.log = l
		}
	}
}

// NewSerial creates a serial source for the given port.
func NewSerial(port string, opts ...SerialOption) *Serial {
	s := &Serial{
		port:     port,
		baudRate: DefaultBaudRate,
		bufSize:  DefaultBufferSize,
		rawMax:   DefaultRawMax,
		log:      logrus.StandardLogger(),
		open:     openSerial,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens the port and starts reading lines in the background.
func (s *Serial) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return ErrAlreadyOpen
	}

	conn, err := s.open(s.port, &serial.Mode{BaudRate: s.baudRate})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHardwareFault, pkgerrors.Wrapf(err, "failed to open serial port %s", s.port))
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.conn = conn
	s.cancel = cancel
	s.err = nil
	s.readings = make(chan reading, s.bufSize)

	go s.readLines(ctx, conn, s.readings)

	return nil
}

// Close stops reading and closes the port.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}

	s.cancel()
	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to close serial port %s", s.port)
	}
	return nil
}

// ReadRaw returns the oldest buffered reading, blocking until one arrives.
func (s *Serial) ReadRaw(ctx context.Context) (int, error) {
	s.mu.Lock()
	readings := s.readings
	s.mu.Unlock()

	if readings == nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrHardwareFault, s.port, ErrNotOpen)
	}

	select {
	case r, ok := <-readings:
		if !ok {
			return 0, fmt.Errorf("%w: %s: %v", ErrHardwareFault, s.port, s.readErr())
		}
		return r.Raw, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (s *Serial) readErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		return io.ErrClosedPipe
	}
	return s.err
}

// readLines owns the readings channel and closes it on exit.
func (s *Serial) readLines(ctx context.Context, r io.Reader, out chan reading) {
	defer close(out)

	log := s.log.WithField("port", s.port)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		rd, err := parseLine(line, s.rawMax)
		if err != nil {
			log.WithError(err).Debugf("skipping line %q", line)
			continue
		}

		// Keep the freshest readings: drop the oldest when the consumer lags.
		select {
		case out <- rd:
		default:
			select {
			case <-out:
			default:
			}
			select {
			case out <- rd:
			default:
			}
		}
	}

	if ctx.Err() != nil {
		return
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	log.WithError(err).Error("serial stream ended")

	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// parseLine parses a line from the MCU.
// Format: unix_micros,raw
// Example: 1234567890123,2048
func parseLine(line string, rawMax int) (reading, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 2 {
		return reading{}, fmt.Errorf("invalid line format: expected 2 comma-separated values, got %d", len(parts))
	}

	micros, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return reading{}, fmt.Errorf("invalid timestamp: %w", err)
	}

	raw, err := strconv.Atoi(parts[1])
	if err != nil {
		return reading{}, fmt.Errorf("invalid reading: %w", err)
	}
	if raw < 0 || raw > rawMax {
		return reading{}, fmt.Errorf("reading out of range: %d (max %d)", raw, rawMax)
	}

	return reading{
		Timestamp: time.UnixMicro(micros),
		Raw:       raw,
	}, nil
}
