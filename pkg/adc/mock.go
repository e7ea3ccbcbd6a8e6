package adc

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// MockConfig describes the simulated signal.
type MockConfig struct {
	RawMax     int           // Full-scale reading
	Steps      int           // Readings per full triangle sweep (up and down)
	Noise      int           // Peak noise in raw counts
	FaultAfter int           // Fail with ErrHardwareFault after this many readings (0 = never)
	Delay      time.Duration // Simulated conversion time per reading
	Seed       uint64        // Noise seed
}

// Mock simulates an ADC channel for testing and development. The signal is a
// triangle sweep over the full raw range with bounded uniform noise, so every
// reading is deterministic for a given seed.
type Mock struct {
	cfg MockConfig

	mu    sync.Mutex
	open  bool
	count int
	rng   *rand.Rand
}

// NewMock creates a new simulated source.
func NewMock(cfg MockConfig) *Mock {
	if cfg.RawMax <= 0 {
		cfg.RawMax = DefaultRawMax
	}
	if cfg.Steps < 2 {
		cfg.Steps = 100
	}
	if cfg.Noise < 0 {
		cfg.Noise = 0
	}

	return &Mock{cfg: cfg}
}

// Open starts the simulation from the bottom of the sweep.
func (m *Mock) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.open {
		return ErrAlreadyOpen
	}

	m.open = true
	m.count = 0
	m.rng = rand.New(rand.NewPCG(m.cfg.Seed, m.cfg.Seed^0x9e3779b97f4a7c15))
	return nil
}

// Close stops the simulation.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.open = false
	return nil
}

// ReadRaw returns the next simulated reading.
func (m *Mock) ReadRaw(ctx context.Context) (int, error) {
	if m.cfg.Delay > 0 {
		t := time.NewTimer(m.cfg.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		return 0, fmt.Errorf("%w: mock: %w", ErrHardwareFault, ErrNotOpen)
	}
	if m.cfg.FaultAfter > 0 && m.count >= m.cfg.FaultAfter {
		return 0, fmt.Errorf("%w: mock: simulated fault after %d readings", ErrHardwareFault, m.count)
	}

	raw := m.triangle(m.count)
	if m.cfg.Noise > 0 {
		raw += m.rng.IntN(2*m.cfg.Noise+1) - m.cfg.Noise
	}
	m.count++

	return min(max(raw, 0), m.cfg.RawMax), nil
}

// triangle returns the noiseless value of reading n.
func (m *Mock) triangle(n int) int {
	half := m.cfg.Steps / 2
	pos := n % m.cfg.Steps
	if pos > half {
		pos = m.cfg.Steps - pos
	}
	return pos * m.cfg.RawMax / half
}
