package sim

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/vinst-lab/vinst-go/pkg/instrument"
)

// Multimeter defaults.
const (
	// OpenCircuitImpedance is read when no input source is wired.
	OpenCircuitImpedance = 1e9

	// DefaultVoltNoise is the peak-to-peak voltage reading noise in volts.
	DefaultVoltNoise = 0.001

	// DefaultCurrNoise is the peak-to-peak current reading noise in amps.
	DefaultCurrNoise = 0.001

	// DefaultResNoise is the peak-to-peak resistance reading noise in ohms.
	DefaultResNoise = 0.5
)

// Multimeter measurement targets.
const (
	TargetVolt = "MEAS:VOLT"
	TargetCurr = "MEAS:CURR"
	TargetRes  = "MEAS:RES"
)

// Multimeter measures the signal of whatever source it is wired to. With
// no input it reads an open circuit: zero volts, zero amps, very high
// resistance.
type Multimeter struct {
	mu     sync.Mutex
	input  SignalSource
	points int

	voltNoise float64
	currNoise float64
	resNoise  float64

	rng *rand.Rand
}

// MultimeterOption applies a configuration option to a Multimeter.
type MultimeterOption func(*Multimeter)

// WithMultimeterNoise sets the per-mode peak-to-peak reading noise.
func WithMultimeterNoise(volt, curr, res float64) MultimeterOption {
	return func(m *Multimeter) {
		m.voltNoise = volt
		m.currNoise = curr
		m.resNoise = res
	}
}

// WithMultimeterPoints sets the number of samples averaged per reading.
func WithMultimeterPoints(n int) MultimeterOption {
	return func(m *Multimeter) { m.points = n }
}

// NewMultimeter creates a multimeter.
func NewMultimeter(opts ...MultimeterOption) *Multimeter {
	m := &Multimeter{
		points:    DefaultPoints,
		voltNoise: DefaultVoltNoise,
		currNoise: DefaultCurrNoise,
		resNoise:  DefaultResNoise,
		rng:       rand.New(rand.NewSource(rand.Int63())),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetInput wires the source this multimeter measures. A nil source
// disconnects the input.
func (m *Multimeter) SetInput(src SignalSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.input = src
}

// Measure implements instrument.Physics.
func (m *Multimeter) Measure(target string, _ instrument.ParameterReader) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	impedance := OpenCircuitImpedance
	var data []float64
	if m.input != nil {
		impedance = m.input.Impedance()
		data = m.input.OutputSignal(m.points)
	}

	var val float64
	switch target {
	case TargetVolt:
		val = mean(data) + (m.rng.Float64()-0.5)*m.voltNoise
	case TargetCurr:
		val = mean(data)/impedance + (m.rng.Float64()-0.5)*m.currNoise
	case TargetRes:
		val = impedance + (m.rng.Float64()-0.5)*m.resNoise
	default:
		return "", instrument.ErrUnknownMeasurement
	}

	return fmt.Sprintf("%.3f", val), nil
}

// Reset implements instrument.Physics.
func (m *Multimeter) Reset() {}

func mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

var _ instrument.Physics = (*Multimeter)(nil)
