package sim

import (
	"math/rand"
	"sync"

	"github.com/vinst-lab/vinst-go/pkg/instrument"
)

// Voltage source defaults.
const (
	// DefaultVSourceNoise is the peak-to-peak output noise in volts.
	DefaultVSourceNoise = 0.003

	// DefaultVSourceImpedance is the output impedance in ohms.
	DefaultVSourceImpedance = 6.4

	// DefaultPoints is the number of samples per output waveform.
	DefaultPoints = 10
)

// SignalSource is the instrument-chaining contract: one instrument's
// output feeding another instrument's input.
type SignalSource interface {
	// OutputSignal returns n samples of the source output.
	OutputSignal(n int) []float64

	// Impedance returns the source output impedance in ohms.
	Impedance() float64
}

// VSource models a voltage source output stage. The set voltage lives in
// the owning instrument's state; VSource turns it into a noisy waveform
// for downstream instruments.
type VSource struct {
	mu        sync.Mutex
	state     instrument.ParameterReader
	noise     float64
	impedance float64
	rng       *rand.Rand
}

// VSourceOption applies a configuration option to a VSource.
type VSourceOption func(*VSource)

// WithVSourceNoise sets the peak-to-peak output noise in volts.
func WithVSourceNoise(noise float64) VSourceOption {
	return func(v *VSource) { v.noise = noise }
}

// WithVSourceImpedance sets the output impedance in ohms.
func WithVSourceImpedance(impedance float64) VSourceOption {
	return func(v *VSource) { v.impedance = impedance }
}

// NewVSource creates a voltage source output stage.
func NewVSource(opts ...VSourceOption) *VSource {
	v := &VSource{
		noise:     DefaultVSourceNoise,
		impedance: DefaultVSourceImpedance,
		rng:       rand.New(rand.NewSource(rand.Int63())),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Bind attaches the instrument state the source reads its voltage from.
func (v *VSource) Bind(state instrument.ParameterReader) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state = state
}

// OutputSignal returns n samples of the set voltage with uniform noise.
func (v *VSource) OutputSignal(n int) []float64 {
	v.mu.Lock()
	defer v.mu.Unlock()

	volt := 0.0
	if v.state != nil {
		if f, ok := v.state.Number("VOLT"); ok {
			volt = f
		}
	}

	wf := make([]float64, n)
	for i := range wf {
		wf[i] = volt + (v.rng.Float64()-0.5)*v.noise
	}
	return wf
}

// Impedance returns the output impedance in ohms.
func (v *VSource) Impedance() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.impedance
}

// Measure implements instrument.Physics. A voltage source has no
// measurement targets of its own.
func (v *VSource) Measure(string, instrument.ParameterReader) (string, error) {
	return "", instrument.ErrUnknownMeasurement
}

// Reset implements instrument.Physics.
func (v *VSource) Reset() {}

var _ SignalSource = (*VSource)(nil)
var _ instrument.Physics = (*VSource)(nil)
