package instrument

import "errors"

// ErrUnknownMeasurement indicates a measurement target the physics does not
// provide.
var ErrUnknownMeasurement = errors.New("unknown measurement")

// ParameterReader is the read-only view of instrument state handed to a
// Physics implementation while it computes a reading.
type ParameterReader interface {
	// Value returns the current value of a parameter.
	Value(name string) (any, bool)

	// Number returns the current value of a numeric parameter.
	Number(name string) (float64, bool)
}

// Physics supplies the simulated behavior of one virtual instrument: derived
// readings computed from current settings plus whatever noise model the
// instrument implements. New instrument types are added by providing a new
// Physics implementation, not by subclassing anything in this package.
//
// Measure is only ever called from the instrument's dispatch loop, so
// implementations need no internal locking for instrument state, though they
// must be safe against concurrent calls from their own collaborators.
type Physics interface {
	// Measure computes the reading for a registered measurement target
	// (e.g. "MEAS:VOLT") from the current settings.
	Measure(target string, state ParameterReader) (string, error)

	// Reset restores the physics to its power-on state. Called on *RST.
	Reset()
}
