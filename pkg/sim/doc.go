// Package sim provides example physics capabilities for virtual
// instruments: a noisy voltage source and a multimeter that measures
// whatever source it is wired to.
//
// Instruments chain through the SignalSource interface: a source exposes
// its output waveform and impedance, and a measuring instrument samples
// them. An unwired measuring instrument reads as an open circuit.
package sim
