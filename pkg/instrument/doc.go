// Package instrument implements the addressable state of one simulated
// instrument: its named parameters, the semantics of each command against
// that state, and the change notification the GUI layer observes.
//
// An Instrument is built exclusively through the Builder. Once running, its
// parameters are mutated only by the dispatch loop, one request at a time;
// writes are all-or-nothing, so a rejected value never leaves partial state
// behind.
//
// Instrument-specific triggered behavior (measurement commands computing a
// derived reading from current settings plus simulated noise) is supplied by
// a Physics implementation. The state model calls into it but never
// implements it; see package sim for examples.
package instrument
