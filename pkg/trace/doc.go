// Package trace provides structured protocol event logging for virtual
// instruments.
//
// Every layer of the core (transport, dispatch, state model) can emit Events
// describing command lines, session state changes, and errors. Applications
// choose where events go by supplying a Logger: NoopLogger discards them,
// SlogLogger renders them through log/slog for humans, and FileLogger
// appends compact CBOR records suitable for later replay with Reader.
//
// Loggers must be safe for concurrent use; events are emitted from session
// goroutines and dispatch goroutines alike.
package trace
