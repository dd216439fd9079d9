// Package transport implements the session/connection manager of a virtual
// instrument: a line-oriented TCP server accepting many concurrent client
// sessions on one listening endpoint.
//
// Frames are ASCII lines terminated by LF, CRLF, or bare CR. The reader
// reassembles partial reads and splits several commands arriving in one read
// into ordered lines, preserving per-session arrival order. On disconnect or
// malformed framing (an over-long line) the session is torn down and any
// response produced for it afterwards is dropped rather than sent.
//
// The server pushes received lines and lifecycle transitions to the
// application through callbacks, one goroutine per session; routing into a
// dispatch loop happens above this package.
package transport
