// Package dispatch implements the per-instrument request-processing engine.
//
// Each instrument owns one Loop. The loop guarantees that exactly one
// command executes against the instrument state at any instant: requests
// from all sessions funnel into a FIFO queue and are applied one at a time,
// Idle -> Executing -> Idle. Independent instruments run independent loops
// and execute concurrently.
//
// Disconnecting a session cancels its not-yet-executed queued requests;
// they are skipped without mutation and produce no response. A request
// already executing always completes, and its response is discarded at the
// session boundary instead.
//
// Parser and state-model failures become structured error responses to the
// offending session only; they never stop the loop and never affect other
// queued requests.
package dispatch
