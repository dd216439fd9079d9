// Package visa provides the client-side facade for talking to virtual
// instruments over the line-oriented text protocol.
//
// A Client owns one TCP connection to one instrument endpoint and exposes
// the classic instrument-programming surface: Write for settings, Query for
// readbacks, Command for formatted writes. Each call is a strict
// send-one-line, read-one-line exchange, so responses always correlate with
// the call that produced them. Error response lines come back as
// *CommandError values carrying the decoded status.
package visa
