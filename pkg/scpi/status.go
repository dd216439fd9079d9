package scpi

import (
	"fmt"
	"strings"
)

// Status represents a response status code.
type Status uint8

const (
	// StatusOK indicates the command was accepted.
	StatusOK Status = 0

	// StatusMalformedCommand indicates the command line could not be parsed.
	StatusMalformedCommand Status = 1

	// StatusUnknownParameter indicates valid grammar but an unknown target.
	StatusUnknownParameter Status = 2

	// StatusTypeMismatch indicates an argument of the wrong type for the
	// target parameter.
	StatusTypeMismatch Status = 3

	// StatusOutOfRange indicates an argument outside the parameter's
	// declared constraint.
	StatusOutOfRange Status = 4

	// StatusReadOnly indicates a write to a parameter that does not accept
	// writes.
	StatusReadOnly Status = 5

	// StatusSessionClosed indicates the request arrived after or during
	// session teardown.
	StatusSessionClosed Status = 6

	// StatusInstrumentBusy indicates a non-blocking submit found the
	// instrument executing another command. Requests submitted normally are
	// queued instead, so this status is informational only.
	StatusInstrumentBusy Status = 7
)

// String returns the status name as it appears on the wire.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusMalformedCommand:
		return "MALFORMED_COMMAND"
	case StatusUnknownParameter:
		return "UNKNOWN_PARAMETER"
	case StatusTypeMismatch:
		return "TYPE_MISMATCH"
	case StatusOutOfRange:
		return "OUT_OF_RANGE"
	case StatusReadOnly:
		return "READ_ONLY"
	case StatusSessionClosed:
		return "SESSION_CLOSED"
	case StatusInstrumentBusy:
		return "BUSY"
	default:
		return "UNKNOWN"
	}
}

// ErrorMarker prefixes every error response line.
const ErrorMarker = "ERR "

// Response is the result of applying one Request, rendered as exactly one
// response line. It is transient and correlated with its request by the
// dispatch loop, not by wire content.
type Response struct {
	// Status classifies the outcome.
	Status Status

	// Value is the query result text. Empty for writes.
	Value string

	// Detail is a human-readable failure description.
	Detail string
}

// Ack is the acknowledgement response for an accepted write.
func Ack() *Response {
	return &Response{Status: StatusOK}
}

// QueryResult builds a successful query response carrying the given value.
func QueryResult(value string) *Response {
	return &Response{Status: StatusOK, Value: value}
}

// Errorf builds an error response with a formatted detail message.
func Errorf(status Status, format string, a ...any) *Response {
	return &Response{Status: status, Detail: fmt.Sprintf(format, a...)}
}

// Render returns the single wire line for this response, without terminator.
func (r *Response) Render() string {
	if r.Status == StatusOK {
		if r.Value != "" {
			return r.Value
		}
		return "OK"
	}
	if r.Detail == "" {
		return ErrorMarker + r.Status.String()
	}
	return ErrorMarker + r.Status.String() + ": " + r.Detail
}

// IsErrorLine reports whether a received response line carries an error.
func IsErrorLine(line string) bool {
	return strings.HasPrefix(line, ErrorMarker)
}

// StatusFromName maps a wire status name back to its Status. The second
// return value is false for names this vocabulary does not define.
func StatusFromName(name string) (Status, bool) {
	switch name {
	case "OK":
		return StatusOK, true
	case "MALFORMED_COMMAND":
		return StatusMalformedCommand, true
	case "UNKNOWN_PARAMETER":
		return StatusUnknownParameter, true
	case "TYPE_MISMATCH":
		return StatusTypeMismatch, true
	case "OUT_OF_RANGE":
		return StatusOutOfRange, true
	case "READ_ONLY":
		return StatusReadOnly, true
	case "SESSION_CLOSED":
		return StatusSessionClosed, true
	case "BUSY":
		return StatusInstrumentBusy, true
	}
	return 0, false
}

// ParseErrorLine decodes an error response line into its status and detail.
// It returns ok=false when the line is not an error line.
func ParseErrorLine(line string) (status Status, detail string, ok bool) {
	if !IsErrorLine(line) {
		return 0, "", false
	}
	rest := strings.TrimPrefix(line, ErrorMarker)
	name, detail, _ := strings.Cut(rest, ": ")
	status, known := StatusFromName(name)
	if !known {
		return 0, "", false
	}
	return status, detail, true
}
