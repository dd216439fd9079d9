package scpi

// Verb classifies what a request does to its target.
type Verb uint8

const (
	// VerbQuery reads the target without mutation.
	VerbQuery Verb = 0

	// VerbWrite sets the target to the given argument.
	VerbWrite Verb = 1

	// VerbTrigger commits staged writes and fires triggered behavior.
	VerbTrigger Verb = 2
)

// String returns the verb name.
func (v Verb) String() string {
	switch v {
	case VerbQuery:
		return "QUERY"
	case VerbWrite:
		return "WRITE"
	case VerbTrigger:
		return "TRIGGER"
	default:
		return "UNKNOWN"
	}
}

// Request is one parsed unit of work. It is produced by the parser and
// consumed exactly once by a dispatch loop.
type Request struct {
	// Verb is the request kind.
	Verb Verb

	// Target is the upper-cased, colon-joined parameter path
	// (e.g. "VOLT", "MEAS:VOLT", "*IDN").
	Target string

	// Args are the raw argument tokens, in order. Empty for queries.
	Args []string

	// SessionID identifies the originating session. Filled in by the
	// session layer, not the parser.
	SessionID string

	// Line is the raw command text the request was parsed from.
	Line string
}
