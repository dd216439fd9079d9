package trace

import "time"

// MaxLogLineSize is the maximum command/response text length included in an
// event. Longer lines are truncated to bound log size.
const MaxLogLineSize = 512

// Event represents one protocol event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the originating session (UUID), if any.
	SessionID string `cbor:"2,keyasint,omitempty"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Instrument is the instrument address/identifier, if known.
	Instrument string `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address (IP:port), if known.
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Line        *LineEvent        `cbor:"10,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"`
	Error       *ErrorEvent       `cbor:"12,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates a received command line.
	DirectionIn Direction = 0
	// DirectionOut indicates a sent response line.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the line framing and session layer.
	LayerTransport Layer = 0
	// LayerDispatch is the per-instrument dispatch loop.
	LayerDispatch Layer = 1
	// LayerModel is the instrument state model.
	LayerModel Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerDispatch:
		return "DISPATCH"
	case LayerModel:
		return "MODEL"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryCommand indicates a command or response line.
	CategoryCommand Category = 0
	// CategoryState indicates a session or loop state change.
	CategoryState Category = 1
	// CategoryError indicates an error event.
	CategoryError Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryCommand:
		return "COMMAND"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LineEvent captures one command or response line.
type LineEvent struct {
	// Text is the line content, possibly truncated.
	Text string `cbor:"1,keyasint"`

	// Truncated indicates the original line exceeded MaxLogLineSize.
	Truncated bool `cbor:"2,keyasint,omitempty"`
}

// ClampLine builds a LineEvent, truncating oversized text.
func ClampLine(text string) *LineEvent {
	if len(text) > MaxLogLineSize {
		return &LineEvent{Text: text[:MaxLogLineSize], Truncated: true}
	}
	return &LineEvent{Text: text}
}

// StateEntity identifies what changed state.
type StateEntity uint8

const (
	// EntitySession is a client session.
	EntitySession StateEntity = 0
	// EntityLoop is a dispatch loop.
	EntityLoop StateEntity = 1
)

// String returns the entity name.
func (e StateEntity) String() string {
	switch e {
	case EntitySession:
		return "SESSION"
	case EntityLoop:
		return "LOOP"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures a session or loop state transition.
type StateChangeEvent struct {
	// Entity is what changed state.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state name (empty on creation).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state name.
	NewState string `cbor:"3,keyasint"`
}

// ErrorEvent captures an error at any layer.
type ErrorEvent struct {
	// Message is the error text.
	Message string `cbor:"1,keyasint"`

	// Status is the wire status name, if the error was reported to a client.
	Status string `cbor:"2,keyasint,omitempty"`
}
