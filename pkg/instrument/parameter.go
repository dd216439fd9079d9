package instrument

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ParameterType is the semantic type of a parameter value.
type ParameterType uint8

const (
	TypeNumeric ParameterType = iota
	TypeBoolean
	TypeEnum
	TypeString
)

// String returns the type name.
func (t ParameterType) String() string {
	switch t {
	case TypeNumeric:
		return "numeric"
	case TypeBoolean:
		return "boolean"
	case TypeEnum:
		return "enum"
	case TypeString:
		return "string"
	default:
		return "unknown"
	}
}

// Access defines the allowed operations on a parameter.
type Access uint8

const (
	// AccessRead allows querying the parameter.
	AccessRead Access = 1 << iota

	// AccessWrite allows writing the parameter.
	AccessWrite

	// AccessReadOnly is query-only access.
	AccessReadOnly = AccessRead

	// AccessReadWrite allows both queries and writes.
	AccessReadWrite = AccessRead | AccessWrite
)

// CanRead returns true if querying is allowed.
func (a Access) CanRead() bool { return a&AccessRead != 0 }

// CanWrite returns true if writing is allowed.
func (a Access) CanWrite() bool { return a&AccessWrite != 0 }

// String returns the access flags as a string.
func (a Access) String() string {
	var s string
	if a.CanRead() {
		s += "R"
	}
	if a.CanWrite() {
		s += "W"
	}
	if s == "" {
		return "-"
	}
	return s
}

// ParameterMetadata describes a parameter's properties.
type ParameterMetadata struct {
	// Name is the command target for this parameter (upper case, may be
	// hierarchical, e.g. "VOLT" or "SOUR:FREQ").
	Name string

	// Type is the semantic type of the value.
	Type ParameterType

	// Access defines the allowed operations.
	Access Access

	// MinValue is the minimum allowed value for numeric parameters.
	// Nil means unbounded.
	MinValue any

	// MaxValue is the maximum allowed value for numeric parameters.
	// Nil means unbounded.
	MaxValue any

	// Allowed is the member set for enum parameters (upper case).
	Allowed []string

	// Default is the value after construction and after *RST.
	Default any

	// Unit is the unit of measurement (e.g. "V", "Hz").
	Unit string

	// Deferred stages writes until the next *TRG instead of applying them
	// immediately.
	Deferred bool

	// Description is a human-readable description.
	Description string
}

// Parameter is a parameter instance with its current value. It is owned by
// exactly one Instrument and is never shared; all access is serialized by
// the owning instrument's dispatch loop.
type Parameter struct {
	metadata  *ParameterMetadata
	value     any
	staged    any
	hasStaged bool
}

// Validation errors. The session layer maps these onto the wire status
// vocabulary.
var (
	ErrNotWritable   = errors.New("parameter is not writable")
	ErrTypeMismatch  = errors.New("argument type mismatch")
	ErrOutOfRange    = errors.New("value out of range")
	ErrBadArgument   = errors.New("missing or extra argument")
	ErrUnknownTarget = errors.New("unknown parameter")
)

func newParameter(meta *ParameterMetadata) *Parameter {
	return &Parameter{metadata: meta, value: meta.Default}
}

// Name returns the parameter's command target.
func (p *Parameter) Name() string { return p.metadata.Name }

// Metadata returns the parameter metadata.
func (p *Parameter) Metadata() *ParameterMetadata { return p.metadata }

// Value returns the current value.
func (p *Parameter) Value() any { return p.value }

// ValueString returns the current value formatted as a response line.
func (p *Parameter) ValueString() string { return formatValue(p.value) }

// parseArgs converts raw argument tokens into a typed value, validating
// against the parameter's type and constraint. It never mutates state.
func (p *Parameter) parseArgs(args []string) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: %s requires an argument", ErrBadArgument, p.metadata.Name)
	}

	switch p.metadata.Type {
	case TypeNumeric:
		if len(args) > 1 {
			return nil, fmt.Errorf("%w: %s takes one argument", ErrBadArgument, p.metadata.Name)
		}
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", ErrTypeMismatch, args[0])
		}
		if err := p.checkRange(v); err != nil {
			return nil, err
		}
		return v, nil

	case TypeBoolean:
		if len(args) > 1 {
			return nil, fmt.Errorf("%w: %s takes one argument", ErrBadArgument, p.metadata.Name)
		}
		switch strings.ToUpper(args[0]) {
		case "1", "ON", "TRUE":
			return true, nil
		case "0", "OFF", "FALSE":
			return false, nil
		}
		return nil, fmt.Errorf("%w: %q is not a boolean", ErrTypeMismatch, args[0])

	case TypeEnum:
		if len(args) > 1 {
			return nil, fmt.Errorf("%w: %s takes one argument", ErrBadArgument, p.metadata.Name)
		}
		member := strings.ToUpper(args[0])
		for _, allowed := range p.metadata.Allowed {
			if member == allowed {
				return member, nil
			}
		}
		return nil, fmt.Errorf("%w: %q not in %v", ErrOutOfRange, args[0], p.metadata.Allowed)

	case TypeString:
		return strings.Join(args, " "), nil
	}

	return nil, fmt.Errorf("%w: unsupported type", ErrTypeMismatch)
}

// checkRange validates a numeric value against the declared constraint.
func (p *Parameter) checkRange(v float64) error {
	if p.metadata.MinValue != nil {
		if min, ok := toFloat64(p.metadata.MinValue); ok && v < min {
			return fmt.Errorf("%w: %v < %v", ErrOutOfRange, formatValue(v), formatValue(min))
		}
	}
	if p.metadata.MaxValue != nil {
		if max, ok := toFloat64(p.metadata.MaxValue); ok && v > max {
			return fmt.Errorf("%w: %v > %v", ErrOutOfRange, formatValue(v), formatValue(max))
		}
	}
	return nil
}

// set applies a validated value. Returns true if the value changed.
func (p *Parameter) set(v any) bool {
	if p.value == v {
		return false
	}
	p.value = v
	return true
}

// stage records a validated value to be applied at the next commit.
func (p *Parameter) stage(v any) {
	p.staged = v
	p.hasStaged = true
}

// commit applies a staged value, if any. Returns the applied state.
func (p *Parameter) commit() (any, bool) {
	if !p.hasStaged {
		return nil, false
	}
	v := p.staged
	p.staged = nil
	p.hasStaged = false
	return v, p.set(v)
}

// reset restores the default value and discards staged writes.
// Returns true if the current value changed.
func (p *Parameter) reset() bool {
	p.staged = nil
	p.hasStaged = false
	return p.set(p.metadata.Default)
}

// formatValue renders a parameter value as ASCII response text.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		if val {
			return "1"
		}
		return "0"
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
