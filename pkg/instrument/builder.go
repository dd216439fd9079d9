package instrument

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDefinition indicates a configuration error caught at build time.
// It is the only fatal error path: a bad definition aborts setup before any
// dispatch loop starts.
var ErrInvalidDefinition = errors.New("invalid instrument definition")

// Builder is the only construction path for an Instrument. A setup script
// declares identity, parameters, and physics, then calls Build, which
// validates the whole definition.
type Builder struct {
	name         string
	identity     string
	defs         []ParameterMetadata
	physics      Physics
	measurements []string
}

// NewBuilder starts a definition for the instrument with the given
// address/identifier.
func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// Identity sets the string returned by *IDN?.
func (b *Builder) Identity(identity string) *Builder {
	b.identity = identity
	return b
}

// Parameter adds a parameter definition.
func (b *Builder) Parameter(meta ParameterMetadata) *Builder {
	b.defs = append(b.defs, meta)
	return b
}

// Numeric adds a read-write numeric parameter with a range constraint.
func (b *Builder) Numeric(name string, min, max, def float64, unit string) *Builder {
	return b.Parameter(ParameterMetadata{
		Name:     name,
		Type:     TypeNumeric,
		Access:   AccessReadWrite,
		MinValue: min,
		MaxValue: max,
		Default:  def,
		Unit:     unit,
	})
}

// Enum adds a read-write enum parameter.
func (b *Builder) Enum(name string, allowed []string, def string) *Builder {
	return b.Parameter(ParameterMetadata{
		Name:    name,
		Type:    TypeEnum,
		Access:  AccessReadWrite,
		Allowed: allowed,
		Default: def,
	})
}

// Physics sets the simulated-behavior capability.
func (b *Builder) Physics(p Physics) *Builder {
	b.physics = p
	return b
}

// Measurement registers a query target answered by the physics capability
// (e.g. "MEAS:VOLT").
func (b *Builder) Measurement(target string) *Builder {
	b.measurements = append(b.measurements, target)
	return b
}

// Build validates the definition and constructs the instrument.
func (b *Builder) Build() (*Instrument, error) {
	if b.name == "" {
		return nil, fmt.Errorf("%w: instrument name is required", ErrInvalidDefinition)
	}

	identity := b.identity
	if identity == "" {
		identity = DefaultIdentity
	}

	inst := &Instrument{
		name:         b.name,
		identity:     identity,
		params:       make(map[string]*Parameter, len(b.defs)),
		measurements: make(map[string]struct{}, len(b.measurements)),
		physics:      b.physics,
		subs:         newSubscriberRegistry(),
	}

	for i := range b.defs {
		meta := b.defs[i]
		meta.Name = strings.ToUpper(meta.Name)
		if err := validateMetadata(&meta); err != nil {
			return nil, err
		}
		if _, exists := inst.params[meta.Name]; exists {
			return nil, fmt.Errorf("%w: duplicate parameter %s", ErrInvalidDefinition, meta.Name)
		}
		inst.params[meta.Name] = newParameter(&meta)
		inst.order = append(inst.order, meta.Name)
	}

	for _, target := range b.measurements {
		target = strings.ToUpper(target)
		if b.physics == nil {
			return nil, fmt.Errorf("%w: measurement %s requires a physics capability", ErrInvalidDefinition, target)
		}
		if err := validateTarget(target); err != nil {
			return nil, err
		}
		if _, exists := inst.params[target]; exists {
			return nil, fmt.Errorf("%w: measurement %s collides with a parameter", ErrInvalidDefinition, target)
		}
		inst.measurements[target] = struct{}{}
	}

	return inst, nil
}

func validateMetadata(meta *ParameterMetadata) error {
	if err := validateTarget(meta.Name); err != nil {
		return err
	}
	if strings.HasPrefix(meta.Name, "*") {
		return fmt.Errorf("%w: %s shadows a common command", ErrInvalidDefinition, meta.Name)
	}

	switch meta.Type {
	case TypeNumeric:
		min, hasMin := toFloat64OrNil(meta.MinValue)
		max, hasMax := toFloat64OrNil(meta.MaxValue)
		if hasMin && hasMax && min > max {
			return fmt.Errorf("%w: %s has inverted range [%v, %v]", ErrInvalidDefinition, meta.Name, min, max)
		}
		def, ok := toFloat64(meta.Default)
		if meta.Default != nil && !ok {
			return fmt.Errorf("%w: %s default is not numeric", ErrInvalidDefinition, meta.Name)
		}
		if meta.Default == nil {
			meta.Default = float64(0)
			def = 0
		} else {
			meta.Default = def
		}
		if (hasMin && def < min) || (hasMax && def > max) {
			return fmt.Errorf("%w: %s default %v violates its range", ErrInvalidDefinition, meta.Name, def)
		}
		// Normalize min/max so range checks compare float64 to float64.
		if hasMin {
			meta.MinValue = min
		}
		if hasMax {
			meta.MaxValue = max
		}

	case TypeEnum:
		if len(meta.Allowed) == 0 {
			return fmt.Errorf("%w: enum %s has no allowed members", ErrInvalidDefinition, meta.Name)
		}
		for i, member := range meta.Allowed {
			meta.Allowed[i] = strings.ToUpper(member)
		}
		def, _ := meta.Default.(string)
		if def == "" {
			def = meta.Allowed[0]
		}
		def = strings.ToUpper(def)
		found := false
		for _, member := range meta.Allowed {
			if member == def {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: enum %s default %q not in allowed set", ErrInvalidDefinition, meta.Name, def)
		}
		meta.Default = def

	case TypeBoolean:
		if meta.Default == nil {
			meta.Default = false
		}
		if _, ok := meta.Default.(bool); !ok {
			return fmt.Errorf("%w: %s default is not boolean", ErrInvalidDefinition, meta.Name)
		}

	case TypeString:
		if meta.Default == nil {
			meta.Default = ""
		}
		if _, ok := meta.Default.(string); !ok {
			return fmt.Errorf("%w: %s default is not a string", ErrInvalidDefinition, meta.Name)
		}

	default:
		return fmt.Errorf("%w: %s has unknown type", ErrInvalidDefinition, meta.Name)
	}

	return nil
}

// validateTarget applies the same path rules as the command grammar.
func validateTarget(target string) error {
	if target == "" {
		return fmt.Errorf("%w: empty target", ErrInvalidDefinition)
	}
	for i, seg := range strings.Split(target, ":") {
		if i == 0 {
			seg = strings.TrimPrefix(seg, "*")
		}
		if seg == "" {
			return fmt.Errorf("%w: empty path segment in %q", ErrInvalidDefinition, target)
		}
		for _, c := range seg {
			valid := (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
			if !valid {
				return fmt.Errorf("%w: invalid character %q in %q", ErrInvalidDefinition, c, target)
			}
		}
	}
	return nil
}

func toFloat64OrNil(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return toFloat64(v)
}
