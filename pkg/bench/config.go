package bench

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vinst-lab/vinst-go/pkg/instrument"
)

// ErrInvalidConfig indicates a bench configuration that fails validation.
var ErrInvalidConfig = errors.New("invalid bench configuration")

// Physics capability names accepted in a bench file.
const (
	PhysicsNone       = ""
	PhysicsVSource    = "vsource"
	PhysicsMultimeter = "multimeter"
)

// Duration is a time.Duration that unmarshals from YAML strings such as
// "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is a parsed bench file.
type Config struct {
	// Bench is the bench name, used in mDNS advertisements.
	Bench string `yaml:"bench"`

	// Advertise enables mDNS advertisement of all instrument endpoints.
	Advertise bool `yaml:"advertise"`

	// IdleTimeout tears down sessions with no traffic (zero disables).
	IdleTimeout Duration `yaml:"idle_timeout"`

	// Instruments are the instruments this bench runs.
	Instruments []InstrumentConfig `yaml:"instruments"`
}

// InstrumentConfig declares one instrument.
type InstrumentConfig struct {
	// Name is the instrument name, unique within the bench.
	Name string `yaml:"name"`

	// Identity is the *IDN? string. Empty uses the unset-identity default.
	Identity string `yaml:"identity"`

	// Listen is the TCP listen address. Empty binds an ephemeral loopback
	// port, reported by Bench.Addr.
	Listen string `yaml:"listen"`

	// Physics selects the simulated-behavior capability.
	Physics string `yaml:"physics"`

	// Input names the instrument whose output signal feeds this one.
	// Only meaningful for measuring physics.
	Input string `yaml:"input"`

	// QueueSize overrides the dispatch queue capacity.
	QueueSize int `yaml:"queue_size"`

	// Parameters are the instrument's settings.
	Parameters []ParameterConfig `yaml:"parameters"`
}

// ParameterConfig declares one parameter.
type ParameterConfig struct {
	Name     string   `yaml:"name"`
	Type     string   `yaml:"type"`
	Access   string   `yaml:"access"`
	Min      *float64 `yaml:"min"`
	Max      *float64 `yaml:"max"`
	Default  any      `yaml:"default"`
	Unit     string   `yaml:"unit"`
	Allowed  []string `yaml:"allowed"`
	Deferred bool     `yaml:"deferred"`
}

// Load parses and validates a bench configuration. Unknown fields are
// rejected so typos fail at startup instead of silently dropping settings.
func Load(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var config Config
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadFile reads and parses a bench file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bench file: %w", err)
	}
	return Load(data)
}

func (c *Config) validate() error {
	if c.Bench == "" {
		return fmt.Errorf("%w: bench name is required", ErrInvalidConfig)
	}
	if len(c.Instruments) == 0 {
		return fmt.Errorf("%w: bench declares no instruments", ErrInvalidConfig)
	}

	names := make(map[string]bool, len(c.Instruments))
	for i := range c.Instruments {
		inst := &c.Instruments[i]
		if inst.Name == "" {
			return fmt.Errorf("%w: instrument %d has no name", ErrInvalidConfig, i)
		}
		if names[inst.Name] {
			return fmt.Errorf("%w: duplicate instrument name %s", ErrInvalidConfig, inst.Name)
		}
		names[inst.Name] = true

		switch inst.Physics {
		case PhysicsNone, PhysicsVSource, PhysicsMultimeter:
		default:
			return fmt.Errorf("%w: instrument %s has unknown physics %q", ErrInvalidConfig, inst.Name, inst.Physics)
		}
		if inst.Input != "" && inst.Physics != PhysicsMultimeter {
			return fmt.Errorf("%w: instrument %s declares an input but its physics takes none", ErrInvalidConfig, inst.Name)
		}
		if inst.Input == inst.Name && inst.Input != "" {
			return fmt.Errorf("%w: instrument %s cannot be its own input", ErrInvalidConfig, inst.Name)
		}

		for j := range inst.Parameters {
			if err := inst.Parameters[j].validate(inst.Name); err != nil {
				return err
			}
		}
	}

	// Inputs must name declared instruments.
	for i := range c.Instruments {
		inst := &c.Instruments[i]
		if inst.Input != "" && !names[inst.Input] {
			return fmt.Errorf("%w: instrument %s input %q is not declared", ErrInvalidConfig, inst.Name, inst.Input)
		}
	}

	return nil
}

func (p *ParameterConfig) validate(owner string) error {
	if p.Name == "" {
		return fmt.Errorf("%w: instrument %s has a parameter with no name", ErrInvalidConfig, owner)
	}
	if _, err := p.parameterType(); err != nil {
		return fmt.Errorf("%w: instrument %s parameter %s: %v", ErrInvalidConfig, owner, p.Name, err)
	}
	if _, err := p.access(); err != nil {
		return fmt.Errorf("%w: instrument %s parameter %s: %v", ErrInvalidConfig, owner, p.Name, err)
	}
	return nil
}

func (p *ParameterConfig) parameterType() (instrument.ParameterType, error) {
	switch strings.ToLower(p.Type) {
	case "numeric", "":
		return instrument.TypeNumeric, nil
	case "boolean", "bool":
		return instrument.TypeBoolean, nil
	case "enum":
		return instrument.TypeEnum, nil
	case "string":
		return instrument.TypeString, nil
	}
	return 0, fmt.Errorf("unknown type %q", p.Type)
}

func (p *ParameterConfig) access() (instrument.Access, error) {
	switch strings.ToLower(p.Access) {
	case "rw", "":
		return instrument.AccessReadWrite, nil
	case "r", "ro":
		return instrument.AccessReadOnly, nil
	}
	return 0, fmt.Errorf("unknown access %q", p.Access)
}

// metadata converts the declaration to the state-model form.
func (p *ParameterConfig) metadata() (instrument.ParameterMetadata, error) {
	ptype, err := p.parameterType()
	if err != nil {
		return instrument.ParameterMetadata{}, err
	}
	access, err := p.access()
	if err != nil {
		return instrument.ParameterMetadata{}, err
	}

	meta := instrument.ParameterMetadata{
		Name:     p.Name,
		Type:     ptype,
		Access:   access,
		Default:  p.Default,
		Unit:     p.Unit,
		Allowed:  p.Allowed,
		Deferred: p.Deferred,
	}
	if p.Min != nil {
		meta.MinValue = *p.Min
	}
	if p.Max != nil {
		meta.MaxValue = *p.Max
	}
	return meta, nil
}
