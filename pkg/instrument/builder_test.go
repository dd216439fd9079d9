package instrument

import (
	"errors"
	"testing"
)

func TestBuilderValidation(t *testing.T) {
	tests := []struct {
		name  string
		build func() (*Instrument, error)
	}{
		{
			name: "MissingName",
			build: func() (*Instrument, error) {
				return NewBuilder("").Build()
			},
		},
		{
			name: "DuplicateParameter",
			build: func() (*Instrument, error) {
				return NewBuilder("X").
					Numeric("VOLT", 0, 1, 0, "V").
					Numeric("volt", 0, 1, 0, "V").
					Build()
			},
		},
		{
			name: "InvertedRange",
			build: func() (*Instrument, error) {
				return NewBuilder("X").Numeric("VOLT", 30, 0, 0, "V").Build()
			},
		},
		{
			name: "DefaultOutsideRange",
			build: func() (*Instrument, error) {
				return NewBuilder("X").Numeric("VOLT", 0, 30, 99, "V").Build()
			},
		},
		{
			name: "EnumWithoutMembers",
			build: func() (*Instrument, error) {
				return NewBuilder("X").Enum("WAV", nil, "").Build()
			},
		},
		{
			name: "EnumDefaultNotMember",
			build: func() (*Instrument, error) {
				return NewBuilder("X").Enum("WAV", []string{"SIN"}, "SAW").Build()
			},
		},
		{
			name: "BadTargetCharacter",
			build: func() (*Instrument, error) {
				return NewBuilder("X").Numeric("VO LT", 0, 1, 0, "").Build()
			},
		},
		{
			name: "EmptyPathSegment",
			build: func() (*Instrument, error) {
				return NewBuilder("X").Numeric("MEAS::VOLT", 0, 1, 0, "").Build()
			},
		},
		{
			name: "ShadowsCommonCommand",
			build: func() (*Instrument, error) {
				return NewBuilder("X").Numeric("*IDN", 0, 1, 0, "").Build()
			},
		},
		{
			name: "MeasurementWithoutPhysics",
			build: func() (*Instrument, error) {
				return NewBuilder("X").Measurement("MEAS:VOLT").Build()
			},
		},
		{
			name: "MeasurementCollidesWithParameter",
			build: func() (*Instrument, error) {
				return NewBuilder("X").
					Numeric("VOLT", 0, 1, 0, "V").
					Physics(&stubPhysics{}).
					Measurement("VOLT").
					Build()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build()
			if err == nil {
				t.Fatal("Build succeeded, want error")
			}
			if !errors.Is(err, ErrInvalidDefinition) {
				t.Errorf("error = %v, want ErrInvalidDefinition", err)
			}
		})
	}
}

func TestBuilderDefaults(t *testing.T) {
	inst, err := NewBuilder("X").
		Numeric("VOLT", -5, 5, 0, "V").
		Enum("WAV", []string{"sin", "squ"}, "").
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if inst.Identity() != DefaultIdentity {
		t.Errorf("identity = %q, want default", inst.Identity())
	}

	p, ok := inst.Parameter("WAV")
	if !ok {
		t.Fatal("WAV not found")
	}
	if p.Value() != "SIN" {
		t.Errorf("enum default = %v, want SIN (first member, upper-cased)", p.Value())
	}

	names := inst.ParameterNames()
	if len(names) != 2 || names[0] != "VOLT" || names[1] != "WAV" {
		t.Errorf("parameter order = %v", names)
	}
}
