package value

import (
	"errors"
	"fmt"

	"github.com/specialistvlad/valuegrid/internal/target"
	"github.com/zclconf/go-cty/cty"
)

var (
	// ErrEmptyValueName is returned when a requirement or specification has no value name.
	ErrEmptyValueName = errors.New("value name is empty")
	// ErrNilTarget is returned when a requirement or specification has no target.
	ErrNilTarget = errors.New("target is not set")
)

// Requirement asks for a named value on a target, subject to constraints.
type Requirement struct {
	Name        string
	Target      target.Specification
	Constraints Properties
}

// NewRequirement validates and builds a Requirement.
func NewRequirement(name string, tgt target.Specification, constraints Properties) (Requirement, error) {
	if name == "" {
		return Requirement{}, ErrEmptyValueName
	}
	if tgt.IsZero() {
		return Requirement{}, fmt.Errorf("requirement %q: %w", name, ErrNilTarget)
	}
	return Requirement{Name: name, Target: tgt, Constraints: constraints}, nil
}

// MustRequirement is like NewRequirement but panics on error.
func MustRequirement(name string, tgt target.Specification, constraints Properties) Requirement {
	r, err := NewRequirement(name, tgt, constraints)
	if err != nil {
		panic(err)
	}
	return r
}

// IsSatisfiedBy reports whether spec can stand in for r.
func (r Requirement) IsSatisfiedBy(spec Specification) bool {
	return r.Name == spec.Name &&
		r.Target == spec.Target &&
		r.Constraints.IsSatisfiedBy(spec.Properties)
}

// Key is the canonical identity of the requirement.
func (r Requirement) Key() string {
	return r.Name + "@" + r.Target.String() + r.Constraints.String()
}

func (r Requirement) String() string {
	return fmt.Sprintf("%s on %s %s", r.Name, r.Target, r.Constraints)
}

// Specification identifies a value some function produces.
type Specification struct {
	Name       string
	Target     target.Specification
	Properties Properties
	FunctionID string
}

// NewSpecification validates and builds a Specification.
func NewSpecification(name string, tgt target.Specification, props Properties, functionID string) (Specification, error) {
	if name == "" {
		return Specification{}, ErrEmptyValueName
	}
	if tgt.IsZero() {
		return Specification{}, fmt.Errorf("specification %q: %w", name, ErrNilTarget)
	}
	return Specification{Name: name, Target: tgt, Properties: props, FunctionID: functionID}, nil
}

// Satisfies reports whether s meets req.
func (s Specification) Satisfies(req Requirement) bool {
	return req.IsSatisfiedBy(s)
}

// CompatibleWith reports whether other carries the same value: same name,
// target and properties, whichever function produces it.
func (s Specification) CompatibleWith(other Specification) bool {
	return s.Name == other.Name && s.Target == other.Target && s.Properties.Equal(other.Properties)
}

// Equal reports full identity, including the producing function.
func (s Specification) Equal(other Specification) bool {
	return s.CompatibleWith(other) && s.FunctionID == other.FunctionID
}

// WithProperties returns a copy of s carrying props.
func (s Specification) WithProperties(props Properties) Specification {
	s.Properties = props
	return s
}

// Key is the canonical identity of the specification, used for cache keys.
func (s Specification) Key() string {
	return s.Name + "@" + s.Target.String() + s.Properties.String() + "#" + s.FunctionID
}

func (s Specification) String() string {
	return fmt.Sprintf("%s on %s %s via %s", s.Name, s.Target, s.Properties, s.FunctionID)
}

// ComputedValue is a specification together with the value produced for it.
type ComputedValue struct {
	Spec  Specification
	Value cty.Value
}
