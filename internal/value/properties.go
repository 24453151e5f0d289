package value

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

var (
	// ErrDuplicateProperty is returned by PropertiesBuilder.Build when a
	// property name was declared more than once.
	ErrDuplicateProperty = errors.New("duplicate property name")
	// ErrNoValues is returned when With is called without any values.
	ErrNoValues = errors.New("property declared without values")
)

// constraint is the set of acceptable values for one property.
type constraint struct {
	// values is sorted and de-duplicated; unused when wildcard is set.
	values   []string
	wildcard bool
	// excluded narrows a wildcard; sorted.
	excluded []string
	optional bool
}

func (c constraint) admits(v string) bool {
	if c.wildcard {
		return !contains(c.excluded, v)
	}
	return contains(c.values, v)
}

// accepts reports whether a declared property (have) meets this constraint.
func (c constraint) accepts(have constraint) bool {
	switch {
	case have.wildcard && c.wildcard:
		return true
	case have.wildcard:
		for _, v := range c.values {
			if have.admits(v) {
				return true
			}
		}
		return false
	default:
		for _, v := range have.values {
			if c.admits(v) {
				return true
			}
		}
		return false
	}
}

func (c constraint) equal(o constraint) bool {
	return c.wildcard == o.wildcard &&
		c.optional == o.optional &&
		slices.Equal(c.values, o.values) &&
		slices.Equal(c.excluded, o.excluded)
}

func (c constraint) String() string {
	var b strings.Builder
	if c.wildcard {
		b.WriteString("*")
		if len(c.excluded) > 0 {
			b.WriteString("!{" + strings.Join(c.excluded, ",") + "}")
		}
	} else {
		b.WriteString("[" + strings.Join(c.values, ",") + "]")
	}
	return b.String()
}

// Properties is an immutable set of named property constraints. The zero
// value is None.
type Properties struct {
	all   bool
	props map[string]constraint
}

var (
	// All is satisfied by, and satisfies, everything.
	All = Properties{all: true}
	// None declares no properties.
	None = Properties{}
)

// IsAll reports whether p is the All set.
func (p Properties) IsAll() bool { return p.all }

// IsEmpty reports whether p declares no properties and is not All.
func (p Properties) IsEmpty() bool { return !p.all && len(p.props) == 0 }

// Names returns the declared property names in sorted order.
func (p Properties) Names() []string {
	names := make([]string, 0, len(p.props))
	for name := range p.props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Values returns the finite values declared for name. A wildcard property
// returns (nil, true).
func (p Properties) Values(name string) ([]string, bool) {
	c, ok := p.props[name]
	if !ok {
		return nil, false
	}
	if c.wildcard {
		return nil, true
	}
	return slices.Clone(c.values), true
}

// Single returns the only value of name, if it has exactly one.
func (p Properties) Single(name string) (string, bool) {
	c, ok := p.props[name]
	if !ok || c.wildcard || len(c.values) != 1 {
		return "", false
	}
	return c.values[0], true
}

// IsWildcard reports whether name accepts any value.
func (p Properties) IsWildcard(name string) bool {
	c, ok := p.props[name]
	return ok && c.wildcard
}

// IsOptional reports whether absence of name is acceptable.
func (p Properties) IsOptional(name string) bool {
	c, ok := p.props[name]
	return ok && c.optional
}

// IsConcrete reports whether every property has a finite value set.
func (p Properties) IsConcrete() bool {
	if p.all {
		return false
	}
	for _, c := range p.props {
		if c.wildcard {
			return false
		}
	}
	return true
}

// IsSatisfiedBy reports whether candidate meets every constraint of p.
func (p Properties) IsSatisfiedBy(candidate Properties) bool {
	if candidate.all {
		return true
	}
	if p.all {
		return false
	}
	for name, want := range p.props {
		have, ok := candidate.props[name]
		if !ok {
			if want.optional {
				continue
			}
			return false
		}
		if !want.accepts(have) {
			return false
		}
	}
	return true
}

// Compose narrows the properties advertised by a function result to the
// values a requirement asks for. A wildcard narrows to the first requested
// value it admits. Properties the requirement does not mention are kept as
// advertised.
func (p Properties) Compose(req Properties) Properties {
	if p.all || req.all || len(req.props) == 0 {
		return p
	}
	out := make(map[string]constraint, len(p.props))
	for name, have := range p.props {
		want, ok := req.props[name]
		if !ok {
			out[name] = have
			continue
		}
		out[name] = narrow(have, want)
	}
	return Properties{props: out}
}

func narrow(have, want constraint) constraint {
	switch {
	case have.wildcard && want.wildcard:
		return constraint{wildcard: true, excluded: union(have.excluded, want.excluded)}
	case have.wildcard:
		// A wildcard result produces exactly one of the requested values.
		if vs := filter(want.values, have.admits); len(vs) > 0 {
			return constraint{values: vs[:1]}
		}
	default:
		if vs := filter(have.values, want.admits); len(vs) > 0 {
			return constraint{values: vs}
		}
	}
	return have
}

// Union merges two property sets. All absorbs anything.
func (p Properties) Union(other Properties) Properties {
	if p.all || other.all {
		return All
	}
	out := make(map[string]constraint, len(p.props)+len(other.props))
	for name, c := range p.props {
		out[name] = c
	}
	for name, o := range other.props {
		c, ok := out[name]
		if !ok {
			out[name] = o
			continue
		}
		merged := constraint{optional: c.optional && o.optional}
		switch {
		case c.wildcard && o.wildcard:
			merged.wildcard = true
			merged.excluded = intersect(c.excluded, o.excluded)
		case c.wildcard:
			merged.wildcard = true
			merged.excluded = filter(c.excluded, func(v string) bool { return !contains(o.values, v) })
		case o.wildcard:
			merged.wildcard = true
			merged.excluded = filter(o.excluded, func(v string) bool { return !contains(c.values, v) })
		default:
			merged.values = union(c.values, o.values)
		}
		out[name] = merged
	}
	return Properties{props: out}
}

// Equal reports structural equality.
func (p Properties) Equal(other Properties) bool {
	if p.all != other.all || len(p.props) != len(other.props) {
		return false
	}
	for name, c := range p.props {
		o, ok := other.props[name]
		if !ok || !c.equal(o) {
			return false
		}
	}
	return true
}

// String renders the canonical form, e.g. {Currency=[USD],Curve?=*}.
func (p Properties) String() string {
	if p.all {
		return "ALL"
	}
	var b strings.Builder
	b.WriteString("{")
	for i, name := range p.Names() {
		if i > 0 {
			b.WriteString(",")
		}
		c := p.props[name]
		b.WriteString(name)
		if c.optional {
			b.WriteString("?")
		}
		b.WriteString("=")
		b.WriteString(c.String())
	}
	b.WriteString("}")
	return b.String()
}

// PropertiesBuilder accumulates property declarations.
type PropertiesBuilder struct {
	props    map[string]constraint
	declared map[string]bool
	errs     []error
}

// NewProperties starts an empty property set.
func NewProperties() *PropertiesBuilder {
	return &PropertiesBuilder{props: map[string]constraint{}, declared: map[string]bool{}}
}

// From starts a builder pre-populated with the properties of p.
func From(p Properties) *PropertiesBuilder {
	b := NewProperties()
	for name, c := range p.props {
		b.props[name] = c
		b.declared[name] = true
	}
	return b
}

func (b *PropertiesBuilder) declare(name string, c constraint) *PropertiesBuilder {
	if b.declared[name] {
		b.errs = append(b.errs, fmt.Errorf("%w: %s", ErrDuplicateProperty, name))
		return b
	}
	if existing, ok := b.props[name]; ok && existing.optional {
		c.optional = true
	}
	b.declared[name] = true
	b.props[name] = c
	return b
}

// With declares name with a finite set of acceptable values.
func (b *PropertiesBuilder) With(name string, values ...string) *PropertiesBuilder {
	if len(values) == 0 {
		b.errs = append(b.errs, fmt.Errorf("%w: %s", ErrNoValues, name))
		return b
	}
	return b.declare(name, constraint{values: normalize(values)})
}

// WithAny declares that name may take any value.
func (b *PropertiesBuilder) WithAny(name string) *PropertiesBuilder {
	return b.declare(name, constraint{wildcard: true})
}

// WithAnyExcept declares that name may take any value outside excluded.
func (b *PropertiesBuilder) WithAnyExcept(name string, excluded ...string) *PropertiesBuilder {
	return b.declare(name, constraint{wildcard: true, excluded: normalize(excluded)})
}

// WithOptional marks name as optional. An undeclared name becomes an optional
// wildcard.
func (b *PropertiesBuilder) WithOptional(name string) *PropertiesBuilder {
	c, ok := b.props[name]
	if !ok {
		c = constraint{wildcard: true}
	}
	c.optional = true
	b.props[name] = c
	return b
}

// Without removes name.
func (b *PropertiesBuilder) Without(name string) *PropertiesBuilder {
	delete(b.props, name)
	delete(b.declared, name)
	return b
}

// Build returns the immutable property set.
func (b *PropertiesBuilder) Build() (Properties, error) {
	if len(b.errs) > 0 {
		return Properties{}, errors.Join(b.errs...)
	}
	if len(b.props) == 0 {
		return None, nil
	}
	out := make(map[string]constraint, len(b.props))
	for name, c := range b.props {
		out[name] = c
	}
	return Properties{props: out}, nil
}

// MustBuild is like Build but panics on error.
func (b *PropertiesBuilder) MustBuild() Properties {
	p, err := b.Build()
	if err != nil {
		panic(err)
	}
	return p
}

func normalize(values []string) []string {
	out := slices.Clone(values)
	sort.Strings(out)
	return slices.Compact(out)
}

func contains(sorted []string, v string) bool {
	_, found := slices.BinarySearch(sorted, v)
	return found
}

func filter(values []string, keep func(string) bool) []string {
	var out []string
	for _, v := range values {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func union(a, b []string) []string {
	return normalize(append(slices.Clone(a), b...))
}

func intersect(a, b []string) []string {
	return filter(a, func(v string) bool { return contains(b, v) })
}
