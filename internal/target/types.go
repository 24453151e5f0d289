package target

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidType is returned when a target type name is not recognized.
	ErrInvalidType = errors.New("invalid target type")
	// ErrInvalidUniqueID is returned when a unique id string cannot be parsed.
	ErrInvalidUniqueID = errors.New("invalid unique id")
)

// Type is the kind of a computation target.
type Type int

const (
	TypeUnknown Type = iota
	TypePrimitive
	TypePosition
	TypePortfolioNode
	TypePortfolio
	TypeTrade
	TypeSecurity
)

var typeNames = map[Type]string{
	TypePrimitive:     "PRIMITIVE",
	TypePosition:      "POSITION",
	TypePortfolioNode: "PORTFOLIO_NODE",
	TypePortfolio:     "PORTFOLIO",
	TypeTrade:         "TRADE",
	TypeSecurity:      "SECURITY",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseType converts a type name such as "POSITION" into a Type.
// Matching is case-insensitive.
func ParseType(s string) (Type, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for t, name := range typeNames {
		if name == upper {
			return t, nil
		}
	}
	return TypeUnknown, fmt.Errorf("%w: %q", ErrInvalidType, s)
}

// uniqueIDSeparator separates the scheme from the value in the textual form.
const uniqueIDSeparator = "~"

// UniqueID identifies an object within a scheme. The scheme selects the
// backend that can resolve it.
type UniqueID struct {
	Scheme string
	Value  string
}

// NewUniqueID builds a UniqueID from its parts.
func NewUniqueID(scheme, value string) UniqueID {
	return UniqueID{Scheme: scheme, Value: value}
}

// ParseUniqueID parses the "Scheme~Value" textual form.
func ParseUniqueID(s string) (UniqueID, error) {
	scheme, value, ok := strings.Cut(s, uniqueIDSeparator)
	if !ok || scheme == "" || value == "" {
		return UniqueID{}, fmt.Errorf("%w: %q (expected Scheme~Value)", ErrInvalidUniqueID, s)
	}
	return UniqueID{Scheme: scheme, Value: value}, nil
}

// MustParseUniqueID is like ParseUniqueID but panics on error.
// Intended for tests and static tables.
func MustParseUniqueID(s string) UniqueID {
	id, err := ParseUniqueID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// IsZero reports whether the id is unset.
func (id UniqueID) IsZero() bool {
	return id.Scheme == "" && id.Value == ""
}

func (id UniqueID) String() string {
	return id.Scheme + uniqueIDSeparator + id.Value
}

// Specification is the unresolved reference to a target.
type Specification struct {
	Type Type
	ID   UniqueID
}

// NewSpecification builds a Specification.
func NewSpecification(t Type, id UniqueID) Specification {
	return Specification{Type: t, ID: id}
}

// IsZero reports whether the specification is unset.
func (s Specification) IsZero() bool {
	return s.Type == TypeUnknown && s.ID.IsZero()
}

// String renders "TYPE:Scheme~Value", which is also the canonical key form.
func (s Specification) String() string {
	return s.Type.String() + ":" + s.ID.String()
}
