// Package value is the identity model of the engine: what is being asked for
// (Requirement), what a function can produce (Specification) and the
// property constraints that decide whether one satisfies the other.
//
// Property sets are immutable values. A constraint on a property name is a
// finite set of acceptable values or a wildcard (optionally excluding some
// values), and either may be optional. All and None are the distinguished
// universal and empty sets.
package value
