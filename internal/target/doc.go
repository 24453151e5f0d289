// Package target models the things a value can be computed on: primitives,
// positions, portfolio nodes, portfolios, trades and securities.
//
// A Specification is the unresolved reference (type + unique id) carried by
// value requirements. A Target is the resolved object. Target and Instrument
// are closed variants: every consumer that needs per-kind behaviour goes
// through Match or MatchInstrument, whose matcher interfaces have one method
// per kind, so a new kind cannot be added without every matcher being updated.
package target
