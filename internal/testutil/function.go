package testutil

import (
	"context"
	"math/big"
	"sync/atomic"

	"github.com/specialistvlad/valuegrid/internal/registry"
	"github.com/specialistvlad/valuegrid/internal/target"
	"github.com/specialistvlad/valuegrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// StubFunction is a configurable registry.Function that counts its
// invocations. It produces one value name on its target type.
//
// Without Compute, each desired output is the sum of all numeric inputs plus
// one, so a chain of n stubs yields n at its head.
type StubFunction struct {
	FnID     string
	Type     target.Type
	Produces string
	Props    value.Properties
	Needs    func(t target.Target) []value.Requirement
	Optional func(t target.Target) []value.Requirement
	Applies  func(t target.Target) bool
	Compute  func(ctx context.Context, t target.Target, inputs registry.Inputs, desired []value.Specification) ([]value.ComputedValue, error)

	invocations atomic.Int64
}

var _ registry.Function = (*StubFunction)(nil)
var _ registry.OptionalInputs = (*StubFunction)(nil)

func (f *StubFunction) ID() string              { return f.FnID }
func (f *StubFunction) TargetType() target.Type { return f.Type }

func (f *StubFunction) CanApplyTo(_ *registry.CompilationContext, t target.Target) bool {
	return f.Applies == nil || f.Applies(t)
}

func (f *StubFunction) Requirements(_ *registry.CompilationContext, t target.Target) ([]value.Requirement, error) {
	if f.Needs == nil {
		return nil, nil
	}
	return f.Needs(t), nil
}

func (f *StubFunction) OptionalRequirements(_ *registry.CompilationContext, t target.Target) ([]value.Requirement, error) {
	if f.Optional == nil {
		return nil, nil
	}
	return f.Optional(t), nil
}

func (f *StubFunction) Results(_ *registry.CompilationContext, t target.Target) []value.Specification {
	return []value.Specification{{Name: f.Produces, Target: t.Spec(), Properties: f.Props, FunctionID: f.FnID}}
}

func (f *StubFunction) Execute(ctx context.Context, _ *registry.ExecutionContext, t target.Target, inputs registry.Inputs, desired []value.Specification) ([]value.ComputedValue, error) {
	f.invocations.Add(1)
	if f.Compute != nil {
		return f.Compute(ctx, t, inputs, desired)
	}
	sum := big.NewFloat(1)
	for _, in := range inputs.All() {
		if in.Value.Type().Equals(cty.Number) && in.Value.IsKnown() && !in.Value.IsNull() {
			sum.Add(sum, in.Value.AsBigFloat())
		}
	}
	out := make([]value.ComputedValue, 0, len(desired))
	for _, spec := range desired {
		out = append(out, value.ComputedValue{Spec: spec, Value: cty.NumberVal(sum)})
	}
	return out, nil
}

// Invocations returns how many times Execute has been called.
func (f *StubFunction) Invocations() int {
	return int(f.invocations.Load())
}

// StubModule registers a fixed list of functions, in order.
type StubModule struct {
	Functions []registry.Function
	Options   map[string][]registry.RuleOption
}

// Register implements registry.Module.
func (m *StubModule) Register(r *registry.Registry) {
	for _, fn := range m.Functions {
		r.Register(fn, m.Options[fn.ID()]...)
	}
}

// Requirement builds a requirement on a target type and id string.
func Requirement(name string, typ target.Type, id string, props value.Properties) value.Requirement {
	return value.MustRequirement(name, target.NewSpecification(typ, target.MustParseUniqueID(id)), props)
}
