package registry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/valuegrid/internal/resolver"
	"github.com/specialistvlad/valuegrid/internal/target"
	"github.com/specialistvlad/valuegrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// Function is a pluggable unit of computation.
//
// Requirements and Results are consulted while the dependency graph is
// compiled and must be cheap and side-effect free. Execute runs on a
// calculation node once every input is available.
type Function interface {
	// ID is unique within a registry.
	ID() string
	// TargetType is the only kind of target the function applies to.
	TargetType() target.Type
	// CanApplyTo refines TargetType, e.g. to securities of one instrument kind.
	CanApplyTo(cctx *CompilationContext, t target.Target) bool
	// Requirements lists the inputs needed to compute any result on t.
	Requirements(cctx *CompilationContext, t target.Target) ([]value.Requirement, error)
	// Results lists what the function can produce on t. Properties may be
	// wildcards; they are narrowed to the requested values during resolution.
	Results(cctx *CompilationContext, t target.Target) []value.Specification
	// Execute computes the desired outputs from inputs.
	Execute(ctx context.Context, ectx *ExecutionContext, t target.Target, inputs Inputs, desired []value.Specification) ([]value.ComputedValue, error)
}

// OptionalInputs is implemented by functions that can run without some of
// their inputs. Unsatisfiable optional requirements are dropped.
type OptionalInputs interface {
	OptionalRequirements(cctx *CompilationContext, t target.Target) ([]value.Requirement, error)
}

// CompilationContext is passed to functions while the graph is built.
type CompilationContext struct {
	CalcConfig string
	Resolver   resolver.TargetResolver
	Params     map[string]string
}

// Param returns the named calculation configuration parameter or def.
func (c *CompilationContext) Param(name, def string) string {
	if c == nil {
		return def
	}
	if v, ok := c.Params[name]; ok {
		return v
	}
	return def
}

// ExecutionContext is passed to functions when they are invoked.
type ExecutionContext struct {
	CycleID       uuid.UUID
	CalcConfig    string
	ValuationTime time.Time
}

// Inputs are the values a function invocation receives.
type Inputs struct {
	values []value.ComputedValue
}

// NewInputs wraps computed values.
func NewInputs(values ...value.ComputedValue) Inputs {
	return Inputs{values: values}
}

// Len returns the number of inputs.
func (in Inputs) Len() int { return len(in.values) }

// All returns the inputs in the order they were supplied.
func (in Inputs) All() []value.ComputedValue { return in.values }

// Lookup returns the first input satisfying req.
func (in Inputs) Lookup(req value.Requirement) (cty.Value, bool) {
	for _, v := range in.values {
		if req.IsSatisfiedBy(v.Spec) {
			return v.Value, true
		}
	}
	return cty.NilVal, false
}

// Named returns every input with the given value name.
func (in Inputs) Named(name string) []value.ComputedValue {
	var out []value.ComputedValue
	for _, v := range in.values {
		if v.Spec.Name == name {
			out = append(out, v)
		}
	}
	return out
}
