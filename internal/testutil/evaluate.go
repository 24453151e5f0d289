package testutil

import (
	"context"
	"testing"

	"github.com/specialistvlad/valuegrid/internal/dag"
	"github.com/specialistvlad/valuegrid/internal/registry"
	"github.com/specialistvlad/valuegrid/internal/resolver"
	"github.com/specialistvlad/valuegrid/internal/value"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

// Evaluation is the outcome of Evaluate.
type Evaluation struct {
	Graph *dag.Graph
	// Values maps a requested requirement key to its computed value.
	Values map[string]cty.Value
	// Specs maps a requested requirement key to the output satisfying it.
	Specs map[string]value.Specification
}

// Value returns the computed value satisfying req.
func (e *Evaluation) Value(t *testing.T, req value.Requirement) cty.Value {
	t.Helper()
	v, ok := e.Values[req.Key()]
	require.True(t, ok, "no value for %s", req)
	return v
}

// Evaluate builds the graph for reqs and executes it inline in dependency
// order, without a scheduler. Every requirement must be satisfiable and every
// function must succeed.
func Evaluate(t *testing.T, ctx context.Context, reg *registry.Registry, res resolver.TargetResolver, params map[string]string, reqs ...value.Requirement) *Evaluation {
	t.Helper()
	b := dag.NewBuilder(reg, res, "test", dag.WithParams(params))
	for _, req := range reqs {
		_, _, err := b.AddTarget(ctx, req)
		require.NoError(t, err, "resolving %s", req)
	}
	g, err := b.Graph(ctx)
	require.NoError(t, err)
	order, err := g.ExecutionOrder()
	require.NoError(t, err)

	produced := map[string]value.ComputedValue{}
	for _, n := range order {
		inputs := make([]value.ComputedValue, 0, len(n.Inputs))
		for _, spec := range n.Inputs {
			cv, ok := produced[spec.Key()]
			require.True(t, ok, "input %s of %s was not produced", spec, n.ID)
			inputs = append(inputs, cv)
		}
		ectx := &registry.ExecutionContext{CalcConfig: g.CalcConfig}
		out, err := n.Function.Execute(ctx, ectx, n.Target, registry.NewInputs(inputs...), n.Outputs)
		require.NoError(t, err, "executing %s", n.ID)
		for _, cv := range out {
			produced[cv.Spec.Key()] = cv
		}
	}

	e := &Evaluation{Graph: g, Values: map[string]cty.Value{}, Specs: map[string]value.Specification{}}
	for _, term := range g.TerminalOutputs() {
		cv, ok := produced[term.Spec.Key()]
		require.True(t, ok, "terminal output %s was not produced", term.Spec)
		e.Values[term.Requirement.Key()] = cv.Value
		e.Specs[term.Requirement.Key()] = term.Spec
	}
	return e
}
