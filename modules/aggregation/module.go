// Package aggregation rolls position present values up the portfolio
// hierarchy in the reporting currency.
package aggregation

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/specialistvlad/valuegrid/internal/registry"
	"github.com/specialistvlad/valuegrid/internal/target"
	"github.com/specialistvlad/valuegrid/internal/value"
	"github.com/specialistvlad/valuegrid/modules/marketdata"
	"github.com/specialistvlad/valuegrid/modules/valuation"
)

const (
	NodePVFunctionID      = "pv-node"
	PortfolioPVFunctionID = "pv-portfolio"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the aggregation functions.
func (m *Module) Register(r *registry.Registry) {
	r.Register(&nodePV{})
	r.Register(&portfolioPV{})
}

// nodePV sums the positions and child nodes of a portfolio node.
type nodePV struct{}

func (f *nodePV) ID() string              { return NodePVFunctionID }
func (f *nodePV) TargetType() target.Type { return target.TypePortfolioNode }

func (f *nodePV) CanApplyTo(*registry.CompilationContext, target.Target) bool { return true }

func (f *nodePV) Requirements(cctx *registry.CompilationContext, t target.Target) ([]value.Requirement, error) {
	return children(t.(*target.PortfolioNode), valuation.ReportingCurrency(cctx)), nil
}

func (f *nodePV) Results(cctx *registry.CompilationContext, t target.Target) []value.Specification {
	return results(t, valuation.ReportingCurrency(cctx), NodePVFunctionID)
}

func (f *nodePV) Execute(_ context.Context, _ *registry.ExecutionContext, t target.Target, in registry.Inputs, desired []value.Specification) ([]value.ComputedValue, error) {
	node := t.(*target.PortfolioNode)
	return sum(in, desired, func(ccy string) []value.Requirement { return children(node, ccy) })
}

// portfolioPV reports the value of a portfolio's root node.
type portfolioPV struct{}

func (f *portfolioPV) ID() string              { return PortfolioPVFunctionID }
func (f *portfolioPV) TargetType() target.Type { return target.TypePortfolio }

func (f *portfolioPV) CanApplyTo(_ *registry.CompilationContext, t target.Target) bool {
	return t.(*target.Portfolio).Root != nil
}

func (f *portfolioPV) Requirements(cctx *registry.CompilationContext, t target.Target) ([]value.Requirement, error) {
	return root(t.(*target.Portfolio), valuation.ReportingCurrency(cctx)), nil
}

func (f *portfolioPV) Results(cctx *registry.CompilationContext, t target.Target) []value.Specification {
	return results(t, valuation.ReportingCurrency(cctx), PortfolioPVFunctionID)
}

func (f *portfolioPV) Execute(_ context.Context, _ *registry.ExecutionContext, t target.Target, in registry.Inputs, desired []value.Specification) ([]value.ComputedValue, error) {
	pf := t.(*target.Portfolio)
	return sum(in, desired, func(ccy string) []value.Requirement { return root(pf, ccy) })
}

func children(n *target.PortfolioNode, ccy string) []value.Requirement {
	reqs := make([]value.Requirement, 0, len(n.Positions)+len(n.Children))
	for _, pos := range n.Positions {
		reqs = append(reqs, valuation.PVRequirement(pos.Spec(), ccy))
	}
	for _, child := range n.Children {
		reqs = append(reqs, valuation.PVRequirement(child.Spec(), ccy))
	}
	return reqs
}

func root(pf *target.Portfolio, ccy string) []value.Requirement {
	return []value.Requirement{valuation.PVRequirement(pf.Root.Spec(), ccy)}
}

func results(t target.Target, ccy, fnID string) []value.Specification {
	props := value.NewProperties().With(value.PropertyCurrency, ccy).MustBuild()
	return []value.Specification{{Name: value.PresentValue, Target: t.Spec(), Properties: props, FunctionID: fnID}}
}

func sum(in registry.Inputs, desired []value.Specification, reqs func(ccy string) []value.Requirement) ([]value.ComputedValue, error) {
	out := make([]value.ComputedValue, 0, len(desired))
	for _, spec := range desired {
		ccy, _ := spec.Properties.Single(value.PropertyCurrency)
		total := decimal.Zero
		for _, req := range reqs(ccy) {
			v, ok := in.Lookup(req)
			if !ok {
				return nil, fmt.Errorf("missing input %s", req)
			}
			d, err := marketdata.Decimal(v)
			if err != nil {
				return nil, fmt.Errorf("input %s: %w", req, err)
			}
			total = total.Add(d)
		}
		out = append(out, value.ComputedValue{Spec: spec, Value: marketdata.Number(total)})
	}
	return out, nil
}
