// Package valuation values positions. Positions are valued in the currency
// of their security and converted to the reporting currency of the
// calculation configuration when it differs.
package valuation

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/specialistvlad/valuegrid/internal/registry"
	"github.com/specialistvlad/valuegrid/internal/target"
	"github.com/specialistvlad/valuegrid/internal/value"
	"github.com/specialistvlad/valuegrid/modules/marketdata"
)

const (
	// ParamCurrency names the calculation configuration parameter holding
	// the reporting currency.
	ParamCurrency = "currency"
	// DefaultCurrency is the reporting currency when none is configured.
	DefaultCurrency = "USD"

	PositionPVFunctionID = "pv-position"
	ConvertPVFunctionID  = "pv-convert"
)

// ReportingCurrency returns the reporting currency of cctx.
func ReportingCurrency(cctx *registry.CompilationContext) string {
	return cctx.Param(ParamCurrency, DefaultCurrency)
}

// PVRequirement requests the present value of t in ccy.
func PVRequirement(t target.Specification, ccy string) value.Requirement {
	props := value.NewProperties().With(value.PropertyCurrency, ccy).MustBuild()
	return value.MustRequirement(value.PresentValue, t, props)
}

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the valuation functions.
func (m *Module) Register(r *registry.Registry) {
	r.Register(&positionPV{})
	r.Register(&convertPV{})
}

func pvSpec(t target.Target, ccy, fnID string) value.Specification {
	props := value.NewProperties().With(value.PropertyCurrency, ccy).MustBuild()
	return value.Specification{Name: value.PresentValue, Target: t.Spec(), Properties: props, FunctionID: fnID}
}

func security(t target.Target) (*target.Security, bool) {
	pos, ok := t.(*target.Position)
	if !ok || pos.Security == nil || pos.Security.Instrument == nil {
		return nil, false
	}
	return pos.Security, true
}

// positionPV values a position in its security currency.
type positionPV struct{}

func (f *positionPV) ID() string              { return PositionPVFunctionID }
func (f *positionPV) TargetType() target.Type { return target.TypePosition }

func (f *positionPV) CanApplyTo(_ *registry.CompilationContext, t target.Target) bool {
	_, ok := security(t)
	return ok
}

func (f *positionPV) Requirements(_ *registry.CompilationContext, t target.Target) ([]value.Requirement, error) {
	sec, ok := security(t)
	if !ok {
		return nil, fmt.Errorf("position %s has no instrument", t.Spec().ID)
	}
	return target.MatchInstrument[[]value.Requirement](sec.Instrument, inputs{sec: sec}), nil
}

func (f *positionPV) Results(_ *registry.CompilationContext, t target.Target) []value.Specification {
	sec, _ := security(t)
	return []value.Specification{pvSpec(t, sec.Currency, PositionPVFunctionID)}
}

func (f *positionPV) Execute(_ context.Context, _ *registry.ExecutionContext, t target.Target, in registry.Inputs, desired []value.Specification) ([]value.ComputedValue, error) {
	pos := t.(*target.Position)
	res := target.MatchInstrument[amount](pos.Security.Instrument, valuer{sec: pos.Security, inputs: in})
	if res.err != nil {
		return nil, fmt.Errorf("value %s: %w", pos.ID, res.err)
	}
	pv := res.value.Mul(pos.Quantity)
	out := make([]value.ComputedValue, len(desired))
	for i, spec := range desired {
		out[i] = value.ComputedValue{Spec: spec, Value: marketdata.Number(pv)}
	}
	return out, nil
}

// convertPV converts a position's present value into the reporting
// currency.
type convertPV struct{}

func (f *convertPV) ID() string              { return ConvertPVFunctionID }
func (f *convertPV) TargetType() target.Type { return target.TypePosition }

func (f *convertPV) CanApplyTo(cctx *registry.CompilationContext, t target.Target) bool {
	sec, ok := security(t)
	return ok && sec.Currency != ReportingCurrency(cctx)
}

func (f *convertPV) Requirements(cctx *registry.CompilationContext, t target.Target) ([]value.Requirement, error) {
	sec, _ := security(t)
	return []value.Requirement{
		PVRequirement(t.Spec(), sec.Currency),
		marketdata.FXRequirement(sec.Currency, ReportingCurrency(cctx)),
	}, nil
}

func (f *convertPV) Results(cctx *registry.CompilationContext, t target.Target) []value.Specification {
	return []value.Specification{pvSpec(t, ReportingCurrency(cctx), ConvertPVFunctionID)}
}

func (f *convertPV) Execute(_ context.Context, _ *registry.ExecutionContext, t target.Target, in registry.Inputs, desired []value.Specification) ([]value.ComputedValue, error) {
	sec, _ := security(t)
	native, err := lookup(in, PVRequirement(t.Spec(), sec.Currency))
	if err != nil {
		return nil, err
	}
	out := make([]value.ComputedValue, 0, len(desired))
	for _, spec := range desired {
		ccy, _ := spec.Properties.Single(value.PropertyCurrency)
		rate, err := lookup(in, marketdata.FXRequirement(sec.Currency, ccy))
		if err != nil {
			return nil, err
		}
		out = append(out, value.ComputedValue{Spec: spec, Value: marketdata.Number(native.Mul(rate))})
	}
	return out, nil
}

func lookup(in registry.Inputs, req value.Requirement) (decimal.Decimal, error) {
	v, ok := in.Lookup(req)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("missing input %s", req)
	}
	return marketdata.Decimal(v)
}
