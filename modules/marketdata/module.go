// Package marketdata publishes a static market data snapshot as functions:
// security prices and foreign exchange rates.
package marketdata

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/specialistvlad/valuegrid/internal/registry"
	"github.com/specialistvlad/valuegrid/internal/target"
	"github.com/specialistvlad/valuegrid/internal/value"
)

// FXScheme is the id scheme of currency pair targets, e.g. "FX~EURUSD".
const FXScheme = "FX"

const (
	PriceFunctionID  = "market-price"
	FXRateFunctionID = "fx-rate"
)

// Module implements the registry.Module interface for this package.
type Module struct {
	// Prices maps a security id to its price in the security currency.
	Prices map[target.UniqueID]decimal.Decimal
	// FXRates maps a pair such as "EURUSD" to the quote currency amount one
	// unit of base currency buys.
	FXRates map[string]decimal.Decimal
}

// Register registers the market data functions.
func (m *Module) Register(r *registry.Registry) {
	r.Register(&priceFunction{prices: m.Prices})
	r.Register(&fxRateFunction{rates: m.FXRates}, registry.WithFilter(registry.ApplyToSchemes(FXScheme)))
}

// PriceRequirement requests the market price of sec in its own currency.
func PriceRequirement(sec *target.Security) value.Requirement {
	props := value.NewProperties().With(value.PropertyCurrency, sec.Currency).MustBuild()
	return value.MustRequirement(value.MarketPrice, sec.Spec(), props)
}

// FXTarget returns the currency pair target converting from into to.
func FXTarget(from, to string) target.Specification {
	return target.NewSpecification(target.TypePrimitive, target.NewUniqueID(FXScheme, from+to))
}

// FXRequirement requests the rate converting amounts in from into to.
func FXRequirement(from, to string) value.Requirement {
	return value.MustRequirement(value.FXRate, FXTarget(from, to), value.None)
}

type priceFunction struct {
	prices map[target.UniqueID]decimal.Decimal
}

func (f *priceFunction) ID() string              { return PriceFunctionID }
func (f *priceFunction) TargetType() target.Type { return target.TypeSecurity }

func (f *priceFunction) CanApplyTo(_ *registry.CompilationContext, t target.Target) bool {
	_, ok := f.prices[t.Spec().ID]
	return ok
}

func (f *priceFunction) Requirements(*registry.CompilationContext, target.Target) ([]value.Requirement, error) {
	return nil, nil
}

func (f *priceFunction) Results(_ *registry.CompilationContext, t target.Target) []value.Specification {
	sec := t.(*target.Security)
	props := value.NewProperties().With(value.PropertyCurrency, sec.Currency).MustBuild()
	return []value.Specification{{Name: value.MarketPrice, Target: t.Spec(), Properties: props, FunctionID: PriceFunctionID}}
}

func (f *priceFunction) Execute(_ context.Context, _ *registry.ExecutionContext, t target.Target, _ registry.Inputs, desired []value.Specification) ([]value.ComputedValue, error) {
	price, ok := f.prices[t.Spec().ID]
	if !ok {
		return nil, fmt.Errorf("no price for %s", t.Spec().ID)
	}
	return computed(desired, price), nil
}

type fxRateFunction struct {
	rates map[string]decimal.Decimal
}

func (f *fxRateFunction) ID() string              { return FXRateFunctionID }
func (f *fxRateFunction) TargetType() target.Type { return target.TypePrimitive }

func (f *fxRateFunction) CanApplyTo(_ *registry.CompilationContext, t target.Target) bool {
	_, err := f.rate(t.Spec().ID.Value)
	return err == nil
}

func (f *fxRateFunction) Requirements(*registry.CompilationContext, target.Target) ([]value.Requirement, error) {
	return nil, nil
}

func (f *fxRateFunction) Results(_ *registry.CompilationContext, t target.Target) []value.Specification {
	return []value.Specification{{Name: value.FXRate, Target: t.Spec(), Properties: value.None, FunctionID: FXRateFunctionID}}
}

func (f *fxRateFunction) Execute(_ context.Context, _ *registry.ExecutionContext, t target.Target, _ registry.Inputs, desired []value.Specification) ([]value.ComputedValue, error) {
	rate, err := f.rate(t.Spec().ID.Value)
	if err != nil {
		return nil, err
	}
	return computed(desired, rate), nil
}

// rate quotes pair directly, through its inverse, or as one when both
// currencies are the same.
func (f *fxRateFunction) rate(pair string) (decimal.Decimal, error) {
	pair = strings.ToUpper(pair)
	if len(pair) != 6 {
		return decimal.Decimal{}, fmt.Errorf("invalid currency pair %q", pair)
	}
	base, quote := pair[:3], pair[3:]
	if base == quote {
		return decimal.NewFromInt(1), nil
	}
	if r, ok := f.rates[pair]; ok {
		return r, nil
	}
	if r, ok := f.rates[quote+base]; ok && !r.IsZero() {
		return decimal.NewFromInt(1).DivRound(r, 16), nil
	}
	return decimal.Decimal{}, fmt.Errorf("no rate for %s", pair)
}

func computed(desired []value.Specification, d decimal.Decimal) []value.ComputedValue {
	out := make([]value.ComputedValue, len(desired))
	for i, spec := range desired {
		out[i] = value.ComputedValue{Spec: spec, Value: Number(d)}
	}
	return out
}
