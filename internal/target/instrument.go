package target

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Instrument describes the economic terms of a security.
type Instrument interface {
	instrument()
}

// Equity is a listed share.
type Equity struct {
	Ticker string
}

// Bond is a fixed coupon bond.
type Bond struct {
	Coupon   decimal.Decimal
	Maturity time.Time
}

// SwapLeg is one side of a swap.
type SwapLeg struct {
	Currency string
	Notional decimal.Decimal
	Rate     decimal.Decimal
	Pay      bool
}

// Swap exchanges the cash flows of its legs.
type Swap struct {
	Legs []SwapLeg
}

// FXForward exchanges two currency amounts on a future date.
type FXForward struct {
	PayCurrency     string
	PayAmount       decimal.Decimal
	ReceiveCurrency string
	ReceiveAmount   decimal.Decimal
	Settlement      time.Time
}

func (*Equity) instrument()    {}
func (*Bond) instrument()      {}
func (*Swap) instrument()      {}
func (*FXForward) instrument() {}

// InstrumentMatcher dispatches on every instrument kind.
type InstrumentMatcher[R any] interface {
	Equity(*Equity) R
	Bond(*Bond) R
	Swap(*Swap) R
	FXForward(*FXForward) R
}

// MatchInstrument calls the matcher method corresponding to the kind of i.
func MatchInstrument[R any](i Instrument, m InstrumentMatcher[R]) R {
	switch v := i.(type) {
	case *Equity:
		return m.Equity(v)
	case *Bond:
		return m.Bond(v)
	case *Swap:
		return m.Swap(v)
	case *FXForward:
		return m.FXForward(v)
	default:
		panic(fmt.Sprintf("target: unknown instrument kind %T", i))
	}
}

// InstrumentKind returns the lower-case kind name used in configuration files.
func InstrumentKind(i Instrument) string {
	return MatchInstrument[string](i, kindNamer{})
}

type kindNamer struct{}

func (kindNamer) Equity(*Equity) string       { return "equity" }
func (kindNamer) Bond(*Bond) string           { return "bond" }
func (kindNamer) Swap(*Swap) string           { return "swap" }
func (kindNamer) FXForward(*FXForward) string { return "fx_forward" }

// Currencies returns the sorted, de-duplicated currencies a security is
// exposed to. Instruments without their own currencies use the security's.
func Currencies(sec *Security) []string {
	seen := map[string]struct{}{}
	if sec.Currency != "" {
		seen[sec.Currency] = struct{}{}
	}
	if sec.Instrument != nil {
		for _, c := range MatchInstrument[[]string](sec.Instrument, currencyCollector{}) {
			seen[c] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

type currencyCollector struct{}

func (currencyCollector) Equity(*Equity) []string { return nil }
func (currencyCollector) Bond(*Bond) []string     { return nil }

func (currencyCollector) Swap(s *Swap) []string {
	out := make([]string, 0, len(s.Legs))
	for _, leg := range s.Legs {
		out = append(out, leg.Currency)
	}
	return out
}

func (currencyCollector) FXForward(f *FXForward) []string {
	return []string{f.PayCurrency, f.ReceiveCurrency}
}
