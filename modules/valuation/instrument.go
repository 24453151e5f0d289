package valuation

import (
	"github.com/shopspring/decimal"
	"github.com/specialistvlad/valuegrid/internal/registry"
	"github.com/specialistvlad/valuegrid/internal/target"
	"github.com/specialistvlad/valuegrid/internal/value"
	"github.com/specialistvlad/valuegrid/modules/marketdata"
)

// inputs lists what valuing one unit of an instrument needs.
type inputs struct {
	sec *target.Security
}

func (m inputs) Equity(*target.Equity) []value.Requirement {
	return []value.Requirement{marketdata.PriceRequirement(m.sec)}
}

func (m inputs) Bond(*target.Bond) []value.Requirement {
	return []value.Requirement{marketdata.PriceRequirement(m.sec)}
}

func (m inputs) Swap(s *target.Swap) []value.Requirement {
	var out []value.Requirement
	seen := map[string]bool{}
	for _, leg := range s.Legs {
		out = m.fx(out, seen, leg.Currency)
	}
	return out
}

func (m inputs) FXForward(f *target.FXForward) []value.Requirement {
	seen := map[string]bool{}
	out := m.fx(nil, seen, f.PayCurrency)
	return m.fx(out, seen, f.ReceiveCurrency)
}

func (m inputs) fx(out []value.Requirement, seen map[string]bool, ccy string) []value.Requirement {
	if ccy == m.sec.Currency || seen[ccy] {
		return out
	}
	seen[ccy] = true
	return append(out, marketdata.FXRequirement(ccy, m.sec.Currency))
}

type amount struct {
	value decimal.Decimal
	err   error
}

// valuer computes the value of one unit of an instrument in the security
// currency.
type valuer struct {
	sec    *target.Security
	inputs registry.Inputs
}

func (v valuer) Equity(*target.Equity) amount { return v.price() }
func (v valuer) Bond(*target.Bond) amount     { return v.price() }

// Swap sums one period of leg coupons, received legs positive.
func (v valuer) Swap(s *target.Swap) amount {
	total := decimal.Zero
	for _, leg := range s.Legs {
		coupon := leg.Notional.Mul(leg.Rate)
		if leg.Pay {
			coupon = coupon.Neg()
		}
		converted, err := v.convert(coupon, leg.Currency)
		if err != nil {
			return amount{err: err}
		}
		total = total.Add(converted)
	}
	return amount{value: total}
}

func (v valuer) FXForward(f *target.FXForward) amount {
	receive, err := v.convert(f.ReceiveAmount, f.ReceiveCurrency)
	if err != nil {
		return amount{err: err}
	}
	pay, err := v.convert(f.PayAmount, f.PayCurrency)
	if err != nil {
		return amount{err: err}
	}
	return amount{value: receive.Sub(pay)}
}

func (v valuer) price() amount {
	p, err := lookup(v.inputs, marketdata.PriceRequirement(v.sec))
	return amount{value: p, err: err}
}

func (v valuer) convert(a decimal.Decimal, ccy string) (decimal.Decimal, error) {
	if ccy == v.sec.Currency {
		return a, nil
	}
	rate, err := lookup(v.inputs, marketdata.FXRequirement(ccy, v.sec.Currency))
	if err != nil {
		return decimal.Decimal{}, err
	}
	return a.Mul(rate), nil
}
