package marketdata

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/zclconf/go-cty/cty"
)

// Number converts d to a cty number without losing precision.
func Number(d decimal.Decimal) cty.Value {
	return cty.MustParseNumberVal(d.String())
}

// Decimal converts a known, non-null cty number to a decimal.
func Decimal(v cty.Value) (decimal.Decimal, error) {
	if v.IsNull() || !v.IsKnown() || !v.Type().Equals(cty.Number) {
		return decimal.Decimal{}, fmt.Errorf("expected a number, got %#v", v)
	}
	return decimal.NewFromString(v.AsBigFloat().Text('f', -1))
}
