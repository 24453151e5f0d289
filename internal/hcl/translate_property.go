// This file parses requirement property constraints such as
//
//	properties = { Currency = ["USD", "EUR"], Curve = any, Function = optional }
//
// into value.Properties.

package hcl

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/specialistvlad/valuegrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// propertiesFromExpr converts an object expression into property
// constraints. A missing expression declares no properties.
func propertiesFromExpr(expr hcl.Expression) (value.Properties, error) {
	if expr == nil {
		return value.None, nil
	}
	if v, diags := expr.Value(nil); !diags.HasErrors() && v.IsNull() {
		return value.None, nil
	}

	pairs, diags := hcl.ExprMap(expr)
	if diags.HasErrors() {
		return value.Properties{}, fmt.Errorf("expected an object of property constraints: %w", diags)
	}

	b := value.NewProperties()
	for _, pair := range pairs {
		name := hcl.ExprAsKeyword(pair.Key)
		if name == "" {
			key, diags := pair.Key.Value(nil)
			if diags.HasErrors() || !key.Type().Equals(cty.String) || key.IsNull() {
				return value.Properties{}, fmt.Errorf("property names must be identifiers or strings")
			}
			name = key.AsString()
		}
		if err := addConstraint(b, name, pair.Value); err != nil {
			return value.Properties{}, fmt.Errorf("property '%s': %w", name, err)
		}
	}
	return b.Build()
}

// addConstraint handles the keywords any and optional, a single string or
// a list of strings.
func addConstraint(b *value.PropertiesBuilder, name string, expr hcl.Expression) error {
	if v, ok := expr.(*hclsyntax.ScopeTraversalExpr); ok {
		if len(v.Traversal) != 1 {
			return fmt.Errorf("invalid keyword: traversal path is not a single identifier")
		}
		switch keyword := v.Traversal.RootName(); keyword {
		case "any":
			b.WithAny(name)
		case "optional":
			b.WithOptional(name)
		default:
			return fmt.Errorf("unknown keyword %q (expected any or optional)", keyword)
		}
		return nil
	}

	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return diags
	}
	switch {
	case val.IsNull():
		return fmt.Errorf("value must not be null")
	case val.Type().Equals(cty.String):
		b.With(name, val.AsString())
		return nil
	case val.Type().IsTupleType() || val.Type().IsListType() || val.Type().IsSetType():
		var values []string
		for it := val.ElementIterator(); it.Next(); {
			_, el := it.Element()
			if el.IsNull() || !el.Type().Equals(cty.String) {
				return fmt.Errorf("every value must be a string")
			}
			values = append(values, el.AsString())
		}
		if len(values) == 0 {
			return fmt.Errorf("at least one value is required, use any for a wildcard")
		}
		b.With(name, values...)
		return nil
	default:
		return fmt.Errorf("unsupported constraint of type %s", val.Type().FriendlyName())
	}
}
