package hcl

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/specialistvlad/valuegrid/internal/target"
	"github.com/specialistvlad/valuegrid/internal/testutil"
	"github.com/specialistvlad/valuegrid/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const engineHCL = `
engine {
  calculation_nodes = 2
  node_concurrency  = 3
  max_retries       = 1
  min_job_items     = 2
  max_job_items     = 16
  cycle_timeout     = "5s"
  codec             = "cty-json"
  remote_cache {
    url = "http://127.0.0.1:7777"
  }
}
`

const referenceHCL = `
security "SEC~AAPL" {
  kind     = "equity"
  currency = "USD"
}

security "SEC~IRS1" {
  kind     = "swap"
  currency = "USD"
  leg {
    currency = "USD"
    notional = 1000000
    rate     = 0.0425
    pay      = true
  }
  leg {
    currency = "EUR"
    notional = 900000
    rate     = 0.031
  }
}

market_data "SEC~AAPL" { price = 190.5 }
fx_rate "EUR/USD" { rate = 1.08 }

portfolio "PF~main" {
  name = "Main"
  node "PN~root" {
    name = "Root"
    position "POS~1" {
      security = "SEC~AAPL"
      quantity = 100
      trade "TRD~1" {
        quantity = 100
        date     = "2024-03-01"
      }
    }
    node "PN~rates" {
      position "POS~2" {
        security = "SEC~IRS1"
        quantity = 1
      }
    }
  }
}
`

const viewHCL = `
view "pv" {
  calc_config "default" {
    params = { currency = "USD" }
    requirement "PresentValue" {
      target_type = "POSITION"
      target      = "POS~1"
      properties  = { Currency = ["USD"], Curve = any, Function = optional }
    }
    requirement "PresentValue" {
      target_type = "portfolio_node"
      target      = "PN~root"
    }
  }
}
`

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestLoad_MergesFiles(t *testing.T) {
	ctx, _ := testutil.Context(t)
	dir := writeFiles(t, map[string]string{
		"engine.hcl":         engineHCL,
		"data/reference.hcl": referenceHCL,
		"views/pv.hcl":       viewHCL,
		"views/README.md":    "not configuration",
	})

	model, err := NewLoader().Load(ctx, dir, filepath.Join(dir, "missing"))
	require.NoError(t, err)

	e := model.Engine
	assert.Equal(t, 2, e.CalculationNodes)
	assert.Equal(t, 3, e.NodeConcurrency)
	assert.Equal(t, 1, e.MaxRetries)
	assert.Equal(t, 2, e.MinJobItems)
	assert.Equal(t, 16, e.MaxJobItems)
	assert.Equal(t, 5*time.Second, e.CycleTimeout)
	assert.Equal(t, "cty-json", e.Codec)
	require.NotNil(t, e.RemoteCache)
	assert.Equal(t, "http://127.0.0.1:7777", e.RemoteCache.URL)
	assert.Equal(t, 2*time.Second, e.RemoteCache.Timeout)

	require.Len(t, model.Securities, 2)
	swap, ok := model.Securities[1].Instrument.(*target.Swap)
	require.True(t, ok)
	require.Len(t, swap.Legs, 2)
	assert.True(t, swap.Legs[0].Pay)
	assert.True(t, swap.Legs[0].Rate.Equal(decimal.RequireFromString("0.0425")))
	assert.Equal(t, []string{"EUR", "USD"}, target.Currencies(model.Securities[1]))

	assert.True(t, model.MarketPrices[target.MustParseUniqueID("SEC~AAPL")].Equal(decimal.RequireFromString("190.5")))
	assert.True(t, model.FXRates["EURUSD"].Equal(decimal.RequireFromString("1.08")))

	require.Len(t, model.Portfolios, 1)
	root := model.Portfolios[0].Root
	assert.Equal(t, "Root", root.Name)
	require.Len(t, root.Positions, 1)
	pos := root.Positions[0]
	assert.Same(t, model.Securities[0], pos.Security)
	require.Len(t, pos.Trades, 1)
	assert.Equal(t, 2024, pos.Trades[0].TradeDate.Year())
	require.Len(t, root.Children, 1)
	assert.Equal(t, root.ID, root.Children[0].ParentID)

	view, ok := model.View("pv")
	require.True(t, ok)
	require.Len(t, view.CalcConfigs, 1)
	cc := view.CalcConfigs[0]
	assert.Equal(t, map[string]string{"currency": "USD"}, cc.Params)
	require.Len(t, cc.Requirements, 2)

	props := cc.Requirements[0].Constraints
	ccy, _ := props.Single(value.PropertyCurrency)
	assert.Equal(t, "USD", ccy)
	assert.True(t, props.IsWildcard(value.PropertyCurve))
	assert.True(t, props.IsOptional(value.PropertyFunction))
	assert.Equal(t, target.TypePortfolioNode, cc.Requirements[1].Target.Type)
	assert.True(t, cc.Requirements[1].Constraints.IsEmpty())
}

func TestLoad_ReportsEveryProblem(t *testing.T) {
	ctx, _ := testutil.Context(t)
	dir := writeFiles(t, map[string]string{"bad.hcl": `
engine {
  cycle_timeout = "soon"
  min_job_items = 10
  max_job_items = 5
}

security "SEC~X" {
  kind     = "warrant"
  currency = "USD"
}

portfolio "PF~p" {
  node "PN~root" {
    position "POS~1" {
      security = "SEC~missing"
      quantity = 1
    }
  }
}

view "v" {
  calc_config "default" {
    requirement "PresentValue" {
      target_type = "PLANET"
      target      = "POS~1"
    }
  }
}
`})

	_, err := NewLoader().Load(ctx, dir)
	require.Error(t, err)
	for _, want := range []string{
		"cycle_timeout",
		"min_job_items (10) exceeds max_job_items (5)",
		`unknown kind "warrant"`,
		"unknown security 'SEC~missing'",
		"invalid target type",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoad_ParseErrors(t *testing.T) {
	ctx, _ := testutil.Context(t)

	dir := writeFiles(t, map[string]string{"broken.hcl": `security "SEC~X" {`})
	_, err := NewLoader().Load(ctx, dir)
	assert.ErrorContains(t, err, "failed to parse HCL file")

	dir = writeFiles(t, map[string]string{"a.hcl": "engine {}", "b.hcl": "engine {}"})
	_, err = NewLoader().Load(ctx, dir)
	assert.ErrorContains(t, err, "duplicate engine block")
}

func TestPropertiesFromExpr(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{name: "single string", src: `{ Currency = "USD" }`},
		{name: "quoted name", src: `{ "Currency" = ["USD", "EUR"] }`},
		{name: "unknown keyword", src: `{ Currency = every }`, wantErr: "unknown keyword"},
		{name: "empty list", src: `{ Currency = [] }`, wantErr: "at least one value"},
		{name: "numbers", src: `{ Currency = [1] }`, wantErr: "must be a string"},
		{name: "not an object", src: `"USD"`, wantErr: "expected an object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeFiles(t, map[string]string{"v.hcl": `
view "v" {
  calc_config "c" {
    requirement "PresentValue" {
      target_type = "POSITION"
      target      = "POS~1"
      properties  = ` + tt.src + `
    }
  }
}
`})
			ctx, _ := testutil.Context(t)
			model, err := NewLoader().Load(ctx, dir)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			ccy, ok := model.Views[0].CalcConfigs[0].Requirements[0].Constraints.Values(value.PropertyCurrency)
			require.True(t, ok)
			assert.Contains(t, ccy, "USD")
		})
	}
}
