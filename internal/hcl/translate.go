// This file translates the decoded HCL blocks into the format-agnostic
// configuration model.

package hcl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/shopspring/decimal"
	"github.com/specialistvlad/valuegrid/internal/config"
	"github.com/specialistvlad/valuegrid/internal/ctxlog"
	"github.com/specialistvlad/valuegrid/internal/target"
	"github.com/specialistvlad/valuegrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

const dateLayout = "2006-01-02"

// translate converts the merged blocks of every file. All problems are
// reported together.
func translate(ctx context.Context, root *fileRoot) (*config.Model, error) {
	model := config.NewModel()
	var result *multierror.Error
	fail := func(err error) { result = multierror.Append(result, err) }

	if root.Engine != nil {
		if err := translateEngine(root.Engine, &model.Engine); err != nil {
			fail(err)
		}
	}

	securities := make(map[target.UniqueID]*target.Security, len(root.Securities))
	for _, s := range root.Securities {
		sec, err := translateSecurity(s)
		if err != nil {
			fail(fmt.Errorf("security '%s': %w", s.ID, err))
			continue
		}
		if _, dup := securities[sec.ID]; dup {
			fail(fmt.Errorf("security '%s' is declared twice", s.ID))
			continue
		}
		securities[sec.ID] = sec
		model.Securities = append(model.Securities, sec)
	}

	for _, md := range root.MarketData {
		id, err := target.ParseUniqueID(md.SecurityID)
		if err != nil {
			fail(fmt.Errorf("market_data '%s': %w", md.SecurityID, err))
			continue
		}
		price, err := toDecimal(md.Price)
		if err != nil {
			fail(fmt.Errorf("market_data '%s': price: %w", md.SecurityID, err))
			continue
		}
		model.MarketPrices[id] = price
	}

	for _, fx := range root.FXRates {
		pair, err := normalizePair(fx.Pair)
		if err != nil {
			fail(fmt.Errorf("fx_rate '%s': %w", fx.Pair, err))
			continue
		}
		rate, err := toDecimal(fx.Rate)
		if err != nil {
			fail(fmt.Errorf("fx_rate '%s': rate: %w", fx.Pair, err))
			continue
		}
		if !rate.IsPositive() {
			fail(fmt.Errorf("fx_rate '%s': rate must be positive, got %s", fx.Pair, rate))
			continue
		}
		model.FXRates[pair] = rate
	}

	for _, p := range root.Portfolios {
		pf, err := translatePortfolio(p, securities)
		if err != nil {
			fail(fmt.Errorf("portfolio '%s': %w", p.ID, err))
			continue
		}
		model.Portfolios = append(model.Portfolios, pf)
	}

	views := make(map[string]bool, len(root.Views))
	for _, v := range root.Views {
		if views[v.Name] {
			fail(fmt.Errorf("view '%s' is declared twice", v.Name))
			continue
		}
		views[v.Name] = true
		view, err := translateView(ctx, v)
		if err != nil {
			fail(fmt.Errorf("view '%s': %w", v.Name, err))
			continue
		}
		model.Views = append(model.Views, view)
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return model, nil
}

func translateEngine(b *engineBlock, e *config.Engine) error {
	var result *multierror.Error
	setInt := func(dst *int, src *int, name string, min int) {
		if src == nil {
			return
		}
		if *src < min {
			result = multierror.Append(result, fmt.Errorf("engine: %s must be at least %d, got %d", name, min, *src))
			return
		}
		*dst = *src
	}
	setInt(&e.CalculationNodes, b.CalculationNodes, "calculation_nodes", 1)
	setInt(&e.NodeConcurrency, b.NodeConcurrency, "node_concurrency", 1)
	setInt(&e.MaxRetries, b.MaxRetries, "max_retries", 0)
	setInt(&e.MinJobItems, b.MinJobItems, "min_job_items", 0)
	setInt(&e.MaxJobItems, b.MaxJobItems, "max_job_items", 0)

	if b.CycleTimeout != nil {
		d, err := time.ParseDuration(*b.CycleTimeout)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("engine: cycle_timeout: %w", err))
		} else {
			e.CycleTimeout = d
		}
	}
	if b.Codec != nil {
		e.Codec = *b.Codec
	}
	if b.RemoteCache != nil {
		rc := &config.RemoteCache{URL: b.RemoteCache.URL, Timeout: 2 * time.Second}
		if b.RemoteCache.Timeout != nil {
			d, err := time.ParseDuration(*b.RemoteCache.Timeout)
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("engine: remote_cache timeout: %w", err))
			} else {
				rc.Timeout = d
			}
		}
		e.RemoteCache = rc
	}
	if e.MaxJobItems > 0 && e.MinJobItems > e.MaxJobItems {
		result = multierror.Append(result, fmt.Errorf("engine: min_job_items (%d) exceeds max_job_items (%d)", e.MinJobItems, e.MaxJobItems))
	}
	return result.ErrorOrNil()
}

func translateSecurity(s *securityBlock) (*target.Security, error) {
	id, err := target.ParseUniqueID(s.ID)
	if err != nil {
		return nil, err
	}
	sec := &target.Security{ID: id, Name: deref(s.Name, s.ID), Currency: s.Currency}

	switch s.Kind {
	case "equity":
		sec.Instrument = &target.Equity{Ticker: deref(s.Ticker, id.Value)}
	case "bond":
		coupon, err := toDecimal(s.Coupon)
		if err != nil {
			return nil, fmt.Errorf("coupon: %w", err)
		}
		maturity, err := parseDate(s.Maturity, "maturity")
		if err != nil {
			return nil, err
		}
		sec.Instrument = &target.Bond{Coupon: coupon, Maturity: maturity}
	case "swap":
		if len(s.Legs) == 0 {
			return nil, fmt.Errorf("a swap needs at least one leg")
		}
		swap := &target.Swap{}
		for i, l := range s.Legs {
			notional, err := toDecimal(l.Notional)
			if err != nil {
				return nil, fmt.Errorf("leg %d notional: %w", i, err)
			}
			rate, err := toDecimal(l.Rate)
			if err != nil {
				return nil, fmt.Errorf("leg %d rate: %w", i, err)
			}
			swap.Legs = append(swap.Legs, target.SwapLeg{Currency: l.Currency, Notional: notional, Rate: rate, Pay: l.Pay != nil && *l.Pay})
		}
		sec.Instrument = swap
	case "fx_forward":
		pay, err := toDecimal(s.PayAmount)
		if err != nil {
			return nil, fmt.Errorf("pay_amount: %w", err)
		}
		receive, err := toDecimal(s.ReceiveAmount)
		if err != nil {
			return nil, fmt.Errorf("receive_amount: %w", err)
		}
		settlement, err := parseDate(s.Settlement, "settlement")
		if err != nil {
			return nil, err
		}
		sec.Instrument = &target.FXForward{
			PayCurrency:     deref(s.PayCurrency, ""),
			PayAmount:       pay,
			ReceiveCurrency: deref(s.ReceiveCurrency, ""),
			ReceiveAmount:   receive,
			Settlement:      settlement,
		}
	default:
		return nil, fmt.Errorf("unknown kind %q (expected equity, bond, swap or fx_forward)", s.Kind)
	}
	return sec, nil
}

func translatePortfolio(p *portfolioBlock, securities map[target.UniqueID]*target.Security) (*target.Portfolio, error) {
	id, err := target.ParseUniqueID(p.ID)
	if err != nil {
		return nil, err
	}
	if p.Root == nil {
		return nil, fmt.Errorf("a portfolio needs a root node block")
	}
	root, err := translateNode(p.Root, target.UniqueID{}, securities)
	if err != nil {
		return nil, err
	}
	return &target.Portfolio{ID: id, Name: deref(p.Name, p.ID), Root: root}, nil
}

func translateNode(n *nodeBlock, parent target.UniqueID, securities map[target.UniqueID]*target.Security) (*target.PortfolioNode, error) {
	id, err := target.ParseUniqueID(n.ID)
	if err != nil {
		return nil, fmt.Errorf("node: %w", err)
	}
	node := &target.PortfolioNode{ID: id, Name: deref(n.Name, n.ID), ParentID: parent}

	var result *multierror.Error
	for _, pb := range n.Positions {
		pos, err := translatePosition(pb, securities)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("position '%s': %w", pb.ID, err))
			continue
		}
		node.Positions = append(node.Positions, pos)
	}
	for _, cb := range n.Children {
		child, err := translateNode(cb, id, securities)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		node.Children = append(node.Children, child)
	}
	return node, result.ErrorOrNil()
}

func translatePosition(p *positionBlock, securities map[target.UniqueID]*target.Security) (*target.Position, error) {
	id, err := target.ParseUniqueID(p.ID)
	if err != nil {
		return nil, err
	}
	secID, err := target.ParseUniqueID(p.Security)
	if err != nil {
		return nil, fmt.Errorf("security: %w", err)
	}
	sec, ok := securities[secID]
	if !ok {
		return nil, fmt.Errorf("unknown security '%s'", p.Security)
	}
	qty, err := toDecimal(p.Quantity)
	if err != nil {
		return nil, fmt.Errorf("quantity: %w", err)
	}

	pos := &target.Position{ID: id, Quantity: qty, Security: sec}
	for _, tb := range p.Trades {
		tradeID, err := target.ParseUniqueID(tb.ID)
		if err != nil {
			return nil, fmt.Errorf("trade: %w", err)
		}
		tqty, err := toDecimal(tb.Quantity)
		if err != nil {
			return nil, fmt.Errorf("trade '%s' quantity: %w", tb.ID, err)
		}
		date, err := parseDate(tb.Date, "date")
		if err != nil {
			return nil, fmt.Errorf("trade '%s': %w", tb.ID, err)
		}
		pos.Trades = append(pos.Trades, &target.Trade{
			ID: tradeID, PositionID: id, Quantity: tqty, Security: sec,
			TradeDate: date, Counterparty: deref(tb.Counterparty, ""),
		})
	}
	return pos, nil
}

func translateView(ctx context.Context, v *viewBlock) (*config.View, error) {
	logger := ctxlog.FromContext(ctx)
	view := &config.View{Name: v.Name}
	var result *multierror.Error
	for _, cb := range v.CalcConfigs {
		cc := &config.CalcConfig{Name: cb.Name, Params: cb.Params}
		for _, rb := range cb.Requirements {
			req, err := translateRequirement(rb)
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("calc_config '%s', requirement '%s': %w", cb.Name, rb.ValueName, err))
				continue
			}
			cc.Requirements = append(cc.Requirements, req)
		}
		logger.Debug("Translated calculation configuration.", "view", v.Name, "calc_config", cb.Name, "requirements", len(cc.Requirements))
		view.CalcConfigs = append(view.CalcConfigs, cc)
	}
	return view, result.ErrorOrNil()
}

func translateRequirement(r *requirementBlock) (value.Requirement, error) {
	typ, err := target.ParseType(r.TargetType)
	if err != nil {
		return value.Requirement{}, err
	}
	id, err := target.ParseUniqueID(r.Target)
	if err != nil {
		return value.Requirement{}, err
	}
	props, err := propertiesFromExpr(r.Properties)
	if err != nil {
		return value.Requirement{}, fmt.Errorf("properties: %w", err)
	}
	return value.NewRequirement(r.ValueName, target.NewSpecification(typ, id), props)
}

// toDecimal converts a number attribute without going through float64.
func toDecimal(v cty.Value) (decimal.Decimal, error) {
	if v.IsNull() {
		return decimal.Decimal{}, fmt.Errorf("value is required")
	}
	if !v.IsKnown() || !v.Type().Equals(cty.Number) {
		return decimal.Decimal{}, fmt.Errorf("expected a number, got %s", v.Type().FriendlyName())
	}
	return decimal.NewFromString(v.AsBigFloat().Text('f', -1))
}

func parseDate(s *string, name string) (time.Time, error) {
	if s == nil {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, *s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: expected YYYY-MM-DD: %w", name, err)
	}
	return t, nil
}

// normalizePair accepts "EUR/USD" or "EURUSD".
func normalizePair(s string) (string, error) {
	pair := strings.ToUpper(strings.ReplaceAll(s, "/", ""))
	if len(pair) != 6 {
		return "", fmt.Errorf("expected a currency pair such as EUR/USD")
	}
	return pair, nil
}

func deref[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
