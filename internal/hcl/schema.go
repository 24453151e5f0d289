package hcl

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// fileRoot decodes every top-level block a file may contain.
type fileRoot struct {
	Engine     *engineBlock       `hcl:"engine,block"`
	Securities []*securityBlock   `hcl:"security,block"`
	MarketData []*marketDataBlock `hcl:"market_data,block"`
	FXRates    []*fxRateBlock     `hcl:"fx_rate,block"`
	Portfolios []*portfolioBlock  `hcl:"portfolio,block"`
	Views      []*viewBlock       `hcl:"view,block"`
	Remain     hcl.Body           `hcl:",remain"`
}

// --- Engine settings ---

type engineBlock struct {
	CalculationNodes *int              `hcl:"calculation_nodes,optional"`
	NodeConcurrency  *int              `hcl:"node_concurrency,optional"`
	MaxRetries       *int              `hcl:"max_retries,optional"`
	MinJobItems      *int              `hcl:"min_job_items,optional"`
	MaxJobItems      *int              `hcl:"max_job_items,optional"`
	CycleTimeout     *string           `hcl:"cycle_timeout,optional"`
	Codec            *string           `hcl:"codec,optional"`
	RemoteCache      *remoteCacheBlock `hcl:"remote_cache,block"`
}

type remoteCacheBlock struct {
	URL     string  `hcl:"url"`
	Timeout *string `hcl:"timeout,optional"`
}

// --- Reference data ---

// securityBlock describes a security. Which optional attributes apply
// depends on kind.
type securityBlock struct {
	ID       string  `hcl:"id,label"`
	Kind     string  `hcl:"kind"`
	Currency string  `hcl:"currency"`
	Name     *string `hcl:"name,optional"`

	// equity
	Ticker *string `hcl:"ticker,optional"`
	// bond
	Coupon   cty.Value `hcl:"coupon,optional"`
	Maturity *string   `hcl:"maturity,optional"`
	// swap
	Legs []*legBlock `hcl:"leg,block"`
	// fx_forward
	PayCurrency     *string   `hcl:"pay_currency,optional"`
	PayAmount       cty.Value `hcl:"pay_amount,optional"`
	ReceiveCurrency *string   `hcl:"receive_currency,optional"`
	ReceiveAmount   cty.Value `hcl:"receive_amount,optional"`
	Settlement      *string   `hcl:"settlement,optional"`
}

type legBlock struct {
	Currency string    `hcl:"currency"`
	Notional cty.Value `hcl:"notional"`
	Rate     cty.Value `hcl:"rate"`
	Pay      *bool     `hcl:"pay,optional"`
}

type marketDataBlock struct {
	SecurityID string    `hcl:"security_id,label"`
	Price      cty.Value `hcl:"price"`
}

type fxRateBlock struct {
	Pair string    `hcl:"pair,label"`
	Rate cty.Value `hcl:"rate"`
}

type portfolioBlock struct {
	ID   string     `hcl:"id,label"`
	Name *string    `hcl:"name,optional"`
	Root *nodeBlock `hcl:"node,block"`
}

type nodeBlock struct {
	ID        string           `hcl:"id,label"`
	Name      *string          `hcl:"name,optional"`
	Children  []*nodeBlock     `hcl:"node,block"`
	Positions []*positionBlock `hcl:"position,block"`
}

type positionBlock struct {
	ID       string        `hcl:"id,label"`
	Security string        `hcl:"security"`
	Quantity cty.Value     `hcl:"quantity"`
	Trades   []*tradeBlock `hcl:"trade,block"`
}

type tradeBlock struct {
	ID           string    `hcl:"id,label"`
	Quantity     cty.Value `hcl:"quantity"`
	Date         *string   `hcl:"date,optional"`
	Counterparty *string   `hcl:"counterparty,optional"`
}

// --- Views ---

type viewBlock struct {
	Name        string             `hcl:"name,label"`
	CalcConfigs []*calcConfigBlock `hcl:"calc_config,block"`
}

type calcConfigBlock struct {
	Name         string              `hcl:"name,label"`
	Params       map[string]string   `hcl:"params,optional"`
	Requirements []*requirementBlock `hcl:"requirement,block"`
}

type requirementBlock struct {
	ValueName  string         `hcl:"value_name,label"`
	TargetType string         `hcl:"target_type"`
	Target     string         `hcl:"target"`
	Properties hcl.Expression `hcl:"properties,optional"`
}
