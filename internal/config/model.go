package config

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/specialistvlad/valuegrid/internal/target"
	"github.com/specialistvlad/valuegrid/internal/value"
)

// Model is the unified, format-agnostic representation of the entire
// application configuration.
type Model struct {
	Engine Engine

	Securities []*target.Security
	Portfolios []*target.Portfolio
	// MarketPrices maps a security id to its price in the security currency.
	MarketPrices map[target.UniqueID]decimal.Decimal
	// FXRates maps a currency pair such as "EURUSD" to the amount of quote
	// currency one unit of base currency buys.
	FXRates map[string]decimal.Decimal

	Views []*View
}

// NewModel returns an empty model with default engine settings.
func NewModel() *Model {
	return &Model{
		Engine:       DefaultEngine(),
		MarketPrices: make(map[target.UniqueID]decimal.Decimal),
		FXRates:      make(map[string]decimal.Decimal),
	}
}

// View returns the view with the given name.
func (m *Model) View(name string) (*View, bool) {
	for _, v := range m.Views {
		if v.Name == name {
			return v, true
		}
	}
	return nil, false
}

// Engine holds the settings of the calculation engine.
type Engine struct {
	CalculationNodes int
	NodeConcurrency  int
	MaxRetries       int
	MinJobItems      int
	MaxJobItems      int
	CycleTimeout     time.Duration
	// Codec is the tag of the codec values are stored with.
	Codec       string
	RemoteCache *RemoteCache
}

// DefaultEngine returns the settings used when the configuration is silent.
func DefaultEngine() Engine {
	return Engine{
		CalculationNodes: 1,
		NodeConcurrency:  4,
		MaxRetries:       2,
		MinJobItems:      1,
		MaxJobItems:      32,
		CycleTimeout:     30 * time.Second,
		Codec:            "cty-msgpack",
	}
}

// RemoteCache points at a shared cache server.
type RemoteCache struct {
	URL     string
	Timeout time.Duration
}

// View is a named set of calculation configurations.
type View struct {
	Name        string
	CalcConfigs []*CalcConfig
}

// CalcConfig lists the values one calculation configuration requests.
type CalcConfig struct {
	Name         string
	Params       map[string]string
	Requirements []value.Requirement
}
