package target

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Target is a resolved computation target. The set of implementations is
// closed to this package.
type Target interface {
	// Spec returns the reference that resolves to this target.
	Spec() Specification
	sealed()
}

// Primitive is a target identified only by its id, such as a currency pair
// or a curve name. It needs no backend to resolve.
type Primitive struct {
	ID UniqueID
}

// Position is a quantity of a security held in a portfolio.
type Position struct {
	ID       UniqueID
	Quantity decimal.Decimal
	Security *Security
	Trades   []*Trade
}

// PortfolioNode is a node of a portfolio hierarchy.
type PortfolioNode struct {
	ID        UniqueID
	Name      string
	ParentID  UniqueID
	Children  []*PortfolioNode
	Positions []*Position
}

// Portfolio is a named hierarchy of positions.
type Portfolio struct {
	ID   UniqueID
	Name string
	Root *PortfolioNode
}

// Trade is a single transaction contributing to a position.
type Trade struct {
	ID           UniqueID
	PositionID   UniqueID
	Quantity     decimal.Decimal
	Security     *Security
	TradeDate    time.Time
	Counterparty string
}

// Security is a tradable instrument.
type Security struct {
	ID         UniqueID
	Name       string
	Currency   string
	Instrument Instrument
}

func (t *Primitive) Spec() Specification     { return Specification{Type: TypePrimitive, ID: t.ID} }
func (t *Position) Spec() Specification      { return Specification{Type: TypePosition, ID: t.ID} }
func (t *PortfolioNode) Spec() Specification { return Specification{Type: TypePortfolioNode, ID: t.ID} }
func (t *Portfolio) Spec() Specification     { return Specification{Type: TypePortfolio, ID: t.ID} }
func (t *Trade) Spec() Specification         { return Specification{Type: TypeTrade, ID: t.ID} }
func (t *Security) Spec() Specification      { return Specification{Type: TypeSecurity, ID: t.ID} }

func (*Primitive) sealed()     {}
func (*Position) sealed()      {}
func (*PortfolioNode) sealed() {}
func (*Portfolio) sealed()     {}
func (*Trade) sealed()         {}
func (*Security) sealed()      {}

// Matcher dispatches on every target kind. Adding a kind adds a method here,
// which breaks every implementation until it handles the new kind.
type Matcher[R any] interface {
	Primitive(*Primitive) R
	Position(*Position) R
	PortfolioNode(*PortfolioNode) R
	Portfolio(*Portfolio) R
	Trade(*Trade) R
	Security(*Security) R
}

// Match calls the matcher method corresponding to the kind of t.
func Match[R any](t Target, m Matcher[R]) R {
	switch v := t.(type) {
	case *Primitive:
		return m.Primitive(v)
	case *Position:
		return m.Position(v)
	case *PortfolioNode:
		return m.PortfolioNode(v)
	case *Portfolio:
		return m.Portfolio(v)
	case *Trade:
		return m.Trade(v)
	case *Security:
		return m.Security(v)
	default:
		// Unreachable: Target is sealed.
		panic(fmt.Sprintf("target: unknown target kind %T", t))
	}
}

// TypeOf returns the kind of a resolved target.
func TypeOf(t Target) Type {
	if t == nil {
		return TypeUnknown
	}
	return t.Spec().Type
}

// AllPositions returns every position under the node, depth first, direct
// positions before those of child nodes.
func (n *PortfolioNode) AllPositions() []*Position {
	var out []*Position
	var walk func(*PortfolioNode)
	walk = func(node *PortfolioNode) {
		out = append(out, node.Positions...)
		for _, child := range node.Children {
			walk(child)
		}
	}
	walk(n)
	return out
}
