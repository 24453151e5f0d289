package registry

import (
	"cmp"

	"github.com/specialistvlad/valuegrid/internal/target"
)

// Rule binds a function to the targets it may be used for and its priority
// relative to other functions producing the same value.
type Rule struct {
	Function Function
	Filter   TargetFilter
	Priority int

	order int
}

// Order is the registration sequence number of the rule.
func (r *Rule) Order() int { return r.order }

// compareRules orders by descending priority; SortStable keeps registration
// order among equal priorities.
func compareRules(a, b *Rule) int {
	if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
		return c
	}
	return cmp.Compare(a.order, b.order)
}

// RuleOption customizes a rule at registration.
type RuleOption func(*Rule)

// WithPriority sets the rule priority. Higher wins.
func WithPriority(p int) RuleOption {
	return func(r *Rule) { r.Priority = p }
}

// WithFilter restricts the targets the rule applies to.
func WithFilter(f TargetFilter) RuleOption {
	return func(r *Rule) { r.Filter = f }
}

// TargetFilter decides whether a rule may be used for a target.
type TargetFilter interface {
	Accept(t target.Target) bool
}

// TargetFilterFunc adapts a function to TargetFilter.
type TargetFilterFunc func(target.Target) bool

func (f TargetFilterFunc) Accept(t target.Target) bool { return f(t) }

// ApplyToAll accepts every target.
var ApplyToAll TargetFilter = TargetFilterFunc(func(target.Target) bool { return true })

// ApplyToTargets accepts only the listed targets.
func ApplyToTargets(ids ...target.UniqueID) TargetFilter {
	set := make(map[target.UniqueID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return TargetFilterFunc(func(t target.Target) bool {
		_, ok := set[t.Spec().ID]
		return ok
	})
}

// ApplyToSchemes accepts targets whose id belongs to one of the schemes.
func ApplyToSchemes(schemes ...string) TargetFilter {
	set := make(map[string]struct{}, len(schemes))
	for _, s := range schemes {
		set[s] = struct{}{}
	}
	return TargetFilterFunc(func(t target.Target) bool {
		_, ok := set[t.Spec().ID.Scheme]
		return ok
	})
}

// ApplyToSubtree accepts root, its descendant nodes and every position and
// trade held beneath it. Other targets are rejected.
func ApplyToSubtree(root *target.PortfolioNode) TargetFilter {
	members := map[target.UniqueID]struct{}{}
	var walk func(*target.PortfolioNode)
	walk = func(n *target.PortfolioNode) {
		members[n.ID] = struct{}{}
		for _, pos := range n.Positions {
			members[pos.ID] = struct{}{}
			for _, trade := range pos.Trades {
				members[trade.ID] = struct{}{}
			}
		}
		for _, child := range n.Children {
			walk(child)
		}
	}
	walk(root)
	return TargetFilterFunc(func(t target.Target) bool {
		switch t.(type) {
		case *target.PortfolioNode, *target.Position, *target.Trade:
			_, ok := members[t.Spec().ID]
			return ok
		default:
			return false
		}
	})
}
