// Package source provides an in-memory Backend holding snapshots of
// portfolios, positions, trades and securities.
package source

import (
	"context"
	"fmt"
	"sync"

	"github.com/specialistvlad/valuegrid/internal/resolver"
	"github.com/specialistvlad/valuegrid/internal/target"
)

// Memory is a thread-safe in-memory resolver.Backend.
type Memory struct {
	mu         sync.RWMutex
	portfolios map[target.UniqueID]*target.Portfolio
	nodes      map[target.UniqueID]*target.PortfolioNode
	positions  map[target.UniqueID]*target.Position
	trades     map[target.UniqueID]*target.Trade
	securities map[target.UniqueID]*target.Security
}

var _ resolver.Backend = (*Memory)(nil)

// NewMemory creates an empty source.
func NewMemory() *Memory {
	return &Memory{
		portfolios: make(map[target.UniqueID]*target.Portfolio),
		nodes:      make(map[target.UniqueID]*target.PortfolioNode),
		positions:  make(map[target.UniqueID]*target.Position),
		trades:     make(map[target.UniqueID]*target.Trade),
		securities: make(map[target.UniqueID]*target.Security),
	}
}

// AddSecurity stores sec, replacing any security with the same id.
func (m *Memory) AddSecurity(sec *target.Security) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.securities[sec.ID] = sec
}

// AddPosition stores pos and its trades.
func (m *Memory) AddPosition(pos *target.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addPositionLocked(pos)
}

func (m *Memory) addPositionLocked(pos *target.Position) {
	m.positions[pos.ID] = pos
	if pos.Security != nil {
		m.securities[pos.Security.ID] = pos.Security
	}
	for _, trade := range pos.Trades {
		m.trades[trade.ID] = trade
	}
}

// AddPortfolio stores pf together with every node and position reachable
// from its root. Node ids must be unique across the source.
func (m *Memory) AddPortfolio(pf *target.Portfolio) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pf.Root == nil {
		return fmt.Errorf("portfolio %s has no root node", pf.ID)
	}

	var walk func(n *target.PortfolioNode) error
	walk = func(n *target.PortfolioNode) error {
		if existing, ok := m.nodes[n.ID]; ok && existing != n {
			return fmt.Errorf("portfolio node %s is defined more than once", n.ID)
		}
		m.nodes[n.ID] = n
		for _, pos := range n.Positions {
			m.addPositionLocked(pos)
		}
		for _, child := range n.Children {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(pf.Root); err != nil {
		return err
	}
	m.portfolios[pf.ID] = pf
	return nil
}

func (m *Memory) ResolvePortfolio(_ context.Context, id target.UniqueID) (*target.Portfolio, error) {
	return lookup(&m.mu, m.portfolios, id)
}

func (m *Memory) ResolvePortfolioNode(_ context.Context, id target.UniqueID) (*target.PortfolioNode, error) {
	return lookup(&m.mu, m.nodes, id)
}

func (m *Memory) ResolvePosition(_ context.Context, id target.UniqueID) (*target.Position, error) {
	return lookup(&m.mu, m.positions, id)
}

func (m *Memory) ResolveTrade(_ context.Context, id target.UniqueID) (*target.Trade, error) {
	return lookup(&m.mu, m.trades, id)
}

func (m *Memory) ResolveSecurity(_ context.Context, id target.UniqueID) (*target.Security, error) {
	return lookup(&m.mu, m.securities, id)
}

// Portfolios returns the number of stored portfolios.
func (m *Memory) Portfolios() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.portfolios)
}

func lookup[T any](mu *sync.RWMutex, items map[target.UniqueID]*T, id target.UniqueID) (*T, error) {
	mu.RLock()
	defer mu.RUnlock()
	v, ok := items[id]
	if !ok {
		return nil, resolver.ErrNotFound
	}
	return v, nil
}
