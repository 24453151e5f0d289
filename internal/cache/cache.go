// Package cache implements the two-tier view computation cache: a local
// store in every process, backed by an optional remote store shared by all
// calculation nodes.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/specialistvlad/valuegrid/internal/codec"
	"github.com/specialistvlad/valuegrid/internal/ctxlog"
	"github.com/specialistvlad/valuegrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// ErrCacheUnavailable wraps failures of the remote tier. The cache keeps
// working from the local tier when it occurs.
var ErrCacheUnavailable = errors.New("remote cache unavailable")

// Store is a byte store partitioned by cycle. The local tier never fails;
// the remote tier may.
type Store interface {
	Get(ctx context.Context, cycleID uuid.UUID, key string) ([]byte, bool, error)
	Put(ctx context.Context, cycleID uuid.UUID, key string, data []byte) error
	Purge(ctx context.Context, cycleID uuid.UUID) error
}

// Observer is told about every lookup. tier is "local" or "remote".
type Observer interface {
	CacheLookup(tier string, hit bool)
}

// Key identifies a value within the cache.
type Key struct {
	CycleID    uuid.UUID
	CalcConfig string
	Spec       value.Specification
}

// String is the canonical form, unique within a cycle namespace.
func (k Key) String() string {
	return k.CalcConfig + "/" + k.Spec.Key()
}

// Manager hands out per-cycle caches sharing one local and one remote store.
type Manager struct {
	local    Store
	remote   Store
	codecs   *codec.Registry
	tag      string
	observer Observer

	mu       sync.Mutex
	cycles   map[uuid.UUID]bool
	released map[uuid.UUID]bool
	// order lists released cycles oldest first, bounded by releasedHistory.
	order []uuid.UUID

	// writes is held for reading by every store write and for writing while
	// a cycle is marked released, so no write lands after its purge.
	writes sync.RWMutex
}

// releasedHistory bounds how many released cycles are remembered to reject
// writes from jobs that finish after their cycle.
const releasedHistory = 1024

// Option customizes a Manager.
type Option func(*Manager)

// WithRemote sets the shared remote tier.
func WithRemote(remote Store) Option {
	return func(m *Manager) { m.remote = remote }
}

// WithCodec selects the codec used to encode values.
func WithCodec(codecs *codec.Registry, tag string) Option {
	return func(m *Manager) {
		m.codecs = codecs
		m.tag = tag
	}
}

// WithObserver reports lookups to o.
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// NewManager creates a manager over the local store.
func NewManager(local Store, opts ...Option) *Manager {
	m := &Manager{
		local:  local,
		codecs: codec.Default(),
		tag:    codec.TagMsgpack,
		cycles:   make(map[uuid.UUID]bool),
		released: make(map[uuid.UUID]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ForCycle returns the cache of one calculation configuration within a cycle.
func (m *Manager) ForCycle(cycleID uuid.UUID, calcConfig string) *ViewComputationCache {
	m.mu.Lock()
	if !m.released[cycleID] {
		m.cycles[cycleID] = true
	}
	m.mu.Unlock()
	return &ViewComputationCache{manager: m, cycleID: cycleID, calcConfig: calcConfig}
}

// ActiveCycles returns the number of cycles not yet released.
func (m *Manager) ActiveCycles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cycles)
}

// ReleaseCycle discards the values of a finished cycle from both tiers.
// Later writes for the cycle, from jobs still running when it was cancelled
// or timed out, are dropped.
func (m *Manager) ReleaseCycle(ctx context.Context, cycleID uuid.UUID) {
	m.writes.Lock()
	m.mu.Lock()
	delete(m.cycles, cycleID)
	if !m.released[cycleID] {
		m.released[cycleID] = true
		m.order = append(m.order, cycleID)
		if len(m.order) > releasedHistory {
			delete(m.released, m.order[0])
			m.order = m.order[1:]
		}
	}
	m.mu.Unlock()
	m.writes.Unlock()

	_ = m.local.Purge(ctx, cycleID)
	if m.remote != nil {
		if err := m.remote.Purge(ctx, cycleID); err != nil {
			ctxlog.FromContext(ctx).Warn("Failed to purge cycle from remote cache.",
				"cycle_id", cycleID, "error", fmt.Errorf("%w: %w", ErrCacheUnavailable, err))
		}
	}
}

// Released reports whether the cycle has been released.
func (m *Manager) Released(cycleID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released[cycleID]
}

func (m *Manager) observe(tier string, hit bool) {
	if m.observer != nil {
		m.observer.CacheLookup(tier, hit)
	}
}

// ViewComputationCache holds the values of one calculation configuration
// in one cycle. It is safe for concurrent use.
type ViewComputationCache struct {
	manager    *Manager
	cycleID    uuid.UUID
	calcConfig string
}

// CycleID returns the cycle the cache belongs to.
func (c *ViewComputationCache) CycleID() uuid.UUID { return c.cycleID }

// Key returns the cache key of spec.
func (c *ViewComputationCache) Key(spec value.Specification) Key {
	return Key{CycleID: c.cycleID, CalcConfig: c.calcConfig, Spec: spec}
}

// Get looks spec up locally and then remotely. A remote hit is written back
// to the local tier.
func (c *ViewComputationCache) Get(ctx context.Context, spec value.Specification) ([]byte, bool) {
	m := c.manager
	key := c.Key(spec).String()

	if data, ok, _ := m.local.Get(ctx, c.cycleID, key); ok {
		m.observe("local", true)
		return data, true
	}
	m.observe("local", false)
	if m.remote == nil {
		return nil, false
	}

	data, ok, err := m.remote.Get(ctx, c.cycleID, key)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("Remote cache lookup failed, continuing with local values only.",
			"key", key, "error", fmt.Errorf("%w: %w", ErrCacheUnavailable, err))
		return nil, false
	}
	m.observe("remote", ok)
	if !ok {
		return nil, false
	}
	m.writes.RLock()
	if !m.Released(c.cycleID) {
		_ = m.local.Put(ctx, c.cycleID, key, data)
	}
	m.writes.RUnlock()
	return data, true
}

// Put stores data locally and then remotely, both synchronously, so that a
// value is visible to every node once Put returns. A remote failure is
// logged and does not fail the call. Writes to a released cycle are dropped.
func (c *ViewComputationCache) Put(ctx context.Context, spec value.Specification, data []byte) error {
	m := c.manager
	key := c.Key(spec).String()

	m.writes.RLock()
	defer m.writes.RUnlock()
	if m.Released(c.cycleID) {
		ctxlog.FromContext(ctx).Debug("Dropping write to a released cycle.", "cycle_id", c.cycleID, "key", key)
		return nil
	}

	if err := m.local.Put(ctx, c.cycleID, key, data); err != nil {
		return fmt.Errorf("store %s locally: %w", key, err)
	}
	if m.remote == nil {
		return nil
	}
	if err := m.remote.Put(ctx, c.cycleID, key, data); err != nil {
		ctxlog.FromContext(ctx).Warn("Remote cache write failed, value stored locally only.",
			"key", key, "error", fmt.Errorf("%w: %w", ErrCacheUnavailable, err))
	}
	return nil
}

// GetValue returns the decoded value of spec.
func (c *ViewComputationCache) GetValue(ctx context.Context, spec value.Specification) (cty.Value, bool, error) {
	data, ok := c.Get(ctx, spec)
	if !ok {
		return cty.NilVal, false, nil
	}
	v, err := c.manager.codecs.Decode(data)
	if err != nil {
		return cty.NilVal, false, fmt.Errorf("decode %s: %w", spec, err)
	}
	return v, true, nil
}

// PutValue encodes v with the configured codec and stores it.
func (c *ViewComputationCache) PutValue(ctx context.Context, spec value.Specification, v cty.Value) error {
	data, err := c.manager.codecs.Encode(c.manager.tag, v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", spec, err)
	}
	return c.Put(ctx, spec, data)
}
