package inmemorystore

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Store is an in-memory byte store with one sync.Map per cycle.
type Store struct {
	cycles sync.Map // Key: uuid.UUID, Value: *partition
}

type partition struct {
	values sync.Map // Key: cache key string, Value: []byte
	size   atomic.Int64
}

// New creates a new, empty store.
func New() *Store {
	return &Store{}
}

func (s *Store) partition(cycleID uuid.UUID, create bool) *partition {
	if p, ok := s.cycles.Load(cycleID); ok {
		return p.(*partition)
	}
	if !create {
		return nil
	}
	p, _ := s.cycles.LoadOrStore(cycleID, &partition{})
	return p.(*partition)
}

// Get returns a copy of the bytes stored under key in the cycle's namespace.
// The error is always nil; it is part of the signature shared with remote
// stores.
func (s *Store) Get(_ context.Context, cycleID uuid.UUID, key string) ([]byte, bool, error) {
	p := s.partition(cycleID, false)
	if p == nil {
		return nil, false, nil
	}
	v, ok := p.values.Load(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v.([]byte)...), true, nil
}

// Put stores a copy of data under key, replacing any previous value.
func (s *Store) Put(_ context.Context, cycleID uuid.UUID, key string, data []byte) error {
	p := s.partition(cycleID, true)
	if _, loaded := p.values.Swap(key, append([]byte(nil), data...)); !loaded {
		p.size.Add(1)
	}
	return nil
}

// Purge discards every value of the cycle.
func (s *Store) Purge(_ context.Context, cycleID uuid.UUID) error {
	s.cycles.Delete(cycleID)
	return nil
}

// Len returns the number of values stored for the cycle.
func (s *Store) Len(cycleID uuid.UUID) int {
	p := s.partition(cycleID, false)
	if p == nil {
		return 0
	}
	return int(p.size.Load())
}

// Cycles returns the number of cycles with stored values.
func (s *Store) Cycles() int {
	n := 0
	s.cycles.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
