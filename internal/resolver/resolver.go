// Package resolver turns target specifications into resolved targets by
// delegating to a backend chosen by the unique id's scheme.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/specialistvlad/valuegrid/internal/ctxlog"
	"github.com/specialistvlad/valuegrid/internal/target"
)

// ErrNotFound is returned by backends when an id is unknown to them.
var ErrNotFound = errors.New("target not found")

// NotFoundError reports a specification no backend could resolve.
type NotFoundError struct {
	Spec target.Specification
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("target %s not found", e.Spec)
}

// Unwrap lets errors.Is match ErrNotFound.
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// UnsupportedSchemeError reports a scheme with no registered backend when no
// default backend is configured.
type UnsupportedSchemeError struct {
	Scheme string
}

func (e *UnsupportedSchemeError) Error() string {
	return fmt.Sprintf("no resolver registered for scheme %q", e.Scheme)
}

// Backend is the capability set of one source of targets.
//
//go:generate mockgen -destination=mocks/backend.go -package=mocks . Backend
type Backend interface {
	ResolvePortfolio(ctx context.Context, id target.UniqueID) (*target.Portfolio, error)
	ResolvePortfolioNode(ctx context.Context, id target.UniqueID) (*target.PortfolioNode, error)
	ResolvePosition(ctx context.Context, id target.UniqueID) (*target.Position, error)
	ResolveTrade(ctx context.Context, id target.UniqueID) (*target.Trade, error)
	ResolveSecurity(ctx context.Context, id target.UniqueID) (*target.Security, error)
}

// TargetResolver is what the graph builder and calculation nodes depend on.
type TargetResolver interface {
	Resolve(ctx context.Context, spec target.Specification) (target.Target, error)
}

// Resolver routes specifications to backends by scheme, falling back to a
// default backend. Registration happens at startup; resolution is safe for
// concurrent use.
type Resolver struct {
	mu       sync.RWMutex
	backends map[string]Backend
	fallback Backend
}

// NewResolver creates a resolver. fallback may be nil, in which case ids
// with an unregistered scheme fail with UnsupportedSchemeError.
func NewResolver(fallback Backend) *Resolver {
	return &Resolver{
		backends: make(map[string]Backend),
		fallback: fallback,
	}
}

// Register routes scheme to backend, replacing any previous registration.
func (r *Resolver) Register(scheme string, backend Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[scheme] = backend
}

// Schemes returns the registered schemes in sorted order.
func (r *Resolver) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.backends))
	for s := range r.backends {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (r *Resolver) backendFor(scheme string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b, ok := r.backends[scheme]; ok {
		return b, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, &UnsupportedSchemeError{Scheme: scheme}
}

// Resolve returns the target spec refers to.
func (r *Resolver) Resolve(ctx context.Context, spec target.Specification) (target.Target, error) {
	logger := ctxlog.FromContext(ctx)

	if spec.Type == target.TypePrimitive {
		return &target.Primitive{ID: spec.ID}, nil
	}

	backend, err := r.backendFor(spec.ID.Scheme)
	if err != nil {
		return nil, err
	}

	var resolved target.Target
	switch spec.Type {
	case target.TypePortfolio:
		var v *target.Portfolio
		if v, err = backend.ResolvePortfolio(ctx, spec.ID); v != nil {
			resolved = v
		}
	case target.TypePortfolioNode:
		var v *target.PortfolioNode
		if v, err = backend.ResolvePortfolioNode(ctx, spec.ID); v != nil {
			resolved = v
		}
	case target.TypePosition:
		var v *target.Position
		if v, err = backend.ResolvePosition(ctx, spec.ID); v != nil {
			resolved = v
		}
	case target.TypeTrade:
		var v *target.Trade
		if v, err = backend.ResolveTrade(ctx, spec.ID); v != nil {
			resolved = v
		}
	case target.TypeSecurity:
		var v *target.Security
		if v, err = backend.ResolveSecurity(ctx, spec.ID); v != nil {
			resolved = v
		}
	default:
		return nil, fmt.Errorf("resolve %s: %w", spec, target.ErrInvalidType)
	}
	if err == nil && resolved == nil {
		err = ErrNotFound
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			logger.Debug("Target not found.", "target", spec.String())
			return nil, &NotFoundError{Spec: spec}
		}
		return nil, fmt.Errorf("resolve %s: %w", spec, err)
	}
	return resolved, nil
}
