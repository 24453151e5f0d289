// Package session defines the core interfaces for creating and managing the
// services behind a running engine. It abstracts away whether calculation
// nodes and caches are local or remote.
package session

import (
	"context"

	"github.com/specialistvlad/valuegrid/internal/config"
	"github.com/specialistvlad/valuegrid/internal/engine"
	"github.com/specialistvlad/valuegrid/internal/metrics"
	"github.com/specialistvlad/valuegrid/internal/registry"
)

// SessionFactory creates a Session from a loaded configuration. Different
// implementations can support various backends, such as in-process or
// distributed calculation nodes.
type SessionFactory interface {
	NewSession(ctx context.Context, cfg *config.Model, modules ...registry.Module) (Session, error)
}

// Session owns the services of one engine instance.
type Session interface {
	Engine() *engine.Engine
	// Metrics may return nil.
	Metrics() *metrics.Metrics
	// Close releases any resources held by the session. It accepts a context
	// to allow for graceful cleanup operations.
	Close(ctx context.Context) error
}
