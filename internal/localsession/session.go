// Package localsession provides a concrete implementation of the
// session.Session and session.SessionFactory interfaces for in-process
// calculation nodes, optionally sharing a remote cache tier.
package localsession

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/specialistvlad/valuegrid/internal/cache"
	"github.com/specialistvlad/valuegrid/internal/calcnode"
	"github.com/specialistvlad/valuegrid/internal/codec"
	"github.com/specialistvlad/valuegrid/internal/config"
	"github.com/specialistvlad/valuegrid/internal/ctxlog"
	"github.com/specialistvlad/valuegrid/internal/dispatcher"
	"github.com/specialistvlad/valuegrid/internal/engine"
	"github.com/specialistvlad/valuegrid/internal/inmemorystore"
	"github.com/specialistvlad/valuegrid/internal/metrics"
	"github.com/specialistvlad/valuegrid/internal/registry"
	"github.com/specialistvlad/valuegrid/internal/remotecache"
	"github.com/specialistvlad/valuegrid/internal/resolver"
	"github.com/specialistvlad/valuegrid/internal/session"
	"github.com/specialistvlad/valuegrid/internal/source"
	"github.com/specialistvlad/valuegrid/modules/marketdata"
)

// SessionFactory implements session.SessionFactory for local runs.
type SessionFactory struct{}

var _ session.SessionFactory = (*SessionFactory)(nil)

// NewSession creates and wires every engine service. The market data in cfg
// is always registered; modules add the functions computing on top of it.
func (f *SessionFactory) NewSession(ctx context.Context, cfg *config.Model, modules ...registry.Module) (session.Session, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Creating local session.", "calculation_nodes", cfg.Engine.CalculationNodes)

	// --- This is where the dependency injection wiring happens ---
	src, err := newSource(cfg)
	if err != nil {
		return nil, err
	}
	res := resolver.NewResolver(src)

	reg := registry.New()
	(&marketdata.Module{Prices: cfg.MarketPrices, FXRates: cfg.FXRates}).Register(reg)
	for _, mod := range modules {
		mod.Register(reg)
	}
	if err := reg.Validate(ctx); err != nil {
		return nil, err
	}
	logger.Debug("Functions registered.", "modules", len(modules)+1, "functions", reg.Len())

	codecs := codec.Default()
	if _, err := codecs.Lookup(cfg.Engine.Codec); err != nil {
		return nil, err
	}

	s := &Session{source: src, registry: reg, metrics: metrics.New()}
	opts := []cache.Option{cache.WithCodec(codecs, cfg.Engine.Codec), cache.WithObserver(s.metrics)}
	if rc := cfg.Engine.RemoteCache; rc != nil {
		s.remote, err = remotecache.Dial(ctx, rc.URL, rc.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to remote cache: %w", err)
		}
		opts = append(opts, cache.WithRemote(s.remote))
		logger.Info("🗄️ Using remote cache.", "url", rc.URL)
	}
	s.caches = cache.NewManager(inmemorystore.New(), opts...)

	nodes := make([]calcnode.Node, cfg.Engine.CalculationNodes)
	for i := range nodes {
		nodes[i] = calcnode.NewLocalNode(fmt.Sprintf("node-%d", i+1), cfg.Engine.NodeConcurrency, reg, res, s.caches)
	}
	s.dispatcher = dispatcher.New(dispatcher.Config{MaxRetries: cfg.Engine.MaxRetries}, s.metrics, nodes...)
	if err := s.dispatcher.Start(ctx); err != nil {
		s.closeRemote()
		return nil, err
	}

	s.engine, err = engine.New(engine.Deps{
		Registry:   reg,
		Resolver:   res,
		Dispatcher: s.dispatcher,
		Caches:     s.caches,
		Metrics:    s.metrics,
		Config: engine.Config{
			MinJobItems:  cfg.Engine.MinJobItems,
			MaxJobItems:  cfg.Engine.MaxJobItems,
			CycleTimeout: cfg.Engine.CycleTimeout,
		},
	})
	if err != nil {
		_ = s.Close(ctx)
		return nil, err
	}
	// --- End of dependency injection ---

	return s, nil
}

func newSource(cfg *config.Model) (*source.Memory, error) {
	src := source.NewMemory()
	for _, sec := range cfg.Securities {
		src.AddSecurity(sec)
	}
	var result *multierror.Error
	for _, pf := range cfg.Portfolios {
		if err := src.AddPortfolio(pf); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("failed to load portfolios: %w", err)
	}
	return src, nil
}

// Session implements session.Session for local runs.
type Session struct {
	source     *source.Memory
	registry   *registry.Registry
	metrics    *metrics.Metrics
	caches     *cache.Manager
	dispatcher *dispatcher.Dispatcher
	remote     *remotecache.Client
	engine     *engine.Engine
}

var _ session.Session = (*Session)(nil)

// Engine returns the engine that was created and wired up by the factory.
func (s *Session) Engine() *engine.Engine { return s.engine }

func (s *Session) Metrics() *metrics.Metrics { return s.metrics }

// Registry returns the function registry. This is primarily for testing.
func (s *Session) Registry() *registry.Registry { return s.registry }

// Close stops the calculation nodes and disconnects from the remote cache.
func (s *Session) Close(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Closing local session.", "active_cycles", s.caches.ActiveCycles())
	err := s.dispatcher.Stop()
	s.closeRemote()
	return err
}

func (s *Session) closeRemote() {
	if s.remote != nil {
		s.remote.Close()
	}
}

// ViewDefinition converts a configured view into the engine's form.
func ViewDefinition(v *config.View) *engine.ViewDefinition {
	def := &engine.ViewDefinition{Name: v.Name}
	for _, cc := range v.CalcConfigs {
		def.CalcConfigs = append(def.CalcConfigs, engine.CalcConfig{
			Name:         cc.Name,
			Requirements: cc.Requirements,
			Params:       cc.Params,
		})
	}
	return def
}
