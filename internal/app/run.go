package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/grafana/pyroscope-go"
	"github.com/specialistvlad/valuegrid/internal/config"
	"github.com/specialistvlad/valuegrid/internal/ctxlog"
	"github.com/specialistvlad/valuegrid/internal/inmemorystore"
	"github.com/specialistvlad/valuegrid/internal/localsession"
	"github.com/specialistvlad/valuegrid/internal/remotecache"
)

// ErrIncompleteCycle is returned by Run when a cycle left a requested value
// uncomputed. The results of every cycle are still printed.
var ErrIncompleteCycle = errors.New("cycle did not compute every requested value")

// Run computes the configured view for the configured number of cycles and
// prints the results of each.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.ctx = ctx
	a.logger.Debug("App.Run method started.")

	view, err := a.selectView()
	if err != nil {
		return err
	}

	stopProfiler, err := a.startProfiler()
	if err != nil {
		return err
	}
	defer stopProfiler()

	sess, err := a.sessions.NewSession(ctx, a.model, a.modules...)
	if err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	defer func() {
		if err := sess.Close(context.WithoutCancel(ctx)); err != nil {
			a.logger.Error("Failed to close session.", "error", err)
		}
	}()

	a.healthCheckServer(sess.Metrics())
	defer a.closeHealthCheckServer()

	def := localsession.ViewDefinition(view)
	incomplete := 0
	a.logger.Info("🚀 Starting view computation...", "view", view.Name, "cycles", a.config.Cycles)
	for i := 0; i < a.config.Cycles; i++ {
		if i > 0 && a.config.CycleInterval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(a.config.CycleInterval):
			}
		}
		result, err := sess.Engine().RunCycle(ctx, def)
		if err != nil {
			return fmt.Errorf("cycle %d failed: %w", i+1, err)
		}
		if err := printResult(a.outW, result); err != nil {
			return err
		}
		if !result.Succeeded() {
			incomplete++
		}
	}
	a.logger.Info("🏁 View computation finished.", "view", view.Name, "incomplete_cycles", incomplete)

	if incomplete > 0 {
		return fmt.Errorf("%w: %d of %d cycle(s)", ErrIncompleteCycle, incomplete, a.config.Cycles)
	}
	return nil
}

func (a *App) selectView() (*config.View, error) {
	if a.config.View != "" {
		v, ok := a.model.View(a.config.View)
		if !ok {
			return nil, fmt.Errorf("view %q is not configured", a.config.View)
		}
		return v, nil
	}
	switch len(a.model.Views) {
	case 0:
		return nil, errors.New("no view is configured")
	case 1:
		return a.model.Views[0], nil
	default:
		return nil, fmt.Errorf("%d views are configured; select one by name", len(a.model.Views))
	}
}

// ServeCache runs the shared remote cache server until ctx is cancelled.
func (a *App) ServeCache(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.ctx = ctx

	stopProfiler, err := a.startProfiler()
	if err != nil {
		return err
	}
	defer stopProfiler()

	server := remotecache.NewServer(ctx, inmemorystore.New())
	return server.ListenAndServe(ctx, a.config.CacheAddr)
}

func (a *App) startProfiler() (func(), error) {
	if a.config.ProfileServer == "" {
		return func() {}, nil
	}
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: "valuegrid",
		ServerAddress:   a.config.ProfileServer,
		Logger:          profilerLogger{logger: a.logger.With("component", "profiler")},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start profiler: %w", err)
	}
	a.logger.Info("🔥 Continuous profiling enabled.", "server", a.config.ProfileServer)
	return func() { _ = profiler.Stop() }, nil
}
