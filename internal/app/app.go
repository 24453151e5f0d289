package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/specialistvlad/valuegrid/internal/config"
	"github.com/specialistvlad/valuegrid/internal/ctxlog"
	"github.com/specialistvlad/valuegrid/internal/localsession"
	"github.com/specialistvlad/valuegrid/internal/registry"
	"github.com/specialistvlad/valuegrid/internal/session"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	model    *config.Model
	modules  []registry.Module
	sessions session.SessionFactory

	ctx        context.Context
	httpServer *http.Server
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger. The configuration
// is loaded eagerly; a failure to load it panics.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader, modules ...registry.Module) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	cfgModel := config.NewModel()
	if len(appConfig.ConfigPaths) > 0 {
		var err error
		cfgModel, err = loader.Load(ctx, appConfig.ConfigPaths...)
		if err != nil {
			// A failure to load config is a fatal startup error.
			panic(fmt.Errorf("failed to load configuration: %w", err))
		}
		logger.Debug("Configuration loaded and translated into unified model.",
			"securities", len(cfgModel.Securities), "portfolios", len(cfgModel.Portfolios), "views", len(cfgModel.Views))
	}

	if appConfig.CalculationNodes > 0 {
		cfgModel.Engine.CalculationNodes = appConfig.CalculationNodes
	}
	if appConfig.NodeConcurrency > 0 {
		cfgModel.Engine.NodeConcurrency = appConfig.NodeConcurrency
	}

	if len(modules) == 0 {
		modules = coreModules
	}

	return &App{
		outW:     outW,
		logger:   logger,
		config:   appConfig,
		model:    cfgModel,
		modules:  modules,
		sessions: &localsession.SessionFactory{},
		ctx:      ctx,
	}
}

// Model returns the loaded configuration. This is primarily for testing.
func (a *App) Model() *config.Model {
	return a.model
}
