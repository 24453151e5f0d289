package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ConfigPaths []string // hcl files or directories

	// View names the view to run. It may be empty when exactly one view is
	// configured.
	View          string
	Cycles        int
	CycleInterval time.Duration

	// Overrides of the engine block; zero keeps the configured value.
	CalculationNodes int
	NodeConcurrency  int

	// CacheAddr is the listen address of the remote cache server.
	CacheAddr string

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	// ProfileServer is the address of a pyroscope server; empty disables
	// profiling.
	ProfileServer string
}

func NewConfig(cfg Config) (*Config, error) {
	var result *multierror.Error
	if len(cfg.ConfigPaths) == 0 && cfg.CacheAddr == "" {
		result = multierror.Append(result, errors.New("at least one configuration path is required"))
	}
	if cfg.Cycles < 1 {
		cfg.Cycles = 1
	}
	if cfg.CycleInterval < 0 {
		result = multierror.Append(result, fmt.Errorf("cycle interval must not be negative, got %s", cfg.CycleInterval))
	}
	if cfg.CalculationNodes < 0 || cfg.NodeConcurrency < 0 {
		result = multierror.Append(result, errors.New("calculation node overrides must not be negative"))
	}
	if cfg.LogFormat != "" && cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		result = multierror.Append(result, fmt.Errorf("invalid log format %q: must be 'text' or 'json'", cfg.LogFormat))
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
