// Package config defines the format-agnostic configuration model of the
// application, and the Loader interface that fills it from configuration
// sources.
//
// The Model is the single source of truth for the session that wires the
// engine: engine settings, reference data (securities, portfolios, market
// data) and the view definitions to compute. Concrete loaders, such as the
// HCL one, live in separate packages.
package config
