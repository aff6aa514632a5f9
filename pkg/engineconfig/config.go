// Package engineconfig holds run-level knobs that are NOT part of the
// declarative identity spec: worker pool size, sampling caps, and the one
// environment variable the engine honors (log verbosity). No environment
// variable is allowed to drive matching semantics itself — those come
// only from the spec, so a run stays reproducible from the spec alone.
package engineconfig

import (
	"log/slog"
	"os"
	"runtime"
)

// Config controls engine execution, as distinct from Spec which controls
// resolution semantics.
type Config struct {
	// Workers is the fixed worker-pool size used for data-parallel stages.
	// Defaults to GOMAXPROCS.
	Workers int

	// MaxEMIterations caps EM iterations; defaults to 50.
	MaxEMIterations int

	// EMConvergenceThreshold is the max per-parameter delta under which EM
	// stops.
	EMConvergenceThreshold float64

	// MaxUSamplePairs bounds random pair sampling for u-probability
	// estimation.
	MaxUSamplePairs int

	// LogLevel mirrors KANONIV_LOG_LEVEL; only logging verbosity, nothing
	// semantic, is environment-driven.
	LogLevel slog.Level
}

// Default returns the engine's default configuration.
func Default() *Config {
	return &Config{
		Workers:                runtime.GOMAXPROCS(0),
		MaxEMIterations:        50,
		EMConvergenceThreshold: 1e-4,
		MaxUSamplePairs:        50000,
		LogLevel:               slog.LevelInfo,
	}
}

// Load returns Default() with KANONIV_LOG_LEVEL applied, if set.
func Load() *Config {
	c := Default()
	if lvl := os.Getenv("KANONIV_LOG_LEVEL"); lvl != "" {
		c.LogLevel = parseLevel(lvl)
	}
	return c
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Option mutates a Config; used by callers that want to override a couple
// of fields without constructing the whole struct by hand.
type Option func(*Config)

func WithWorkers(n int) Option {
	return func(c *Config) { c.Workers = n }
}

func WithMaxEMIterations(n int) Option {
	return func(c *Config) { c.MaxEMIterations = n }
}

func Apply(c *Config, opts ...Option) *Config {
	for _, opt := range opts {
		opt(c)
	}
	return c
}
