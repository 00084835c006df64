package domain

import (
	"runtime"
	"time"
)

// DefaultHookTimeout bounds a hook that declares no timeout of its own.
const DefaultHookTimeout = 5 * time.Minute

// Config is the configuration surface consumed by the engine.
type Config struct {
	// Workers is the global worker limit. Values below one select runtime.NumCPU().
	Workers int
	// DefaultTimeout applies to tests without a timeout. Zero means unbounded.
	DefaultTimeout time.Duration
	// DefaultRetries applies to tests without a retry limit.
	DefaultRetries int
	// RetryTimeouts makes timed-out attempts eligible for retry.
	RetryTimeouts bool
	// HookTimeout applies to hooks without a timeout. Zero means unbounded.
	HookTimeout time.Duration
	// FailFast cancels the session after the first failed test.
	FailFast bool
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Workers:     runtime.NumCPU(),
		HookTimeout: DefaultHookTimeout,
	}
}

// WorkerLimit returns the effective global worker limit.
func (c Config) WorkerLimit() int {
	if c.Workers < 1 {
		return runtime.NumCPU()
	}
	return c.Workers
}

// Suite bundles everything a session needs.
type Suite struct {
	Catalog *Catalog
	Hooks   *HookBindings
	Config  Config
}
