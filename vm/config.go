package vm

import "go.uber.org/zap"

// Config tunes the allocator, the GC pacer and the initial stack sizing.
// Defaults mirror the teacher's own constants (vm.go's stackSize) scaled up
// for a value stack of Values instead of raw bytes.
type Config struct {
	// InitialStack is how many Value slots the main thread's stack starts
	// with; it grows by doubling (see frame.go) up to MaxStack.
	InitialStack int
	MaxStack     int

	// GCPauseScale is gcpause/100 from SPEC_FULL.md §4.10 Pacing: the next
	// cycle's threshold is estimate * GCPauseScale above current usage.
	GCPauseScale float64
	// GCStepScale controls how much traversal work one incremental step
	// performs per byte of debt, analogous to gcstepmul.
	GCStepScale float64

	Generational bool
	// GCMajorInc is how many minor (generational) cycles elapse between
	// forced full collections in generational mode.
	GCMajorInc int

	Logger *zap.SugaredLogger
}

// Option configures a Config in the functional-options style.
type Option func(*Config)

func defaultConfig() Config {
	return Config{
		InitialStack: 256,
		MaxStack:     1 << 20,
		GCPauseScale: 2.0,
		GCStepScale:  2.0,
		Generational: false,
		GCMajorInc:   16,
	}
}

func WithInitialStack(n int) Option {
	return func(c *Config) { c.InitialStack = n }
}

func WithMaxStack(n int) Option {
	return func(c *Config) { c.MaxStack = n }
}

func WithGCPause(scale float64) Option {
	return func(c *Config) { c.GCPauseScale = scale }
}

func WithGCStepScale(scale float64) Option {
	return func(c *Config) { c.GCStepScale = scale }
}

func WithGenerationalGC(enabled bool) Option {
	return func(c *Config) { c.Generational = enabled }
}

func WithGCMajorInc(n int) Option {
	return func(c *Config) { c.GCMajorInc = n }
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Config) { c.Logger = l }
}
