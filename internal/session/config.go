package session

import (
	"time"

	"github.com/danmuck/dgr/internal/registry"
)

const (
	DefaultInitialWait    = 10 * time.Second
	DefaultLivenessWindow = 15 * time.Second
)

// Config defines session timing and registry bounds.
type Config struct {
	// InitialWait bounds the first slave Update's wait for a snapshot.
	InitialWait time.Duration
	// LivenessWindow is the longest silence a slave tolerates after its
	// first snapshot.
	LivenessWindow time.Duration
	Limits         registry.Limits
}

func DefaultConfig() Config {
	return Config{
		InitialWait:    DefaultInitialWait,
		LivenessWindow: DefaultLivenessWindow,
		Limits:         registry.DefaultLimits(),
	}
}

// WithDefaults fills unset fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.InitialWait <= 0 {
		c.InitialWait = d.InitialWait
	}
	if c.LivenessWindow <= 0 {
		c.LivenessWindow = d.LivenessWindow
	}
	c.Limits = c.Limits.WithDefaults()
	return c
}
