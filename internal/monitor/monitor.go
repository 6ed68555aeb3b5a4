// Package monitor drives the playback debouncer on a fixed cadence and
// forwards its commands to the speaker switch.
package monitor

import (
	"context"
	"time"
)

// Sampler reports whether audio is currently playing.
type Sampler interface {
	Sample(ctx context.Context) (bool, error)
}

// Switch performs the remote on/off side effect.
// Implementations bound their own calls and log their own failures.
type Switch interface {
	TurnOn(ctx context.Context) error
	TurnOff(ctx context.Context) error
}

// Defaults used when Config fields are left at zero.
const (
	DefaultConfirmTick   = time.Second
	DefaultDegradedAfter = 3
)

// Config holds loop timing. It is read once when the loop is created.
type Config struct {
	// PollInterval is the outer sampling cadence.
	PollInterval time.Duration
	// ConfirmSamples is the number of consecutive silent samples needed to
	// switch off. With a one second ConfirmTick this equals seconds.
	ConfirmSamples int
	// ConfirmTick is the sampling cadence inside a confirmation window.
	ConfirmTick time.Duration
	// ReaffirmOff issues one TurnOff before the first tick so the remote
	// switch matches the initial inactive state.
	ReaffirmOff bool
	// DegradedAfter is the number of consecutive sampler failures that
	// flags the loop as degraded.
	DegradedAfter int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.ConfirmTick <= 0 {
		c.ConfirmTick = DefaultConfirmTick
	}
	if c.DegradedAfter <= 0 {
		c.DegradedAfter = DefaultDegradedAfter
	}
	c.ConfirmSamples = max(c.ConfirmSamples, 0)
	return c
}
