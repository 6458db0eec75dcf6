package nwc

import (
	"time"

	"keybunker.lol/config"
	"keybunker.lol/dispatch"
	"keybunker.lol/encryption"
	"keybunker.lol/pow"
	"keybunker.lol/timestamp"
)

type options struct {
	maxAge          time.Duration
	cleanupInterval time.Duration
	budget          pow.Budget
	observer        dispatch.Observer
	clock           timestamp.Clock
	scheme          encryption.Scheme
}

// Option configures a Wallet.
type Option func(o *options)

// WithMaxAge sets the idle time after which Run disconnects an app.
func WithMaxAge(d time.Duration) Option { return func(o *options) { o.maxAge = d } }

// WithCleanupInterval sets how often Run looks for idle apps.
func WithCleanupInterval(d time.Duration) Option {
	return func(o *options) { o.cleanupInterval = d }
}

// WithBudget bounds proof of work requested with sign_event.
func WithBudget(b pow.Budget) Option { return func(o *options) { o.budget = b } }

// WithObserver reports dispatcher state transitions.
func WithObserver(f dispatch.Observer) Option { return func(o *options) { o.observer = f } }

// WithClock replaces the system clock for app timestamps and response events.
func WithClock(c timestamp.Clock) Option { return func(o *options) { o.clock = c } }

// WithScheme sets the encryption of messages the wallet starts.
func WithScheme(s encryption.Scheme) Option { return func(o *options) { o.scheme = s } }

// FromConfig maps a configuration to options.
func FromConfig(c *config.C) []Option {
	return []Option{
		WithMaxAge(c.SessionMaxAge),
		WithCleanupInterval(c.CleanupInterval),
		WithBudget(pow.Budget{
			MaxAttempts: c.PowMaxAttempts,
			Timeout:     c.PowTimeout,
			Workers:     c.PowWorkers,
		}),
	}
}
