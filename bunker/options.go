package bunker

import (
	"time"

	"keybunker.lol/chk"
	"keybunker.lol/config"
	"keybunker.lol/dispatch"
	"keybunker.lol/encryption"
	"keybunker.lol/lol"
	"keybunker.lol/permission"
	"keybunker.lol/pow"
	"keybunker.lol/ratel"
	"keybunker.lol/session"
	"keybunker.lol/timestamp"
)

type options struct {
	maxAge          time.Duration
	cleanupInterval time.Duration
	idMode          session.IDMode
	budget          pow.Budget
	relays          []string
	secret          string
	approve         Approver
	serveLimit      int
	persister       session.Persister
	observer        dispatch.Observer
	clock           timestamp.Clock
	scheme          encryption.Scheme
}

func defaults() options {
	return options{
		maxAge:          720 * time.Hour,
		cleanupInterval: 10 * time.Minute,
		budget:          pow.DefaultBudget,
		serveLimit:      64,
		clock:           timestamp.System,
		scheme:          encryption.Nip44,
	}
}

// Approver decides what a connecting client is granted out of the permissions
// it requested.
type Approver func(client string, requested permission.Set) (granted permission.Set)

// Option configures a Signer.
type Option func(o *options)

// WithMaxAge sets the idle time after which Run removes a session.
func WithMaxAge(d time.Duration) Option { return func(o *options) { o.maxAge = d } }

// WithCleanupInterval sets how often Run sweeps idle sessions.
func WithCleanupInterval(d time.Duration) Option {
	return func(o *options) { o.cleanupInterval = d }
}

// WithIDMode selects random or hashed session ids.
func WithIDMode(m session.IDMode) Option { return func(o *options) { o.idMode = m } }

// WithBudget bounds proof of work requested with sign_event.
func WithBudget(b pow.Budget) Option { return func(o *options) { o.budget = b } }

// WithRelays sets the relays advertised in the bunker url.
func WithRelays(relays ...string) Option { return func(o *options) { o.relays = relays } }

// WithSecret requires clients to present secret in their connect request
// before a session is created for them.
func WithSecret(secret string) Option { return func(o *options) { o.secret = secret } }

// WithApprove lets f decide the permissions of connecting clients. Without an
// approver a client presenting the configured secret gets what it requested,
// and any other client gets connect alone.
func WithApprove(f Approver) Option { return func(o *options) { o.approve = f } }

// WithServeLimit caps the number of events Serve handles at once.
func WithServeLimit(n int) Option { return func(o *options) { o.serveLimit = n } }

// WithPersister keeps sessions in p.
func WithPersister(p session.Persister) Option { return func(o *options) { o.persister = p } }

// WithObserver reports dispatcher state transitions.
func WithObserver(f dispatch.Observer) Option { return func(o *options) { o.observer = f } }

// WithClock replaces the system clock for sessions and response events.
func WithClock(c timestamp.Clock) Option { return func(o *options) { o.clock = c } }

// WithScheme sets the encryption of messages the signer starts, replies use
// the scheme of the request.
func WithScheme(s encryption.Scheme) Option { return func(o *options) { o.scheme = s } }

// FromConfig maps a configuration to options. When persistence is enabled
// the session store is opened and returned, the caller closes it.
func FromConfig(c *config.C) (opts []Option, db *ratel.T, err error) {
	opts = []Option{
		WithMaxAge(c.SessionMaxAge),
		WithCleanupInterval(c.CleanupInterval),
		WithIDMode(session.ParseIDMode(c.SessionIDs)),
		WithBudget(pow.Budget{
			MaxAttempts: c.PowMaxAttempts,
			Timeout:     c.PowTimeout,
			Workers:     c.PowWorkers,
		}),
		WithRelays(c.Relays...),
		WithSecret(c.Secret),
		WithServeLimit(c.ServeLimit),
	}
	if !c.Persist {
		return
	}
	db = ratel.New(c.StorePath(), lol.GetLogLevel(c.LogLevel))
	if err = db.Init(); chk.E(err) {
		db = nil
		return
	}
	opts = append(opts, WithPersister(db))
	return
}
