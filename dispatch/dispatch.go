// Package dispatch authorizes and executes client requests against the key of
// a signer.
//
// A request moves through RECEIVED, then AUTHORIZED or DENIED, then EXECUTING
// and finally COMPLETED or FAILED. Nothing is mutated before authorization
// succeeds and the session is only touched once execution has completed.
package dispatch

import (
	"keybunker.lol/context"
	"keybunker.lol/event"
	"keybunker.lol/hex"
	"keybunker.lol/log"
	"keybunker.lol/permission"
	"keybunker.lol/pow"
	"keybunker.lol/rpc"
	"keybunker.lol/session"
	"keybunker.lol/signer"
)

// State is a step of a request through the dispatcher.
type State uint8

const (
	Received State = iota
	Authorized
	Denied
	Executing
	Completed
	Failed
)

var stateNames = [...]string{"RECEIVED", "AUTHORIZED", "DENIED", "EXECUTING", "COMPLETED", "FAILED"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "UNKNOWN"
}

// Observer is told of every state a request enters.
type Observer func(id string, req rpc.Request, s State)

// Grant is what a registry knows about a delegation.
type Grant struct {
	// Counterparty is the hex public key of the client.
	Counterparty string
	Metadata     session.Metadata
	Permissions  permission.Set
}

// Registry resolves the delegation a request is made under.
type Registry interface {
	Lookup(id string) (g Grant, ok bool)
	// Touch records a completed request.
	Touch(id string) (err error)
}

// Outcome is the result of a completed request, which fields are set depends
// on Method.
type Outcome struct {
	Method permission.Method
	// PublicKey is the signer key for get_public_key and connect.
	PublicKey string
	// Metadata is the client metadata for connect.
	Metadata *session.Metadata
	// Event is the signed event for sign_event.
	Event *event.T
	// Text is the ciphertext or plaintext of the encryption methods.
	Text string
}

// Dispatcher executes requests with one signer key. It keeps no per request
// state and is safe for concurrent use.
type Dispatcher struct {
	signer   signer.I
	pubkey   string
	budget   pow.Budget
	observer Observer
}

// Option configures a Dispatcher.
type Option func(d *Dispatcher)

// WithBudget bounds the proof of work of sign_event requests.
func WithBudget(b pow.Budget) Option { return func(d *Dispatcher) { d.budget = b } }

// WithObserver reports state transitions to o.
func WithObserver(o Observer) Option { return func(d *Dispatcher) { d.observer = o } }

// New creates a Dispatcher for the key held by s.
func New(s signer.I, opts ...Option) (d *Dispatcher) {
	d = &Dispatcher{signer: s, pubkey: hex.Enc(s.Pub()), budget: pow.DefaultBudget}
	for _, opt := range opts {
		opt(d)
	}
	return
}

// PublicKey is the hex public key of the signer.
func (d *Dispatcher) PublicKey() string { return d.pubkey }

// Signer is the key the dispatcher signs with.
func (d *Dispatcher) Signer() signer.I { return d.signer }

func (d *Dispatcher) enter(id string, req rpc.Request, s State) {
	log.T.F("request %s %s on %s: %s", req.ID, req.Method, id, s)
	if d.observer != nil {
		d.observer(id, req, s)
	}
}

// Dispatch runs req under the delegation id of reg. Every failure is an
// *rpc.Error.
func (d *Dispatcher) Dispatch(c context.T, reg Registry, id string, req rpc.Request) (out Outcome, err error) {
	d.enter(id, req, Received)
	defer func() {
		if err != nil {
			d.enter(id, req, Failed)
		}
	}()
	g, ok := reg.Lookup(id)
	if !ok {
		err = rpc.New(rpc.SessionNotFound, "no session %s", id)
		return
	}
	m, known := permission.ParseMethod(req.Method)
	if !known {
		err = rpc.New(rpc.ProtocolError, "unknown method '%s'", req.Method)
		return
	}
	k := lenientKind(m, req)
	if !permission.Authorized(g.Permissions, m, k) {
		d.enter(id, req, Denied)
		log.D.F("denied %s to %s", req.Method, g.Counterparty)
		err = rpc.New(rpc.PermissionDenied, "%s is not permitted", req.Method)
		return
	}
	d.enter(id, req, Authorized)
	d.enter(id, req, Executing)
	if out, err = d.execute(c, g, m, req); err != nil {
		if rpc.KindOf(err) == rpc.PrimitiveFailure {
			log.E.F("%s for %s failed: %v", req.Method, g.Counterparty, err)
		}
		return
	}
	if err = reg.Touch(id); err != nil {
		err = rpc.Wrap(rpc.SessionNotFound, err, "session "+id+" removed during "+req.Method)
		return
	}
	d.enter(id, req, Completed)
	return
}

func (d *Dispatcher) execute(c context.T, g Grant, m permission.Method, req rpc.Request) (out Outcome, err error) {
	out.Method = m
	switch m {
	case permission.GetPublicKey:
		out.PublicKey = d.pubkey
	case permission.Connect:
		md := g.Metadata
		out.PublicKey, out.Metadata = d.pubkey, &md
	case permission.SignEvent:
		out.Event, err = d.signEvent(c, req)
	case permission.Encrypt, permission.Decrypt, permission.Nip44Encrypt, permission.Nip44Decrypt:
		out.Text, err = d.crypt(g, m, req)
	default:
		err = rpc.New(rpc.ProtocolError, "method '%s' has no handler", req.Method)
	}
	return
}

// Sessions adapts a session store to a Registry keyed by session id.
func Sessions(s *session.Store) Registry { return sessions{s} }

type sessions struct{ *session.Store }

func (s sessions) Lookup(id string) (g Grant, ok bool) {
	var sess *session.T
	if sess, ok = s.Get(id); !ok {
		return
	}
	g = Grant{Counterparty: sess.Pubkey, Metadata: sess.Metadata, Permissions: sess.Permissions}
	return
}
