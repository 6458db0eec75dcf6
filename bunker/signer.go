// Package bunker is a NIP-46 remote signer: one key, any number of client
// sessions, each allowed a set of signing and encryption operations.
//
// Failures are reported as errors carrying plain messages, sign_event returns
// the complete signed event.
package bunker

import (
	"encoding/json"
	"strings"
	"time"

	"keybunker.lol/chk"
	"keybunker.lol/context"
	"keybunker.lol/dispatch"
	"keybunker.lol/encryption"
	"keybunker.lol/errorf"
	"keybunker.lol/event"
	"keybunker.lol/kind"
	"keybunker.lol/log"
	"keybunker.lol/permission"
	"keybunker.lol/rpc"
	"keybunker.lol/session"
	"keybunker.lol/signer"
	"keybunker.lol/transport"
)

// AuthURL is the result of a response whose error carries the url a user must
// visit before the request is answered.
const AuthURL = "auth_url"

// Response is the NIP-46 wire response. Exactly one of Result and Error is
// rendered, except for an auth challenge, which carries both.
type Response struct {
	ID     string `json:"id"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// AuthChallenge is the response asking the client to open url before the
// request id is answered.
func AuthChallenge(id, url string) Response { return Response{ID: id, Result: AuthURL, Error: url} }

// MarshalJSON renders the error when there is one and the result otherwise,
// even an empty result.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Result == AuthURL && r.Error != "" {
		return json.Marshal(struct {
			ID     string `json:"id"`
			Result string `json:"result"`
			Error  string `json:"error"`
		}{r.ID, r.Result, r.Error})
	}
	if r.Error != "" {
		return json.Marshal(struct {
			ID    string `json:"id"`
			Error string `json:"error"`
		}{r.ID, r.Error})
	}
	return json.Marshal(struct {
		ID     string `json:"id"`
		Result string `json:"result"`
	}{r.ID, r.Result})
}

func (r Response) String() string {
	b, _ := r.MarshalJSON()
	return string(b)
}

// ConnectResult acknowledges a connect request.
type ConnectResult struct {
	PublicKey string           `json:"publicKey"`
	Metadata  session.Metadata `json:"metadata"`
}

// Signer is a remote signer for one key.
type Signer struct {
	opts       options
	dispatcher *dispatch.Dispatcher
	store      *session.Store
	registry   dispatch.Registry
	codec      *transport.Codec
}

// New creates a signer holding key. Sessions kept by a persister are restored.
func New(key signer.I, opts ...Option) (s *Signer, err error) {
	s = &Signer{opts: defaults()}
	for _, opt := range opts {
		opt(&s.opts)
	}
	o := s.opts
	var dopts = []dispatch.Option{dispatch.WithBudget(o.budget)}
	if o.observer != nil {
		dopts = append(dopts, dispatch.WithObserver(o.observer))
	}
	s.dispatcher = dispatch.New(key, dopts...)
	sopts := []session.Option{session.WithIDMode(o.idMode), session.WithClock(o.clock)}
	if o.persister != nil {
		sopts = append(sopts, session.WithPersister(o.persister))
	}
	if s.store, err = session.NewStore(s.dispatcher.PublicKey(), sopts...); chk.E(err) {
		return
	}
	s.registry = dispatch.Sessions(s.store)
	s.codec = transport.New(key, o.scheme).WithClock(o.clock)
	return
}

// PublicKey is the hex public key of the signer.
func (s *Signer) PublicKey() string { return s.dispatcher.PublicKey() }

// Store is the session registry of the signer.
func (s *Signer) Store() *session.Store { return s.store }

// CreateSession grants the client with hex public key clientPubkey the
// permissions perms.
func (s *Signer) CreateSession(clientPubkey string, md session.Metadata,
	perms permission.Set) (sess *session.T, err error) {
	return s.store.Create(clientPubkey, md, perms)
}

// HandleRequest executes req under session sessionID. The result is a string
// for get_public_key and the encryption methods, a *ConnectResult for connect
// and the signed *event.T for sign_event.
func (s *Signer) HandleRequest(c context.T, sessionID string, req rpc.Request) (result any, err error) {
	var out dispatch.Outcome
	if out, err = s.dispatcher.Dispatch(c, s.registry, sessionID, req); err != nil {
		return
	}
	switch out.Method {
	case permission.GetPublicKey:
		result = out.PublicKey
	case permission.Connect:
		result = &ConnectResult{PublicKey: out.PublicKey, Metadata: *out.Metadata}
	case permission.SignEvent:
		result = out.Event
	default:
		result = out.Text
	}
	return
}

// Respond renders the result or error of a request as a wire response.
func (s *Signer) Respond(id string, result any, err error) (r Response) {
	r.ID = id
	if err != nil {
		r.Error = err.Error()
		return
	}
	switch v := result.(type) {
	case string:
		r.Result = v
	case *event.T:
		r.Result = v.String()
	default:
		b, e := json.Marshal(v)
		if chk.E(e) {
			r.Error = e.Error()
			return
		}
		r.Result = string(b)
	}
	return
}

// Send encrypts msg to the client of a session.
func (s *Signer) Send(sessionID string, msg any) (ciphertext string, err error) {
	sess, ok := s.store.Get(sessionID)
	if !ok {
		err = rpc.New(rpc.SessionNotFound, "no session %s", sessionID)
		return
	}
	return s.codec.Send(sess.Pubkey, msg)
}

// Receive decrypts a message from the client of a session into v.
func (s *Signer) Receive(sessionID, ciphertext string, v any) (err error) {
	sess, ok := s.store.Get(sessionID)
	if !ok {
		return rpc.New(rpc.SessionNotFound, "no session %s", sessionID)
	}
	return s.codec.Receive(sess.Pubkey, ciphertext, v)
}

// Remove ends a session.
func (s *Signer) Remove(sessionID string) { s.store.Remove(sessionID) }

// Cleanup removes sessions idle longer than maxAge.
func (s *Signer) Cleanup(maxAge ...time.Duration) []string {
	if len(maxAge) > 0 {
		return s.store.Cleanup(maxAge[0])
	}
	return s.store.Cleanup(s.opts.maxAge)
}

// ListSessions is a snapshot of all sessions.
func (s *Signer) ListSessions() []*session.T { return s.store.List() }

// HandleEvent answers a kind 24133 request event, returning the signed
// response event to publish. A connect request from a client without a
// session creates one, if the secret matches.
func (s *Signer) HandleEvent(c context.T, ev *event.T) (resp *event.T, err error) {
	if ev.Kind != kind.NostrConnect {
		err = errorf.D("event kind is %s, but we expected %s", ev.Kind.Name(), kind.NostrConnect.Name())
		return
	}
	if to := transport.Addressee(ev); to != s.PublicKey() {
		err = errorf.D("event %s is addressed to %q, not to this signer", ev.ID, to)
		return
	}
	var req rpc.Request
	if err = s.codec.Open(ev, &req); err != nil {
		return
	}
	var (
		result any
		rErr   error
	)
	switch req.Method {
	case "connect":
		result, rErr = s.handshake(c, ev.Pubkey, req)
	case "ping":
		if _, ok := s.store.ByPubkey(ev.Pubkey); ok {
			result = "pong"
		} else {
			rErr = rpc.New(rpc.SessionNotFound, "no session for %s", ev.Pubkey)
		}
	default:
		if sess, ok := s.store.ByPubkey(ev.Pubkey); ok {
			result, rErr = s.HandleRequest(c, sess.ID, req)
		} else {
			rErr = rpc.New(rpc.SessionNotFound, "no session for %s", ev.Pubkey)
		}
	}
	r := s.Respond(req.ID, result, rErr)
	scheme := encryption.Detect(ev.Content)
	if resp, err = s.codec.WithScheme(scheme).Seal(kind.NostrConnect, ev.Pubkey, r); chk.E(err) {
		return
	}
	return
}

// handshake processes connect. Params are the signer public key, an optional
// secret and an optional comma separated permission list. A client that has a
// session and offers no valid secret gets its connect permission checked like
// any other request. What is granted beyond connect is up to the approver, or
// to the secret when there is no approver.
func (s *Signer) handshake(c context.T, client string, req rpc.Request) (result any, err error) {
	var p []string
	if p, err = req.Positional(); err != nil {
		err = &rpc.Error{Kind: rpc.InputValidation, Msg: "malformed connect params", Err: err}
		return
	}
	if len(p) > 0 && p[0] != "" && p[0] != s.PublicKey() {
		err = rpc.New(rpc.InputValidation, "connect is for %s, not this signer", p[0])
		return
	}
	var secret, requested string
	if len(p) > 1 {
		secret = p[1]
	}
	if len(p) > 2 {
		requested = p[2]
	}
	existing, hasSession := s.store.ByPubkey(client)
	validSecret := s.opts.secret == "" || secret == s.opts.secret
	if hasSession && (secret == "" || !validSecret) {
		if _, err = s.HandleRequest(c, existing.ID, req); err != nil {
			return
		}
		return "ack", nil
	}
	if !validSecret {
		log.W.F("connect from %s with a wrong secret", client)
		err = rpc.New(rpc.PermissionDenied, "invalid secret")
		return
	}
	var perms permission.Set
	if perms, err = permission.ParseSet(requested); err != nil {
		err = &rpc.Error{Kind: rpc.InputValidation, Msg: "invalid requested permissions", Err: err}
		return
	}
	switch {
	case s.opts.approve != nil:
		perms = s.opts.approve(client, perms)
	case s.opts.secret == "":
		if len(perms) > 0 {
			log.W.F("no secret or approver, %s is granted connect alone instead of %s", client, perms)
		}
		perms = nil
	}
	perms = perms.Union(permission.NewSet(permission.Allow(permission.Connect)))
	if hasSession {
		if _, err = s.store.Grant(existing.ID, perms); err != nil {
			return
		}
		log.I.F("granted %s to %s", perms, client)
		return "ack", nil
	}
	md := session.Metadata{Name: "nostr connect " + shortKey(client)}
	var sess *session.T
	if sess, err = s.store.Create(client, md, perms); err != nil {
		return
	}
	log.I.F("connected %s as session %s with %s", client, sess.ID, perms)
	return "ack", nil
}

func shortKey(pk string) string {
	if len(pk) > 8 {
		return pk[:8]
	}
	return strings.TrimSpace(pk)
}
