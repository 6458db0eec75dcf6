// Package nwc is the wallet flavoured variant of the remote signer: apps are
// connected by their public key, there is no session id, and failures come
// back as numeric coded error objects. sign_event answers with the signature
// alone.
package nwc

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"keybunker.lol/chk"
	"keybunker.lol/context"
	"keybunker.lol/dispatch"
	"keybunker.lol/encryption"
	"keybunker.lol/errorf"
	"keybunker.lol/event"
	"keybunker.lol/keys"
	"keybunker.lol/kind"
	"keybunker.lol/log"
	"keybunker.lol/permission"
	"keybunker.lol/pow"
	"keybunker.lol/rpc"
	"keybunker.lol/session"
	"keybunker.lol/signer"
	"keybunker.lol/tags"
	"keybunker.lol/timestamp"
	"keybunker.lol/transport"
)

// Response is the NIP-47 response, the result_type names the method answered.
type Response struct {
	ResultType string `json:"result_type"`
	rpc.Response
}

// SignResult is the result of sign_event.
type SignResult struct {
	Sig string `json:"sig"`
}

// ConnectResult is the result of connect.
type ConnectResult struct {
	Pubkey   string           `json:"pubkey"`
	Metadata session.Metadata `json:"metadata"`
}

// App is a connected app as listed by ListConnectedApps.
type App struct {
	Pubkey      string
	Metadata    session.Metadata
	Permissions permission.Set
	ConnectedAt timestamp.T
	LastUsed    timestamp.T
}

// Wallet holds one key and the apps connected to it.
type Wallet struct {
	mx            sync.RWMutex
	connectedApps map[string]session.Metadata
	permissions   map[string]permission.Set
	connectedAt   map[string]timestamp.T
	lastUsed      map[string]timestamp.T
	dispatcher    *dispatch.Dispatcher
	codec         *transport.Codec
	opts          options
}

// New creates a wallet for key with no apps connected.
func New(key signer.I, opts ...Option) (w *Wallet) {
	w = &Wallet{
		connectedApps: make(map[string]session.Metadata),
		permissions:   make(map[string]permission.Set),
		connectedAt:   make(map[string]timestamp.T),
		lastUsed:      make(map[string]timestamp.T),
		opts: options{
			maxAge:          720 * time.Hour,
			cleanupInterval: 10 * time.Minute,
			budget:          pow.DefaultBudget,
			clock:           timestamp.System,
			scheme:          encryption.Nip44,
		},
	}
	for _, opt := range opts {
		opt(&w.opts)
	}
	dopts := []dispatch.Option{dispatch.WithBudget(w.opts.budget)}
	if w.opts.observer != nil {
		dopts = append(dopts, dispatch.WithObserver(w.opts.observer))
	}
	w.dispatcher = dispatch.New(key, dopts...)
	w.codec = transport.New(key, w.opts.scheme).WithClock(w.opts.clock)
	return
}

// PublicKey is the hex public key of the wallet.
func (w *Wallet) PublicKey() string { return w.dispatcher.PublicKey() }

// Connect allows the app with hex public key app the permissions perms,
// replacing those of an earlier connection.
func (w *Wallet) Connect(app string, md session.Metadata, perms permission.Set) (err error) {
	if !keys.IsValidPublicKey(app) {
		return &rpc.Error{Kind: rpc.InputValidation, Msg: "malformed app public key " + app, Err: keys.ErrKey}
	}
	if err = md.Validate(); err != nil {
		return &rpc.Error{Kind: rpc.InputValidation, Msg: "invalid app metadata", Err: err}
	}
	now := w.opts.clock()
	w.mx.Lock()
	defer w.mx.Unlock()
	w.connectedApps[app] = md
	w.permissions[app] = perms.Clone()
	w.connectedAt[app] = now
	w.lastUsed[app] = now
	log.I.F("connected app %s (%s) with %s", app, md.Name, perms)
	return
}

// Disconnect forgets an app. Unknown apps are ignored.
func (w *Wallet) Disconnect(app string) {
	w.mx.Lock()
	defer w.mx.Unlock()
	w.forget(app)
}

func (w *Wallet) forget(app string) {
	delete(w.connectedApps, app)
	delete(w.permissions, app)
	delete(w.connectedAt, app)
	delete(w.lastUsed, app)
}

// PermissionsFor is a copy of the permissions of an app.
func (w *Wallet) PermissionsFor(app string) (perms permission.Set, ok bool) {
	w.mx.RLock()
	defer w.mx.RUnlock()
	if perms, ok = w.permissions[app]; ok {
		perms = perms.Clone()
	}
	return
}

// ListConnectedApps lists the connected apps, earliest connection first.
func (w *Wallet) ListConnectedApps() (apps []App) {
	w.mx.RLock()
	apps = make([]App, 0, len(w.connectedApps))
	for pk, md := range w.connectedApps {
		apps = append(apps, App{
			Pubkey:      pk,
			Metadata:    md,
			Permissions: w.permissions[pk].Clone(),
			ConnectedAt: w.connectedAt[pk],
			LastUsed:    w.lastUsed[pk],
		})
	}
	w.mx.RUnlock()
	sort.Slice(apps, func(i, j int) bool {
		if apps[i].ConnectedAt != apps[j].ConnectedAt {
			return apps[i].ConnectedAt < apps[j].ConnectedAt
		}
		return apps[i].Pubkey < apps[j].Pubkey
	})
	return
}

// Cleanup disconnects apps idle for longer than maxAge, the configured max
// age if none is given, and returns their keys.
func (w *Wallet) Cleanup(maxAge ...time.Duration) (removed []string) {
	age := w.opts.maxAge
	if len(maxAge) > 0 {
		age = maxAge[0]
	}
	now := w.opts.clock()
	w.mx.Lock()
	for pk, used := range w.lastUsed {
		if time.Duration(now-used)*time.Second > age {
			w.forget(pk)
			removed = append(removed, pk)
		}
	}
	w.mx.Unlock()
	sort.Strings(removed)
	if len(removed) > 0 {
		log.I.F("disconnected %d apps idle longer than %v", len(removed), age)
	}
	return
}

// Run disconnects idle apps every cleanup interval until c is done.
func (w *Wallet) Run(c context.T) {
	t := time.NewTicker(w.opts.cleanupInterval)
	defer t.Stop()
	for {
		select {
		case <-c.Done():
			return
		case <-t.C:
			w.Cleanup()
		}
	}
}

// registry adapts the wallet to a dispatch.Registry keyed by app public key.
type registry struct{ *Wallet }

func (r registry) Lookup(app string) (g dispatch.Grant, ok bool) {
	r.mx.RLock()
	defer r.mx.RUnlock()
	var md session.Metadata
	if md, ok = r.connectedApps[app]; !ok {
		return
	}
	g = dispatch.Grant{Counterparty: app, Metadata: md, Permissions: r.permissions[app].Clone()}
	return
}

func (r registry) Touch(app string) (err error) {
	now := r.opts.clock()
	r.mx.Lock()
	defer r.mx.Unlock()
	used, ok := r.lastUsed[app]
	if !ok {
		return rpc.New(rpc.SessionNotFound, "app %s is not connected", app)
	}
	if now > used {
		r.lastUsed[app] = now
	}
	return
}

// HandleRequest executes req for app and renders the result or the coded
// error.
func (w *Wallet) HandleRequest(c context.T, app string, req rpc.Request) (resp Response) {
	resp.ResultType = req.Method
	req.Params = positional(req)
	out, err := w.dispatcher.Dispatch(c, registry{w}, app, req)
	if err != nil {
		resp.Response = rpc.Failure(req.ID, Code(err), err.Error())
		return
	}
	var result any
	switch out.Method {
	case permission.GetPublicKey:
		result = out.PublicKey
	case permission.Connect:
		result = ConnectResult{Pubkey: out.PublicKey, Metadata: *out.Metadata}
	case permission.SignEvent:
		result = SignResult{Sig: out.Event.Sig}
	default:
		result = out.Text
	}
	if resp.Response, err = rpc.Success(req.ID, result); err != nil {
		resp.Response = rpc.Failure(req.ID, Errors.Internal, err.Error())
	}
	return
}

// positional turns the NIP-47 object params of the encryption methods into
// the [pubkey, text] form of the dispatcher.
func positional(req rpc.Request) json.RawMessage {
	switch req.Method {
	case Methods.Nip04Encrypt, Methods.Nip04Decrypt, Methods.Nip44Encrypt, Methods.Nip44Decrypt,
		"encrypt", "decrypt":
	default:
		return req.Params
	}
	if !strings.HasPrefix(strings.TrimSpace(string(req.Params)), "{") {
		return req.Params
	}
	var obj map[string]string
	if err := json.Unmarshal(req.Params, &obj); err != nil {
		return req.Params
	}
	text, ok := obj[Keys.Plaintext]
	if !ok {
		text = obj[Keys.Ciphertext]
	}
	p := []string{text}
	if pk, ok := obj[Keys.Pubkey]; ok {
		p = []string{pk, text}
	}
	b, _ := json.Marshal(p)
	return b
}

// Send encrypts msg to a connected app.
func (w *Wallet) Send(app string, msg any) (ciphertext string, err error) {
	if _, ok := w.PermissionsFor(app); !ok {
		err = rpc.New(rpc.SessionNotFound, "app %s is not connected", app)
		return
	}
	return w.codec.Send(app, msg)
}

// Receive decrypts a message from a connected app into v.
func (w *Wallet) Receive(app, ciphertext string, v any) (err error) {
	if _, ok := w.PermissionsFor(app); !ok {
		return rpc.New(rpc.SessionNotFound, "app %s is not connected", app)
	}
	return w.codec.Receive(app, ciphertext, v)
}

// HandleEvent answers a kind 23194 request with the kind 23195 response to
// publish, tagged with the request id and encrypted the way the request was.
func (w *Wallet) HandleEvent(c context.T, ev *event.T) (resp *event.T, err error) {
	if ev.Kind != kind.WalletRequest {
		err = errorf.D("event kind is %s, but we expected %s", ev.Kind.Name(), kind.WalletRequest.Name())
		return
	}
	if to := transport.Addressee(ev); to != w.PublicKey() {
		err = errorf.D("event %s is addressed to %q, not to this wallet", ev.ID, to)
		return
	}
	var req rpc.Request
	if err = w.codec.Open(ev, &req); err != nil {
		return
	}
	if req.ID == "" {
		req.ID = ev.ID
	}
	r := w.HandleRequest(c, ev.Pubkey, req)
	codec := w.codec.WithScheme(encryption.Detect(ev.Content))
	if resp, err = codec.Seal(kind.WalletResponse, ev.Pubkey, r, tags.New("e", ev.ID)); chk.E(err) {
		return
	}
	return
}

// InfoEvent is the replaceable kind 13194 event listing the supported methods
// and encryption schemes.
func (w *Wallet) InfoEvent() (ev *event.T, err error) {
	ev = &event.T{
		CreatedAt: w.opts.clock(),
		Kind:      kind.WalletInfo,
		Tags:      tags.T{tags.New("encryption", "nip44_v2 nip04")},
		Content:   strings.Join(Supported, " "),
	}
	if err = ev.Sign(w.dispatcher.Signer()); chk.E(err) {
		ev = nil
		return
	}
	return
}
