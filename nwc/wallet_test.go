package nwc

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keybunker.lol/config"
	"keybunker.lol/context"
	"keybunker.lol/encryption"
	"keybunker.lol/event"
	"keybunker.lol/hex"
	"keybunker.lol/kind"
	"keybunker.lol/p256k"
	"keybunker.lol/permission"
	"keybunker.lol/rpc"
	"keybunker.lol/session"
	"keybunker.lol/timestamp"
	"keybunker.lol/transport"
)

func newKey(t *testing.T) *p256k.Signer {
	s := &p256k.Signer{}
	require.NoError(t, s.Generate())
	return s
}

func perms(t *testing.T, p ...string) permission.Set {
	s, err := permission.ParseSet(p)
	require.NoError(t, err)
	return s
}

func request(t *testing.T, method string, params any) rpc.Request {
	r, err := rpc.NewRequest("r1", method, params)
	require.NoError(t, err)
	return r
}

const template = `{"pubkey":"","created_at":1700000000,"kind":1,"tags":[],"content":"hello"}`

func connected(t *testing.T, p ...string) (w *Wallet, key, app *p256k.Signer) {
	key, app = newKey(t), newKey(t)
	w = New(key)
	require.NoError(t, w.Connect(hex.Enc(app.Pub()), session.Metadata{Name: "app"}, perms(t, p...)))
	return
}

func TestNotConnected(t *testing.T) {
	w := New(newKey(t))
	for _, m := range []string{"get_public_key", "sign_event", "nip44_encrypt", "connect", "nope"} {
		r := w.HandleRequest(context.Bg(), hex.Enc(newKey(t).Pub()), request(t, m, []string{template}))
		require.NotNil(t, r.Error, m)
		assert.Equal(t, 4001, r.Error.Code, m)
		assert.Empty(t, r.Result)
		assert.NoError(t, r.Validate())
	}
}

func TestPermissionDenied(t *testing.T) {
	w, _, app := connected(t, "get_public_key")
	r := w.HandleRequest(context.Bg(), hex.Enc(app.Pub()), request(t, "sign_event", []string{template}))
	require.NotNil(t, r.Error)
	assert.Equal(t, 4100, r.Error.Code)
	assert.Equal(t, "sign_event", r.ResultType)

	r = w.HandleRequest(context.Bg(), hex.Enc(app.Pub()), request(t, "get_public_key", nil))
	require.Nil(t, r.Error)
	var pk string
	require.NoError(t, json.Unmarshal(r.Result, &pk))
	assert.Equal(t, w.PublicKey(), pk)
}

func TestUnknownMethodAndInvalidParams(t *testing.T) {
	w, _, app := connected(t, "sign_event")
	r := w.HandleRequest(context.Bg(), hex.Enc(app.Pub()), request(t, "pay_invoice", map[string]string{"invoice": "lnbc"}))
	require.NotNil(t, r.Error)
	assert.Equal(t, 4040, r.Error.Code)

	r = w.HandleRequest(context.Bg(), hex.Enc(app.Pub()), request(t, "sign_event", []string{`{"kind":1}`}))
	require.NotNil(t, r.Error)
	assert.Equal(t, 5000, r.Error.Code)
}

func TestSignReturnsSigOnly(t *testing.T) {
	w, key, app := connected(t, "sign_event")
	r := w.HandleRequest(context.Bg(), hex.Enc(app.Pub()), request(t, "sign_event", json.RawMessage(template)))
	require.Nil(t, r.Error, "%v", r.Error)
	var res map[string]any
	require.NoError(t, json.Unmarshal(r.Result, &res))
	assert.Len(t, res, 1)
	sig, ok := res["sig"].(string)
	require.True(t, ok)
	assert.Len(t, sig, 128)

	// the signature is over the template completed with the wallet key
	ev := event.New()
	require.NoError(t, json.Unmarshal([]byte(template), ev))
	ev.Pubkey = hex.Enc(key.Pub())
	sb, err := hex.Dec(sig)
	require.NoError(t, err)
	valid, err := key.Verify(ev.GetIDBytes(), sb)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestEncryptObjectParams(t *testing.T) {
	w, key, app := connected(t, "nip44_encrypt", "nip44_decrypt", "encrypt", "decrypt")
	peer := newKey(t)
	appPK := hex.Enc(app.Pub())
	for _, m := range []string{"nip44", "nip04"} {
		r := w.HandleRequest(context.Bg(), appPK, request(t, m+"_encrypt",
			map[string]string{"pubkey": hex.Enc(peer.Pub()), "plaintext": "secret words"}))
		require.Nil(t, r.Error, "%v", r.Error)
		var ct string
		require.NoError(t, json.Unmarshal(r.Result, &ct))
		scheme := encryption.Nip44
		if m == "nip04" {
			scheme = encryption.Nip04
		}
		plain, err := scheme.Decrypt(ct, peer, key.Pub())
		require.NoError(t, err)
		assert.Equal(t, "secret words", plain)

		r = w.HandleRequest(context.Bg(), appPK, request(t, m+"_decrypt",
			map[string]string{"pubkey": hex.Enc(peer.Pub()), "ciphertext": ct}))
		require.Nil(t, r.Error, "%v", r.Error)
		var back string
		require.NoError(t, json.Unmarshal(r.Result, &back))
		assert.Equal(t, "secret words", back)
	}
	// without a pubkey the app itself is the counterparty
	r := w.HandleRequest(context.Bg(), appPK, request(t, "nip44_encrypt", map[string]string{"plaintext": "x"}))
	require.Nil(t, r.Error)
	var ct string
	require.NoError(t, json.Unmarshal(r.Result, &ct))
	plain, err := encryption.Nip44.Decrypt(ct, app, key.Pub())
	require.NoError(t, err)
	assert.Equal(t, "x", plain)
}

func TestConnectResult(t *testing.T) {
	w, _, app := connected(t, "connect")
	r := w.HandleRequest(context.Bg(), hex.Enc(app.Pub()), request(t, "connect", nil))
	require.Nil(t, r.Error)
	var res ConnectResult
	require.NoError(t, json.Unmarshal(r.Result, &res))
	assert.Equal(t, w.PublicKey(), res.Pubkey)
	assert.Equal(t, "app", res.Metadata.Name)
}

func TestConnectValidation(t *testing.T) {
	w := New(newKey(t))
	err := w.Connect("zz", session.Metadata{Name: "a"}, nil)
	assert.True(t, errors.Is(err, rpc.ErrInputValidation))
	err = w.Connect(hex.Enc(newKey(t).Pub()), session.Metadata{}, nil)
	assert.True(t, errors.Is(err, rpc.ErrInputValidation))
	assert.Empty(t, w.ListConnectedApps())
}

func TestPermissionsNotAliased(t *testing.T) {
	w := New(newKey(t))
	app := hex.Enc(newKey(t).Pub())
	p := perms(t, "get_public_key")
	require.NoError(t, w.Connect(app, session.Metadata{Name: "a"}, p))
	p[permission.Allow(permission.SignEvent)] = struct{}{}
	got, ok := w.PermissionsFor(app)
	require.True(t, ok)
	assert.False(t, got.Has(permission.Allow(permission.SignEvent)))
	got[permission.Allow(permission.SignEvent)] = struct{}{}
	again, _ := w.PermissionsFor(app)
	assert.False(t, again.Has(permission.Allow(permission.SignEvent)))
	_, ok = w.PermissionsFor(hex.Enc(newKey(t).Pub()))
	assert.False(t, ok)
}

func TestCleanupAndDisconnect(t *testing.T) {
	var mx sync.Mutex
	var now timestamp.T = 5000
	clock := func() timestamp.T {
		mx.Lock()
		defer mx.Unlock()
		return now
	}
	advance := func(d timestamp.T) {
		mx.Lock()
		now += d
		mx.Unlock()
	}
	w := New(newKey(t), WithClock(clock), WithMaxAge(time.Minute))
	busy, idle := hex.Enc(newKey(t).Pub()), hex.Enc(newKey(t).Pub())
	require.NoError(t, w.Connect(idle, session.Metadata{Name: "idle"}, nil))
	advance(1)
	require.NoError(t, w.Connect(busy, session.Metadata{Name: "busy"}, perms(t, "get_public_key")))
	apps := w.ListConnectedApps()
	require.Len(t, apps, 2)
	assert.Equal(t, idle, apps[0].Pubkey)

	advance(59)
	r := w.HandleRequest(context.Bg(), busy, request(t, "get_public_key", nil))
	require.Nil(t, r.Error)
	// idle is exactly a minute old now, which is kept
	assert.Empty(t, w.Cleanup())
	advance(1)
	assert.Equal(t, []string{idle}, w.Cleanup())
	require.Len(t, w.ListConnectedApps(), 1)
	assert.Equal(t, timestamp.T(5060), w.ListConnectedApps()[0].LastUsed)

	w.Disconnect(busy)
	w.Disconnect(busy)
	assert.Empty(t, w.ListConnectedApps())
	r = w.HandleRequest(context.Bg(), busy, request(t, "get_public_key", nil))
	require.NotNil(t, r.Error)
	assert.Equal(t, 4001, r.Error.Code)
}

func TestSendReceive(t *testing.T) {
	w, _, app := connected(t)
	appPK := hex.Enc(app.Pub())
	ct, err := w.Send(appPK, map[string]int{"n": 3})
	require.NoError(t, err)
	var got map[string]int
	require.NoError(t, transport.New(app, nil).Receive(w.PublicKey(), ct, &got))
	assert.Equal(t, 3, got["n"])
	ct, err = transport.New(app, encryption.Nip04).Send(w.PublicKey(), "hi")
	require.NoError(t, err)
	var s string
	require.NoError(t, w.Receive(appPK, ct, &s))
	assert.Equal(t, "hi", s)

	stranger := hex.Enc(newKey(t).Pub())
	_, err = w.Send(stranger, 1)
	assert.True(t, errors.Is(err, rpc.ErrSessionNotFound))
	assert.True(t, errors.Is(w.Receive(stranger, ct, &s), rpc.ErrSessionNotFound))
}

func TestHandleEvent(t *testing.T) {
	w, _, app := connected(t, "sign_event")
	codec := transport.New(app, nil)
	req := request(t, "sign_event", json.RawMessage(template))
	req.ID = ""
	ev, err := codec.Seal(kind.WalletRequest, w.PublicKey(), req)
	require.NoError(t, err)
	resp, err := w.HandleEvent(context.Bg(), ev)
	require.NoError(t, err)
	assert.Equal(t, kind.WalletResponse, resp.Kind)
	assert.Equal(t, w.PublicKey(), resp.Pubkey)
	assert.Equal(t, hex.Enc(app.Pub()), transport.Addressee(resp))
	assert.Equal(t, ev.ID, resp.Tags.GetFirst("e").Value())
	var r Response
	require.NoError(t, codec.Open(resp, &r))
	assert.Equal(t, "sign_event", r.ResultType)
	assert.Equal(t, ev.ID, r.ID)
	assert.Nil(t, r.Error)
	assert.Contains(t, string(r.Result), `"sig"`)

	// nip04 requests get nip04 replies
	codec = transport.New(app, encryption.Nip04)
	ev, err = codec.Seal(kind.WalletRequest, w.PublicKey(), request(t, "get_public_key", nil))
	require.NoError(t, err)
	resp, err = w.HandleEvent(context.Bg(), ev)
	require.NoError(t, err)
	assert.True(t, encryption.IsNip4(resp.Content))
	require.NoError(t, codec.Open(resp, &r))
	require.NotNil(t, r.Error)
	assert.Equal(t, 4100, r.Error.Code)

	ev, err = codec.Seal(kind.NostrConnect, w.PublicKey(), request(t, "get_public_key", nil))
	require.NoError(t, err)
	_, err = w.HandleEvent(context.Bg(), ev)
	assert.Error(t, err)
	ev, err = codec.Seal(kind.WalletRequest, hex.Enc(newKey(t).Pub()), request(t, "get_public_key", nil))
	require.NoError(t, err)
	_, err = w.HandleEvent(context.Bg(), ev)
	assert.Error(t, err)
}

func TestInfoEvent(t *testing.T) {
	w := New(newKey(t))
	ev, err := w.InfoEvent()
	require.NoError(t, err)
	assert.Equal(t, kind.WalletInfo, ev.Kind)
	assert.Equal(t, w.PublicKey(), ev.Pubkey)
	methods := strings.Fields(ev.Content)
	assert.Contains(t, methods, "sign_event")
	assert.Contains(t, methods, "nip44_decrypt")
	assert.Len(t, methods, len(Supported))
	valid, err := ev.Verify()
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestCode(t *testing.T) {
	assert.Equal(t, 4001, Code(rpc.ErrSessionNotFound))
	assert.Equal(t, 4100, Code(rpc.New(rpc.PermissionDenied, "no")))
	assert.Equal(t, 4040, Code(rpc.ErrProtocol))
	assert.Equal(t, 5000, Code(rpc.ErrPrimitiveFailure))
	assert.Equal(t, 5000, Code(rpc.ErrInputValidation))
	assert.Equal(t, 5000, Code(errors.New("plain")))
}

func TestConcurrentApps(t *testing.T) {
	w := New(newKey(t))
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app := &p256k.Signer{}
			if !assert.NoError(t, app.Generate()) {
				return
			}
			pk := hex.Enc(app.Pub())
			set, _ := permission.ParseSet("get_public_key")
			assert.NoError(t, w.Connect(pk, session.Metadata{Name: "c"}, set))
			r := w.HandleRequest(context.Bg(), pk, request(t, "get_public_key", nil))
			assert.Nil(t, r.Error)
			w.Cleanup()
			w.Disconnect(pk)
		}()
	}
	wg.Wait()
	assert.Empty(t, w.ListConnectedApps())
}

func TestFromConfig(t *testing.T) {
	t.Setenv("PROFILE", t.TempDir())
	t.Setenv("SESSION_MAX_AGE", "1s")
	cfg, err := config.Load()
	require.NoError(t, err)
	var mx sync.Mutex
	var now timestamp.T = 100
	opts := append(FromConfig(cfg), WithClock(func() timestamp.T {
		mx.Lock()
		defer mx.Unlock()
		return now
	}))
	w := New(newKey(t), opts...)
	app := hex.Enc(newKey(t).Pub())
	require.NoError(t, w.Connect(app, session.Metadata{Name: "a"}, nil))
	mx.Lock()
	now += 2
	mx.Unlock()
	assert.Equal(t, []string{app}, w.Cleanup())
}
