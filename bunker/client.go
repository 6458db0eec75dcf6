package bunker

import (
	"encoding/json"
	"strconv"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
	"lukechampine.com/frand"

	"keybunker.lol/chk"
	"keybunker.lol/context"
	"keybunker.lol/errorf"
	"keybunker.lol/event"
	"keybunker.lol/hex"
	"keybunker.lol/kind"
	"keybunker.lol/log"
	"keybunker.lol/rpc"
	"keybunker.lol/signer"
	"keybunker.lol/transport"
)

// Relay is the store and forward channel between a client and a signer.
type Relay interface {
	// Publish sends an event.
	Publish(c context.T, ev *event.T) (err error)
	// Subscribe delivers events of kind k tagged with pubkey until c is done.
	Subscribe(c context.T, k kind.T, pubkey string) (events <-chan *event.T, err error)
}

// Client talks to a remote signer on behalf of an application key.
type Client struct {
	serial    atomic.Uint64
	key       signer.I
	target    string
	relay     Relay
	codec     *transport.Codec
	listeners *xsync.MapOf[string, chan Response]
	idPrefix  string
	onAuth    func(string)
	// memoized
	publicKey atomic.String
	// SkipSignatureCheck can be set if you don't want to double-check incoming
	// signatures
	SkipSignatureCheck bool
}

// NewClient subscribes to responses for key from the signer target. The
// subscription ends with c.
func NewClient(c context.T, key signer.I, target string, relay Relay,
	onAuth func(string)) (client *Client, err error) {
	client = &Client{
		key:       key,
		target:    target,
		relay:     relay,
		codec:     transport.New(key, nil),
		listeners: xsync.NewMapOf[string, chan Response](),
		idPrefix:  "kb-" + hex.Enc(frand.Bytes(4)),
		onAuth:    onAuth,
	}
	var events <-chan *event.T
	if events, err = relay.Subscribe(c, kind.NostrConnect, hex.Enc(key.Pub())); chk.E(err) {
		return
	}
	go client.listen(events)
	return
}

func (client *Client) listen(events <-chan *event.T) {
	for ev := range events {
		if ev.Kind != kind.NostrConnect || ev.Pubkey != client.target {
			continue
		}
		var resp Response
		if err := client.codec.Open(ev, &resp); chk.D(err) {
			continue
		}
		if resp.Result == AuthURL {
			// special case, the error carries the url and the real response
			// follows later
			if client.onAuth != nil {
				client.onAuth(resp.Error)
			}
			continue
		}
		if waiter, ok := client.listeners.LoadAndDelete(resp.ID); ok {
			waiter <- resp
			continue
		}
		log.D.F("unsolicited response %s from %s", resp.ID, ev.Pubkey)
	}
}

// ConnectBunker parses a bunker url, subscribes for responses and sends the
// connect request with the secret of the url and the requested permissions.
func ConnectBunker(c context.T, key signer.I, bunkerURL string, relay Relay,
	perms string, onAuth func(string)) (client *Client, err error) {
	var target, secret string
	if target, _, secret, err = ParseBunkerURL(bunkerURL); err != nil {
		return
	}
	if client, err = NewClient(c, key, target, relay, onAuth); chk.E(err) {
		return
	}
	params := []string{target, secret}
	if perms != "" {
		params = append(params, perms)
	}
	_, err = client.RPC(c, "connect", params...)
	return
}

// RPC sends a request and waits for its response or for c to be done.
func (client *Client) RPC(c context.T, method string, params ...string) (result string, err error) {
	id := client.idPrefix + "-" + strconv.FormatUint(client.serial.Inc(), 10)
	if params == nil {
		params = []string{}
	}
	var req rpc.Request
	if req, err = rpc.NewRequest(id, method, params); chk.E(err) {
		return
	}
	var ev *event.T
	if ev, err = client.codec.Seal(kind.NostrConnect, client.target, req); chk.E(err) {
		return
	}
	waiter := make(chan Response, 1)
	client.listeners.Store(id, waiter)
	defer client.listeners.Delete(id)
	if err = client.relay.Publish(c, ev); chk.E(err) {
		return
	}
	select {
	case <-c.Done():
		err = errorf.E("%s %s: %w", method, id, c.Err())
		return
	case resp := <-waiter:
		if resp.Error != "" {
			err = errorf.D("response error: %s", resp.Error)
			return
		}
		result = resp.Result
		return
	}
}

func (client *Client) Ping(c context.T) (err error) {
	_, err = client.RPC(c, "ping")
	return
}

// GetPublicKey asks for the signer public key once and remembers it.
func (client *Client) GetPublicKey(c context.T) (pk string, err error) {
	if pk = client.publicKey.Load(); pk != "" {
		return
	}
	if pk, err = client.RPC(c, "get_public_key"); err != nil {
		return
	}
	client.publicKey.Store(pk)
	return
}

// SignEvent replaces ev with the signed event returned by the signer.
func (client *Client) SignEvent(c context.T, ev *event.T) (err error) {
	var resp string
	if resp, err = client.RPC(c, "sign_event", ev.String()); err != nil {
		return
	}
	if err = json.Unmarshal([]byte(resp), ev); chk.E(err) {
		return
	}
	if !client.SkipSignatureCheck {
		var valid bool
		if valid, err = ev.Verify(); chk.E(err) {
			return
		}
		if !valid {
			err = errorf.E("sign_event response from bunker has invalid signature")
			return
		}
	}
	return
}

func (client *Client) NIP44Encrypt(c context.T, targetPublicKey, plaintext string) (string, error) {
	return client.RPC(c, "nip44_encrypt", targetPublicKey, plaintext)
}

func (client *Client) NIP44Decrypt(c context.T, targetPublicKey, ciphertext string) (string, error) {
	return client.RPC(c, "nip44_decrypt", targetPublicKey, ciphertext)
}

func (client *Client) NIP04Encrypt(c context.T, targetPublicKey, plaintext string) (string, error) {
	return client.RPC(c, "nip04_encrypt", targetPublicKey, plaintext)
}

func (client *Client) NIP04Decrypt(c context.T, targetPublicKey, ciphertext string) (string, error) {
	return client.RPC(c, "nip04_decrypt", targetPublicKey, ciphertext)
}
