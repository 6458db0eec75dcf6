// Package transport carries requests and responses over a store and forward
// channel, JSON encoded and encrypted to the counterparty, optionally sealed in
// a signed event addressed with a p tag.
//
// There is no ordering across messages, callers correlate by request id.
// Failures are final for the message, nothing is retried.
package transport

import (
	"encoding/json"

	"keybunker.lol/chk"
	"keybunker.lol/encryption"
	"keybunker.lol/event"
	"keybunker.lol/hex"
	"keybunker.lol/keys"
	"keybunker.lol/kind"
	"keybunker.lol/rpc"
	"keybunker.lol/signer"
	"keybunker.lol/tags"
	"keybunker.lol/timestamp"
)

// Codec encrypts with the key of one local party.
type Codec struct {
	signer signer.I
	scheme encryption.Scheme
	clock  timestamp.Clock
}

// New creates a codec that encrypts outgoing messages with scheme. Incoming
// messages are decrypted with whichever scheme produced them.
func New(s signer.I, scheme encryption.Scheme) *Codec {
	if scheme == nil {
		scheme = encryption.Nip44
	}
	return &Codec{signer: s, scheme: scheme, clock: timestamp.System}
}

// Scheme is the scheme used for outgoing messages.
func (c *Codec) Scheme() encryption.Scheme { return c.scheme }

// WithScheme is a copy of the codec that encrypts with scheme, used to answer
// a message in the scheme it arrived in.
func (c *Codec) WithScheme(scheme encryption.Scheme) *Codec {
	cc := *c
	cc.scheme = scheme
	return &cc
}

// WithClock is a copy of the codec that stamps sealed events with clock.
func (c *Codec) WithClock(clock timestamp.Clock) *Codec {
	cc := *c
	cc.clock = clock
	return &cc
}

func counterpartyKey(counterparty string) (pk []byte, err error) {
	if !keys.IsValidPublicKey(counterparty) {
		err = &rpc.Error{Kind: rpc.InputValidation,
			Msg: "invalid counterparty key " + counterparty, Err: keys.ErrKey}
		return
	}
	return hex.Dec(counterparty)
}

// Send encodes msg as JSON and encrypts it to counterparty.
func (c *Codec) Send(counterparty string, msg any) (ciphertext string, err error) {
	var pk, b []byte
	if pk, err = counterpartyKey(counterparty); err != nil {
		return
	}
	if b, err = json.Marshal(msg); chk.E(err) {
		err = rpc.Wrap(rpc.InputValidation, err, "encoding message")
		return
	}
	if ciphertext, err = c.scheme.Encrypt(string(b), c.signer, pk); chk.E(err) {
		err = rpc.Wrap(rpc.PrimitiveFailure, err, c.scheme.Name()+" encrypt")
		return
	}
	return
}

// Receive decrypts a message from counterparty and decodes its JSON into v.
func (c *Codec) Receive(counterparty, ciphertext string, v any) (err error) {
	var pk []byte
	if pk, err = counterpartyKey(counterparty); err != nil {
		return
	}
	scheme := encryption.Detect(ciphertext)
	var plain string
	if plain, err = scheme.Decrypt(ciphertext, c.signer, pk); chk.D(err) {
		return rpc.Wrap(rpc.PrimitiveFailure, err, scheme.Name()+" decrypt")
	}
	if err = json.Unmarshal([]byte(plain), v); chk.D(err) {
		return rpc.Wrap(rpc.InputValidation, err, "decoding message")
	}
	return
}

// Seal encrypts msg to counterparty as the content of a signed event of kind
// k, tagged with the counterparty and any extra tags.
func (c *Codec) Seal(k kind.T, counterparty string, msg any, extra ...tags.Tag) (ev *event.T, err error) {
	ev = &event.T{
		CreatedAt: c.clock(),
		Kind:      k,
		Tags:      append(tags.T{tags.New("p", counterparty)}, extra...),
	}
	if ev.Content, err = c.Send(counterparty, msg); err != nil {
		ev = nil
		return
	}
	if err = ev.Sign(c.signer); chk.E(err) {
		ev, err = nil, rpc.Wrap(rpc.PrimitiveFailure, err, "signing sealed event")
		return
	}
	return
}

// Open checks the signature of ev and decodes its content, encrypted by the
// event author, into v.
func (c *Codec) Open(ev *event.T, v any) (err error) {
	var valid bool
	if valid, err = ev.Verify(); err != nil || !valid {
		return &rpc.Error{Kind: rpc.InputValidation, Msg: "event " + ev.ID + " has an invalid signature", Err: err}
	}
	return c.Receive(ev.Pubkey, ev.Content, v)
}

// Addressee is the value of the first p tag of ev.
func Addressee(ev *event.T) string { return ev.Tags.GetFirst("p").Value() }
