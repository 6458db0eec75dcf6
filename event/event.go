// Package event is the nostr event, its canonical encoding, id hash and
// BIP-340 signature.
package event

import (
	"encoding/json"

	"keybunker.lol/chk"
	"keybunker.lol/kind"
	"keybunker.lol/tags"
	"keybunker.lol/text"
	"keybunker.lol/timestamp"
)

// T is the primary datatype of nostr. This is the form of the structure that
// defines its JSON string based format. Keys, ids and signatures are carried
// as lower case hex.
type T struct {
	// ID is the SHA256 hash of the canonical encoding of the event in hex.
	ID string `json:"id"`
	// Pubkey is the x-only public key of the signer of the event in hex.
	Pubkey string `json:"pubkey"`
	// CreatedAt is the UNIX timestamp of the event according to the event
	// creator (never trust a timestamp!)
	CreatedAt timestamp.T `json:"created_at"`
	// Kind is the nostr protocol code for the type of event.
	Kind kind.T `json:"kind"`
	// Tags are a list of tags, which are a list of strings usually structured
	// as a 3 layer scheme indicating specific features of an event.
	Tags tags.T `json:"tags"`
	// Content is an arbitrary string that can contain anything, but usually
	// conforming to a specification relating to the Kind and the Tags.
	Content string `json:"content"`
	// Sig is the signature on the ID hash that validates as coming from the
	// Pubkey in hex.
	Sig string `json:"sig"`
}

// New makes a new event.T with empty tags.
func New() (ev *T) { return &T{Tags: tags.T{}} }

// Clone deep copies an event.
func (ev *T) Clone() (c *T) {
	c = &T{}
	*c = *ev
	c.Tags = ev.Tags.Clone()
	return
}

// Marshal appends the minified JSON object form of the event to dst, with
// strings escaped the same way as in the canonical form.
func (ev *T) Marshal(dst []byte) (b []byte) {
	b = dst
	b = append(b, `{"id":`...)
	b = text.AppendQuote(b, ev.ID)
	b = append(b, `,"pubkey":`...)
	b = text.AppendQuote(b, ev.Pubkey)
	b = append(b, `,"created_at":`...)
	b = ev.CreatedAt.Marshal(b)
	b = append(b, `,"kind":`...)
	b = kindMarshal(b, ev.Kind)
	b = append(b, `,"tags":`...)
	b = ev.Tags.Marshal(b)
	b = append(b, `,"content":`...)
	b = text.AppendQuote(b, ev.Content)
	b = append(b, `,"sig":`...)
	b = text.AppendQuote(b, ev.Sig)
	b = append(b, '}')
	return
}

// MarshalJSON implements json.Marshaler.
func (ev *T) MarshalJSON() ([]byte, error) { return ev.Marshal(nil), nil }

// Serialize renders the event as minified JSON.
func (ev *T) Serialize() []byte { return ev.Marshal(nil) }

// String renders the event as minified JSON.
func (ev *T) String() string { return string(ev.Marshal(nil)) }

// Unmarshal decodes the JSON object form of an event.
func (ev *T) Unmarshal(b []byte) (err error) {
	type alias T
	var a alias
	if err = json.Unmarshal(b, &a); chk.D(err) {
		return
	}
	*ev = T(a)
	if ev.Tags == nil {
		ev.Tags = tags.T{}
	}
	return
}

func kindMarshal(dst []byte, k kind.T) []byte { return append(dst, k.String()...) }
