package event

import (
	"keybunker.lol/hex"
	"keybunker.lol/sha256"
	"keybunker.lol/text"
)

// ToCanonical converts the event to the canonical encoding used to derive the
// event ID, the compact JSON array
//
//	[0,<pubkey>,<created_at>,<kind>,<tags>,<content>]
func (ev *T) ToCanonical(dst []byte) (b []byte) {
	b = dst
	b = append(b, "[0,"...)
	b = text.AppendQuote(b, ev.Pubkey)
	b = append(b, ',')
	b = ev.CreatedAt.Marshal(b)
	b = append(b, ',')
	b = kindMarshal(b, ev.Kind)
	b = append(b, ',')
	b = ev.Tags.Marshal(b)
	b = append(b, ',')
	b = text.AppendQuote(b, ev.Content)
	b = append(b, ']')
	return
}

// Hash is the sha256 of a canonical encoding.
func Hash(in []byte) (out []byte) { return sha256.Sum(in) }

// GetIDBytes returns the raw SHA256 hash of the canonical form of an event.T.
func (ev *T) GetIDBytes() []byte { return Hash(ev.ToCanonical(nil)) }

// GetID returns the hex SHA256 hash of the canonical form of an event.T.
func (ev *T) GetID() string { return hex.Enc(ev.GetIDBytes()) }
