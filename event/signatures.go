package event

import (
	"keybunker.lol/chk"
	"keybunker.lol/errorf"
	"keybunker.lol/hex"
	"keybunker.lol/p256k"
	"keybunker.lol/signer"
)

// Sign the event using the signer.I.
//
// Note that this only populates the Pubkey, ID and Sig. The caller must
// set the CreatedAt timestamp as intended.
func (ev *T) Sign(keys signer.I) (err error) {
	ev.Pubkey = hex.Enc(keys.Pub())
	id := ev.GetIDBytes()
	var sig []byte
	if sig, err = keys.Sign(id); chk.E(err) {
		return
	}
	ev.ID, ev.Sig = hex.Enc(id), hex.Enc(sig)
	return
}

// Verify an event is signed by the pubkey it contains, and that its ID is the
// hash of its canonical form.
func (ev *T) Verify() (valid bool, err error) {
	id := ev.GetIDBytes()
	if hex.Enc(id) != ev.ID {
		err = errorf.D("event id %s does not match canonical hash %0x", ev.ID, id)
		return
	}
	var pub, sig []byte
	if pub, err = hex.Dec(ev.Pubkey); chk.D(err) {
		return
	}
	if sig, err = hex.Dec(ev.Sig); chk.D(err) {
		return
	}
	keys := p256k.Signer{}
	if err = keys.InitPub(pub); chk.D(err) {
		return
	}
	if valid, err = keys.Verify(id, sig); chk.D(err) {
		return
	}
	return
}
