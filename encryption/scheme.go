// Package encryption implements the NIP-04 and NIP-44 payload encryption
// schemes keyed by the ECDH shared secret of a signer and a counterparty.
package encryption

import (
	"keybunker.lol/chk"
	"keybunker.lol/signer"
)

// Scheme is an encryption primitive keyed by a local signer and the x-only
// public key of the other party. The secret key stays inside the signer.
type Scheme interface {
	// Name is the scheme label used in method names, "nip04" or "nip44".
	Name() st
	Encrypt(plaintext st, s signer.I, counterparty by) (ciphertext st, err er)
	Decrypt(ciphertext st, s signer.I, counterparty by) (plaintext st, err er)
}

var (
	// Nip04 is AES-256-CBC with a random IV under the raw ECDH x coordinate.
	Nip04 Scheme = nip04{}
	// Nip44 is the NIP-44 v2 ChaCha20 and HMAC-SHA256 scheme.
	Nip44 Scheme = nip44{}
)

type nip04 struct{}

func (nip04) Name() st { return "nip04" }

func (nip04) Encrypt(plaintext st, s signer.I, counterparty by) (ciphertext st, err er) {
	var key by
	if key, err = ComputeSharedSecret(s, counterparty); chk.D(err) {
		return
	}
	return EncryptNip4(plaintext, key)
}

func (nip04) Decrypt(ciphertext st, s signer.I, counterparty by) (plaintext st, err er) {
	var key by
	if key, err = ComputeSharedSecret(s, counterparty); chk.D(err) {
		return
	}
	return DecryptNip4(ciphertext, key)
}

type nip44 struct{}

func (nip44) Name() st { return "nip44" }

func (nip44) Encrypt(plaintext st, s signer.I, counterparty by) (ciphertext st, err er) {
	var ck by
	if ck, err = GenerateConversationKey(s, counterparty); chk.D(err) {
		return
	}
	return Encrypt(plaintext, ck)
}

func (nip44) Decrypt(ciphertext st, s signer.I, counterparty by) (plaintext st, err er) {
	var ck by
	if ck, err = GenerateConversationKey(s, counterparty); chk.D(err) {
		return
	}
	return Decrypt(ciphertext, ck)
}

// Detect picks the scheme that produced a payload, NIP-04 payloads carry an iv
// marker and anything else is taken to be NIP-44.
func Detect(ciphertext st) Scheme {
	if IsNip4(ciphertext) {
		return Nip04
	}
	return Nip44
}
