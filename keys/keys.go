// Package keys is a set of helpers for generating, deriving and validating
// hex encoded nostr keys.
package keys

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"keybunker.lol/chk"
	"keybunker.lol/errorf"
	"keybunker.lol/hex"
	"keybunker.lol/p256k"
)

// ErrKey is returned, wrapped, when a secret key cannot be used.
var ErrKey = errors.New("invalid key")

// GenerateSecretKey creates a new secret key from system entropy.
func GenerateSecretKey() (skb by, err er) {
	signer := &p256k.Signer{}
	if err = signer.Generate(); chk.E(err) {
		return
	}
	skb = signer.Sec()
	return
}

// GenerateSecretKeyHex creates a new secret key and returns it hex encoded.
func GenerateSecretKeyHex() (sks st) {
	var err er
	var skb by
	if skb, err = GenerateSecretKey(); chk.E(err) {
		return
	}
	sks = hex.Enc(skb)
	return
}

// GetPublicKeyHex derives the x-only public key of a hex secret key. Anything
// other than a 64 character lower case hex valid secp256k1 scalar is an error
// wrapping ErrKey.
func GetPublicKeyHex(sk st) (pk st, err er) {
	if !IsValid32ByteHex(sk) {
		err = errorf.D("%w: secret key must be 64 lower case hex characters", ErrKey)
		return
	}
	var skb by
	if skb, err = hex.Dec(sk); chk.D(err) {
		err = errorf.D("%w: %w", ErrKey, err)
		return
	}
	return SecretBytesToPubKeyHex(skb)
}

// SecretBytesToPubKeyHex derives the hex x-only public key from raw secret key
// bytes.
func SecretBytesToPubKeyHex(skb by) (pk st, err er) {
	var pkb by
	if pkb, err = SecretToPubKeyBytes(skb); err != nil {
		return
	}
	pk = hex.Enc(pkb)
	return
}

// SecretToPubKeyBytes derives the x-only public key bytes of a raw secret key.
func SecretToPubKeyBytes(skb by) (pk by, err er) {
	var s *p256k.Signer
	if s, err = p256k.New(skb); err != nil {
		err = errorf.D("%w: %w", ErrKey, err)
		return
	}
	pk = s.Pub()
	return
}

// IsValid32ByteHex reports whether pk is 32 bytes of lower case hex.
func IsValid32ByteHex(pk st) bool { return len(pk) == 64 && hex.IsLowerHex(pk) }

// IsValidPublicKey reports whether pk is a lower case hex x-only public key
// that lies on the curve.
func IsValidPublicKey(pk st) bool {
	if !IsValid32ByteHex(pk) {
		return false
	}
	v, _ := hex.Dec(pk)
	_, err := schnorr.ParsePubKey(v)
	return err == nil
}

// HexPubkeyToBytes decodes a hex public key.
func HexPubkeyToBytes[V by | st](hpk V) (pkb by, err er) {
	if !IsValidPublicKey(st(hpk)) {
		err = errorf.D("'%s' is not a valid public key hex", hpk)
		return
	}
	return hex.DecAppend(nil, by(hpk))
}
