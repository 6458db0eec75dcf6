package p256k

import (
	ec "github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"keybunker.lol/chk"
	"keybunker.lol/errorf"
	"keybunker.lol/signer"
)

const (
	// SecKeyBytesLen is the length of a raw secret key.
	SecKeyBytesLen = ec.PrivKeyBytesLen
	// PubKeyBytesLen is the length of an x-only public key.
	PubKeyBytesLen = schnorr.PubKeyBytesLen
	// SignatureSize is the length of a BIP-340 signature.
	SignatureSize = schnorr.SignatureSize
)

// Signer is an implementation of signer.I that uses the btcec library.
//
// Either the secret or the public key must be populated, the former is for
// generating signatures, the latter is for verifying them.
type Signer struct {
	SecretKey *ec.PrivateKey
	PublicKey *ec.PublicKey
	pkb, skb  []byte
}

var _ signer.I = &Signer{}

// New creates a Signer loaded with the provided secret key bytes.
func New(sec []byte) (s *Signer, err error) {
	s = &Signer{}
	if err = s.InitSec(sec); chk.D(err) {
		s = nil
		return
	}
	return
}

// Generate creates a new Signer.
func (s *Signer) Generate() (err error) {
	if s.SecretKey, err = ec.NewPrivateKey(); chk.E(err) {
		return
	}
	s.skb = s.SecretKey.Serialize()
	s.PublicKey = s.SecretKey.PubKey()
	s.pkb = schnorr.SerializePubKey(s.PublicKey)
	return
}

// InitSec initialises a Signer using raw secret key bytes. Zero and out of
// range scalars are rejected.
func (s *Signer) InitSec(sec []byte) (err error) {
	if len(sec) != SecKeyBytesLen {
		err = errorf.D("sec key must be %d bytes, got %d", SecKeyBytesLen, len(sec))
		return
	}
	var scalar ec.ModNScalar
	if overflow := scalar.SetByteSlice(sec); overflow || scalar.IsZero() {
		err = errorf.D("sec key is not a valid secp256k1 scalar")
		return
	}
	s.SecretKey, s.PublicKey = ec.PrivKeyFromBytes(sec)
	s.skb = make([]byte, SecKeyBytesLen)
	copy(s.skb, sec)
	s.pkb = schnorr.SerializePubKey(s.PublicKey)
	return
}

// InitPub initializes a signature verifier Signer from raw x-only public key
// bytes.
func (s *Signer) InitPub(pub []byte) (err error) {
	if s.PublicKey, err = schnorr.ParsePubKey(pub); chk.D(err) {
		return
	}
	s.pkb = schnorr.SerializePubKey(s.PublicKey)
	return
}

// Sec returns the raw secret key bytes.
func (s *Signer) Sec() (b []byte) { return s.skb }

// Pub returns the raw BIP-340 schnorr public key bytes.
func (s *Signer) Pub() (b []byte) { return s.pkb }

// Sign a message with the Signer. Requires an initialised secret key.
func (s *Signer) Sign(msg []byte) (sig []byte, err error) {
	if s.SecretKey == nil {
		err = errorf.E("p256k: Signer not initialized")
		return
	}
	var si *schnorr.Signature
	if si, err = schnorr.Sign(s.SecretKey, msg); chk.E(err) {
		return
	}
	sig = si.Serialize()
	return
}

// Verify a message signature, only requires the public key is initialised.
func (s *Signer) Verify(msg, sig []byte) (valid bool, err error) {
	if s.PublicKey == nil {
		err = errorf.E("p256k: Pubkey not initialized")
		return
	}
	var si *schnorr.Signature
	if si, err = schnorr.ParseSignature(sig); chk.D(err) {
		err = errorf.D("failed to parse signature: %d bytes: %w", len(sig), err)
		return
	}
	valid = si.Verify(msg, s.PublicKey)
	return
}

// Zero wipes the bytes of the secret key.
func (s *Signer) Zero() {
	if s.SecretKey != nil {
		s.SecretKey.Zero()
	}
	for i := range s.skb {
		s.skb[i] = 0
	}
}

// ECDH creates a shared secret from the secret key and a provided x-only
// public key. The result is the x coordinate of the shared point, which NIP-04
// uses as its AES key and NIP-44 feeds to HKDF.
func (s *Signer) ECDH(pubkeyBytes []byte) (secret []byte, err error) {
	if s.SecretKey == nil {
		err = errorf.E("p256k: Signer not initialized")
		return
	}
	var pub *ec.PublicKey
	if pub, err = ec.ParsePubKey(append([]byte{0x02}, pubkeyBytes...)); chk.D(err) {
		err = errorf.D("error parsing receiver public key '%0x': %w", pubkeyBytes, err)
		return
	}
	secret = ec.GenerateSharedSecret(s.SecretKey, pub)
	return
}
