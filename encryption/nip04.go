package encryption

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"strings"

	"lukechampine.com/frand"

	"keybunker.lol/chk"
	"keybunker.lol/errorf"
	"keybunker.lol/signer"
)

// ivMarker separates the ciphertext and the initialization vector of a NIP-04
// payload.
const ivMarker = "?iv="

// ComputeSharedSecret returns the NIP-04 shared secret, the raw x coordinate of
// the ECDH point of the signer secret and the counterparty public key.
func ComputeSharedSecret(s signer.I, pub by) (sharedSecret by, err er) {
	if sharedSecret, err = s.ECDH(pub); chk.D(err) {
		return
	}
	return
}

// EncryptNip4 encrypts a message with AES-256-CBC under a fresh random IV, in
// the `<base64 ciphertext>?iv=<base64 iv>` form of NIP-04. Empty messages are
// permitted, they pad out to a single block.
func EncryptNip4(msg st, key by) (ct st, err er) {
	if len(key) != 32 {
		err = errorf.E("nip04 key must be 32 bytes, got %d", len(key))
		return
	}
	iv := frand.Bytes(aes.BlockSize)
	var block cipher.Block
	if block, err = aes.NewCipher(key); chk.E(err) {
		return
	}
	plain := pkcs7Pad(by(msg), aes.BlockSize)
	out := make(by, len(plain))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plain)
	ct = base64.StdEncoding.EncodeToString(out) + ivMarker +
		base64.StdEncoding.EncodeToString(iv)
	return
}

// DecryptNip4 reverses EncryptNip4.
func DecryptNip4(content st, key by) (msg st, err er) {
	if len(key) != 32 {
		err = errorf.E("nip04 key must be 32 bytes, got %d", len(key))
		return
	}
	parts := strings.Split(content, ivMarker)
	if len(parts) != 2 {
		err = errorf.D("invalid nip04 payload, missing %s", ivMarker)
		return
	}
	var ciphertext, iv by
	if ciphertext, err = base64.StdEncoding.DecodeString(parts[0]); chk.D(err) {
		return
	}
	if iv, err = base64.StdEncoding.DecodeString(parts[1]); chk.D(err) {
		return
	}
	if len(iv) != aes.BlockSize {
		err = errorf.D("invalid nip04 iv length %d", len(iv))
		return
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		err = errorf.D("invalid nip04 ciphertext length %d", len(ciphertext))
		return
	}
	var block cipher.Block
	if block, err = aes.NewCipher(key); chk.E(err) {
		return
	}
	plain := make(by, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)
	var unpadded by
	if unpadded, err = pkcs7Unpad(plain, aes.BlockSize); chk.D(err) {
		return
	}
	msg = st(unpadded)
	return
}

// IsNip4 reports whether a payload carries the NIP-04 iv marker.
func IsNip4(content st) bool { return strings.Contains(content, ivMarker) }

func pkcs7Pad(b by, size no) by {
	n := size - len(b)%size
	return append(b[:len(b):len(b)], bytes.Repeat(by{byte(n)}, n)...)
}

func pkcs7Unpad(b by, size no) (out by, err er) {
	if len(b) == 0 || len(b)%size != 0 {
		err = errorf.D("invalid padded length %d", len(b))
		return
	}
	n := no(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		err = errorf.D("invalid padding")
		return
	}
	for _, c := range b[len(b)-n:] {
		if no(c) != n {
			err = errorf.D("invalid padding")
			return
		}
	}
	out = b[:len(b)-n]
	return
}
