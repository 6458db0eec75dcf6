package p256k_test

import (
	"bytes"
	"testing"

	"lukechampine.com/frand"

	"keybunker.lol/chk"
	"keybunker.lol/p256k"
	"keybunker.lol/sha256"
)

func TestSigner_Generate(t *testing.T) {
	for range 100 {
		var err error
		signer := &p256k.Signer{}
		if err = signer.Generate(); chk.E(err) {
			t.Fatal(err)
		}
		s2 := &p256k.Signer{}
		if err = s2.InitSec(signer.Sec()); chk.E(err) {
			t.Fatal(err)
		}
		if !bytes.Equal(signer.Pub(), s2.Pub()) {
			t.Fatalf("pubkey mismatch after InitSec")
		}
	}
}

func TestSignerSignVerify(t *testing.T) {
	var err error
	signer := &p256k.Signer{}
	if err = signer.Generate(); chk.E(err) {
		t.Fatal(err)
	}
	verifier := &p256k.Signer{}
	if err = verifier.InitPub(signer.Pub()); chk.E(err) {
		t.Fatal(err)
	}
	for range 100 {
		msg := sha256.Sum(frand.Bytes(64))
		var sig []byte
		if sig, err = signer.Sign(msg); chk.E(err) {
			t.Fatal(err)
		}
		if len(sig) != p256k.SignatureSize {
			t.Fatalf("signature is %d bytes", len(sig))
		}
		var valid bool
		if valid, err = verifier.Verify(msg, sig); chk.E(err) || !valid {
			t.Fatalf("signature did not verify: %v", err)
		}
		msg[0] ^= 1
		if valid, _ = verifier.Verify(msg, sig); valid {
			t.Fatal("signature verified over a modified message")
		}
	}
}

func TestInitSecRejectsInvalid(t *testing.T) {
	s := &p256k.Signer{}
	if err := s.InitSec(make([]byte, 32)); err == nil {
		t.Fatal("zero key accepted")
	}
	if err := s.InitSec(bytes.Repeat([]byte{0xff}, 32)); err == nil {
		t.Fatal("overflowing key accepted")
	}
	if err := s.InitSec([]byte{1, 2, 3}); err == nil {
		t.Fatal("short key accepted")
	}
}

func TestECDH(t *testing.T) {
	var err error
	a, b := &p256k.Signer{}, &p256k.Signer{}
	if err = a.Generate(); chk.E(err) {
		t.Fatal(err)
	}
	if err = b.Generate(); chk.E(err) {
		t.Fatal(err)
	}
	var ab, ba []byte
	if ab, err = a.ECDH(b.Pub()); chk.E(err) {
		t.Fatal(err)
	}
	if ba, err = b.ECDH(a.Pub()); chk.E(err) {
		t.Fatal(err)
	}
	if !bytes.Equal(ab, ba) {
		t.Fatalf("shared secrets differ\n%0x\n%0x", ab, ba)
	}
}
