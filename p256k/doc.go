// Package p256k is a signer.I implementation of the BIP-340 nostr X-only
// signatures and public keys, and ECDH, using github.com/btcsuite/btcd/btcec/v2.
package p256k
