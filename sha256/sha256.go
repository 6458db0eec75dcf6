// Package sha256 exposes github.com/minio/sha256-simd, implementing, where
// available, an accelerated SIMD implementation of sha256.
package sha256

import (
	"hash"

	sha256simd "github.com/minio/sha256-simd"
)

const (
	// Size is the size of a sha256 checksum in bytes.
	Size = sha256simd.Size
	// BlockSize is the block size of sha256 in bytes.
	BlockSize = sha256simd.BlockSize
)

// New returns a new hash.Hash computing the sha256 checksum.
func New() hash.Hash { return sha256simd.New() }

// Sum256 returns the sha256 checksum of the data.
func Sum256(data []byte) [Size]byte { return sha256simd.Sum256(data) }

// Sum returns the sha256 checksum of the data as a slice.
func Sum(data []byte) []byte {
	h := sha256simd.Sum256(data)
	return h[:]
}
