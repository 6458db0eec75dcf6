// Package hex is a set of aliases and helpers around encoding/hex, with the
// append variants backed by github.com/templexxx/xhex for speed.
package hex

import (
	"encoding/hex"

	"github.com/templexxx/xhex"

	"keybunker.lol/errorf"
)

var Enc = hex.EncodeToString
var EncBytes = hex.Encode
var Dec = hex.DecodeString
var DecBytes = hex.Decode
var DecLen = hex.DecodedLen

type InvalidByteError = hex.InvalidByteError

// EncAppend appends the lower case hex encoding of src to dst.
func EncAppend(dst, src by) (b by) {
	l := len(dst)
	dst = append(dst, make(by, len(src)*2)...)
	xhex.Encode(dst[l:], src)
	return dst
}

// DecAppend appends the decoded bytes of the hex in src to dst.
func DecAppend(dst, src by) (b by, err er) {
	if len(src)%2 != 0 {
		err = errorf.D("odd length hex string: %d", len(src))
		return
	}
	l := len(dst)
	b = dst
	b = append(b, make(by, len(src)/2)...)
	if err = xhex.Decode(b[l:], src); err != nil {
		b = dst
		return
	}
	return
}

// IsLowerHex reports whether s is a non-empty even length string of the lower
// case hex alphabet, the only form nostr accepts for keys, ids and signatures.
func IsLowerHex(s st) bool {
	if len(s) == 0 || len(s)%2 != 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
