// Package kind holds the event kinds used by the remote signing and wallet
// connect protocols.
package kind

import (
	"strconv"
)

// T - which will be externally referenced as kind.T is the event type in the
// nostr protocol, the use of the capital T signifying type, consistent with Go
// idiom, the Go standard library, and much, conformant, existing code.
type T uint16

func New[V uint16 | uint32 | int32 | int | int64](k V) T { return T(k) }

func (k T) ToInt() int     { return int(k) }
func (k T) ToU16() uint16  { return uint16(k) }
func (k T) ToU64() uint64  { return uint64(k) }
func (k T) String() string { return strconv.FormatUint(uint64(k), 10) }

// Name returns the human readable name of a known kind, or its number.
func (k T) Name() string {
	if n, ok := Map[k]; ok {
		return n
	}
	return k.String()
}

// IsEphemeral reports whether relays are not expected to store the kind.
func (k T) IsEphemeral() bool { return k >= 20000 && k < 30000 }

// Parse reads a decimal kind number.
func Parse(s string) (k T, err error) {
	var n uint64
	if n, err = strconv.ParseUint(s, 10, 16); err != nil {
		return
	}
	k = T(n)
	return
}

const (
	ProfileMetadata        T = 0
	TextNote               T = 1
	FollowList             T = 3
	EncryptedDirectMessage T = 4
	Deletion               T = 5
	Repost                 T = 6
	Reaction               T = 7
	// NWCWalletInfo is the replaceable event a wallet service publishes listing
	// the methods it supports.
	NWCWalletInfo T = 13194
	WalletInfo    = NWCWalletInfo
	// NWCWalletRequest carries an encrypted request from a connected app.
	NWCWalletRequest T = 23194
	WalletRequest      = NWCWalletRequest
	// NWCWalletResponse carries the encrypted reply of the wallet service.
	NWCWalletResponse T = 23195
	WalletResponse      = NWCWalletResponse
	// NostrConnect carries NIP-46 requests and responses in both directions.
	NostrConnect T = 24133
)

// Map is a map of event kind numbers to their human readable names.
var Map = map[T]string{
	ProfileMetadata:        "ProfileMetadata",
	TextNote:               "TextNote",
	FollowList:             "FollowList",
	EncryptedDirectMessage: "EncryptedDirectMessage",
	Deletion:               "Deletion",
	Repost:                 "Repost",
	Reaction:               "Reaction",
	NWCWalletInfo:          "NWCWalletInfo",
	NWCWalletRequest:       "NWCWalletRequest",
	NWCWalletResponse:      "NWCWalletResponse",
	NostrConnect:           "NostrConnect",
}
