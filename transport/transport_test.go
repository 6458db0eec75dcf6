package transport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keybunker.lol/encryption"
	"keybunker.lol/hex"
	"keybunker.lol/kind"
	"keybunker.lol/p256k"
	"keybunker.lol/rpc"
	"keybunker.lol/tags"
)

func pair(t *testing.T) (a, b *p256k.Signer) {
	a, b = &p256k.Signer{}, &p256k.Signer{}
	require.NoError(t, a.Generate())
	require.NoError(t, b.Generate())
	return
}

func TestSendReceive(t *testing.T) {
	a, b := pair(t)
	for _, scheme := range []encryption.Scheme{encryption.Nip04, encryption.Nip44} {
		ca, cb := New(a, scheme), New(b, encryption.Nip44)
		in := rpc.Request{ID: "7", Method: "get_public_key"}
		ct, err := ca.Send(hex.Enc(b.Pub()), in)
		require.NoError(t, err)
		var out rpc.Request
		require.NoError(t, cb.Receive(hex.Enc(a.Pub()), ct, &out))
		assert.Equal(t, in, out)
	}
}

func TestReceiveFailures(t *testing.T) {
	a, b := pair(t)
	ca, cb := New(a, nil), New(b, nil)
	ct, err := ca.Send(hex.Enc(b.Pub()), "x")
	require.NoError(t, err)
	_, c := pair(t)
	var s string
	err = cb.Receive(hex.Enc(c.Pub()), ct, &s)
	assert.True(t, errors.Is(err, rpc.ErrPrimitiveFailure), "%v", err)
	ct, err = encryption.Nip44.Encrypt("not json", a, b.Pub())
	require.NoError(t, err)
	err = cb.Receive(hex.Enc(a.Pub()), ct, &s)
	assert.True(t, errors.Is(err, rpc.ErrInputValidation), "%v", err)
	_, err = ca.Send("nope", "x")
	assert.True(t, errors.Is(err, rpc.ErrInputValidation))
}

func TestSealOpen(t *testing.T) {
	a, b := pair(t)
	ca, cb := New(a, nil), New(b, nil)
	ev, err := ca.Seal(kind.NostrConnect, hex.Enc(b.Pub()), map[string]string{"hi": "there"},
		tags.New("e", "ref"))
	require.NoError(t, err)
	assert.Equal(t, kind.NostrConnect, ev.Kind)
	assert.Equal(t, hex.Enc(b.Pub()), Addressee(ev))
	assert.Equal(t, "ref", ev.Tags.GetFirst("e").Value())
	var m map[string]string
	require.NoError(t, cb.Open(ev, &m))
	assert.Equal(t, "there", m["hi"])
	ev.Content = ev.Content[:len(ev.Content)-4] + "AAAA"
	assert.True(t, errors.Is(cb.Open(ev, &m), rpc.ErrInputValidation))
}

func TestOpenNip04(t *testing.T) {
	a, b := pair(t)
	ev, err := New(a, encryption.Nip04).Seal(kind.NostrConnect, hex.Enc(b.Pub()), []int{1, 2})
	require.NoError(t, err)
	assert.Contains(t, ev.Content, "?iv=")
	var v []int
	require.NoError(t, New(b, encryption.Nip44).Open(ev, &v))
	assert.Equal(t, []int{1, 2}, v)
}
