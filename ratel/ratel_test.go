package ratel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keybunker.lol/keys"
	"keybunker.lol/lol"
	"keybunker.lol/permission"
	"keybunker.lol/session"
)

func open(t *testing.T, path string) *T {
	r := New(path, lol.Warn)
	require.NoError(t, r.Init())
	return r
}

func TestSessionsSurviveRestart(t *testing.T) {
	dir := t.TempDir()
	r := open(t, dir)
	pub, err := keys.GetPublicKeyHex(keys.GenerateSecretKeyHex())
	require.NoError(t, err)
	client, err := keys.GetPublicKeyHex(keys.GenerateSecretKeyHex())
	require.NoError(t, err)
	s, err := session.NewStore(pub, session.WithPersister(r))
	require.NoError(t, err)
	perms := permission.NewSet(permission.Allow(permission.GetPublicKey), permission.AllowKind(1))
	a, err := s.Create(client, session.Metadata{Name: "a"}, perms)
	require.NoError(t, err)
	b, err := s.Create(client, session.Metadata{Name: "b"}, nil)
	require.NoError(t, err)
	s.Remove(b.ID)
	n, err := r.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, r.Close())

	r = open(t, dir)
	defer r.Close()
	s, err = session.NewStore(pub, session.WithPersister(r))
	require.NoError(t, err)
	got, ok := s.Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, a, got)
	_, ok = s.Get(b.ID)
	assert.False(t, ok)
}

func TestInMemory(t *testing.T) {
	r := open(t, "")
	defer r.Close()
	assert.Empty(t, r.Path())
	require.NoError(t, r.Delete("nothing"))
	var seen int
	require.NoError(t, r.Load(func(*session.T) error { seen++; return nil }))
	assert.Zero(t, seen)
}
