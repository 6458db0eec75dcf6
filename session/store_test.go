package session

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"keybunker.lol/context"
	"keybunker.lol/keys"
	"keybunker.lol/kind"
	"keybunker.lol/permission"
	"keybunker.lol/rpc"
	"keybunker.lol/timestamp"
)

type clock struct{ now atomic.Int64 }

func (c *clock) Now() timestamp.T { return timestamp.T(c.now.Load()) }
func (c *clock) Set(t int64)      { c.now.Store(t) }

func newPub(t *testing.T) string {
	pk, err := keys.GetPublicKeyHex(keys.GenerateSecretKeyHex())
	require.NoError(t, err)
	return pk
}

func newStore(t *testing.T, opts ...Option) (s *Store, c *clock) {
	c = &clock{}
	c.Set(1_700_000_000)
	s, err := NewStore(newPub(t), append([]Option{WithClock(c.Now)}, opts...)...)
	require.NoError(t, err)
	return
}

var md = Metadata{Name: "test app", URL: "https://example.com"}

func TestCreateRejectsMalformedKey(t *testing.T) {
	s, _ := newStore(t)
	for _, pk := range []string{"", "zz", newPub(t)[:62],
		"DFF1D77F2A671C5F36183726DB2341BE58FEAE1DA2DECED843240F7B502BA659"} {
		_, err := s.Create(pk, md, nil)
		assert.True(t, errors.Is(err, rpc.ErrInputValidation), pk)
		assert.True(t, errors.Is(err, keys.ErrKey), pk)
	}
	assert.Equal(t, 0, s.Len())
}

func TestCreateValidatesMetadata(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.Create(newPub(t), Metadata{}, nil)
	assert.Equal(t, rpc.InputValidation, rpc.KindOf(err))
	_, err = s.Create(newPub(t), Metadata{Name: "x", URL: "not a url"}, nil)
	assert.Equal(t, rpc.InputValidation, rpc.KindOf(err))
	sess, err := s.Create(newPub(t), Metadata{Name: "x"}, nil)
	require.NoError(t, err)
	assert.Empty(t, sess.Permissions)
}

func TestIDsUnique(t *testing.T) {
	for _, mode := range []IDMode{Random, Hashed} {
		s, _ := newStore(t, WithIDMode(mode))
		pk := newPub(t)
		seen := make(map[string]struct{})
		var mx sync.Mutex
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 100 {
					sess, err := s.Create(pk, md, nil)
					if !assert.NoError(t, err) {
						return
					}
					assert.Len(t, sess.ID, 64)
					mx.Lock()
					seen[sess.ID] = struct{}{}
					mx.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Len(t, seen, 800)
		assert.Equal(t, 800, s.Len())
	}
}

func TestTouch(t *testing.T) {
	s, c := newStore(t)
	sess, err := s.Create(newPub(t), md, nil)
	require.NoError(t, err)
	c.Set(1_700_000_050)
	require.NoError(t, s.Touch(sess.ID))
	got, ok := s.Get(sess.ID)
	require.True(t, ok)
	assert.EqualValues(t, 1_700_000_050, got.LastUsed)
	// a clock step backwards does not rewind
	c.Set(1_700_000_010)
	require.NoError(t, s.Touch(sess.ID))
	got, _ = s.Get(sess.ID)
	assert.EqualValues(t, 1_700_000_050, got.LastUsed)
	assert.GreaterOrEqual(t, got.LastUsed, got.CreatedAt)
	err = s.Touch("missing")
	assert.True(t, errors.Is(err, rpc.ErrSessionNotFound))
}

func TestRemoveIdempotent(t *testing.T) {
	s, _ := newStore(t)
	sess, err := s.Create(newPub(t), md, nil)
	require.NoError(t, err)
	s.Remove(sess.ID)
	s.Remove(sess.ID)
	_, ok := s.Get(sess.ID)
	assert.False(t, ok)
}

func TestCleanupBoundary(t *testing.T) {
	s, c := newStore(t)
	base := int64(1_700_000_000)
	ids := make(map[int64]string)
	for _, age := range []int64{0, 59, 60, 61, 3600} {
		c.Set(base - age)
		sess, err := s.Create(newPub(t), md, nil)
		require.NoError(t, err)
		ids[age] = sess.ID
	}
	c.Set(base)
	removed := s.Cleanup(time.Minute)
	want := []string{ids[61], ids[3600]}
	assert.ElementsMatch(t, want, removed)
	for _, age := range []int64{0, 59, 60} {
		_, ok := s.Get(ids[age])
		assert.True(t, ok, "age %d", age)
	}
	assert.Equal(t, 3, s.Len())
}

func TestNoAliasing(t *testing.T) {
	s, _ := newStore(t)
	perms := permission.NewSet(permission.Allow(permission.GetPublicKey))
	sess, err := s.Create(newPub(t), md, perms)
	require.NoError(t, err)
	perms[permission.Allow(permission.SignEvent)] = struct{}{}
	sess.Permissions[permission.Allow(permission.Encrypt)] = struct{}{}
	sess.LastUsed = 0
	got, _ := s.Get(sess.ID)
	assert.Equal(t, []string{"get_public_key"}, got.Permissions.Strings())
	assert.NotZero(t, got.LastUsed)
	for _, l := range s.List() {
		l.Permissions[permission.Allow(permission.Decrypt)] = struct{}{}
	}
	got, _ = s.Get(sess.ID)
	assert.Len(t, got.Permissions, 1)
}

func TestGrantAdditive(t *testing.T) {
	s, _ := newStore(t)
	sess, err := s.Create(newPub(t), md, permission.NewSet(permission.Allow(permission.Encrypt)))
	require.NoError(t, err)
	got, err := s.Grant(sess.ID, permission.NewSet(permission.AllowKind(1)))
	require.NoError(t, err)
	assert.Equal(t, []string{"encrypt", "sign_event:1"}, got.Permissions.Strings())
	_, err = s.Grant("missing", nil)
	assert.True(t, errors.Is(err, rpc.ErrSessionNotFound))
}

func TestListAndByPubkey(t *testing.T) {
	s, c := newStore(t)
	pk := newPub(t)
	first, err := s.Create(pk, md, nil)
	require.NoError(t, err)
	c.Set(1_700_000_100)
	second, err := s.Create(pk, md, nil)
	require.NoError(t, err)
	_, err = s.Create(newPub(t), md, nil)
	require.NoError(t, err)
	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, first.ID, list[0].ID)
	got, ok := s.ByPubkey(pk)
	require.True(t, ok)
	assert.Equal(t, second.ID, got.ID)
	c.Set(1_700_000_200)
	require.NoError(t, s.Touch(first.ID))
	got, _ = s.ByPubkey(pk)
	assert.Equal(t, first.ID, got.ID)
	_, ok = s.ByPubkey(newPub(t))
	assert.False(t, ok)
}

func TestSweep(t *testing.T) {
	s, c := newStore(t)
	_, err := s.Create(newPub(t), md, nil)
	require.NoError(t, err)
	c.Set(1_700_010_000)
	ctx, cancel := context.Cancel(context.Bg())
	done := make(chan struct{})
	go func() {
		s.Sweep(ctx, time.Millisecond, time.Second)
		close(done)
	}()
	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, time.Millisecond)
	cancel()
	<-done
}

type memPersister struct {
	sync.Mutex
	m map[string][]byte
}

func (p *memPersister) Save(s *T) (err error) {
	p.Lock()
	defer p.Unlock()
	p.m[s.ID], err = json.Marshal(s)
	return
}

func (p *memPersister) Delete(id string) (err error) {
	p.Lock()
	defer p.Unlock()
	delete(p.m, id)
	return
}

func (p *memPersister) Load(fn func(s *T) error) (err error) {
	p.Lock()
	defer p.Unlock()
	for _, b := range p.m {
		s := &T{}
		if err = json.Unmarshal(b, s); err != nil {
			return
		}
		if err = fn(s); err != nil {
			return
		}
	}
	return
}

func TestPersisterRestore(t *testing.T) {
	p := &memPersister{m: make(map[string][]byte)}
	s, c := newStore(t, WithPersister(p))
	kept, err := s.Create(newPub(t), md, permission.NewSet(permission.AllowKind(7)))
	require.NoError(t, err)
	gone, err := s.Create(newPub(t), md, nil)
	require.NoError(t, err)
	c.Set(1_700_000_042)
	require.NoError(t, s.Touch(kept.ID))
	s.Remove(gone.ID)
	s2, err := NewStore(newPub(t), WithPersister(p))
	require.NoError(t, err)
	assert.Equal(t, 1, s2.Len())
	got, ok := s2.Get(kept.ID)
	require.True(t, ok)
	assert.EqualValues(t, 1_700_000_042, got.LastUsed)
	assert.Equal(t, md, got.Metadata)
	k := kind.Reaction
	assert.True(t, got.Authorized(permission.SignEvent, &k))
}
