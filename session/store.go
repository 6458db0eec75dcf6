package session

import (
	"encoding/binary"
	"sort"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
	"lukechampine.com/frand"

	"keybunker.lol/chk"
	"keybunker.lol/context"
	"keybunker.lol/hex"
	"keybunker.lol/keys"
	"keybunker.lol/log"
	"keybunker.lol/permission"
	"keybunker.lol/rpc"
	"keybunker.lol/sha256"
	"keybunker.lol/timestamp"
)

// IDMode selects how session ids are generated.
type IDMode uint8

const (
	// Random ids are 32 bytes from a CSPRNG, unguessable.
	Random IDMode = iota
	// Hashed ids are the sha256 of the signer key, the client key, the
	// current second and a process counter. They are only as secret as the
	// two public keys and the clock.
	Hashed
)

// ParseIDMode reads "random" or "hashed", anything else is Random.
func ParseIDMode(s string) IDMode {
	if s == "hashed" {
		return Hashed
	}
	return Random
}

// Persister stores sessions outside the process. Load calls fn for every
// stored session.
type Persister interface {
	Save(s *T) (err error)
	Delete(id string) (err error)
	Load(fn func(s *T) (err error)) (err error)
}

// Store is the registry of sessions. It is safe for concurrent use.
type Store struct {
	sessions  *xsync.MapOf[string, *T]
	signerPub string
	mode      IDMode
	clock     timestamp.Clock
	counter   atomic.Uint64
	persist   Persister
}

// Option configures a Store.
type Option func(s *Store)

// WithIDMode sets how ids are generated.
func WithIDMode(m IDMode) Option { return func(s *Store) { s.mode = m } }

// WithClock replaces the system clock.
func WithClock(c timestamp.Clock) Option { return func(s *Store) { s.clock = c } }

// WithPersister mirrors every change to p, sessions in p are loaded when the
// store is created.
func WithPersister(p Persister) Option { return func(s *Store) { s.persist = p } }

// NewStore creates the session registry of the signer with hex public key
// signerPub.
func NewStore(signerPub string, opts ...Option) (s *Store, err error) {
	s = &Store{
		sessions:  xsync.NewMapOf[string, *T](),
		signerPub: signerPub,
		clock:     timestamp.System,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.persist == nil {
		return
	}
	if err = s.persist.Load(func(sess *T) (err error) {
		s.sessions.Store(sess.ID, sess)
		return
	}); chk.E(err) {
		return
	}
	log.I.F("restored %d sessions", s.sessions.Size())
	return
}

func (s *Store) newID(clientPub string, now timestamp.T) string {
	if s.mode == Hashed {
		h := sha256.New()
		h.Write([]byte(s.signerPub))
		h.Write([]byte(clientPub))
		var b [16]byte
		binary.BigEndian.PutUint64(b[:8], now.U64())
		binary.BigEndian.PutUint64(b[8:], s.counter.Inc())
		h.Write(b[:])
		return hex.Enc(h.Sum(nil))
	}
	return hex.Enc(frand.Bytes(32))
}

// Create registers a new session for the client with hex public key pubkey.
// A malformed key or metadata is an InputValidation error and nothing is
// stored.
func (s *Store) Create(pubkey string, md Metadata, perms permission.Set) (sess *T, err error) {
	if !keys.IsValidPublicKey(pubkey) {
		err = &rpc.Error{Kind: rpc.InputValidation,
			Msg: "malformed client public key " + pubkey, Err: keys.ErrKey}
		return
	}
	if err = md.Validate(); err != nil {
		err = &rpc.Error{Kind: rpc.InputValidation, Msg: "invalid client metadata", Err: err}
		return
	}
	now := s.clock()
	stored := &T{
		Pubkey:      pubkey,
		Metadata:    md,
		Permissions: perms.Clone(),
		CreatedAt:   now,
		LastUsed:    now,
	}
	for {
		stored.ID = s.newID(pubkey, now)
		if _, loaded := s.sessions.LoadOrStore(stored.ID, stored); !loaded {
			break
		}
	}
	s.save(stored)
	log.D.F("created session %s for %s with %s", stored.ID, pubkey, stored.Permissions)
	sess = stored.Clone()
	return
}

// Get returns a copy of the session.
func (s *Store) Get(id string) (sess *T, ok bool) {
	var stored *T
	if stored, ok = s.sessions.Load(id); !ok {
		return
	}
	sess = stored.Clone()
	return
}

func notFound(id string) error { return rpc.New(rpc.SessionNotFound, "no session %s", id) }

// update replaces the stored session with fn applied to a copy of it.
func (s *Store) update(id string, fn func(c *T)) (sess *T, err error) {
	var ok bool
	sess, ok = s.sessions.Compute(id, func(old *T, loaded bool) (nv *T, del bool) {
		if !loaded {
			return nil, true
		}
		nv = &T{}
		*nv = *old
		fn(nv)
		// saved under the bucket lock so a racing Remove cannot be undone
		s.save(nv)
		return
	})
	if !ok {
		err = notFound(id)
		return
	}
	sess = sess.Clone()
	return
}

// Touch records activity on the session. LastUsed never moves backwards.
func (s *Store) Touch(id string) (err error) {
	now := s.clock()
	_, err = s.update(id, func(c *T) {
		if now > c.LastUsed {
			c.LastUsed = now
		}
	})
	return
}

// Grant adds capabilities to a session. There is no inverse, to revoke remove
// the session.
func (s *Store) Grant(id string, perms permission.Set) (sess *T, err error) {
	return s.update(id, func(c *T) { c.Permissions = c.Permissions.Union(perms) })
}

// Remove deletes a session, removing one that does not exist is not an error.
func (s *Store) Remove(id string) {
	if _, ok := s.sessions.LoadAndDelete(id); ok {
		s.delete(id)
		log.D.F("removed session %s", id)
	}
}

// Cleanup removes every session idle for longer than maxAge and returns their
// ids. A session idle for exactly maxAge is kept.
func (s *Store) Cleanup(maxAge time.Duration) (removed []string) {
	now := s.clock()
	expired := func(v *T) bool { return now.Time().Sub(v.LastUsed.Time()) > maxAge }
	s.sessions.Range(func(id string, v *T) bool {
		if !expired(v) {
			return true
		}
		// recheck under the bucket lock, a Touch may have raced the scan
		s.sessions.Compute(id, func(old *T, loaded bool) (_ *T, del bool) {
			if loaded && expired(old) {
				removed = append(removed, id)
				return nil, true
			}
			return old, !loaded
		})
		return true
	})
	for _, id := range removed {
		s.delete(id)
	}
	sort.Strings(removed)
	if len(removed) > 0 {
		log.I.F("expired %d sessions idle longer than %v", len(removed), maxAge)
	}
	return
}

// Sweep runs Cleanup every interval until c is done.
func (s *Store) Sweep(c context.T, interval, maxAge time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-c.Done():
			return
		case <-t.C:
			s.Cleanup(maxAge)
		}
	}
}

// List returns copies of all sessions, oldest first.
func (s *Store) List() (list []*T) {
	list = make([]*T, 0, s.sessions.Size())
	s.sessions.Range(func(_ string, v *T) bool {
		list = append(list, v.Clone())
		return true
	})
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt != list[j].CreatedAt {
			return list[i].CreatedAt < list[j].CreatedAt
		}
		return list[i].ID < list[j].ID
	})
	return
}

// ByPubkey returns the most recently used session of a client.
func (s *Store) ByPubkey(pubkey string) (sess *T, ok bool) {
	var best *T
	s.sessions.Range(func(_ string, v *T) bool {
		if v.Pubkey == pubkey && (best == nil || v.LastUsed > best.LastUsed) {
			best = v
		}
		return true
	})
	if best == nil {
		return
	}
	return best.Clone(), true
}

// Len is the number of sessions.
func (s *Store) Len() int { return s.sessions.Size() }

func (s *Store) save(sess *T) {
	if s.persist == nil {
		return
	}
	chk.E(s.persist.Save(sess))
}

func (s *Store) delete(id string) {
	if s.persist == nil {
		return
	}
	chk.E(s.persist.Delete(id))
}
