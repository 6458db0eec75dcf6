package ratel

import (
	"encoding/json"

	"github.com/dgraph-io/badger/v4"

	"keybunker.lol/chk"
	"keybunker.lol/log"
	"keybunker.lol/session"
)

func sessionKey(id st) by { return append(append(by{}, prefixSession...), id...) }

// Save writes the session, replacing any previous version.
func (r *T) Save(s *session.T) (err er) {
	var b by
	if b, err = json.Marshal(s); chk.E(err) {
		return
	}
	return r.Update(func(txn *badger.Txn) er { return txn.Set(sessionKey(s.ID), b) })
}

// Delete removes a session, a missing one is not an error.
func (r *T) Delete(id st) (err er) {
	return r.Update(func(txn *badger.Txn) er { return txn.Delete(sessionKey(id)) })
}

// Load calls fn with every stored session. Records that do not decode are
// logged and skipped.
func (r *T) Load(fn func(s *session.T) (err er)) (err er) {
	return r.View(func(txn *badger.Txn) (err er) {
		it := txn.NewIterator(badger.IteratorOptions{
			PrefetchValues: true,
			PrefetchSize:   100,
			Prefix:         prefixSession,
		})
		defer it.Close()
		for it.Seek(prefixSession); it.ValidForPrefix(prefixSession); it.Next() {
			s := &session.T{}
			if err = it.Item().Value(func(val by) er { return json.Unmarshal(val, s) }); chk.E(err) {
				log.D.S(it.Item().KeyCopy(nil))
				err = nil
				continue
			}
			if err = fn(s); err != nil {
				return
			}
		}
		return
	})
}

// Count is the number of stored sessions.
func (r *T) Count() (n no, err er) {
	err = r.View(func(txn *badger.Txn) er {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefixSession})
		defer it.Close()
		for it.Seek(prefixSession); it.ValidForPrefix(prefixSession); it.Next() {
			n++
		}
		return nil
	})
	return
}
