// Package ratel is a badger DB based session store, it keeps the delegations
// of a signer across restarts.
package ratel

import (
	"encoding/binary"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"keybunker.lol/chk"
	"keybunker.lol/log"
	"keybunker.lol/lol"
	"keybunker.lol/session"
)

// Version is the layout version written to a fresh database.
const Version = 1

var (
	prefixSession = by("s:")
	keyVersion    = by("v")
)

// T is a badger database holding sessions.
type T struct {
	dataDir string
	// InitLogLevel is the level badger's own logging is filtered at.
	InitLogLevel int
	Logger       *logger
	*badger.DB
}

var _ session.Persister = (*T)(nil)

// New creates an unopened store at path. An empty path keeps everything in
// memory.
func New(path st, logLevel no) *T { return &T{dataDir: path, InitLogLevel: logLevel} }

// Path is the database directory, empty when in memory.
func (r *T) Path() st { return r.dataDir }

// Init opens the database and sets the layout version.
func (r *T) Init() (err er) {
	opts := badger.DefaultOptions(r.dataDir)
	if r.dataDir == "" {
		opts = opts.WithInMemory(true)
		log.I.Ln("opening in memory session store")
	} else {
		log.I.Ln("opening ratel session store at", r.dataDir)
	}
	opts.Compression = options.None
	opts.CompactL0OnClose = true
	r.Logger = NewLogger(r.InitLogLevel, r.dataDir)
	opts.Logger = r.Logger
	if r.DB, err = badger.Open(opts); chk.E(err) {
		return
	}
	if err = r.runMigrations(); chk.E(err) {
		return
	}
	return
}

func (r *T) runMigrations() (err er) {
	return r.Update(func(txn *badger.Txn) (err er) {
		var version uint16
		var item *badger.Item
		item, err = txn.Get(keyVersion)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case chk.E(err):
			return
		default:
			if err = item.Value(func(val by) (err er) {
				if len(val) == 2 {
					version = binary.BigEndian.Uint16(val)
				}
				return
			}); chk.E(err) {
				return
			}
		}
		if version > Version {
			return errorf.E("session store is at version %d, newer than %d", version, Version)
		}
		if version < Version {
			buf := make(by, 2)
			binary.BigEndian.PutUint16(buf, Version)
			return txn.Set(keyVersion, buf)
		}
		return nil
	})
}

// SetLogLevel changes the filter on badger's logging.
func (r *T) SetLogLevel(level st) {
	log.I.F("setting db log level %s", level)
	r.Logger.SetLogLevel(lol.GetLogLevel(level))
}

// Close syncs and closes the database.
func (r *T) Close() (err er) {
	if r.dataDir != "" {
		chk.E(r.DB.Sync())
	}
	if err = r.DB.Close(); chk.E(err) {
		return
	}
	log.I.F("session store closed")
	return
}
