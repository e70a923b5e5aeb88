// Package storage implements the transaction pipeline between the HTTP API
// and the sequencer: submitted deposits and withdrawals wait in a FIFO queue
// until the settlement worker picks them up, and every transaction keeps a
// status record the submitter can poll. Artifacts are cbor-encoded in a
// prefixed key-value store, with the following prefixes:
//
//   - q/ → queued transactions, keyed by sequence number
//   - r/ → reservations of queued transactions being settled
//   - s/ → transaction status records, keyed by transaction ID
//   - m/ → pipeline metadata (the sequence counter)
package storage

import (
	"encoding/binary"
	"errors"
	"sync"

	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

var (
	queuePrefix       = []byte("q/")
	reservationPrefix = []byte("r/")
	statusPrefix      = []byte("s/")
	metaPrefix        = []byte("m/")

	seqCounterKey = []byte("seq")
)

var (
	// ErrNotFound is returned when no artifact exists under the requested key.
	ErrNotFound = errors.New("not found")
	// ErrNoMoreElements is returned by NextTransaction when the queue holds
	// no settleable transactions.
	ErrNoMoreElements = errors.New("no more elements")
)

const (
	// maxKeySize is the size of a transaction ID: the sha256 hash of the
	// encoded transaction, truncated.
	maxKeySize = 12
)

// Storage is the transaction pipeline store. The API pushes transactions,
// the sequencer pulls and marks them done, and both sides read the status
// records. Safe for concurrent use.
type Storage struct {
	db         db.Database
	globalLock sync.Mutex
}

// New creates a new Storage instance on the given database.
func New(db db.Database) *Storage {
	return &Storage{db: db}
}

// Close closes the underlying database.
func (s *Storage) Close() {
	s.db.Close()
}

// nextSeq returns the next queue sequence number and persists the advanced
// counter. Sequence numbers are never reused, so queue iteration order is
// submission order even across restarts.
func (s *Storage) nextSeq() (uint64, error) {
	rd := prefixeddb.NewPrefixedReader(s.db, metaPrefix)
	var seq uint64
	switch data, err := rd.Get(seqCounterKey); {
	case err == nil:
		seq = binary.BigEndian.Uint64(data)
	case errors.Is(err, db.ErrKeyNotFound):
		seq = 0
	default:
		return 0, err
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), metaPrefix)
	if err := wTx.Set(seqCounterKey, seqKey(seq+1)); err != nil {
		wTx.Discard()
		return 0, err
	}
	return seq, wTx.Commit()
}

// isReserved reports whether a queued transaction is currently reserved.
func (s *Storage) isReserved(key []byte) bool {
	rd := prefixeddb.NewPrefixedReader(s.db, reservationPrefix)
	_, err := rd.Get(key)
	return err == nil
}

// setReservation marks a queued transaction as being settled.
func (s *Storage) setReservation(key []byte) error {
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), reservationPrefix)
	if err := wTx.Set(key, []byte{1}); err != nil {
		wTx.Discard()
		return err
	}
	return wTx.Commit()
}

// deleteArtifact removes the artifact under the given prefix and key. Returns
// ErrNotFound if the key does not exist.
func (s *Storage) deleteArtifact(prefix, key []byte) error {
	rd := prefixeddb.NewPrefixedReader(s.db, prefix)
	if _, err := rd.Get(key); err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	if err := wTx.Delete(key); err != nil {
		wTx.Discard()
		return err
	}
	return wTx.Commit()
}

// seqKey builds the big-endian key of a sequence number, so database iteration
// follows submission order.
func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
