package storage

import (
	"errors"
	"fmt"
	"time"

	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"

	"github.com/vocdoni/zkpool/types"
)

// PushTransaction stores a new transaction into the pending queue and its
// initial pending status record, returning the assigned transaction ID.
func (s *Storage) PushTransaction(tx *Tx) (types.HexBytes, error) {
	if err := tx.Valid(); err != nil {
		return nil, fmt.Errorf("invalid transaction: %w", err)
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	seq, err := s.nextSeq()
	if err != nil {
		return nil, fmt.Errorf("advance queue sequence: %w", err)
	}
	// The ID covers the payload plus the sequence number, so two identical
	// submissions still get distinct IDs.
	payload, err := encodeArtifact(tx)
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}
	tx.ID = hashKey(append(seqKey(seq), payload...))
	val, err := encodeArtifact(tx)
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), queuePrefix)
	if err := wTx.Set(seqKey(seq), val); err != nil {
		wTx.Discard()
		return nil, err
	}
	if err := wTx.Commit(); err != nil {
		return nil, err
	}
	if err := s.setStatus(&TxStatus{
		TxID:      tx.ID,
		Kind:      tx.Kind,
		Status:    types.TxPending,
		Submitted: time.Now().UTC(),
	}); err != nil {
		return nil, err
	}
	return tx.ID, nil
}

// NextTransaction returns the oldest non-reserved queued transaction, creates
// a reservation for it and returns it together with its queue key. The key is
// used to mark the transaction as done after settlement. Returns
// ErrNoMoreElements when the queue is drained.
func (s *Storage) NextTransaction() (*Tx, []byte, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	pr := prefixeddb.NewPrefixedReader(s.db, queuePrefix)
	var chosenKey, chosenVal []byte
	if err := pr.Iterate(nil, func(k, v []byte) bool {
		if s.isReserved(k) {
			return true
		}
		// Copy: the iterator owns k and v.
		chosenKey = append([]byte{}, k...)
		chosenVal = append([]byte{}, v...)
		return false
	}); err != nil {
		return nil, nil, fmt.Errorf("iterate transactions: %w", err)
	}
	if chosenVal == nil {
		return nil, nil, ErrNoMoreElements
	}

	var tx Tx
	if err := decodeArtifact(chosenVal, &tx); err != nil {
		return nil, nil, fmt.Errorf("decode transaction: %w", err)
	}
	if err := s.setReservation(chosenKey); err != nil {
		return nil, nil, ErrNoMoreElements
	}
	return &tx, chosenKey, nil
}

// MarkTransactionDone stores the terminal status record of a settled
// transaction, then removes it from the queue and drops its reservation. The
// status is written first: if the cleanup below is interrupted, the retried
// settlement finds the terminal record and must not apply the transaction
// again.
func (s *Storage) MarkTransactionDone(key []byte, status *TxStatus) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	if err := s.setStatus(status); err != nil {
		return err
	}
	if err := s.deleteArtifact(reservationPrefix, key); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete reservation: %w", err)
	}
	if err := s.deleteArtifact(queuePrefix, key); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete queued transaction: %w", err)
	}
	return nil
}

// ReleaseTransaction drops the reservation of a queued transaction without
// removing it, so a settlement attempt interrupted by shutdown is retried.
func (s *Storage) ReleaseTransaction(key []byte) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	if err := s.deleteArtifact(reservationPrefix, key); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete reservation: %w", err)
	}
	return nil
}

// TransactionStatus returns the status record of a transaction. Returns
// ErrNotFound for unknown transaction IDs.
func (s *Storage) TransactionStatus(txID types.HexBytes) (*TxStatus, error) {
	rd := prefixeddb.NewPrefixedReader(s.db, statusPrefix)
	data, err := rd.Get(txID)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var status TxStatus
	if err := decodeArtifact(data, &status); err != nil {
		return nil, fmt.Errorf("decode transaction status: %w", err)
	}
	return &status, nil
}

// PendingTransactions returns the number of transactions waiting in the queue.
func (s *Storage) PendingTransactions() int {
	rd := prefixeddb.NewPrefixedReader(s.db, queuePrefix)
	count := 0
	if err := rd.Iterate(nil, func(_, _ []byte) bool {
		count++
		return true
	}); err != nil {
		return 0
	}
	return count
}

// setStatus stores a status record under its transaction ID.
func (s *Storage) setStatus(status *TxStatus) error {
	val, err := encodeArtifact(status)
	if err != nil {
		return fmt.Errorf("encode transaction status: %w", err)
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), statusPrefix)
	if err := wTx.Set(status.TxID, val); err != nil {
		wTx.Discard()
		return err
	}
	return wTx.Commit()
}
