package ledger

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"

	"github.com/vocdoni/zkpool/types"
)

// DepositEvent records an accepted deposit: the root after the append, the
// inserted commitment and the slot it was assigned.
type DepositEvent struct {
	NewRoot    *types.BigInt `json:"newRoot"`
	Commitment *types.BigInt `json:"commitment"`
	Index      uint64        `json:"index"`
}

// WithdrawEvent records an accepted withdrawal: who got paid and which
// nullifier is now spent.
type WithdrawEvent struct {
	Recipient common.Address `json:"recipient"`
	Nullifier *types.BigInt  `json:"nullifier"`
}

// Event is one entry of the ledger's append-only event log. Exactly one of
// Deposit or Withdraw is set.
type Event struct {
	Seq       uint64         `json:"seq"`
	Timestamp time.Time      `json:"timestamp"`
	Deposit   *DepositEvent  `json:"deposit,omitempty"`
	Withdraw  *WithdrawEvent `json:"withdraw,omitempty"`
}

func encodeEvent(e *Event) ([]byte, error) {
	encOpts := cbor.CoreDetEncOptions()
	em, err := encOpts.EncMode()
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return em.Marshal(e)
}

func decodeEvent(data []byte) (*Event, error) {
	e := &Event{}
	if err := cbor.Unmarshal(data, e); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return e, nil
}

// appendEvent writes the event into the log under its sequence number, inside
// the caller's transaction.
func (l *Ledger) appendEvent(wTx db.WriteTx, e *Event) error {
	data, err := encodeEvent(e)
	if err != nil {
		return err
	}
	events := prefixeddb.NewPrefixedWriteTx(wTx, eventPrefix)
	return events.Set(seqKey(e.Seq), data)
}

// EventCount returns the number of events emitted so far.
func (l *Ledger) EventCount() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.eventSeq
}

// ListEvents returns up to max events starting at sequence number from, in
// order. A max of zero or less applies a sane default.
func (l *Ledger) ListEvents(from uint64, max int) ([]*Event, error) {
	if max <= 0 {
		max = 100
	}
	var out []*Event
	var decodeErr error
	rd := prefixeddb.NewPrefixedReader(l.db, eventPrefix)
	if err := rd.Iterate(nil, func(k, v []byte) bool {
		if len(k) != 8 || binary.BigEndian.Uint64(k) < from {
			return true
		}
		event, err := decodeEvent(v)
		if err != nil {
			decodeErr = err
			return false
		}
		out = append(out, event)
		return len(out) < max
	}); err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return out, nil
}

// seqKey builds the big-endian key of a sequence number, so database
// iteration follows emission order.
func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
