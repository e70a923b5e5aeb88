package wallet

import (
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"

	"github.com/vocdoni/zkpool/types"
)

var recordPrefix = []byte("rec/")

// DepositRecord is the off-chain bookkeeping of one settled deposit: the note
// opening, the assigned slot and the roots and path at insertion time. It is
// everything needed to later reconstruct a withdraw witness, and it is never
// mutated after creation, only marked spent.
type DepositRecord struct {
	RecordID   uuid.UUID       `json:"recordId"`
	ID         *types.BigInt   `json:"id"`
	Blinding   *types.BigInt   `json:"r"`
	Commitment *types.BigInt   `json:"commitment"`
	Index      uint64          `json:"index"`
	OldRoot    *types.BigInt   `json:"oldRoot"`
	NewRoot    *types.BigInt   `json:"newRoot"`
	Path       []*types.BigInt `json:"path"`
	PathBits   types.HexBytes  `json:"pathBits"`
	CreatedAt  time.Time       `json:"createdAt"`
	Spent      bool            `json:"spent"`
}

// Note rebuilds the secret opening of the record.
func (r *DepositRecord) Note() *Note {
	return &Note{ID: r.ID.MathBigInt(), Blinding: r.Blinding.MathBigInt()}
}

// SaveRecord stores a new deposit record under a fresh uuid and returns it.
func (w *Wallet) SaveRecord(r *DepositRecord) (uuid.UUID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r.RecordID = uuid.New()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if err := w.putRecord(r); err != nil {
		return uuid.Nil, err
	}
	return r.RecordID, nil
}

// Record returns the deposit record with the given id, or ErrRecordNotFound.
func (w *Wallet) Record(id uuid.UUID) (*DepositRecord, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	rd := prefixeddb.NewPrefixedReader(w.db, recordPrefix)
	data, err := rd.Get(id[:])
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
		}
		return nil, err
	}
	r := &DepositRecord{}
	if err := cbor.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("decode deposit record: %w", err)
	}
	return r, nil
}

// Records returns every stored deposit record.
func (w *Wallet) Records() ([]*DepositRecord, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []*DepositRecord
	var decodeErr error
	rd := prefixeddb.NewPrefixedReader(w.db, recordPrefix)
	if err := rd.Iterate(nil, func(_, v []byte) bool {
		r := &DepositRecord{}
		if err := cbor.Unmarshal(v, r); err != nil {
			decodeErr = fmt.Errorf("decode deposit record: %w", err)
			return false
		}
		out = append(out, r)
		return true
	}); err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return out, nil
}

// MarkSpent annotates a record as withdrawn. The record itself stays, so the
// wallet keeps the full deposit history.
func (w *Wallet) MarkSpent(id uuid.UUID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	rd := prefixeddb.NewPrefixedReader(w.db, recordPrefix)
	data, err := rd.Get(id[:])
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
		}
		return err
	}
	r := &DepositRecord{}
	if err := cbor.Unmarshal(data, r); err != nil {
		return fmt.Errorf("decode deposit record: %w", err)
	}
	r.Spent = true
	return w.putRecord(r)
}

func (w *Wallet) putRecord(r *DepositRecord) error {
	encOpts := cbor.CoreDetEncOptions()
	em, err := encOpts.EncMode()
	if err != nil {
		return fmt.Errorf("encode deposit record: %w", err)
	}
	data, err := em.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode deposit record: %w", err)
	}
	wTx := prefixeddb.NewPrefixedWriteTx(w.db.WriteTx(), recordPrefix)
	if err := wTx.Set(r.RecordID[:], data); err != nil {
		wTx.Discard()
		return err
	}
	return wTx.Commit()
}
