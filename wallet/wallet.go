// Package wallet keeps the depositor's off-chain bookkeeping: the secret
// notes behind each commitment, the deposit records needed to later build a
// withdraw witness, and the witness assembly itself. Records are cbor-encoded
// in a prefixed key-value store under a per-record uuid.
package wallet

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"go.vocdoni.io/dvote/db"

	"github.com/vocdoni/zkpool/crypto/hash/mimc"
	"github.com/vocdoni/zkpool/crypto/hash/poseidon"
	"github.com/vocdoni/zkpool/util"
)

var (
	// ErrSlotOccupied is returned when building a deposit over a slot that
	// already holds a leaf.
	ErrSlotOccupied = errors.New("slot already holds a commitment")
	// ErrStalePath is returned when an inclusion path does not re-derive its
	// own root, or does not match the ledger root it will be checked against.
	// The caller must refresh the pool state and rebuild the witness.
	ErrStalePath = errors.New("inclusion path is stale")
	// ErrRecordNotFound is returned when no deposit record exists for an id.
	ErrRecordNotFound = errors.New("deposit record not found")
	// ErrRecordSpent is returned when building a withdrawal for a record
	// whose nullifier was already revealed.
	ErrRecordSpent = errors.New("deposit record already spent")
)

// Domain separators for deterministic note derivation from a seed.
var (
	noteIDDomain       = big.NewInt(1)
	noteBlindingDomain = big.NewInt(2)
)

// Note is the secret opening of a commitment: the identifier that becomes
// the nullifier at withdrawal time, and the blinding factor that hides it.
type Note struct {
	ID       *big.Int
	Blinding *big.Int
}

// NewNote generates a random note.
func NewNote() *Note {
	return &Note{
		ID:       util.BigToFF(new(big.Int).SetBytes(util.RandomBytes(32))),
		Blinding: util.BigToFF(new(big.Int).SetBytes(util.RandomBytes(32))),
	}
}

// DeriveNote derives a note deterministically from a seed and a nonce, so a
// wallet can be rebuilt from its seed alone.
func DeriveNote(seed []byte, nonce uint64) (*Note, error) {
	seedElem := util.BigToFF(new(big.Int).SetBytes(seed))
	nonceElem := new(big.Int).SetUint64(nonce)
	id, err := poseidon.MultiPoseidon(noteIDDomain, seedElem, nonceElem)
	if err != nil {
		return nil, fmt.Errorf("derive note id: %w", err)
	}
	blinding, err := poseidon.MultiPoseidon(noteBlindingDomain, seedElem, nonceElem)
	if err != nil {
		return nil, fmt.Errorf("derive note blinding: %w", err)
	}
	return &Note{ID: id, Blinding: blinding}, nil
}

// Commitment returns the leaf value of the note, Hash(id, blinding).
func (n *Note) Commitment() (*big.Int, error) {
	if n.ID == nil || n.Blinding == nil {
		return nil, fmt.Errorf("incomplete note")
	}
	return mimc.Hash(n.ID, n.Blinding)
}

// Nullifier returns the value the ledger records when the note is spent. It
// equals the note id, which means two deposits sharing an id can only ever
// withdraw once between them.
func (n *Note) Nullifier() *big.Int {
	return new(big.Int).Set(n.ID)
}

// Wallet stores deposit records. Safe for concurrent use.
type Wallet struct {
	mu sync.RWMutex
	db db.Database
}

// New creates a Wallet on the given database.
func New(db db.Database) (*Wallet, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &Wallet{db: db}, nil
}
