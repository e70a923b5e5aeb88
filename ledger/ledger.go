// Package ledger implements the pool's state machine: the canonical root of
// the commitment accumulator, the deposit counter, the spent-nullifier index
// and the event log. Every state transition is gated behind a zero-knowledge
// proof check and applies atomically in a single database commit. The
// database layout uses the following prefixes:
//
//   - ls/ → ledger state (current root, deposit counter, event and nullifier counts)
//   - ln/ → spent-nullifier index, a merkle tree keyed by nullifier
//   - le/ → event log, keyed by sequence number
package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/arbo"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"

	"github.com/vocdoni/zkpool/log"
	"github.com/vocdoni/zkpool/tree"
	"github.com/vocdoni/zkpool/types"
	"github.com/vocdoni/zkpool/util"
)

var (
	statePrefix     = []byte("ls/")
	nullifierPrefix = []byte("ln/")
	eventPrefix     = []byte("le/")

	rootKey           = []byte("root")
	depositIndexKey   = []byte("index")
	eventCountKey     = []byte("events")
	nullifierCountKey = []byte("nullifiers")
	balanceKey        = []byte("balance")
)

// Config contains the parameters to create or open a Ledger.
type Config struct {
	// Database is the storage backend shared by the ledger state, the
	// nullifier index and the event log.
	Database db.Database
	// Depth is the depth of the commitment accumulator the ledger tracks.
	// Capacity is 2^Depth deposits. Defaults to types.DefaultTreeDepth.
	Depth int
	// Denomination is the fixed unit amount of every deposit and
	// withdrawal. Defaults to types.DefaultDenomination.
	Denomination *big.Int
	// DepositVerifier checks deposit proofs against the public inputs
	// [currentRoot, newRoot, commitment, depositIndex].
	DepositVerifier Verifier
	// WithdrawVerifier checks withdraw proofs against the public inputs
	// [currentRoot, nullifier].
	WithdrawVerifier Verifier
}

// Ledger is the single writer of the pool state. Transitions are strictly
// serialized: a call either fully commits (state, counters, event) or leaves
// no trace. Safe for concurrent use.
type Ledger struct {
	mu               sync.RWMutex
	db               db.Database
	nullifiers       *arbo.Tree
	depth            int
	maxDeposits      uint64
	denomination     *big.Int
	depositVerifier  Verifier
	withdrawVerifier Verifier

	root           *big.Int
	balance        *big.Int
	depositIndex   uint64
	eventSeq       uint64
	nullifierCount uint64
}

// New creates or opens a Ledger on the given database. A fresh ledger starts
// at the empty accumulator root for the configured depth.
func New(cfg Config) (*Ledger, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("database is required")
	}
	if cfg.DepositVerifier == nil || cfg.WithdrawVerifier == nil {
		return nil, fmt.Errorf("deposit and withdraw verifiers are required")
	}
	depth := cfg.Depth
	if depth == 0 {
		depth = types.DefaultTreeDepth
	}
	if depth < 1 || depth > types.MaxTreeDepth {
		return nil, fmt.Errorf("depth must be in [1, %d], got %d", types.MaxTreeDepth, depth)
	}
	denomination := cfg.Denomination
	if denomination == nil {
		denomination = types.DefaultDenomination
	}
	if denomination.Sign() <= 0 {
		return nil, fmt.Errorf("denomination must be positive, got %s", denomination)
	}
	nullifiers, err := arbo.NewTree(arbo.Config{
		Database:     prefixeddb.NewPrefixedDatabase(cfg.Database, nullifierPrefix),
		MaxLevels:    types.NullifierTreeMaxLevels,
		HashFunction: arbo.HashFunctionPoseidon,
	})
	if err != nil {
		return nil, fmt.Errorf("open nullifier index: %w", err)
	}
	l := &Ledger{
		db:               cfg.Database,
		nullifiers:       nullifiers,
		depth:            depth,
		maxDeposits:      uint64(1) << depth,
		denomination:     new(big.Int).Set(denomination),
		depositVerifier:  cfg.DepositVerifier,
		withdrawVerifier: cfg.WithdrawVerifier,
	}
	if err := l.load(); err != nil {
		return nil, err
	}
	log.Infow("ledger open", "root", l.root.String(), "deposits", l.depositIndex,
		"capacity", l.maxDeposits, "events", l.eventSeq)
	return l, nil
}

// load restores the cached state from the database, or initializes it for an
// empty pool.
func (l *Ledger) load() error {
	meta := prefixeddb.NewPrefixedReader(l.db, statePrefix)
	switch data, err := meta.Get(rootKey); {
	case err == nil:
		l.root = new(big.Int).SetBytes(data)
	case errors.Is(err, db.ErrKeyNotFound):
		root, err := tree.EmptyRoot(l.depth, nil)
		if err != nil {
			return fmt.Errorf("compute genesis root: %w", err)
		}
		l.root = root
	default:
		return err
	}
	switch data, err := meta.Get(balanceKey); {
	case err == nil:
		balance, ok := new(big.Int).SetString(string(data), 10)
		if !ok {
			return fmt.Errorf("malformed stored balance %q", data)
		}
		l.balance = balance
	case errors.Is(err, db.ErrKeyNotFound):
		l.balance = new(big.Int)
	default:
		return err
	}
	var loadCount = func(key []byte, dst *uint64) error {
		switch data, err := meta.Get(key); {
		case err == nil:
			*dst = binary.BigEndian.Uint64(data)
			return nil
		case errors.Is(err, db.ErrKeyNotFound):
			*dst = 0
			return nil
		default:
			return err
		}
	}
	if err := loadCount(depositIndexKey, &l.depositIndex); err != nil {
		return err
	}
	if err := loadCount(eventCountKey, &l.eventSeq); err != nil {
		return err
	}
	return loadCount(nullifierCountKey, &l.nullifierCount)
}

// Root returns the canonical accumulator root the ledger currently accepts
// proofs against.
func (l *Ledger) Root() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.root)
}

// DepositIndex returns the index the next accepted deposit will occupy.
func (l *Ledger) DepositIndex() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.depositIndex
}

// Depth returns the accumulator depth the ledger was configured with.
func (l *Ledger) Depth() int { return l.depth }

// MaxDeposits returns the pool capacity.
func (l *Ledger) MaxDeposits() uint64 { return l.maxDeposits }

// Denomination returns the fixed unit amount of the pool.
func (l *Ledger) Denomination() *big.Int { return new(big.Int).Set(l.denomination) }

// Balance returns the total amount currently held by the pool: accepted
// deposits minus accepted withdrawals.
func (l *Ledger) Balance() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.balance)
}

// NullifierCount returns the number of spent nullifiers.
func (l *Ledger) NullifierCount() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nullifierCount
}

// NullifierRoot returns the root of the spent-nullifier index.
func (l *Ledger) NullifierRoot() (types.HexBytes, error) {
	root, err := l.nullifiers.Root()
	if err != nil {
		return nil, err
	}
	return root, nil
}

// IsSpent reports whether a nullifier was already revealed by an accepted
// withdrawal.
func (l *Ledger) IsSpent(nullifier *big.Int) (bool, error) {
	if err := validElem("nullifier", nullifier); err != nil {
		return false, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.isSpent(nullifier)
}

func (l *Ledger) isSpent(nullifier *big.Int) (bool, error) {
	_, _, err := l.nullifiers.Get(nullifierKey(nullifier))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, arbo.ErrKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Deposit applies a deposit transition: checks capacity and payment, verifies
// the proof against [currentRoot, newRoot, commitment, depositIndex] and, on
// success, advances the root and counter and emits the deposit event. On any
// failure the state is untouched.
func (l *Ledger) Deposit(proof []byte, newRoot, commitment, amount *big.Int) (*Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.depositIndex >= l.maxDeposits {
		return nil, fmt.Errorf("%w: %d deposits", ErrCapacityExceeded, l.maxDeposits)
	}
	if amount == nil || amount.Cmp(l.denomination) != 0 {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrWrongAmount, amount, l.denomination)
	}
	if len(proof) == 0 {
		return nil, fmt.Errorf("%w: empty proof", ErrInvalidInput)
	}
	if err := validElem("newRoot", newRoot); err != nil {
		return nil, err
	}
	if err := validElem("commitment", commitment); err != nil {
		return nil, err
	}
	index := l.depositIndex
	publics := []*big.Int{l.root, newRoot, commitment, new(big.Int).SetUint64(index)}
	if err := l.depositVerifier.Verify(proof, publics); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProofRejected, err)
	}

	event := &Event{
		Seq:       l.eventSeq,
		Timestamp: time.Now().UTC(),
		Deposit: &DepositEvent{
			NewRoot:    types.BigToBigInt(newRoot),
			Commitment: types.BigToBigInt(commitment),
			Index:      index,
		},
	}
	wTx := l.db.WriteTx()
	defer wTx.Discard()
	meta := prefixeddb.NewPrefixedWriteTx(wTx, statePrefix)
	if err := meta.Set(rootKey, elemBytes(newRoot)); err != nil {
		return nil, err
	}
	if err := meta.Set(depositIndexKey, countBytes(index+1)); err != nil {
		return nil, err
	}
	if err := meta.Set(eventCountKey, countBytes(l.eventSeq+1)); err != nil {
		return nil, err
	}
	balance := new(big.Int).Add(l.balance, l.denomination)
	if err := meta.Set(balanceKey, []byte(balance.String())); err != nil {
		return nil, err
	}
	if err := l.appendEvent(wTx, event); err != nil {
		return nil, err
	}
	if err := wTx.Commit(); err != nil {
		return nil, err
	}
	l.root = new(big.Int).Set(newRoot)
	l.balance = balance
	l.depositIndex++
	l.eventSeq++
	log.Debugw("deposit accepted", "index", index, "root", l.root.String())
	return event, nil
}

// Withdraw applies a withdraw transition: checks nullifier freshness before
// any verification effort, verifies the proof against [currentRoot,
// nullifier] and, on success, marks the nullifier spent and emits the
// withdraw event. On any failure the state is untouched.
func (l *Ledger) Withdraw(proof []byte, nullifier *big.Int, recipient common.Address) (*Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(proof) == 0 {
		return nil, fmt.Errorf("%w: empty proof", ErrInvalidInput)
	}
	if err := validElem("nullifier", nullifier); err != nil {
		return nil, err
	}
	spent, err := l.isSpent(nullifier)
	if err != nil {
		return nil, err
	}
	if spent {
		return nil, fmt.Errorf("%w: %s", ErrDoubleSpend, nullifier)
	}
	publics := []*big.Int{l.root, nullifier}
	if err := l.withdrawVerifier.Verify(proof, publics); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProofRejected, err)
	}

	event := &Event{
		Seq:       l.eventSeq,
		Timestamp: time.Now().UTC(),
		Withdraw: &WithdrawEvent{
			Recipient: recipient,
			Nullifier: types.BigToBigInt(nullifier),
		},
	}
	wTx := l.db.WriteTx()
	defer wTx.Discard()
	arboTx := prefixeddb.NewPrefixedWriteTx(wTx, nullifierPrefix)
	if err := l.nullifiers.AddWithTx(arboTx, nullifierKey(nullifier), countBytes(l.eventSeq)); err != nil {
		return nil, fmt.Errorf("mark nullifier spent: %w", err)
	}
	meta := prefixeddb.NewPrefixedWriteTx(wTx, statePrefix)
	if err := meta.Set(eventCountKey, countBytes(l.eventSeq+1)); err != nil {
		return nil, err
	}
	if err := meta.Set(nullifierCountKey, countBytes(l.nullifierCount+1)); err != nil {
		return nil, err
	}
	balance := new(big.Int).Sub(l.balance, l.denomination)
	if err := meta.Set(balanceKey, []byte(balance.String())); err != nil {
		return nil, err
	}
	if err := l.appendEvent(wTx, event); err != nil {
		return nil, err
	}
	if err := wTx.Commit(); err != nil {
		return nil, err
	}
	l.balance = balance
	l.eventSeq++
	l.nullifierCount++
	log.Debugw("withdrawal accepted", "nullifier", nullifier.String(), "recipient", recipient.Hex())
	return event, nil
}

// validElem rejects values that are not canonical field elements.
func validElem(name string, v *big.Int) error {
	if v == nil {
		return fmt.Errorf("%w: missing %s", ErrInvalidInput, name)
	}
	if v.Sign() < 0 || util.BigToFF(v).Cmp(v) != 0 {
		return fmt.Errorf("%w: %s is not a canonical field element", ErrInvalidInput, name)
	}
	return nil
}

// nullifierKey builds the fixed-size nullifier index key.
func nullifierKey(nullifier *big.Int) []byte {
	key := make([]byte, types.FieldElemLen)
	nullifier.FillBytes(key)
	return key
}

func elemBytes(v *big.Int) []byte {
	data := make([]byte, types.FieldElemLen)
	v.FillBytes(data)
	return data
}

func countBytes(v uint64) []byte {
	data := make([]byte, 8)
	binary.BigEndian.PutUint64(data, v)
	return data
}
