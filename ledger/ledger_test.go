package ledger

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/ethereum/go-ethereum/common"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/metadb"

	"github.com/vocdoni/zkpool/tree"
)

// proofFor binds a fake proof to an exact list of public inputs, so a test
// proof only verifies when the ledger feeds the verifier the same values.
func proofFor(publics ...*big.Int) []byte {
	h := sha256.New()
	for _, p := range publics {
		var buf [32]byte
		p.FillBytes(buf[:])
		h.Write(buf[:])
	}
	return h.Sum(nil)
}

type digestVerifier struct {
	calls int
}

func (v *digestVerifier) Verify(proof []byte, publics []*big.Int) error {
	v.calls++
	if !bytes.Equal(proof, proofFor(publics...)) {
		return errors.New("proof does not match public inputs")
	}
	return nil
}

func newTestLedger(t *testing.T, depth int) (*Ledger, *digestVerifier, *digestVerifier) {
	dv, wv := &digestVerifier{}, &digestVerifier{}
	l, err := New(Config{
		Database:         metadb.NewTest(t),
		Depth:            depth,
		Denomination:     big.NewInt(10),
		DepositVerifier:  dv,
		WithdrawVerifier: wv,
	})
	qt.Assert(t, err, qt.IsNil)
	return l, dv, wv
}

func TestNewLedger(t *testing.T) {
	c := qt.New(t)

	l, _, _ := newTestLedger(t, 3)
	emptyRoot, err := tree.EmptyRoot(3, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(l.Root().Cmp(emptyRoot), qt.Equals, 0)
	c.Assert(l.DepositIndex(), qt.Equals, uint64(0))
	c.Assert(l.MaxDeposits(), qt.Equals, uint64(8))
	c.Assert(l.Denomination().Int64(), qt.Equals, int64(10))
	c.Assert(l.Balance().Sign(), qt.Equals, 0)
	c.Assert(l.EventCount(), qt.Equals, uint64(0))

	_, err = New(Config{Database: metadb.NewTest(t)})
	c.Assert(err, qt.IsNotNil) // verifiers are required
}

func TestDepositFlow(t *testing.T) {
	c := qt.New(t)

	l, _, _ := newTestLedger(t, 3)
	root0 := l.Root()
	newRoot := big.NewInt(1111)
	commitment := big.NewInt(2222)

	event, err := l.Deposit(proofFor(root0, newRoot, commitment, big.NewInt(0)),
		newRoot, commitment, big.NewInt(10))
	c.Assert(err, qt.IsNil)
	c.Assert(event.Seq, qt.Equals, uint64(0))
	c.Assert(event.Deposit, qt.IsNotNil)
	c.Assert(event.Deposit.Index, qt.Equals, uint64(0))
	c.Assert(event.Deposit.NewRoot.MathBigInt().Cmp(newRoot), qt.Equals, 0)
	c.Assert(l.Root().Cmp(newRoot), qt.Equals, 0)
	c.Assert(l.DepositIndex(), qt.Equals, uint64(1))
	c.Assert(l.Balance().Int64(), qt.Equals, int64(10))

	// a proof built against the previous root must be rejected and leave no
	// trace
	staleRoot := big.NewInt(3333)
	_, err = l.Deposit(proofFor(root0, staleRoot, commitment, big.NewInt(1)),
		staleRoot, commitment, big.NewInt(10))
	c.Assert(err, qt.ErrorIs, ErrProofRejected)
	c.Assert(l.Root().Cmp(newRoot), qt.Equals, 0)
	c.Assert(l.DepositIndex(), qt.Equals, uint64(1))
	c.Assert(l.EventCount(), qt.Equals, uint64(1))

	// rebuilt against the live root it goes through
	_, err = l.Deposit(proofFor(newRoot, staleRoot, commitment, big.NewInt(1)),
		staleRoot, commitment, big.NewInt(10))
	c.Assert(err, qt.IsNil)
	c.Assert(l.DepositIndex(), qt.Equals, uint64(2))
}

func TestDepositPreconditions(t *testing.T) {
	c := qt.New(t)

	l, dv, _ := newTestLedger(t, 3)
	root := l.Root()
	newRoot, commitment := big.NewInt(1), big.NewInt(2)
	proof := proofFor(root, newRoot, commitment, big.NewInt(0))

	// wrong payment, checked before verification
	_, err := l.Deposit(proof, newRoot, commitment, big.NewInt(11))
	c.Assert(err, qt.ErrorIs, ErrWrongAmount)
	_, err = l.Deposit(proof, newRoot, commitment, nil)
	c.Assert(err, qt.ErrorIs, ErrWrongAmount)

	// malformed inputs
	_, err = l.Deposit(nil, newRoot, commitment, big.NewInt(10))
	c.Assert(err, qt.ErrorIs, ErrInvalidInput)
	_, err = l.Deposit(proof, nil, commitment, big.NewInt(10))
	c.Assert(err, qt.ErrorIs, ErrInvalidInput)
	_, err = l.Deposit(proof, newRoot, big.NewInt(-2), big.NewInt(10))
	c.Assert(err, qt.ErrorIs, ErrInvalidInput)

	// none of the rejections reached the verifier or moved state
	c.Assert(dv.calls, qt.Equals, 0)
	c.Assert(l.DepositIndex(), qt.Equals, uint64(0))
	c.Assert(l.EventCount(), qt.Equals, uint64(0))
}

func TestDepositCapacity(t *testing.T) {
	c := qt.New(t)

	l, _, _ := newTestLedger(t, 1)
	for i := int64(0); i < 2; i++ {
		root := l.Root()
		newRoot := big.NewInt(100 + i)
		commitment := big.NewInt(200 + i)
		_, err := l.Deposit(proofFor(root, newRoot, commitment, big.NewInt(i)),
			newRoot, commitment, big.NewInt(10))
		c.Assert(err, qt.IsNil)
	}

	root := l.Root()
	newRoot, commitment := big.NewInt(999), big.NewInt(888)
	_, err := l.Deposit(proofFor(root, newRoot, commitment, big.NewInt(2)),
		newRoot, commitment, big.NewInt(10))
	c.Assert(err, qt.ErrorIs, ErrCapacityExceeded)
	c.Assert(l.DepositIndex(), qt.Equals, uint64(2))

	// capacity is checked before payment, so a full pool rejects even a
	// badly paid deposit with the capacity error
	_, err = l.Deposit(nil, newRoot, commitment, big.NewInt(1))
	c.Assert(err, qt.ErrorIs, ErrCapacityExceeded)
}

func TestWithdrawFlow(t *testing.T) {
	c := qt.New(t)

	l, _, wv := newTestLedger(t, 3)
	root := l.Root()
	nullifier := big.NewInt(777)
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	spent, err := l.IsSpent(nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(spent, qt.IsFalse)

	event, err := l.Withdraw(proofFor(root, nullifier), nullifier, recipient)
	c.Assert(err, qt.IsNil)
	c.Assert(event.Withdraw, qt.IsNotNil)
	c.Assert(event.Withdraw.Recipient, qt.Equals, recipient)
	c.Assert(event.Withdraw.Nullifier.MathBigInt().Cmp(nullifier), qt.Equals, 0)

	spent, err = l.IsSpent(nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(spent, qt.IsTrue)
	c.Assert(l.NullifierCount(), qt.Equals, uint64(1))
	c.Assert(l.Balance().Int64(), qt.Equals, int64(-10))

	// a second spend of the same nullifier is rejected without wasting
	// verification effort, even with an independently well-formed proof
	verifierCalls := wv.calls
	_, err = l.Withdraw(proofFor(root, nullifier), nullifier, recipient)
	c.Assert(err, qt.ErrorIs, ErrDoubleSpend)
	c.Assert(wv.calls, qt.Equals, verifierCalls)
	c.Assert(l.NullifierCount(), qt.Equals, uint64(1))

	// an invalid proof for a fresh nullifier is rejected with no state
	// change
	other := big.NewInt(778)
	_, err = l.Withdraw([]byte("bogus"), other, recipient)
	c.Assert(err, qt.ErrorIs, ErrProofRejected)
	spent, err = l.IsSpent(other)
	c.Assert(err, qt.IsNil)
	c.Assert(spent, qt.IsFalse)
	c.Assert(l.EventCount(), qt.Equals, uint64(1))
}

func TestEventLog(t *testing.T) {
	c := qt.New(t)

	l, _, _ := newTestLedger(t, 3)
	for i := int64(0); i < 3; i++ {
		root := l.Root()
		newRoot := big.NewInt(100 + i)
		commitment := big.NewInt(200 + i)
		_, err := l.Deposit(proofFor(root, newRoot, commitment, big.NewInt(i)),
			newRoot, commitment, big.NewInt(10))
		c.Assert(err, qt.IsNil)
	}
	nullifier := big.NewInt(555)
	_, err := l.Withdraw(proofFor(l.Root(), nullifier), nullifier, common.Address{})
	c.Assert(err, qt.IsNil)

	events, err := l.ListEvents(0, 10)
	c.Assert(err, qt.IsNil)
	c.Assert(events, qt.HasLen, 4)
	for i, event := range events[:3] {
		c.Assert(event.Seq, qt.Equals, uint64(i))
		c.Assert(event.Deposit, qt.IsNotNil)
		c.Assert(event.Deposit.Index, qt.Equals, uint64(i))
	}
	c.Assert(events[3].Withdraw, qt.IsNotNil)

	// paging
	events, err = l.ListEvents(2, 10)
	c.Assert(err, qt.IsNil)
	c.Assert(events, qt.HasLen, 2)
	c.Assert(events[0].Seq, qt.Equals, uint64(2))

	events, err = l.ListEvents(0, 2)
	c.Assert(err, qt.IsNil)
	c.Assert(events, qt.HasLen, 2)
}

func TestLedgerPersistence(t *testing.T) {
	c := qt.New(t)

	dir := t.TempDir()
	database, err := metadb.New(db.TypePebble, dir)
	c.Assert(err, qt.IsNil)

	cfg := Config{
		Database:         database,
		Depth:            3,
		Denomination:     big.NewInt(10),
		DepositVerifier:  &digestVerifier{},
		WithdrawVerifier: &digestVerifier{},
	}
	l, err := New(cfg)
	c.Assert(err, qt.IsNil)

	newRoot, commitment := big.NewInt(42), big.NewInt(43)
	_, err = l.Deposit(proofFor(l.Root(), newRoot, commitment, big.NewInt(0)),
		newRoot, commitment, big.NewInt(10))
	c.Assert(err, qt.IsNil)
	nullifier := big.NewInt(77)
	_, err = l.Withdraw(proofFor(l.Root(), nullifier), nullifier, common.Address{})
	c.Assert(err, qt.IsNil)
	c.Assert(database.Close(), qt.IsNil)

	cfg.Database, err = metadb.New(db.TypePebble, dir)
	c.Assert(err, qt.IsNil)
	defer func() { _ = cfg.Database.Close() }()

	reopened, err := New(cfg)
	c.Assert(err, qt.IsNil)
	c.Assert(reopened.Root().Cmp(newRoot), qt.Equals, 0)
	c.Assert(reopened.DepositIndex(), qt.Equals, uint64(1))
	c.Assert(reopened.EventCount(), qt.Equals, uint64(2))
	c.Assert(reopened.NullifierCount(), qt.Equals, uint64(1))
	c.Assert(reopened.Balance().Sign(), qt.Equals, 0)

	spent, err := reopened.IsSpent(nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(spent, qt.IsTrue)

	events, err := reopened.ListEvents(0, 10)
	c.Assert(err, qt.IsNil)
	c.Assert(events, qt.HasLen, 2)
}
