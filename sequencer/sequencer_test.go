package sequencer

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"go.vocdoni.io/dvote/db/metadb"
	"go.vocdoni.io/dvote/db/prefixeddb"

	"github.com/vocdoni/zkpool/crypto/hash/mimc"
	"github.com/vocdoni/zkpool/ledger"
	"github.com/vocdoni/zkpool/storage"
	"github.com/vocdoni/zkpool/tree"
	"github.com/vocdoni/zkpool/types"
)

// proofFor binds a fake proof to an exact list of public inputs, mirroring
// what a real verifier enforces: the proof only passes when the ledger feeds
// the same values.
func proofFor(publics ...*big.Int) []byte {
	h := sha256.New()
	for _, p := range publics {
		var buf [32]byte
		p.FillBytes(buf[:])
		h.Write(buf[:])
	}
	return h.Sum(nil)
}

type digestVerifier struct{}

func (digestVerifier) Verify(proof []byte, publics []*big.Int) error {
	if !bytes.Equal(proof, proofFor(publics...)) {
		return errors.New("proof does not match public inputs")
	}
	return nil
}

type testEnv struct {
	stg *storage.Storage
	ldg *ledger.Ledger
	tr  *tree.Tree
	seq *Sequencer
}

func newTestEnv(t *testing.T, depth int) *testEnv {
	mdb := metadb.NewTest(t)
	tr, err := tree.New(tree.Config{
		Database: prefixeddb.NewPrefixedDatabase(mdb, []byte("tree/")),
		Depth:    depth,
	})
	qt.Assert(t, err, qt.IsNil)
	ldg, err := ledger.New(ledger.Config{
		Database:         prefixeddb.NewPrefixedDatabase(mdb, []byte("ledger/")),
		Depth:            depth,
		Denomination:     big.NewInt(10),
		DepositVerifier:  digestVerifier{},
		WithdrawVerifier: digestVerifier{},
	})
	qt.Assert(t, err, qt.IsNil)
	stg := storage.New(prefixeddb.NewPrefixedDatabase(mdb, []byte("txs/")))
	seq, err := New(stg, ldg, tr, 0)
	qt.Assert(t, err, qt.IsNil)
	return &testEnv{stg: stg, ldg: ldg, tr: tr, seq: seq}
}

// buildDeposit assembles a deposit transaction for the next free slot, with
// the new root derived the same way the accumulator derives it.
func (e *testEnv) buildDeposit(t *testing.T, commitment, amount *big.Int) *storage.Tx {
	index := e.ldg.DepositIndex()
	proof, err := e.tr.GenProof(index)
	qt.Assert(t, err, qt.IsNil)
	newRoot, err := tree.RootFromPath(commitment, proof.PathElements, proof.PathIndices, nil)
	qt.Assert(t, err, qt.IsNil)
	return &storage.Tx{
		Kind: types.TxKindDeposit,
		Deposit: &storage.DepositTx{
			Proof: proofFor(e.ldg.Root(), newRoot, commitment,
				new(big.Int).SetUint64(index)),
			NewRoot:    types.BigToBigInt(newRoot),
			Commitment: types.BigToBigInt(commitment),
			Amount:     types.BigToBigInt(amount),
		},
	}
}

func TestSettleDeposits(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t, 3)

	var ids []types.HexBytes
	for i := int64(1); i <= 3; i++ {
		commitment, err := mimc.Hash(big.NewInt(i), big.NewInt(100+i))
		c.Assert(err, qt.IsNil)
		// the queue is settled in order, so each witness can be built against
		// the state the previous transactions will leave behind only when
		// settling between submissions
		id, err := env.stg.PushTransaction(env.buildDeposit(t, commitment, big.NewInt(10)))
		c.Assert(err, qt.IsNil)
		ids = append(ids, id)
		n, err := env.seq.ProcessPending()
		c.Assert(err, qt.IsNil)
		c.Assert(n, qt.Equals, 1)
	}

	c.Assert(env.ldg.DepositIndex(), qt.Equals, uint64(3))
	c.Assert(env.tr.LeafCount(), qt.Equals, uint64(3))
	c.Assert(env.tr.Root().Cmp(env.ldg.Root()), qt.Equals, 0)

	for i, id := range ids {
		status, err := env.stg.TransactionStatus(id)
		c.Assert(err, qt.IsNil)
		c.Assert(status.Status, qt.Equals, types.TxSettled)
		c.Assert(status.Event.Deposit.Index, qt.Equals, uint64(i))
	}
}

func TestRejectedDepositLeavesNoTrace(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t, 3)

	commitment, err := mimc.Hash(big.NewInt(1), big.NewInt(2))
	c.Assert(err, qt.IsNil)

	// wrong amount: rejected before verification, terminal status
	id, err := env.stg.PushTransaction(env.buildDeposit(t, commitment, big.NewInt(99)))
	c.Assert(err, qt.IsNil)
	n, err := env.seq.ProcessPending()
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 1)

	status, err := env.stg.TransactionStatus(id)
	c.Assert(err, qt.IsNil)
	c.Assert(status.Status, qt.Equals, types.TxRejected)
	c.Assert(status.Error, qt.Contains, "denomination")
	c.Assert(env.ldg.DepositIndex(), qt.Equals, uint64(0))
	c.Assert(env.tr.LeafCount(), qt.Equals, uint64(0))

	// rejections are terminal, a correct resubmission settles
	id, err = env.stg.PushTransaction(env.buildDeposit(t, commitment, big.NewInt(10)))
	c.Assert(err, qt.IsNil)
	_, err = env.seq.ProcessPending()
	c.Assert(err, qt.IsNil)
	status, err = env.stg.TransactionStatus(id)
	c.Assert(err, qt.IsNil)
	c.Assert(status.Status, qt.Equals, types.TxSettled)
}

func TestStaleRootDepositRejected(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t, 3)

	c1, err := mimc.Hash(big.NewInt(1), big.NewInt(11))
	c.Assert(err, qt.IsNil)
	c2, err := mimc.Hash(big.NewInt(2), big.NewInt(22))
	c.Assert(err, qt.IsNil)

	// both witnesses built against the same (soon stale for the second) root
	first := env.buildDeposit(t, c1, big.NewInt(10))
	stale := env.buildDeposit(t, c2, big.NewInt(10))

	id1, err := env.stg.PushTransaction(first)
	c.Assert(err, qt.IsNil)
	id2, err := env.stg.PushTransaction(stale)
	c.Assert(err, qt.IsNil)

	n, err := env.seq.ProcessPending()
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 2)

	status, err := env.stg.TransactionStatus(id1)
	c.Assert(err, qt.IsNil)
	c.Assert(status.Status, qt.Equals, types.TxSettled)
	status, err = env.stg.TransactionStatus(id2)
	c.Assert(err, qt.IsNil)
	c.Assert(status.Status, qt.Equals, types.TxRejected)
	c.Assert(status.Error, qt.Contains, "proof rejected")
}

func TestRetriedSettlementKeepsOutcome(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t, 3)

	commitment, err := mimc.Hash(big.NewInt(5), big.NewInt(6))
	c.Assert(err, qt.IsNil)
	id, err := env.stg.PushTransaction(env.buildDeposit(t, commitment, big.NewInt(10)))
	c.Assert(err, qt.IsNil)

	tx, key, err := env.stg.NextTransaction()
	c.Assert(err, qt.IsNil)
	c.Assert(env.seq.settle(tx, key), qt.IsNil)

	status, err := env.stg.TransactionStatus(id)
	c.Assert(err, qt.IsNil)
	c.Assert(status.Status, qt.Equals, types.TxSettled)

	// a settlement interrupted between the status write and the queue
	// cleanup is retried with the same queue key; it must finish the
	// cleanup without applying the deposit again, which would now fail
	// against the advanced root and overwrite a truthful settled record
	c.Assert(env.seq.settle(tx, key), qt.IsNil)
	status, err = env.stg.TransactionStatus(id)
	c.Assert(err, qt.IsNil)
	c.Assert(status.Status, qt.Equals, types.TxSettled)
	c.Assert(status.Event.Deposit.Index, qt.Equals, uint64(0))
	c.Assert(env.ldg.DepositIndex(), qt.Equals, uint64(1))
	c.Assert(env.tr.LeafCount(), qt.Equals, uint64(1))
}

func TestSettleWithdrawAndDoubleSpend(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t, 3)

	id, blinding := big.NewInt(77), big.NewInt(88)
	commitment, err := mimc.Hash(id, blinding)
	c.Assert(err, qt.IsNil)

	_, err = env.stg.PushTransaction(env.buildDeposit(t, commitment, big.NewInt(10)))
	c.Assert(err, qt.IsNil)
	_, err = env.seq.ProcessPending()
	c.Assert(err, qt.IsNil)

	recipient := common.HexToAddress("0x00000000000000000000000000000000deadbeef")
	withdraw := func() *storage.Tx {
		return &storage.Tx{
			Kind: types.TxKindWithdraw,
			Withdraw: &storage.WithdrawTx{
				Proof:     proofFor(env.ldg.Root(), id),
				Nullifier: types.BigToBigInt(id),
				Recipient: recipient,
			},
		}
	}

	txID, err := env.stg.PushTransaction(withdraw())
	c.Assert(err, qt.IsNil)
	_, err = env.seq.ProcessPending()
	c.Assert(err, qt.IsNil)

	status, err := env.stg.TransactionStatus(txID)
	c.Assert(err, qt.IsNil)
	c.Assert(status.Status, qt.Equals, types.TxSettled)
	c.Assert(status.Event.Withdraw.Recipient, qt.Equals, recipient)

	// same nullifier again, with an otherwise well-formed proof
	txID, err = env.stg.PushTransaction(withdraw())
	c.Assert(err, qt.IsNil)
	_, err = env.seq.ProcessPending()
	c.Assert(err, qt.IsNil)
	status, err = env.stg.TransactionStatus(txID)
	c.Assert(err, qt.IsNil)
	c.Assert(status.Status, qt.Equals, types.TxRejected)
	c.Assert(status.Error, qt.Contains, "nullifier already spent")
}
