package wallet

import (
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
	"go.vocdoni.io/dvote/db/metadb"

	"github.com/vocdoni/zkpool/crypto/hash/mimc"
	"github.com/vocdoni/zkpool/tree"
)

func TestNoteDerivation(t *testing.T) {
	c := qt.New(t)

	// random notes differ
	n1, n2 := NewNote(), NewNote()
	c.Assert(n1.ID.Cmp(n2.ID), qt.Not(qt.Equals), 0)

	// seed derivation is deterministic and nonce-separated
	seed := []byte("wallet seed")
	d1, err := DeriveNote(seed, 0)
	c.Assert(err, qt.IsNil)
	d2, err := DeriveNote(seed, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(d1.ID.Cmp(d2.ID), qt.Equals, 0)
	c.Assert(d1.Blinding.Cmp(d2.Blinding), qt.Equals, 0)

	d3, err := DeriveNote(seed, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(d3.ID.Cmp(d1.ID), qt.Not(qt.Equals), 0)

	// commitment matches the native hash and the nullifier is the raw id
	commitment, err := d1.Commitment()
	c.Assert(err, qt.IsNil)
	expected, err := mimc.Hash(d1.ID, d1.Blinding)
	c.Assert(err, qt.IsNil)
	c.Assert(commitment.Cmp(expected), qt.Equals, 0)
	c.Assert(d1.Nullifier().Cmp(d1.ID), qt.Equals, 0)
}

func TestBuildDepositAndWithdraw(t *testing.T) {
	c := qt.New(t)
	tr, err := tree.New(tree.Config{Database: metadb.NewTest(t), Depth: 3})
	c.Assert(err, qt.IsNil)

	note := NewNote()
	slot, err := tr.GenProof(0)
	c.Assert(err, qt.IsNil)

	inputs, err := BuildDeposit(note, slot)
	c.Assert(err, qt.IsNil)
	c.Assert(inputs.OldRoot.Cmp(tr.Root()), qt.Equals, 0)
	c.Assert(CheckFreshRoot(slot, tr.Root()), qt.IsNil)

	// settle: the accumulator must land exactly on the derived new root
	index, err := tr.Insert(inputs.Commitment)
	c.Assert(err, qt.IsNil)
	c.Assert(index, qt.Equals, inputs.Index)
	c.Assert(tr.Root().Cmp(inputs.NewRoot), qt.Equals, 0)

	// a second depositor makes the old path stale for new deposits
	other := NewNote()
	otherCommitment, err := other.Commitment()
	c.Assert(err, qt.IsNil)
	_, err = tr.Insert(otherCommitment)
	c.Assert(err, qt.IsNil)
	c.Assert(CheckFreshRoot(slot, tr.Root()), qt.ErrorIs, ErrStalePath)

	// withdraw from a fresh path of the recorded slot
	record := NewRecord(inputs, slot.PathIndices)
	fresh, err := tr.GenProof(record.Index)
	c.Assert(err, qt.IsNil)
	wInputs, err := BuildWithdraw(record, fresh)
	c.Assert(err, qt.IsNil)
	c.Assert(wInputs.Root.Cmp(tr.Root()), qt.Equals, 0)
	c.Assert(wInputs.Nullifier.Cmp(note.ID), qt.Equals, 0)

	// the withdraw path must prove the commitment, a wrong slot is refused
	wrong, err := tr.GenProof(1)
	c.Assert(err, qt.IsNil)
	_, err = BuildWithdraw(record, wrong)
	c.Assert(err, qt.IsNotNil)
}

func TestBuildDepositRejectsOccupiedSlot(t *testing.T) {
	c := qt.New(t)
	tr, err := tree.New(tree.Config{Database: metadb.NewTest(t), Depth: 3})
	c.Assert(err, qt.IsNil)

	_, err = tr.Insert(big.NewInt(42))
	c.Assert(err, qt.IsNil)

	slot, err := tr.GenProof(0)
	c.Assert(err, qt.IsNil)
	_, err = BuildDeposit(NewNote(), slot)
	c.Assert(err, qt.ErrorIs, ErrSlotOccupied)
}

func TestRecordStore(t *testing.T) {
	c := qt.New(t)
	tr, err := tree.New(tree.Config{Database: metadb.NewTest(t), Depth: 3})
	c.Assert(err, qt.IsNil)
	w, err := New(metadb.NewTest(t))
	c.Assert(err, qt.IsNil)

	note := NewNote()
	slot, err := tr.GenProof(0)
	c.Assert(err, qt.IsNil)
	inputs, err := BuildDeposit(note, slot)
	c.Assert(err, qt.IsNil)

	id, err := w.SaveRecord(NewRecord(inputs, slot.PathIndices))
	c.Assert(err, qt.IsNil)

	record, err := w.Record(id)
	c.Assert(err, qt.IsNil)
	c.Assert(record.Commitment.MathBigInt().Cmp(inputs.Commitment), qt.Equals, 0)
	c.Assert(record.Spent, qt.IsFalse)
	c.Assert(record.Note().ID.Cmp(note.ID), qt.Equals, 0)

	records, err := w.Records()
	c.Assert(err, qt.IsNil)
	c.Assert(records, qt.HasLen, 1)

	c.Assert(w.MarkSpent(id), qt.IsNil)
	record, err = w.Record(id)
	c.Assert(err, qt.IsNil)
	c.Assert(record.Spent, qt.IsTrue)
	_, err = BuildWithdraw(record, slot)
	c.Assert(err, qt.ErrorIs, ErrRecordSpent)

	_, err = w.Record([16]byte{0xff})
	c.Assert(err, qt.ErrorIs, ErrRecordNotFound)
}
