package wallet

import (
	"fmt"
	"math/big"

	"github.com/vocdoni/zkpool/circuits"
	"github.com/vocdoni/zkpool/tree"
	"github.com/vocdoni/zkpool/types"
)

// BuildDeposit assembles the deposit witness for a note over the inclusion
// path of the next free slot: the path must show the slot still empty under
// its root, and the new root is derived natively by walking the same path
// from the commitment. The returned inputs carry exactly the public values
// the ledger will verify against.
func BuildDeposit(note *Note, slot *tree.Proof) (*circuits.DepositInputs, error) {
	if slot == nil {
		return nil, fmt.Errorf("missing slot proof")
	}
	if slot.Leaf == nil || slot.Leaf.Sign() != 0 {
		return nil, fmt.Errorf("%w: index %d", ErrSlotOccupied, slot.Index)
	}
	ok, err := tree.CheckProof(slot, nil)
	if err != nil {
		return nil, fmt.Errorf("check slot proof: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: path does not re-derive its root", ErrStalePath)
	}
	commitment, err := note.Commitment()
	if err != nil {
		return nil, err
	}
	newRoot, err := tree.RootFromPath(commitment, slot.PathElements, slot.PathIndices, nil)
	if err != nil {
		return nil, fmt.Errorf("derive new root: %w", err)
	}
	return &circuits.DepositInputs{
		ID:         note.Nullifier(),
		Blinding:   new(big.Int).Set(note.Blinding),
		OldPath:    slot.PathElements,
		OldRoot:    slot.Root,
		NewRoot:    newRoot,
		Commitment: commitment,
		Index:      slot.Index,
	}, nil
}

// CheckFreshRoot reports whether a slot proof was taken against the given
// ledger root, the client-side desync detection run before submitting. A
// mismatch means a concurrent deposit was accepted first; refresh the pool
// state and rebuild the witness.
func CheckFreshRoot(slot *tree.Proof, ledgerRoot *big.Int) error {
	if slot == nil || slot.Root == nil || ledgerRoot == nil {
		return fmt.Errorf("missing root to compare")
	}
	if slot.Root.Cmp(ledgerRoot) != 0 {
		return fmt.Errorf("%w: path root %s, ledger root %s", ErrStalePath, slot.Root, ledgerRoot)
	}
	return nil
}

// NewRecord builds the deposit record to persist once the deposit settles.
func NewRecord(inputs *circuits.DepositInputs, bits []byte) *DepositRecord {
	path := make([]*types.BigInt, len(inputs.OldPath))
	for i, sibling := range inputs.OldPath {
		path[i] = types.BigToBigInt(sibling)
	}
	return &DepositRecord{
		ID:         types.BigToBigInt(inputs.ID),
		Blinding:   types.BigToBigInt(inputs.Blinding),
		Commitment: types.BigToBigInt(inputs.Commitment),
		Index:      inputs.Index,
		OldRoot:    types.BigToBigInt(inputs.OldRoot),
		NewRoot:    types.BigToBigInt(inputs.NewRoot),
		Path:       path,
		PathBits:   bits,
	}
}

// BuildWithdraw assembles the withdraw witness for a settled deposit from a
// fresh inclusion path of its slot. The path must be fresh because later
// deposits change the siblings; the stored record only pins which slot and
// which opening to prove.
func BuildWithdraw(record *DepositRecord, fresh *tree.Proof) (*circuits.WithdrawInputs, error) {
	if record == nil || fresh == nil {
		return nil, fmt.Errorf("missing record or slot proof")
	}
	if record.Spent {
		return nil, fmt.Errorf("%w: record %s", ErrRecordSpent, record.RecordID)
	}
	if fresh.Index != record.Index {
		return nil, fmt.Errorf("path is for index %d, record holds index %d", fresh.Index, record.Index)
	}
	if fresh.Leaf == nil || fresh.Leaf.Cmp(record.Commitment.MathBigInt()) != 0 {
		return nil, fmt.Errorf("%w: slot %d no longer holds the recorded commitment",
			ErrStalePath, record.Index)
	}
	ok, err := tree.CheckProof(fresh, nil)
	if err != nil {
		return nil, fmt.Errorf("check slot proof: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: path does not re-derive its root", ErrStalePath)
	}
	return &circuits.WithdrawInputs{
		Blinding:  record.Blinding.MathBigInt(),
		Index:     record.Index,
		Path:      fresh.PathElements,
		Root:      fresh.Root,
		Nullifier: record.ID.MathBigInt(),
	}, nil
}
